package history

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eleven-am/voice-widget/internal/shared"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/conversations/:id", h.GetConversation)
	g.GET("/agents/:id/metrics", h.GetMetrics)
}

func (h *Handler) GetConversation(c echo.Context) error {
	id := c.Param("id")

	rec, err := h.store.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("conversation_not_found", "conversation not found")
		}
		h.logger.Error("failed to get conversation", "error", err, "conversation_id", id)
		return shared.InternalError("get_failed", "failed to get conversation")
	}
	return c.JSON(http.StatusOK, rec)
}

type MetricsListResponse struct {
	AgentID string     `json:"agent_id"`
	Hours   int        `json:"hours"`
	Metrics []*Metrics `json:"metrics"`
}

func (h *Handler) GetMetrics(c echo.Context) error {
	agentID := c.Param("id")

	hours := 24
	if hr, err := strconv.Atoi(c.QueryParam("hours")); err == nil && hr > 0 && hr <= 168 {
		hours = hr
	}

	metrics, err := h.store.GetMetrics(c.Request().Context(), agentID, hours)
	if err != nil {
		h.logger.Error("failed to get metrics", "error", err, "agent_id", agentID)
		return shared.InternalError("get_metrics_failed", "failed to get metrics")
	}
	if metrics == nil {
		metrics = []*Metrics{}
	}

	return c.JSON(http.StatusOK, MetricsListResponse{
		AgentID: agentID,
		Hours:   hours,
		Metrics: metrics,
	})
}
