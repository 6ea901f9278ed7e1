package transcript

import (
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
	return &Handler{store: store, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/conversations/:id/transcript", h.List)
}

type ListResponse struct {
	ConversationID string `json:"conversation_id"`
	Lines          []Line `json:"lines"`
}

func (h *Handler) List(c echo.Context) error {
	id := c.Param("id")

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return shared.BadRequest("invalid_limit", "limit must be a non-negative integer")
		}
		limit = n
	}

	lines, err := h.store.List(c.Request().Context(), id, limit)
	if err != nil {
		h.logger.Error("failed to list transcript", "error", err, "conversation_id", id)
		return shared.InternalError("list_failed", "failed to list transcript")
	}
	if lines == nil {
		lines = []Line{}
	}
	return c.JSON(http.StatusOK, ListResponse{ConversationID: id, Lines: lines})
}
