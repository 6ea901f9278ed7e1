package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/eleven-am/voice-widget/internal/conversation"
	"github.com/eleven-am/voice-widget/internal/shared"
	"github.com/labstack/echo/v4"
)

// Controller is the slice of the conversation controller the UI layer drives.
type Controller interface {
	Open(ctx context.Context) error
	Retry(ctx context.Context) error
	Close()
	StartListening() bool
	Snapshot() conversation.Snapshot
}

type Handler struct {
	ctrl   Controller
	hub    *Hub
	logger *slog.Logger
}

func NewHandler(ctrl Controller, hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{
		ctrl:   ctrl,
		hub:    hub,
		logger: logger.With("component", "gateway"),
	}
}

// RegisterRoutes mounts the session API on g. Middleware in mw guards the
// mutating routes only.
func (h *Handler) RegisterRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.GET("/session", h.GetSession)
	g.POST("/session/open", h.Open, mw...)
	g.POST("/session/close", h.Close, mw...)
	g.POST("/session/retry", h.Retry, mw...)
	g.POST("/session/listen", h.Listen, mw...)
	g.GET("/events", h.Events)
}

func (h *Handler) GetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) Open(c echo.Context) error {
	if err := h.ctrl.Open(c.Request().Context()); err != nil {
		return h.sessionError("open", err)
	}
	return c.JSON(http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) Retry(c echo.Context) error {
	if err := h.ctrl.Retry(c.Request().Context()); err != nil {
		return h.sessionError("retry", err)
	}
	return c.JSON(http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) Close(c echo.Context) error {
	h.ctrl.Close()
	return c.JSON(http.StatusOK, h.ctrl.Snapshot())
}

type ListenResponse struct {
	Listening bool `json:"listening"`
}

func (h *Handler) Listen(c echo.Context) error {
	return c.JSON(http.StatusOK, ListenResponse{Listening: h.ctrl.StartListening()})
}

func (h *Handler) sessionError(op string, err error) error {
	kind := string(shared.Kind(err))
	switch {
	case errors.Is(err, shared.ErrPermissionDenied):
		return shared.Forbidden(kind, err.Error())
	case errors.Is(err, shared.ErrDeviceUnavailable):
		return shared.ServiceUnavailable(kind, err.Error())
	case errors.Is(err, shared.ErrFailedPermanently):
		return shared.Conflict(kind, "connection failed permanently, retry required")
	}
	h.logger.Error("session operation failed", "op", op, "error", err)
	return shared.InternalError(op+"_failed", err.Error())
}

func (h *Handler) Events(c echo.Context) error {
	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return err
	}

	client := NewClient(ws, h.logger)
	client.Send(SnapshotSignal(h.ctrl.Snapshot()))
	h.hub.Register(client)

	go client.writePump()
	client.readPump()

	h.hub.Unregister(client)
	h.logger.Debug("subscriber disconnected")
	return nil
}
