package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-widget/internal/connection"
	"github.com/eleven-am/voice-widget/internal/conversation"
	"github.com/eleven-am/voice-widget/internal/shared"
)

type SignalType string

const (
	SignalSnapshot SignalType = "snapshot"
	SignalState    SignalType = "state"
	SignalMode     SignalType = "mode"
	SignalMessage  SignalType = "message"
	SignalError    SignalType = "error"
	SignalLevel    SignalType = "level"
)

type ErrorPayload struct {
	Kind    shared.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// Signal is one frame on the /v1/events feed.
type Signal struct {
	Type     SignalType             `json:"type"`
	State    string                 `json:"state,omitempty"`
	Mode     conversation.Mode      `json:"mode,omitempty"`
	Message  *conversation.Message  `json:"message,omitempty"`
	Error    *ErrorPayload          `json:"error,omitempty"`
	Level    *float64               `json:"level,omitempty"`
	Snapshot *conversation.Snapshot `json:"snapshot,omitempty"`
	At       time.Time              `json:"at"`
}

func SnapshotSignal(s conversation.Snapshot) *Signal {
	return &Signal{Type: SignalSnapshot, Snapshot: &s, At: time.Now()}
}

// Hub fans controller signals out to every connected subscriber.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "signal_hub"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("subscriber registered", "subscribers", n)
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.Close()
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(s *Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.Send(s)
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.Close()
	}
}

// Callbacks adapts the hub to the controller's collaborator signals.
func (h *Hub) Callbacks() conversation.Callbacks {
	return conversation.Callbacks{
		OnConnectionState: func(s connection.State) {
			h.Broadcast(&Signal{Type: SignalState, State: s.String(), At: time.Now()})
		},
		OnMode: func(m conversation.Mode) {
			h.Broadcast(&Signal{Type: SignalMode, Mode: m, At: time.Now()})
		},
		OnMessage: func(m conversation.Message) {
			h.Broadcast(&Signal{Type: SignalMessage, Message: &m, At: time.Now()})
		},
		OnError: func(err error) {
			h.logger.Warn("session error", "error", err, "kind", shared.Kind(err))
			h.Broadcast(&Signal{
				Type:  SignalError,
				Error: &ErrorPayload{Kind: shared.Kind(err), Message: err.Error()},
				At:    time.Now(),
			})
		},
		OnLevel: func(level float64) {
			h.Broadcast(&Signal{Type: SignalLevel, Level: &level, At: time.Now()})
		},
	}
}
