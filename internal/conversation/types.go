package conversation

import (
	"context"
	"time"

	"github.com/eleven-am/voice-widget/internal/audio"
	"github.com/eleven-am/voice-widget/internal/capture"
	"github.com/eleven-am/voice-widget/internal/connection"
	"github.com/eleven-am/voice-widget/internal/playback"
)

type Mode string

const (
	ModeIdle        Mode = "idle"
	ModeListening   Mode = "listening"
	ModeSpeaking    Mode = "speaking"
	ModeInterrupted Mode = "interrupted"
)

type Role string

const (
	RoleAgent Role = "agent"
	RoleUser  Role = "user"
)

type Message struct {
	Role           Role      `json:"role"`
	Text           string    `json:"text"`
	ConversationID string    `json:"conversation_id,omitempty"`
	At             time.Time `json:"at"`
}

// Session is one logical conversation. ConversationID stays empty until the
// endpoint announces it; LocalID is assigned on open.
type Session struct {
	LocalID         string
	ConversationID  string
	LastInterruptID int
	InputFormat     audio.Format
	OutputFormat    audio.Format
	StartedAt       time.Time
	Opens           int
}

// Key identifies the session in history and transcript records.
func (s Session) Key() string {
	if s.ConversationID != "" {
		return s.ConversationID
	}
	return s.LocalID
}

type Snapshot struct {
	State           connection.State `json:"state"`
	Mode            Mode             `json:"mode"`
	LocalID         string           `json:"local_id,omitempty"`
	ConversationID  string           `json:"conversation_id,omitempty"`
	LastInterruptID int              `json:"last_interrupt_id"`
	InputFormat     string           `json:"input_format"`
	OutputFormat    string           `json:"output_format"`
	Listening       bool             `json:"listening"`
	Playing         bool             `json:"playing"`
}

// Callbacks carry the signals consumed by the UI layer.
type Callbacks struct {
	OnConnectionState func(connection.State)
	OnMessage         func(Message)
	OnError           func(error)
	OnLevel           func(float64)
	OnMode            func(Mode)
}

type Transport interface {
	Connect(ctx context.Context) error
	Reset()
	Close()
	Send(v any) error
	State() connection.State
	SetCallbacks(cb connection.Callbacks)
}

type Capture interface {
	Initialize(ctx context.Context) error
	StartFrameDelivery(handler capture.FrameHandler) error
	Stop()
	IsActive() bool
}

type Playback interface {
	Enqueue(item playback.Item)
	Flush() int
	IsPlaying() bool
	SetCallbacks(onStart, onIdle func())
}

type History interface {
	Begin(ctx context.Context, key, agentID string) error
	RecordInterruption(ctx context.Context, key string, eventID int) error
	RecordReconnect(ctx context.Context, key string) error
	End(ctx context.Context, key string, failed bool) error
}

type Transcript interface {
	Append(ctx context.Context, key, role, text string) error
}
