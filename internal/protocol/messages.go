package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eleven-am/voice-widget/internal/audio"
	"github.com/eleven-am/voice-widget/internal/shared"
)

var ErrUnknownEvent = errors.New("unknown event type")

type EventType string

const (
	TypeConversationMetadata EventType = "conversation_initiation_metadata"
	TypeAudio                EventType = "audio"
	TypeAgentResponse        EventType = "agent_response"
	TypeUserTranscript       EventType = "user_transcript"
	TypeInterruption         EventType = "interruption"
	TypePing                 EventType = "ping"
)

// Event is one decoded inbound message.
type Event interface {
	Type() EventType
}

type MetadataEvent struct {
	ConversationID         string `json:"conversation_id"`
	AgentOutputAudioFormat string `json:"agent_output_audio_format"`
	UserInputAudioFormat   string `json:"user_input_audio_format"`
}

type AudioEvent struct {
	EventID     int    `json:"event_id"`
	AudioBase64 string `json:"audio_base_64"`
}

type AgentResponseEvent struct {
	Text string `json:"agent_response"`
}

type UserTranscriptEvent struct {
	Text string `json:"user_transcript"`
}

type InterruptionEvent struct {
	EventID int    `json:"event_id"`
	Reason  string `json:"reason,omitempty"`
}

type PingEvent struct {
	EventID int `json:"event_id"`
	PingMS  int `json:"ping_ms,omitempty"`
}

func (MetadataEvent) Type() EventType       { return TypeConversationMetadata }
func (AudioEvent) Type() EventType          { return TypeAudio }
func (AgentResponseEvent) Type() EventType  { return TypeAgentResponse }
func (UserTranscriptEvent) Type() EventType { return TypeUserTranscript }
func (InterruptionEvent) Type() EventType   { return TypeInterruption }
func (PingEvent) Type() EventType           { return TypePing }

type envelope struct {
	Type           EventType            `json:"type"`
	Metadata       *MetadataEvent       `json:"conversation_initiation_metadata_event"`
	Audio          *AudioEvent          `json:"audio_event"`
	AgentResponse  *AgentResponseEvent  `json:"agent_response_event"`
	UserTranscript *UserTranscriptEvent `json:"user_transcription_event"`
	Interruption   *InterruptionEvent   `json:"interruption_event"`
	Ping           *PingEvent           `json:"ping_event"`
}

// Parse decodes a raw frame into its typed event.
func Parse(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedMessage, err)
	}

	var (
		ev      Event
		present bool
	)
	switch env.Type {
	case TypeConversationMetadata:
		present = env.Metadata != nil
		if present {
			ev = *env.Metadata
		}
	case TypeAudio:
		present = env.Audio != nil
		if present {
			ev = *env.Audio
		}
	case TypeAgentResponse:
		present = env.AgentResponse != nil
		if present {
			ev = *env.AgentResponse
		}
	case TypeUserTranscript:
		present = env.UserTranscript != nil
		if present {
			ev = *env.UserTranscript
		}
	case TypeInterruption:
		present = env.Interruption != nil
		if present {
			ev = *env.Interruption
		}
	case TypePing:
		present = env.Ping != nil
		if present {
			ev = *env.Ping
		}
	case "":
		return nil, fmt.Errorf("%w: missing type", shared.ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	if !present {
		return nil, fmt.Errorf("%w: %s without payload", shared.ErrMalformedMessage, env.Type)
	}
	return ev, nil
}

type UserAudioChunk struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

func NewUserAudioChunk(pcm []byte) UserAudioChunk {
	return UserAudioChunk{UserAudioChunk: audio.EncodeBase64(pcm)}
}

type Pong struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

func NewPong(eventID int) Pong {
	return Pong{Type: "pong", EventID: eventID}
}

type Initiation struct {
	Type                       string         `json:"type"`
	ConversationConfigOverride map[string]any `json:"conversation_config_override"`
	CustomLLMExtraBody         map[string]any `json:"custom_llm_extra_body"`
	DynamicVariables           map[string]any `json:"dynamic_variables"`
}

// InitOverrides are the optional session settings sent right after the
// socket opens. Nil maps are sent as empty objects.
type InitOverrides struct {
	ConversationConfig map[string]any
	CustomLLMExtraBody map[string]any
	DynamicVariables   map[string]any
}

func NewInitiation(o InitOverrides) Initiation {
	return Initiation{
		Type:                       "conversation_initiation_client_data",
		ConversationConfigOverride: orEmpty(o.ConversationConfig),
		CustomLLMExtraBody:         orEmpty(o.CustomLLMExtraBody),
		DynamicVariables:           orEmpty(o.DynamicVariables),
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
