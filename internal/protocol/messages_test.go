package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/eleven-am/voice-widget/internal/audio"
	"github.com/eleven-am/voice-widget/internal/shared"
)

func TestParse_Events(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "metadata",
			raw:  `{"type":"conversation_initiation_metadata","conversation_initiation_metadata_event":{"conversation_id":"conv_1","agent_output_audio_format":"pcm_16000","user_input_audio_format":"pcm_16000"}}`,
			want: MetadataEvent{ConversationID: "conv_1", AgentOutputAudioFormat: "pcm_16000", UserInputAudioFormat: "pcm_16000"},
		},
		{
			name: "audio",
			raw:  `{"type":"audio","audio_event":{"audio_base_64":"AAA=","event_id":3}}`,
			want: AudioEvent{EventID: 3, AudioBase64: "AAA="},
		},
		{
			name: "agent response",
			raw:  `{"type":"agent_response","agent_response_event":{"agent_response":"Hello there"}}`,
			want: AgentResponseEvent{Text: "Hello there"},
		},
		{
			name: "user transcript",
			raw:  `{"type":"user_transcript","user_transcription_event":{"user_transcript":"hi"}}`,
			want: UserTranscriptEvent{Text: "hi"},
		},
		{
			name: "interruption",
			raw:  `{"type":"interruption","interruption_event":{"event_id":7,"reason":"user"}}`,
			want: InterruptionEvent{EventID: 7, Reason: "user"},
		},
		{
			name: "ping",
			raw:  `{"type":"ping","ping_event":{"event_id":42,"ping_ms":120}}`,
			want: PingEvent{EventID: 42, PingMS: 120},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
			if got.Type() != tt.want.Type() {
				t.Errorf("type mismatch: %s vs %s", got.Type(), tt.want.Type())
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"invalid json", `{"type":`, shared.ErrMalformedMessage},
		{"not an object", `[1,2]`, shared.ErrMalformedMessage},
		{"missing type", `{"audio_event":{}}`, shared.ErrMalformedMessage},
		{"missing payload", `{"type":"audio"}`, shared.ErrMalformedMessage},
		{"unknown type", `{"type":"vad_score","vad_score_event":{"vad_score":0.9}}`, ErrUnknownEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewUserAudioChunk(t *testing.T) {
	pcm := audio.Int16ToBytes([]int16{1, 2, 3})
	data, err := json.Marshal(NewUserAudioChunk(pcm))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]string
	json.Unmarshal(data, &decoded)
	if len(decoded) != 1 {
		t.Fatalf("expected a single field, got %v", decoded)
	}
	if string(audio.DecodeBase64(decoded["user_audio_chunk"])) != string(pcm) {
		t.Error("chunk should carry the base64 of the raw PCM bytes")
	}
}

func TestNewPong(t *testing.T) {
	data, _ := json.Marshal(NewPong(42))
	if string(data) != `{"type":"pong","event_id":42}` {
		t.Errorf("unexpected pong: %s", data)
	}
}

func TestNewInitiation_EmptyObjects(t *testing.T) {
	data, _ := json.Marshal(NewInitiation(InitOverrides{}))
	want := `{"type":"conversation_initiation_client_data","conversation_config_override":{},"custom_llm_extra_body":{},"dynamic_variables":{}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestNewInitiation_Overrides(t *testing.T) {
	msg := NewInitiation(InitOverrides{DynamicVariables: map[string]any{"user_name": "Ada"}})
	if msg.DynamicVariables["user_name"] != "Ada" {
		t.Error("dynamic variables should be carried")
	}
	if msg.ConversationConfigOverride == nil || msg.CustomLLMExtraBody == nil {
		t.Error("unset maps should be empty, not nil")
	}
}
