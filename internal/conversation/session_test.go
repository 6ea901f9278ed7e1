package conversation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eleven-am/voice-widget/internal/audio"
	"github.com/eleven-am/voice-widget/internal/capture"
	"github.com/eleven-am/voice-widget/internal/connection"
	"github.com/eleven-am/voice-widget/internal/device"
	"github.com/eleven-am/voice-widget/internal/metrics"
	"github.com/eleven-am/voice-widget/internal/playback"
	"github.com/eleven-am/voice-widget/internal/shared"
	"github.com/gorilla/websocket"
)

// TestSession_EndToEnd drives a full turn against a scripted agent: open,
// initiation, one captured frame upstream, one fragment played back, then
// listening resumes.
func TestSession_EndToEnd(t *testing.T) {
	initiation := make(chan map[string]any, 1)
	chunk := make(chan []byte, 1)

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		var init map[string]any
		if err := ws.ReadJSON(&init); err != nil {
			return
		}
		initiation <- init

		ws.WriteJSON(map[string]any{
			"type": "conversation_initiation_metadata",
			"conversation_initiation_metadata_event": map[string]any{
				"conversation_id":           "conv_e2e",
				"agent_output_audio_format": "pcm_16000",
				"user_input_audio_format":   "pcm_16000",
			},
		})

		for {
			var msg map[string]any
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			if b64, ok := msg["user_audio_chunk"].(string); ok {
				chunk <- audio.DecodeBase64(b64)
				break
			}
		}

		reply := make([]int16, 1600)
		reply[0] = 777
		ws.WriteJSON(map[string]any{
			"type":        "audio",
			"audio_event": map[string]any{"audio_base_64": audio.EncodeBase64(audio.Int16ToBytes(reply)), "event_id": 1},
		})

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	backend := device.NewMemoryBackend(audio.TargetSampleRate)
	reg := device.NewRegistry(backend, device.PlatformDesktop, log)
	src := capture.NewSource(reg, device.DefaultInputConfig(), log)
	seq := playback.NewSequencer(device.NewSpeaker(reg), log)
	conn := connection.New(connection.Config{
		AgentID: "agent_1",
		BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Backoff: shared.BackoffConfig{Initial: time.Millisecond, MaxDelay: time.Millisecond},
	}, m, log)
	ctrl := New(Config{AgentID: "agent_1", ResumeDelay: 20 * time.Millisecond}, conn, src, seq, m, log)

	sig := &signals{}
	ctrl.SetCallbacks(sig.callbacks())
	t.Cleanup(func() {
		ctrl.Shutdown()
		conn.Shutdown()
		src.Shutdown()
		reg.Release()
	})

	if err := ctrl.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	select {
	case init := <-initiation:
		if init["type"] != "conversation_initiation_client_data" {
			t.Errorf("unexpected first message %v", init)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no initiation message")
	}

	waitFor(t, func() bool { return ctrl.Mode() == ModeListening }, "never started listening")

	backend.Feed(make([]float32, audio.FrameSamples))

	select {
	case pcm := <-chunk:
		if len(pcm) != audio.FrameSamples*2 {
			t.Errorf("expected %d byte chunk, got %d", audio.FrameSamples*2, len(pcm))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no audio chunk reached the agent")
	}

	waitFor(t, func() bool { return len(backend.Written(audio.TargetSampleRate)) == 1600 }, "agent audio never played")
	if backend.Written(audio.TargetSampleRate)[0] != 777 {
		t.Error("played audio does not match the fragment")
	}

	waitFor(t, func() bool {
		modes := sig.modeList()
		return len(modes) >= 3 && modes[len(modes)-1] == ModeListening
	}, "listening never resumed after playback")

	modes := sig.modeList()
	if modes[0] != ModeListening || modes[1] != ModeSpeaking || modes[2] != ModeListening {
		t.Errorf("expected listening, speaking, listening; got %v", modes)
	}
	if snap := ctrl.Snapshot(); snap.ConversationID != "conv_e2e" || snap.State != connection.StateOpen {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	data, _ := json.Marshal(ctrl.Snapshot())
	if !strings.Contains(string(data), `"state":"open"`) {
		t.Errorf("snapshot should serialize the state name, got %s", data)
	}
}
