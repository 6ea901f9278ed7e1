package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.ConnectAttempts.Inc()

	if testutil.ToFloat64(a.ConnectAttempts) != 1 {
		t.Error("expected 1 attempt on a")
	}
	if testutil.ToFloat64(b.ConnectAttempts) != 0 {
		t.Error("registries should not share counters")
	}
}

func TestNewWith_Registerer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWith(reg)
	m.MessagesReceived.WithLabelValues("audio").Add(3)

	if n := testutil.CollectAndCount(m.MessagesReceived); n != 1 {
		t.Errorf("expected 1 series, got %d", n)
	}
	if testutil.ToFloat64(m.MessagesReceived.WithLabelValues("audio")) != 3 {
		t.Error("expected 3 audio messages")
	}
}

func TestPlaybackFailed(t *testing.T) {
	m := New()
	m.PlaybackFailed(1, errors.New("boom"))
	m.PlaybackFailed(2, errors.New("boom"))
	if testutil.ToFloat64(m.PlaybackFailures) != 2 {
		t.Errorf("expected 2 playback failures, got %v", testutil.ToFloat64(m.PlaybackFailures))
	}
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.FramesSent.Add(5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "widget_audio_frames_sent_total 5") {
		t.Errorf("frames counter missing from exposition:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("go collector missing from exposition")
	}
}
