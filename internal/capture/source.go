package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-widget/internal/audio"
	"github.com/eleven-am/voice-widget/internal/device"
	"github.com/eleven-am/voice-widget/internal/shared"
)

const readRetryDelay = 50 * time.Millisecond

type FrameHandler func(audio.Frame)

// Source turns the shared device input into 2048-sample frames at 16 kHz.
// The device keeps streaming once acquired; the activity gate decides
// whether frames reach the handler.
type Source struct {
	registry *device.Registry
	cfg      device.InputConfig
	log      *slog.Logger

	mu      sync.Mutex
	input   device.Input
	active  bool
	handler FrameHandler
	pending []int16
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSource(registry *device.Registry, cfg device.InputConfig, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		registry: registry,
		cfg:      cfg,
		log:      log.With("component", "capture"),
	}
}

// Initialize acquires the microphone. Calling it again after success is a
// no-op.
func (s *Source) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.input != nil {
		return nil
	}

	in, err := s.registry.AcquireOnce(ctx, s.cfg)
	if err != nil {
		return err
	}
	s.input = in

	pumpCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.pump(pumpCtx, in, s.done)

	s.log.Info("capture initialized", "device_rate", in.SampleRate())
	return nil
}

func (s *Source) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input != nil
}

// StartFrameDelivery opens the gate and routes frames to handler until Stop.
func (s *Source) StartFrameDelivery(handler FrameHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.input == nil {
		return fmt.Errorf("%w: capture not initialized", shared.ErrDeviceUnavailable)
	}
	s.handler = handler
	s.pending = s.pending[:0]
	s.active = true
	return nil
}

// Stop closes the gate. The device stays acquired.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.handler = nil
	s.pending = s.pending[:0]
}

func (s *Source) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Shutdown stops the read loop. The device itself is released by the
// registry.
func (s *Source) Shutdown() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.active = false
	s.handler = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Source) pump(ctx context.Context, in device.Input, done chan struct{}) {
	defer close(done)

	for {
		window, err := in.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, device.ErrClosed) {
				return
			}
			s.log.Warn("capture read failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}
		s.deliver(window, in.SampleRate())
	}
}

func (s *Source) deliver(window []float32, rate int) {
	samples := audio.FloatToInt16(audio.Resample(window, rate, audio.TargetSampleRate))

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}

	s.pending = append(s.pending, samples...)
	var frames []audio.Frame
	for len(s.pending) >= audio.FrameSamples {
		frame := make([]int16, audio.FrameSamples)
		copy(frame, s.pending)
		frames = append(frames, audio.Frame{Samples: frame, SampleRate: audio.TargetSampleRate})
		s.pending = append(s.pending[:0], s.pending[audio.FrameSamples:]...)
	}
	handler := s.handler
	s.mu.Unlock()

	if handler == nil {
		return
	}
	for _, f := range frames {
		handler(f)
	}
}
