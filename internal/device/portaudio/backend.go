// Package portaudio drives the local sound card through PortAudio.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-widget/internal/device"
	"github.com/eleven-am/voice-widget/internal/shared"
	"github.com/gordonklaus/portaudio"
)

type Backend struct {
	log *slog.Logger

	mu          sync.Mutex
	initialized bool
}

func New(log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{log: log.With("component", "portaudio")}
}

func (b *Backend) ensureInitialized() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: portaudio init: %v", shared.ErrDeviceUnavailable, err)
	}
	b.initialized = true
	return nil
}

func (b *Backend) OpenInput(cfg device.InputConfig) (device.Input, error) {
	if err := b.ensureInitialized(); err != nil {
		return nil, err
	}

	if cfg.EchoCancellation || cfg.NoiseSuppression || cfg.AutoGainControl {
		b.log.Debug("input processing not supported by portaudio, capturing raw",
			"echo_cancellation", cfg.EchoCancellation,
			"noise_suppression", cfg.NoiseSuppression,
			"auto_gain", cfg.AutoGainControl)
	}

	buffer := make([]float32, cfg.FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), len(buffer), buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: open input: %v", shared.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: start input: %v", shared.ErrDeviceUnavailable, err)
	}

	return &input{stream: stream, buffer: buffer, rate: cfg.SampleRate, log: b.log}, nil
}

func (b *Backend) OpenOutput(sampleRate int) (device.Output, error) {
	if err := b.ensureInitialized(); err != nil {
		return nil, err
	}

	buffer := make([]int16, sampleRate/50)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(buffer), buffer)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start output: %w", err)
	}

	return &output{stream: stream, buffer: buffer, rate: sampleRate}, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil
	}
	b.initialized = false
	return portaudio.Terminate()
}

type input struct {
	stream *portaudio.Stream
	buffer []float32
	rate   int
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (in *input) SampleRate() int { return in.rate }

func (in *input) Read(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil, device.ErrClosed
	}

	if err := in.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, err
		}
		in.log.Debug("input overflowed")
	}

	out := make([]float32, len(in.buffer))
	copy(out, in.buffer)
	return out, nil
}

func (in *input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}
	in.closed = true
	in.stream.Stop()
	return in.stream.Close()
}

type output struct {
	stream *portaudio.Stream
	buffer []int16
	rate   int

	mu sync.Mutex
}

func (out *output) SampleRate() int { return out.rate }

// Write blocks until the samples have been handed to the device, padding
// the final buffer with silence.
func (out *output) Write(samples []int16) error {
	out.mu.Lock()
	defer out.mu.Unlock()

	for len(samples) > 0 {
		n := copy(out.buffer, samples)
		clear(out.buffer[n:])
		samples = samples[n:]
		if err := out.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return err
		}
	}
	return nil
}

func (out *output) Close() error {
	out.mu.Lock()
	defer out.mu.Unlock()
	out.stream.Stop()
	return out.stream.Close()
}
