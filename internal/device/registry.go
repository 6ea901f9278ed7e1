package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-widget/internal/audio"
	"github.com/eleven-am/voice-widget/internal/shared"
)

// Registry is the single owner of the process audio devices. The input is
// acquired at most once and stays open until Release.
type Registry struct {
	backend  Backend
	platform Platform
	log      *slog.Logger

	mu       sync.Mutex
	input    Input
	outputs  map[int]Output
	released bool
	unlock   sync.Once
}

func NewRegistry(backend Backend, platform Platform, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		backend:  backend,
		platform: platform,
		log:      log.With("component", "device_registry"),
		outputs:  make(map[int]Output),
	}
}

func (r *Registry) AcquireOnce(ctx context.Context, cfg InputConfig) (Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return nil, fmt.Errorf("%w: registry released", shared.ErrDeviceUnavailable)
	}
	if r.input != nil {
		r.log.Debug("input already acquired")
		return r.input, nil
	}

	in, err := r.backend.OpenInput(cfg)
	if err != nil {
		if errors.Is(err, shared.ErrPermissionDenied) || errors.Is(err, shared.ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrDeviceUnavailable, err)
	}
	r.input = in
	r.log.Info("input acquired", "sample_rate", in.SampleRate())

	if r.platform.RequiresOutputUnlock() {
		r.unlock.Do(r.unlockOutputLocked)
	}
	return in, nil
}

func (r *Registry) unlockOutputLocked() {
	out, err := r.outputLocked(audio.TargetSampleRate)
	if err != nil {
		r.log.Warn("output unlock failed", "error", err)
		return
	}
	if err := out.Write([]int16{0}); err != nil {
		r.log.Warn("output unlock write failed", "error", err)
		return
	}
	r.log.Debug("output unlocked", "platform", r.platform)
}

func (r *Registry) Acquired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.input != nil
}

// Output returns the cached output stream for sampleRate, opening it on
// first use.
func (r *Registry) Output(sampleRate int) (Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, fmt.Errorf("%w: registry released", shared.ErrDeviceUnavailable)
	}
	return r.outputLocked(sampleRate)
}

func (r *Registry) outputLocked(sampleRate int) (Output, error) {
	if out, ok := r.outputs[sampleRate]; ok {
		return out, nil
	}
	out, err := r.backend.OpenOutput(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: output %d Hz: %v", shared.ErrDeviceUnavailable, sampleRate, err)
	}
	r.outputs[sampleRate] = out
	return out, nil
}

// Release closes every stream and the backend. Only called at process
// teardown.
func (r *Registry) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil
	}
	r.released = true

	var errs []error
	if r.input != nil {
		errs = append(errs, r.input.Close())
		r.input = nil
	}
	for rate, out := range r.outputs {
		errs = append(errs, out.Close())
		delete(r.outputs, rate)
	}
	errs = append(errs, r.backend.Close())

	r.log.Info("devices released")
	return errors.Join(errs...)
}
