package device

import (
	"context"
	"fmt"

	"github.com/eleven-am/voice-widget/internal/audio"
	"github.com/eleven-am/voice-widget/internal/shared"
)

// Speaker plays clips on registry outputs in 20 ms chunks so a cancelled
// context stops playback almost immediately.
type Speaker struct {
	registry *Registry
}

func NewSpeaker(registry *Registry) *Speaker {
	return &Speaker{registry: registry}
}

func (s *Speaker) Play(ctx context.Context, clip audio.Clip) error {
	if clip.SampleRate <= 0 {
		return fmt.Errorf("%w: invalid sample rate %d", shared.ErrPlayback, clip.SampleRate)
	}

	out, err := s.registry.Output(clip.SampleRate)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPlayback, err)
	}

	chunk := max(clip.SampleRate/50, 1)
	for off := 0; off < len(clip.Samples); off += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+chunk, len(clip.Samples))
		if err := out.Write(clip.Samples[off:end]); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrPlayback, err)
		}
	}
	return nil
}
