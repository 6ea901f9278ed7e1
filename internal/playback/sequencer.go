package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-widget/internal/audio"
)

type Item struct {
	EventID int
	// Audio is a WAV container.
	Audio []byte
}

type Player interface {
	Play(ctx context.Context, clip audio.Clip) error
}

type Observer interface {
	PlaybackFailed(eventID int, err error)
}

// Sequencer plays items one at a time in enqueue order.
type Sequencer struct {
	player   Player
	log      *slog.Logger
	observer Observer

	mu      sync.Mutex
	queue   []Item
	playing bool
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	onStart func()
	onIdle  func()
}

func NewSequencer(player Player, log *slog.Logger) *Sequencer {
	if log == nil {
		log = slog.Default()
	}
	return &Sequencer{
		player: player,
		log:    log.With("component", "playback"),
		queue:  make([]Item, 0),
	}
}

// SetCallbacks registers the playback started and queue drained signals.
func (s *Sequencer) SetCallbacks(onStart, onIdle func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStart = onStart
	s.onIdle = onIdle
}

func (s *Sequencer) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

func (s *Sequencer) Enqueue(item Item) {
	s.mu.Lock()
	s.queue = append(s.queue, item)
	if s.playing {
		s.mu.Unlock()
		return
	}

	s.playing = true
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	prev := s.done
	done := make(chan struct{})
	s.done = done
	onStart := s.onStart
	s.mu.Unlock()

	if onStart != nil {
		onStart()
	}
	go s.run(ctx, gen, prev, done)
}

// run drains the queue for one generation. A flushed run may still be
// returning from Play, so the next run waits for it before touching the
// device.
func (s *Sequencer) run(ctx context.Context, gen uint64, prev, done chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	for {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.playing = false
			s.cancel = nil
			onIdle := s.onIdle
			s.mu.Unlock()

			if onIdle != nil {
				onIdle()
			}
			return
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.play(ctx, item)
	}
}

func (s *Sequencer) play(ctx context.Context, item Item) {
	clip, err := audio.ParseWAV(item.Audio)
	if err != nil {
		s.log.Warn("skipping undecodable fragment", "event_id", item.EventID, "error", err)
		s.report(item.EventID, err)
		return
	}

	if err := s.player.Play(ctx, clip); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("fragment playback failed", "event_id", item.EventID, "error", err)
		s.report(item.EventID, err)
	}
}

func (s *Sequencer) report(eventID int, err error) {
	s.mu.Lock()
	o := s.observer
	s.mu.Unlock()
	if o != nil {
		o.PlaybackFailed(eventID, err)
	}
}

// Flush drops every queued item and aborts the current one. No idle signal
// is emitted. It returns the number of items discarded.
func (s *Sequencer) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := len(s.queue)
	s.queue = s.queue[:0]
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.playing = false

	if dropped > 0 {
		s.log.Debug("playback flushed", "dropped", dropped)
	}
	return dropped
}

func (s *Sequencer) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}
