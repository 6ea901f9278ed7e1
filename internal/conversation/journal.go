package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	journalBuffer  = 128
	journalTimeout = 5 * time.Second
)

// journal runs persistence jobs in submission order off the audio path.
// When the buffer is full records are dropped.
type journal struct {
	jobs chan func(context.Context)
	log  *slog.Logger
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newJournal(log *slog.Logger) *journal {
	j := &journal{
		jobs: make(chan func(context.Context), journalBuffer),
		log:  log,
		done: make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *journal) submit(job func(context.Context)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.jobs <- job:
	default:
		j.log.Warn("journal buffer full, dropping record")
	}
}

func (j *journal) run() {
	defer close(j.done)
	for job := range j.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		job(ctx)
		cancel()
	}
}

func (j *journal) stop() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.jobs)
	}
	j.mu.Unlock()
	<-j.done
}
