package shared

import (
	"time"

	"github.com/google/uuid"
)

func NewID(prefix string) string {
	return prefix + uuid.NewString()
}

type BackoffConfig struct {
	Initial     time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Delay returns min(MaxDelay, 2^attempt * Initial).
func (b BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return b.MaxDelay
	}
	d := b.Initial * time.Duration(1<<attempt)
	if b.MaxDelay > 0 && d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}
