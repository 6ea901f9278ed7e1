package device

import (
	"context"
	"errors"
	"strings"
)

var ErrClosed = errors.New("device stream closed")

// Class selects how aggressively a lost session is retried.
type Class string

const (
	ClassDesktop Class = "desktop"
	ClassMobile  Class = "mobile"
)

func ParseClass(s string) Class {
	if strings.EqualFold(strings.TrimSpace(s), string(ClassMobile)) {
		return ClassMobile
	}
	return ClassDesktop
}

func (c Class) MaxReconnectAttempts() int {
	if c == ClassMobile {
		return 10
	}
	return 5
}

type Platform string

const (
	PlatformDesktop Platform = "desktop"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

func ParsePlatform(s string) Platform {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ios", "ipados", "iphone", "ipad":
		return PlatformIOS
	case "android":
		return PlatformAndroid
	default:
		return PlatformDesktop
	}
}

// RequiresOutputUnlock reports whether output stays muted until something
// has been played once.
func (p Platform) RequiresOutputUnlock() bool {
	return p == PlatformIOS
}

func (p Platform) DefaultClass() Class {
	if p == PlatformIOS || p == PlatformAndroid {
		return ClassMobile
	}
	return ClassDesktop
}

type InputConfig struct {
	SampleRate       int
	FramesPerBuffer  int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

func DefaultInputConfig() InputConfig {
	return InputConfig{
		SampleRate:       48000,
		FramesPerBuffer:  1024,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Backend opens physical streams. Implementations return errors wrapping
// shared.ErrPermissionDenied or shared.ErrDeviceUnavailable.
type Backend interface {
	OpenInput(cfg InputConfig) (Input, error)
	OpenOutput(sampleRate int) (Output, error)
	Close() error
}

type Input interface {
	SampleRate() int
	// Read blocks for the next device window of mono float samples.
	Read(ctx context.Context) ([]float32, error)
	Close() error
}

type Output interface {
	SampleRate() int
	Write(samples []int16) error
	Close() error
}
