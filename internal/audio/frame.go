package audio

import (
	"math"
	"time"
)

const (
	TargetSampleRate = 16000
	FrameSamples     = 2048
)

// Frame is a block of mono PCM16 samples. Frames are never mutated after
// they are handed out.
type Frame struct {
	Samples    []int16
	SampleRate int
}

func (f Frame) Bytes() []byte {
	return Int16ToBytes(f.Samples)
}

func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Level returns the RMS amplitude in [0, 1].
func (f Frame) Level() float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.Samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Min(1, math.Sqrt(sum/float64(len(f.Samples))))
}

func (f Frame) Resampled(rate int) Frame {
	if rate == f.SampleRate || rate <= 0 {
		return f
	}
	return Frame{
		Samples:    ResampleInt16(f.Samples, f.SampleRate, rate),
		SampleRate: rate,
	}
}

// Clip is a decoded, playable fragment.
type Clip struct {
	Samples    []int16
	SampleRate int
}

func (c Clip) Duration() time.Duration {
	return Frame(c).Duration()
}
