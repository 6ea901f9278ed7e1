package device

import (
	"context"
	"sync"
)

// MemoryBackend is a headless backend. Input windows are supplied through
// Feed and everything written to outputs is retained.
type MemoryBackend struct {
	rate int
	feed chan []float32

	mu           sync.Mutex
	openErr      error
	inputsOpened int
	written      map[int][]int16
	writes       map[int]int
}

func NewMemoryBackend(inputRate int) *MemoryBackend {
	if inputRate <= 0 {
		inputRate = DefaultInputConfig().SampleRate
	}
	return &MemoryBackend{
		rate:    inputRate,
		feed:    make(chan []float32, 256),
		written: make(map[int][]int16),
		writes:  make(map[int]int),
	}
}

func (b *MemoryBackend) Feed(samples []float32) {
	b.feed <- samples
}

// FailWith makes subsequent OpenInput calls return err.
func (b *MemoryBackend) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr = err
}

func (b *MemoryBackend) InputsOpened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputsOpened
}

func (b *MemoryBackend) Written(sampleRate int) []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int16(nil), b.written[sampleRate]...)
}

func (b *MemoryBackend) Writes(sampleRate int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes[sampleRate]
}

func (b *MemoryBackend) OpenInput(cfg InputConfig) (Input, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.inputsOpened++
	return &memoryInput{backend: b, done: make(chan struct{})}, nil
}

func (b *MemoryBackend) OpenOutput(sampleRate int) (Output, error) {
	return &memoryOutput{backend: b, rate: sampleRate}, nil
}

func (b *MemoryBackend) Close() error { return nil }

type memoryInput struct {
	backend *MemoryBackend
	once    sync.Once
	done    chan struct{}
}

func (in *memoryInput) SampleRate() int { return in.backend.rate }

func (in *memoryInput) Read(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-in.done:
		return nil, ErrClosed
	case samples := <-in.backend.feed:
		return samples, nil
	}
}

func (in *memoryInput) Close() error {
	in.once.Do(func() { close(in.done) })
	return nil
}

type memoryOutput struct {
	backend *MemoryBackend
	rate    int
}

func (out *memoryOutput) SampleRate() int { return out.rate }

func (out *memoryOutput) Write(samples []int16) error {
	b := out.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.written[out.rate] = append(b.written[out.rate], samples...)
	b.writes[out.rate]++
	return nil
}

func (out *memoryOutput) Close() error { return nil }
