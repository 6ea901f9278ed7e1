package conversation

import (
	"context"
	"sync"

	"github.com/eleven-am/voice-widget/internal/audio"
	"github.com/eleven-am/voice-widget/internal/capture"
	"github.com/eleven-am/voice-widget/internal/connection"
	"github.com/eleven-am/voice-widget/internal/playback"
	"github.com/eleven-am/voice-widget/internal/shared"
)

type fakeTransport struct {
	mu         sync.Mutex
	state      connection.State
	sent       []any
	connects   int
	resets     int
	closes     int
	connectErr error
	cb         connection.Callbacks
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.setState(connection.StateDisconnected)
}

func (f *fakeTransport) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != connection.StateOpen {
		return shared.ErrNotOpen
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeTransport) State() connection.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) SetCallbacks(cb connection.Callbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
}

func (f *fakeTransport) setState(s connection.State) {
	f.mu.Lock()
	f.state = s
	cb := f.cb.OnStateChange
	f.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (f *fakeTransport) sentMessages() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.sent...)
}

type fakeCapture struct {
	mu      sync.Mutex
	initErr error
	inits   int
	active  bool
	stops   int
	handler capture.FrameHandler
}

func (f *fakeCapture) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeCapture) StartFrameDelivery(h capture.FrameHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = true
	f.handler = h
	return nil
}

func (f *fakeCapture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	f.handler = nil
	f.stops++
}

func (f *fakeCapture) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeCapture) emit(frame audio.Frame) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(frame)
	}
}

type fakePlayback struct {
	mu      sync.Mutex
	items   []playback.Item
	queued  int
	playing bool
	flushes int
	onStart func()
	onIdle  func()
}

func (f *fakePlayback) Enqueue(item playback.Item) {
	f.mu.Lock()
	f.items = append(f.items, item)
	f.queued++
	start := !f.playing
	f.playing = true
	onStart := f.onStart
	f.mu.Unlock()
	if start && onStart != nil {
		onStart()
	}
}

func (f *fakePlayback) Flush() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.queued
	f.queued = 0
	f.playing = false
	f.flushes++
	return n
}

func (f *fakePlayback) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakePlayback) SetCallbacks(onStart, onIdle func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onStart = onStart
	f.onIdle = onIdle
}

// finish drains the queue naturally.
func (f *fakePlayback) finish() {
	f.mu.Lock()
	f.queued = 0
	f.playing = false
	onIdle := f.onIdle
	f.mu.Unlock()
	if onIdle != nil {
		onIdle()
	}
}

func (f *fakePlayback) enqueued() []playback.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]playback.Item(nil), f.items...)
}

type historyCall struct {
	op      string
	key     string
	eventID int
	failed  bool
}

type fakeHistory struct {
	mu    sync.Mutex
	calls []historyCall
}

func (f *fakeHistory) add(c historyCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeHistory) Begin(ctx context.Context, key, agentID string) error {
	return f.add(historyCall{op: "begin", key: key})
}

func (f *fakeHistory) RecordInterruption(ctx context.Context, key string, eventID int) error {
	return f.add(historyCall{op: "interruption", key: key, eventID: eventID})
}

func (f *fakeHistory) RecordReconnect(ctx context.Context, key string) error {
	return f.add(historyCall{op: "reconnect", key: key})
}

func (f *fakeHistory) End(ctx context.Context, key string, failed bool) error {
	return f.add(historyCall{op: "end", key: key, failed: failed})
}

func (f *fakeHistory) list() []historyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]historyCall(nil), f.calls...)
}

type transcriptLine struct {
	key, role, text string
}

type fakeTranscript struct {
	mu    sync.Mutex
	lines []transcriptLine
}

func (f *fakeTranscript) Append(ctx context.Context, key, role, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, transcriptLine{key, role, text})
	return nil
}
