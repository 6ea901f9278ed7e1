package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-widget/internal/audio"
	"github.com/eleven-am/voice-widget/internal/connection"
	"github.com/eleven-am/voice-widget/internal/metrics"
	"github.com/eleven-am/voice-widget/internal/playback"
	"github.com/eleven-am/voice-widget/internal/protocol"
	"github.com/eleven-am/voice-widget/internal/shared"
)

type Config struct {
	AgentID     string
	ResumeDelay time.Duration
}

// Controller binds capture, playback and the session connection together
// and applies turn-taking and interruption policy.
type Controller struct {
	cfg      Config
	conn     Transport
	capture  Capture
	playback Playback
	metrics  *metrics.Metrics
	log      *slog.Logger
	journal  *journal

	history    History
	transcript Transcript

	mu          sync.Mutex
	session     Session
	mode        Mode
	resumeTimer *time.Timer
	callbacks   Callbacks
	pending     []func()
}

func New(cfg Config, conn Transport, capture Capture, player Playback, m *metrics.Metrics, log *slog.Logger) *Controller {
	if cfg.ResumeDelay <= 0 {
		cfg.ResumeDelay = 400 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	log = log.With("component", "conversation")

	c := &Controller{
		cfg:      cfg,
		conn:     conn,
		capture:  capture,
		playback: player,
		metrics:  m,
		log:      log,
		journal:  newJournal(log),
		mode:     ModeIdle,
		session:  newSession(),
	}

	conn.SetCallbacks(connection.Callbacks{
		OnStateChange: c.onConnectionState,
		OnEvent:       c.onEvent,
		OnError:       c.emitError,
	})
	player.SetCallbacks(c.onPlaybackStart, c.onPlaybackIdle)
	return c
}

func newSession() Session {
	return Session{
		LocalID:      shared.NewID("sess_"),
		InputFormat:  audio.DefaultFormat,
		OutputFormat: audio.DefaultFormat,
		StartedAt:    time.Now(),
	}
}

func (c *Controller) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = cb
}

func (c *Controller) AttachHistory(h History) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = h
}

func (c *Controller) AttachTranscript(t Transcript) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = t
}

// unlock releases mu and then runs the callbacks queued while it was held.
func (c *Controller) unlock() {
	fns := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Open acquires the microphone and connects. Device failures are reported
// and returned without retrying.
func (c *Controller) Open(ctx context.Context) error {
	if err := c.capture.Initialize(ctx); err != nil {
		c.log.Warn("microphone unavailable", "error", err)
		c.emitError(err)
		return err
	}

	c.mu.Lock()
	if c.conn.State() == connection.StateDisconnected && c.session.Opens > 0 {
		c.session = newSession()
	}
	c.unlock()

	if err := c.conn.Connect(ctx); err != nil {
		c.emitError(err)
		return err
	}
	return nil
}

// Retry is the manual recovery path for every user-visible failure.
func (c *Controller) Retry(ctx context.Context) error {
	c.conn.Reset()
	return c.Open(ctx)
}

// Close ends the conversation. The audio device stays acquired.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopResumeLocked()
	c.setModeLocked(ModeIdle)
	key, opened := c.session.Key(), c.session.Opens > 0
	c.unlock()

	c.capture.Stop()
	c.playback.Flush()
	c.conn.Close()

	if opened {
		c.mu.Lock()
		c.recordHistoryLocked(func(ctx context.Context, h History) error {
			return h.End(ctx, key, false)
		})
		c.unlock()
	}
}

// Shutdown closes the conversation and drains pending records.
func (c *Controller) Shutdown() {
	c.Close()
	c.journal.stop()
}

// StartListening opens the capture gate when the session is open, nothing is
// playing and capture is not already running.
func (c *Controller) StartListening() bool {
	c.mu.Lock()
	defer c.unlock()

	if c.conn.State() != connection.StateOpen || c.playback.IsPlaying() || c.capture.IsActive() {
		return false
	}
	if err := c.capture.StartFrameDelivery(c.onFrame); err != nil {
		c.log.Warn("cannot start listening", "error", err)
		c.queueErrorLocked(err)
		return false
	}

	c.stopResumeLocked()
	c.setModeLocked(ModeListening)
	return true
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:           c.conn.State(),
		Mode:            c.mode,
		LocalID:         c.session.LocalID,
		ConversationID:  c.session.ConversationID,
		LastInterruptID: c.session.LastInterruptID,
		InputFormat:     c.session.InputFormat.String(),
		OutputFormat:    c.session.OutputFormat.String(),
		Listening:       c.capture.IsActive(),
		Playing:         c.playback.IsPlaying(),
	}
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) onFrame(f audio.Frame) {
	c.mu.Lock()
	rate := c.session.InputFormat.SampleRate
	onLevel := c.callbacks.OnLevel
	c.mu.Unlock()

	if onLevel != nil {
		onLevel(f.Level())
	}

	f = f.Resampled(rate)
	if err := c.conn.Send(protocol.NewUserAudioChunk(f.Bytes())); err == nil {
		c.metrics.FramesSent.Inc()
	}
}

func (c *Controller) onConnectionState(s connection.State) {
	c.mu.Lock()
	if cb := c.callbacks.OnConnectionState; cb != nil {
		c.pending = append(c.pending, func() { cb(s) })
	}

	switch s {
	case connection.StateOpen:
		c.session.Opens++
		if c.session.Opens > 1 {
			// A fresh socket restarts event ids.
			c.session.LastInterruptID = 0
			key := c.session.Key()
			c.recordHistoryLocked(func(ctx context.Context, h History) error {
				return h.RecordReconnect(ctx, key)
			})
		}
		c.unlock()
		c.StartListening()
		return

	case connection.StateFailedPermanently:
		key := c.session.Key()
		c.recordHistoryLocked(func(ctx context.Context, h History) error {
			return h.End(ctx, key, true)
		})
	}

	c.stopResumeLocked()
	c.setModeLocked(ModeIdle)
	c.unlock()
	c.capture.Stop()
}

func (c *Controller) onEvent(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.MetadataEvent:
		c.handleMetadata(e)
	case protocol.AudioEvent:
		c.handleAudio(e)
	case protocol.InterruptionEvent:
		c.handleInterruption(e)
	case protocol.AgentResponseEvent:
		c.emitMessage(RoleAgent, e.Text)
	case protocol.UserTranscriptEvent:
		c.emitMessage(RoleUser, e.Text)
	case protocol.PingEvent:
	}
}

func (c *Controller) handleMetadata(e protocol.MetadataEvent) {
	in, err := audio.ParseFormat(e.UserInputAudioFormat)
	if err != nil {
		c.log.Warn("unsupported input format, using default", "format", e.UserInputAudioFormat, "error", err)
		in = audio.DefaultFormat
	}
	if in.Codec != audio.CodecPCM {
		c.log.Warn("endpoint expects non-pcm input, sending pcm", "format", in)
		in = audio.Format{Codec: audio.CodecPCM, SampleRate: in.SampleRate}
	}
	out, err := audio.ParseFormat(e.AgentOutputAudioFormat)
	if err != nil {
		c.log.Warn("unsupported output format, using default", "format", e.AgentOutputAudioFormat, "error", err)
		out = audio.DefaultFormat
	}

	c.mu.Lock()
	if c.session.ConversationID != e.ConversationID {
		c.session.LastInterruptID = 0
	}
	c.session.ConversationID = e.ConversationID
	c.session.InputFormat = in
	c.session.OutputFormat = out
	key, agentID := c.session.Key(), c.cfg.AgentID
	c.recordHistoryLocked(func(ctx context.Context, h History) error {
		return h.Begin(ctx, key, agentID)
	})
	c.unlock()

	c.log.Info("conversation started", "conversation_id", e.ConversationID, "input", in, "output", out)
}

// handleAudio queues a fragment unless it belongs to an interrupted turn.
func (c *Controller) handleAudio(e protocol.AudioEvent) {
	c.mu.Lock()
	boundary := c.session.LastInterruptID
	format := c.session.OutputFormat
	c.mu.Unlock()

	if e.EventID <= boundary {
		c.metrics.FragmentsStale.Inc()
		c.log.Debug("dropping stale audio", "event_id", e.EventID, "boundary", boundary)
		return
	}

	clip, err := audio.DecodeFragment(audio.DecodeBase64(e.AudioBase64), format)
	if err != nil {
		c.metrics.DecodeFailures.Inc()
		c.log.Warn("dropping undecodable audio", "event_id", e.EventID, "error", err)
		return
	}

	c.playback.Enqueue(playback.Item{
		EventID: e.EventID,
		Audio:   audio.WrapWAV(audio.Int16ToBytes(clip.Samples), clip.SampleRate),
	})
	c.metrics.FragmentsEnqueued.Inc()
}

func (c *Controller) handleInterruption(e protocol.InterruptionEvent) {
	c.metrics.Interruptions.Inc()

	c.mu.Lock()
	if e.EventID > c.session.LastInterruptID {
		c.session.LastInterruptID = e.EventID
	}
	boundary := c.session.LastInterruptID
	c.mu.Unlock()

	dropped := c.playback.Flush()
	c.metrics.PlaybackFlushed.Add(float64(dropped))
	c.log.Info("agent interrupted", "event_id", e.EventID, "boundary", boundary, "dropped", dropped)

	c.mu.Lock()
	c.setModeLocked(ModeInterrupted)
	c.scheduleResumeLocked()
	key := c.session.Key()
	c.recordHistoryLocked(func(ctx context.Context, h History) error {
		return h.RecordInterruption(ctx, key, e.EventID)
	})
	c.unlock()
}

func (c *Controller) onPlaybackStart() {
	c.capture.Stop()

	c.mu.Lock()
	c.stopResumeLocked()
	c.setModeLocked(ModeSpeaking)
	c.unlock()
}

func (c *Controller) onPlaybackIdle() {
	c.mu.Lock()
	c.scheduleResumeLocked()
	c.unlock()
}

func (c *Controller) scheduleResumeLocked() {
	c.stopResumeLocked()
	c.resumeTimer = time.AfterFunc(c.cfg.ResumeDelay, c.resume)
}

func (c *Controller) stopResumeLocked() {
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
		c.resumeTimer = nil
	}
}

func (c *Controller) resume() {
	if c.StartListening() {
		return
	}

	c.mu.Lock()
	if c.mode == ModeInterrupted && c.conn.State() != connection.StateOpen {
		c.setModeLocked(ModeIdle)
	}
	c.unlock()
}

func (c *Controller) setModeLocked(m Mode) {
	if c.mode == m {
		return
	}
	c.mode = m
	if cb := c.callbacks.OnMode; cb != nil {
		c.pending = append(c.pending, func() { cb(m) })
	}
}

func (c *Controller) emitMessage(role Role, text string) {
	c.mu.Lock()
	msg := Message{Role: role, Text: text, ConversationID: c.session.ConversationID, At: time.Now()}
	if cb := c.callbacks.OnMessage; cb != nil {
		c.pending = append(c.pending, func() { cb(msg) })
	}
	key := c.session.Key()
	if t := c.transcript; t != nil {
		c.submitLocked(func(ctx context.Context) error {
			return t.Append(ctx, key, string(role), text)
		})
	}
	c.unlock()
}

func (c *Controller) emitError(err error) {
	c.mu.Lock()
	c.queueErrorLocked(err)
	c.unlock()
}

func (c *Controller) queueErrorLocked(err error) {
	if cb := c.callbacks.OnError; cb != nil {
		c.pending = append(c.pending, func() { cb(err) })
	}
}

func (c *Controller) recordHistoryLocked(job func(ctx context.Context, h History) error) {
	if h := c.history; h != nil {
		c.submitLocked(func(ctx context.Context) error { return job(ctx, h) })
	}
}

func (c *Controller) submitLocked(job func(ctx context.Context) error) {
	c.journal.submit(func(ctx context.Context) {
		if err := job(ctx); err != nil {
			c.log.Warn("failed to persist conversation record", "error", err)
		}
	})
}
