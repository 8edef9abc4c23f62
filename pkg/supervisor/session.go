package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/stream"
	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
)

// Status is a point-in-time view of a session.
type Status struct {
	GuildID       string
	ChannelID     string
	State         State
	Source        string
	Kind          stream.Kind
	Codec         transcoder.Codec
	Attempt       int
	Retries       int
	HandleID      string
	Launches      int
	FallbackArmed bool
	FellBack      bool
	Err           error
	UpdatedAt     time.Time
}

type commandKind int

const (
	cmdPlay commandKind = iota
	cmdStop
)

type command struct {
	kind   commandKind
	source stream.Source
	codec  transcoder.Codec
	reply  chan error
}

// cycle is one transcoder handle together with the timers that watch it.
// Its timers are stopped before the handle is killed and never outlive it.
type cycle struct {
	proc     Process
	startup  *time.Timer
	liveness *time.Ticker
	lastData time.Time
}

func (c *cycle) events() <-chan transcoder.Event {
	if c == nil {
		return nil
	}
	return c.proc.Events()
}

func (c *cycle) startupC() <-chan time.Time {
	if c == nil || c.startup == nil {
		return nil
	}
	return c.startup.C
}

func (c *cycle) livenessC() <-chan time.Time {
	if c == nil || c.liveness == nil {
		return nil
	}
	return c.liveness.C
}

func (c *cycle) silentFor(now time.Time) time.Duration {
	last := c.proc.LastOutput()
	if c.lastData.After(last) {
		last = c.lastData
	}
	return now.Sub(last)
}

func (c *cycle) stopTimers() {
	if c.startup != nil {
		c.startup.Stop()
		c.startup = nil
	}
	if c.liveness != nil {
		c.liveness.Stop()
		c.liveness = nil
	}
}

// Session supervises playback on one destination. A single goroutine owns
// the watchdog, the current cycle and the fallback timer; other goroutines
// talk to it through commands and read Status snapshots.
type Session struct {
	dest      Destination
	sink      Sink
	launcher  Launcher
	cfg       Config
	logger    pipeline.Logger
	metrics   pipeline.MetricsCollector
	onFailure func(Status)
	release   func(*Session)

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan command
	done   chan struct{}

	mu     sync.RWMutex
	status Status

	// Owned by run.
	wd       *Watchdog
	cur      *cycle
	fallback *time.Timer
	launches int
	lastErr  error
}

type sessionDeps struct {
	launcher  Launcher
	cfg       Config
	logger    pipeline.Logger
	metrics   pipeline.MetricsCollector
	onFailure func(Status)
	release   func(*Session)
}

func newSession(dest Destination, sink Sink, deps sessionDeps) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		dest:      dest,
		sink:      sink,
		launcher:  deps.launcher,
		cfg:       deps.cfg,
		logger:    deps.logger.With(pipeline.String("guild", dest.GuildID)),
		metrics:   deps.metrics,
		onFailure: deps.onFailure,
		release:   deps.release,
		ctx:       ctx,
		cancel:    cancel,
		cmds:      make(chan command),
		done:      make(chan struct{}),
	}
	s.wd = NewWatchdog(deps.cfg, s.observe)
	s.status = Status{GuildID: dest.GuildID, ChannelID: dest.ChannelID, State: StateIdle, UpdatedAt: time.Now()}

	go s.run()
	return s
}

// Destination returns where this session plays.
func (s *Session) Destination() Destination { return s.dest }

// Done is closed once the session has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Play supersedes whatever the session is doing and starts src with codec.
// It returns once the first transcoder has been launched or handed to the
// retry path. If every launch failed before that, it returns the terminal
// error and the session is already FAILED.
func (s *Session) Play(src stream.Source, codec transcoder.Codec) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- command{kind: cmdPlay, source: src, codec: codec, reply: reply}:
	case <-s.done:
		return pipeline.ErrSessionStopped
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return pipeline.ErrSessionStopped
	}
}

// Stop kills the transcoder, cancels every timer, closes the sink and
// removes the session from its registry. Stopping a stopped session is a no-op.
func (s *Session) Stop() {
	select {
	case s.cmds <- command{kind: cmdStop}:
	case <-s.done:
	}
	<-s.done
}

func (s *Session) run() {
	defer close(s.done)

	sinkEvents := s.sink.Events()
	for {
		select {
		case cmd := <-s.cmds:
			switch cmd.kind {
			case cmdPlay:
				s.play(cmd.source, cmd.codec)
				if s.wd.State() == StateFailed {
					cmd.reply <- s.lastErr
				} else {
					cmd.reply <- nil
				}
			case cmdStop:
				s.teardown()
				return
			}

		case ev := <-s.cur.events():
			s.handleEvent(ev)

		case <-s.cur.startupC():
			s.cur.startup = nil
			s.apply(s.wd.OnStartupTimeout())

		case now := <-s.cur.livenessC():
			s.apply(s.wd.OnLiveness(s.cur.silentFor(now)))

		case <-s.fallbackC():
			s.fallback = nil
			s.apply(s.wd.OnFallbackDeadline())

		case ev, ok := <-sinkEvents:
			if !ok {
				sinkEvents = nil
				continue
			}
			s.handleSink(ev)
		}
		s.publish()
	}
}

func (s *Session) play(src stream.Source, codec transcoder.Codec) {
	s.endCycle()
	s.stopFallback()
	s.lastErr = nil

	req := s.wd.Begin(src, codec)
	if s.wd.FallbackPending() {
		s.fallback = time.NewTimer(s.cfg.FallbackDelay)
	}

	s.logger.Info("Session playing",
		pipeline.String("source", src.Locator),
		pipeline.String("kind", src.Kind.String()),
		pipeline.String("codec", codec.String()),
		pipeline.Bool("fallback_armed", s.wd.FallbackPending()),
	)

	if err := s.launch(req); err != nil {
		s.apply(s.wd.OnLaunchError(err))
	}
	s.publish()
}

func (s *Session) teardown() {
	s.endCycle()
	s.stopFallback()
	s.wd.Stop()
	s.cancel()

	if err := s.sink.Close(); err != nil {
		s.logger.Warn("Failed to close sink", pipeline.Error(err))
	}
	s.publish()
	s.logger.Info("Session stopped", pipeline.Int("launches", s.launches))

	if s.release != nil {
		s.release(s)
	}
}

func (s *Session) handleEvent(ev transcoder.Event) {
	switch ev.Kind {
	case transcoder.EventData:
		s.cur.lastData = ev.At
		if s.wd.OnOutput() {
			if s.cur.startup != nil {
				s.cur.startup.Stop()
				s.cur.startup = nil
			}
			s.cur.liveness = time.NewTicker(s.cfg.LivenessInterval)
			s.logger.Info("Stream audible",
				pipeline.String("handle", s.cur.proc.ID()),
				pipeline.Int("retries", s.wd.Retries()),
			)
		}

	case transcoder.EventDiagnostic:
		fields := []pipeline.Field{
			pipeline.String("handle", s.cur.proc.ID()),
			pipeline.String("line", ev.Line),
		}
		switch ClassifyDiagnostic(ev.Line) {
		case DiagnosticCapability, DiagnosticAdvisory:
			s.logger.Warn("Transcoder diagnostic", fields...)
		default:
			s.logger.Debug("Transcoder diagnostic", fields...)
		}
		s.apply(s.wd.OnDiagnostic(ev.Line))

	case transcoder.EventExit:
		s.logger.Warn("Transcoder exited",
			pipeline.String("handle", s.cur.proc.ID()),
			pipeline.Error(ev.Err),
			pipeline.Any("diagnostics", s.cur.proc.Diagnostics()),
		)
		s.apply(s.wd.OnExit(ev.Err))
	}
}

func (s *Session) handleSink(ev SinkEvent) {
	if s.cur == nil || ev.StreamID != s.cur.proc.ID() {
		s.logger.Debug("Ignoring sink event for superseded stream",
			pipeline.String("stream", ev.StreamID),
			pipeline.String("status", ev.Status.String()),
		)
		return
	}

	switch ev.Status {
	case SinkError:
		s.logger.Warn("Sink rejected stream", pipeline.String("stream", ev.StreamID), pipeline.Error(ev.Err))
		s.apply(s.wd.OnSinkError(ev.Err))
	default:
		s.logger.Debug("Sink status", pipeline.String("stream", ev.StreamID), pipeline.String("status", ev.Status.String()))
	}
}

// apply carries out a watchdog decision. A relaunch that cannot be spawned
// is fed back as a failure until the watchdog settles.
func (s *Session) apply(act Action) {
	for {
		switch act.Kind {
		case ActionNone:
			return

		case ActionFail:
			s.endCycle()
			s.stopFallback()
			s.lastErr = act.Err
			s.metrics.RecordError(act.Err)
			s.logger.Error("Session failed",
				pipeline.String("reason", act.Reason),
				pipeline.String("category", pipeline.Classify(act.Err).Category.String()),
				pipeline.Int("retries", s.wd.Retries()),
				pipeline.Error(act.Err),
			)
			s.publish()
			if s.onFailure != nil {
				s.onFailure(s.Status())
			}
			return

		case ActionRelaunch:
			s.metrics.RecordRelaunch(act.Reason)
			s.metrics.RecordError(act.Err)
			s.logger.Warn("Relaunching transcoder",
				pipeline.String("reason", act.Reason),
				pipeline.Int("retries", s.wd.Retries()),
				pipeline.Int("attempt", act.Request.Attempt),
				pipeline.String("codec", act.Request.Codec.String()),
				pipeline.Bool("retryable", pipeline.IsRetryable(act.Err)),
				pipeline.Error(act.Err),
			)

			s.endCycle()
			err := s.launch(act.Request)
			if err == nil {
				return
			}
			act = s.wd.OnLaunchError(err)
		}
	}
}

// launch starts a new cycle. The previous one must already be ended.
func (s *Session) launch(req transcoder.Request) error {
	proc, err := s.launcher.Launch(s.ctx, req)
	if err != nil {
		s.logger.Error("Failed to launch transcoder", pipeline.Error(err))
		return err
	}
	s.launches++
	s.metrics.RecordLaunch(req.Codec.String(), req.Source.Kind.String())

	c := &cycle{proc: proc}
	if s.wd.NeedsStartupTimer() {
		c.startup = time.NewTimer(s.cfg.StartupTimeout)
	}
	s.cur = c

	if err := s.sink.Play(Stream{ID: proc.ID(), Reader: proc.Output(), Container: proc.Container()}); err != nil {
		s.endCycle()
		return fmt.Errorf("%w: %w", pipeline.ErrSinkRejection, err)
	}
	return nil
}

// endCycle stops the current cycle's timers and kills its handle. Kill
// returns only after the process exit was observed.
func (s *Session) endCycle() {
	if s.cur == nil {
		return
	}
	c := s.cur
	s.cur = nil
	c.stopTimers()
	if err := c.proc.Kill(); err != nil {
		s.logger.Error("Failed to kill transcoder", pipeline.String("handle", c.proc.ID()), pipeline.Error(err))
	}
}

func (s *Session) fallbackC() <-chan time.Time {
	if s.fallback == nil {
		return nil
	}
	return s.fallback.C
}

func (s *Session) stopFallback() {
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
}

func (s *Session) observe(from, to State) {
	s.metrics.RecordStateChange(from.String(), to.String())
	s.logger.Debug("Session state changed", pipeline.String("from", from.String()), pipeline.String("to", to.String()))
}

func (s *Session) publish() {
	src := s.wd.Source()
	st := Status{
		GuildID:       s.dest.GuildID,
		ChannelID:     s.dest.ChannelID,
		State:         s.wd.State(),
		Source:        src.Locator,
		Kind:          src.Kind,
		Codec:         s.wd.Codec(),
		Attempt:       s.wd.Attempt(),
		Retries:       s.wd.Retries(),
		Launches:      s.launches,
		FallbackArmed: s.fallback != nil,
		FellBack:      s.wd.FellBack(),
		Err:           s.lastErr,
		UpdatedAt:     time.Now(),
	}
	if s.cur != nil {
		st.HandleID = s.cur.proc.ID()
	}

	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}
