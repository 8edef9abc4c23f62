package supervisor

import (
	"fmt"
	"regexp"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/stream"
	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
)

var (
	capabilityPattern = regexp.MustCompile(`Unrecognized option|Option not found|Option \S+ not found`)
	advisoryPattern   = regexp.MustCompile(`(?i)(error|invalid|fail|timeout|timed out|403|404|denied|forbidden|not found|refused)`)
)

// DiagnosticClass tells how a transcoder stderr line is treated.
type DiagnosticClass int

const (
	DiagnosticInfo DiagnosticClass = iota
	// DiagnosticAdvisory lines are network or HTTP failures. They are logged
	// and never force a transition on their own.
	DiagnosticAdvisory
	// DiagnosticCapability lines report an option the binary does not support.
	DiagnosticCapability
)

// ClassifyDiagnostic sorts a stderr line.
func ClassifyDiagnostic(line string) DiagnosticClass {
	switch {
	case capabilityPattern.MatchString(line):
		return DiagnosticCapability
	case advisoryPattern.MatchString(line):
		return DiagnosticAdvisory
	default:
		return DiagnosticInfo
	}
}

// ActionKind is what the session must do after feeding the watchdog.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionRelaunch
	ActionFail
)

// Relaunch reasons, also used as metric labels.
const (
	ReasonStartup    = "startup_timeout"
	ReasonSilence    = "silence"
	ReasonExit       = "exit"
	ReasonSink       = "sink"
	ReasonLaunch     = "launch"
	ReasonCapability = "capability"
	ReasonFallback   = "fallback"
)

// Action is the watchdog's decision. Request is set for ActionRelaunch.
type Action struct {
	Kind    ActionKind
	Reason  string
	Err     error
	Request transcoder.Request
}

// Watchdog decides when a session's transcoder is killed and relaunched.
// It holds no timers and starts no goroutines: the session loop feeds it
// events and timer expiries and carries out the returned Action.
type Watchdog struct {
	maxRetries      int
	silence         time.Duration
	fallbackEnabled bool

	state   State
	source  stream.Source
	codec   transcoder.Codec
	attempt int
	retries int

	capabilityUsed  bool
	fallbackPending bool
	fellBack        bool
	sustained       bool

	observe func(from, to State)
}

// NewWatchdog creates an idle watchdog. observe, if set, sees every state
// transition.
func NewWatchdog(cfg Config, observe func(from, to State)) *Watchdog {
	return &Watchdog{
		maxRetries:      cfg.MaxRetries,
		silence:         cfg.SilenceThreshold,
		fallbackEnabled: !cfg.DisableFallback,
		state:           StateIdle,
		observe:         observe,
	}
}

func (w *Watchdog) State() State            { return w.state }
func (w *Watchdog) Retries() int            { return w.retries }
func (w *Watchdog) Attempt() int            { return w.attempt }
func (w *Watchdog) Codec() transcoder.Codec { return w.codec }
func (w *Watchdog) Source() stream.Source   { return w.source }

// FallbackPending reports whether the codec fallback deadline is still armed.
func (w *Watchdog) FallbackPending() bool { return w.fallbackPending }

// FellBack reports whether this activation already switched to raw output.
func (w *Watchdog) FellBack() bool { return w.fellBack }

// Request is the invocation for the current source, codec and attempt.
func (w *Watchdog) Request() transcoder.Request {
	return transcoder.Request{Source: w.source, Codec: w.codec, Attempt: w.attempt}
}

// Begin starts a new activation for src and returns the first request.
func (w *Watchdog) Begin(src stream.Source, codec transcoder.Codec) transcoder.Request {
	w.source = src
	w.codec = codec
	w.attempt = 1
	w.retries = 0
	w.capabilityUsed = false
	w.fellBack = false
	w.sustained = false
	w.fallbackPending = w.fallbackEnabled && src.IsPlaylist() && codec == transcoder.CodecCompact
	w.setState(StateStarting)
	return w.Request()
}

// NeedsStartupTimer reports whether a fresh handle gets a startup deadline.
// Raw playlists can take a while to produce their first segment and have no
// fallback to go to.
func (w *Watchdog) NeedsStartupTimer() bool {
	return !(w.source.IsPlaylist() && w.codec == transcoder.CodecRaw)
}

// OnOutput records output progress. It returns true when the stream just
// became audible, i.e. the startup deadline is void and liveness checks start.
func (w *Watchdog) OnOutput() bool {
	if w.state != StateStarting {
		return false
	}
	w.sustained = false
	w.setState(StateAudible)
	return true
}

// OnStartupTimeout handles the startup deadline.
func (w *Watchdog) OnStartupTimeout() Action {
	if w.state != StateStarting {
		return Action{}
	}
	return w.stall(ReasonStartup, fmt.Errorf("%w: no output within startup window", pipeline.ErrStallTimeout))
}

// OnLiveness handles a liveness tick. The first healthy tick after becoming
// audible confirms sustained output and clears the retry count.
func (w *Watchdog) OnLiveness(silent time.Duration) Action {
	if w.state != StateAudible {
		return Action{}
	}
	if silent > w.silence {
		return w.stall(ReasonSilence, fmt.Errorf("%w: silent for %s", pipeline.ErrStallTimeout, silent.Round(time.Millisecond)))
	}
	if !w.sustained {
		w.sustained = true
		w.retries = 0
	}
	return Action{}
}

// OnDiagnostic inspects one stderr line. Only an option rejection on the
// first playlist attempt causes a relaunch, once per activation, without
// consuming a retry.
func (w *Watchdog) OnDiagnostic(line string) Action {
	if !w.active() || ClassifyDiagnostic(line) != DiagnosticCapability {
		return Action{}
	}
	if !w.source.IsPlaylist() || w.attempt != 1 || w.capabilityUsed {
		return Action{}
	}

	w.capabilityUsed = true
	w.attempt = 2
	w.sustained = false
	w.setState(StateStarting)
	return Action{
		Kind:    ActionRelaunch,
		Reason:  ReasonCapability,
		Err:     fmt.Errorf("%w: %s", pipeline.ErrCapabilityRejected, line),
		Request: w.Request(),
	}
}

// OnExit handles the transcoder exiting while it was expected to stream.
func (w *Watchdog) OnExit(err error) Action {
	if !w.active() {
		return Action{}
	}
	return w.stall(ReasonExit, exitError(err))
}

// OnSinkError handles the playback sink rejecting the current stream.
func (w *Watchdog) OnSinkError(err error) Action {
	if !w.active() {
		return Action{}
	}
	return w.stall(ReasonSink, fmt.Errorf("%w: %v", pipeline.ErrSinkRejection, err))
}

// OnLaunchError handles a relaunch that could not be spawned.
func (w *Watchdog) OnLaunchError(err error) Action {
	if !w.active() {
		return Action{}
	}
	return w.stall(ReasonLaunch, fmt.Errorf("%w: %w", pipeline.ErrProcessExit, err))
}

// OnFallbackDeadline handles the one-shot codec fallback deadline.
func (w *Watchdog) OnFallbackDeadline() Action {
	if !w.fallbackPending {
		return Action{}
	}
	w.fallbackPending = false
	if w.state == StateAudible || !w.active() {
		return Action{}
	}

	w.fellBack = true
	w.codec = transcoder.CodecRaw
	w.attempt = 2
	w.sustained = false
	w.setState(StateFallingBack)
	w.setState(StateStarting)
	return Action{
		Kind:    ActionRelaunch,
		Reason:  ReasonFallback,
		Err:     fmt.Errorf("%w: compact output not audible in time", pipeline.ErrStallTimeout),
		Request: w.Request(),
	}
}

// Stop moves the watchdog to its terminal stopped state.
func (w *Watchdog) Stop() {
	w.fallbackPending = false
	w.setState(StateStopped)
}

func (w *Watchdog) active() bool {
	return w.state == StateStarting || w.state == StateAudible
}

func (w *Watchdog) stall(reason string, cause error) Action {
	w.setState(StateStalled)
	w.sustained = false

	if w.retries >= w.maxRetries {
		w.fallbackPending = false
		w.setState(StateFailed)
		return Action{
			Kind:   ActionFail,
			Reason: reason,
			Err:    fmt.Errorf("%w after %d retries: %w", pipeline.ErrRetryExhausted, w.retries, cause),
		}
	}

	w.retries++
	w.setState(StateRetrying)
	w.setState(StateStarting)
	return Action{Kind: ActionRelaunch, Reason: reason, Err: cause, Request: w.Request()}
}

func (w *Watchdog) setState(next State) {
	if w.state == next {
		return
	}
	prev := w.state
	w.state = next
	if w.observe != nil {
		w.observe(prev, next)
	}
}

func exitError(err error) error {
	if err == nil {
		return fmt.Errorf("%w: clean exit", pipeline.ErrProcessExit)
	}
	return fmt.Errorf("%w: %v", pipeline.ErrProcessExit, err)
}
