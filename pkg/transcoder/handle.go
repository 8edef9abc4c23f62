package transcoder

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// ErrKillFailed is returned when a process survived SIGKILL past the timeout.
var ErrKillFailed = errors.New("transcoder did not exit after kill")

// EventKind discriminates the events a Handle emits.
type EventKind int

const (
	// EventData reports output progress. It is throttled; LastOutput is exact.
	EventData EventKind = iota
	// EventDiagnostic carries one line of the process's stderr.
	EventDiagnostic
	// EventExit is sent once when the process has exited.
	EventExit
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventDiagnostic:
		return "diagnostic"
	case EventExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Event is one item of a Handle's event stream.
type Event struct {
	Kind EventKind
	Line string
	Err  error
	At   time.Time
}

const (
	eventBuffer       = 64
	dataEventInterval = 250 * time.Millisecond
	diagnosticTail    = 20
	stderrDrainWait   = time.Second
)

// Handle is one running transcoder. It is owned by a single session cycle;
// nothing else reads its events or kills it.
type Handle struct {
	id        string
	req       Request
	cmd       *exec.Cmd
	stdout    *os.File
	output    *outputReader
	startedAt time.Time

	events     chan Event
	done       chan struct{}
	exited     chan struct{}
	stderrDone chan struct{}
	exitErr    error
	tail       *lineRing

	lastOutput atomic.Int64

	grace   time.Duration
	timeout time.Duration

	killOnce sync.Once
	killErr  error
}

func newHandle(id string, req Request, cmd *exec.Cmd, stdout, stderr *os.File, grace, timeout time.Duration) *Handle {
	h := &Handle{
		id:         id,
		req:        req,
		cmd:        cmd,
		stdout:     stdout,
		startedAt:  time.Now(),
		events:     make(chan Event, eventBuffer),
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
		stderrDone: make(chan struct{}),
		tail:       newLineRing(diagnosticTail),
		grace:      grace,
		timeout:    timeout,
	}
	h.output = &outputReader{h: h, r: stdout}

	go h.pumpDiagnostics(stderr)
	go h.wait()

	return h
}

// ID returns the unique handle identifier.
func (h *Handle) ID() string { return h.id }

// Request returns the invocation this handle was launched for.
func (h *Handle) Request() Request { return h.req }

// StartedAt returns the spawn time.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Pid returns the OS process id.
func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Output is the transcoded byte stream. Reading it is what counts as output
// progress for the watchdog.
func (h *Handle) Output() io.Reader { return h.output }

// Container tags Output for the sink.
func (h *Handle) Container() Container { return h.req.Codec.Container() }

// Events returns the Data | Diagnostic | Exit stream of this handle.
func (h *Handle) Events() <-chan Event { return h.events }

// LastOutput returns when output was last read, or the zero time.
func (h *Handle) LastOutput() time.Time {
	ns := h.lastOutput.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Exited is closed once the process has been reaped.
func (h *Handle) Exited() <-chan struct{} { return h.exited }

// ExitErr returns the wait error after Exited is closed.
func (h *Handle) ExitErr() error {
	<-h.exited
	return h.exitErr
}

// Diagnostics returns the most recent stderr lines.
func (h *Handle) Diagnostics() []string { return h.tail.snapshot() }

// Kill stops event delivery, terminates the process group (graceful signal,
// then forced kill after the grace window) and closes the output. It blocks
// until the process is gone and is safe to call more than once.
func (h *Handle) Kill() error {
	h.killOnce.Do(func() {
		close(h.done)
		h.killErr = terminate(h.cmd.Process, h.exited, h.grace, h.timeout)
		_ = h.stdout.Close()
	})
	return h.killErr
}

func (h *Handle) emit(ev Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

func (h *Handle) pumpDiagnostics(stderr *os.File) {
	defer close(h.stderrDone)
	defer stderr.Close()

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		h.tail.add(line)
		h.emit(Event{Kind: EventDiagnostic, Line: line, At: time.Now()})
	}
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	h.exitErr = err
	close(h.exited)

	// Let trailing stderr lines (an option rejection, say) reach the
	// consumer before the exit itself.
	select {
	case <-h.stderrDone:
	case <-time.After(stderrDrainWait):
	}

	h.emit(Event{Kind: EventExit, Err: err, At: time.Now()})
}

// outputReader records output progress as the sink reads.
type outputReader struct {
	h         *Handle
	r         io.Reader
	lastEvent atomic.Int64
	first     atomic.Bool
}

func (o *outputReader) Read(p []byte) (int, error) {
	n, err := o.r.Read(p)
	if n > 0 {
		now := time.Now()
		o.h.lastOutput.Store(now.UnixNano())

		ev := Event{Kind: EventData, At: now}
		if o.first.CompareAndSwap(false, true) {
			o.lastEvent.Store(now.UnixNano())
			o.h.emit(ev)
		} else if last := o.lastEvent.Load(); now.UnixNano()-last >= int64(dataEventInterval) &&
			o.lastEvent.CompareAndSwap(last, now.UnixNano()) {
			select {
			case o.h.events <- ev:
			default:
			}
		}
	}
	if err != nil && errors.Is(err, os.ErrClosed) {
		err = io.EOF
	}
	return n, err
}
