package supervisor

import (
	"context"
	"io"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
)

// Process is a running transcoder as the session sees it.
type Process interface {
	ID() string
	Output() io.Reader
	Container() transcoder.Container
	Events() <-chan transcoder.Event
	LastOutput() time.Time
	Diagnostics() []string
	// Kill terminates the process and blocks until its exit is observed.
	Kill() error
}

// Launcher spawns transcoder processes.
type Launcher interface {
	Launch(ctx context.Context, req transcoder.Request) (Process, error)
}

// Resolver maps user input to a playable locator.
type Resolver interface {
	Resolve(ctx context.Context, input string) (string, error)
}

// Destination identifies where a session plays.
type Destination struct {
	GuildID   string
	ChannelID string
}

// Stream is one transcoder output handed to the sink.
type Stream struct {
	ID        string
	Reader    io.Reader
	Container transcoder.Container
}

// SinkStatus is the playback state a sink reports for a stream.
type SinkStatus int

const (
	SinkPlaying SinkStatus = iota
	SinkIdle
	SinkError
)

func (s SinkStatus) String() string {
	switch s {
	case SinkPlaying:
		return "playing"
	case SinkIdle:
		return "idle"
	case SinkError:
		return "error"
	default:
		return "unknown"
	}
}

// SinkEvent reports a playback state change for the stream with StreamID.
type SinkEvent struct {
	StreamID string
	Status   SinkStatus
	Err      error
}

// Sink plays streams on a destination. Play replaces whatever was playing.
type Sink interface {
	Play(s Stream) error
	Events() <-chan SinkEvent
	Close() error
}

// Transport connects a destination and returns its sink once it is ready.
type Transport interface {
	Connect(ctx context.Context, dest Destination) (Sink, error)
}

// FromTranscoder adapts the ffmpeg launcher to the session's Launcher.
func FromTranscoder(l *transcoder.Launcher) Launcher {
	return transcoderLauncher{l: l}
}

type transcoderLauncher struct {
	l *transcoder.Launcher
}

func (t transcoderLauncher) Launch(ctx context.Context, req transcoder.Request) (Process, error) {
	h, err := t.l.Launch(ctx, req)
	if err != nil {
		return nil, err
	}
	return h, nil
}
