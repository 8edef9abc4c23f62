package transcoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/stream"
)

// Options configures a Launcher.
type Options struct {
	Binary      string
	Probe       ProbeProfile
	KillGrace   time.Duration
	KillTimeout time.Duration
}

// Launcher spawns transcoder processes.
type Launcher struct {
	binary      string
	probe       ProbeProfile
	killGrace   time.Duration
	killTimeout time.Duration
	logger      pipeline.Logger
}

// NewLauncher creates a launcher for an already resolved binary.
func NewLauncher(opts Options, logger pipeline.Logger) *Launcher {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	if opts.Probe == "" {
		opts.Probe = ProbeFastStart
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = 400 * time.Millisecond
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = 2 * time.Second
	}
	return &Launcher{
		binary:      opts.Binary,
		probe:       opts.Probe,
		killGrace:   opts.KillGrace,
		killTimeout: opts.KillTimeout,
		logger:      logger.With(pipeline.String("component", "launcher")),
	}
}

// Binary returns the ffmpeg path in use.
func (l *Launcher) Binary() string { return l.binary }

// Args returns the argument list Launch would use for req.
func (l *Launcher) Args(req Request) ([]string, error) {
	headers, err := stream.HeadersFor(req.Source.Locator)
	if err != nil {
		return nil, err
	}
	return BuildArgs(req, headers, l.probe), nil
}

// Launch spawns ffmpeg for req. Nothing is written to its stdin.
func (l *Launcher) Launch(ctx context.Context, req Request) (*Handle, error) {
	args, err := l.Args(req)
	if err != nil {
		return nil, err
	}
	return l.spawn(ctx, l.binary, args, req)
}

func (l *Launcher) spawn(ctx context.Context, name string, args []string, req Request) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	cmd := exec.Command(name, args...)
	cmd.Stdin = nil
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	setProcessGroup(cmd)

	startErr := cmd.Start()
	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()
	if startErr != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, fmt.Errorf("start %s: %w", name, startErr)
	}

	h := newHandle(uuid.NewString(), req, cmd, stdoutR, stderrR, l.killGrace, l.killTimeout)

	l.logger.Info("Transcoder started",
		pipeline.String("handle", h.ID()),
		pipeline.Int("pid", h.Pid()),
		pipeline.String("source", req.Source.Locator),
		pipeline.String("kind", req.Source.Kind.String()),
		pipeline.String("codec", req.Codec.String()),
		pipeline.Int("attempt", req.Attempt),
	)
	l.logger.Debug("Transcoder arguments", pipeline.Any("args", args))

	return h, nil
}
