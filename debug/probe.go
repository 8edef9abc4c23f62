package debug

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/stream"
	"github.com/latoulicious/TarumaeRadio/pkg/supervisor"
	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
)

// ProbeOptions configures one probe run.
type ProbeOptions struct {
	Locator string
	Codec   transcoder.Codec
	Attempt int
	Binary  string
	Profile transcoder.ProbeProfile
	// Listen is how long output is read once the process is up.
	Listen time.Duration
	Logger pipeline.Logger
}

// ProbeResult is what one transcoder run against a source looked like.
type ProbeResult struct {
	Binary      string
	Args        []string
	Kind        stream.Kind
	Audible     bool
	FirstOutput time.Duration
	Bytes       int64
	Warnings    []string
	Capability  []string
	Exited      bool
	ExitErr     error
}

// Probe runs the transcoder once against a source without Discord in the
// loop and reports how quickly audio appeared.
func Probe(ctx context.Context, opts ProbeOptions) (ProbeResult, error) {
	if opts.Attempt < 1 {
		opts.Attempt = 1
	}
	if opts.Listen <= 0 {
		opts.Listen = 10 * time.Second
	}

	src, err := stream.Classify(opts.Locator)
	if err != nil {
		return ProbeResult{}, err
	}

	binary, err := transcoder.ResolveBinary(transcoder.BinaryOptions{Configured: opts.Binary})
	if err != nil {
		return ProbeResult{}, err
	}

	launcher := transcoder.NewLauncher(transcoder.Options{Binary: binary, Probe: opts.Profile}, opts.Logger)
	req := transcoder.Request{Source: src, Codec: opts.Codec, Attempt: opts.Attempt}

	args, err := launcher.Args(req)
	if err != nil {
		return ProbeResult{}, err
	}
	res := ProbeResult{Binary: binary, Args: args, Kind: src.Kind}

	h, err := launcher.Launch(ctx, req)
	if err != nil {
		return res, fmt.Errorf("launch: %w", err)
	}

	var bytesRead atomic.Int64
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		n, _ := io.Copy(io.Discard, h.Output())
		bytesRead.Add(n)
	}()

	deadline := time.NewTimer(opts.Listen)
	defer deadline.Stop()

loop:
	for {
		select {
		case ev := <-h.Events():
			switch ev.Kind {
			case transcoder.EventData:
				if !res.Audible {
					res.Audible = true
					res.FirstOutput = ev.At.Sub(h.StartedAt())
				}
			case transcoder.EventDiagnostic:
				switch supervisor.ClassifyDiagnostic(ev.Line) {
				case supervisor.DiagnosticCapability:
					res.Capability = append(res.Capability, ev.Line)
				case supervisor.DiagnosticAdvisory:
					res.Warnings = append(res.Warnings, ev.Line)
				}
			case transcoder.EventExit:
				res.Exited = true
				res.ExitErr = ev.Err
				break loop
			}
		case <-deadline.C:
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	_ = h.Kill()
	<-readDone
	res.Bytes = bytesRead.Load()
	return res, ctx.Err()
}
