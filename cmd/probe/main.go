package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/latoulicious/TarumaeRadio/debug"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
)

func main() {
	locator := flag.String("url", "", "Stream URL or .m3u8 playlist to probe")
	codec := flag.String("codec", "opus", "Output codec: opus or pcm")
	attempt := flag.Int("attempt", 1, "Attempt number (1 adds live playlist flags)")
	binary := flag.String("ffmpeg", os.Getenv("FFMPEG_BIN"), "ffmpeg binary")
	profile := flag.String("probe", "fast", "Probe profile: fast or robust")
	listen := flag.Duration("listen", 10*time.Second, "How long to read output")
	verbose := flag.Bool("v", false, "Log transcoder activity")
	flag.Parse()

	if *locator == "" {
		fmt.Fprintln(os.Stderr, "usage: probe -url <stream url> [-codec opus|pcm] [-listen 10s]")
		os.Exit(2)
	}

	c, err := transcoder.ParseCodec(*codec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(2)
	}
	p, err := transcoder.ParseProbeProfile(*profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(2)
	}

	logger := pipeline.NullLogger()
	if *verbose {
		logger = pipeline.NewStructuredLogger(pipeline.LoggingConfig{Level: "debug", Format: "console", Output: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Probing %s (%s)...\n", *locator, c)
	res, err := debug.Probe(ctx, debug.ProbeOptions{
		Locator: *locator,
		Codec:   c,
		Attempt: *attempt,
		Binary:  *binary,
		Profile: p,
		Listen:  *listen,
		Logger:  logger,
	})
	if res.Binary != "" {
		fmt.Printf("FFmpeg:   %s\n", res.Binary)
		fmt.Printf("Args:     %s\n", strings.Join(res.Args, " "))
		fmt.Printf("Kind:     %s\n", res.Kind)
	}
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	if res.Audible {
		fmt.Printf("✅ First audio after %s, %d bytes read\n", res.FirstOutput.Round(time.Millisecond), res.Bytes)
	} else {
		fmt.Println("❌ No audio")
	}
	for _, line := range res.Capability {
		fmt.Printf("⚠️  Unsupported option: %s\n", line)
	}
	for _, line := range res.Warnings {
		fmt.Printf("⚠️  %s\n", line)
	}
	if res.Exited {
		fmt.Printf("Process exited: %v\n", res.ExitErr)
	}
	if !res.Audible {
		os.Exit(1)
	}
}
