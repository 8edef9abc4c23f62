// Package transcoder builds and spawns the ffmpeg process that turns a radio
// source into an audio byte stream for the voice sink.
package transcoder

import (
	"fmt"
	"strings"

	"github.com/latoulicious/TarumaeRadio/pkg/stream"
)

// Codec selects the transcoder output encoding.
type Codec int

const (
	// CodecCompact is Opus in an Ogg container, streamed page by page.
	CodecCompact Codec = iota
	// CodecRaw is interleaved s16le stereo PCM at 48 kHz without framing.
	CodecRaw
)

func (c Codec) String() string {
	switch c {
	case CodecCompact:
		return "compact"
	case CodecRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// ParseCodec accepts the names used in configuration.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "compact", "opus", "ogg":
		return CodecCompact, nil
	case "raw", "pcm", "s16le":
		return CodecRaw, nil
	default:
		return CodecCompact, fmt.Errorf("unknown codec %q", s)
	}
}

// Container tags an output stream so the sink can pick its decode path.
type Container int

const (
	ContainerOggOpus Container = iota
	ContainerRawPCM
)

func (c Container) String() string {
	if c == ContainerRawPCM {
		return "raw-pcm"
	}
	return "ogg-opus"
}

// Container returns the framing produced for the codec.
func (c Codec) Container() Container {
	if c == CodecRaw {
		return ContainerRawPCM
	}
	return ContainerOggOpus
}

// Request describes one transcoder invocation. Attempt 1 may carry the
// advanced live-playlist flags; later attempts never do.
type Request struct {
	Source  stream.Source
	Codec   Codec
	Attempt int
}

// UsesAdvancedFlags reports whether the invocation adds live-playlist hints.
func (r Request) UsesAdvancedFlags() bool {
	return r.Source.IsPlaylist() && r.Attempt <= 1
}
