package transcoder

import (
	"fmt"
	"strings"

	"github.com/latoulicious/TarumaeRadio/pkg/stream"
)

// ProbeProfile trades start latency against stream detection robustness.
type ProbeProfile string

const (
	// ProbeFastStart probes little input so audio starts quickly. Slow
	// sources are more likely to trip the startup timer.
	ProbeFastStart ProbeProfile = "fast"
	// ProbeRobust reads more input before deciding stream parameters.
	ProbeRobust ProbeProfile = "robust"
)

// ParseProbeProfile accepts "fast" or "robust".
func ParseProbeProfile(s string) (ProbeProfile, error) {
	switch ProbeProfile(strings.ToLower(strings.TrimSpace(s))) {
	case ProbeFastStart, "":
		return ProbeFastStart, nil
	case ProbeRobust:
		return ProbeRobust, nil
	default:
		return ProbeFastStart, fmt.Errorf("unknown probe profile %q", s)
	}
}

func (p ProbeProfile) args() []string {
	if p == ProbeRobust {
		return []string{"-analyzeduration", "5000000", "-probesize", "1M"}
	}
	return []string{"-analyzeduration", "2000000", "-probesize", "256k"}
}

const (
	// allowedPlaylistProtocols keeps playlists from pulling in other handlers.
	allowedPlaylistProtocols = "file,crypto,tcp,http,https,tls"
	livePlaylistFlags        = "+live+append_list+ignore_length+omit_endlist"

	// OutputSampleRate and OutputChannels describe the raw PCM output.
	OutputSampleRate = 48000
	OutputChannels   = 2
)

// BuildArgs returns the full ffmpeg argument list for req.
func BuildArgs(req Request, headers stream.Headers, probe ProbeProfile) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "warning",
		"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_at_eof", "1",
		"-reconnect_delay_max", "5",
		"-rw_timeout", "15000000",
	}
	args = append(args, probe.args()...)
	args = append(args, "-headers", headers.String())

	if req.Source.IsPlaylist() {
		args = append(args,
			"-protocol_whitelist", allowedPlaylistProtocols,
			"-ignore_io_errors", "1",
		)
		if req.UsesAdvancedFlags() {
			args = append(args, "-playlist_flags", livePlaylistFlags)
		}
	}

	args = append(args,
		"-i", req.Source.Locator,
		"-fflags", "+genpts+discardcorrupt",
		"-vn", "-sn", "-dn",
	)

	switch req.Codec {
	case CodecRaw:
		args = append(args,
			"-acodec", "pcm_s16le",
			"-f", "s16le",
			"-ar", fmt.Sprint(OutputSampleRate),
			"-ac", fmt.Sprint(OutputChannels),
			"pipe:1",
		)
	default:
		// One 20ms Opus packet per Ogg page so pages map onto voice frames.
		args = append(args,
			"-c:a", "libopus", "-b:a", "128k", "-vbr", "on",
			"-compression_level", "10",
			"-frame_duration", "20", "-page_duration", "20000",
			"-ar", fmt.Sprint(OutputSampleRate), "-ac", fmt.Sprint(OutputChannels),
			"-f", "ogg", "pipe:1",
		)
	}

	return args
}
