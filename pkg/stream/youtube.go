package stream

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// IsYouTubeURL checks if a URL appears to be from YouTube
func IsYouTubeURL(urlStr string) bool {
	u, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

// ExtractYouTubeVideoID extracts the video ID from a YouTube URL
func ExtractYouTubeVideoID(youtubeURL string) string {
	u, err := url.Parse(strings.TrimSpace(youtubeURL))
	if err != nil {
		return ""
	}

	if strings.EqualFold(u.Hostname(), "youtu.be") {
		return strings.Trim(u.Path, "/")
	}
	if id := u.Query().Get("v"); id != "" {
		return id
	}
	for _, prefix := range []string{"/embed/", "/live/", "/shorts/"} {
		if strings.HasPrefix(u.Path, prefix) {
			return strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
		}
	}
	return ""
}

// videoClient is the part of the youtube client the resolver uses.
type videoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

// Resolver turns page locators into something the transcoder can open.
// Plain stream URLs pass through unchanged.
type Resolver struct {
	client videoClient
	logger pipeline.Logger
}

// NewResolver creates a resolver backed by the YouTube client.
func NewResolver(logger pipeline.Logger) *Resolver {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Resolver{
		client: &youtube.Client{},
		logger: logger.With(pipeline.String("component", "resolver")),
	}
}

// Resolve returns the playable locator for input. Live YouTube videos resolve
// to their HLS manifest so they are supervised as playlists.
func (r *Resolver) Resolve(ctx context.Context, input string) (string, error) {
	if !IsYouTubeURL(input) {
		return input, nil
	}

	id := ExtractYouTubeVideoID(input)
	if id == "" {
		return "", pipeline.Wrapf(pipeline.ErrInvalidLocator, "no video id in %q", input)
	}

	video, err := r.client.GetVideoContext(ctx, id)
	if err != nil {
		return "", fmt.Errorf("youtube lookup %s: %w", id, err)
	}

	if video.HLSManifestURL != "" {
		r.logger.Info("Resolved live video to playlist",
			pipeline.String("video_id", id),
			pipeline.String("title", video.Title),
		)
		return video.HLSManifestURL, nil
	}

	format := bestAudioFormat(video.Formats)
	if format == nil {
		return "", fmt.Errorf("youtube %s: no audio format", id)
	}

	streamURL, err := r.client.GetStreamURLContext(ctx, video, format)
	if err != nil {
		return "", fmt.Errorf("youtube stream url %s: %w", id, err)
	}

	r.logger.Info("Resolved video to audio stream",
		pipeline.String("video_id", id),
		pipeline.String("title", video.Title),
		pipeline.Int("bitrate", format.Bitrate),
	)
	return streamURL, nil
}

func bestAudioFormat(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if f.AudioChannels == 0 {
			continue
		}
		// Prefer audio-only formats, then the highest bitrate.
		audioOnly := strings.HasPrefix(f.MimeType, "audio/")
		if best == nil {
			best = f
			continue
		}
		bestAudioOnly := strings.HasPrefix(best.MimeType, "audio/")
		if audioOnly && !bestAudioOnly || audioOnly == bestAudioOnly && f.Bitrate > best.Bitrate {
			best = f
		}
	}
	return best
}
