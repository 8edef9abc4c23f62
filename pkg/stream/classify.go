// Package stream classifies radio source locators and derives the transport
// headers the transcoder sends upstream.
package stream

import (
	"net/url"
	"strings"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// Kind tells a progressive stream apart from a segmented playlist.
type Kind int

const (
	KindProgressive Kind = iota
	KindPlaylist
)

func (k Kind) String() string {
	switch k {
	case KindProgressive:
		return "progressive"
	case KindPlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

const playlistSuffix = ".m3u8"

// Source is a classified locator. It is immutable once returned by Classify.
type Source struct {
	Locator string
	URL     *url.URL
	Kind    Kind
}

// IsPlaylist reports whether the source is a segmented playlist.
func (s Source) IsPlaylist() bool {
	return s.Kind == KindPlaylist
}

func (s Source) String() string {
	return s.Locator
}

// Classify parses locator and derives its kind from the path suffix.
func Classify(locator string) (Source, error) {
	u, err := parseLocator(locator)
	if err != nil {
		return Source{}, err
	}

	kind := KindProgressive
	if strings.HasSuffix(strings.ToLower(u.Path), playlistSuffix) {
		kind = KindPlaylist
	}

	return Source{Locator: strings.TrimSpace(locator), URL: u, Kind: kind}, nil
}

func parseLocator(locator string) (*url.URL, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, pipeline.Wrapf(pipeline.ErrInvalidLocator, "empty locator")
	}

	u, err := url.Parse(locator)
	if err != nil {
		return nil, pipeline.Wrapf(pipeline.ErrInvalidLocator, "%v", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, pipeline.Wrapf(pipeline.ErrInvalidLocator, "%q is not an absolute URL", locator)
	}

	return u, nil
}
