package stream

import (
	"strings"
)

// DefaultUserAgent is sent with every upstream request.
const DefaultUserAgent = "Mozilla/5.0 (TarumaeRadio)"

// Headers are the spoofed transport headers passed to the transcoder.
type Headers struct {
	UserAgent string
	Origin    string
	Referer   string
	Accept    string
}

// String renders the CRLF-terminated header block ffmpeg expects.
func (h Headers) String() string {
	var b strings.Builder
	b.WriteString("User-Agent: " + h.UserAgent + "\r\n")
	b.WriteString("Origin: " + h.Origin + "\r\n")
	b.WriteString("Referer: " + h.Referer + "\r\n")
	b.WriteString("Accept: " + h.Accept + "\r\n")
	return b.String()
}

// HostOverride pins origin and referer for CDNs that reject generic headers.
type HostOverride struct {
	HostSuffix string
	Origin     string
	Referer    string
}

// hostOverrides is matched in order against the locator hostname.
var hostOverrides = []HostOverride{
	// GPM hostingradio playlists only answer with the station's own site.
	{HostSuffix: "hostingradio.ru", Origin: "https://www.avtoradio.ru", Referer: "https://www.avtoradio.ru/online/"},
}

// HeadersFor derives transport headers for locator. Origin and referer come
// from the locator's own scheme and host unless a host override matches.
func HeadersFor(locator string) (Headers, error) {
	u, err := parseLocator(locator)
	if err != nil {
		return Headers{}, err
	}

	origin := u.Scheme + "://" + u.Host
	h := Headers{
		UserAgent: DefaultUserAgent,
		Origin:    origin,
		Referer:   origin + "/",
		Accept:    "*/*",
	}

	if o, ok := overrideFor(u.Hostname()); ok {
		h.Origin = o.Origin
		h.Referer = o.Referer
	}

	return h, nil
}

func overrideFor(host string) (HostOverride, bool) {
	host = strings.ToLower(host)
	for _, o := range hostOverrides {
		if host == o.HostSuffix || strings.HasSuffix(host, "."+o.HostSuffix) {
			return o, true
		}
	}
	return HostOverride{}, false
}
