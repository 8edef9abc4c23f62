package database

import "time"

// Station is a named radio source users can play by label.
type Station struct {
	ID          int64
	Label       string
	Description string
	URL         string
	Emoji       string
	BuiltIn     bool
	AddedBy     string
	CreatedAt   time.Time
}

const (
	customDescription = "User station"
	customEmoji       = "⭐"
	defaultEmoji      = "🎵"
)

// BuiltInStations are always listed first, ahead of user stations.
var BuiltInStations = []Station{
	{
		Label:       "Radio R",
		Description: "Lithuania (MP3)",
		URL:         "https://stream1.relaxfm.lt/rrb128.mp3",
		Emoji:       "📻",
		BuiltIn:     true,
	},
	{
		Label:       "Авторадио (Мск)",
		Description: "HLS",
		URL:         "https://hls-01-gpm.hostingradio.ru/avtoradio495/playlist.m3u8",
		Emoji:       "🚗",
		BuiltIn:     true,
	},
	{
		Label:       "Ретро FM (Мск)",
		Description: "MP3",
		URL:         "http://emgregion.hostingradio.ru:8064/moscow.retrofm.mp3",
		Emoji:       "🕰️",
		BuiltIn:     true,
	},
}

// DisplayEmoji returns the station emoji or a generic note.
func (s Station) DisplayEmoji() string {
	if s.Emoji == "" {
		return defaultEmoji
	}
	return s.Emoji
}
