package commands

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/TarumaeRadio/pkg/supervisor"
)

// NowPlayingCommand shows the guild's session state.
func (b *Bot) NowPlayingCommand(m Message) {
	s, ok := b.sessions.Session(m.GuildID)
	if !ok {
		b.replyEmbed(m.ChannelID, &discordgo.MessageEmbed{
			Title:       "📻 Now Playing",
			Description: "Nothing is currently playing",
			Color:       colorIdle,
			Timestamp:   time.Now().Format(time.RFC3339),
			Footer: &discordgo.MessageEmbedFooter{
				Text: fmt.Sprintf("Use %sstations to pick a station", b.prefix),
			},
		})
		return
	}

	label := "Unknown"
	if np, ok := b.current(m.GuildID); ok {
		label = np.label
	}
	b.replyEmbed(m.ChannelID, nowPlayingEmbed(label, s.Status()))
}

func nowPlayingEmbed(label string, st supervisor.Status) *discordgo.MessageEmbed {
	statusEmoji, statusText, color := describeState(st.State)

	codec := st.Codec.String()
	if st.FellBack {
		codec += " (fallback)"
	}

	return &discordgo.MessageEmbed{
		Title:       "📻 Now Playing",
		Description: fmt.Sprintf("**%s**", label),
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Status", Value: statusEmoji + " " + statusText, Inline: true},
			{Name: "Source", Value: st.Kind.String(), Inline: true},
			{Name: "Codec", Value: codec, Inline: true},
			{Name: "Retries", Value: fmt.Sprintf("%d", st.Retries), Inline: true},
			{Name: "Launches", Value: fmt.Sprintf("%d", st.Launches), Inline: true},
		},
	}
}

func describeState(s supervisor.State) (emoji, text string, color int) {
	switch s {
	case supervisor.StateAudible:
		return "🟢", "Playing", colorOK
	case supervisor.StateStarting, supervisor.StateFallingBack:
		return "🟡", "Connecting...", 0xffcc00
	case supervisor.StateStalled, supervisor.StateRetrying:
		return "🟠", "Reconnecting...", 0xff8800
	case supervisor.StateFailed:
		return "🔴", "Failed", colorError
	default:
		return "⚪", "Stopped", colorIdle
	}
}
