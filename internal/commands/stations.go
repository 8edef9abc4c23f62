package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/TarumaeRadio/pkg/database"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/stream"
)

// StationSelectID is the custom ID of the stations select menu.
const StationSelectID = "radio_select"

// Discord limits for select menus and messages.
const (
	maxMenuOptions   = 25
	maxOptionLength  = 100
	maxDescLength    = 50
	maxMessageLength = 1900
)

// StationsCommand posts the station picker.
func (b *Bot) StationsCommand(ctx context.Context, m Message) {
	stations, err := b.catalog.ListStations(ctx)
	if err != nil {
		b.logger.Error("Failed to list stations", pipeline.Error(err))
		b.sendEmbedMessage(m.ChannelID, "❌ Error", "Could not load the station list.", colorError)
		return
	}

	if _, err := b.out.ChannelMessageSendComplex(m.ChannelID, StationsMenu(stations)); err != nil {
		b.logger.Warn("Failed to send stations menu", pipeline.Error(err))
	}
}

// StationsMenu builds the picker message. The option value is the station
// label, which FindStation resolves back to its URL.
func StationsMenu(stations []database.Station) *discordgo.MessageSend {
	if len(stations) > maxMenuOptions {
		stations = stations[:maxMenuOptions]
	}

	options := make([]discordgo.SelectMenuOption, 0, len(stations))
	for _, st := range stations {
		desc := st.Description
		if desc == "" {
			desc = "Radio"
		}
		options = append(options, discordgo.SelectMenuOption{
			Label:       truncate(st.Label, maxOptionLength),
			Value:       truncate(st.Label, maxOptionLength),
			Description: truncate(desc, maxDescLength),
			Emoji:       &discordgo.ComponentEmoji{Name: st.DisplayEmoji()},
		})
	}

	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "🎚️ Choose a radio station",
			Description: "Pick one from the list and the bot will join your voice channel.",
			Color:       0x2b2d31,
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					CustomID:    StationSelectID,
					Placeholder: "📻 Choose a station",
					Options:     options,
				},
			}},
		},
	}
}

// ListCommand prints every station with its URL.
func (b *Bot) ListCommand(ctx context.Context, m Message) {
	stations, err := b.catalog.ListStations(ctx)
	if err != nil {
		b.logger.Error("Failed to list stations", pipeline.Error(err))
		b.reply(m.ChannelID, "❌ Could not load the station list.")
		return
	}
	b.reply(m.ChannelID, formatStationList(stations))
}

func formatStationList(stations []database.Station) string {
	lines := make([]string, 0, len(stations))
	for _, st := range stations {
		lines = append(lines, fmt.Sprintf("• **%s** — %s", st.Label, st.URL))
	}
	return truncate(strings.Join(lines, "\n"), maxMessageLength)
}

// AddCommand handles `add "<name>" <url>`.
func (b *Bot) AddCommand(ctx context.Context, m Message, args string) {
	label, url, err := parseAdd(args)
	if err != nil {
		b.reply(m.ChannelID, fmt.Sprintf("Usage: `%sadd \"Station name\" <url>`", b.prefix))
		return
	}
	if _, err := stream.Classify(url); err != nil {
		b.reply(m.ChannelID, fmt.Sprintf("❌ %q is not a stream URL.", url))
		return
	}

	st, err := b.catalog.AddStation(ctx, label, url, m.AuthorID)
	switch {
	case errors.Is(err, database.ErrDuplicateStation):
		b.reply(m.ChannelID, fmt.Sprintf("❌ A station named **%s** already exists.", label))
	case err != nil:
		b.logger.Error("Failed to add station", pipeline.String("label", label), pipeline.Error(err))
		b.reply(m.ChannelID, "❌ Could not save the station.")
	default:
		b.logger.Info("Station added", pipeline.String("label", st.Label), pipeline.String("user", m.AuthorID))
		b.reply(m.ChannelID, fmt.Sprintf("✅ Added to the list: **%s** → %s", st.Label, st.URL))
	}
}

// RemoveCommand handles `remove <name>` for user stations.
func (b *Bot) RemoveCommand(ctx context.Context, m Message, args string) {
	if args == "" {
		b.reply(m.ChannelID, fmt.Sprintf("Usage: `%sremove <station name>`", b.prefix))
		return
	}

	err := b.catalog.RemoveStation(ctx, args)
	switch {
	case errors.Is(err, database.ErrStationNotFound):
		b.reply(m.ChannelID, fmt.Sprintf("ℹ️ No user station named **%s**.", args))
	case errors.Is(err, database.ErrInvalidStation):
		b.reply(m.ChannelID, "❌ Built-in stations cannot be removed.")
	case err != nil:
		b.logger.Error("Failed to remove station", pipeline.String("label", args), pipeline.Error(err))
		b.reply(m.ChannelID, "❌ Could not remove the station.")
	default:
		b.reply(m.ChannelID, fmt.Sprintf("🗑️ Removed **%s**.", args))
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
