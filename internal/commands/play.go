package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/latoulicious/TarumaeRadio/pkg/database"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/supervisor"
)

// FailureMessage is the only thing users see about a source that would not play.
const FailureMessage = "❌ Could not start this source."

const (
	colorOK    = 0x00ff00
	colorError = 0xff0000
	colorIdle  = 0x808080
)

// PlayCommand handles `play <url|station name>`.
func (b *Bot) PlayCommand(ctx context.Context, m Message, args string) {
	if args == "" {
		b.sendEmbedMessage(m.ChannelID, "❌ Usage Error",
			fmt.Sprintf("Usage: `%splay <url|station name>`", b.prefix), colorError)
		return
	}

	title, description, color := b.startPlayback(ctx, m.GuildID, m.ChannelID, m.AuthorID, args)
	b.sendEmbedMessage(m.ChannelID, title, description, color)
}

// SelectStation plays the station chosen in the stations menu and returns
// the reply text.
func (b *Bot) SelectStation(ctx context.Context, guildID, channelID, userID, value string) string {
	title, description, _ := b.startPlayback(ctx, guildID, channelID, userID, value)
	return title + "\n" + description
}

// startPlayback resolves a station name or URL and hands it to the guild's
// session. It returns the embed title, description and color for the reply.
func (b *Bot) startPlayback(ctx context.Context, guildID, channelID, userID, input string) (string, string, int) {
	voiceChannel, err := b.voice(guildID, userID)
	if err != nil {
		return "❌ Voice Channel", "You must be in a voice channel to play radio.", colorError
	}

	label, locator := b.lookup(ctx, input)

	ctx, cancel := context.WithTimeout(ctx, b.playTimeout)
	defer cancel()

	dest := supervisor.Destination{GuildID: guildID, ChannelID: voiceChannel}
	done := b.beginStart(guildID)
	_, err = b.sessions.Play(ctx, dest, locator, b.codec)
	done()
	if err != nil {
		b.logger.Warn("Play request failed",
			pipeline.String("guild", guildID),
			pipeline.String("source", locator),
			pipeline.Error(err),
		)
		switch {
		case errors.Is(err, pipeline.ErrInvalidLocator):
			return "❌ Unknown Source", fmt.Sprintf("%q is neither a stream URL nor a station. Try `%slist`.", input, b.prefix), colorError
		case errors.Is(err, pipeline.ErrRetryExhausted):
			// The session already failed; this reply is the only notice.
			b.forget(guildID)
			b.presence.Stopped(guildID)
			return "❌ Error", fmt.Sprintf("%s (**%s**)", FailureMessage, label), colorError
		case errors.Is(err, context.DeadlineExceeded):
			return "❌ Voice Channel", "Could not join the voice channel in time.", colorError
		default:
			return "❌ Error", FailureMessage, colorError
		}
	}

	b.remember(guildID, nowPlaying{label: label, channelID: channelID})
	b.presence.Playing(guildID, label)
	return "📻 Now Playing", fmt.Sprintf("Relaying **%s**", label), colorOK
}

// lookup maps a station name to its URL. Anything else is used as a locator.
func (b *Bot) lookup(ctx context.Context, input string) (label, locator string) {
	if b.catalog != nil {
		st, err := b.catalog.FindStation(ctx, input)
		if err == nil {
			return st.Label, st.URL
		}
		if !errors.Is(err, database.ErrStationNotFound) {
			b.logger.Warn("Station lookup failed", pipeline.String("input", input), pipeline.Error(err))
		}
	}
	return input, input
}

// HandleFailure tells the guild that its source could not be started. The
// session manager calls it once a session gives up. A failure that happens
// inside a play request is reported by that request's reply instead.
func (b *Bot) HandleFailure(st supervisor.Status) {
	b.presence.Stopped(st.GuildID)

	np, ok := b.forget(st.GuildID)
	if !ok || b.isStarting(st.GuildID) {
		return
	}
	b.logger.Info("Reporting failed source",
		pipeline.String("guild", st.GuildID),
		pipeline.String("station", np.label),
		pipeline.Int("launches", st.Launches),
	)
	// The session loop is waiting on us; do the network call elsewhere.
	go b.sendEmbedMessage(np.channelID, "❌ Error", fmt.Sprintf("%s (**%s**)", FailureMessage, np.label), colorError)
}
