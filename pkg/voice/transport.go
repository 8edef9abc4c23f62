package voice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/supervisor"
)

// ErrNotInVoice is returned when the requesting user is in no voice channel.
var ErrNotInVoice = errors.New("you must be in a voice channel to play radio")

const (
	joinAttempts = 3
	readyPoll    = 100 * time.Millisecond
)

// Transport joins Discord voice channels. discordgo keeps the connection
// alive and reconnects it; the transport only waits until it is ready.
type Transport struct {
	session *discordgo.Session
	logger  pipeline.Logger
}

// NewTransport creates a transport on an open Discord session.
func NewTransport(s *discordgo.Session, logger pipeline.Logger) *Transport {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Transport{session: s, logger: logger.With(pipeline.String("component", "voice"))}
}

// Connect joins dest self-deafened and returns a Player once the connection
// is ready or ctx expires.
func (t *Transport) Connect(ctx context.Context, dest supervisor.Destination) (supervisor.Sink, error) {
	channelName := "Unknown"
	if ch, err := t.session.State.Channel(dest.ChannelID); err == nil {
		channelName = ch.Name
	}
	t.logger.Info("Joining voice channel",
		pipeline.String("guild", dest.GuildID),
		pipeline.String("channel", dest.ChannelID),
		pipeline.String("name", channelName),
	)

	var (
		vc  *discordgo.VoiceConnection
		err error
	)
	for i := 0; i < joinAttempts; i++ {
		vc, err = t.session.ChannelVoiceJoin(dest.GuildID, dest.ChannelID, false, true)
		if err == nil {
			break
		}

		t.logger.Warn("Voice join attempt failed",
			pipeline.Int("attempt", i+1),
			pipeline.Int("max_attempts", joinAttempts),
			pipeline.Error(err),
		)
		if i < joinAttempts-1 {
			select {
			case <-time.After(time.Duration(i+1) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel after %d attempts: %w", joinAttempts, err)
	}

	if err := waitReady(ctx, vc); err != nil {
		_ = vc.Disconnect()
		return nil, err
	}

	t.logger.Info("Voice connection ready", pipeline.String("guild", dest.GuildID))
	return NewPlayer(vc, t.logger), nil
}

func waitReady(ctx context.Context, vc *discordgo.VoiceConnection) error {
	ticker := time.NewTicker(readyPoll)
	defer ticker.Stop()

	for {
		vc.RLock()
		ready := vc.Ready
		vc.RUnlock()
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("voice connection timed out: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// UserVoiceChannel returns the voice channel userID is connected to in guildID.
func UserVoiceChannel(state *discordgo.State, guildID, userID string) (string, error) {
	guild, err := state.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("could not find guild: %w", err)
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, nil
		}
	}
	return "", ErrNotInVoice
}
