package commands

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/TarumaeRadio/pkg/database"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/supervisor"
	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
)

// Supervisor is the part of the session manager the commands drive.
type Supervisor interface {
	Play(ctx context.Context, dest supervisor.Destination, locator string, codec transcoder.Codec) (*supervisor.Session, error)
	Stop(guildID string) bool
	Session(guildID string) (*supervisor.Session, bool)
	Sessions() []supervisor.Status
}

// Messenger sends chat replies. *discordgo.Session satisfies it.
type Messenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Presence shows what the bot is relaying.
type Presence interface {
	Playing(guildID, label string)
	Stopped(guildID string)
}

// VoiceLocator reports the voice channel a user is connected to.
type VoiceLocator func(guildID, userID string) (string, error)

// Message is a chat command as the bot sees it.
type Message struct {
	GuildID   string
	ChannelID string
	AuthorID  string
	Content   string
}

// Options configures a Bot.
type Options struct {
	Sessions Supervisor
	Catalog  database.StationCatalog
	Presence Presence
	Out      Messenger
	Voice    VoiceLocator
	Codec    transcoder.Codec
	Prefix   string
	Logger   pipeline.Logger
	// PlayTimeout bounds resolve, voice join and launch of one request.
	PlayTimeout time.Duration
}

// Bot routes chat commands to the session manager and the station catalog.
type Bot struct {
	sessions    Supervisor
	catalog     database.StationCatalog
	presence    Presence
	out         Messenger
	voice       VoiceLocator
	codec       transcoder.Codec
	prefix      string
	logger      pipeline.Logger
	playTimeout time.Duration
	startedAt   time.Time

	mu       sync.Mutex
	playing  map[string]nowPlaying
	starting map[string]int
}

// nowPlaying remembers where a guild asked for playback.
type nowPlaying struct {
	label     string
	channelID string
}

// NewBot creates a bot from opts.
func NewBot(opts Options) *Bot {
	if opts.Logger == nil {
		opts.Logger = pipeline.NullLogger()
	}
	if opts.Prefix == "" {
		opts.Prefix = "!"
	}
	if opts.PlayTimeout <= 0 {
		opts.PlayTimeout = 30 * time.Second
	}
	if opts.Presence == nil {
		opts.Presence = nopPresence{}
	}
	return &Bot{
		sessions:    opts.Sessions,
		catalog:     opts.Catalog,
		presence:    opts.Presence,
		out:         opts.Out,
		voice:       opts.Voice,
		codec:       opts.Codec,
		prefix:      opts.Prefix,
		logger:      opts.Logger.With(pipeline.String("component", "commands")),
		playTimeout: opts.PlayTimeout,
		startedAt:   time.Now(),
		playing:     make(map[string]nowPlaying),
		starting:    make(map[string]int),
	}
}

// Prefix returns the command prefix.
func (b *Bot) Prefix() string { return b.prefix }

// Dispatch runs one chat command. Messages without the prefix are ignored.
func (b *Bot) Dispatch(ctx context.Context, m Message) {
	cmd, ok := Parse(b.prefix, m.Content)
	if !ok {
		return
	}

	b.logger.Debug("Command received",
		pipeline.String("command", cmd.Name),
		pipeline.String("guild", m.GuildID),
		pipeline.String("user", m.AuthorID),
	)

	switch cmd.Name {
	case "play", "p":
		b.PlayCommand(ctx, m, cmd.Args)
	case "stations":
		b.StationsCommand(ctx, m)
	case "add":
		b.AddCommand(ctx, m, cmd.Args)
	case "remove":
		b.RemoveCommand(ctx, m, cmd.Args)
	case "list":
		b.ListCommand(ctx, m)
	case "stop", "leave":
		b.StopCommand(m)
	case "nowplaying", "np":
		b.NowPlayingCommand(m)
	case "about":
		b.AboutCommand(m)
	case "help", "h":
		b.ShowHelpCommand(m)
	default:
		b.reply(m.ChannelID, "Unknown command. Try "+b.prefix+"help.")
	}
}

func (b *Bot) remember(guildID string, np nowPlaying) {
	b.mu.Lock()
	b.playing[guildID] = np
	b.mu.Unlock()
}

func (b *Bot) forget(guildID string) (nowPlaying, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	np, ok := b.playing[guildID]
	delete(b.playing, guildID)
	return np, ok
}

// beginStart marks a play request in flight. The returned func clears it.
func (b *Bot) beginStart(guildID string) func() {
	b.mu.Lock()
	b.starting[guildID]++
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.starting[guildID]--
		if b.starting[guildID] <= 0 {
			delete(b.starting, guildID)
		}
	}
}

func (b *Bot) isStarting(guildID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.starting[guildID] > 0
}

func (b *Bot) current(guildID string) (nowPlaying, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	np, ok := b.playing[guildID]
	return np, ok
}

func (b *Bot) reply(channelID, content string) {
	if _, err := b.out.ChannelMessageSend(channelID, content); err != nil {
		b.logger.Warn("Failed to send message", pipeline.String("channel", channelID), pipeline.Error(err))
	}
}

func (b *Bot) replyEmbed(channelID string, embed *discordgo.MessageEmbed) {
	if _, err := b.out.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.logger.Warn("Failed to send embed", pipeline.String("channel", channelID), pipeline.Error(err))
	}
}

// sendEmbedMessage sends a simple titled embed
func (b *Bot) sendEmbedMessage(channelID, title, description string, color int) {
	b.replyEmbed(channelID, &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
}

type nopPresence struct{}

func (nopPresence) Playing(string, string) {}
func (nopPresence) Stopped(string)         {}
