package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/TarumaeRadio/pkg/database"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/supervisor"
	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
)

type playCall struct {
	dest    supervisor.Destination
	locator string
	codec   transcoder.Codec
}

type fakeSupervisor struct {
	mu      sync.Mutex
	calls   []playCall
	stopped []string
	err     error
	active  map[string]bool
	// onPlay runs inside Play the way the manager's failure callback does.
	onPlay func(dest supervisor.Destination)
}

func (f *fakeSupervisor) Play(_ context.Context, dest supervisor.Destination, locator string, codec transcoder.Codec) (*supervisor.Session, error) {
	f.mu.Lock()
	f.calls = append(f.calls, playCall{dest: dest, locator: locator, codec: codec})
	onPlay := f.onPlay
	f.mu.Unlock()
	if onPlay != nil {
		onPlay(dest)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.active == nil {
		f.active = make(map[string]bool)
	}
	f.active[dest.GuildID] = true
	return nil, nil
}

func (f *fakeSupervisor) Stop(guildID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, guildID)
	was := f.active[guildID]
	delete(f.active, guildID)
	return was
}

func (f *fakeSupervisor) Session(string) (*supervisor.Session, bool) { return nil, false }
func (f *fakeSupervisor) Sessions() []supervisor.Status              { return nil }

func (f *fakeSupervisor) lastCall(t *testing.T) playCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type sent struct {
	channelID string
	content   string
	embed     *discordgo.MessageEmbed
	complex   *discordgo.MessageSend
}

type fakeMessenger struct {
	out chan sent
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{out: make(chan sent, 16)}
}

func (f *fakeMessenger) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.out <- sent{channelID: channelID, content: content}
	return &discordgo.Message{}, nil
}

func (f *fakeMessenger) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.out <- sent{channelID: channelID, embed: embed}
	return &discordgo.Message{}, nil
}

func (f *fakeMessenger) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.out <- sent{channelID: channelID, complex: data}
	return &discordgo.Message{}, nil
}

func (f *fakeMessenger) next(t *testing.T) sent {
	t.Helper()
	select {
	case s := <-f.out:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reply")
		return sent{}
	}
}

type fakePresence struct {
	mu      sync.Mutex
	playing map[string]string
}

func (p *fakePresence) Playing(guildID, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing == nil {
		p.playing = make(map[string]string)
	}
	p.playing[guildID] = label
}

func (p *fakePresence) Stopped(guildID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.playing, guildID)
}

func (p *fakePresence) label(guildID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing[guildID]
}

type testBot struct {
	bot      *Bot
	sessions *fakeSupervisor
	out      *fakeMessenger
	presence *fakePresence
	catalog  *database.Database
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	catalog, err := database.NewDatabase(filepath.Join(t.TempDir(), "radio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	tb := &testBot{
		sessions: &fakeSupervisor{},
		out:      newFakeMessenger(),
		presence: &fakePresence{},
		catalog:  catalog,
	}
	tb.bot = NewBot(Options{
		Sessions: tb.sessions,
		Catalog:  catalog,
		Presence: tb.presence,
		Out:      tb.out,
		Voice: func(guildID, userID string) (string, error) {
			if userID == "lurker" {
				return "", errors.New("not in voice")
			}
			return "vc-" + guildID, nil
		},
		Codec:  transcoder.CodecCompact,
		Logger: pipeline.NullLogger(),
	})
	return tb
}

func msg(content string) Message {
	return Message{GuildID: "g1", ChannelID: "text1", AuthorID: "u1", Content: content}
}

func TestParse(t *testing.T) {
	tests := []struct {
		content string
		ok      bool
		want    Command
	}{
		{"!play https://x.example.com/a.mp3", true, Command{Name: "play", Args: "https://x.example.com/a.mp3"}},
		{"  !PLAY   Radio R  ", true, Command{Name: "play", Args: "Radio R"}},
		{"!stations", true, Command{Name: "stations"}},
		{"play something", false, Command{}},
		{"!", false, Command{}},
		{"", false, Command{}},
	}
	for _, tt := range tests {
		got, ok := Parse("!", tt.content)
		assert.Equal(t, tt.ok, ok, tt.content)
		assert.Equal(t, tt.want, got, tt.content)
	}
}

func TestParseAdd(t *testing.T) {
	label, url, err := parseAdd(`"Jazz FM" https://jazz.example.com/live.mp3 trailing`)
	require.NoError(t, err)
	assert.Equal(t, "Jazz FM", label)
	assert.Equal(t, "https://jazz.example.com/live.mp3", url)

	for _, bad := range []string{`Jazz https://x`, `"Jazz"`, `"" https://x`, ``} {
		_, _, err := parseAdd(bad)
		assert.ErrorIs(t, err, errAddUsage, bad)
	}
}

func TestPlayResolvesStationName(t *testing.T) {
	tb := newTestBot(t)

	tb.bot.Dispatch(context.Background(), msg("!play radio r"))

	call := tb.sessions.lastCall(t)
	assert.Equal(t, "https://stream1.relaxfm.lt/rrb128.mp3", call.locator)
	assert.Equal(t, supervisor.Destination{GuildID: "g1", ChannelID: "vc-g1"}, call.dest)
	assert.Equal(t, transcoder.CodecCompact, call.codec)

	reply := tb.out.next(t)
	require.NotNil(t, reply.embed)
	assert.Contains(t, reply.embed.Description, "Radio R")
	assert.Equal(t, "Radio R", tb.presence.label("g1"))
}

func TestPlayPassesURLThrough(t *testing.T) {
	tb := newTestBot(t)

	tb.bot.Dispatch(context.Background(), msg("!p https://hls.example.com/live/playlist.m3u8?token=1"))
	assert.Equal(t, "https://hls.example.com/live/playlist.m3u8?token=1", tb.sessions.lastCall(t).locator)
}

func TestPlayRequiresVoiceChannel(t *testing.T) {
	tb := newTestBot(t)
	m := msg("!play Radio R")
	m.AuthorID = "lurker"

	tb.bot.Dispatch(context.Background(), m)

	reply := tb.out.next(t)
	require.NotNil(t, reply.embed)
	assert.Contains(t, reply.embed.Description, "voice channel")
	assert.Empty(t, tb.sessions.calls)
}

func TestPlayReportsInvalidLocator(t *testing.T) {
	tb := newTestBot(t)
	tb.sessions.err = fmt.Errorf("%w: nope", pipeline.ErrInvalidLocator)

	tb.bot.Dispatch(context.Background(), msg("!play no such station"))

	reply := tb.out.next(t)
	require.NotNil(t, reply.embed)
	assert.Contains(t, reply.embed.Description, "neither a stream URL nor a station")
	assert.Empty(t, tb.presence.label("g1"))
}

func TestPlayUsage(t *testing.T) {
	tb := newTestBot(t)
	tb.bot.Dispatch(context.Background(), msg("!play"))

	reply := tb.out.next(t)
	require.NotNil(t, reply.embed)
	assert.Contains(t, reply.embed.Description, "Usage")
}

func TestHandleFailureNotifiesOnce(t *testing.T) {
	tb := newTestBot(t)
	tb.bot.Dispatch(context.Background(), msg("!play Radio R"))
	tb.out.next(t)

	tb.bot.HandleFailure(supervisor.Status{GuildID: "g1", State: supervisor.StateFailed})

	reply := tb.out.next(t)
	assert.Equal(t, "text1", reply.channelID)
	require.NotNil(t, reply.embed)
	assert.Contains(t, reply.embed.Description, FailureMessage)
	assert.Contains(t, reply.embed.Description, "Radio R")
	assert.Empty(t, tb.presence.label("g1"))

	tb.bot.HandleFailure(supervisor.Status{GuildID: "g1", State: supervisor.StateFailed})
	select {
	case s := <-tb.out.out:
		t.Fatalf("unexpected second notification: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPlayReportsImmediateFailureOnce(t *testing.T) {
	tb := newTestBot(t)
	tb.bot.Dispatch(context.Background(), msg("!play Radio R"))
	tb.out.next(t)
	require.Equal(t, "Radio R", tb.presence.label("g1"))

	tb.sessions.err = fmt.Errorf("%w after 5 retries: %w", pipeline.ErrRetryExhausted, errors.New("exit status 1"))
	tb.sessions.onPlay = func(dest supervisor.Destination) {
		tb.bot.HandleFailure(supervisor.Status{GuildID: dest.GuildID, State: supervisor.StateFailed})
	}
	tb.bot.Dispatch(context.Background(), msg("!play https://radio.example/dead.mp3"))

	reply := tb.out.next(t)
	require.NotNil(t, reply.embed)
	assert.Contains(t, reply.embed.Description, FailureMessage)
	assert.Contains(t, reply.embed.Description, "dead.mp3")
	assert.NotContains(t, reply.embed.Title, "Now Playing")
	assert.Empty(t, tb.presence.label("g1"))
	_, ok := tb.bot.current("g1")
	assert.False(t, ok)

	select {
	case s := <-tb.out.out:
		t.Fatalf("unexpected second notification: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopCommand(t *testing.T) {
	tb := newTestBot(t)

	tb.bot.Dispatch(context.Background(), msg("!stop"))
	assert.Contains(t, tb.out.next(t).content, "Not in a voice channel")

	tb.bot.Dispatch(context.Background(), msg("!play Radio R"))
	tb.out.next(t)
	tb.bot.Dispatch(context.Background(), msg("!stop"))
	assert.Contains(t, tb.out.next(t).content, "Stopped")
	assert.Empty(t, tb.presence.label("g1"))
}

func TestAddListAndPlayCustomStation(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	tb.bot.Dispatch(ctx, msg(`!add "Jazz FM" https://jazz.example.com/live.mp3`))
	assert.Contains(t, tb.out.next(t).content, "Jazz FM")

	tb.bot.Dispatch(ctx, msg(`!add "jazz fm" https://other.example.com/live.mp3`))
	assert.Contains(t, tb.out.next(t).content, "already exists")

	tb.bot.Dispatch(ctx, msg(`!add "Broken" not-a-url`))
	assert.Contains(t, tb.out.next(t).content, "not a stream URL")

	tb.bot.Dispatch(ctx, msg(`!add Jazz`))
	assert.Contains(t, tb.out.next(t).content, "Usage")

	tb.bot.Dispatch(ctx, msg("!list"))
	list := tb.out.next(t).content
	assert.True(t, strings.HasPrefix(list, "• **Radio R**"))
	assert.Contains(t, list, "• **Jazz FM** — https://jazz.example.com/live.mp3")

	tb.bot.Dispatch(ctx, msg("!play JAZZ FM"))
	assert.Equal(t, "https://jazz.example.com/live.mp3", tb.sessions.lastCall(t).locator)
	tb.out.next(t)

	tb.bot.Dispatch(ctx, msg("!remove jazz fm"))
	assert.Contains(t, tb.out.next(t).content, "Removed")
	tb.bot.Dispatch(ctx, msg("!remove Radio R"))
	assert.Contains(t, tb.out.next(t).content, "Built-in")
}

func TestStationsMenu(t *testing.T) {
	stations := make([]database.Station, 0, 30)
	for i := 0; i < 30; i++ {
		stations = append(stations, database.Station{
			Label: fmt.Sprintf("Station %d", i),
			URL:   fmt.Sprintf("https://s%d.example.com/live.mp3", i),
		})
	}
	stations[0].Label = strings.Repeat("x", 150)
	stations[1].Description = strings.Repeat("d", 80)

	menu := StationsMenu(stations)
	require.Len(t, menu.Components, 1)
	row, ok := menu.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	sel, ok := row.Components[0].(discordgo.SelectMenu)
	require.True(t, ok)

	assert.Equal(t, StationSelectID, sel.CustomID)
	require.Len(t, sel.Options, maxMenuOptions)
	assert.Len(t, sel.Options[0].Label, maxOptionLength)
	assert.Len(t, sel.Options[1].Description, maxDescLength)
	assert.Equal(t, "Radio", sel.Options[2].Description)
	assert.Equal(t, "🎵", sel.Options[2].Emoji.Name)
}

func TestSelectStation(t *testing.T) {
	tb := newTestBot(t)

	reply := tb.bot.SelectStation(context.Background(), "g2", "text2", "u1", "Ретро FM (Мск)")
	assert.Contains(t, reply, "Ретро FM (Мск)")

	call := tb.sessions.lastCall(t)
	assert.Equal(t, "http://emgregion.hostingradio.ru:8064/moscow.retrofm.mp3", call.locator)
	assert.Equal(t, "vc-g2", call.dest.ChannelID)
}

func TestUnknownCommand(t *testing.T) {
	tb := newTestBot(t)
	tb.bot.Dispatch(context.Background(), msg("!dance"))
	assert.Contains(t, tb.out.next(t).content, "Unknown command")

	tb.bot.Dispatch(context.Background(), Message{GuildID: "g1", ChannelID: "text1", Content: "hello there"})
	select {
	case s := <-tb.out.out:
		t.Fatalf("plain chat must be ignored: %+v", s)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5s", formatUptime(5*time.Second))
	assert.Equal(t, "2m 5s", formatUptime(125*time.Second))
	assert.Equal(t, "1h 0m 1s", formatUptime(time.Hour+time.Second))
	assert.Equal(t, "1d 1h 0m 0s", formatUptime(25*time.Hour))
}
