package voice

import (
	"bytes"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/TarumaeRadio/pkg/supervisor"
	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
)

type fakeConn struct {
	frames       chan []byte
	speaking     atomic.Bool
	disconnected atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 64)}
}

func (c *fakeConn) Speaking(b bool) error {
	c.speaking.Store(b)
	return nil
}

func (c *fakeConn) Disconnect() error {
	c.disconnected.Add(1)
	return nil
}

func (c *fakeConn) Frames() chan<- []byte { return c.frames }

func nextSinkEvent(t *testing.T, p *Player) supervisor.SinkEvent {
	t.Helper()
	select {
	case ev := <-p.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sink event")
		return supervisor.SinkEvent{}
	}
}

func oggStream(t *testing.T, packets ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := oggwriter.NewWith(&buf, 48000, 2)
	require.NoError(t, err)
	for i, payload := range packets {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: payload,
		}))
	}
	return buf.Bytes()
}

func TestPlayerForwardsOggPages(t *testing.T) {
	c := newFakeConn()
	p := newPlayer(c, nil)
	defer p.Close()

	packets := [][]byte{{0xfc, 0x01}, {0xfc, 0x02}, {0xfc, 0x03}}
	data := oggStream(t, packets...)

	require.NoError(t, p.Play(supervisor.Stream{ID: "h1", Reader: bytes.NewReader(data), Container: transcoder.ContainerOggOpus}))

	ev := nextSinkEvent(t, p)
	assert.Equal(t, supervisor.SinkPlaying, ev.Status)
	assert.Equal(t, "h1", ev.StreamID)

	ev = nextSinkEvent(t, p)
	assert.Equal(t, supervisor.SinkIdle, ev.Status)

	require.Len(t, c.frames, 3)
	for _, want := range packets {
		assert.Equal(t, want, <-c.frames)
	}
	assert.False(t, c.speaking.Load())
}

func TestPlayerRejectsGarbageOgg(t *testing.T) {
	p := newPlayer(newFakeConn(), nil)
	defer p.Close()

	junk := bytes.Repeat([]byte("not an ogg page "), 8)
	require.NoError(t, p.Play(supervisor.Stream{ID: "h1", Reader: bytes.NewReader(junk), Container: transcoder.ContainerOggOpus}))

	ev := nextSinkEvent(t, p)
	assert.Equal(t, supervisor.SinkError, ev.Status)
	assert.Error(t, ev.Err)
}

func TestPlayerEncodesPCM(t *testing.T) {
	c := newFakeConn()
	p := newPlayer(c, nil)
	defer p.Close()

	// Two full frames and a short tail.
	pcm := make([]byte, 2*frameBytes+100)
	require.NoError(t, p.Play(supervisor.Stream{ID: "h2", Reader: bytes.NewReader(pcm), Container: transcoder.ContainerRawPCM}))

	assert.Equal(t, supervisor.SinkPlaying, nextSinkEvent(t, p).Status)
	assert.Equal(t, supervisor.SinkIdle, nextSinkEvent(t, p).Status)
	assert.Len(t, c.frames, 3)
}

func TestPlayerSupersedesSilently(t *testing.T) {
	c := newFakeConn()
	p := newPlayer(c, nil)

	r, w := io.Pipe()
	require.NoError(t, p.Play(supervisor.Stream{ID: "old", Reader: r, Container: transcoder.ContainerRawPCM}))

	// Closing the writer stands in for killing the old process.
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = w.Close()
	}()
	require.NoError(t, p.Play(supervisor.Stream{ID: "new", Reader: bytes.NewReader(nil), Container: transcoder.ContainerRawPCM}))

	ev := nextSinkEvent(t, p)
	assert.Equal(t, "new", ev.StreamID, "a superseded stream reports nothing")
	assert.Equal(t, supervisor.SinkIdle, ev.Status)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, int32(1), c.disconnected.Load())
	assert.ErrorIs(t, p.Play(supervisor.Stream{ID: "late"}), ErrPlayerClosed)
}

func TestUserVoiceChannel(t *testing.T) {
	state := discordgo.NewState()
	require.NoError(t, state.GuildAdd(&discordgo.Guild{
		ID: "g1",
		VoiceStates: []*discordgo.VoiceState{
			{UserID: "u1", ChannelID: "vc1", GuildID: "g1"},
		},
	}))

	ch, err := UserVoiceChannel(state, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "vc1", ch)

	_, err = UserVoiceChannel(state, "g1", "u2")
	assert.ErrorIs(t, err, ErrNotInVoice)

	_, err = UserVoiceChannel(state, "missing", "u1")
	assert.Error(t, err)
}
