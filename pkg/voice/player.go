package voice

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"layeh.com/gopus"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/supervisor"
	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
)

// One 20ms frame of 48kHz stereo s16le.
const (
	sampleRate   = 48000
	channels     = 2
	frameSamples = 960
	frameBytes   = frameSamples * channels * 2
	maxOpusBytes = frameBytes
	opusBitrate  = 128000
	stopWait     = 2 * time.Second
	eventBuffer  = 16
)

// ErrPlayerClosed is returned by Play after Close.
var ErrPlayerClosed = errors.New("player closed")

// conn is the part of a voice connection the player drives.
type conn interface {
	Speaking(b bool) error
	Disconnect() error
	Frames() chan<- []byte
}

type discordConn struct {
	vc *discordgo.VoiceConnection
}

func (c discordConn) Speaking(b bool) error { return c.vc.Speaking(b) }
func (c discordConn) Disconnect() error     { return c.vc.Disconnect() }
func (c discordConn) Frames() chan<- []byte { return c.vc.OpusSend }

// Player feeds transcoder output into a voice connection as Opus frames.
// Raw PCM is encoded with gopus; Ogg/Opus pages are forwarded as they are.
type Player struct {
	conn   conn
	logger pipeline.Logger
	events chan supervisor.SinkEvent

	mu     sync.Mutex
	cur    *playback
	closed bool
}

type playback struct {
	id      string
	stop    chan struct{}
	done    chan struct{}
	playing bool
}

// NewPlayer wraps a ready voice connection.
func NewPlayer(vc *discordgo.VoiceConnection, logger pipeline.Logger) *Player {
	return newPlayer(discordConn{vc: vc}, logger)
}

func newPlayer(c conn, logger pipeline.Logger) *Player {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Player{
		conn:   c,
		logger: logger.With(pipeline.String("component", "player")),
		events: make(chan supervisor.SinkEvent, eventBuffer),
	}
}

// Events reports Playing on the first frame of a stream, Idle when the
// stream ends and Error when it cannot be decoded or encoded.
func (p *Player) Events() <-chan supervisor.SinkEvent { return p.events }

// Play stops the current stream and starts st.
func (p *Player) Play(st supervisor.Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	p.stopCurrent()

	pb := &playback{id: st.ID, stop: make(chan struct{}), done: make(chan struct{})}
	p.cur = pb
	go p.run(pb, st)
	return nil
}

// Close stops playback and leaves the voice channel.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.stopCurrent()

	return p.conn.Disconnect()
}

func (p *Player) stopCurrent() {
	if p.cur == nil {
		return
	}
	close(p.cur.stop)
	select {
	case <-p.cur.done:
	case <-time.After(stopWait):
		// The reader is still blocked; it ends once its process is killed.
		p.logger.Warn("Playback did not stop in time", pipeline.String("stream", p.cur.id))
	}
	p.cur = nil
}

func (p *Player) run(pb *playback, st supervisor.Stream) {
	defer close(pb.done)

	var err error
	switch st.Container {
	case transcoder.ContainerRawPCM:
		err = p.playPCM(pb, st.Reader)
	case transcoder.ContainerOggOpus:
		err = p.playOgg(pb, st.Reader)
	default:
		err = fmt.Errorf("unsupported container %s", st.Container)
	}
	_ = p.conn.Speaking(false)

	select {
	case <-pb.stop:
		return
	default:
	}

	if err != nil {
		p.logger.Warn("Playback failed", pipeline.String("stream", pb.id), pipeline.Error(err))
		p.emit(pb, supervisor.SinkEvent{StreamID: pb.id, Status: supervisor.SinkError, Err: err})
		return
	}
	p.logger.Debug("Playback ended", pipeline.String("stream", pb.id))
	p.emit(pb, supervisor.SinkEvent{StreamID: pb.id, Status: supervisor.SinkIdle})
}

func (p *Player) playPCM(pb *playback, r io.Reader) error {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return fmt.Errorf("failed to create opus encoder: %w", err)
	}
	encoder.SetBitrate(opusBitrate)

	buf := make([]byte, frameBytes)
	samples := make([]int16, frameSamples*channels)
	for {
		n, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("error reading PCM data: %w", err)
		}

		// A short final frame is padded with silence.
		clear(buf[n:])
		bytesToInt16(buf, samples)

		frame, encErr := encoder.Encode(samples, frameSamples, maxOpusBytes)
		if encErr != nil {
			return fmt.Errorf("opus encoding error: %w", encErr)
		}
		if !p.send(pb, frame) {
			return nil
		}
		if err != nil {
			return nil
		}
	}
}

var (
	opusHead = []byte("OpusHead")
	opusTags = []byte("OpusTags")
)

func (p *Player) playOgg(pb *playback, r io.Reader) error {
	reader, _, err := oggreader.NewWith(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid ogg stream: %w", err)
	}

	for {
		payload, _, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading ogg page: %w", err)
		}
		if len(payload) == 0 || bytes.HasPrefix(payload, opusTags) || bytes.HasPrefix(payload, opusHead) {
			continue
		}
		if !p.send(pb, payload) {
			return nil
		}
	}
}

// send delivers one frame. It reports false once the playback was stopped.
func (p *Player) send(pb *playback, frame []byte) bool {
	select {
	case <-pb.stop:
		return false
	default:
	}

	select {
	case p.conn.Frames() <- frame:
	case <-pb.stop:
		return false
	}

	if !pb.playing {
		pb.playing = true
		_ = p.conn.Speaking(true)
		p.emit(pb, supervisor.SinkEvent{StreamID: pb.id, Status: supervisor.SinkPlaying})
	}
	return true
}

func (p *Player) emit(pb *playback, ev supervisor.SinkEvent) {
	select {
	case <-pb.stop:
		return
	default:
	}
	select {
	case p.events <- ev:
	case <-pb.stop:
	}
}

func bytesToInt16(data []byte, out []int16) {
	for i := range out {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
}
