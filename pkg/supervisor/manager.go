package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/stream"
	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
)

// Options wires a Manager to its collaborators.
type Options struct {
	Config    *Config
	Launcher  Launcher
	Transport Transport
	Resolver  Resolver
	Logger    pipeline.Logger
	Metrics   pipeline.MetricsCollector
	// OnFailure is called from the session goroutine when a session gives up.
	// It must not call back into that session.
	OnFailure func(Status)
}

// Manager is the registry of streaming sessions, one per guild.
type Manager struct {
	cfg       Config
	launcher  Launcher
	transport Transport
	resolver  Resolver
	logger    pipeline.Logger
	metrics   pipeline.MetricsCollector
	onFailure func(Status)

	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]chan struct{}
}

// NewManager creates an empty registry.
func NewManager(opts Options) *Manager {
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = opts.Config
	}
	logger := opts.Logger
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = pipeline.NopMetrics()
	}

	return &Manager{
		cfg:       *cfg,
		launcher:  opts.Launcher,
		transport: opts.Transport,
		resolver:  opts.Resolver,
		logger:    logger.With(pipeline.String("component", "supervisor")),
		metrics:   metrics,
		onFailure: opts.OnFailure,
		sessions:  make(map[string]*Session),
		pending:   make(map[string]chan struct{}),
	}
}

// GetOrCreate returns the guild's session, connecting the transport and
// starting a new session if there is none. Concurrent callers for the same
// guild share one connection attempt.
func (m *Manager) GetOrCreate(ctx context.Context, dest Destination) (*Session, error) {
	for {
		m.mu.Lock()
		if s, ok := m.sessions[dest.GuildID]; ok {
			m.mu.Unlock()
			return s, nil
		}
		if wait, ok := m.pending[dest.GuildID]; ok {
			m.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		wait := make(chan struct{})
		m.pending[dest.GuildID] = wait
		m.mu.Unlock()

		s, err := m.create(ctx, dest)

		m.mu.Lock()
		delete(m.pending, dest.GuildID)
		if err == nil {
			m.sessions[dest.GuildID] = s
			m.metrics.SetSessions(len(m.sessions))
		}
		m.mu.Unlock()
		close(wait)

		return s, err
	}
}

func (m *Manager) create(ctx context.Context, dest Destination) (*Session, error) {
	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	sink, err := m.transport.Connect(connectCtx, dest)
	if err != nil {
		return nil, fmt.Errorf("connect guild %s channel %s: %w", dest.GuildID, dest.ChannelID, err)
	}

	m.logger.Info("Session created",
		pipeline.String("guild", dest.GuildID),
		pipeline.String("channel", dest.ChannelID),
	)

	return newSession(dest, sink, sessionDeps{
		launcher:  m.launcher,
		cfg:       m.cfg,
		logger:    m.logger,
		metrics:   m.metrics,
		onFailure: m.onFailure,
		release:   m.remove,
	}), nil
}

// Play resolves and classifies locator, then plays it on the guild's session.
// An unusable locator is rejected before any connection or process is made.
func (m *Manager) Play(ctx context.Context, dest Destination, locator string, codec transcoder.Codec) (*Session, error) {
	resolved := locator
	if m.resolver != nil {
		var err error
		if resolved, err = m.resolver.Resolve(ctx, locator); err != nil {
			return nil, err
		}
	}

	src, err := stream.Classify(resolved)
	if err != nil {
		return nil, err
	}

	// A session stopped between lookup and play is replaced once.
	for i := 0; i < 2; i++ {
		s, err := m.GetOrCreate(ctx, dest)
		if err != nil {
			return nil, err
		}
		err = s.Play(src, codec)
		if errors.Is(err, pipeline.ErrSessionStopped) {
			continue
		}
		return s, err
	}
	return nil, pipeline.ErrSessionStopped
}

// Stop stops the guild's session. It reports whether one existed.
func (m *Manager) Stop(guildID string) bool {
	s, ok := m.Session(guildID)
	if !ok {
		return false
	}
	s.Stop()
	return true
}

// Session returns the guild's session if there is one.
func (m *Manager) Session(guildID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[guildID]
	return s, ok
}

// Sessions returns a status snapshot of every session ordered by guild.
func (m *Manager) Sessions() []Status {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(list))
	for _, s := range list {
		out = append(out, s.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}

// Shutdown stops every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	for _, s := range list {
		s.Stop()
	}
	m.logger.Info("All sessions stopped", pipeline.Int("count", len(list)))
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.dest.GuildID]; ok && cur == s {
		delete(m.sessions, s.dest.GuildID)
	}
	m.metrics.SetSessions(len(m.sessions))
}
