// Package ops serves the operator endpoints: metrics, health and a session
// listing.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/supervisor"
)

// StatusSource lists the current sessions.
type StatusSource interface {
	Sessions() []supervisor.Status
}

type sessionView struct {
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	State     string    `json:"state"`
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	Codec     string    `json:"codec"`
	Attempt   int       `json:"attempt"`
	Retries   int       `json:"retries"`
	Launches  int       `json:"launches"`
	FellBack  bool      `json:"fell_back"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func viewOf(st supervisor.Status) sessionView {
	v := sessionView{
		GuildID:   st.GuildID,
		ChannelID: st.ChannelID,
		State:     st.State.String(),
		Source:    st.Source,
		Kind:      st.Kind.String(),
		Codec:     st.Codec.String(),
		Attempt:   st.Attempt,
		Retries:   st.Retries,
		Launches:  st.Launches,
		FellBack:  st.FellBack,
		UpdatedAt: st.UpdatedAt,
	}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	return v
}

// NewRouter builds the ops routes. metrics may be nil.
func NewRouter(sessions StatusSource, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": len(sessions.Sessions()),
		})
	})

	r.Get("/sessions", func(w http.ResponseWriter, _ *http.Request) {
		list := sessions.Sessions()
		views := make([]sessionView, 0, len(list))
		for _, st := range list {
			views = append(views, viewOf(st))
		}
		writeJSON(w, http.StatusOK, views)
	})

	r.Get("/sessions/{guildID}", func(w http.ResponseWriter, req *http.Request) {
		guildID := chi.URLParam(req, "guildID")
		for _, st := range sessions.Sessions() {
			if st.GuildID == guildID {
				writeJSON(w, http.StatusOK, viewOf(st))
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no session for guild"})
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Server is the ops HTTP listener.
type Server struct {
	srv    *http.Server
	logger pipeline.Logger
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler, logger pipeline.Logger) *Server {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger.With(pipeline.String("component", "ops")),
	}
}

// Start listens in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Ops server listening", pipeline.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Ops server failed", pipeline.Error(err))
		}
	}()
}

// Shutdown stops the listener, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
