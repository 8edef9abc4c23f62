package ops

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/stream"
	"github.com/latoulicious/TarumaeRadio/pkg/supervisor"
	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
)

type staticSessions []supervisor.Status

func (s staticSessions) Sessions() []supervisor.Status { return s }

func testSessions() staticSessions {
	return staticSessions{
		{
			GuildID:   "g1",
			ChannelID: "vc1",
			State:     supervisor.StateAudible,
			Source:    "https://hls.example.com/live/playlist.m3u8",
			Kind:      stream.KindPlaylist,
			Codec:     transcoder.CodecRaw,
			Attempt:   2,
			Launches:  3,
			FellBack:  true,
			UpdatedAt: time.Unix(1700000000, 0).UTC(),
		},
		{
			GuildID: "g2",
			State:   supervisor.StateFailed,
			Err:     errors.New("retry limit reached"),
		},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, NewRouter(testSessions(), nil), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["sessions"])
}

func TestSessionsListing(t *testing.T) {
	r := NewRouter(testSessions(), nil)

	rec := get(t, r, "/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var views []sessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "audible", views[0].State)
	assert.Equal(t, "playlist", views[0].Kind)
	assert.Equal(t, "raw", views[0].Codec)
	assert.True(t, views[0].FellBack)
	assert.Empty(t, views[0].Error)
	assert.Equal(t, "failed", views[1].State)
	assert.Equal(t, "retry limit reached", views[1].Error)

	rec = get(t, r, "/sessions/g2")
	require.Equal(t, http.StatusOK, rec.Code)
	var one sessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "g2", one.GuildID)

	assert.Equal(t, http.StatusNotFound, get(t, r, "/sessions/nope").Code)
}

func TestMetricsRoute(t *testing.T) {
	collector := pipeline.NewPrometheusCollector()
	collector.RecordLaunch("raw", "playlist")

	r := NewRouter(staticSessions{}, collector.Handler())
	rec := get(t, r, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tarumae_radio_transcoder_launches_total")

	assert.Equal(t, http.StatusNotFound, get(t, NewRouter(staticSessions{}, nil), "/metrics").Code)
}
