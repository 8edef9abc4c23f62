package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStructuredLogging tests the structured logging system
func TestStructuredLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(LoggingConfig{Level: "debug", Format: "json", Output: &buf})

	child := logger.With(String("component", "test"))
	child.Info("Transcoder started",
		String("guild", "g1"),
		Int("attempt", 2),
		Bool("playlist", true),
		Duration("startup", 8*time.Second),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Transcoder started", entry["message"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, "g1", entry["guild"])
	assert.EqualValues(t, 2, entry["attempt"])
	assert.Equal(t, true, entry["playlist"])
}

func TestStructuredLoggingLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(LoggingConfig{Level: "warn", Format: "json", Output: &buf})

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown", Error(errors.New("boom")))
	assert.Contains(t, buf.String(), "boom")
}

func TestNullLogger(t *testing.T) {
	logger := NullLogger()
	logger.Error("nothing happens", Any("k", 1))
	logger.With(String("a", "b")).Info("still nothing")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  ErrorCategory
		retryable bool
	}{
		{"invalid locator", fmt.Errorf("parse: %w", ErrInvalidLocator), CategoryInput, false},
		{"binary", ErrBinaryUnavailable, CategorySystem, false},
		{"capability", ErrCapabilityRejected, CategoryProcess, true},
		{"stall", Wrapf(ErrStallTimeout, "no output for %s", "8s"), CategoryStream, true},
		{"exit", ErrProcessExit, CategoryProcess, true},
		{"sink", ErrSinkRejection, CategoryVoice, true},
		{"exhausted", ErrRetryExhausted, CategoryStream, false},
		{"unknown", errors.New("what"), CategoryUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := Classify(tt.err)
			assert.Equal(t, tt.category, pe.Category)
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.ErrorIs(t, pe, tt.err)
		})
	}
}

func TestClassifyKeepsExistingPipelineError(t *testing.T) {
	pe := NewPipelineError(ErrStallTimeout, CategoryNetwork, SeverityLow).WithContext("guild", "g1")
	wrapped := fmt.Errorf("outer: %w", pe)

	got := Classify(wrapped)
	assert.Same(t, pe, got)
	assert.Equal(t, "g1", got.Context["guild"])
}

func TestPrometheusCollector(t *testing.T) {
	c := NewPrometheusCollector()

	c.RecordLaunch("compact", "playlist")
	c.RecordLaunch("compact", "playlist")
	c.RecordRelaunch("stall")
	c.RecordStateChange("starting", "audible")
	c.RecordError(ErrProcessExit)
	c.SetSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.launches.WithLabelValues("compact", "playlist")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.relaunches.WithLabelValues("stall")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("starting", "audible")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("process", "medium")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.sessions))
}
