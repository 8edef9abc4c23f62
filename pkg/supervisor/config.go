package supervisor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
)

// Config contains the timing and retry policy of streaming sessions.
type Config struct {
	MaxRetries       int                     `json:"max_retries"`
	StartupTimeout   time.Duration           `json:"startup_timeout"`
	LivenessInterval time.Duration           `json:"liveness_interval"`
	SilenceThreshold time.Duration           `json:"silence_threshold"`
	FallbackDelay    time.Duration           `json:"fallback_delay"`
	ConnectTimeout   time.Duration           `json:"connect_timeout"`
	DisableFallback  bool                    `json:"disable_fallback"`
	ProbeProfile     transcoder.ProbeProfile `json:"probe_profile"`
	KillGrace        time.Duration           `json:"kill_grace"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       5,
		StartupTimeout:   8 * time.Second,
		LivenessInterval: 5 * time.Second,
		SilenceThreshold: 20 * time.Second,
		FallbackDelay:    10 * time.Second,
		ConnectTimeout:   15 * time.Second,
		DisableFallback:  false,
		ProbeProfile:     transcoder.ProbeFastStart,
		KillGrace:        400 * time.Millisecond,
	}
}

// LoadFromEnvironment loads configuration values from environment variables
func (c *Config) LoadFromEnvironment() {
	if val := os.Getenv("SUPERVISOR_MAX_RETRIES"); val != "" {
		if retries, err := strconv.Atoi(val); err == nil {
			c.MaxRetries = retries
		}
	}

	durations := map[string]*time.Duration{
		"SUPERVISOR_STARTUP_TIMEOUT":   &c.StartupTimeout,
		"SUPERVISOR_LIVENESS_INTERVAL": &c.LivenessInterval,
		"SUPERVISOR_SILENCE_THRESHOLD": &c.SilenceThreshold,
		"SUPERVISOR_FALLBACK_DELAY":    &c.FallbackDelay,
		"SUPERVISOR_CONNECT_TIMEOUT":   &c.ConnectTimeout,
		"SUPERVISOR_KILL_GRACE":        &c.KillGrace,
	}
	for key, dst := range durations {
		if val := os.Getenv(key); val != "" {
			if d, err := time.ParseDuration(val); err == nil {
				*dst = d
			}
		}
	}

	if val := os.Getenv("SUPERVISOR_PROBE_PROFILE"); val != "" {
		if p, err := transcoder.ParseProbeProfile(val); err == nil {
			c.ProbeProfile = p
		}
	}

	// Any value switches the fallback off, "0" and "false" included.
	if strings.TrimSpace(os.Getenv("NO_CODEC_FALLBACK")) != "" {
		c.DisableFallback = true
	}
}

// Validate validates the configuration and returns any errors
func (c *Config) Validate() error {
	var errors []string

	if c.MaxRetries < 0 {
		errors = append(errors, "max_retries must be >= 0")
	}
	if c.StartupTimeout <= 0 {
		errors = append(errors, "startup_timeout must be > 0")
	}
	if c.LivenessInterval <= 0 {
		errors = append(errors, "liveness_interval must be > 0")
	}
	if c.SilenceThreshold < c.LivenessInterval {
		errors = append(errors, "silence_threshold must be >= liveness_interval")
	}
	if c.FallbackDelay <= 0 {
		errors = append(errors, "fallback_delay must be > 0")
	}
	if c.ConnectTimeout <= 0 {
		errors = append(errors, "connect_timeout must be > 0")
	}
	if c.KillGrace <= 0 {
		errors = append(errors, "kill_grace must be > 0")
	}
	if _, err := transcoder.ParseProbeProfile(string(c.ProbeProfile)); err != nil {
		errors = append(errors, "probe_profile must be one of: fast, robust")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}
