package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
)

// ErrDiscordTokenNotSet is returned when DISCORD_TOKEN is empty.
var ErrDiscordTokenNotSet = errors.New("DISCORD_TOKEN is not set")

const (
	defaultDatabasePath  = "data/radio.db"
	defaultCommandPrefix = "!"
)

type Config struct {
	DiscordToken  string
	FFmpegBinary  string
	FFmpegBundled string
	Codec         transcoder.Codec
	DatabasePath  string
	LogLevel      string
	LogFormat     string
	MetricsAddr   string
	CommandPrefix string
	Production    bool
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(".env")
}

// LoadConfigFrom is LoadConfig with an explicit dotenv file. A missing file
// is not an error; variables already set in the environment win.
func LoadConfigFrom(envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	discordToken := os.Getenv("DISCORD_TOKEN")
	if discordToken == "" {
		return nil, ErrDiscordTokenNotSet
	}

	production := strings.EqualFold(os.Getenv("APP_ENV"), "production")

	// Ogg/Opus saves CPU in production; raw PCM is the safer default elsewhere.
	codec := transcoder.CodecRaw
	if production {
		codec = transcoder.CodecCompact
	}
	if v := os.Getenv("STREAM_CODEC"); v != "" {
		parsed, err := transcoder.ParseCodec(v)
		if err != nil {
			return nil, fmt.Errorf("invalid STREAM_CODEC: %w", err)
		}
		codec = parsed
	}

	cfg := &Config{
		DiscordToken:  discordToken,
		FFmpegBinary:  os.Getenv("FFMPEG_BIN"),
		FFmpegBundled: os.Getenv("FFMPEG_BUNDLED"),
		Codec:         codec,
		DatabasePath:  envOr("RADIO_DB_PATH", defaultDatabasePath),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		LogFormat:     envOr("LOG_FORMAT", "console"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		CommandPrefix: envOr("COMMAND_PREFIX", defaultCommandPrefix),
		Production:    production,
	}
	if production && os.Getenv("LOG_FORMAT") == "" {
		cfg.LogFormat = "json"
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
