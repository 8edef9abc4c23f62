package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/TarumaeRadio/internal/commands"
	"github.com/latoulicious/TarumaeRadio/internal/config"
	"github.com/latoulicious/TarumaeRadio/internal/handlers"
	"github.com/latoulicious/TarumaeRadio/internal/ops"
	"github.com/latoulicious/TarumaeRadio/internal/presence"
	"github.com/latoulicious/TarumaeRadio/pkg/cron"
	"github.com/latoulicious/TarumaeRadio/pkg/database"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/stream"
	"github.com/latoulicious/TarumaeRadio/pkg/supervisor"
	"github.com/latoulicious/TarumaeRadio/pkg/transcoder"
	"github.com/latoulicious/TarumaeRadio/pkg/voice"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := pipeline.NewStructuredLogger(pipeline.LoggingConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	// discordgo and the remaining log.Printf callers go through the same sink.
	log.SetFlags(0)
	log.SetOutput(pipeline.NewStdLogAdapter(logger))

	supCfg := supervisor.DefaultConfig()
	supCfg.LoadFromEnvironment()
	if err := supCfg.Validate(); err != nil {
		log.Fatalf("Invalid supervisor config: %v", err)
	}

	binary, err := transcoder.ResolveBinary(transcoder.BinaryOptions{
		Configured: cfg.FFmpegBinary,
		Bundled:    cfg.FFmpegBundled,
	})
	if err != nil {
		log.Fatalf("No usable ffmpeg: %v", err)
	}
	logger.Info("Transcoder resolved",
		pipeline.String("binary", binary),
		pipeline.String("codec", cfg.Codec.String()),
		pipeline.Bool("fallback", !supCfg.DisableFallback),
	)

	catalog, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open station catalog: %v", err)
	}
	defer catalog.Close()

	// Create a new Discord session using the provided token
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatalf("Failed to create Discord session: %v", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	metrics := pipeline.NewPrometheusCollector()
	presenceManager := presence.NewPresenceManager(dg, logger)

	launcher := transcoder.NewLauncher(transcoder.Options{
		Binary:    binary,
		Probe:     supCfg.ProbeProfile,
		KillGrace: supCfg.KillGrace,
	}, logger)

	var bot *commands.Bot
	manager := supervisor.NewManager(supervisor.Options{
		Config:    supCfg,
		Launcher:  supervisor.FromTranscoder(launcher),
		Transport: voice.NewTransport(dg, logger),
		Resolver:  stream.NewResolver(logger),
		Logger:    logger,
		Metrics:   metrics,
		OnFailure: func(st supervisor.Status) { bot.HandleFailure(st) },
	})

	bot = commands.NewBot(commands.Options{
		Sessions: manager,
		Catalog:  catalog,
		Presence: presenceManager,
		Out:      dg,
		Voice: func(guildID, userID string) (string, error) {
			return voice.UserVoiceChannel(dg.State, guildID, userID)
		},
		Codec:       cfg.Codec,
		Prefix:      cfg.CommandPrefix,
		Logger:      logger,
		PlayTimeout: supCfg.ConnectTimeout + supCfg.StartupTimeout,
	})

	dg.AddHandler(handlers.NewMessageHandler(bot))
	dg.AddHandler(handlers.NewInteractionHandler(bot))
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info("Connected to Discord",
			pipeline.String("user", r.User.Username),
			pipeline.Int("guilds", len(r.Guilds)),
		)
		presenceManager.Reset()
		presenceManager.Refresh()
	})

	// Open a websocket connection to Discord and begin listening.
	if err := dg.Open(); err != nil {
		log.Fatalf("Failed to open Discord session: %v", err)
	}

	var opsServer *ops.Server
	if cfg.MetricsAddr != "" {
		opsServer = ops.NewServer(cfg.MetricsAddr, ops.NewRouter(manager, metrics.Handler()), logger)
		opsServer.Start()
	}

	scheduler := cron.NewScheduler(logger)
	if err := scheduler.AddJob("presence-refresh", "0 */5 * * * *", func() error {
		presenceManager.Refresh()
		return nil
	}); err != nil {
		logger.Warn("Presence refresh not scheduled", pipeline.Error(err))
	}
	if err := scheduler.AddJob("session-report", "0 * * * * *", func() error {
		reportSessions(logger, manager.Sessions())
		return nil
	}); err != nil {
		logger.Warn("Session report not scheduled", pipeline.Error(err))
	}

	logger.Info("Bot is running. Press CTRL-C to exit.", pipeline.String("prefix", cfg.CommandPrefix))
	// Wait here until CTRL-C or other term signal is received.
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Info("Shutting down")
	scheduler.Stop()
	manager.Shutdown()
	if opsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := opsServer.Shutdown(ctx); err != nil {
			logger.Warn("Ops server shutdown", pipeline.Error(err))
		}
		cancel()
	}

	// Cleanly close down the Discord session.
	dg.Close()
}

// reportSessions logs one line per session that is not idle.
func reportSessions(logger pipeline.Logger, sessions []supervisor.Status) {
	for _, st := range sessions {
		if st.State == supervisor.StateIdle {
			continue
		}
		logger.Info("Session report",
			pipeline.String("guild", st.GuildID),
			pipeline.String("state", st.State.String()),
			pipeline.String("codec", st.Codec.String()),
			pipeline.Int("retries", st.Retries),
			pipeline.Int("launches", st.Launches),
			pipeline.Bool("fell_back", st.FellBack),
		)
	}
}
