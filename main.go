package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pong-arena/config"
	"pong-arena/handlers"
	"pong-arena/metrics"
	"pong-arena/middleware"
	"pong-arena/models"
	"pong-arena/realtime"
	"pong-arena/services"
	"pong-arena/utils"
	"pong-arena/workers"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func openStore(cfg config.Config) (services.Store, *gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, results and snapshots kept in memory only")
		return services.NewMemoryStore(), nil, nil
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "failed to connect to database")
	}
	if err := db.AutoMigrate(
		&models.TournamentUser{},
		&models.MatchRecord{},
		&models.TournamentSnapshot{},
		&models.TournamentParticipation{},
	); err != nil {
		return nil, nil, eris.Wrap(err, "failed to migrate database")
	}
	return services.NewGormStore(db), db, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, reading environment variables directly")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	arenaMetrics := metrics.NewMetrics(registry)

	store, db, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	persistCtx, stopPersist := context.WithCancel(context.Background())
	async := services.NewAsyncStore(store)
	go async.Run(persistCtx)

	presence := services.NewPresenceService(db)

	var locks *services.ActivityLockService
	hub := realtime.NewHub(realtime.WithConnectHook(func(userID string) {
		locks.ResetLocksForUser(userID)
	}))
	locks = services.NewActivityLockService(hub)

	sessions := services.NewSessionRegistry(ctx, hub, locks, async,
		services.WithIdleTimeout(cfg.SessionIdleTimeout),
		services.WithRegistryMetrics(arenaMetrics),
		services.WithSessionOptions(services.WithTickInterval(cfg.TickInterval())),
	)
	matchmaking := services.NewMatchmakingService(sessions, locks, hub,
		services.WithQueueTimeout(cfg.QueueTimeout),
		services.WithQueueMetrics(arenaMetrics),
	)
	invites := services.NewInviteService(sessions, locks, hub, services.WithInviteTimeout(cfg.InviteTimeout))

	tournamentCfg := services.DefaultTournamentConfig()
	tournamentCfg.Countdown = cfg.Countdown
	tournamentCfg.InviteTimeout = cfg.InviteTimeout
	tournamentCfg.DeclineCancelThreshold = cfg.DeclineCancelThreshold
	tournamentCfg.NoShowRetries = cfg.NoShowRetries
	tournamentOpts := []services.TournamentOption{
		services.WithTournamentConfig(tournamentCfg),
		services.WithTournamentMetrics(arenaMetrics),
	}
	if cfg.R2Enabled() {
		archiver, err := utils.NewR2Archiver(ctx, utils.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKey,
			AccessKeySecret: cfg.R2Secret,
			Bucket:          cfg.R2Bucket,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize R2 client")
		}
		tournamentOpts = append(tournamentOpts, services.WithArchiver(archiver))
	}
	tournaments := services.NewTournamentService(sessions, locks, hub, async, presence, tournamentOpts...)

	loaded, err := async.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load tournament snapshots, starting empty")
	} else {
		tournaments.Restore(loaded)
	}

	hub.SetDispatcher(handlers.NewRealtimeHandler(sessions, matchmaking, invites, tournaments, hub, arenaMetrics))

	scheduler, err := services.StartScheduler(services.SchedulerConfig{
		TournamentTick: cfg.TournamentTickInterval,
		TournamentHeal: cfg.TournamentHealInterval,
		QueueSweep:     time.Second,
		InviteSweep:    time.Second,
		SessionSweep:   5 * time.Second,
		GaugeRefresh:   5 * time.Second,
	}, services.Jobs{
		Tournaments: tournaments,
		Matchmaking: matchmaking,
		Invites:     invites,
		Registry:    sessions,
		Metrics:     arenaMetrics,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	if db != nil && cfg.SyncServiceURL != "" {
		workers.NewProfileSyncWorker(db, cfg.SyncServiceURL, cfg.SyncEndpointPath, cfg.GameServiceToken, cfg.SyncInterval, presence).Start(ctx)
	}

	var tokenValidator middleware.TokenValidator
	if cfg.AuthServiceURL != "" {
		tokenValidator = services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.GameServiceToken)
	}

	app := fiber.New(fiber.Config{
		AppName:               "pong-arena",
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-Device-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	deps := handlers.ArenaDeps{
		Hub:       hub,
		Registry:  sessions,
		Locks:     locks,
		Presence:  presence,
		Stats:     async,
		Gatherer:  registry,
		WSAuth:    middleware.WebSocketAuthMiddleware(tokenValidator),
		StartedAt: time.Now(),
	}
	handlers.SetupOpsRoutes(app, deps)
	api := app.Group("/", middleware.GatewayAuthMiddleware(cfg.GameServiceToken))
	handlers.SetupArenaRoutes(api, deps)
	handlers.SetupTournamentRoutes(api, tournaments)

	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}()
	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("origins", cfg.Origins()).
		Bool("database", db != nil).
		Bool("archive", cfg.R2Enabled()).
		Msg("pong arena running")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := scheduler.Shutdown(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown failed")
	}
	stopPersist()
	<-async.Done()
	log.Info().Msg("shutdown complete")
}
