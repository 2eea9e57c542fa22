package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sleigh-tracker/internal/api"
	"sleigh-tracker/internal/clock"
	"sleigh-tracker/internal/config"
	"sleigh-tracker/internal/db"
	"sleigh-tracker/internal/logging"
	"sleigh-tracker/internal/metrics"
	"sleigh-tracker/internal/playback"
	"sleigh-tracker/internal/publisher"
	"sleigh-tracker/internal/timeline"
	"sleigh-tracker/internal/tracker"
	"sleigh-tracker/internal/waypoint"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewStructuredLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logging.WithLogger(ctx, logger)

	schedule, err := timeline.LoadScheduleFile(cfg.SchedulePath)
	if err != nil {
		logging.LogError(logger, "schedule load failed", err, slog.String("path", cfg.SchedulePath))
		os.Exit(1)
	}

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.FrameInterval, cfg.BedtimeHour, cfg.BedtimeMinute)
		metricsSrv = mcol.Serve(cfg.MetricsAddr, logger)
	}

	backend, closeBackend := openBackend(ctx, cfg)
	defer closeBackend()

	sink, closeSink := openSink(cfg, mcol, logger)
	defer closeSink()

	clk := clock.NewSystem(cfg.Location)
	engine := playback.NewEngine(playback.Options{
		Clock:         clk,
		Formatter:     playback.NewFormatter(cfg.Location, cfg.Locale),
		Sink:          sink,
		FrameInterval: cfg.FrameInterval,
		Metrics:       mcol,
		Logger:        logger,
	})
	session := tracker.New(tracker.Options{
		Schedule:        schedule,
		Store:           waypoint.NewStore(backend, waypoint.Normalizer{}, logger),
		Engine:          engine,
		Clock:           clk,
		BedtimeHour:     cfg.BedtimeHour,
		BedtimeMinute:   cfg.BedtimeMinute,
		Location:        cfg.Location,
		RefreshInterval: cfg.WaypointRefresh,
		Metrics:         mcol,
		Logger:          logger,
	})
	if err := session.Load(ctx); err != nil {
		logging.LogError(logger, "waypoints unavailable; playing schedule only", err)
	}
	first, _ := session.Timeline().First()
	logging.LogOperation(logger, "tracker ready",
		slog.Int("stops", len(session.Timeline())),
		slog.String("zone", string(session.Zone())),
		slog.Time("launch", first),
	)

	engine.Start(ctx)
	session.StartRefresher(ctx)

	var apiSrv *http.Server
	if cfg.HTTPAddr != "" {
		apiSrv = api.NewServer(session, api.Options{
			SubmitRatePerMin: cfg.SubmitRatePerMin,
			AccessLog:        os.Stderr,
			Logger:           logger,
		}).Serve(cfg.HTTPAddr)
	}

	// Block until context cancelled
	<-ctx.Done()
	session.Stop()
	engine.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelShutdown()
	for _, srv := range []*http.Server{apiSrv, metricsSrv} {
		if srv != nil {
			_ = srv.Shutdown(shutdownCtx)
		}
	}
	logger.Info("shutdown complete")
}

// openBackend picks the waypoint store. Database failures fall back to memory.
func openBackend(ctx context.Context, cfg *config.Config) (waypoint.Backend, func()) {
	logger := logging.FromContext(ctx)
	switch cfg.WaypointStore {
	case config.StorePostgres:
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err == nil {
			err = db.Ping(ctx, sqlDB)
		}
		if err == nil {
			err = db.EnsureSchema(ctx, sqlDB)
		}
		if err != nil {
			logging.LogError(logger, "postgres unavailable; keeping waypoints in memory", err)
			if sqlDB != nil {
				sqlDB.Close()
			}
			break
		}
		logger.Info("waypoint store", "backend", "postgres")
		return db.Blobs{DB: sqlDB}, func() { sqlDB.Close() }
	case config.StoreSQLite:
		b, err := waypoint.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			logging.LogError(logger, "sqlite unavailable; keeping waypoints in memory", err, slog.String("path", cfg.SQLitePath))
			break
		}
		logger.Info("waypoint store", "backend", "sqlite", "path", cfg.SQLitePath)
		return b, func() { b.Close() }
	}
	logger.Info("waypoint store", "backend", "memory")
	return waypoint.NewMemoryBackend(), func() {}
}

// openSink connects the frame sink. A broker that cannot be reached leaves the
// engine running without one.
func openSink(cfg *config.Config, mcol *metrics.Collector, logger *slog.Logger) (playback.Sink, func()) {
	var m publisher.Metrics
	if mcol != nil {
		m = mcol
	}
	switch cfg.Sink {
	case config.SinkNATS:
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, m, logger)
		if err != nil {
			logging.LogError(logger, "nats unavailable; frames will not be published", err)
			return nil, func() {}
		}
		return pub, pub.Close
	case config.SinkKafka:
		pub, err := publisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, m, logger)
		if err != nil {
			logging.LogError(logger, "kafka unavailable; frames will not be published", err)
			return nil, func() {}
		}
		return pub, pub.Close
	}
	return nil, func() {}
}
