package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	analyticsapp "hydromet-cloud/internal/analytics/application"
	domainstatistic "hydromet-cloud/internal/analytics/domain/statistic"
	analyticsrepo "hydromet-cloud/internal/analytics/infrastructure/postgres"
	apihttp "hydromet-cloud/internal/api/http"
	"hydromet-cloud/internal/broker"
	"hydromet-cloud/internal/config"
	"hydromet-cloud/internal/fanout"
	masterdatarepo "hydromet-cloud/internal/masterdata/infrastructure/postgres"
	"hydromet-cloud/internal/observability/metrics"
	retentionapp "hydromet-cloud/internal/retention/application"
	telemetryapp "hydromet-cloud/internal/telemetry/application"
	telemetry "hydromet-cloud/internal/telemetry/domain"
	telemetryrepo "hydromet-cloud/internal/telemetry/infrastructure/postgres"
	telemetrymqtt "hydromet-cloud/internal/telemetry/interfaces/mqtt"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("db open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Error("db ping failed", "error", err)
		os.Exit(1)
	}

	metrics.Init()

	zone := domainstatistic.NewTimeZone(cfg.UTCOffsetMinutes)

	stationRepo := masterdatarepo.NewStationRepository(db)
	phenomenonRepo := masterdatarepo.NewPhenomenonRepository(db)
	measurementRepo := telemetryrepo.NewMeasurementRepository(db)
	dailyRepo := analyticsrepo.NewDailyMeasurementRepository(db, analyticsrepo.WithTimeZone(zone))

	var publisher fanout.Publisher
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		publisher, err = fanout.NewRedisPublisher(redisClient, cfg.FanoutChannel)
		if err != nil {
			logger.Error("fanout setup failed", "error", err)
			os.Exit(1)
		}
	} else {
		publisher = fanout.NewLogPublisher(logger)
		logger.Warn("no redis address configured, real-time fanout is log-only")
	}

	policy := telemetry.NewSensorPolicy(cfg.AnomalyCeiling, cfg.ExemptVariables, cfg.Calibrations)
	ingestService, err := telemetryapp.NewIngestService(
		stationRepo, phenomenonRepo, measurementRepo, policy, publisher, logger)
	if err != nil {
		logger.Error("ingest service setup failed", "error", err)
		os.Exit(1)
	}

	queryService, err := analyticsapp.NewBucketQueryService(
		measurementRepo, dailyRepo, stationRepo, phenomenonRepo, zone,
		domainstatistic.SystemClock{}, logger)
	if err != nil {
		logger.Error("query service setup failed", "error", err)
		os.Exit(1)
	}
	rollupService, err := analyticsapp.NewDailyRollupService(dailyRepo, phenomenonRepo, zone, logger)
	if err != nil {
		logger.Error("rollup service setup failed", "error", err)
		os.Exit(1)
	}
	sweeper, err := retentionapp.NewSweeper(measurementRepo, cfg.Retention(), logger)
	if err != nil {
		logger.Error("sweeper setup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.BrokerURL != "" {
		consumer, err := telemetrymqtt.NewConsumer(ingestService, 30*time.Second, logger)
		if err != nil {
			logger.Error("mqtt consumer setup failed", "error", err)
			os.Exit(1)
		}
		brokerCfg := broker.Config{
			URL:           cfg.BrokerURL,
			ClientID:      cfg.BrokerClientID,
			Username:      cfg.BrokerUsername,
			Password:      cfg.BrokerPassword,
			TopicTemplate: cfg.TopicTemplate,
			Interval:      cfg.SubscribeInterval,
			QoS:           byte(cfg.BrokerQoS),
		}
		conn, err := broker.NewConnection(brokerCfg, logger)
		if err != nil {
			logger.Error("broker setup failed", "error", err)
			os.Exit(1)
		}
		manager, err := broker.NewSubscriptionManager(conn, stationRepo, consumer.Handler(), brokerCfg, logger)
		if err != nil {
			logger.Error("subscription manager setup failed", "error", err)
			os.Exit(1)
		}
		if err := conn.Connect(ctx); err != nil {
			logger.Error("broker connect failed", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		go manager.Run(ctx)
	} else {
		logger.Warn("no broker url configured, telemetry arrives over HTTP only")
	}

	statsHandler, err := apihttp.NewStatsHandler(queryService, logger)
	if err != nil {
		logger.Error("handler setup failed", "error", err)
		os.Exit(1)
	}
	rollupHandler, err := apihttp.NewRollupHandler(rollupService, logger)
	if err != nil {
		logger.Error("handler setup failed", "error", err)
		os.Exit(1)
	}
	sweepHandler, err := apihttp.NewSweepHandler(sweeper, false, logger)
	if err != nil {
		logger.Error("handler setup failed", "error", err)
		os.Exit(1)
	}
	truncateHandler, err := apihttp.NewSweepHandler(sweeper, true, logger)
	if err != nil {
		logger.Error("handler setup failed", "error", err)
		os.Exit(1)
	}
	ingestHandler, err := apihttp.NewIngestHandler(ingestService, logger)
	if err != nil {
		logger.Error("handler setup failed", "error", err)
		os.Exit(1)
	}
	exportHandler, err := apihttp.NewExportHandler(dailyRepo, stationRepo, phenomenonRepo, logger)
	if err != nil {
		logger.Error("handler setup failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/statistics", statsHandler)
	mux.Handle("/api/v1/rollup/daily", rollupHandler)
	mux.Handle("/api/v1/rollup/export", exportHandler)
	mux.Handle("/api/v1/retention/sweep", sweepHandler)
	mux.Handle("/api/v1/retention/truncate", truncateHandler)
	mux.Handle("/api/v1/ingest", ingestHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func loggingMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", resp.status, "elapsed", time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
