package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"otc-exchange/internal/api"
	"otc-exchange/internal/cache"
	"otc-exchange/internal/config"
	"otc-exchange/internal/db"
	"otc-exchange/internal/engine"
	"otc-exchange/internal/events"
	"otc-exchange/internal/logging"
	"otc-exchange/internal/metrics"
	"otc-exchange/internal/pda"
	"otc-exchange/internal/queue"
	"otc-exchange/internal/store"
	"otc-exchange/internal/store/memory"
	"otc-exchange/internal/ws"
)

const logModule = "main"

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatalf("logging: %v", err)
	}
	logger := log.WithField("module", logModule)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	var st store.Store
	switch cfg.Store {
	case "memory":
		st = memory.New()
		logger.Warn("using in-memory store; state is lost on exit")
	default:
		pg, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open: %v", err)
		}
		defer pg.Close()
		logger.Info("connected to database")

		if err := pg.Migrate(cfg.MigrationsDir); err != nil {
			logger.Fatalf("migrate: %v", err)
		}
		logger.Info("migrations applied")
		st = pg
	}

	// Event sinks
	hub := ws.NewHub()
	mtr := metrics.New()
	fanout := events.NewFanout(hub, mtr)

	var stats *cache.StatsCache
	if cfg.RedisAddr != "" {
		stats = cache.NewStatsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StatsTTL)
		defer stats.Close()
		if err := stats.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unreachable; stats are served uncached until it recovers")
		}
		fanout.Add(stats)
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := queue.NewProducer(queue.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		defer producer.Close()
		fanout.Add(producer)
		logger.WithField("topic", cfg.KafkaTopic).Info("publishing events to kafka")
	}

	// Engine manager
	mgr := engine.NewManager(st, pda.NewDeriver(cfg.ProgramID), fanout)
	mgr.SetObserver(mtr)
	if err := mgr.Boot(ctx); err != nil {
		logger.Fatalf("engine boot: %v", err)
	}
	defer mgr.Stop()

	if !cfg.KeeperAddress.IsZero() {
		sweeper := engine.NewSweeper(mgr, cfg.KeeperAddress, cfg.SweepInterval)
		go sweeper.Run(ctx)
		logger.WithField("interval", cfg.SweepInterval).Info("expiry sweeper started")
	}

	// HTTP
	srv := api.NewServer(st, mgr, hub, cfg.JWTSecret).
		WithMetrics(mtr).
		WithAdmins(cfg.IsAdmin).
		WithAccessLog(cfg.AccessLog)
	if stats != nil {
		srv.WithCache(stats)
	}
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("http shutdown")
		}
	}()

	logger.Infof("listening on :%s", cfg.Port)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server: %v", err)
	}
}
