package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/alert-relay/internal/api"
	"github.com/notifyhub/alert-relay/internal/broadcast"
	"github.com/notifyhub/alert-relay/internal/config"
	"github.com/notifyhub/alert-relay/internal/db"
	"github.com/notifyhub/alert-relay/internal/envelope"
	"github.com/notifyhub/alert-relay/internal/metrics"
	"github.com/notifyhub/alert-relay/internal/ratelimiter"
	"github.com/notifyhub/alert-relay/internal/repository"
	"github.com/notifyhub/alert-relay/internal/service"
	"github.com/notifyhub/alert-relay/internal/signature"
	"github.com/notifyhub/alert-relay/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		boot, _ := zap.NewProduction()
		boot.Fatal("failed to load config", zap.Error(err))
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- queue store ----
	client, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer client.Close()

	store := repository.NewRedisAlertStore(client, cfg.AlertTTL)

	// ---- webhook verification ----
	keyPEM := signature.KickPublicKey
	if cfg.KickPublicKeyPEM != "" {
		keyPEM = cfg.KickPublicKeyPEM
	}
	verifier, err := signature.NewVerifierFromPEM([]byte(keyPEM))
	if err != nil {
		logger.Fatal("invalid webhook public key", zap.Error(err))
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := broadcast.NewHub(cfg.HeartbeatInterval, logger, broadcast.Hooks{OnSendFailed: m.OnSendFailed})

	registry := worker.NewRegistry()
	if cfg.WorkerLeaseEnabled {
		registry = worker.NewLeasedRegistry(store, cfg.WorkerLeaseTTL)
	}

	onDelivered, onDropped, onExit := m.WorkerHooks()
	mgr := worker.NewManager(
		store, hub, ratelimiter.New(cfg.DeliveryRate), registry,
		worker.ManagerConfig{
			ScanInterval:     cfg.ScanInterval,
			ScanErrorBackoff: cfg.ScanErrorBackoff,
			Consumer: worker.ConsumerConfig{
				DequeueTimeout: cfg.DequeueTimeout,
				MaxIdle:        cfg.MaxIdleCycles,
				ErrorBackoff:   cfg.ErrorBackoff,
				LoadRetries:    cfg.LoadRetries,
				LoadRetryDelay: cfg.LoadRetryDelay,
			},
		},
		logger,
		worker.MetricHooks{OnDelivered: onDelivered, OnDropped: onDropped, OnExit: onExit},
	)
	m.RegisterGauges(mgr.ActiveWorkers, hub.Len)

	svc := service.NewAlertService(verifier, envelope.NewBuilder(), store, logger, service.Hooks{
		OnReceived: m.OnReceived,
		OnRejected: m.OnRejected,
	})

	// ---- HTTP server ----
	router := api.NewRouter(api.Dependencies{
		Service:          svc,
		Hub:              hub,
		Workers:          mgr,
		Ping:             func(ctx context.Context) error { return client.Ping(ctx).Err() },
		Registry:         reg,
		Logger:           logger,
		WebhookRateLimit: cfg.WebhookRateLimit,
		WriteWait:        cfg.WriteWait,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// ---- run until a signal or a fatal error ----
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		mgr.Run(gctx)
		// consumers share gctx; wait for their in-flight alerts
		mgr.Wait()
		return nil
	})

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		// Stop accepting new HTTP requests. Overlay sockets are closed by the hub.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped cleanly")
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		zcfg := zap.NewProductionConfig()
		if lvl, perr := zap.ParseAtomicLevel(level); perr == nil {
			zcfg.Level = lvl
		}
		logger, err = zcfg.Build()
	}
	if err != nil {
		panic(err)
	}
	return logger
}
