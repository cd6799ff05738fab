package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tracker-codec/internal/api"
	"tracker-codec/internal/config"
	"tracker-codec/internal/forward"
	"tracker-codec/internal/link"
	"tracker-codec/internal/observability"
	"tracker-codec/internal/pipeline"
	"tracker-codec/internal/server"
	"tracker-codec/internal/storage"
	"tracker-codec/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config load failed")
	}
	logger := observability.NewLogger(cfg.LogLevel)
	logger.WithFields(logrus.Fields{"tcp_port": cfg.TCPPort, "http_port": cfg.HTTPPort}).Info("Starting tracker-codec...")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("tracker-codec stopped")
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	// Inicializar Redis antes del server
	rdb, err := store.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()
	cache := store.New(rdb, store.WithDedupTTL(cfg.DedupTTL))

	history := storage.NewSqliteStore(cfg.SQLitePath)
	defer func() {
		if err := history.Close(); err != nil {
			logger.WithError(err).Warn("sqlite close failed")
		}
	}()

	sinks := []pipeline.Sink{cache, history}
	if cfg.GRPCForwarder != "" {
		fwd, err := forward.NewClient(cfg.GRPCForwarder)
		if err != nil {
			return err
		}
		defer fwd.Close()
		sinks = append(sinks, fwd)
	}

	proc := pipeline.NewProcessor(
		pipeline.WithSinks(sinks...),
		pipeline.WithDeduper(cache),
		pipeline.WithOptionsResolver(cfg.DeviceOptions),
		pipeline.WithLogger(logger),
	)

	httpSrv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.New(proc, logger,
			api.WithLastStore(cache),
			api.WithHistory(history),
			api.WithOptionsResolver(cfg.DeviceOptions),
		)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.WithField("addr", httpSrv.Addr).Info("HTTP API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx, ":"+cfg.TCPPort, server.New(proc, logger, server.WithRawLog(cfg.RawLogDir))); err != nil {
			errs <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = link.NewClient(cfg.FeedAddr, proc, logger).Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP shutdown failed")
	}
	wg.Wait()
	return runErr
}
