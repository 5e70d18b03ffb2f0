package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"churnboard/auth"
	"churnboard/config"
	"churnboard/dataset"
	"churnboard/db"
	"churnboard/history"
	qhttp "churnboard/http"
	"churnboard/logging"
	"churnboard/ml"
	"churnboard/monitoring"
	"churnboard/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("churnboard stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetrics()
	}

	// 2. Model bundle
	loader := ml.NewLoader(ml.LoaderConfig{
		URL:             cfg.Model.URL,
		Timeout:         cfg.Model.Timeout,
		RetryBackoff:    cfg.Model.RetryBackoff,
		RefreshInterval: cfg.Model.RefreshInterval,
		MaxBytes:        cfg.Model.MaxBytes,
	}, &http.Client{}, logger.Named("ml"))
	if metrics != nil {
		loader.SetObserver(metrics)
	}
	if cfg.Model.Preload {
		if _, err := loader.Bundle(ctx); err != nil {
			// 启动时拉取失败不致命, 首次预测时会重试
			logger.Warn("model preload failed", zap.Error(err))
		}
	}

	// 3. History and live feed
	hub := monitoring.NewHub(logger.Named("ws"), cfg.Server.AllowedOrigins)
	go hub.Run()
	defer hub.Stop()
	if metrics != nil {
		metrics.RegisterClientGauge(hub.Clients)
	}

	recorder := history.NewRecorder(cfg.History.Path, logger.Named("history"))
	recorder.SetPublisher(hub)

	predictor := pipeline.NewPredictor(loader, recorder, logger.Named("pipeline"))
	if metrics != nil {
		predictor.SetObserver(metrics)
	}

	// 4. Dataset
	source, closeSource, err := openSource(ctx, cfg.Dataset)
	if err != nil {
		return err
	}
	defer closeSource()
	datasets := dataset.NewService(source, cfg.Dataset.PreviewRow, cfg.Dataset.CacheSize, cfg.Dataset.CacheTTL, logger.Named("dataset"))

	// 5. Auth
	var manager *auth.Manager
	if cfg.Auth.Enabled {
		manager, err = auth.NewManager(cfg.Auth.CredentialsFile, logger.Named("auth"))
		if err != nil {
			return err
		}
		if cfg.Auth.Watch {
			go func() {
				if err := manager.Watch(ctx); err != nil {
					logger.Error("credentials watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	// 6. Start HTTP server
	serverCfg := qhttp.DefaultServerConfig()
	serverCfg.Port = cfg.Server.Port
	serverCfg.Timeout = cfg.Server.Timeout
	serverCfg.AllowedOrigins = cfg.Server.AllowedOrigins
	serverCfg.MetricsPath = cfg.Metrics.Path

	server, err := qhttp.NewServer(serverCfg, qhttp.Deps{
		Predictor: predictor,
		History:   recorder,
		Dataset:   datasets,
		Models:    loader,
		Auth:      manager,
		Stream:    hub,
		Metrics:   metrics,
		Logger:    logger.Named("http"),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	// 7. Handle graceful shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func openSource(ctx context.Context, cfg config.DatasetConfig) (dataset.Source, func(), error) {
	switch cfg.Driver {
	case "csv":
		return &dataset.CSVSource{URL: cfg.URL, Client: &http.Client{Timeout: time.Minute}}, func() {}, nil
	case "sqlite3", "postgres":
		store, err := db.Open(ctx, cfg.Driver, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unsupported dataset driver %q", cfg.Driver)
}
