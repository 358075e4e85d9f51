package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/dago-view-render/internal/config"
	"github.com/aescanero/dago-view-render/internal/errorpage"
	"github.com/aescanero/dago-view-render/internal/eval/css"
	"github.com/aescanero/dago-view-render/internal/logging"
	"github.com/aescanero/dago-view-render/internal/render"
	"github.com/aescanero/dago-view-render/internal/server"
	"github.com/aescanero/dago-view-render/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting render server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// Log configuration (without sensitive data)
	logger.Info("configuration loaded", zap.String("config", cfg.String()))

	renderer, err := newRenderer(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize renderer", zap.Error(err))
	}

	settings := server.Settings{
		Port:          cfg.HTTPPort,
		CreatedBy:     cfg.CreatedBy,
		RenderTimeout: cfg.RenderTimeout,
	}
	if cfg.RoutesFile != "" {
		settings.Routes, err = server.LoadRoutes(cfg.RoutesFile)
		if err != nil {
			logger.Fatal("failed to load routes", zap.Error(err))
		}
	}
	if cfg.ErrorTemplate != "" {
		settings.ErrorPage, err = errorpage.Load(cfg.ErrorTemplate)
		if err != nil {
			logger.Fatal("failed to load error template", zap.Error(err))
		}
	}

	checks := map[string]server.Check{
		"templates": server.DirCheck(cfg.RootDir),
	}

	// Redis is only needed by the worker
	var redisClient *redis.Client
	var w *worker.Worker
	if cfg.WorkerEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		checks["redis"] = worker.PingCheck(redisClient)

		w = worker.NewWorker(worker.Settings{
			ID:            cfg.WorkerID,
			StreamKey:     cfg.StreamKey,
			ConsumerGroup: cfg.ConsumerGroup,
			ResultStream:  cfg.ResultStream,
			ResultTTL:     cfg.ResultTTL,
			BlockTime:     cfg.BlockTime,
			RenderTimeout: cfg.RenderTimeout,
		},
			redisClient,
			renderer,
			worker.NewRedisOutputStore(redisClient, logger),
			worker.NewRedisPublisher(redisClient, logger),
			logger,
		)
		if err := w.Start(); err != nil {
			logger.Fatal("failed to start worker", zap.Error(err))
		}
	}

	// Start HTTP server
	srv := server.New(settings, renderer, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start http server", zap.Error(err))
	}

	// Start health server
	healthServer := server.NewHealthServer(cfg.HealthPort, checks, logger)
	if err := healthServer.Start(); err != nil {
		logger.Fatal("failed to start health server", zap.Error(err))
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("render server running, press Ctrl+C to stop")
	<-sigChan

	logger.Info("shutdown signal received, stopping server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := healthServer.Stop(); err != nil {
		logger.Error("failed to stop health server", zap.Error(err))
	}

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop http server", zap.Error(err))
	}

	if w != nil {
		if err := w.Stop(); err != nil {
			logger.Error("failed to stop worker", zap.Error(err))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("failed to close redis connection", zap.Error(err))
		}
	}

	select {
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing exit")
	default:
		logger.Info("server stopped gracefully")
	}
}

// newRenderer builds the template renderer with the stylesheet post-processor
func newRenderer(cfg *config.Config, logger *zap.Logger) (*render.Renderer, error) {
	defaults, err := cfg.DefaultValues()
	if err != nil {
		return nil, err
	}

	processor := css.NewProcessor(css.Options{
		Stage:    cfg.CSSStage,
		Disabled: cfg.CSSDisabledFeatures,
	})
	logger.Info("stylesheet features enabled", zap.Strings("features", processor.Features()))

	return render.NewRenderer(render.Options{
		OpenBracket:   cfg.OpenBracket,
		CloseBracket:  cfg.CloseBracket,
		RootDir:       cfg.RootDir,
		PartialsDir:   cfg.Partials(),
		DefaultValues: defaults,
		MaxDepth:      cfg.MaxPartialDepth,
	},
		render.WithTransformer(processor),
		render.WithLogger(logger),
	)
}
