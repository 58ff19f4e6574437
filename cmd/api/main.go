package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"
	"github.com/yokitheyo/imageenhancer/internal/config"
	httpHandler "github.com/yokitheyo/imageenhancer/internal/handler/http"
	"github.com/yokitheyo/imageenhancer/internal/handler/middleware"
	"github.com/yokitheyo/imageenhancer/internal/infrastructure/decoder"
	"github.com/yokitheyo/imageenhancer/internal/infrastructure/kafka"
	"github.com/yokitheyo/imageenhancer/internal/infrastructure/processor"
	"github.com/yokitheyo/imageenhancer/internal/repository/memory"
	"github.com/yokitheyo/imageenhancer/internal/retry"
	"github.com/yokitheyo/imageenhancer/internal/usecase"
	"github.com/yokitheyo/imageenhancer/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	zlog.Init()
	zlog.Logger.Info().Msg("Starting Image Enhancer API Server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		zlog.Logger.Warn().Err(err).Str("level", cfg.Logging.Level).Msg("unknown log level, keeping default")
	} else {
		zerolog.SetGlobalLevel(level)
	}

	imageDecoder := decoder.NewImageDecoder(&cfg.Ingestion)
	imageProcessor, err := processor.NewImageProcessor(&cfg.Preview, &cfg.Export)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to initialize image processor")
	}
	enhancer := processor.NewStubEnhancer(time.Duration(cfg.Enhancement.DelayMs) * time.Millisecond)

	publisher := kafka.NewPublisher(&cfg.Events, retry.DefaultStrategy)
	defer func() {
		if err := publisher.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("closing event publisher failed")
		}
	}()

	repo := memory.NewSessionRepository()
	sessionUsecase := usecase.NewSessionUsecase(
		repo,
		imageDecoder,
		enhancer,
		imageProcessor,
		publisher,
		time.Duration(cfg.Session.TTLMinutes)*time.Minute,
	)

	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := worker.NewSessionSweeper(sessionUsecase, time.Duration(cfg.Session.SweepIntervalSec)*time.Second)
	go sweeper.Run(sweeperCtx)

	engine := ginext.New(cfg.Server.Mode)
	engine.Use(
		middleware.ErrorHandlerMiddleware(),
		middleware.LoggerMiddleware(),
		middleware.CORSMiddleware(cfg.Server.CORSOrigin),
	)

	engine.GET("/health", func(c *ginext.Context) {
		c.JSON(http.StatusOK, ginext.H{"status": "ok"})
	})

	sessionHandler := httpHandler.NewSessionHandler(sessionUsecase, imageDecoder.MaxBytes())
	sessionHandler.RegisterRoutes(engine)

	engine.GET("/", func(c *ginext.Context) {
		c.File(filepath.Join(cfg.Server.StaticDir, "index.html"))
	})
	engine.Static("/static", cfg.Server.StaticDir)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	go func() {
		zlog.Logger.Info().Str("addr", cfg.Server.Addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Logger.Fatal().Err(err).Msg("Failed to start API server")
		}
	}()

	<-ctx.Done()
	zlog.Logger.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	} else {
		zlog.Logger.Info().Msg("HTTP server stopped gracefully")
	}

	stopSweeper()
	sessionUsecase.Shutdown()

	zlog.Logger.Info().Msg("API shutdown complete")
}
