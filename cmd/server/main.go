package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/x-agent/internal/api"
	"github.com/xaenox/x-agent/internal/background"
	"github.com/xaenox/x-agent/internal/document"
	"github.com/xaenox/x-agent/internal/generator"
	"github.com/xaenox/x-agent/internal/media"
	"github.com/xaenox/x-agent/internal/metrics"
	"github.com/xaenox/x-agent/internal/provider"
	"github.com/xaenox/x-agent/internal/publisher"
	"github.com/xaenox/x-agent/internal/storage"
	"github.com/xaenox/x-agent/pkg/config"
)

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Database.Host))
		pg, err := storage.NewPostgresStorage(storage.DatabaseConfig{
			URL:             cfg.Database.URL,
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			DBName:          cfg.Database.DBName,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		// Init logs its own failure; persistence is best effort.
		_ = pg.Init(ctx)
		store = pg
	}
	defer store.Close()

	tasks := background.NewGroup(cfg.Generator.PersistTimeout, logger)

	primary := provider.NewGemini(provider.GeminiConfig{
		APIKey:            cfg.Gemini.APIKey,
		Model:             cfg.Gemini.Model,
		BaseURL:           cfg.Gemini.BaseURL,
		Temperature:       cfg.Gemini.Temperature,
		MaxOutputTokens:   int32(cfg.Gemini.MaxTokens),
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
	}, m, logger)
	fallback := provider.NewGroq(provider.GroqConfig{
		APIKey:            cfg.Groq.APIKey,
		Model:             cfg.Groq.Model,
		BaseURL:           cfg.Groq.BaseURL,
		Temperature:       cfg.Groq.Temperature,
		MaxTokens:         cfg.Groq.MaxTokens,
		RequestsPerMinute: cfg.Groq.RequestsPerMinute,
	}, m, logger)

	gen, err := generator.New(generator.Config{
		ContextLimit:       cfg.Generator.ContextLimit,
		DocumentTextBudget: cfg.Generator.DocumentTextBudget,
	}, primary, fallback, document.NewPDFExtractor(), store, tasks, m, logger)
	if err != nil {
		return err
	}

	var uploader media.Uploader
	if cfg.S3.Bucket != "" {
		uploader = media.NewS3Uploader(media.S3Config{
			Bucket:        cfg.S3.Bucket,
			Prefix:        cfg.S3.Prefix,
			Region:        cfg.S3.Region,
			Endpoint:      cfg.S3.Endpoint,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		}, logger)
	} else {
		logger.Warn("S3 bucket not configured, generated images keep their original source")
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Generator: gen,
		Images: media.NewFreepik(media.FreepikConfig{
			APIKey:   cfg.Freepik.APIKey,
			Endpoint: cfg.Freepik.Endpoint,
			Timeout:  cfg.Freepik.Timeout,
		}, logger),
		Uploader: uploader,
		Loader:   media.NewLoader(&http.Client{Timeout: cfg.Freepik.Timeout}),
		Publisher: publisher.NewTelegram(publisher.TelegramConfig{
			Token:  cfg.Telegram.Token,
			ChatID: cfg.Telegram.ChatID,
		}, logger),
		Store:    store,
		Tasks:    tasks,
		Gatherer: reg,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		tasks.Wait()
		return err
	})
	return g.Wait()
}
