// main.go - The entry point and router setup.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bosocmputer/invoice_scanner/configs"
	"github.com/bosocmputer/invoice_scanner/internal/accounts"
	"github.com/bosocmputer/invoice_scanner/internal/ai"
	"github.com/bosocmputer/invoice_scanner/internal/api"
	"github.com/bosocmputer/invoice_scanner/internal/metrics"
	"github.com/bosocmputer/invoice_scanner/internal/processor"
	"github.com/bosocmputer/invoice_scanner/internal/prompt"
	"github.com/bosocmputer/invoice_scanner/internal/scanner"
	"github.com/bosocmputer/invoice_scanner/internal/storage"
	"github.com/bosocmputer/invoice_scanner/internal/workpool"
)

func newLogger(ginMode string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if ginMode == gin.ReleaseMode {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func main() {
	// Step 0: Load configuration
	cfg, err := configs.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := newLogger(cfg.GinMode)
	defer func() { _ = logger.Sync() }()

	// Step 1: Create the UPLOAD_DIR folder if it doesn't exist
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logger.Fatal("failed to create upload directory", zap.Error(err))
	}

	// Step 2: Persistence - MongoDB when configured, memory otherwise
	var repo storage.ScanRepository = storage.NewMemoryStore()
	if cfg.MongoURI != "" {
		store, err := storage.ConnectMongo(context.Background(), cfg.MongoURI, cfg.MongoDBName, logger)
		if err != nil {
			logger.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer store.Close()
		repo = store
	} else {
		logger.Warn("MONGO_URI not set, scan results are kept in memory only")
	}

	// Step 3: Scan pipeline
	m := metrics.New()
	table := accounts.MustDefault()
	pool := workpool.New(cfg.ImageWorkers)
	normalizer := processor.NewNormalizer(processor.Options{
		MaxDimension: cfg.MaxImageDimension,
		Scale:        cfg.ImageScale,
		JPEGQuality:  cfg.JPEGQuality,
		DPI:          cfg.PDFDPI,
	}, pool, nil, logger)

	orch, err := ai.NewOrchestratorFromConfig(context.Background(), cfg, m, logger)
	if err != nil {
		logger.Fatal("failed to configure providers", zap.Error(err))
	}

	s := scanner.New(scanner.Config{
		BaseDir:     cfg.BaseDir,
		Temperature: cfg.DefaultTemperature,
		MaxTokens:   cfg.MaxOutputTokens,
	}, scanner.Deps{
		Table:        table,
		Builder:      prompt.NewBuilder(table),
		Normalizer:   normalizer,
		Orchestrator: orch,
		Cache:        storage.NewResultCache[scanner.Output](cfg.ResultCacheTTL()),
		Repo:         repo,
		Metrics:      m,
		Logger:       logger,
	})

	// Step 4: Router
	router := api.NewRouter(api.NewHandler(s, cfg.UploadDir, logger), m, cfg.Origins())

	// Step 5: Setup HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      cfg.ProviderTimeout()*time.Duration(len(orch.Order())) + time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.Strings("providers", orch.Order()),
			zap.Int("image_workers", pool.Size()),
			zap.Int("account_codes", table.Len()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
