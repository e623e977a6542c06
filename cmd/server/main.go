package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gorm.io/gorm"

	"nutrilabel/internal/analysis"
	"nutrilabel/internal/auth"
	"nutrilabel/internal/config"
	"nutrilabel/internal/db"
	"nutrilabel/internal/db/mock"
	"nutrilabel/internal/handlers"
	applog "nutrilabel/internal/log"
	"nutrilabel/internal/server"
	"nutrilabel/internal/vlm"
)

type serverLifecycle interface {
	Start() error
	Stop() error
}

var (
	loadConfigFunc       = config.Load
	configureLoggingFunc = applog.Configure
	newMockDatabaseFunc  = mock.New
	configureDatabase    = db.Configure
	connectMongoFunc     = func(ctx context.Context, cfg config.DatabaseConfig) (db.Store, error) {
		return db.ConnectMongo(ctx, cfg)
	}
	newExtractorFunc = func(ctx context.Context, cfg config.VLMConfig) (analysis.Extractor, io.Closer, error) {
		return vlm.NewClientFromConfig(ctx, cfg)
	}
	newServerFunc = func(cfg server.Config) (serverLifecycle, error) {
		return server.New(cfg)
	}
	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		return ch, func() { signal.Stop(ch) }
	}
)

func main() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	cfg, err := loadConfigFunc()
	if err != nil {
		applog.Error(ctx, "failed to load configuration", "error", err)
		return 1
	}

	logCloser, err := configureLoggingFunc(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		applog.Error(ctx, "failed to configure logging", "level", cfg.Logging.Level, "file", cfg.Logging.File, "error", err)
		return 1
	}
	defer func() {
		_ = applog.Sync()
		_ = logCloser.Close()
	}()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		applog.Error(ctx, "failed to configure database", "error", err)
		return 1
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			applog.Error(ctx, "failed to close database", "error", err)
		}
	}()

	extractor, modelCloser, err := newExtractorFunc(ctx, cfg.VLM)
	if err != nil {
		applog.Error(ctx, "failed to configure vision model", "provider", cfg.VLM.Provider, "error", err)
		return 1
	}
	defer func() { _ = modelCloser.Close() }()

	svc, err := analysis.NewService(store, extractor)
	if err != nil {
		applog.Error(ctx, "failed to build analysis service", "error", err)
		return 1
	}

	tokens, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.Algorithm, cfg.Auth.TokenTTL)
	if err != nil {
		applog.Error(ctx, "failed to configure tokens", "error", err)
		return 1
	}

	h, err := handlers.New(handlers.Deps{
		Analyses:           svc,
		Users:              store,
		Tokens:             tokens,
		Store:              store,
		RequireAnalyzeAuth: cfg.Auth.RequireAnalyzeAuth,
	})
	if err != nil {
		applog.Error(ctx, "failed to build handlers", "error", err)
		return 1
	}

	srv, err := newServerFunc(server.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Handlers:       h,
	})
	if err != nil {
		applog.Error(ctx, "failed to initialise server", "error", err)
		return 1
	}

	sigCh, stop := subscribeShutdownSig()
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		applog.Info(ctx, "starting http server",
			"addr", cfg.Server.Addr,
			"provider", cfg.VLM.Provider,
			"model", cfg.VLM.Model,
			"mockDatabase", cfg.Database.UseMock,
		)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error(ctx, "server encountered an error", "error", err)
			return 1
		}
		return 0
	case sig := <-sigCh:
		applog.Info(ctx, "shutting down http server", "signal", sig.String())
	case <-ctx.Done():
		applog.Info(ctx, "context cancelled, shutting down http server")
	}

	if err := srv.Stop(); err != nil {
		applog.Error(ctx, "graceful shutdown failed", "error", err)
		return 1
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		applog.Error(ctx, "server encountered an error", "error", err)
		return 1
	}
	return 0
}

// openStore picks the mock database, MongoDB or a gorm database from cfg.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (db.Store, error) {
	var (
		database *gorm.DB
		err      error
	)
	switch {
	case cfg.UseMock:
		applog.Info(ctx, "using seeded in-memory database", "demoEmail", mock.DemoEmail)
		database, err = newMockDatabaseFunc(ctx)
	case cfg.IsMongo():
		applog.Info(ctx, "connecting to mongodb", "database", cfg.Name)
		return connectMongoFunc(ctx, cfg)
	default:
		database, err = configureDatabase(cfg)
	}
	if err != nil {
		return nil, err
	}
	return db.NewGormStore(database)
}
