package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"gorm.io/gorm"

	"nutrilabel/internal/analysis"
	"nutrilabel/internal/config"
	"nutrilabel/internal/db"
	"nutrilabel/internal/db/mock"
	"nutrilabel/internal/server"
	"nutrilabel/internal/vlm"
)

type stubServer struct {
	startErr       error
	stopErr        error
	blockUntilStop bool

	startCalled bool
	stopCalled  bool

	startGate   chan struct{}
	startNotify chan struct{}
}

func newStubServer(startErr, stopErr error, block bool) *stubServer {
	s := &stubServer{
		startErr:       startErr,
		stopErr:        stopErr,
		blockUntilStop: block,
		startNotify:    make(chan struct{}),
	}
	if block {
		s.startGate = make(chan struct{})
	}
	return s
}

func (s *stubServer) Start() error {
	s.startCalled = true
	close(s.startNotify)
	if s.blockUntilStop {
		<-s.startGate
	}
	return s.startErr
}

func (s *stubServer) Stop() error {
	s.stopCalled = true
	if s.blockUntilStop {
		close(s.startGate)
	}
	return s.stopErr
}

type stubExtractor struct{}

func (stubExtractor) Extract(context.Context, string) (vlm.Output, error) {
	return vlm.Output{}, nil
}

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

// stubDependencies swaps every injectable constructor and restores them when
// the test ends.
func stubDependencies(t *testing.T, cfg config.Config) *closeRecorder {
	t.Helper()

	originalLoadConfig := loadConfigFunc
	originalConfigureLogging := configureLoggingFunc
	originalMock := newMockDatabaseFunc
	originalConfigure := configureDatabase
	originalMongo := connectMongoFunc
	originalExtractor := newExtractorFunc
	originalNewServer := newServerFunc
	originalSubscribe := subscribeShutdownSig

	t.Cleanup(func() {
		loadConfigFunc = originalLoadConfig
		configureLoggingFunc = originalConfigureLogging
		newMockDatabaseFunc = originalMock
		configureDatabase = originalConfigure
		connectMongoFunc = originalMongo
		newExtractorFunc = originalExtractor
		newServerFunc = originalNewServer
		subscribeShutdownSig = originalSubscribe
	})

	modelCloser := &closeRecorder{}
	loadConfigFunc = func() (config.Config, error) { return cfg, nil }
	configureLoggingFunc = func(string, string) (io.Closer, error) { return &closeRecorder{}, nil }
	newExtractorFunc = func(context.Context, config.VLMConfig) (analysis.Extractor, io.Closer, error) {
		return stubExtractor{}, modelCloser, nil
	}
	connectMongoFunc = func(context.Context, config.DatabaseConfig) (db.Store, error) {
		t.Fatal("mongo should not be used")
		return nil, nil
	}
	return modelCloser
}

func testConfig() config.Config {
	return config.Config{
		Server:   config.ServerConfig{Addr: ":8080"},
		Database: config.DatabaseConfig{UseMock: true},
		Logging:  config.LoggingConfig{Level: "debug"},
		Auth:     config.AuthConfig{Secret: "secret", Algorithm: "HS256", TokenTTL: time.Hour},
		VLM:      config.VLMConfig{Provider: "openai"},
	}
}

func TestRunUsesMockDatabaseWhenConfigured(t *testing.T) {
	modelCloser := stubDependencies(t, testConfig())

	var mockCalled bool
	newMockDatabaseFunc = func(ctx context.Context) (*gorm.DB, error) {
		mockCalled = true
		return mock.New(ctx)
	}
	configureDatabase = func(config.DatabaseConfig) (*gorm.DB, error) {
		t.Fatal("configureDatabase should not be called when mock is enabled")
		return nil, nil
	}

	serverStub := newStubServer(http.ErrServerClosed, nil, true)
	var gotCfg server.Config
	newServerFunc = func(cfg server.Config) (serverLifecycle, error) {
		gotCfg = cfg
		return serverStub, nil
	}

	shutdownCh := make(chan os.Signal, 1)
	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		return shutdownCh, func() {}
	}

	go func() {
		<-serverStub.startNotify
		shutdownCh <- syscall.SIGTERM
	}()

	code := run(context.Background())
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !mockCalled {
		t.Fatal("expected mock database to be used")
	}
	if !serverStub.startCalled || !serverStub.stopCalled {
		t.Fatal("expected server start and stop to be invoked")
	}
	if gotCfg.Addr != ":8080" || gotCfg.Handlers == nil {
		t.Fatalf("unexpected server config %+v", gotCfg)
	}
	if !modelCloser.closed {
		t.Fatal("expected model client to be closed on shutdown")
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	stubDependencies(t, testConfig())
	newMockDatabaseFunc = mock.New

	serverStub := newStubServer(http.ErrServerClosed, nil, true)
	newServerFunc = func(server.Config) (serverLifecycle, error) { return serverStub, nil }
	subscribeShutdownSig = func() (<-chan os.Signal, func()) { return make(chan os.Signal), func() {} }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-serverStub.startNotify
		cancel()
	}()

	if code := run(ctx); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !serverStub.stopCalled {
		t.Fatal("expected server stop on cancellation")
	}
}

func TestRunReturnsErrorWhenServerStartFails(t *testing.T) {
	stubDependencies(t, testConfig())
	newMockDatabaseFunc = mock.New

	serverStub := newStubServer(errors.New("listener failure"), nil, false)
	newServerFunc = func(server.Config) (serverLifecycle, error) {
		return serverStub, nil
	}

	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		return make(chan os.Signal), func() {}
	}

	code := run(context.Background())
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if serverStub.stopCalled {
		t.Fatal("server stop should not be called on start error")
	}
}

func TestRunHandlesDatabaseConfigurationError(t *testing.T) {
	cfg := testConfig()
	cfg.Database = config.DatabaseConfig{URL: "postgres://example", UseMock: false}
	stubDependencies(t, cfg)

	newMockDatabaseFunc = func(context.Context) (*gorm.DB, error) {
		t.Fatal("mock database should not be used when URL is configured")
		return nil, nil
	}
	configureDatabase = func(config.DatabaseConfig) (*gorm.DB, error) {
		return nil, errors.New("db connection refused")
	}

	code := run(context.Background())
	if code != 1 {
		t.Fatalf("expected exit code 1 on database configuration failure, got %d", code)
	}
}

func TestRunSelectsMongoForMongoURL(t *testing.T) {
	cfg := testConfig()
	cfg.Database = config.DatabaseConfig{URL: "mongodb://localhost:27017", Name: "vlm_image_api"}
	stubDependencies(t, cfg)

	var got config.DatabaseConfig
	connectMongoFunc = func(_ context.Context, c config.DatabaseConfig) (db.Store, error) {
		got = c
		return nil, errors.New("no server")
	}
	configureDatabase = func(config.DatabaseConfig) (*gorm.DB, error) {
		t.Fatal("gorm should not be used for a mongodb URL")
		return nil, nil
	}

	if code := run(context.Background()); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if got.Name != "vlm_image_api" {
		t.Fatalf("expected mongo to receive the database config, got %+v", got)
	}
}

func TestRunHandlesModelConfigurationError(t *testing.T) {
	stubDependencies(t, testConfig())
	newMockDatabaseFunc = mock.New
	newExtractorFunc = func(context.Context, config.VLMConfig) (analysis.Extractor, io.Closer, error) {
		return nil, nil, errors.New("vlm: api key must not be empty")
	}
	newServerFunc = func(server.Config) (serverLifecycle, error) {
		t.Fatal("server should not be built without a model")
		return nil, nil
	}

	if code := run(context.Background()); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestRunReturnsErrorWhenLoggingInvalid(t *testing.T) {
	stubDependencies(t, testConfig())
	configureLoggingFunc = func(string, string) (io.Closer, error) { return nil, errors.New("invalid level") }

	code := run(context.Background())
	if code != 1 {
		t.Fatalf("expected exit code 1 for invalid log level, got %d", code)
	}
}

func TestRunReturnsErrorWhenConfigInvalid(t *testing.T) {
	stubDependencies(t, testConfig())
	loadConfigFunc = func() (config.Config, error) { return config.Config{}, errors.New("SECRET_KEY must be set") }

	if code := run(context.Background()); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}
