package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures the runtime configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Auth     AuthConfig
	VLM      VLMConfig
}

// ServerConfig configures the HTTP server runtime behavior.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// DatabaseConfig contains the database connection settings. A mongodb://
// URL selects the document store; anything else is handed to gorm.
type DatabaseConfig struct {
	URL             string
	Name            string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	UseMock         bool
}

// IsMongo reports whether URL points at a MongoDB deployment.
func (c DatabaseConfig) IsMongo() bool {
	u := strings.ToLower(strings.TrimSpace(c.URL))
	return strings.HasPrefix(u, "mongodb://") || strings.HasPrefix(u, "mongodb+srv://")
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level string
	File  string
}

// AuthConfig controls bearer token issuance.
type AuthConfig struct {
	Secret             string
	Algorithm          string
	TokenTTL           time.Duration
	RequireAnalyzeAuth bool
}

// VLMConfig selects and configures the vision model provider.
type VLMConfig struct {
	Provider        string
	APIKey          string
	Model           string
	BaseURL         string
	Temperature     float64
	Timeout         time.Duration
	MaxAttempts     int
	BaseDelay       time.Duration
	ResponseFormat  string
	ProjectID       string
	Location        string
	CredentialsFile string
}

const (
	defaultModel    = "llama-3.2-11b-vision-preview"
	defaultLogFile  = "logs/api_logs.jsonl"
	defaultDBName   = "vlm_image_api"
	defaultTokenTTL = 30 * time.Minute
)

var loadDotEnv = func() error { return godotenv.Load() }

// Load inspects the environment, after merging an optional .env file, and
// builds a Config value.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{}

	cfg.Server = ServerConfig{
		Addr: firstNonEmpty(
			os.Getenv("SERVER_ADDR"),
			os.Getenv("ADDR"),
			":8080",
		),
		AllowedOrigins: splitList(firstNonEmpty(os.Getenv("CORS_ALLOWED_ORIGINS"), "*")),
	}

	cfg.Database = DatabaseConfig{
		URL: firstNonEmpty(
			os.Getenv("DATABASE_URL"),
			os.Getenv("DB_URL"),
			os.Getenv("MONGODB_URI"),
			"",
		),
		Name:            firstNonEmpty(os.Getenv("DATABASE_NAME"), defaultDBName),
		MaxIdleConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_IDLE_CONNS"), 0),
		MaxOpenConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_OPEN_CONNS"), 0),
		ConnMaxLifetime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_LIFETIME"), 0),
		ConnMaxIdleTime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_IDLE_TIME"), 0),
		UseMock:         parseBoolWithDefault(os.Getenv("DATABASE_USE_MOCK"), false),
	}

	cfg.Logging = LoggingConfig{
		Level: firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		File:  firstNonEmpty(os.Getenv("LOG_FILE"), defaultLogFile),
	}

	ttl := defaultTokenTTL
	if minutes := parseIntWithDefault(os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"), 0); minutes > 0 {
		ttl = time.Duration(minutes) * time.Minute
	}
	cfg.Auth = AuthConfig{
		Secret:             firstNonEmpty(os.Getenv("SECRET_KEY"), os.Getenv("JWT_SECRET")),
		Algorithm:          strings.ToUpper(firstNonEmpty(os.Getenv("ALGORITHM"), "HS256")),
		TokenTTL:           ttl,
		RequireAnalyzeAuth: parseBoolWithDefault(os.Getenv("AUTH_REQUIRE_ANALYZE"), false),
	}

	vlm, err := vlmFromEnv()
	if err != nil {
		return Config{}, err
	}
	cfg.VLM = vlm

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return Config{}, fmt.Errorf("server address must not be empty")
	}

	switch cfg.Auth.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return Config{}, fmt.Errorf("unsupported token algorithm %q", cfg.Auth.Algorithm)
	}

	if strings.TrimSpace(cfg.Auth.Secret) == "" {
		if !cfg.Database.UseMock {
			return Config{}, fmt.Errorf("SECRET_KEY must be set")
		}
		cfg.Auth.Secret = devSecret()
	}

	return cfg, nil
}

// LoadVLM reads only the vision model settings. Tools that never serve HTTP
// use it to skip the auth and database checks made by Load.
func LoadVLM() (VLMConfig, error) {
	if err := loadDotEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return VLMConfig{}, fmt.Errorf("load .env: %w", err)
	}
	return vlmFromEnv()
}

func vlmFromEnv() (VLMConfig, error) {
	cfg := VLMConfig{
		Provider: strings.ToLower(firstNonEmpty(os.Getenv("VLM_PROVIDER"), "openai")),
		APIKey: firstNonEmpty(
			os.Getenv("LLM_API_KEY"),
			os.Getenv("API_KEY"),
			os.Getenv("OPENAI_API_KEY"),
		),
		Model:           firstNonEmpty(os.Getenv("LLM_MODEL"), os.Getenv("MODEL"), defaultModel),
		BaseURL:         os.Getenv("LLM_BASE_URL"),
		Temperature:     parseFloatWithDefault(os.Getenv("VLM_TEMPERATURE"), 0.2),
		Timeout:         parseDurationWithDefault(os.Getenv("VLM_TIMEOUT"), 90*time.Second),
		MaxAttempts:     parseIntWithDefault(os.Getenv("VLM_MAX_ATTEMPTS"), 3),
		BaseDelay:       parseDurationWithDefault(os.Getenv("VLM_BASE_DELAY"), time.Second),
		ResponseFormat:  firstNonEmpty(os.Getenv("VLM_RESPONSE_FORMAT"), "json_object"),
		ProjectID:       os.Getenv("GOOGLE_PROJECT_ID"),
		Location:        firstNonEmpty(os.Getenv("GOOGLE_LOCATION"), "us-central1"),
		CredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
	}

	switch cfg.Provider {
	case "openai", "gemini":
	default:
		return VLMConfig{}, fmt.Errorf("unsupported VLM provider %q", cfg.Provider)
	}
	return cfg, nil
}

func devSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "nutrilabel-dev-secret"
	}
	return hex.EncodeToString(buf)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIntWithDefault(value string, def int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseFloatWithDefault(value string, def float64) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseDurationWithDefault(value string, def time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseBoolWithDefault(value string, def bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}
