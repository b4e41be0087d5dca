package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database     DatabaseConfig
	JWT          JWTConfig
	App          AppConfig
	Storage      StorageConfig
	Notification NotificationConfig
	Payroll      PayrollConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	RunMigrations bool
	MigrationsDir string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port          int
	Env           string
	LogLevel      string
	StorageDriver string // postgres | memory
	CORSOrigins   []string
}

// StorageConfig holds local file storage configuration
type StorageConfig struct {
	BasePath string
	BaseURL  string
}

// NotificationConfig tunes the queued notification dispatcher
type NotificationConfig struct {
	QueueSize     int
	BatchSize     int
	Workers       int
	FlushInterval time.Duration
}

// PayrollConfig holds payroll engine configuration
type PayrollConfig struct {
	PolicyFile          string
	FeedTimeout         time.Duration
	OutboxRetryInterval time.Duration
	OutboxMaxAttempts   int
	OutboxBatchSize     int
	Policy              PayrollPolicy
}

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	} else if err != nil {
		slog.Info("no .env file found, using process environment")
	}

	config := &Config{}

	// Database configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:          getEnv("DB_HOST", "localhost"),
		Port:          dbPort,
		User:          getEnv("DB_USER", "postgres"),
		Password:      getEnv("DB_PASSWORD", ""),
		Name:          getEnv("DB_NAME", "studio-payroll"),
		SSLMode:       getEnv("DB_SSL_MODE", "disable"),
		RunMigrations: getEnvBool("RUN_MIGRATIONS", true),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
	}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:          appPort,
		Env:           getEnv("APP_ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverPostgres)),
		CORSOrigins:   getEnvSlice("CORS_ORIGINS"),
	}

	// JWT configuration
	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	config.Storage = StorageConfig{
		BasePath: getEnv("STORAGE_BASE_PATH", "./uploads"),
		BaseURL:  getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%d/api/v1/uploads", appPort)),
	}

	// Notification dispatcher
	config.Notification = NotificationConfig{}
	if config.Notification.QueueSize, err = getEnvInt("NOTIFICATION_QUEUE_SIZE", 1000); err != nil {
		return nil, err
	}
	if config.Notification.BatchSize, err = getEnvInt("NOTIFICATION_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if config.Notification.Workers, err = getEnvInt("NOTIFICATION_WORKERS", 2); err != nil {
		return nil, err
	}
	if config.Notification.FlushInterval, err = getEnvDuration("NOTIFICATION_FLUSH_INTERVAL", 500*time.Millisecond); err != nil {
		return nil, err
	}

	// Payroll engine
	config.Payroll = PayrollConfig{PolicyFile: getEnv("PAYROLL_POLICY_FILE", "")}
	if config.Payroll.FeedTimeout, err = getEnvDuration("PAYROLL_FEED_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if config.Payroll.OutboxRetryInterval, err = getEnvDuration("PAYROLL_OUTBOX_RETRY_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if config.Payroll.OutboxMaxAttempts, err = getEnvInt("PAYROLL_OUTBOX_MAX_ATTEMPTS", 10); err != nil {
		return nil, err
	}
	if config.Payroll.OutboxBatchSize, err = getEnvInt("PAYROLL_OUTBOX_BATCH_SIZE", 100); err != nil {
		return nil, err
	}

	policy := DefaultPayrollPolicy()
	if config.Payroll.PolicyFile != "" {
		policy, err = LoadPayrollPolicy(config.Payroll.PolicyFile)
		if err != nil {
			return nil, err
		}
	}
	config.Payroll.Policy = policy

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.App.StorageDriver {
	case StorageDriverPostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageDriverPostgres, StorageDriverMemory, c.App.StorageDriver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if _, err := time.ParseDuration(c.JWT.AccessExpiration); err != nil {
		return fmt.Errorf("invalid JWT_ACCESS_EXPIRATION_TIME: %w", err)
	}
	if c.Payroll.FeedTimeout <= 0 {
		return fmt.Errorf("PAYROLL_FEED_TIMEOUT must be positive")
	}
	if c.Payroll.OutboxRetryInterval <= 0 {
		return fmt.Errorf("PAYROLL_OUTBOX_RETRY_INTERVAL must be positive")
	}
	if c.Payroll.OutboxMaxAttempts < 1 {
		return fmt.Errorf("PAYROLL_OUTBOX_MAX_ATTEMPTS must be at least 1")
	}
	if c.Notification.Workers < 1 || c.Notification.BatchSize < 1 || c.Notification.QueueSize < 1 {
		return fmt.Errorf("NOTIFICATION_WORKERS, NOTIFICATION_BATCH_SIZE and NOTIFICATION_QUEUE_SIZE must be positive")
	}
	if err := c.Payroll.Policy.Validate(); err != nil {
		return fmt.Errorf("payroll policy: %w", err)
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(env string) []string {
	value := getEnv(env, "")
	if value == "" {
		return []string{}
	}
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}

func getEnvInt(key string, fallback int) (int, error) {
	value := getEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := getEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
