package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// It is the single source of truth for runtime parameters.
type Config struct {
	Port      string
	Env       string
	JWTSecret string
	JWTTTL    time.Duration

	// CORSAllowedHosts lists origin hosts (host[:port]) allowed by CORS.
	CORSAllowedHosts []string

	DB      DatabaseConfig
	Redis   RedisConfig
	S3      S3Config
	Catalog CatalogConfig
	Admin   AdminConfig
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	Name          string
	SSLMode       string
	MigrationsDir string
}

// RedisConfig contains Redis connection parameters.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// S3Config contains the product image bucket configuration.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	PublicBaseURL   string
	KeyPrefix       string
	AccessKeyID     string
	SecretAccessKey string
	UploadTimeout   time.Duration
}

// CatalogConfig controls the catalog cache and the bulk import pipeline.
type CatalogConfig struct {
	CacheTTL        time.Duration
	RefreshInterval time.Duration
	BaselinePath    string
	UploadBatchSize int
	MaxImportBytes  int64
}

// AdminConfig seeds the first admin account on startup when Email and
// Password are both set.
type AdminConfig struct {
	Email    string
	Password string
	Name     string
}

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first. It returns a populated
// Config or an error with a human-friendly message.
func Load() (*Config, error) {
	// Missing .env is fine: production relies on real environment variables.
	_ = godotenv.Load()

	cfg := &Config{}

	// Server
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")
	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.CORSAllowedHosts = getEnvList("CORS_ALLOWED_HOSTS", "localhost:3000,127.0.0.1:3000")

	// Database
	cfg.DB = DatabaseConfig{
		Host:          getEnv("DB_HOST", ""),
		Port:          getEnv("DB_PORT", "5432"),
		User:          getEnv("DB_USER", ""),
		Password:      getEnv("DB_PASSWORD", ""),
		Name:          getEnv("DB_NAME", ""),
		SSLMode:       getEnv("DB_SSLMODE", "disable"),
		MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
	}

	// Redis
	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", "redis"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	// S3 (product images)
	cfg.S3 = S3Config{
		Region:          getEnv("S3_REGION", "ap-south-1"),
		Bucket:          getEnv("S3_BUCKET", ""),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		PublicBaseURL:   getEnv("S3_PUBLIC_BASE_URL", ""),
		KeyPrefix:       getEnv("S3_KEY_PREFIX", "products"),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	// Catalog
	cfg.Catalog = CatalogConfig{
		BaselinePath:    getEnv("CATALOG_BASELINE_PATH", ""),
		UploadBatchSize: getEnvInt("IMPORT_UPLOAD_BATCH_SIZE", 5),
		MaxImportBytes:  int64(getEnvInt("IMPORT_MAX_MB", 64)) << 20,
	}

	// Bootstrap admin
	cfg.Admin = AdminConfig{
		Email:    getEnv("ADMIN_EMAIL", ""),
		Password: getEnv("ADMIN_PASSWORD", ""),
		Name:     getEnv("ADMIN_NAME", "Administrator"),
	}

	var err error
	if cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", "24h"); err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	if cfg.Catalog.CacheTTL, err = parseDurationEnv("CATALOG_CACHE_TTL", "30m"); err != nil {
		return nil, fmt.Errorf("invalid CATALOG_CACHE_TTL: %w", err)
	}
	if cfg.Catalog.RefreshInterval, err = parseDurationEnv("CATALOG_REFRESH_INTERVAL", "25m"); err != nil {
		return nil, fmt.Errorf("invalid CATALOG_REFRESH_INTERVAL: %w", err)
	}
	if cfg.S3.UploadTimeout, err = parseDurationEnv("S3_UPLOAD_TIMEOUT", "60s"); err != nil {
		return nil, fmt.Errorf("invalid S3_UPLOAD_TIMEOUT: %w", err)
	}

	if cfg.Catalog.UploadBatchSize <= 0 {
		return nil, errors.New("IMPORT_UPLOAD_BATCH_SIZE must be a positive integer")
	}

	if cfg.DB.Host == "" || cfg.DB.User == "" || cfg.DB.Name == "" {
		return nil, errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set for authentication")
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// getEnvList splits a comma-separated environment variable, dropping blanks.
func getEnvList(key, def string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, def), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

// parseDurationEnv reads an environment variable and parses it as time.Duration.
// If the variable is empty, it falls back to the provided default value.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}
