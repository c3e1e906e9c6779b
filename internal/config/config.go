package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Collection CollectionConfig `mapstructure:"collection"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Auth Configuration
type AuthConfig struct {
	Username       string        `mapstructure:"username"`
	PasswordHash   string        `mapstructure:"password_hash"`
	JWTSecretEnv   string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	LoginDelay     time.Duration `mapstructure:"login_delay"`
	HashMemoryKiB  uint32        `mapstructure:"hash_memory_kib"`
	HashIterations uint32        `mapstructure:"hash_iterations"`
	MaxRevoked     int           `mapstructure:"max_revoked_tokens"`
}

// CatalogConfig selects where pump records come from.
// Source is "mock" (seed file, fixed latency) or "postgres".
type CatalogConfig struct {
	Source     string        `mapstructure:"source"`
	SeedFile   string        `mapstructure:"seed_file"`
	FetchDelay time.Duration `mapstructure:"fetch_delay"`
	CacheSize  int           `mapstructure:"cache_size"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

type CollectionConfig struct {
	LoadTimeout     time.Duration `mapstructure:"load_timeout"`
	Locale          string        `mapstructure:"locale"`
	DefaultPageSize int           `mapstructure:"default_page_size"`
}

const (
	SourceMock     = "mock"
	SourcePostgres = "postgres"
)

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	// PUMPFLEET_AUTH_USERNAME overrides auth.username, and so on
	v.SetEnvPrefix("PUMPFLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")
	v.SetDefault("auth.login_delay", "1s")
	v.SetDefault("auth.hash_memory_kib", 64*1024)
	v.SetDefault("auth.hash_iterations", 3)
	v.SetDefault("auth.max_revoked_tokens", 4096)

	v.SetDefault("catalog.source", SourceMock)
	v.SetDefault("catalog.fetch_delay", "1s")
	v.SetDefault("catalog.cache_size", 256)
	v.SetDefault("catalog.cache_ttl", "5m")

	v.SetDefault("collection.load_timeout", "10s")
	v.SetDefault("collection.locale", "en")
	v.SetDefault("collection.default_page_size", 10)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Catalog.Source {
	case SourceMock, SourcePostgres:
	default:
		return fmt.Errorf("invalid catalog.source %q: want %q or %q", c.Catalog.Source, SourceMock, SourcePostgres)
	}
	if c.Collection.DefaultPageSize <= 0 {
		return fmt.Errorf("collection.default_page_size must be positive, got %d", c.Collection.DefaultPageSize)
	}
	if c.Auth.Username == "" {
		return fmt.Errorf("auth.username must not be empty")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

const devSecret = "dev-secret-change-in-production-min-32-chars"

// GetJWTSecret reads the signing secret from the configured environment
// variable, falling back to a development secret.
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return devSecret
	}
	return secret
}

// IsProductionReady reports whether a real signing secret is configured.
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devSecret && len(secret) >= 32
}
