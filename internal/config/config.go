package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// StorageType selects the persistence backend
type StorageType string

const (
	StorageTypeFile  StorageType = "file"
	StorageTypeSQL   StorageType = "sql"
	StorageTypeRedis StorageType = "redis"
)

const (
	// DefaultLibraryFile is the default path of the file store
	DefaultLibraryFile = "./data/library.json"
	// DefaultEnvFile is the dotenv file read by Load
	DefaultEnvFile = ".env"
	// DefaultHardcoverURL is the Hardcover GraphQL endpoint
	DefaultHardcoverURL = "https://api.hardcover.app/v1/graphql"
	// DefaultRedisKey is the key holding the library in Redis
	DefaultRedisKey = "book-manager:library"
)

// Config holds all configuration for the application
type Config struct {
	// Logging configuration
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// Server configuration
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage Storage `yaml:"storage"`

	// Hardcover metadata lookup configuration
	Hardcover struct {
		URL      string        `yaml:"url"`
		Token    string        `yaml:"token"`
		Timeout  time.Duration `yaml:"timeout"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
		// RateLimit is the minimum time between requests
		RateLimit time.Duration `yaml:"rate_limit"`
		Burst     int           `yaml:"burst"`
	} `yaml:"hardcover"`
}

// Storage selects and configures the persistence backend
type Storage struct {
	Type StorageType `yaml:"type"`
	// Path is the library file for the file backend (.json, .yaml or .yml)
	Path     string         `yaml:"path"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
}

// RedisConfig holds the connection settings for the redis backend
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// Default returns the configuration used when nothing else is specified
func Default() *Config {
	cfg := &Config{}
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "console"
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Storage.Type = StorageTypeFile
	cfg.Storage.Path = DefaultLibraryFile
	cfg.Storage.Database.Type = DatabaseTypeSQLite
	cfg.Storage.Database.Path = "./data/library.db"
	cfg.Storage.Redis.Addr = "localhost:6379"
	cfg.Storage.Redis.Key = DefaultRedisKey
	cfg.Hardcover.URL = DefaultHardcoverURL
	cfg.Hardcover.Timeout = 30 * time.Second
	cfg.Hardcover.CacheTTL = time.Hour
	cfg.Hardcover.RateLimit = 200 * time.Millisecond
	cfg.Hardcover.Burst = 5
	return cfg
}

// Load builds the configuration from defaults, the YAML file at configFile
// (if not empty), the .env file in the working directory and the process
// environment, in increasing order of priority.
func Load(configFile string) (*Config, error) {
	return LoadWithEnvFile(configFile, DefaultEnvFile)
}

// LoadWithEnvFile is Load with an explicit dotenv path. A missing dotenv
// file is not an error.
func LoadWithEnvFile(configFile, envFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := cfg.loadFile(configFile); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if err := LoadDotEnv(envFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	cfg.Storage.Database.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges the YAML file at path over the current values.
// Keys missing from the file keep their defaults.
func (c *Config) loadFile(path string) error {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv applies environment variable overrides
func (c *Config) loadFromEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = i
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FORMAT", &c.Logging.Format)

	setString("PORT", &c.Server.Port)
	setDuration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	if v := os.Getenv("STORAGE_TYPE"); v != "" {
		c.Storage.Type = StorageType(strings.ToLower(v))
	}
	setString("LIBRARY_FILE", &c.Storage.Path)

	if v := os.Getenv("DATABASE_TYPE"); v != "" {
		c.Storage.Database.Type = ParseDatabaseType(v)
	}
	setString("DATABASE_PATH", &c.Storage.Database.Path)
	setString("DATABASE_HOST", &c.Storage.Database.Host)
	setInt("DATABASE_PORT", &c.Storage.Database.Port)
	setString("DATABASE_NAME", &c.Storage.Database.Database)
	setString("DATABASE_USER", &c.Storage.Database.Username)
	setString("DATABASE_PASSWORD", &c.Storage.Database.Password)
	setString("DATABASE_SSL_MODE", &c.Storage.Database.SSLMode)

	setString("REDIS_URL", &c.Storage.Redis.Addr)
	setString("REDIS_PASSWORD", &c.Storage.Redis.Password)
	setInt("REDIS_DB", &c.Storage.Redis.DB)
	setString("REDIS_KEY", &c.Storage.Redis.Key)

	if v := os.Getenv("HARDCOVER_URL"); v != "" {
		c.Hardcover.URL = strings.TrimSuffix(v, "/")
	}
	setString("HARDCOVER_TOKEN", &c.Hardcover.Token)
	setDuration("HARDCOVER_RATE_LIMIT", &c.Hardcover.RateLimit)

	return errors.Join(errs...)
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Logging.Level != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
			return &ConfigError{Field: "logging.level", Msg: fmt.Sprintf("unknown level %q", c.Logging.Level)}
		}
	}

	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.Path == "" {
			return &ConfigError{Field: "storage.path", Msg: "is required for the file store"}
		}
	case StorageTypeSQL:
		if err := c.Storage.Database.Validate(); err != nil {
			return err
		}
	case StorageTypeRedis:
		if c.Storage.Redis.Addr == "" {
			return &ConfigError{Field: "storage.redis.addr", Msg: "is required for the redis store"}
		}
		if c.Storage.Redis.Key == "" {
			return &ConfigError{Field: "storage.redis.key", Msg: "is required for the redis store"}
		}
	default:
		return &ConfigError{Field: "storage.type", Msg: fmt.Sprintf("unsupported storage type %q", c.Storage.Type)}
	}

	if c.Hardcover.URL == "" {
		return &ConfigError{Field: "hardcover.url", Msg: "must not be empty"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Msg
}
