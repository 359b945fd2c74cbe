// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Upload drivers.
const (
	UploadLocal = "local"
	UploadS3    = "s3"
)

const defaultSessionSecret = "feedsync-dev-session-secret-change-me"

// maxDeleteBatchSize is the document store's atomic batch ceiling.
const maxDeleteBatchSize = 500

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env         string `mapstructure:"APP_ENV"`
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`

	DBHost                   string `mapstructure:"DB_HOST"`
	DBPort                   string `mapstructure:"DB_PORT"`
	DBUser                   string `mapstructure:"DB_USER"`
	DBPassword               string `mapstructure:"DB_PASSWORD"`
	DBName                   string `mapstructure:"DB_NAME"`
	DBSSLMode                string `mapstructure:"DB_SSLMODE"`
	DBMaxOpenConns           int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL string `mapstructure:"REDIS_URL"`

	FeedLimit        int `mapstructure:"FEED_LIMIT"`
	SearchLimit      int `mapstructure:"SEARCH_LIMIT"`
	DeleteBatchSize  int `mapstructure:"DELETE_BATCH_SIZE"`
	MaxCommentLength int `mapstructure:"MAX_COMMENT_LENGTH"`
	SnippetLength    int `mapstructure:"SNIPPET_LENGTH"`
	TxMaxAttempts    int `mapstructure:"TX_MAX_ATTEMPTS"`

	UploadDriver  string `mapstructure:"UPLOAD_DRIVER"`
	UploadDir     string `mapstructure:"UPLOAD_DIR"`
	UploadBaseURL string `mapstructure:"UPLOAD_BASE_URL"`
	S3Bucket      string `mapstructure:"S3_BUCKET"`
	S3Region      string `mapstructure:"S3_REGION"`

	SessionSecret string `mapstructure:"SESSION_SECRET"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
	MetricsAddr         string  `mapstructure:"METRICS_ADDR"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("STORE_DRIVER", StoreMemory)
	viper.SetDefault("SQLITE_PATH", "feedsync.db")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "feedsync")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("FEED_LIMIT", 50)
	viper.SetDefault("SEARCH_LIMIT", 20)
	viper.SetDefault("DELETE_BATCH_SIZE", 450)
	viper.SetDefault("MAX_COMMENT_LENGTH", 1000)
	viper.SetDefault("SNIPPET_LENGTH", 140)
	viper.SetDefault("TX_MAX_ATTEMPTS", 5)
	viper.SetDefault("UPLOAD_DRIVER", UploadLocal)
	viper.SetDefault("UPLOAD_DIR", "/tmp/feedsync/uploads")
	viper.SetDefault("UPLOAD_BASE_URL", "http://localhost:8080/uploads")
	viper.SetDefault("S3_BUCKET", "")
	viper.SetDefault("S3_REGION", "us-west-1")
	viper.SetDefault("SESSION_SECRET", defaultSessionSecret)
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
	viper.SetDefault("METRICS_ADDR", "")
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.UploadDriver = strings.ToLower(strings.TrimSpace(c.UploadDriver))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.TracingExporter = strings.ToLower(strings.TrimSpace(c.TracingExporter))
}

// IsProduction reports whether APP_ENV names a production profile.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of memory, sqlite, postgres (got %q)", c.StoreDriver)
	}
	if c.StoreDriver == StoreSQLite && c.SQLitePath == "" {
		return errors.New("SQLITE_PATH is required for the sqlite store")
	}

	switch c.UploadDriver {
	case UploadLocal:
		if c.UploadDir == "" {
			return errors.New("UPLOAD_DIR is required for local uploads")
		}
	case UploadS3:
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required for s3 uploads")
		}
	default:
		return fmt.Errorf("UPLOAD_DRIVER must be local or s3 (got %q)", c.UploadDriver)
	}

	if c.DeleteBatchSize <= 0 || c.DeleteBatchSize > maxDeleteBatchSize {
		return fmt.Errorf("DELETE_BATCH_SIZE must be between 1 and %d", maxDeleteBatchSize)
	}
	if c.FeedLimit <= 0 || c.SearchLimit <= 0 || c.MaxCommentLength <= 0 || c.SnippetLength <= 0 {
		return errors.New("FEED_LIMIT, SEARCH_LIMIT, MAX_COMMENT_LENGTH and SNIPPET_LENGTH must be positive")
	}
	if c.TxMaxAttempts <= 0 {
		return errors.New("TX_MAX_ATTEMPTS must be positive")
	}
	if c.TracingSamplerRatio < 0 || c.TracingSamplerRatio > 1 {
		return errors.New("TRACING_SAMPLER_RATIO must be between 0 and 1")
	}
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}

	if c.IsProduction() {
		if c.StoreDriver == StoreMemory {
			return errors.New("the memory store cannot be used in production")
		}
		if c.SessionSecret == defaultSessionSecret {
			return errors.New("SESSION_SECRET must be changed from the default value in production")
		}
		if len(c.SessionSecret) < 32 {
			return errors.New("SESSION_SECRET must be at least 32 characters in production")
		}
		if c.StoreDriver == StorePostgres {
			if c.DBPassword == "password" || c.DBPassword == "" {
				return errors.New("a strong DB_PASSWORD is required in production")
			}
			if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
				log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
			}
		}
	} else if len(c.SessionSecret) < 32 {
		log.Println("WARNING: SESSION_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
