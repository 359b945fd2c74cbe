package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                 "development",
		StoreDriver:         StoreMemory,
		SQLitePath:          "feedsync.db",
		DBPassword:          "secure-password",
		DBSSLMode:           "require",
		FeedLimit:           50,
		SearchLimit:         20,
		DeleteBatchSize:     450,
		MaxCommentLength:    1000,
		SnippetLength:       140,
		TxMaxAttempts:       5,
		UploadDriver:        UploadLocal,
		UploadDir:           "/tmp/uploads",
		SessionSecret:       "secure-secret-at-least-32-chars-long",
		TracingSamplerRatio: 1,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"unknown store driver", func(c *Config) { c.StoreDriver = "mongo" }, true},
		{"sqlite without path", func(c *Config) { c.StoreDriver = StoreSQLite; c.SQLitePath = "" }, true},
		{"batch above store ceiling", func(c *Config) { c.DeleteBatchSize = 501 }, true},
		{"batch at store ceiling", func(c *Config) { c.DeleteBatchSize = 500 }, false},
		{"zero batch", func(c *Config) { c.DeleteBatchSize = 0 }, true},
		{"s3 without bucket", func(c *Config) { c.UploadDriver = UploadS3 }, true},
		{"s3 with bucket", func(c *Config) { c.UploadDriver = UploadS3; c.S3Bucket = "b" }, false},
		{"unknown upload driver", func(c *Config) { c.UploadDriver = "ftp" }, true},
		{"sampler ratio out of range", func(c *Config) { c.TracingSamplerRatio = 1.5 }, true},
		{"missing session secret", func(c *Config) { c.SessionSecret = "" }, true},
		{"short secret outside production", func(c *Config) { c.SessionSecret = "short" }, false},
		{"memory store in production", func(c *Config) { c.Env = "production" }, true},
		{"postgres in production", func(c *Config) { c.Env = "production"; c.StoreDriver = StorePostgres }, false},
		{"default secret in production", func(c *Config) {
			c.Env = "prod"
			c.StoreDriver = StorePostgres
			c.SessionSecret = defaultSessionSecret
		}, true},
		{"short secret in production", func(c *Config) {
			c.Env = "production"
			c.StoreDriver = StoreSQLite
			c.SessionSecret = "short"
		}, true},
		{"weak db password in production", func(c *Config) {
			c.Env = "production"
			c.StoreDriver = StorePostgres
			c.DBPassword = "password"
		}, true},
		{"ssl disabled in production only warns", func(c *Config) {
			c.Env = "production"
			c.StoreDriver = StorePostgres
			c.DBSSLMode = "disable"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	defer viper.Reset()
	t.Setenv("APP_ENV", "test")
	t.Setenv("STORE_DRIVER", "  SQLite ")
	t.Setenv("DELETE_BATCH_SIZE", "100")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "test", c.Env)
	assert.Equal(t, StoreSQLite, c.StoreDriver)
	assert.Equal(t, 100, c.DeleteBatchSize)
	assert.Equal(t, 50, c.FeedLimit)
	assert.Equal(t, 20, c.SearchLimit)
	assert.Equal(t, 1000, c.MaxCommentLength)
	assert.Equal(t, 140, c.SnippetLength)
	assert.Equal(t, 5, c.TxMaxAttempts)
	assert.Equal(t, UploadLocal, c.UploadDriver)
}

func TestLoadConfig_MissingProfile(t *testing.T) {
	defer viper.Reset()
	t.Setenv("APP_ENV", "staging-does-not-exist")

	_, err := LoadConfig()
	assert.Error(t, err)
}
