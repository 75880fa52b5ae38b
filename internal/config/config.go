// Package config loads application configuration from environment
// variables. cmd/cli and cmd/server do not use it: they read their own
// flags and AUDIOWM_DB_PATH directly.
package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

var ErrDBPathRequired = errors.New("config: AUDIOWM_DB_PATH must not be empty")

// Config holds every environment-driven setting that Load reads.
type Config struct {
	Port int `env:"PORT, default=8080"`

	DBPath string `env:"AUDIOWM_DB_PATH, default=audiowm.sqlite3"`

	WorkerCount int `env:"WORKER_COUNT, default=0"` // 0 lets workpool.New pick runtime.NumCPU()

	// Optional S3 settings for building a storage.SignalSource.
	S3Bucket           string `env:"S3_BUCKET"`
	S3Region           string `env:"S3_REGION"`
	S3Endpoint         string `env:"S3_ENDPOINT"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`

	LogLevel string `env:"LOG_LEVEL, default=INFO"`
}

// S3Enabled reports whether enough S3 configuration is present to build a
// storage.SignalSource.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from the environment, applying defaults.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.DBPath == "" {
		return nil, ErrDBPathRequired
	}
	return cfg, nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, DBPath: %s, WorkerCount: %d, S3Bucket: %s, S3Region: %s, LogLevel: %s}",
		c.Port, c.DBPath, c.WorkerCount, c.S3Bucket, c.S3Region, c.LogLevel,
	)
}
