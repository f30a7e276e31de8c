package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rishvic/jumpcoder/internal/common/cache"
	"github.com/rishvic/jumpcoder/internal/common/db"
	"github.com/rishvic/jumpcoder/internal/common/mq"
	"github.com/rishvic/jumpcoder/internal/common/storage"
	"github.com/rishvic/jumpcoder/internal/submission/service"
	"github.com/rishvic/jumpcoder/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	// Per-file cap mirrors the 16-bit length historically used for source
	// payloads; requests above the body cap are refused outright.
	defaultMaxFileBytes = 65535
	defaultMaxBodyBytes = 1 << 20
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// SubmitConfig holds submission ingestion settings.
type SubmitConfig struct {
	CodeBucket      string                `yaml:"codeBucket"`
	MaxFileBytes    int64                 `yaml:"maxFileBytes"`
	MaxBodyBytes    int64                 `yaml:"maxBodyBytes"`
	ProblemCacheTTL time.Duration         `yaml:"problemCacheTTL"`
	ProblemEmptyTTL time.Duration         `yaml:"problemEmptyTTL"`
	Timeouts        service.TimeoutConfig `yaml:"timeouts"`
}

// AppConfig holds jumpcoder service configuration.
type AppConfig struct {
	Server ServerConfig        `yaml:"server"`
	Logger logger.Config       `yaml:"logger"`
	Mongo  db.MongoConfig      `yaml:"mongo"`
	MinIO  storage.MinIOConfig `yaml:"minio"`
	Redis  *cache.RedisConfig  `yaml:"redis"`
	Kafka  *mq.KafkaConfig     `yaml:"kafka"`
	Submit SubmitConfig        `yaml:"submit"`
}

func loadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed: %w", err)
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Submit.CodeBucket == "" {
		cfg.Submit.CodeBucket = cfg.MinIO.Bucket
	}
	if cfg.Submit.CodeBucket == "" {
		return nil, fmt.Errorf("code bucket is required")
	}
	if cfg.Submit.MaxFileBytes == 0 {
		cfg.Submit.MaxFileBytes = defaultMaxFileBytes
	}
	if cfg.Submit.MaxBodyBytes == 0 {
		cfg.Submit.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Submit.Timeouts.DB == 0 {
		cfg.Submit.Timeouts.DB = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Storage == 0 {
		cfg.Submit.Timeouts.Storage = 5 * time.Second
	}

	return &cfg, nil
}
