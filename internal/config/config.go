package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"EP_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"EP_DB_MAX_CONNS" default:"8"`

	FetchTimeout      time.Duration `envconfig:"FETCH_TIMEOUT" default:"12s"`
	FetchHostDelay    time.Duration `envconfig:"FETCH_HOST_DELAY" default:"1500ms"`
	FetchBodyLimit    int64         `envconfig:"FETCH_BODY_LIMIT" default:"2097152"`
	FetchRequestsPerS float64       `envconfig:"FETCH_REQUESTS_PER_SECOND" default:"1"`

	AIEndpoint       string        `envconfig:"AI_ENDPOINT" default:"http://127.0.0.1:8855"`
	AIRequestTimeout time.Duration `envconfig:"AI_REQUEST_TIMEOUT" default:"15s"`

	DedupWindowHours    int     `envconfig:"DEDUP_WINDOW_HOURS" default:"48"`
	DedupThreshold      float64 `envconfig:"DEDUP_THRESHOLD" default:"0.82"`
	DedupEscalateFloor  float64 `envconfig:"DEDUP_ESCALATE_FLOOR" default:"0.70"`
	DedupTitleWeight    float64 `envconfig:"DEDUP_TITLE_WEIGHT" default:"0.6"`
	DedupLocationWeight float64 `envconfig:"DEDUP_LOCATION_WEIGHT" default:"0.2"`
	DedupTimeWeight     float64 `envconfig:"DEDUP_TIME_WEIGHT" default:"0.2"`
	DedupAIBlendWeight  float64 `envconfig:"DEDUP_AI_BLEND_WEIGHT" default:"0.25"`

	ServeHost string `envconfig:"SERVE_HOST" default:"0.0.0.0"`
	ServePort int    `envconfig:"SERVE_PORT" default:"8090"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("EP_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("EP_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("EP_DB_MIN_CONNS (%d) cannot exceed EP_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be > 0")
	}
	if c.FetchBodyLimit < 1024 {
		return fmt.Errorf("FETCH_BODY_LIMIT must be >= 1024")
	}
	if c.FetchRequestsPerS <= 0 {
		return fmt.Errorf("FETCH_REQUESTS_PER_SECOND must be > 0")
	}
	if c.DedupWindowHours < 1 {
		return fmt.Errorf("DEDUP_WINDOW_HOURS must be >= 1")
	}
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		return fmt.Errorf("DEDUP_THRESHOLD must be in (0, 1]")
	}
	if c.DedupEscalateFloor < 0 || c.DedupEscalateFloor >= c.DedupThreshold {
		return fmt.Errorf("DEDUP_ESCALATE_FLOOR must be in [0, DEDUP_THRESHOLD)")
	}
	weightSum := c.DedupTitleWeight + c.DedupLocationWeight + c.DedupTimeWeight
	if weightSum <= 0.999 || weightSum >= 1.001 {
		return fmt.Errorf("dedup component weights must sum to 1.0, got %.3f", weightSum)
	}
	if c.DedupAIBlendWeight < 0 || c.DedupAIBlendWeight > 1 {
		return fmt.Errorf("DEDUP_AI_BLEND_WEIGHT must be in [0, 1]")
	}
	if c.ServePort < 1 || c.ServePort > 65535 {
		return fmt.Errorf("SERVE_PORT must be a valid TCP port")
	}
	return nil
}
