package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:         "local",
		LogLevel:            "info",
		DatabaseURL:         "postgres://localhost:5432/events",
		DBMinConns:          1,
		DBMaxConns:          8,
		FetchTimeout:        12 * time.Second,
		FetchHostDelay:      1500 * time.Millisecond,
		FetchBodyLimit:      2 * 1024 * 1024,
		FetchRequestsPerS:   1,
		AIEndpoint:          "http://127.0.0.1:8855",
		AIRequestTimeout:    15 * time.Second,
		DedupWindowHours:    48,
		DedupThreshold:      0.82,
		DedupEscalateFloor:  0.70,
		DedupTitleWeight:    0.6,
		DedupLocationWeight: 0.2,
		DedupTimeWeight:     0.2,
		DedupAIBlendWeight:  0.25,
		ServeHost:           "0.0.0.0",
		ServePort:           8090,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"missing database url", func(c *Config) { c.DatabaseURL = " " }, "DATABASE_URL"},
		{"min above max conns", func(c *Config) { c.DBMinConns = 9 }, "EP_DB_MIN_CONNS"},
		{"zero fetch timeout", func(c *Config) { c.FetchTimeout = 0 }, "FETCH_TIMEOUT"},
		{"tiny body limit", func(c *Config) { c.FetchBodyLimit = 10 }, "FETCH_BODY_LIMIT"},
		{"zero window", func(c *Config) { c.DedupWindowHours = 0 }, "DEDUP_WINDOW_HOURS"},
		{"threshold above one", func(c *Config) { c.DedupThreshold = 1.5 }, "DEDUP_THRESHOLD"},
		{"floor above threshold", func(c *Config) { c.DedupEscalateFloor = 0.9 }, "DEDUP_ESCALATE_FLOOR"},
		{"weights not summing to one", func(c *Config) { c.DedupTitleWeight = 0.9 }, "weights must sum"},
		{"blend weight above one", func(c *Config) { c.DedupAIBlendWeight = 1.5 }, "DEDUP_AI_BLEND_WEIGHT"},
		{"invalid port", func(c *Config) { c.ServePort = 0 }, "SERVE_PORT"},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.wantSub) {
			t.Fatalf("%s: expected error mentioning %q, got %v", tc.name, tc.wantSub, err)
		}
	}
}
