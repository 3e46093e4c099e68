package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected info, got %q", cfg.LogLevel)
	}
	if cfg.Jobs.Timeout != 30*time.Minute {
		t.Errorf("expected 30m timeout, got %v", cfg.Jobs.Timeout)
	}
	if cfg.Jobs.MaxConcurrent != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Jobs.MaxConcurrent)
	}
	if cfg.Lock.TTL != 5*time.Minute {
		t.Errorf("expected 5m ttl, got %v", cfg.Lock.TTL)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("expected :9090, got %q", cfg.Metrics.Addr)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
postgres:
  dsn: postgres://localhost:5432/tradelab
clickhouse:
  dsn: clickhouse://localhost:9000/tradelab
feed:
  endpoint: ws://localhost:8080/stream
  tickers: [SBER, GAZP]
  timeframes: [1h]
pipeline:
  indicator_keys: [sma_timeperiod_20, rsi_timeperiod_14]
jobs:
  timeout: 10m
  max_concurrent: 8
lock:
  ttl: 2m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug, got %q", cfg.LogLevel)
	}
	if cfg.Postgres.DSN != "postgres://localhost:5432/tradelab" {
		t.Errorf("unexpected postgres dsn: %q", cfg.Postgres.DSN)
	}
	if len(cfg.Feed.Tickers) != 2 || cfg.Feed.Tickers[1] != "GAZP" {
		t.Errorf("unexpected tickers: %v", cfg.Feed.Tickers)
	}
	if len(cfg.Pipeline.IndicatorKeys) != 2 {
		t.Errorf("unexpected indicator keys: %v", cfg.Pipeline.IndicatorKeys)
	}
	if cfg.Jobs.Timeout != 10*time.Minute || cfg.Jobs.MaxConcurrent != 8 {
		t.Errorf("unexpected jobs config: %+v", cfg.Jobs)
	}
	if cfg.Lock.TTL != 2*time.Minute {
		t.Errorf("unexpected lock ttl: %v", cfg.Lock.TTL)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TRADELAB_POSTGRES_DSN", "postgres://override:5432/db")
	t.Setenv("TRADELAB_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Postgres.DSN != "postgres://override:5432/db" {
		t.Errorf("env override ignored: %q", cfg.Postgres.DSN)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("env override ignored: %q", cfg.LogLevel)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, "jobs:\n  max_concurrent: 0\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for zero workers")
	}

	path = writeConfig(t, "lock:\n  ttl: -1s\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
