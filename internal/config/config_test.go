package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8081" {
		t.Errorf("Port = %q, want 8081", cfg.Port)
	}
	if cfg.ForecastHorizonMonths != 6 {
		t.Errorf("ForecastHorizonMonths = %d, want 6", cfg.ForecastHorizonMonths)
	}
	if cfg.ForecastCacheTTL != 5*time.Minute {
		t.Errorf("ForecastCacheTTL = %v, want 5m", cfg.ForecastCacheTTL)
	}
	if cfg.MaterializeCron != "@every 1h" {
		t.Errorf("MaterializeCron = %q, want @every 1h", cfg.MaterializeCron)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("FORECAST_HORIZON_MONTHS", "12")
	t.Setenv("FORECAST_CACHE_TTL", "30s")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Port)
	}
	if cfg.ForecastHorizonMonths != 12 {
		t.Errorf("ForecastHorizonMonths = %d, want 12", cfg.ForecastHorizonMonths)
	}
	if cfg.ForecastCacheTTL != 30*time.Second {
		t.Errorf("ForecastCacheTTL = %v, want 30s", cfg.ForecastCacheTTL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) { c.SQLiteDBPath = "test.db" }},
		{name: "bad port", mutate: func(c *Config) { c.Port = "http" }, wantErr: true},
		{name: "port out of range", mutate: func(c *Config) { c.Port = "70000" }, wantErr: true},
		{name: "empty db path", mutate: func(c *Config) { c.SQLiteDBPath = "" }, wantErr: true},
		{name: "zero horizon", mutate: func(c *Config) { c.SQLiteDBPath = "test.db"; c.ForecastHorizonMonths = 0 }, wantErr: true},
		{name: "excessive horizon", mutate: func(c *Config) { c.SQLiteDBPath = "test.db"; c.ForecastHorizonMonths = 120 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
