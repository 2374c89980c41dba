// Package config loads the engine's YAML configuration with ${ENV_VAR}
// expansion and applies defaults for missing values.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"marcador/internal/database"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup database.BackupConfig `yaml:"backup"`

	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`

	Schedule struct {
		Path               string `yaml:"path"`
		CacheWindowSeconds int    `yaml:"cache_window_seconds"`
	} `yaml:"schedule"`

	Redis struct {
		Enabled         bool   `yaml:"enabled"`
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		HoldTTLMinutes       int  `yaml:"hold_ttl_minutes"`
		SweepIntervalSeconds int  `yaml:"sweep_interval_seconds"`
		SingleActive         bool `yaml:"single_active"`
		ReserveEverySeconds  int  `yaml:"reserve_every_seconds"`
		ReserveBurst         int  `yaml:"reserve_burst"`
	} `yaml:"booking"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/marcador.db"
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = "configs/services.yaml"
	}
	if cfg.Schedule.Path == "" {
		cfg.Schedule.Path = "configs/schedule.yaml"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) HoldTTL() time.Duration {
	if c.Booking.HoldTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Booking.HoldTTLMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	if c.Booking.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Booking.SweepIntervalSeconds) * time.Second
}

func (c *Config) ScheduleCacheWindow() time.Duration {
	if c.Schedule.CacheWindowSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Schedule.CacheWindowSeconds) * time.Second
}

func (c *Config) RedisCacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) ReserveEvery() time.Duration {
	if c.Booking.ReserveEverySeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Booking.ReserveEverySeconds) * time.Second
}
