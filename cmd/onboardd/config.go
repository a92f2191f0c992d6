package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all onboardd server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	DBPath            string        `json:"db_path"` // empty = in-memory store
	LogLevel          string        `json:"log_level"`
	PoolSize          int           `json:"pool_size"`
	ReminderSpec      string        `json:"reminder_spec"`
	ReminderIdleAfter time.Duration `json:"reminder_idle_after"`
}

func defaultConfig() Config {
	return Config{
		Host:     "0.0.0.0",
		Port:     8080,
		LogLevel: "info",
		PoolSize: 10,
	}
}

func onboardDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".onboard"
	}
	return filepath.Join(home, ".onboard")
}

func settingsPath() string {
	return filepath.Join(onboardDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("ONBOARD_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("ONBOARD_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("ONBOARD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ONBOARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ONBOARD_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("ONBOARD_REMINDER_SPEC"); v != "" {
		cfg.ReminderSpec = v
	}
	if v := os.Getenv("ONBOARD_REMINDER_IDLE_AFTER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReminderIdleAfter = d
		}
	}

	return cfg
}
