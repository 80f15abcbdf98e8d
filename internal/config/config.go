// Package config loads settings for the server and the terminal client.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config defines server and client configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	Redis  RedisConfig  `yaml:"redis"`
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DBConfig selects the database.
type DBConfig struct {
	Driver string `yaml:"driver"` // pgx or sqlite
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables fan-out across server instances. Empty URL means in-process only.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ClientConfig is read by the terminal client.
type ClientConfig struct {
	ServerURL     string `yaml:"server_url"`
	User          string `yaml:"user"`
	DragThreshold int    `yaml:"drag_threshold"` // cells a pointer must travel before a press becomes a drag
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // TUI log destination; the terminal is taken by the UI
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		DB:     DBConfig{Driver: "sqlite", DSN: "file:kanban.db"},
		Client: ClientConfig{ServerURL: "http://localhost:8080", DragThreshold: 2},
		Log:    LogConfig{Level: "info", File: "kanban.log"},
	}
}

// Load reads configuration from defaults, an optional YAML file named by
// KANBAN_CONFIG, and KANBAN_* environment variables, in that order.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("KANBAN_CONFIG"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	strs := []struct {
		env string
		dst *string
	}{
		{"KANBAN_ADDR", &cfg.Server.Addr},
		{"KANBAN_DB_DRIVER", &cfg.DB.Driver},
		{"KANBAN_DB_DSN", &cfg.DB.DSN},
		{"KANBAN_REDIS_URL", &cfg.Redis.URL},
		{"KANBAN_SERVER_URL", &cfg.Client.ServerURL},
		{"KANBAN_USER", &cfg.Client.User},
		{"KANBAN_LOG_LEVEL", &cfg.Log.Level},
		{"KANBAN_LOG_FILE", &cfg.Log.File},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	if v := os.Getenv("KANBAN_DRAG_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid KANBAN_DRAG_THRESHOLD: %w", err)
		}
		cfg.Client.DragThreshold = n
	}

	if cfg.Client.DragThreshold < 0 {
		return Config{}, fmt.Errorf("drag threshold must not be negative, got %d", cfg.Client.DragThreshold)
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
