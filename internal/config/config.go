package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds configuration for both the kiosk agent and the admission server
type Config struct {
	Env string `yaml:"env" env:"APP_ENV" env-default:"local"`

	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
		Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
	} `yaml:"log"`

	Kiosk struct {
		ID          string `yaml:"id" env:"KIOSK_ID"`
		StoragePath string `yaml:"storage_path" env:"KIOSK_STORAGE_PATH" env-default:"kiosk.db"`
		ListenPort  int    `yaml:"listen_port" env:"KIOSK_LISTEN_PORT" env-default:"4820"`
	} `yaml:"kiosk"`

	Backend struct {
		BaseURL string `yaml:"base_url" env:"BACKEND_BASE_URL" env-default:"http://localhost:8080"`
		Timeout int    `yaml:"timeout" env:"BACKEND_TIMEOUT" env-default:"10"`
	} `yaml:"backend"`

	CheckIn struct {
		// CooldownWindow is the business rule: one accepted check-in per
		// subject per window.
		CooldownWindow time.Duration `yaml:"cooldown_window" env:"CHECKIN_COOLDOWN_WINDOW" env-default:"4h"`
		// DedupeWindow collapses near-simultaneous duplicate submissions
		// (double-tap, queued replay racing a live request).
		DedupeWindow   time.Duration `yaml:"dedupe_window" env:"CHECKIN_DEDUPE_WINDOW" env-default:"60s"`
		QueueRetention time.Duration `yaml:"queue_retention" env:"CHECKIN_QUEUE_RETENTION" env-default:"24h"`
		SnapshotTTL    time.Duration `yaml:"snapshot_ttl" env:"CHECKIN_SNAPSHOT_TTL" env-default:"24h"`
	} `yaml:"checkin"`

	Sync struct {
		Interval      time.Duration `yaml:"interval" env:"SYNC_INTERVAL" env-default:"60s"`
		ProbeInterval time.Duration `yaml:"probe_interval" env:"SYNC_PROBE_INTERVAL" env-default:"30s"`
		MaxAttempts   int           `yaml:"max_attempts" env:"SYNC_MAX_ATTEMPTS" env-default:"3"`
		Backoff       time.Duration `yaml:"backoff" env:"SYNC_BACKOFF" env-default:"2s"`
	} `yaml:"sync"`

	Server struct {
		Port        int    `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
		StoragePath string `yaml:"storage_path" env:"SERVER_STORAGE_PATH" env-default:"admission.db"`
	} `yaml:"server"`
}

// LoadConfig reads configuration from the given YAML file, falling back to
// environment variables when the file does not exist.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}
	return &cfg, nil
}
