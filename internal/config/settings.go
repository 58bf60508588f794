package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type Config struct {
	SourcesFile string `json:"sources_file" validate:"required"`

	Fetcher FetcherConfig `json:"fetcher"`

	Output struct {
		Path string `json:"path" validate:"required"`
	} `json:"output"`

	RefreshTimer Timer `json:"refresh_timer"`

	BlockedHosts []string `json:"blocked_hosts"`

	Sinks struct {
		Redis struct {
			Enabled bool   `json:"enabled"`
			Key     string `json:"key" validate:"required_if=Enabled true"`
			Channel string `json:"channel"`
		} `json:"redis"`

		Database struct {
			Enabled bool `json:"enabled"`
		} `json:"database"`
	} `json:"sinks"`
}

type FetcherConfig struct {
	Workers        int    `json:"workers" validate:"min=1,max=256"`
	Attempts       int    `json:"attempts" validate:"min=1,max=10"`
	TimeoutSeconds int    `json:"timeout_seconds" validate:"min=1,max=3600"`
	BackoffSeconds int    `json:"backoff_seconds" validate:"min=0,max=600"`
	UserAgent      string `json:"user_agent" validate:"required"`
	MaxBodyBytes   int64  `json:"max_body_bytes" validate:"min=0"`
}

func (f FetcherConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

func (f FetcherConfig) Backoff() time.Duration {
	return time.Duration(f.BackoffSeconds) * time.Second
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

const DefaultSettingsPath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex
)

func init() {
	configValue.Store(DefaultConfig())
}

// DefaultConfig returns the embedded default settings.
func DefaultConfig() Config {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		panic(fmt.Sprintf("config: embedded default settings are invalid: %v", err))
	}
	return cfg
}

// ReadSettings loads the settings file at path and makes it current.
func ReadSettings(path string) error {
	cfg, err := LoadSettings(path)
	if err != nil {
		return err
	}
	ApplyConfig(cfg)
	log.Debug("Settings file loaded successfully", "path", path)
	return nil
}

// LoadSettings reads and validates the settings file at path without applying
// it, creating the file from the embedded defaults when it does not exist yet.
// Values missing from the file keep their defaults.
func LoadSettings(path string) (Config, error) {
	if path == "" {
		path = DefaultSettingsPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read settings file: %w", err)
		}

		log.Warn("Settings file not found, creating with default configuration", "path", path)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return Config{}, fmt.Errorf("create settings directory: %w", err)
		}
		if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
			return Config{}, fmt.Errorf("write default settings file: %w", err)
		}
		data = defaultConfig
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal settings file %s: %w", path, err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyConfig makes cfg current and updates the host blocklist and refresh
// interval derived from it. cfg must already be validated.
func ApplyConfig(cfg Config) {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(cfg)
	updateHostBlocklist(cfg.BlockedHosts)
	SetRefreshInterval()
}

func GetConfig() Config {
	return configValue.Load().(Config)
}
