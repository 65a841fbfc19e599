// Package config provides configuration loading and path management for the
// expert client.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Defaults for the coordination core. The guard and cache windows match the
// production client behavior; overriding them is mostly useful in staging.
const (
	DefaultBackendURL     = "https://api.intelia.com"
	DefaultRequestTimeout = 10 * time.Second
	DefaultProfileTTL     = 60 * time.Second
	DefaultLoadCooldown   = 10 * time.Minute
	DefaultSuccessCache   = 30 * time.Minute
	DefaultMaxRetries     = 1
)

// Config holds the client configuration.
type Config struct {
	// BackendURL is the base URL of the expert backend API.
	BackendURL string `json:"backendURL" yaml:"backendURL"`

	// Language is the UI locale used when neither the provider profile nor
	// the backend supplies one.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`

	// LogLevel is the minimum log level (DEBUG|INFO|WARN|ERROR).
	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`

	// RequestTimeout bounds any single backend fetch.
	RequestTimeout time.Duration `json:"requestTimeout,omitempty" yaml:"requestTimeout,omitempty"`

	// ProfileTTL is how long a fetched profile is served from cache.
	ProfileTTL time.Duration `json:"profileTTL,omitempty" yaml:"profileTTL,omitempty"`

	// LoadCooldown is the minimum spacing between history-load attempts.
	LoadCooldown time.Duration `json:"loadCooldown,omitempty" yaml:"loadCooldown,omitempty"`

	// SuccessCache is the window after a successful history load during
	// which repeat loads are treated as already satisfied.
	SuccessCache time.Duration `json:"successCache,omitempty" yaml:"successCache,omitempty"`

	// MaxRetries caps history-load retries after the first failed attempt.
	MaxRetries int `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
}

// Load reads configuration from the standard locations (first match wins per
// format, later files only fill fields still unset):
//  1. $EXPERT_CONFIG (explicit override)
//  2. ~/.config/intelia-expert/expert.{jsonc,json,yaml,yml}
//  3. .env in the working directory (for EXPERT_* variables)
//  4. EXPERT_* environment variables (highest priority)
func Load() (*Config, error) {
	cfg := &Config{}

	// .env is best effort; the file usually only exists in development.
	_ = godotenv.Load()

	paths := candidatePaths()
	for _, path := range paths {
		if err := loadFile(path, cfg); err == nil {
			break
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func candidatePaths() []string {
	var paths []string
	if explicit := os.Getenv("EXPERT_CONFIG"); explicit != "" {
		paths = append(paths, explicit)
	}
	dir := GetPaths().Config
	for _, name := range []string{"expert.jsonc", "expert.json", "expert.yaml", "expert.yml"} {
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths
}

// loadFile reads a single config file, dispatching on extension. JSON files
// may carry comments (JSONC).
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(jsonc.ToJSON(data), cfg)
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EXPERT_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("EXPERT_LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv("EXPERT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("EXPERT_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if v := os.Getenv("EXPERT_LOAD_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LoadCooldown = d
		}
	}
	if v := os.Getenv("EXPERT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRetries = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.BackendURL == "" {
		cfg.BackendURL = DefaultBackendURL
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.ProfileTTL <= 0 {
		cfg.ProfileTTL = DefaultProfileTTL
	}
	if cfg.LoadCooldown <= 0 {
		cfg.LoadCooldown = DefaultLoadCooldown
	}
	if cfg.SuccessCache <= 0 {
		cfg.SuccessCache = DefaultSuccessCache
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
}

// Save writes the configuration to a file as indented JSON.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
