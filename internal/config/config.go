// Package config loads aist settings from a YAML file, the environment and .env.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "aist.yaml"

// EngineConfig describes the Python engine.
type EngineConfig struct {
	Python      string `yaml:"python"`
	Script      string `yaml:"script"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	Debug       bool   `yaml:"debug"`
}

// MatchConfig configures identity matching.
type MatchConfig struct {
	Threshold  float64 `yaml:"threshold"`
	Index      string  `yaml:"index"` // linear or hnsw
	Candidates int     `yaml:"candidates"`
}

// CaptureConfig selects the frame source backend.
type CaptureConfig struct {
	Backend string `yaml:"backend"` // ffmpeg or gocv
	FPS     int    `yaml:"fps"`
}

// LogsConfig controls the JSON result logs.
type LogsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir"`
	FlushEvery int    `yaml:"flush_every"`
	Level      string `yaml:"level"` // slog level for pipeline diagnostics
}

// UnlockConfig holds the unlocker budget and the stored password digest.
type UnlockConfig struct {
	Attempts         int    `yaml:"attempts"`
	PasswordAttempts int    `yaml:"password_attempts"`
	PasswordHash     string `yaml:"password_hash"`
	Method           string `yaml:"method"`
}

// WatchConfig configures object watching.
type WatchConfig struct {
	Model     string  `yaml:"model"`
	Conf      float64 `yaml:"conf"`
	SaveEvery int     `yaml:"save_every"`
	Classes   []int   `yaml:"classes"`
}

// DatabaseConfig points at the Postgres store. Empty URL means POSTGRES_* or the local default.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ServerConfig configures `aist serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the root configuration.
type Config struct {
	Gallery  string         `yaml:"gallery"`
	Engine   EngineConfig   `yaml:"engine"`
	Match    MatchConfig    `yaml:"match"`
	Capture  CaptureConfig  `yaml:"capture"`
	Logs     LogsConfig     `yaml:"logs"`
	Unlock   UnlockConfig   `yaml:"unlock"`
	Watch    WatchConfig    `yaml:"watch"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Gallery: "core.gob",
		Engine: EngineConfig{
			Python:      "python3",
			Script:      "engine/main.py", // installed separately, speaks the internal/worker protocol
			TimeoutSecs: 30,
		},
		Match: MatchConfig{Threshold: 0.7, Index: "linear", Candidates: 8},
		Capture: CaptureConfig{
			Backend: "ffmpeg",
			FPS:     10,
		},
		Logs: LogsConfig{
			Enabled:    true,
			Dir:        "logs",
			FlushEvery: 500,
			Level:      "info",
		},
		Unlock: UnlockConfig{
			Attempts:         10,
			PasswordAttempts: 3,
			Method:           "sha256",
		},
		Watch: WatchConfig{
			Model:     "yolov5s",
			Conf:      0.5,
			SaveEvery: 1000,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads the config at path. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, oops.Code("config.load.read.failure").With("path", path).Wrap(err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, oops.Code("config.parse.invalid_format").With("path", path).Wrap(err)
		}
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects values no command can run with.
func (c *Config) Validate() error {
	invalid := oops.Code("config.validate.invalid_value")
	if c.Match.Threshold < 0 || math.IsNaN(c.Match.Threshold) {
		return invalid.With("match.threshold", c.Match.Threshold).Errorf("match threshold must be non-negative")
	}
	if c.Match.Index != "linear" && c.Match.Index != "hnsw" {
		return invalid.With("match.index", c.Match.Index).Errorf("unknown match index %q (want linear or hnsw)", c.Match.Index)
	}
	if c.Watch.Conf < 0 || c.Watch.Conf > 1 {
		return invalid.With("watch.conf", c.Watch.Conf).Errorf("watch confidence must be within [0, 1]")
	}
	return nil
}

// applyDefaults fills zero values left by a partial YAML file.
func applyDefaults(c *Config) {
	d := Default()
	if c.Gallery == "" {
		c.Gallery = d.Gallery
	}
	if c.Engine.Python == "" {
		c.Engine.Python = d.Engine.Python
	}
	if c.Engine.Script == "" {
		c.Engine.Script = d.Engine.Script
	}
	if c.Match.Index == "" {
		c.Match.Index = d.Match.Index
	}
	if c.Match.Candidates <= 0 {
		c.Match.Candidates = d.Match.Candidates
	}
	if c.Capture.Backend == "" {
		c.Capture.Backend = d.Capture.Backend
	}
	if c.Logs.Dir == "" {
		c.Logs.Dir = d.Logs.Dir
	}
	if c.Logs.FlushEvery <= 0 {
		c.Logs.FlushEvery = d.Logs.FlushEvery
	}
	if c.Logs.Level == "" {
		c.Logs.Level = d.Logs.Level
	}
	if c.Unlock.Attempts <= 0 {
		c.Unlock.Attempts = d.Unlock.Attempts
	}
	if c.Unlock.PasswordAttempts <= 0 {
		c.Unlock.PasswordAttempts = d.Unlock.PasswordAttempts
	}
	if c.Unlock.Method == "" {
		c.Unlock.Method = d.Unlock.Method
	}
	if c.Watch.Model == "" {
		c.Watch.Model = d.Watch.Model
	}
	if c.Watch.SaveEvery <= 0 {
		c.Watch.SaveEvery = d.Watch.SaveEvery
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
}

func applyEnv(c *Config) {
	envString("AIST_GALLERY", &c.Gallery)
	envString("AIST_PYTHON", &c.Engine.Python)
	envString("AIST_ENGINE_SCRIPT", &c.Engine.Script)
	c.Engine.TimeoutSecs = envInt("AIST_ENGINE_TIMEOUT", c.Engine.TimeoutSecs)
	c.Match.Threshold = envFloat("AIST_THRESHOLD", c.Match.Threshold)
	envString("AIST_MATCH_INDEX", &c.Match.Index)
	envString("AIST_CAPTURE_BACKEND", &c.Capture.Backend)
	envString("AIST_LOG_DIR", &c.Logs.Dir)
	c.Logs.FlushEvery = envInt("AIST_FLUSH_EVERY", c.Logs.FlushEvery)
	envString("AIST_LOG_LEVEL", &c.Logs.Level)
	envString("AIST_PASSWORD_HASH", &c.Unlock.PasswordHash)
	envString("AIST_HASH_METHOD", &c.Unlock.Method)
	envString("AIST_ADDR", &c.Server.Addr)

	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.URL = url
	}
}

// DatabaseURL returns the configured connection string, falling back to
// POSTGRES_* variables and then a local default.
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	return "postgres://localhost:5432/aist"
}

// SlogLevel maps Logs.Level to a slog level. Unknown names mean info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.Logs.Level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}
