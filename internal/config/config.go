// Package config loads the tasktree configuration file and the environment
// credentials it refers to.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/tasktree/internal/logging"
	"github.com/aretw0/tasktree/pkg/llm"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "tasktree.yaml"

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Env overrides applied after the file is read.
const (
	EnvLogLevel   = "TASKTREE_LOG_LEVEL"
	EnvBackend    = "TASKTREE_BACKEND"
	EnvRedisAddr  = "TASKTREE_REDIS_ADDR"
	EnvPromptsDir = "TASKTREE_PROMPTS"
)

// StoreConfig selects the checkpoint backend.
type StoreConfig struct {
	Kind string `yaml:"kind"`
	Dir  string `yaml:"dir,omitempty"`

	RedisAddr     string        `yaml:"redis_addr,omitempty"`
	RedisPassword string        `yaml:"redis_password,omitempty"`
	RedisDB       int           `yaml:"redis_db,omitempty"`
	Prefix        string        `yaml:"prefix,omitempty"`
	TTL           time.Duration `yaml:"ttl,omitempty"`

	// Lock enables the distributed checkpoint lock. Redis only.
	Lock bool `yaml:"lock,omitempty"`

	// EncryptionKeyEnv names a variable holding a base64 AES-256 key.
	// When set, checkpoints are encrypted at rest.
	EncryptionKeyEnv string `yaml:"encryption_key_env,omitempty"`
	// Mask lists patterns of variable names whose values are never persisted.
	Mask []string `yaml:"mask,omitempty"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format,omitempty"`
}

// RateLimit throttles backend requests. Zero RPS disables it.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Config models tasktree.yaml.
type Config struct {
	Version int `yaml:"version"`

	Backends       []llm.Backend `yaml:"backends"`
	DefaultBackend string        `yaml:"default_backend,omitempty"`
	RateLimit      RateLimit     `yaml:"rate_limit,omitempty"`

	PoolSize    int           `yaml:"pool_size"`
	MaxTurns    int           `yaml:"max_turns"`
	TurnTimeout time.Duration `yaml:"turn_timeout,omitempty"`

	Store      StoreConfig `yaml:"store"`
	PromptsDir string      `yaml:"prompts_dir,omitempty"`
	ProjectDir string      `yaml:"project_dir,omitempty"`
	Log        LogConfig   `yaml:"log"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version:    1,
		PoolSize:   4,
		MaxTurns:   16,
		Store:      StoreConfig{Kind: StoreFile},
		ProjectDir: ".",
		Log:        LogConfig{Level: "info", Format: string(logging.FormatText)},
	}
}

// Load reads the file at path over the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Discover loads FileName from dir, falling back to the defaults when it is absent.
func Discover(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		cfg.applyEnv()
		return cfg, cfg.Validate()
	}
	return Load(path)
}

// LoadEnv loads .env files into the process environment so backend keys
// resolve. Missing files are ignored and variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.DefaultBackend = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Store.RedisAddr = v
	}
	if v := os.Getenv(EnvPromptsDir); v != "" {
		c.PromptsDir = v
	}
}

// Validate checks references between sections.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		switch {
		case b.Name == "":
			errs = append(errs, fmt.Errorf("backends[%d]: name is required", i))
		case seen[b.Name]:
			errs = append(errs, fmt.Errorf("backends[%d]: duplicate name %q", i, b.Name))
		}
		seen[b.Name] = true
		if b.Dialect != llm.DialectOpenAI && b.Dialect != llm.DialectAnthropic {
			errs = append(errs, fmt.Errorf("backends[%d]: unknown dialect %q", i, b.Dialect))
		}
	}
	if c.DefaultBackend != "" && !seen[c.DefaultBackend] {
		errs = append(errs, fmt.Errorf("default_backend %q is not configured", c.DefaultBackend))
	}
	if c.PoolSize < 0 {
		errs = append(errs, errors.New("pool_size must not be negative"))
	}
	if c.MaxTurns < 0 {
		errs = append(errs, errors.New("max_turns must not be negative"))
	}
	switch strings.ToLower(c.Store.Kind) {
	case "", StoreMemory, StoreFile:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store: redis_addr is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store: unknown kind %q", c.Store.Kind))
	}
	if c.Store.Lock && !strings.EqualFold(c.Store.Kind, StoreRedis) {
		errs = append(errs, errors.New("store: lock requires the redis store"))
	}
	for _, p := range c.Store.Mask {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("store: invalid mask pattern %q: %w", p, err))
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	return errors.Join(errs...)
}

// LogOptions converts the log section for logging.NewWithOptions.
func (c *Config) LogOptions() logging.Options {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.Options{Level: level, Format: logging.Format(strings.ToLower(c.Log.Format))}
}

// Backend returns the named backend, or the default when name is empty.
func (c *Config) Backend(name string) (llm.Backend, bool) {
	if name == "" {
		name = c.DefaultBackend
	}
	if name == "" && len(c.Backends) > 0 {
		return c.Backends[0], true
	}
	for _, b := range c.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return llm.Backend{}, false
}
