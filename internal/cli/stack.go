package cli

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/tasktree"
	"github.com/aretw0/tasktree/internal/adapters/file"
	"github.com/aretw0/tasktree/internal/config"
	"github.com/aretw0/tasktree/internal/runtime"
	"github.com/aretw0/tasktree/internal/workers"
	"github.com/aretw0/tasktree/pkg/adapters/loam"
	"github.com/aretw0/tasktree/pkg/adapters/memory"
	"github.com/aretw0/tasktree/pkg/adapters/project"
	"github.com/aretw0/tasktree/pkg/adapters/redis"
	"github.com/aretw0/tasktree/pkg/llm"
	"github.com/aretw0/tasktree/pkg/observability"
	"github.com/aretw0/tasktree/pkg/persistence/middleware"
	"github.com/aretw0/tasktree/pkg/ports"
	"github.com/aretw0/tasktree/pkg/session"
	"golang.org/x/time/rate"
)

// Stack holds the long-lived services built from a configuration: the model
// client, the checkpoint store, the prompt library and the project directory.
// Engines created from one stack share all of them.
type Stack struct {
	Config      *config.Config
	Logger      *slog.Logger
	LLM         *llm.Client
	Checkpoints *session.Manager
	Prompts     *loam.Library
	Project     *project.Dir
	Metrics     *observability.Metrics

	closers []io.Closer
	pool    *workers.Pool
}

// NewStack wires the services named by cfg.
func NewStack(cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	s := &Stack{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}
	s.LLM = newClient(cfg, logger)

	store, err := s.openStore()
	if err != nil {
		return nil, err
	}
	store, err = wrapStore(store, cfg.Store)
	if err != nil {
		s.Close()
		return nil, err
	}
	mgrOpts := []session.Option{session.WithLogger(logger)}
	if cfg.Store.Lock {
		rs, ok := s.redis()
		if !ok {
			s.Close()
			return nil, errors.New("store: lock requires the redis store")
		}
		mgrOpts = append(mgrOpts, session.WithLocker(redis.NewLocker(rs.Client(), cfg.Store.Prefix)))
	}
	s.Checkpoints = session.NewManager(store, mgrOpts...)

	if cfg.PromptsDir != "" {
		lib, err := loam.Open(cfg.PromptsDir)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open prompts: %w", err)
		}
		s.Prompts = lib
	}

	dir := cfg.ProjectDir
	if dir == "" {
		dir = "."
	}
	if s.Project, err = project.Open(dir); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newClient(cfg *config.Config, logger *slog.Logger) *llm.Client {
	backends := make([]llm.Backend, len(cfg.Backends))
	for i, b := range cfg.Backends {
		if b.Timeout == 0 {
			b.Timeout = cfg.TurnTimeout
		}
		backends[i] = b
	}
	opts := []llm.Option{llm.WithLogger(logger)}
	if cfg.RateLimit.RPS > 0 {
		opts = append(opts, llm.WithRateLimit(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst))
	}
	if b, ok := cfg.Backend(""); ok {
		opts = append(opts, llm.WithDefaultBackend(b.Name))
	}
	return llm.NewClient(backends, opts...)
}

func (s *Stack) openStore() (ports.CheckpointStore, error) {
	sc := s.Config.Store
	switch strings.ToLower(sc.Kind) {
	case config.StoreMemory:
		return memory.NewStore(), nil
	case "", config.StoreFile:
		return file.New(sc.Dir), nil
	case config.StoreRedis:
		var opts []redis.Option
		if sc.Prefix != "" {
			opts = append(opts, redis.WithPrefix(sc.Prefix))
		}
		if sc.TTL > 0 {
			opts = append(opts, redis.WithTTL(sc.TTL))
		}
		rs := redis.New(sc.RedisAddr, sc.RedisPassword, sc.RedisDB, opts...)
		s.closers = append(s.closers, rs)
		return rs, nil
	}
	return nil, fmt.Errorf("store: unknown kind %q", sc.Kind)
}

func (s *Stack) redis() (*redis.Store, bool) {
	for _, c := range s.closers {
		if rs, ok := c.(*redis.Store); ok {
			return rs, true
		}
	}
	return nil, false
}

// wrapStore applies masking before encryption so masked values never reach the
// ciphertext.
func wrapStore(store ports.CheckpointStore, sc config.StoreConfig) (ports.CheckpointStore, error) {
	var mws []middleware.Middleware
	if len(sc.Mask) > 0 {
		pii, err := middleware.NewPIIMiddleware(sc.Mask)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	if sc.EncryptionKeyEnv != "" {
		key, err := encryptionKey(sc.EncryptionKeyEnv)
		if err != nil {
			return nil, err
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), nil
}

func encryptionKey(env string) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		return nil, fmt.Errorf("store: encryption key variable %s is not set", env)
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("store: encryption key in %s is not base64: %w", env, err)
	}
	return key, nil
}

// EngineOptions returns the facade options every engine of the stack shares.
func (s *Stack) EngineOptions() []tasktree.Option {
	opts := []tasktree.Option{
		tasktree.WithLogger(s.Logger),
		tasktree.WithStreamer(s.LLM),
		tasktree.WithPoolSize(s.Config.PoolSize),
		tasktree.WithMaxTurns(s.Config.MaxTurns),
		tasktree.WithCheckpoints(s.Checkpoints),
		tasktree.WithMetrics(s.Metrics),
		tasktree.WithProject(s.Project),
		tasktree.WithLifecycleHooks(debugHooks(s.Logger)),
	}
	if s.Prompts != nil {
		opts = append(opts, tasktree.WithPrompts(s.Prompts))
	}
	return opts
}

// NewEngine loads the graph at graphPath with the stack options followed by extra.
func (s *Stack) NewEngine(graphPath string, extra ...tasktree.Option) (*tasktree.Engine, error) {
	return tasktree.New(graphPath, append(s.EngineOptions(), extra...)...)
}

// RuntimeOptions returns the options for engines built directly on the
// runtime, such as the planner's. They share one worker pool owned by the stack.
func (s *Stack) RuntimeOptions() []runtime.EngineOption {
	opts := []runtime.EngineOption{
		runtime.WithLogger(s.Logger),
		runtime.WithStreamer(s.LLM),
		runtime.WithProject(s.Project),
		runtime.WithMaxTurns(s.Config.MaxTurns),
	}
	if s.Config.PoolSize > 0 {
		if s.pool == nil {
			s.pool = workers.New(s.Config.PoolSize)
		}
		opts = append(opts, runtime.WithPool(s.pool))
	}
	return opts
}

// Close releases the store connections and the shared pool.
func (s *Stack) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}
