package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/loam"
	"github.com/aretw0/tasktree/pkg/domain"
	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheTTL bounds how long a listing of the prompt directory is reused.
const DefaultCacheTTL = 30 * time.Second

const allPromptsKey = "prompts"

// Library implements ports.PromptLibrary over a Loam repository of prompt documents.
type Library struct {
	Repo  *loam.TypedRepository[PromptMetadata]
	cache *gocache.Cache
}

// Option configures a Library.
type Option func(*libraryConfig)

type libraryConfig struct {
	ttl time.Duration
}

// WithCacheTTL sets how long a directory listing is reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *libraryConfig) { c.ttl = ttl }
}

// New wraps a typed repository.
func New(repo *loam.TypedRepository[PromptMetadata], opts ...Option) *Library {
	cfg := libraryConfig{ttl: DefaultCacheTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	l := &Library{Repo: repo}
	if cfg.ttl > 0 {
		l.cache = gocache.New(cfg.ttl, 2*cfg.ttl)
	}
	return l
}

// Open initializes a read-only Loam repository at dir.
func Open(dir string, opts ...Option) (*Library, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt directory: %w", err)
	}
	repo, err := loam.Init(abs,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[PromptMetadata](repo), opts...), nil
}

// Find returns the active prompts whose tags are all among tags, ordered by ID.
func (l *Library) Find(ctx context.Context, tags []string) ([]domain.Prompt, error) {
	all, err := l.all(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Prompt
	for _, p := range all {
		if p.Matches(tags) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Invalidate drops the cached listing.
func (l *Library) Invalidate() {
	if l.cache != nil {
		l.cache.Delete(allPromptsKey)
	}
}

func (l *Library) all(ctx context.Context) ([]domain.Prompt, error) {
	if l.cache != nil {
		if v, ok := l.cache.Get(allPromptsKey); ok {
			return v.([]domain.Prompt), nil
		}
	}

	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}
	prompts := make([]domain.Prompt, 0, len(docs))
	for _, doc := range docs {
		if !doc.Data.active() {
			continue
		}
		id := doc.Data.ID
		if id == "" {
			id = trimExtension(doc.ID)
		}
		prompts = append(prompts, domain.Prompt{
			ID:      id,
			Tags:    doc.Data.Tags,
			Summary: doc.Data.Summary,
			Content: strings.TrimSpace(doc.Content),
			Context: doc.Data.IncludeInContext,
			Display: doc.Data.IncludeInDisplay,
		})
	}
	sort.Slice(prompts, func(i, j int) bool { return prompts[i].ID < prompts[j].ID })

	if l.cache != nil {
		l.cache.SetDefault(allPromptsKey, prompts)
	}
	return prompts, nil
}

// Watch invalidates the cache whenever a prompt document changes, until ctx ends.
// The returned channel carries the changed document IDs.
func (l *Library) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				l.Invalidate()
				select {
				case ch <- evt.ID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func trimExtension(id string) string {
	return filepath.ToSlash(strings.TrimSuffix(id, filepath.Ext(id)))
}
