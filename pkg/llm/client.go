// Package llm streams completions from language-model backends.
//
// Two dialects are supported. The client issues one request per call, turns
// the response body into text chunks and never retries; retry and
// continuation are the caller's decision.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/tasktree/internal/logging"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a whole streamed request when neither the request nor the backend sets one.
const DefaultTimeout = 60 * time.Second

// maxLineSize is the largest stream line accepted, well above the 64KB scanner default.
const maxLineSize = 1024 * 1024

// Backend describes one configured model endpoint.
type Backend struct {
	Name     string        `yaml:"name" json:"name"`
	Dialect  Dialect       `yaml:"dialect" json:"dialect"`
	Endpoint string        `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Model    string        `yaml:"model,omitempty" json:"model,omitempty"`
	KeyEnv   string        `yaml:"key_env,omitempty" json:"key_env,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

func (b Backend) endpoint() string {
	if b.Endpoint != "" {
		return b.Endpoint
	}
	return defaultEndpoints[b.Dialect]
}

// Request is one streamed completion.
type Request struct {
	Backend   string
	Model     string
	Prompt    string
	MaxTokens int
	Timeout   time.Duration
}

// ChunkFunc receives extracted text in arrival order. Returning an error aborts the stream.
type ChunkFunc func(text string) error

// Client streams completions from a catalog of backends. It is safe for concurrent use.
type Client struct {
	mu       sync.RWMutex
	backends map[string]Backend

	http        *http.Client
	credentials CredentialProvider
	limiter     *rate.Limiter
	logger      *slog.Logger
	fallback    string

	stopped atomic.Bool
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the transport.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithCredentials sets the credential provider. EnvCredentials is the default.
func WithCredentials(p CredentialProvider) Option {
	return func(cl *Client) { cl.credentials = p }
}

// WithRateLimit waits for a token before each request.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(cl *Client) {
		if limit > 0 {
			cl.limiter = rate.NewLimiter(limit, max(burst, 1))
		}
	}
}

// WithDefaultBackend names the backend used by requests that leave Backend empty.
func WithDefaultBackend(name string) Option {
	return func(cl *Client) { cl.fallback = name }
}

// WithLogger configures a logger for the Client.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// NewClient creates a client for the given backends.
func NewClient(backends []Backend, opts ...Option) *Client {
	c := &Client{
		backends:    make(map[string]Backend, len(backends)),
		http:        &http.Client{},
		credentials: EnvCredentials{},
		logger:      logging.NewNop(),
	}
	for _, b := range backends {
		c.backends[b.Name] = b
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds or replaces a backend.
func (c *Client) Register(b Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backends[b.Name] = b
}

// Backend looks up a backend by name.
func (c *Client) Backend(name string) (Backend, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.backends[name]
	return b, ok
}

// Stop asks every in-flight stream to end. It is checked once per received line,
// so lines already read are still delivered. The flag stays set until Resume.
func (c *Client) Stop() { c.stopped.Store(true) }

// Resume clears a previous Stop.
func (c *Client) Resume() { c.stopped.Store(false) }

// Stream issues the request and calls fn for every text chunk until the stream ends.
// A body that closes before the dialect's end marker yields a KindTruncated error;
// chunks already passed to fn stay delivered.
func (c *Client) Stream(ctx context.Context, req Request, fn ChunkFunc) error {
	name := req.Backend
	if name == "" {
		name = c.fallback
	}
	b, ok := c.Backend(name)
	if !ok {
		return &Error{Kind: KindUnsupportedDialect, Message: fmt.Sprintf("unknown backend %q", name)}
	}
	dec, ok := decoderFor(b.Dialect)
	if !ok {
		return &Error{Kind: KindUnsupportedDialect, Message: fmt.Sprintf("backend %q uses unsupported dialect %q", b.Name, b.Dialect)}
	}

	model := req.Model
	if model == "" {
		model = b.Model
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = b.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return transportError(ctx, "rate limiter", err)
		}
	}

	key, err := c.credentials.APIKey(ctx, b)
	if err != nil {
		return &Error{Kind: KindTransport, Message: "credentials", Detail: err.Error(), Err: err}
	}
	body, err := buildBody(b.Dialect, model, req.Prompt, req.MaxTokens)
	if err != nil {
		return &Error{Kind: KindTransport, Message: "encode request", Detail: err.Error(), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint(), bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: KindTransport, Message: "build request", Detail: err.Error(), Err: err}
	}
	setHeaders(httpReq.Header, b.Dialect, key)

	c.logger.Debug("Streaming request", "backend", b.Name, "dialect", b.Dialect, "model", model)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return transportError(ctx, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{Kind: KindBackend, Message: fmt.Sprintf("status %d", resp.StatusCode), Detail: string(bytes.TrimSpace(detail))}
	}

	return c.consume(ctx, resp.Body, dec, fn)
}

func (c *Client) consume(ctx context.Context, r io.Reader, dec decoder, fn ChunkFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if c.stopped.Load() {
			return ErrStopped
		}
		text, done, err := dec.decode(scanner.Text())
		if err != nil {
			return err
		}
		if text != "" {
			if err := fn(text); err != nil {
				return err
			}
		}
		if done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return transportError(ctx, "read stream", err)
	}
	if err := ctx.Err(); err != nil {
		return transportError(ctx, "read stream", err)
	}
	// The body closed before the dialect's end marker.
	c.logger.Warn("Stream ended without terminator")
	return &Error{Kind: KindTruncated, Message: "stream ended without terminator"}
}
