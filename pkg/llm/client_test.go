package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	mu     sync.Mutex
	header http.Header
	body   map[string]any
}

func (c *captured) get(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.header.Get(key)
}

func (c *captured) field(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprint(c.body[key])
}

func streamServer(t *testing.T, lines ...string) (*httptest.Server, *captured) {
	t.Helper()
	req := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.mu.Lock()
		req.header = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&req.body)
		req.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintln(w, l)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, req
}

func collect(t *testing.T, c *llm.Client, backend string) (string, error) {
	t.Helper()
	var sb strings.Builder
	err := c.Stream(context.Background(), llm.Request{Backend: backend, Prompt: "hi"}, func(s string) error {
		sb.WriteString(s)
		return nil
	})
	return sb.String(), err
}

func client(srv *httptest.Server, d llm.Dialect) *llm.Client {
	return llm.NewClient(
		[]llm.Backend{{Name: "test", Dialect: d, Endpoint: srv.URL, Model: "m1"}},
		llm.WithCredentials(llm.StaticCredentials{"test": "secret"}),
	)
}

func TestOpenAI_Stream(t *testing.T) {
	srv, req := streamServer(t,
		`: keep-alive`,
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[]}`,
		`data: [DONE]`,
		`data: {"choices":[{"delta":{"content":"ignored"}}]}`,
	)

	text, err := collect(t, client(srv, llm.DialectOpenAI), "test")
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, "Bearer secret", req.get("Authorization"))
	assert.Equal(t, "m1", req.field("model"))
	assert.Equal(t, "true", req.field("stream"))
}

func TestOpenAI_MalformedPayloadIsFatal(t *testing.T) {
	srv, _ := streamServer(t,
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		`data: {not json`,
		`data: {"choices":[{"delta":{"content":"b"}}]}`,
	)

	text, err := collect(t, client(srv, llm.DialectOpenAI), "test")
	assert.Equal(t, "a", text)
	require.ErrorIs(t, err, domain.ErrProtocol)

	var lerr *llm.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, llm.KindMalformedPayload, lerr.Kind)
}

func TestAnthropic_Stream(t *testing.T) {
	srv, req := streamServer(t,
		`event: content_block_delta`,
		`{"type":"ping"}`,
		`garbage line`,
		`{"type":"content_block_delta","delta":{"text":"Hi "}}`,
		`data: {"type":"content_block_delta","delta":{"text":"there"}}`,
		`{"broken":`,
		`{"type":"content_block_stop"}`,
		`{"type":"content_block_delta","delta":{"text":"late"}}`,
	)

	text, err := collect(t, client(srv, llm.DialectAnthropic), "test")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
	assert.Equal(t, "secret", req.get("x-api-key"))
	assert.Equal(t, llm.AnthropicVersion, req.get("anthropic-version"))
	assert.Equal(t, "2048", req.field("max_tokens"))
}

func TestAnthropic_ErrorEventEndsStream(t *testing.T) {
	srv, _ := streamServer(t,
		`{"type":"content_block_delta","delta":{"text":"partial"}}`,
		`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
		`{"type":"content_block_delta","delta":{"text":"never"}}`,
	)

	text, err := collect(t, client(srv, llm.DialectAnthropic), "test")
	assert.Equal(t, "partial", text)
	require.ErrorIs(t, err, domain.ErrProtocol)
	assert.Contains(t, err.Error(), "Overloaded")
}

func TestStream_Errors(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		_, err := collect(t, llm.NewClient(nil), "nope")
		var lerr *llm.Error
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, llm.KindUnsupportedDialect, lerr.Kind)
	})

	t.Run("unsupported dialect", func(t *testing.T) {
		c := llm.NewClient([]llm.Backend{{Name: "x", Dialect: "smoke-signals"}})
		_, err := collect(t, c, "x")
		var lerr *llm.Error
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, llm.KindUnsupportedDialect, lerr.Kind)
	})

	t.Run("backend status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()
		_, err := collect(t, client(srv, llm.DialectOpenAI), "test")
		var lerr *llm.Error
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, llm.KindBackend, lerr.Kind)
		assert.Contains(t, lerr.Detail, "quota exceeded")
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		c := client(srv, llm.DialectOpenAI)
		err := c.Stream(context.Background(), llm.Request{Backend: "test", Timeout: 50 * time.Millisecond}, func(string) error { return nil })
		var lerr *llm.Error
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, llm.KindTimeout, lerr.Kind)
		assert.ErrorIs(t, err, domain.ErrProtocol)
	})

	t.Run("missing credentials", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		c := llm.NewClient([]llm.Backend{{Name: "env", Dialect: llm.DialectOpenAI, Endpoint: "http://127.0.0.1:1"}})
		_, err := collect(t, c, "env")
		assert.ErrorIs(t, err, domain.ErrProtocol)
	})
}

func TestStream_StopAndCallbackAbort(t *testing.T) {
	srv, _ := streamServer(t,
		`data: {"choices":[{"delta":{"content":"one"}}]}`,
		`data: {"choices":[{"delta":{"content":"two"}}]}`,
		`data: [DONE]`,
	)
	c := client(srv, llm.DialectOpenAI)

	var got []string
	err := c.Stream(context.Background(), llm.Request{Backend: "test"}, func(s string) error {
		got = append(got, s)
		c.Stop()
		return nil
	})
	assert.ErrorIs(t, err, llm.ErrStopped)
	assert.ErrorIs(t, err, domain.ErrProtocol)
	var lerr *llm.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, llm.KindStopped, lerr.Kind)
	assert.Equal(t, []string{"one"}, got)

	c.Resume()
	boom := errors.New("enough")
	err = c.Stream(context.Background(), llm.Request{Backend: "test"}, func(string) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestStream_MissingTerminator(t *testing.T) {
	tests := []struct {
		name    string
		dialect llm.Dialect
		lines   []string
	}{
		{"openai", llm.DialectOpenAI, []string{`data: {"choices":[{"delta":{"content":"half"}}]}`}},
		{"anthropic", llm.DialectAnthropic, []string{`{"type":"content_block_delta","delta":{"text":"half"}}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := streamServer(t, tt.lines...)
			text, err := collect(t, client(srv, tt.dialect), "test")
			assert.Equal(t, "half", text)
			require.ErrorIs(t, err, domain.ErrProtocol)

			var lerr *llm.Error
			require.ErrorAs(t, err, &lerr)
			assert.Equal(t, llm.KindTruncated, lerr.Kind)
		})
	}
}

func TestEnvCredentials(t *testing.T) {
	t.Setenv("CUSTOM_KEY", "k1")
	t.Setenv("ANTHROPIC_API_KEY", "k2")

	key, err := llm.EnvCredentials{}.APIKey(context.Background(), llm.Backend{Name: "a", KeyEnv: "CUSTOM_KEY"})
	require.NoError(t, err)
	assert.Equal(t, "k1", key)

	key, err = llm.EnvCredentials{}.APIKey(context.Background(), llm.Backend{Name: "b", Dialect: llm.DialectAnthropic})
	require.NoError(t, err)
	assert.Equal(t, "k2", key)
}

func TestStream_DefaultBackend(t *testing.T) {
	srv, req := streamServer(t, `data: {"choices":[{"delta":{"content":"ok"}}]}`, `data: [DONE]`)
	c := llm.NewClient(
		[]llm.Backend{{Name: "local", Dialect: llm.DialectOpenAI, Endpoint: srv.URL, Model: "m2"}},
		llm.WithCredentials(llm.StaticCredentials{"local": "k"}),
		llm.WithDefaultBackend("local"),
	)

	text, err := collect(t, c, "")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "m2", req.field("model"))
}
