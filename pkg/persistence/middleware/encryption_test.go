package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/tasktree/pkg/adapters/memory"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/persistence/middleware"
	"github.com/aretw0/tasktree/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func secret() *domain.Checkpoint {
	return &domain.Checkpoint{
		ID:        "task-1",
		Graph:     []byte(`{"name":"root","type":"container"}`),
		Cursor:    []int{0},
		Variables: []domain.Binding{{Name: "api_token", Value: "my-secret-sauce", Owner: []int{0}}},
	}
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	store := mw(underlying)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, secret()))

	raw, err := underlying.Load(ctx, "task-1")
	require.NoError(t, err)
	assert.Empty(t, raw.Graph, "graph must not be stored in the clear")
	assert.Empty(t, raw.Cursor)
	require.Len(t, raw.Variables, 1)
	assert.Equal(t, middleware.EnvelopeVariable, raw.Variables[0].Name)
	assert.NotContains(t, raw.Variables[0].Value, "my-secret-sauce")

	loaded, err := store.Load(ctx, "task-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"root","type":"container"}`, string(loaded.Graph))
	assert.Equal(t, "my-secret-sauce", loaded.Variables[0].Value)
	assert.Equal(t, []int{0}, loaded.Cursor)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	ports.RunCheckpointStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldMW, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, err)
	require.NoError(t, oldMW(underlying).Save(ctx, secret()))

	rotated, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	require.NoError(t, err)
	loaded, err := rotated(underlying).Load(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.Variables[0].Value)

	strict, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey})
	require.NoError(t, err)
	_, err = strict(underlying).Load(ctx, "task-1")
	assert.ErrorContains(t, err, "decryption failed")
}

func TestEncryptionMiddleware_RejectsPlainCheckpoints(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, secret()))

	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	_, err = mw(underlying).Load(ctx, "task-1")
	assert.ErrorContains(t, err, "missing encrypted data envelope")

	_, err = mw(underlying).Load(ctx, "absent")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

func TestNewEncryptionMiddleware_KeySize(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.ErrorIs(t, err, middleware.ErrKeySize)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.ErrorIs(t, err, middleware.ErrKeySize)
}
