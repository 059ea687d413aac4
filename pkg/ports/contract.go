package ports

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractCheckpoint(id string) *domain.Checkpoint {
	return &domain.Checkpoint{
		ID:     id,
		Graph:  json.RawMessage(`{"name":"root","type":"container"}`),
		Cursor: []int{0, 1},
		Variables: []domain.Binding{
			{Name: "greeting", Value: "hello", Owner: []int{0}},
			{Name: "count", Value: 42, Owner: []int{0, 1}},
		},
		Transcripts: map[string][]domain.Record{
			"0.1": {{ID: "r1", Sender: "assistant", Content: "hi", Kind: domain.RecordConversational, Sealed: true}},
		},
		UpdatedAt: time.Now().UTC(),
	}
}

// RunCheckpointStoreContract runs a suite of tests to verify that a CheckpointStore
// implementation adheres to the defined interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	id := "contract-test-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		cp := contractCheckpoint(id)

		err := store.Save(ctx, cp)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, cp.ID, loaded.ID)
		assert.Equal(t, cp.Cursor, loaded.Cursor)
		assert.JSONEq(t, string(cp.Graph), string(loaded.Graph))
		require.Len(t, loaded.Variables, 2)
		assert.Equal(t, "hello", loaded.Variables[0].Value)
		// JSON persistence may turn integers into float64; only existence is part of the contract.
		assert.NotNil(t, loaded.Variables[1].Value)
		assert.Equal(t, []int{0, 1}, loaded.Variables[1].Owner)
		require.Len(t, loaded.Transcripts["0.1"], 1)
		assert.Equal(t, "hi", loaded.Transcripts["0.1"][0].Content)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+id)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("Isolation", func(t *testing.T) {
		cp := contractCheckpoint(id)
		require.NoError(t, store.Save(ctx, cp))

		cp.Cursor[0] = 9
		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, loaded.Cursor[0], "stored checkpoint must not alias the caller's value")
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, contractCheckpoint(id)))

		err := store.Delete(ctx, id)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "Load after Delete should return ErrCheckpointNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := id + "-1"
		id2 := id + "-2"
		_ = store.Save(ctx, contractCheckpoint(id1))
		_ = store.Save(ctx, contractCheckpoint(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
