// Package sessiontest holds the behavioural contract every session.Store must satisfy.
package sessiontest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/session"
)

// RunStoreContract exercises save, load, delete and list against store.
func RunStoreContract(t *testing.T, store session.Store) {
	t.Helper()
	ctx := context.Background()
	id := "contract-" + time.Now().Format("20060102150405.000")

	snap := session.Snapshot{
		SystemName: "tarot",
		Inputs:     fortune.ValidatedInput{"question": "前途", "spread": "single"},
		Processed:  json.RawMessage(`{"question":"前途"}`),
		UpdatedAt:  time.Date(2024, 3, 25, 10, 0, 0, 0, time.UTC),
		Chat:       []string{"用户: 你好", "霄占: 你好呀"},
	}

	t.Run("save and load", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, id, snap))
		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, snap.SystemName, loaded.SystemName)
		assert.Equal(t, snap.Inputs, loaded.Inputs)
		assert.JSONEq(t, string(snap.Processed), string(loaded.Processed))
		assert.True(t, snap.UpdatedAt.Equal(loaded.UpdatedAt))
		assert.Equal(t, snap.Chat, loaded.Chat)
	})

	t.Run("overwrite", func(t *testing.T) {
		next := snap
		next.SystemName = "zodiac"
		require.NoError(t, store.Save(ctx, id, next))
		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "zodiac", loaded.SystemName)
	})

	t.Run("load missing", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+id)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		other := id + "-2"
		require.NoError(t, store.Save(ctx, other, snap))
		defer func() { _ = store.Delete(ctx, other) }()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id)
		assert.Contains(t, ids, other)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, id))
		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, session.ErrNotFound)
		require.NoError(t, store.Delete(ctx, id), "deleting twice is not an error")
	})
}
