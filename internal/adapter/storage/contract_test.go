package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/dapr-shop/internal/port"
)

// runStateStoreContract exercises the behavior every StateStore must share.
func runStateStoreContract(t *testing.T, store port.StateStore) {
	ctx := context.Background()
	prefix := "contract-" + uuid.NewString() + "-"

	t.Run("MissingKey", func(t *testing.T) {
		item, err := store.Get(ctx, prefix+"missing")
		require.NoError(t, err)
		assert.Nil(t, item)
	})

	t.Run("SaveThenGet", func(t *testing.T) {
		key := prefix + "save"
		require.NoError(t, store.Save(ctx, key, []byte(`{"a":1}`)))

		item, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.JSONEq(t, `{"a":1}`, string(item.Value))
		assert.NotEmpty(t, item.Version)

		require.NoError(t, store.Save(ctx, key, []byte(`{"a":2}`)))
		next, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":2}`, string(next.Value))
		assert.NotEqual(t, item.Version, next.Version)
	})

	t.Run("SaveIfVersion", func(t *testing.T) {
		key := prefix + "cas"
		require.NoError(t, store.SaveIfVersion(ctx, key, []byte(`1`), ""))
		assert.ErrorIs(t, store.SaveIfVersion(ctx, key, []byte(`2`), ""), port.ErrVersionConflict)

		item, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.NoError(t, store.SaveIfVersion(ctx, key, []byte(`3`), item.Version))

		// stale version
		assert.ErrorIs(t, store.SaveIfVersion(ctx, key, []byte(`4`), item.Version), port.ErrVersionConflict)

		latest, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "3", string(latest.Value))
	})

	t.Run("SaveIfVersionMissingKey", func(t *testing.T) {
		err := store.SaveIfVersion(ctx, prefix+"absent", []byte(`1`), "7")
		assert.ErrorIs(t, err, port.ErrVersionConflict)
	})

	t.Run("Delete", func(t *testing.T) {
		key := prefix + "delete"
		require.NoError(t, store.Save(ctx, key, []byte(`x`)))
		require.NoError(t, store.Delete(ctx, key))
		require.NoError(t, store.Delete(ctx, key))

		item, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, item)
	})

	t.Run("ConcurrentCreate", func(t *testing.T) {
		key := prefix + "race"
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := store.SaveIfVersion(ctx, key, []byte(`1`), ""); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}
