package hotswap

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePoint(moduleID, version string) RollbackPoint {
	return RollbackPoint{
		ID:             newRollbackPointID(),
		ModuleID:       moduleID,
		PreSwapVersion: ModuleVersion{Identifier: moduleID, Version: version},
		Snapshot:       []byte(version),
		CreatedAt:      time.Now(),
	}
}

func TestRollbackStore(t *testing.T) {
	t.Run("should_retain_points_oldest_first", func(t *testing.T) {
		store := NewRollbackStore(0)
		first := makePoint("cache", "1.0.0")
		second := makePoint("cache", "2.0.0")
		store.Add(first)
		store.Add(second)

		assert.Equal(t, []string{first.ID, second.ID}, store.IDs("cache"))

		got, found := store.Get("cache", first.ID)
		require.True(t, found)
		assert.Equal(t, "1.0.0", got.PreSwapVersion.Version)
	})

	t.Run("should_miss_unknown_points", func(t *testing.T) {
		store := NewRollbackStore(0)
		store.Add(makePoint("cache", "1.0.0"))

		_, found := store.Get("cache", "nope")
		assert.False(t, found)
		_, found = store.Get("other", "nope")
		assert.False(t, found)
	})

	t.Run("should_isolate_modules", func(t *testing.T) {
		store := NewRollbackStore(0)
		cachePoint := makePoint("cache", "1.0.0")
		authPoint := makePoint("auth", "3.0.0")
		store.Add(cachePoint)
		store.Add(authPoint)

		assert.Equal(t, []string{cachePoint.ID}, store.IDs("cache"))
		assert.Equal(t, []string{authPoint.ID}, store.IDs("auth"))
		assert.Equal(t, []string{"auth", "cache"}, store.ModuleIDs())
	})

	t.Run("should_enforce_per_module_bound_on_insert", func(t *testing.T) {
		store := NewRollbackStore(2)
		first := makePoint("cache", "1.0.0")
		second := makePoint("cache", "2.0.0")
		third := makePoint("cache", "3.0.0")
		store.Add(first)
		store.Add(second)
		store.Add(third)

		// The oldest point was dropped.
		assert.Equal(t, []string{second.ID, third.ID}, store.IDs("cache"))
		_, found := store.Get("cache", first.ID)
		assert.False(t, found)
	})

	t.Run("should_return_copies_from_points", func(t *testing.T) {
		store := NewRollbackStore(0)
		store.Add(makePoint("cache", "1.0.0"))

		points := store.Points("cache")
		require.Len(t, points, 1)
		points[0].ModuleID = "mutated"

		assert.Equal(t, "cache", store.Points("cache")[0].ModuleID)
	})
}

func TestRollbackStorePruning(t *testing.T) {
	t.Run("should_prune_to_keep_newest", func(t *testing.T) {
		store := NewRollbackStore(0)
		var ids []string
		for i := 0; i < 5; i++ {
			point := makePoint("cache", fmt.Sprintf("%d.0.0", i+1))
			ids = append(ids, point.ID)
			store.Add(point)
		}

		removed := store.Prune("cache", 2)
		assert.Equal(t, 3, removed)
		assert.Equal(t, ids[3:], store.IDs("cache"))
	})

	t.Run("should_noop_when_under_keep", func(t *testing.T) {
		store := NewRollbackStore(0)
		store.Add(makePoint("cache", "1.0.0"))

		assert.Zero(t, store.Prune("cache", 5))
		assert.Len(t, store.IDs("cache"), 1)
	})

	t.Run("should_drop_everything_with_keep_zero", func(t *testing.T) {
		store := NewRollbackStore(0)
		store.Add(makePoint("cache", "1.0.0"))
		store.Add(makePoint("cache", "2.0.0"))

		assert.Equal(t, 2, store.Prune("cache", 0))
		assert.Empty(t, store.IDs("cache"))
		assert.Empty(t, store.ModuleIDs())
	})

	t.Run("should_prune_all_modules", func(t *testing.T) {
		store := NewRollbackStore(0)
		for i := 0; i < 3; i++ {
			store.Add(makePoint("cache", fmt.Sprintf("%d.0.0", i)))
			store.Add(makePoint("auth", fmt.Sprintf("%d.0.0", i)))
		}

		removed := store.PruneAll(1)
		assert.Equal(t, 4, removed)
		assert.Len(t, store.IDs("cache"), 1)
		assert.Len(t, store.IDs("auth"), 1)
	})
}

func TestRollbackPointIDs(t *testing.T) {
	t.Run("should_generate_unique_ids", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			id := newRollbackPointID()
			require.NotEmpty(t, id)
			assert.False(t, seen[id], "duplicate rollback point id %q", id)
			seen[id] = true
		}
	})
}
