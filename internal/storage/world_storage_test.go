package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/annel0/blockverse/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) *WorldStorage {
	t.Helper()
	storage, err := NewWorldStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Не удалось создать хранилище: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestSaveAndLoadWorld(t *testing.T) {
	storage := setupTestStorage(t)

	w := world.Flat("lobby", 16, 8, 16)
	_, err := w.Set(3, 5, 7, world.BlockGlass)
	require.NoError(t, err)
	w.SetSpawn(world.Spawn{X: 8, Y: 6, Z: 8, Heading: 64})
	w.UpdateStatus(func(s *world.Status) {
		s.Private = true
		s.Owner = "alice"
	})
	w.AddOp("bob")
	w.AddUserZone(world.NewUserZone("house", world.NormalizedBox(0, 0, 0, 4, 4, 4), "Alice"))

	require.NoError(t, storage.SaveWorld(w))

	loaded, err := storage.LoadWorld("lobby")
	require.NoError(t, err)

	x, y, z := loaded.Dims()
	assert.Equal(t, []int{16, 8, 16}, []int{x, y, z})
	blk, err := loaded.Get(3, 5, 7)
	require.NoError(t, err)
	assert.Equal(t, world.BlockGlass, blk, "блок должен пережить сохранение")
	assert.Equal(t, w.Spawn(), loaded.Spawn())
	assert.True(t, loaded.Status().Private)
	assert.True(t, loaded.IsOwner("alice"))
	assert.True(t, loaded.IsOp("bob"))
	require.Len(t, loaded.UserZones(), 1)
	assert.Equal(t, "house", loaded.UserZones()[0].ID)
	assert.Equal(t, w.Blocks().Raw(), loaded.Blocks().Raw())
}

func TestLoadMissingWorld(t *testing.T) {
	storage := setupTestStorage(t)

	_, err := storage.LoadWorld("nowhere")
	if err == nil {
		t.Fatal("Ожидалась ошибка для несуществующего мира")
	}
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, world.ErrWorldNotFound))
}

func TestListAndDeleteWorlds(t *testing.T) {
	storage := setupTestStorage(t)

	for _, id := range []string{"zeta", "alpha"} {
		require.NoError(t, storage.SaveWorld(world.Flat(id, 4, 4, 4)))
	}

	ids, err := storage.ListWorlds()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, ids)

	require.NoError(t, storage.DeleteWorld("alpha"))
	ids, err = storage.ListWorlds()
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta"}, ids)
}

func TestManagerUsesStorage(t *testing.T) {
	storage := setupTestStorage(t)
	m := world.NewManager("default", storage, nil)
	m.SetDimensions(8, 8, 8)

	w, err := m.Open("default")
	require.NoError(t, err)
	_, err = w.Set(1, 1, 1, world.BlockGravel)
	require.NoError(t, err)

	saved, err := m.SaveDirty()
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	// Новый менеджер поверх того же хранилища видит изменение
	m2 := world.NewManager("default", storage, nil)
	w2, err := m2.Open("default")
	require.NoError(t, err)
	blk, err := w2.Get(1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, world.BlockGravel, blk)
}

func TestClosedStorage(t *testing.T) {
	storage, err := NewWorldStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, storage.Close())
	require.NoError(t, storage.Close(), "повторное закрытие безопасно")

	assert.Error(t, storage.SaveWorld(world.Flat("x", 4, 4, 4)))
	_, err = storage.LoadWorld("x")
	assert.Error(t, err)
}

func TestMemoryPresenceRepo(t *testing.T) {
	repo := NewMemoryPresenceRepo()
	ctx := context.Background()

	_, err := repo.LastSeen(ctx, "alice")
	assert.True(t, errors.Is(err, ErrNotFound))

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordPresence(ctx, "alice", at))
	got, err := repo.LastSeen(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, at.Equal(got))
	assert.Equal(t, 1, repo.Count())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, repo.RecordPresence(cancelled, "bob", at))
}
