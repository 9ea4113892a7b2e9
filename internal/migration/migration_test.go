package migration

import (
	"context"
	"errors"
	"testing"

	"logbook/internal/cache"
	"logbook/internal/domain"
	"logbook/internal/store"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore rejects writes to one collection.
type failingStore struct {
	store.PersistentStore
	fail store.Collection
}

func (s *failingStore) PutAll(ctx context.Context, coll store.Collection, docs []store.Document) (int, error) {
	if coll == s.fail {
		return 0, domain.BatchError{Collection: string(coll), Total: len(docs), Err: domain.StorageFullError{Collection: string(coll)}}
	}
	return s.PersistentStore.PutAll(ctx, coll, docs)
}

func legacyArea(t *testing.T) cache.Area {
	t.Helper()
	area := cache.NewMemoryArea(0)
	require.NoError(t, area.Set(cache.CollectionKey(store.Passengers),
		[]byte(`[{"id":"p1","name":"Ana","cedula":"1"},{"id":"p2","name":"Beto","cedula":"2"},{"name":"no id"}]`)))
	require.NoError(t, area.Set(cache.CollectionKey(store.Trips),
		[]byte(`[{"id":"t1","passengerId":"p1","groupId":"g","status":"finalized","startTime":"2025-03-01T08:00:00Z"}]`)))
	require.NoError(t, area.Set(cache.CollectionKey(store.Conductors), []byte(`[]`)))
	return area
}

func ids(t *testing.T, st store.PersistentStore, coll store.Collection) []string {
	t.Helper()
	docs, err := st.GetAll(context.Background(), coll)
	require.NoError(t, err)
	store.SortByID(docs)
	out := []string{}
	for _, d := range docs {
		out = append(out, d.ID())
	}
	return out
}

func TestMigrateCopiesLegacyOnce(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	st := store.OpenTestStore(t, store.Options{Logger: logger})
	m := NewManager(st, legacyArea(t), logger)

	out := m.Migrate(ctx)
	require.NoError(t, out.Err)
	assert.False(t, out.Skipped)
	assert.Equal(t, 2, out.Migrated[store.Passengers])
	assert.Equal(t, 1, out.Migrated[store.Trips])
	assert.Equal(t, 1, out.Dropped[store.Passengers])

	_, ok, err := st.Meta(ctx, CompletedKey)
	require.NoError(t, err)
	assert.True(t, ok)

	again := m.Migrate(ctx)
	assert.True(t, again.Skipped)
	assert.Empty(t, again.Migrated)

	assert.Equal(t, []string{"p1", "p2"}, ids(t, st, store.Passengers))
	assert.Equal(t, []string{"t1"}, ids(t, st, store.Trips))
}

func TestFailedMigrationRetriesIdempotently(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	st := store.OpenTestStore(t, store.Options{Logger: logger})
	area := legacyArea(t)

	out := NewManager(&failingStore{PersistentStore: st, fail: store.Trips}, area, logger).Migrate(ctx)
	require.Error(t, out.Err)
	var merr domain.MigrationError
	require.True(t, errors.As(out.Err, &merr))
	assert.Equal(t, "trips", merr.Collection)
	assert.True(t, domain.IsStorageFull(out.Err))

	_, ok, err := st.Meta(ctx, CompletedKey)
	require.NoError(t, err)
	assert.False(t, ok, "marker must stay unset after a failure")
	assert.Equal(t, []string{"p1", "p2"}, ids(t, st, store.Passengers))

	// retry rewrites passengers without duplicating them
	retry := NewManager(st, area, logger).Migrate(ctx)
	require.NoError(t, retry.Err)
	assert.Equal(t, []string{"p1", "p2"}, ids(t, st, store.Passengers))
	assert.Equal(t, []string{"t1"}, ids(t, st, store.Trips))
}

func TestMigrateWithoutLegacyDataStillSetsMarker(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	st := store.OpenTestStore(t, store.Options{Logger: logger})

	out := NewManager(st, cache.NewMemoryArea(0), logger).Migrate(ctx)
	require.NoError(t, out.Err)
	_, ok, err := st.Meta(ctx, CompletedKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCorruptLegacyKeyFailsWithoutMarker(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	st := store.OpenTestStore(t, store.Options{Logger: logger})
	area := cache.NewMemoryArea(0)
	require.NoError(t, area.Set(cache.CollectionKey(store.Users), []byte(`{broken`)))

	out := NewManager(st, area, logger).Migrate(ctx)
	require.Error(t, out.Err)
	_, ok, _ := st.Meta(ctx, CompletedKey)
	assert.False(t, ok)
}
