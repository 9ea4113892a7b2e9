package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"logbook/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passengerDoc(id, cedula string) Document {
	return Document(`{"id":"` + id + `","name":"P ` + id + `","cedula":"` + cedula + `","department":"Ventas"}`)
}

func tripDoc(id, group, start string) Document {
	return Document(`{"id":"` + id + `","groupId":"` + group + `","passengerId":"p-` + id + `","conductorId":"c1","route":"R","status":"active","startTime":"` + start + `"}`)
}

func TestPutThenGetByIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := OpenTestStore(t, Options{})

	doc := passengerDoc("p1", "12345678")
	require.NoError(t, s.Put(ctx, Passengers, doc))

	got, err := s.GetByID(ctx, Passengers, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, string(doc), string(got))
}

func TestGetAllOnEmptyCollection(t *testing.T) {
	s := OpenTestStore(t, Options{})

	docs, err := s.GetAll(context.Background(), Signatures)
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestGetByIDMissingIsNotFound(t *testing.T) {
	s := OpenTestStore(t, Options{})

	_, err := s.GetByID(context.Background(), Conductors, "nope")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestPutRejectsDuplicateCedula(t *testing.T) {
	ctx := context.Background()
	s := OpenTestStore(t, Options{})

	require.NoError(t, s.Put(ctx, Passengers, passengerDoc("a", "12345678")))
	err := s.Put(ctx, Passengers, passengerDoc("b", "12345678"))
	require.Error(t, err)

	var dup domain.DuplicateKeyError
	require.True(t, errors.As(err, &dup), "want DuplicateKeyError, got %v", err)
	assert.Equal(t, "cedula", dup.Field)
	assert.Equal(t, "12345678", dup.Value)
	assert.Equal(t, "a", dup.OwnerID)

	_, err = s.GetByID(ctx, Passengers, "b")
	assert.True(t, domain.IsNotFound(err))
}

func TestPutReplacesByID(t *testing.T) {
	ctx := context.Background()
	s := OpenTestStore(t, Options{})

	require.NoError(t, s.Put(ctx, Passengers, passengerDoc("a", "111")))
	require.NoError(t, s.Put(ctx, Passengers, Document(`{"id":"a","name":"Renamed","cedula":"111"}`)))

	docs, err := s.GetAll(ctx, Passengers)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, string(docs[0]), "Renamed")
}

func TestEmptyCedulaIsNotUnique(t *testing.T) {
	ctx := context.Background()
	s := OpenTestStore(t, Options{})

	require.NoError(t, s.Put(ctx, Users, Document(`{"id":"u1","cedula":""}`)))
	require.NoError(t, s.Put(ctx, Users, Document(`{"id":"u2"}`)))
}

func TestUniquenessIsPerCollection(t *testing.T) {
	ctx := context.Background()
	s := OpenTestStore(t, Options{})

	require.NoError(t, s.Put(ctx, Passengers, passengerDoc("x", "999")))
	require.NoError(t, s.Put(ctx, Conductors, Document(`{"id":"x","cedula":"999"}`)))
}

func TestPutRejectsDocumentWithoutID(t *testing.T) {
	s := OpenTestStore(t, Options{})

	err := s.Put(context.Background(), Passengers, Document(`{"name":"anon"}`))
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestPutAllReportsPartialProgress(t *testing.T) {
	ctx := context.Background()
	s := OpenTestStore(t, Options{})

	docs := []Document{passengerDoc("a", "1"), passengerDoc("b", "1"), passengerDoc("c", "3")}
	n, err := s.PutAll(ctx, Passengers, docs)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	var batch domain.BatchError
	require.True(t, errors.As(err, &batch))
	assert.Equal(t, 1, batch.Written)
	assert.Equal(t, 3, batch.Total)
	assert.True(t, domain.IsDuplicateKey(err))

	stored, err := s.GetAll(ctx, Passengers)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "a", stored[0].ID())
}

func TestPutAllWritesEverything(t *testing.T) {
	ctx := context.Background()
	s := OpenTestStore(t, Options{})

	n, err := s.PutAll(ctx, Passengers, []Document{passengerDoc("a", "1"), passengerDoc("b", "2")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestQuotaSurfacesStorageFull(t *testing.T) {
	ctx := context.Background()
	first := passengerDoc("a", "1")
	s := OpenTestStore(t, Options{QuotaBytes: int64(len(first)) + 10})

	require.NoError(t, s.Put(ctx, Passengers, first))

	n, err := s.PutAll(ctx, Passengers, []Document{passengerDoc("b", "2"), passengerDoc("c", "3")})
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, domain.IsStorageFull(err))
	assert.Contains(t, err.Error(), "durable storage is full")

	// replacing a record with one of the same size still fits
	require.NoError(t, s.Put(ctx, Passengers, passengerDoc("a", "9")))
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := OpenTestStore(t, Options{})

	_, err := s.PutAll(ctx, Passengers, []Document{passengerDoc("a", "1"), passengerDoc("b", "2"), passengerDoc("c", "3")})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, Passengers, "b"))
	docs, err := s.GetAll(ctx, Passengers)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	// the freed cedula is reusable
	require.NoError(t, s.Put(ctx, Passengers, passengerDoc("d", "2")))

	require.NoError(t, s.Clear(ctx, Passengers))
	docs, err = s.GetAll(ctx, Passengers)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestFindAndRangeOnTrips(t *testing.T) {
	ctx := context.Background()
	s := OpenTestStore(t, Options{})

	_, err := s.PutAll(ctx, Trips, []Document{
		tripDoc("t1", "g1", "2026-10-19T08:00:00-04:00"),
		tripDoc("t2", "g1", "2026-10-19T09:30:00.5-04:00"),
		tripDoc("t3", "g2", "2026-10-20T08:00:00-04:00"),
	})
	require.NoError(t, err)

	g1, err := s.Find(ctx, Trips, "groupId", "g1")
	require.NoError(t, err)
	assert.Len(t, g1, 2)

	loc := time.FixedZone("VET", -4*3600)
	from := time.Date(2026, 10, 19, 0, 0, 0, 0, loc)
	day, err := s.Range(ctx, Trips, "startTime", from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "t1", day[0].ID())
	assert.Equal(t, "t2", day[1].ID())

	open, err := s.Range(ctx, Trips, "startTime", from.AddDate(0, 0, 1), time.Time{})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "t3", open[0].ID())

	_, err = s.Find(ctx, Trips, "route", "R")
	assert.Error(t, err, "route is not indexed")
}

func TestMetaRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := OpenTestStore(t, Options{})

	_, ok, err := s.Meta(ctx, "marker")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMeta(ctx, "marker", "one"))
	require.NoError(t, s.SetMeta(ctx, "marker", "two"))
	v, ok, err := s.Meta(ctx, "marker")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", v)
}

func TestReopenKeepsDataAndVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.sqlite")

	s1 := OpenTestStoreAt(t, path, Options{})
	require.NoError(t, s1.Put(ctx, Passengers, passengerDoc("a", "1")))

	s2 := OpenTestStoreAt(t, path, Options{})
	v, err := s2.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion(), v)

	got, err := s2.GetByID(ctx, Passengers, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID())

	// unique index survived the second upgrade pass
	assert.True(t, domain.IsDuplicateKey(s2.Put(ctx, Passengers, passengerDoc("b", "1"))))
}

func TestUpgradeFromV1BackfillsStartTime(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.sqlite")

	// lay down a version 1 database by hand
	raw := OpenTestStoreAt(t, path, Options{})
	db := raw.db
	for _, coll := range All {
		_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+raw.schemas[coll].Table)
		require.NoError(t, err)
	}
	v1 := schemaSteps[0]
	for coll, table := range v1.tables {
		_, err := db.ExecContext(ctx, SQLite{}.CreateTable(table))
		require.NoError(t, err)
		for _, ix := range v1.indexes[coll] {
			_, err := SQLite{}.EnsureColumn(ctx, db, table, ix.Column)
			require.NoError(t, err)
		}
	}
	_, err := db.ExecContext(ctx, `INSERT INTO trips (id, data, size, created_at, updated_at, group_id) VALUES (?, ?, 0, '', '', 'g1')`,
		"old", string(tripDoc("old", "g1", "2026-01-05T10:00:00Z")))
	require.NoError(t, err)
	require.NoError(t, raw.SetMeta(ctx, metaSchemaVersion, "1"))

	s := OpenTestStoreAt(t, path, Options{})
	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	found, err := s.Range(ctx, Trips, "startTime", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), time.Time{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "old", found[0].ID())
}

func TestUnknownCollection(t *testing.T) {
	s := OpenTestStore(t, Options{})

	_, err := s.GetAll(context.Background(), Collection("routes"))
	assert.Error(t, err)
}
