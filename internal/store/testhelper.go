package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	intdb "logbook/internal/db"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// OpenTestStore opens a SQLite-backed store in t.TempDir() and registers cleanup.
func OpenTestStore(t *testing.T, opts Options) *SQLStore {
	t.Helper()
	return OpenTestStoreAt(t, filepath.Join(t.TempDir(), "store.sqlite"), opts)
}

// OpenTestStoreAt is OpenTestStore for a caller-chosen file, used to reopen a database.
func OpenTestStoreAt(t *testing.T, path string, opts Options) *SQLStore {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := intdb.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if opts.Logger == nil {
		logger, _ := test.NewNullLogger()
		logger.SetLevel(logrus.DebugLevel)
		opts.Logger = logger
	}
	s, err := Open(ctx, db, SQLite{}, opts)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	return s
}
