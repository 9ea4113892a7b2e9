// Package migration imports data that only ever lived in the legacy cache
// area into the durable store, once.
package migration

import (
	"context"
	"fmt"
	"time"

	"logbook/internal/cache"
	"logbook/internal/domain"
	"logbook/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// CompletedKey is the durable marker set after a fully successful run.
const CompletedKey = "migration_completed"

// Outcome summarizes one Migrate call.
type Outcome struct {
	Skipped  bool
	Migrated map[store.Collection]int
	Dropped  map[store.Collection]int // legacy elements without a usable id
	Err      error
}

type Manager struct {
	Store  store.PersistentStore
	Legacy cache.Area
	Log    logrus.FieldLogger
	Now    func() time.Time
}

func NewManager(st store.PersistentStore, legacy cache.Area, logger logrus.FieldLogger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{Store: st, Legacy: legacy, Log: logger.WithField("module", "migration")}
}

// Migrate copies every non-empty legacy collection into the store and sets
// the completion marker. Failures are logged and reported in Outcome.Err,
// never returned to abort startup; the marker stays unset so the next run
// retries everything.
func (m *Manager) Migrate(ctx context.Context) Outcome {
	out := Outcome{Migrated: map[store.Collection]int{}, Dropped: map[store.Collection]int{}}

	done, ok, err := m.Store.Meta(ctx, CompletedKey)
	if err != nil {
		out.Err = domain.MigrationError{Err: err}
		m.Log.WithError(err).Error("migration marker unreadable")
		return out
	}
	if ok && done != "" {
		out.Skipped = true
		m.Log.WithField("completed_at", done).Debug("migration already completed")
		return out
	}

	for _, coll := range store.All {
		if err := m.migrateCollection(ctx, coll, &out); err != nil {
			out.Err = err
			m.Log.WithError(err).WithField("collection", coll).Error("migration failed; will retry on next start")
			return out
		}
	}

	if err := m.Store.SetMeta(ctx, CompletedKey, m.stamp()); err != nil {
		out.Err = domain.MigrationError{Err: err}
		m.Log.WithError(err).Error("migration marker not saved")
		return out
	}
	m.Log.WithField("migrated", out.Migrated).Info("legacy data migrated")
	return out
}

func (m *Manager) migrateCollection(ctx context.Context, coll store.Collection, out *Outcome) error {
	raw, ok, err := m.Legacy.Get(cache.CollectionKey(coll))
	if err != nil {
		return domain.MigrationError{Collection: string(coll), Err: fmt.Errorf("read legacy key: %w", err)}
	}
	if !ok {
		return nil
	}
	docs, err := store.SplitArray(raw)
	if err != nil {
		return domain.MigrationError{Collection: string(coll), Err: err}
	}

	valid := make([]store.Document, 0, len(docs))
	for _, d := range docs {
		id := gjson.GetBytes(d, "id")
		if !gjson.ValidBytes(d) || id.Type != gjson.String || id.Str == "" {
			out.Dropped[coll]++
			continue
		}
		valid = append(valid, d)
	}
	if out.Dropped[coll] > 0 {
		m.Log.WithFields(logrus.Fields{"collection": coll, "dropped": out.Dropped[coll]}).Warn("legacy elements without id skipped")
	}
	if len(valid) == 0 {
		return nil
	}

	n, err := m.Store.PutAll(ctx, coll, valid)
	out.Migrated[coll] = n
	if err != nil {
		return domain.MigrationError{Collection: string(coll), Err: err}
	}
	return nil
}

func (m *Manager) stamp() string {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return store.FormatKeyTime(now())
}
