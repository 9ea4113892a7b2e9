// Package store is the durable system of record: named JSON collections kept
// in a SQL database, keyed by record id, with declared secondary indexes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	intdb "logbook/internal/db"
	"logbook/internal/domain"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// PersistentStore is the durable collection store. Operations on one
// collection run in call order; there is no ordering across collections.
type PersistentStore interface {
	GetAll(ctx context.Context, coll Collection) ([]Document, error)
	GetByID(ctx context.Context, coll Collection, id string) (Document, error)
	Put(ctx context.Context, coll Collection, doc Document) error
	PutAll(ctx context.Context, coll Collection, docs []Document) (int, error)
	Delete(ctx context.Context, coll Collection, id string) error
	Clear(ctx context.Context, coll Collection) error
	Find(ctx context.Context, coll Collection, field, value string) ([]Document, error)
	Range(ctx context.Context, coll Collection, field string, from, to time.Time) ([]Document, error)
	Meta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

var _ PersistentStore = (*SQLStore)(nil)

// Options tunes an SQLStore.
type Options struct {
	// QuotaBytes caps the total stored document bytes; 0 disables the check.
	QuotaBytes int64
	Now        func() time.Time
	Logger     logrus.FieldLogger
}

// SQLStore implements PersistentStore over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	schemas map[Collection]Schema
	quota   int64
	now     func() time.Time
	log     logrus.FieldLogger

	locks  map[Collection]*sync.Mutex
	metaMu sync.Mutex
}

// Open wraps db and runs the schema upgrade. The caller owns db.
func Open(ctx context.Context, db *sql.DB, dialect Dialect, opts Options) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	if dialect == nil {
		return nil, fmt.Errorf("store: dialect is required")
	}
	s := newSQLStore(db, dialect, opts)
	if err := s.upgrade(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newSQLStore(db *sql.DB, dialect Dialect, opts Options) *SQLStore {
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		schemas: resolveSchemas(),
		quota:   opts.QuotaBytes,
		now:     opts.Now,
		log:     opts.Logger,
		locks:   map[Collection]*sync.Mutex{},
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	s.log = s.log.WithField("module", "store")
	for _, c := range All {
		s.locks[c] = &sync.Mutex{}
	}
	return s
}

// Dialect reports the engine in use.
func (s *SQLStore) Dialect() Dialect { return s.dialect }

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLStore) lock(coll Collection) (Schema, func(), error) {
	sc, ok := s.schemas[coll]
	if !ok {
		return Schema{}, nil, fmt.Errorf("unknown collection %q", coll)
	}
	mu := s.locks[coll]
	mu.Lock()
	return sc, mu.Unlock, nil
}

func (s *SQLStore) GetAll(ctx context.Context, coll Collection) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sc, unlock, err := s.lock(coll)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.query(ctx, "SELECT data FROM "+sc.Table+" ORDER BY created_at, id")
}

func (s *SQLStore) GetByID(ctx context.Context, coll Collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sc, unlock, err := s.lock(coll)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var data string
	err = s.db.QueryRowContext(ctx, s.dialect.Rebind("SELECT data FROM "+sc.Table+" WHERE id = ?"), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError{Resource: string(coll), ID: id, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: get %s: %w", coll, id, err)
	}
	return Document(data), nil
}

func (s *SQLStore) Find(ctx context.Context, coll Collection, field, value string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sc, unlock, err := s.lock(coll)
	if err != nil {
		return nil, err
	}
	defer unlock()
	ix, ok := sc.index(field)
	if !ok {
		return nil, fmt.Errorf("%s: no index on %s", coll, field)
	}
	return s.query(ctx, "SELECT data FROM "+sc.Table+" WHERE "+ix.Column+" = ? ORDER BY created_at, id", value)
}

// Range returns documents whose time index falls in [from, to). A zero bound is open.
func (s *SQLStore) Range(ctx context.Context, coll Collection, field string, from, to time.Time) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sc, unlock, err := s.lock(coll)
	if err != nil {
		return nil, err
	}
	defer unlock()
	ix, ok := sc.index(field)
	if !ok || !ix.Time {
		return nil, fmt.Errorf("%s: no time index on %s", coll, field)
	}
	where := []string{ix.Column + " IS NOT NULL"}
	args := []any{}
	if !from.IsZero() {
		where = append(where, ix.Column+" >= ?")
		args = append(args, FormatKeyTime(from))
	}
	if !to.IsZero() {
		where = append(where, ix.Column+" < ?")
		args = append(args, FormatKeyTime(to))
	}
	return s.query(ctx, "SELECT data FROM "+sc.Table+" WHERE "+strings.Join(where, " AND ")+" ORDER BY "+ix.Column+", id", args...)
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return out, err
		}
		out = append(out, Document(data))
	}
	return out, rows.Err()
}

func (s *SQLStore) Put(ctx context.Context, coll Collection, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sc, unlock, err := s.lock(coll)
	if err != nil {
		return err
	}
	defer unlock()
	return s.put(ctx, sc, doc)
}

// PutAll writes docs one at a time. Each successful write is committed before
// the next starts; on failure the returned BatchError says how many landed.
func (s *SQLStore) PutAll(ctx context.Context, coll Collection, docs []Document) (int, error) {
	sc, unlock, err := s.lock(coll)
	if err != nil {
		return 0, err
	}
	defer unlock()

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return i, domain.BatchError{Collection: string(coll), Written: i, Total: len(docs), Err: err}
		}
		if err := s.put(ctx, sc, doc); err != nil {
			return i, domain.BatchError{Collection: string(coll), Written: i, Total: len(docs), Err: err}
		}
	}
	return len(docs), nil
}

func (s *SQLStore) put(ctx context.Context, sc Schema, doc Document) error {
	id, err := validate(sc.Collection, doc)
	if err != nil {
		return domain.ValidationError{Field: "document", Msg: err.Error()}
	}
	keys := make([]any, len(sc.Indexes))
	for i, ix := range sc.Indexes {
		keys[i] = intdb.NullIfEmpty(keyValue(ix, gjson.GetBytes(doc, ix.Field)))
	}
	stamp := FormatKeyTime(s.now())

	werr := s.write(ctx, sc, id, doc, keys, stamp)
	if werr == nil {
		return nil
	}
	switch s.dialect.classify(werr) {
	case errDuplicate:
		return s.duplicate(ctx, sc, id, keys, werr)
	case errFull:
		return domain.StorageFullError{Collection: string(sc.Collection), Err: werr}
	}
	if domain.IsStorageFull(werr) {
		return werr
	}
	return fmt.Errorf("%s: put %s: %w", sc.Collection, id, werr)
}

// write runs the upsert in its own transaction and returns the raw driver
// error so the caller can classify it after the transaction is gone.
func (s *SQLStore) write(ctx context.Context, sc Schema, id string, doc Document, keys []any, stamp string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var prevSize int64
	err = tx.QueryRowContext(ctx, s.dialect.Rebind("SELECT size FROM "+sc.Table+" WHERE id = ?"), id).Scan(&prevSize)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if s.quota > 0 {
		used, err := s.usedBytes(ctx, tx)
		if err != nil {
			return err
		}
		if used-prevSize+int64(len(doc)) > s.quota {
			return domain.StorageFullError{Collection: string(sc.Collection)}
		}
	}

	cols := sc.columns()
	if exists {
		set := []string{"data = ?", "size = ?", "updated_at = ?"}
		args := []any{string(doc), len(doc), stamp}
		for i, c := range cols {
			set = append(set, c+" = ?")
			args = append(args, keys[i])
		}
		args = append(args, id)
		q := "UPDATE " + sc.Table + " SET " + strings.Join(set, ", ") + " WHERE id = ?"
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(q), args...); err != nil {
			return err
		}
	} else {
		names := append([]string{"id", "data", "size", "created_at", "updated_at"}, cols...)
		args := append([]any{id, string(doc), len(doc), stamp, stamp}, keys...)
		ph := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
		q := "INSERT INTO " + sc.Table + " (" + strings.Join(names, ", ") + ") VALUES (" + ph + ")"
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(q), args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) usedBytes(ctx context.Context, q execQuerier) (int64, error) {
	var total int64
	for _, c := range All {
		var n sql.NullInt64
		if err := q.QueryRowContext(ctx, "SELECT SUM(size) FROM "+s.schemas[c].Table).Scan(&n); err != nil {
			return 0, err
		}
		total += n.Int64
	}
	return total, nil
}

// duplicate resolves which unique key collided and who owns it.
func (s *SQLStore) duplicate(ctx context.Context, sc Schema, id string, keys []any, cause error) error {
	for i, ix := range sc.Indexes {
		if !ix.Unique || keys[i] == nil {
			continue
		}
		var owner string
		q := s.dialect.Rebind("SELECT id FROM " + sc.Table + " WHERE " + ix.Column + " = ? AND id <> ?")
		if err := s.db.QueryRowContext(ctx, q, keys[i], id).Scan(&owner); err == nil {
			return domain.DuplicateKeyError{Collection: string(sc.Collection), Field: ix.Field, Value: keys[i].(string), OwnerID: owner, Err: cause}
		}
	}
	return domain.DuplicateKeyError{Collection: string(sc.Collection), Field: "id", Value: id, Err: cause}
}

func (s *SQLStore) Delete(ctx context.Context, coll Collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sc, unlock, err := s.lock(coll)
	if err != nil {
		return err
	}
	defer unlock()
	if _, err := s.db.ExecContext(ctx, s.dialect.Rebind("DELETE FROM "+sc.Table+" WHERE id = ?"), id); err != nil {
		return fmt.Errorf("%s: delete %s: %w", coll, id, err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context, coll Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sc, unlock, err := s.lock(coll)
	if err != nil {
		return err
	}
	defer unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+sc.Table); err != nil {
		return fmt.Errorf("%s: clear: %w", coll, err)
	}
	return nil
}

// Meta reads a durable marker.
func (s *SQLStore) Meta(ctx context.Context, key string) (string, bool, error) {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	var v string
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind("SELECT v FROM "+metaTable+" WHERE k = ?"), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("meta %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLStore) SetMeta(ctx context.Context, key, value string) error {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	if _, err := s.db.ExecContext(ctx, s.dialect.UpsertMeta(), key, value); err != nil {
		if s.dialect.classify(err) == errFull {
			return domain.StorageFullError{Err: err}
		}
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}
