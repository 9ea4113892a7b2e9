package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	intdb "logbook/internal/db"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

type errKind int

const (
	errOther errKind = iota
	errDuplicate
	errFull
)

// execQuerier is satisfied by *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect isolates the SQL differences between the supported engines.
// Queries are written with ? placeholders and passed through Rebind.
type Dialect interface {
	Name() string
	Rebind(query string) string
	CreateMetaTable() string
	UpsertMeta() string
	CreateTable(table string) string
	// EnsureColumn adds a nullable key column and reports whether it was missing.
	EnsureColumn(ctx context.Context, q execQuerier, table, column string) (bool, error)
	EnsureIndex(ctx context.Context, q execQuerier, table, name, column string, unique bool) error
	classify(err error) errKind
}

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql":
		return MySQL{}, nil
	case "postgres", "postgresql":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", driver)
}

// MySQL is the default production dialect.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Rebind(q string) string { return q }

func (MySQL) CreateMetaTable() string {
	return `CREATE TABLE IF NOT EXISTS ` + metaTable + ` (
		k VARCHAR(64) NOT NULL PRIMARY KEY,
		v TEXT NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
}

func (MySQL) UpsertMeta() string {
	return `INSERT INTO ` + metaTable + ` (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)`
}

func (MySQL) CreateTable(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		data LONGTEXT NOT NULL,
		size INT NOT NULL DEFAULT 0,
		created_at VARCHAR(32) NOT NULL DEFAULT '',
		updated_at VARCHAR(32) NOT NULL DEFAULT ''
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
}

func (MySQL) EnsureColumn(ctx context.Context, q execQuerier, table, column string) (bool, error) {
	ok, err := intdb.HasColumn(ctx, q, table, column)
	if err != nil || ok {
		return false, err
	}
	if _, err := q.ExecContext(ctx, `ALTER TABLE `+table+` ADD COLUMN `+column+` VARCHAR(64) NULL`); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureIndex probes information_schema first; MySQL has no CREATE INDEX IF NOT EXISTS.
func (MySQL) EnsureIndex(ctx context.Context, q execQuerier, table, name, column string, unique bool) error {
	ok, err := intdb.HasIndex(ctx, q, table, name)
	if err != nil || ok {
		return err
	}
	_, err = q.ExecContext(ctx, createIndex(false, table, name, column, unique))
	return err
}

func (MySQL) classify(err error) errKind {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return errOther
	}
	switch me.Number {
	case 1062: // ER_DUP_ENTRY
		return errDuplicate
	case 1114, 1021: // ER_RECORD_FILE_FULL, ER_DISK_FULL
		return errFull
	}
	return errOther
}

// Postgres dialect, backed by lib/pq.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

// Rebind rewrites ? placeholders to $n. Queries here never contain literal '?'.
func (Postgres) Rebind(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (Postgres) CreateMetaTable() string {
	return `CREATE TABLE IF NOT EXISTS ` + metaTable + ` (k TEXT PRIMARY KEY, v TEXT NOT NULL)`
}

func (p Postgres) UpsertMeta() string {
	return p.Rebind(`INSERT INTO ` + metaTable + ` (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = excluded.v`)
}

func (Postgres) CreateTable(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT ''
	)`
}

func (Postgres) EnsureColumn(ctx context.Context, q execQuerier, table, column string) (bool, error) {
	var name string
	err := q.QueryRowContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`, table, column).Scan(&name)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, err
	}
	if _, err := q.ExecContext(ctx, `ALTER TABLE `+table+` ADD COLUMN IF NOT EXISTS `+column+` TEXT NULL`); err != nil {
		return false, err
	}
	return true, nil
}

func (Postgres) EnsureIndex(ctx context.Context, q execQuerier, table, name, column string, unique bool) error {
	_, err := q.ExecContext(ctx, createIndex(true, table, name, column, unique))
	return err
}

func (Postgres) classify(err error) errKind {
	var pe *pq.Error
	if !errors.As(err, &pe) {
		return errOther
	}
	switch pe.Code {
	case "23505": // unique_violation
		return errDuplicate
	case "53100": // disk_full
		return errFull
	}
	return errOther
}

// SQLite dialect, backed by the pure-Go modernc driver.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Rebind(q string) string { return q }

func (SQLite) CreateMetaTable() string {
	return `CREATE TABLE IF NOT EXISTS ` + metaTable + ` (k TEXT PRIMARY KEY, v TEXT NOT NULL)`
}

func (SQLite) UpsertMeta() string {
	return `INSERT INTO ` + metaTable + ` (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = excluded.v`
}

func (SQLite) CreateTable(table string) string {
	return Postgres{}.CreateTable(table)
}

func (SQLite) EnsureColumn(ctx context.Context, q execQuerier, table, column string) (bool, error) {
	var name string
	err := q.QueryRowContext(ctx, `SELECT name FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&name)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, err
	}
	if _, err := q.ExecContext(ctx, `ALTER TABLE `+table+` ADD COLUMN `+column+` TEXT NULL`); err != nil {
		return false, err
	}
	return true, nil
}

func (SQLite) EnsureIndex(ctx context.Context, q execQuerier, table, name, column string, unique bool) error {
	_, err := q.ExecContext(ctx, createIndex(true, table, name, column, unique))
	return err
}

func (SQLite) classify(err error) errKind {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return errOther
	}
	code := se.Code()
	switch {
	case code == sqlite3lib.SQLITE_CONSTRAINT || code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return errDuplicate
	case code&0xff == sqlite3lib.SQLITE_FULL:
		return errFull
	}
	return errOther
}

func createIndex(ifNotExists bool, table, name, column string, unique bool) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(name + " ON " + table + " (" + column + ")")
	return b.String()
}
