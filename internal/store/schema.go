package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

const (
	metaTable         = "store_meta"
	metaSchemaVersion = "schema_version"

	keyTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// step is one additive schema version. Re-applying a step is a no-op.
type step struct {
	version int
	tables  map[Collection]string
	indexes map[Collection][]Index
}

var schemaSteps = []step{
	{
		version: 1,
		tables: map[Collection]string{
			Users:                "users",
			Passengers:           "passengers",
			Conductors:           "conductors",
			Trips:                "trips",
			Signatures:           "signatures",
			ConductorCredentials: "conductor_credentials",
		},
		indexes: map[Collection][]Index{
			Users:      {{Field: "cedula", Column: "cedula", Unique: true}},
			Passengers: {{Field: "cedula", Column: "cedula", Unique: true}},
			Conductors: {{Field: "cedula", Column: "cedula", Unique: true}},
			Trips: {
				{Field: "conductorId", Column: "conductor_id"},
				{Field: "passengerId", Column: "passenger_id"},
				{Field: "groupId", Column: "group_id"},
			},
		},
	},
	{
		version: 2,
		indexes: map[Collection][]Index{
			Trips:                {{Field: "startTime", Column: "start_time", Time: true}},
			ConductorCredentials: {{Field: "username", Column: "username"}},
		},
	},
}

// LatestVersion is the schema version a freshly opened store ends at.
func LatestVersion() int {
	return schemaSteps[len(schemaSteps)-1].version
}

func resolveSchemas() map[Collection]Schema {
	out := map[Collection]Schema{}
	for _, st := range schemaSteps {
		for coll, table := range st.tables {
			out[coll] = Schema{Collection: coll, Table: table}
		}
		for coll, ixs := range st.indexes {
			sc := out[coll]
			sc.Indexes = append(sc.Indexes, ixs...)
			out[coll] = sc
		}
	}
	return out
}

// upgrade brings the database to LatestVersion. Steps at or below the stored
// version are skipped; the current step is idempotent so a crash mid-step is
// repaired on the next open.
func (s *SQLStore) upgrade(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.CreateMetaTable()); err != nil {
		return fmt.Errorf("create %s: %w", metaTable, err)
	}
	current, err := s.Version(ctx)
	if err != nil {
		return err
	}

	tables := map[Collection]string{}
	for _, st := range schemaSteps {
		for coll, table := range st.tables {
			tables[coll] = table
		}
		if st.version <= current {
			continue
		}
		for _, coll := range All {
			table, ok := st.tables[coll]
			if !ok {
				continue
			}
			if _, err := s.db.ExecContext(ctx, s.dialect.CreateTable(table)); err != nil {
				return fmt.Errorf("schema v%d: create %s: %w", st.version, table, err)
			}
		}
		for _, coll := range All {
			ixs, ok := st.indexes[coll]
			if !ok {
				continue
			}
			table := tables[coll]
			for _, ix := range ixs {
				added, err := s.dialect.EnsureColumn(ctx, s.db, table, ix.Column)
				if err != nil {
					return fmt.Errorf("schema v%d: column %s.%s: %w", st.version, table, ix.Column, err)
				}
				if added {
					if err := s.backfill(ctx, table, ix); err != nil {
						return fmt.Errorf("schema v%d: backfill %s.%s: %w", st.version, table, ix.Column, err)
					}
				}
				if err := s.dialect.EnsureIndex(ctx, s.db, table, ix.name(table), ix.Column, ix.Unique); err != nil {
					return fmt.Errorf("schema v%d: index %s: %w", st.version, ix.name(table), err)
				}
			}
		}
		if err := s.SetMeta(ctx, metaSchemaVersion, strconv.Itoa(st.version)); err != nil {
			return fmt.Errorf("schema v%d: record version: %w", st.version, err)
		}
		s.log.WithField("version", st.version).Info("store schema upgraded")
	}
	return nil
}

// backfill populates a newly added key column from the stored documents.
func (s *SQLStore) backfill(ctx context.Context, table string, ix Index) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, data FROM "+table)
	if err != nil {
		return err
	}
	type pair struct{ id, value string }
	var pending []pair
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			rows.Close()
			return err
		}
		if v := keyValue(ix, gjson.Get(data, ix.Field)); v != "" {
			pending = append(pending, pair{id, v})
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	q := s.dialect.Rebind("UPDATE " + table + " SET " + ix.Column + " = ? WHERE id = ?")
	for _, p := range pending {
		if _, err := s.db.ExecContext(ctx, q, p.value, p.id); err != nil {
			return err
		}
	}
	return nil
}

// Version returns the stored schema version, 0 for a fresh database.
func (s *SQLStore) Version(ctx context.Context) (int, error) {
	raw, ok, err := s.Meta(ctx, metaSchemaVersion)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("corrupt schema version %q: %w", raw, err)
	}
	return v, nil
}

// keyValue renders a JSON member as the text stored in an index column.
// Empty results are stored as NULL.
func keyValue(ix Index, r gjson.Result) string {
	if !r.Exists() || r.Type == gjson.Null {
		return ""
	}
	if ix.Time {
		t, err := time.Parse(time.RFC3339Nano, r.String())
		if err != nil || t.IsZero() {
			return ""
		}
		return FormatKeyTime(t)
	}
	return r.String()
}

// FormatKeyTime is the fixed-width form used for time index columns.
func FormatKeyTime(t time.Time) string {
	return t.UTC().Format(keyTimeLayout)
}
