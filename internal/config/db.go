package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"logbook/internal/cache"
	intdb "logbook/internal/db"
	"logbook/internal/repositories"
	"logbook/internal/store"

	"github.com/sirupsen/logrus"
)

// Storage is the opened persistence stack. It is built once at startup and
// passed to whoever needs it.
type Storage struct {
	DB     *sql.DB
	Store  *store.SQLStore
	Area   cache.Area // live mirror
	Legacy cache.Area // read by migration only
	Cache  *cache.SyncCache
	Facade *repositories.Facade
}

// OpenStore connects the database, upgrades the schema and wires the cache
// and facade on top.
func OpenStore(ctx context.Context, cfg Env, logger logrus.FieldLogger) (*Storage, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	dialect, err := store.DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if dialect.Name() == "sqlite" {
		if dir := filepath.Dir(cfg.DBDSN); dir != "." && !strings.Contains(cfg.DBDSN, "?") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}

	db, err := intdb.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, db, dialect, store.Options{QuotaBytes: cfg.StoreQuotaBytes, Logger: logger})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	area, err := cache.NewDirArea(cfg.MirrorDir(), cfg.CacheQuotaBytes)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	legacy, err := cache.NewDirArea(cfg.LegacyCacheDir(), 0)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	policy, err := repositories.ParsePolicy(cfg.MirroredCollections)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	c := cache.New(area, logger)
	logger.WithFields(logrus.Fields{"driver": dialect.Name(), "mirror_dir": cfg.MirrorDir(), "legacy_dir": cfg.LegacyCacheDir()}).Info("storage opened")
	return &Storage{
		DB:     db,
		Store:  st,
		Area:   area,
		Legacy: legacy,
		Cache:  c,
		Facade: repositories.NewFacade(st, c, policy, logger),
	}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
