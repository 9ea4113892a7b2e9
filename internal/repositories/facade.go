package repositories

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"logbook/internal/cache"
	"logbook/internal/domain"
	"logbook/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// Source says where reads of a collection are served from.
type Source int

const (
	SourceStore Source = iota
	SourceMirror
)

func (s Source) String() string {
	if s == SourceMirror {
		return "mirror"
	}
	return "store"
}

// Policy maps each collection to its read source. Collections not listed
// are store-only.
type Policy map[store.Collection]Source

// DefaultPolicy mirrors the collections the trip screens read constantly.
func DefaultPolicy() Policy {
	return Policy{
		store.Users:                SourceMirror,
		store.Passengers:           SourceMirror,
		store.Conductors:           SourceMirror,
		store.Trips:                SourceMirror,
		store.Signatures:           SourceStore,
		store.ConductorCredentials: SourceStore,
	}
}

// ParsePolicy builds a policy mirroring exactly the named collections.
// An empty list yields DefaultPolicy.
func ParsePolicy(names []string) (Policy, error) {
	if len(names) == 0 {
		return DefaultPolicy(), nil
	}
	p := Policy{}
	for _, c := range store.All {
		p[c] = SourceStore
	}
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		c, err := store.ParseCollection(n)
		if err != nil {
			return nil, err
		}
		p[c] = SourceMirror
	}
	return p, nil
}

func (p Policy) Mirrored(coll store.Collection) bool {
	return p[coll] == SourceMirror
}

// Facade is the single entry point to persistence. Writes go to the durable
// store first and are written through to the cache for mirrored collections.
type Facade struct {
	store  store.PersistentStore
	cache  *cache.SyncCache
	policy Policy
	log    logrus.FieldLogger

	mu       sync.Mutex
	answered map[store.Collection]bool
	writeMu  map[store.Collection]*sync.Mutex
}

var _ store.PersistentStore = (*Facade)(nil)

func NewFacade(st store.PersistentStore, c *cache.SyncCache, policy Policy, logger logrus.FieldLogger) *Facade {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	f := &Facade{
		store:    st,
		cache:    c,
		policy:   policy,
		log:      logger.WithField("module", "facade"),
		answered: map[store.Collection]bool{},
		writeMu:  map[store.Collection]*sync.Mutex{},
	}
	for _, coll := range store.All {
		f.writeMu[coll] = &sync.Mutex{}
	}
	return f
}

// Store returns the durable store behind the facade.
func (f *Facade) Store() store.PersistentStore { return f.store }

// Cache returns the mirror behind the facade.
func (f *Facade) Cache() *cache.SyncCache { return f.cache }

func (f *Facade) Policy() Policy { return f.policy }

func (f *Facade) mirrored(coll store.Collection) bool {
	return f.cache != nil && f.policy.Mirrored(coll)
}

func (f *Facade) hasAnswered(coll store.Collection) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answered[coll]
}

func (f *Facade) markAnswered(coll store.Collection) {
	f.mu.Lock()
	f.answered[coll] = true
	f.mu.Unlock()
}

func (f *Facade) lockWrites(coll store.Collection) func() {
	mu, ok := f.writeMu[coll]
	if !ok {
		return func() {}
	}
	mu.Lock()
	return mu.Unlock
}

// Refresh loads every mirrored collection from the store into the cache.
func (f *Facade) Refresh(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, coll := range store.All {
		if !f.mirrored(coll) {
			continue
		}
		g.Go(func() error {
			_, err := f.load(gctx, coll)
			return err
		})
	}
	return g.Wait()
}

func (f *Facade) load(ctx context.Context, coll store.Collection) ([]store.Document, error) {
	start := time.Now()
	// A write landing between the read and the mirror would be lost from the snapshot.
	unlock := f.lockWrites(coll)
	defer unlock()
	docs, err := f.store.GetAll(ctx, coll)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", coll, err)
	}
	f.cache.Mirror(coll, docs)
	f.markAnswered(coll)
	f.log.WithFields(logrus.Fields{"collection": coll, "count": len(docs), "elapsed": time.Since(start)}).Debug("collection mirrored")
	return docs, nil
}

// Peek serves a mirrored collection from the cache without touching the store.
func (f *Facade) Peek(coll store.Collection) ([]store.Document, bool) {
	if !f.mirrored(coll) {
		return nil, false
	}
	return f.cache.Snapshot(coll)
}

// GetAll follows the read rule: until the store has answered once for a
// mirrored collection it is asked first, with the cache as fallback; after
// that the cache is served when present.
func (f *Facade) GetAll(ctx context.Context, coll store.Collection) ([]store.Document, error) {
	if !f.mirrored(coll) {
		return f.store.GetAll(ctx, coll)
	}
	if f.hasAnswered(coll) {
		if docs, ok := f.cache.Snapshot(coll); ok {
			return docs, nil
		}
	}
	docs, err := f.load(ctx, coll)
	if err == nil {
		return docs, nil
	}
	if snap, ok := f.cache.Snapshot(coll); ok && ctx.Err() == nil {
		f.log.WithError(err).WithField("collection", coll).Warn("store unavailable; serving cached snapshot")
		return snap, nil
	}
	return nil, err
}

func (f *Facade) GetByID(ctx context.Context, coll store.Collection, id string) (store.Document, error) {
	if f.mirrored(coll) && f.hasAnswered(coll) {
		if docs, ok := f.cache.Snapshot(coll); ok {
			for _, d := range docs {
				if d.ID() == id {
					return d, nil
				}
			}
			return nil, domain.NotFoundError{Resource: string(coll), ID: id}
		}
	}
	return f.store.GetByID(ctx, coll, id)
}

// Find filters the snapshot for mirrored collections and otherwise uses the
// store's secondary index.
func (f *Facade) Find(ctx context.Context, coll store.Collection, field, value string) ([]store.Document, error) {
	if f.mirrored(coll) && f.hasAnswered(coll) {
		if docs, ok := f.cache.Snapshot(coll); ok {
			out := []store.Document{}
			for _, d := range docs {
				if gjson.GetBytes(d, field).String() == value {
					out = append(out, d)
				}
			}
			return out, nil
		}
	}
	return f.store.Find(ctx, coll, field, value)
}

func (f *Facade) Range(ctx context.Context, coll store.Collection, field string, from, to time.Time) ([]store.Document, error) {
	return f.store.Range(ctx, coll, field, from, to)
}

func (f *Facade) Put(ctx context.Context, coll store.Collection, doc store.Document) error {
	unlock := f.lockWrites(coll)
	defer unlock()
	if err := f.store.Put(ctx, coll, doc); err != nil {
		return err
	}
	if f.mirrored(coll) {
		f.cache.Upsert(coll, doc)
	}
	return nil
}

// PutAll mirrors whatever prefix of docs reached the store, even on failure.
func (f *Facade) PutAll(ctx context.Context, coll store.Collection, docs []store.Document) (int, error) {
	unlock := f.lockWrites(coll)
	defer unlock()
	n, err := f.store.PutAll(ctx, coll, docs)
	if f.mirrored(coll) && n > 0 {
		f.cache.UpsertAll(coll, docs[:n])
	}
	return n, err
}

func (f *Facade) Delete(ctx context.Context, coll store.Collection, id string) error {
	unlock := f.lockWrites(coll)
	defer unlock()
	if err := f.store.Delete(ctx, coll, id); err != nil {
		return err
	}
	if f.mirrored(coll) {
		f.cache.Remove(coll, id)
	}
	return nil
}

func (f *Facade) Clear(ctx context.Context, coll store.Collection) error {
	unlock := f.lockWrites(coll)
	defer unlock()
	if err := f.store.Clear(ctx, coll); err != nil {
		return err
	}
	if f.mirrored(coll) {
		f.cache.Mirror(coll, nil)
	}
	return nil
}

func (f *Facade) Meta(ctx context.Context, key string) (string, bool, error) {
	return f.store.Meta(ctx, key)
}

func (f *Facade) SetMeta(ctx context.Context, key, value string) error {
	return f.store.SetMeta(ctx, key, value)
}
