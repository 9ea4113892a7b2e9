// Package cache keeps a synchronous, process-local mirror of the mirrored
// collections so reads never wait on the database.
package cache

import (
	"strings"

	"logbook/internal/store"

	"github.com/sirupsen/logrus"
)

const (
	keyPrefix   = "logbook_"
	groupPrefix = keyPrefix + "group_"
)

// CollectionKey is the area key holding the snapshot of coll.
func CollectionKey(coll store.Collection) string {
	return keyPrefix + string(coll)
}

// GroupKey namespaces a group binding key.
func GroupKey(key string) string {
	return groupPrefix + key
}

// SyncCache mirrors whole collections as JSON array snapshots. It never fails
// its callers: a write that cannot land is logged and the key is dropped so
// the next read goes to the durable store.
type SyncCache struct {
	area Area
	log  logrus.FieldLogger
}

func New(area Area, logger logrus.FieldLogger) *SyncCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SyncCache{area: area, log: logger.WithField("module", "cache")}
}

// Area exposes the underlying key space, e.g. for the legacy importer.
func (c *SyncCache) Area() Area { return c.area }

// Snapshot returns the mirrored documents of coll and whether a snapshot exists.
func (c *SyncCache) Snapshot(coll store.Collection) ([]store.Document, bool) {
	key := CollectionKey(coll)
	raw, ok, err := c.area.Get(key)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	docs, err := store.SplitArray(raw)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("corrupt snapshot dropped")
		c.drop(key)
		return nil, false
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return docs, true
}

// Mirror replaces the snapshot of coll.
func (c *SyncCache) Mirror(coll store.Collection, docs []store.Document) {
	c.write(CollectionKey(coll), store.JoinArray(docs))
}

// Upsert replaces or appends doc in the snapshot of coll. Without a snapshot
// there is nothing to keep in sync, so the call is a no-op.
func (c *SyncCache) Upsert(coll store.Collection, doc store.Document) {
	c.UpsertAll(coll, []store.Document{doc})
}

// UpsertAll is Upsert for a batch, applied with a single area write.
func (c *SyncCache) UpsertAll(coll store.Collection, batch []store.Document) {
	if len(batch) == 0 {
		return
	}
	docs, ok := c.Snapshot(coll)
	if !ok {
		return
	}
	pos := make(map[string]int, len(docs))
	for i, d := range docs {
		pos[d.ID()] = i
	}
	for _, d := range batch {
		id := d.ID()
		if i, ok := pos[id]; ok {
			docs[i] = d
			continue
		}
		pos[id] = len(docs)
		docs = append(docs, d)
	}
	c.Mirror(coll, docs)
}

// Remove drops the document with id from the snapshot of coll.
func (c *SyncCache) Remove(coll store.Collection, id string) {
	docs, ok := c.Snapshot(coll)
	if !ok {
		return
	}
	out := docs[:0]
	for _, d := range docs {
		if d.ID() != id {
			out = append(out, d)
		}
	}
	c.Mirror(coll, out)
}

// Invalidate forgets the snapshot of coll.
func (c *SyncCache) Invalidate(coll store.Collection) {
	c.drop(CollectionKey(coll))
}

// Value reads a group binding.
func (c *SyncCache) Value(key string) (string, bool) {
	raw, ok, err := c.area.Get(GroupKey(key))
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache read failed")
		return "", false
	}
	if !ok {
		return "", false
	}
	return string(raw), true
}

func (c *SyncCache) SetValue(key, value string) {
	c.write(GroupKey(key), []byte(value))
}

func (c *SyncCache) RemoveValue(key string) {
	c.drop(GroupKey(key))
}

// Values lists group bindings whose key starts with prefix.
func (c *SyncCache) Values(prefix string) map[string]string {
	keys, err := c.area.Keys(GroupKey(prefix))
	if err != nil {
		c.log.WithError(err).Warn("cache key listing failed")
		return map[string]string{}
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		raw, ok, err := c.area.Get(k)
		if err != nil || !ok {
			continue
		}
		out[strings.TrimPrefix(k, groupPrefix)] = string(raw)
	}
	return out
}

func (c *SyncCache) write(key string, value []byte) {
	if err := c.area.Set(key, value); err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{"key": key, "bytes": len(value)}).
			Warn("cache write failed; key invalidated")
		c.drop(key)
	}
}

func (c *SyncCache) drop(key string) {
	if err := c.area.Remove(key); err != nil {
		c.log.WithError(err).WithField("key", key).Error("cache invalidate failed")
	}
}
