package services

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"logbook/internal/cache"
	"logbook/internal/domain"
	"logbook/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GroupRegistry binds (conductor, route, shift, day) to a boarding-session id.
// Bindings live in memory and are written through to the cache area so they
// survive a restart within the same day.
type GroupRegistry struct {
	Cache *cache.SyncCache
	Loc   *time.Location
	Now   func() time.Time
	Log   logrus.FieldLogger

	mu     sync.Mutex
	groups map[string]string
}

func NewGroupRegistry(c *cache.SyncCache, loc *time.Location, logger logrus.FieldLogger) *GroupRegistry {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GroupRegistry{Cache: c, Loc: loc, Now: time.Now, Log: logger.WithField("module", "groups"), groups: map[string]string{}}
}

func (g *GroupRegistry) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// KeyFor composes the binding key. Parts are escaped so a route containing
// the separator cannot collide with another tuple.
func (g *GroupRegistry) KeyFor(conductorID, route string, shift domain.Shift, day time.Time) string {
	return strings.Join([]string{
		url.QueryEscape(strings.TrimSpace(conductorID)),
		url.QueryEscape(strings.TrimSpace(route)),
		url.QueryEscape(string(shift)),
		utils.FormatDate(day, g.Loc),
	}, "|")
}

func (g *GroupRegistry) lookup(key string) (string, bool) {
	if id, ok := g.groups[key]; ok {
		return id, true
	}
	if g.Cache == nil {
		return "", false
	}
	id, ok := g.Cache.Value(key)
	if ok && id != "" {
		g.groups[key] = id
		return id, true
	}
	return "", false
}

// CurrentGroup returns today's binding, if one exists.
func (g *GroupRegistry) CurrentGroup(conductorID, route string, shift domain.Shift) (string, bool) {
	key := g.KeyFor(conductorID, route, shift, g.now())
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lookup(key)
}

// EnsureGroup returns today's binding, minting and storing one when absent.
func (g *GroupRegistry) EnsureGroup(conductorID, route string, shift domain.Shift) (string, error) {
	if strings.TrimSpace(conductorID) == "" {
		return "", domain.ValidationError{Field: "conductorId", Msg: "is required"}
	}
	now := g.now()
	key := g.KeyFor(conductorID, route, shift, now)

	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.lookup(key); ok {
		return id, nil
	}
	id := fmt.Sprintf("%s-%d-%s", conductorID, now.UnixMilli(), uuid.NewString()[:8])
	g.groups[key] = id
	if g.Cache != nil {
		g.Cache.SetValue(key, id)
	}
	g.Log.WithFields(logrus.Fields{"key": key, "group_id": id}).Info("group minted")
	return id, nil
}

// ClearGroup drops today's binding.
func (g *GroupRegistry) ClearGroup(conductorID, route string, shift domain.Shift) {
	g.ClearGroupOn(conductorID, route, shift, g.now())
}

// ClearGroupOn drops the binding for the calendar day containing day.
func (g *GroupRegistry) ClearGroupOn(conductorID, route string, shift domain.Shift, day time.Time) {
	key := g.KeyFor(conductorID, route, shift, day)
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.groups, key)
	if g.Cache != nil {
		g.Cache.RemoveValue(key)
	}
}

// Bindings lists the persisted bindings of a conductor, keyed by binding key.
func (g *GroupRegistry) Bindings(conductorID string) map[string]string {
	if g.Cache == nil {
		return map[string]string{}
	}
	return g.Cache.Values(url.QueryEscape(strings.TrimSpace(conductorID)) + "|")
}
