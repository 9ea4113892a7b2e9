package services

import (
	"strings"
	"testing"
	"time"

	"logbook/internal/cache"
	"logbook/internal/domain"

	"github.com/sirupsen/logrus/hooks/test"
)

func newRegistry(t *testing.T, area cache.Area, at time.Time) *GroupRegistry {
	t.Helper()
	logger, _ := test.NewNullLogger()
	g := NewGroupRegistry(cache.New(area, logger), caracas, logger)
	g.Now = func() time.Time { return at }
	return g
}

func TestKeyForUsesCalendarDay(t *testing.T) {
	g := newRegistry(t, cache.NewMemoryArea(0), time.Now())
	morning := time.Date(2026, 10, 19, 6, 0, 0, 0, caracas)
	evening := time.Date(2026, 10, 19, 23, 59, 0, 0, caracas)

	if g.KeyFor("c1", "R", domain.ShiftMorning, morning) != g.KeyFor("c1", "R", domain.ShiftMorning, evening) {
		t.Fatalf("same calendar day must give the same key")
	}
	// 02:00 UTC on the 20th is still the 19th in Caracas
	utc := time.Date(2026, 10, 20, 2, 0, 0, 0, time.UTC)
	if g.KeyFor("c1", "R", domain.ShiftMorning, morning) != g.KeyFor("c1", "R", domain.ShiftMorning, utc) {
		t.Fatalf("day must be taken in the configured location")
	}
	if g.KeyFor("c1", "R", domain.ShiftMorning, morning) == g.KeyFor("c1", "R", domain.ShiftNight, morning) {
		t.Fatalf("shift must be part of the key")
	}
	if g.KeyFor("c1", "a|b", domain.ShiftNight, morning) == g.KeyFor("c1|a", "b", domain.ShiftNight, morning) {
		t.Fatalf("separator inside a part must not collide")
	}
}

func TestEnsureGroupIsStableWithinADay(t *testing.T) {
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, caracas)
	g := newRegistry(t, cache.NewMemoryArea(0), at)

	first, err := g.EnsureGroup("c1", "R", domain.ShiftMorning)
	if err != nil {
		t.Fatalf("EnsureGroup error: %v", err)
	}
	if !strings.HasPrefix(first, "c1-") {
		t.Fatalf("group id should start with the conductor id, got %s", first)
	}
	again, _ := g.EnsureGroup("c1", "R", domain.ShiftMorning)
	if again != first {
		t.Fatalf("EnsureGroup not deterministic: %s vs %s", first, again)
	}
	night, _ := g.EnsureGroup("c1", "R", domain.ShiftNight)
	if night == first {
		t.Fatalf("different shift must mint a different group")
	}

	g.Now = func() time.Time { return at.AddDate(0, 0, 1) }
	tomorrow, _ := g.EnsureGroup("c1", "R", domain.ShiftMorning)
	if tomorrow == first {
		t.Fatalf("a new day must mint a new group")
	}
}

func TestBindingSurvivesRestartThroughCache(t *testing.T) {
	area := cache.NewMemoryArea(0)
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, caracas)

	id, err := newRegistry(t, area, at).EnsureGroup("c1", "R", domain.ShiftMorning)
	if err != nil {
		t.Fatalf("EnsureGroup error: %v", err)
	}

	restarted := newRegistry(t, area, at.Add(3*time.Hour))
	got, ok := restarted.CurrentGroup("c1", "R", domain.ShiftMorning)
	if !ok || got != id {
		t.Fatalf("CurrentGroup after restart = %q, %v; want %q", got, ok, id)
	}
	if len(restarted.Bindings("c1")) != 1 {
		t.Fatalf("expected one persisted binding, got %v", restarted.Bindings("c1"))
	}
}

func TestClearGroupMintsFreshID(t *testing.T) {
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, caracas)
	g := newRegistry(t, cache.NewMemoryArea(0), at)

	first, _ := g.EnsureGroup("c1", "R", domain.ShiftMorning)
	g.ClearGroup("c1", "R", domain.ShiftMorning)
	if _, ok := g.CurrentGroup("c1", "R", domain.ShiftMorning); ok {
		t.Fatalf("binding should be gone after ClearGroup")
	}
	second, _ := g.EnsureGroup("c1", "R", domain.ShiftMorning)
	if second == first {
		t.Fatalf("expected a fresh group id after clear")
	}
}

func TestEnsureGroupRequiresConductor(t *testing.T) {
	g := newRegistry(t, cache.NewMemoryArea(0), time.Now())
	if _, err := g.EnsureGroup(" ", "R", domain.ShiftMorning); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
