package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
	"logbook/internal/repositories"
)

func TestRouteManifestRendersPDF(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	for _, cedula := range []string{"1", "2"} {
		if _, err := fx.start(t, fx.passenger(t, cedula), "R"); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	if _, err := fx.start(t, fx.passenger(t, "3"), "S"); err != nil {
		t.Fatalf("start: %v", err)
	}
	sigs := repositories.NewSignatureRepository(fx.facade)
	if err := sigs.Save(ctx, &models.Signature{Role: "contractor", Name: "José Núñez", Position: "Jefe"}); err != nil {
		t.Fatalf("save signature: %v", err)
	}

	svc := ReportService{
		Trips:      fx.trips.Trips,
		Conductors: fx.trips.Conductors,
		Signatures: sigs,
		Loc:        caracas,
		Now:        func() time.Time { return *fx.clock },
	}
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, caracas)
	q := ReportQuery{Route: "R", From: day, To: day.AddDate(0, 0, 1)}

	m, err := svc.BuildManifest(ctx, q)
	if err != nil {
		t.Fatalf("BuildManifest error: %v", err)
	}
	if len(m.Rows) != 2 || m.Rows[0].No != 1 || m.Rows[0].Conductor != "Carlos" {
		t.Fatalf("unexpected rows: %+v", m.Rows)
	}
	if m.Period != "2026-10-19 - 2026-10-19" || m.Contractor == nil || m.Corporation != nil {
		t.Fatalf("unexpected manifest header: %+v", m)
	}

	before, _ := fx.trips.Trips.List(ctx)
	pdf, name, err := svc.RouteManifest(ctx, q)
	if err != nil {
		t.Fatalf("RouteManifest error: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) || name != "MANIFEST_R_20261019.pdf" {
		t.Fatalf("unexpected output: %d bytes, name %q", len(pdf), name)
	}
	after, _ := fx.trips.Trips.List(ctx)
	if len(before) != len(after) {
		t.Fatalf("report must not write trips")
	}
}

func TestManifestRejectsInvertedRange(t *testing.T) {
	fx := newFixture(t)
	svc := ReportService{Trips: fx.trips.Trips, Conductors: fx.trips.Conductors, Signatures: repositories.NewSignatureRepository(fx.facade)}
	now := time.Now()
	if _, err := svc.BuildManifest(context.Background(), ReportQuery{From: now, To: now.Add(-time.Hour)}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEmptyManifestStillRenders(t *testing.T) {
	pdf, _, err := buildManifestPDF(Manifest{Title: "Passenger manifest", Route: "all routes", Period: "all dates", GeneratedAt: time.Now()})
	if err != nil || len(pdf) == 0 {
		t.Fatalf("empty manifest: %d bytes, err %v", len(pdf), err)
	}
}
