package services

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
	"logbook/internal/repositories"
	"logbook/internal/utils"

	"github.com/phpdave11/gofpdf"
)

// ReportQuery selects the trips printed on a manifest. Zero times are open bounds.
type ReportQuery struct {
	Route       string
	ConductorID string
	From        time.Time
	To          time.Time
}

// ManifestRow is one printed line.
type ManifestRow struct {
	No         int
	Passenger  string
	Cedula     string
	Department string
	Conductor  string
	Shift      string
	Start      string
	End        string
	Status     string
}

type Manifest struct {
	Title       string
	Route       string
	Period      string
	Rows        []ManifestRow
	Contractor  *models.Signature
	Corporation *models.Signature
	GeneratedAt time.Time
}

// ReportService renders printable reports. It only reads.
type ReportService struct {
	Trips      repositories.TripRepository
	Conductors repositories.ConductorRepository
	Signatures repositories.SignatureRepository
	Loc        *time.Location
	RequestID  string
	Now        func() time.Time
}

func (s ReportService) loc() *time.Location {
	if s.Loc != nil {
		return s.Loc
	}
	return time.Local
}

// BuildManifest gathers the rows for q, ordered by start time.
func (s ReportService) BuildManifest(ctx context.Context, q ReportQuery) (Manifest, error) {
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return Manifest{}, domain.ValidationError{Field: "to", Msg: "must be after from"}
	}
	trips, err := s.Trips.Between(ctx, q.From, q.To)
	if err != nil {
		return Manifest{}, err
	}

	names := map[string]string{}
	if conductors, err := s.Conductors.List(ctx); err == nil {
		for _, c := range conductors {
			names[c.ID] = c.Name
		}
	}

	route := strings.TrimSpace(q.Route)
	selected := make([]models.Trip, 0, len(trips))
	for _, t := range trips {
		if route != "" && t.Route != route {
			continue
		}
		if q.ConductorID != "" && t.ConductorID != q.ConductorID {
			continue
		}
		selected = append(selected, t)
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].StartTime.Before(selected[j].StartTime) })

	loc := s.loc()
	m := Manifest{Title: "Passenger manifest", Route: safe(route, "all routes"), Rows: make([]ManifestRow, 0, len(selected))}
	m.Period = periodLabel(q, loc)
	if s.Now != nil {
		m.GeneratedAt = s.Now()
	} else {
		m.GeneratedAt = time.Now()
	}
	for i, t := range selected {
		conductor := t.ConductorName
		if current, ok := names[t.ConductorID]; ok && conductor == "" {
			conductor = current
		}
		row := ManifestRow{
			No:         i + 1,
			Passenger:  t.PassengerName,
			Cedula:     t.PassengerCedula,
			Department: t.PassengerDepartment,
			Conductor:  conductor,
			Shift:      string(t.Shift),
			Start:      utils.FormatDateTime(t.StartTime, loc),
			Status:     string(t.Status),
		}
		if t.EndTime != nil {
			row.End = utils.FormatDateTime(*t.EndTime, loc)
		}
		m.Rows = append(m.Rows, row)
	}

	if sig, ok, err := s.Signatures.ByRole(ctx, "contractor"); err == nil && ok {
		m.Contractor = &sig
	}
	if sig, ok, err := s.Signatures.ByRole(ctx, "corporation"); err == nil && ok {
		m.Corporation = &sig
	}
	return m, nil
}

// RouteManifest renders the manifest for q as a PDF and suggests a filename.
func (s ReportService) RouteManifest(ctx context.Context, q ReportQuery) ([]byte, string, error) {
	m, err := s.BuildManifest(ctx, q)
	if err != nil {
		return nil, "", err
	}
	utils.LogEvent(s.RequestID, "reports", "route_manifest", fmt.Sprintf("route=%s rows=%d", m.Route, len(m.Rows)))
	return buildManifestPDF(m)
}

func periodLabel(q ReportQuery, loc *time.Location) string {
	switch {
	case q.From.IsZero() && q.To.IsZero():
		return "all dates"
	case q.To.IsZero():
		return "from " + utils.FormatDate(q.From, loc)
	case q.From.IsZero():
		return "until " + utils.FormatDate(q.To.Add(-time.Nanosecond), loc)
	}
	return utils.FormatDate(q.From, loc) + " - " + utils.FormatDate(q.To.Add(-time.Nanosecond), loc)
}

var manifestColumns = []struct {
	title string
	width float64
}{
	{"#", 8}, {"Passenger", 48}, {"Cedula", 26}, {"Department", 34}, {"Conductor", 40},
	{"Shift", 18}, {"Start", 32}, {"End", 32}, {"Status", 22},
}

func buildManifestPDF(m Manifest) ([]byte, string, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(m.Title, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, tr(strings.ToUpper(m.Title)))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, tr("Route  : "+m.Route))
	pdf.Ln(6)
	pdf.Cell(0, 6, tr("Period : "+m.Period))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Printed: "+m.GeneratedAt.Format("2006-01-02 15:04"))
	pdf.Ln(9)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range manifestColumns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	if len(m.Rows) == 0 {
		pdf.CellFormat(0, 7, "No trips in this period.", "1", 1, "C", false, 0, "")
	}
	for _, r := range m.Rows {
		cells := []string{
			fmt.Sprintf("%d", r.No), r.Passenger, r.Cedula, r.Department, r.Conductor,
			r.Shift, r.Start, safe(r.End, "-"), r.Status,
		}
		for i, col := range manifestColumns {
			pdf.CellFormat(col.width, 6, tr(clip(cells[i], col.width)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(14)
	signatureBlock(pdf, tr, "Contractor", m.Contractor, 20)
	signatureBlock(pdf, tr, "Corporation", m.Corporation, 160)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", domain.InternalError{Msg: "manifest could not be rendered", Err: err}
	}
	filename := fmt.Sprintf("MANIFEST_%s_%s.pdf", safeFilenamePart(m.Route), m.GeneratedAt.Format("20060102"))
	return buf.Bytes(), filename, nil
}

func signatureBlock(pdf *gofpdf.Fpdf, tr func(string) string, label string, sig *models.Signature, x float64) {
	y := pdf.GetY()
	pdf.SetXY(x, y)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Line(x, y, x+90, y)
	pdf.SetXY(x, y+1)
	name, detail := "-", label
	if sig != nil {
		name = safe(sig.Name, "-")
		detail = strings.TrimSpace(fmt.Sprintf("%s  %s  %s", sig.Position, sig.Company, sig.Cedula))
	}
	pdf.CellFormat(90, 5, tr(name), "", 2, "C", false, 0, "")
	pdf.CellFormat(90, 5, tr(safe(detail, label)), "", 2, "C", false, 0, "")
	pdf.SetY(y)
}

// clip keeps a cell on one line; about one character per two millimetres at 8pt.
func clip(s string, width float64) string {
	limit := int(width * 0.55)
	r := []rune(s)
	if len(r) <= limit || limit < 2 {
		return s
	}
	return string(r[:limit-1]) + "."
}

func safe(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

func safeFilenamePart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "NA"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	s = replacer.Replace(s)
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
