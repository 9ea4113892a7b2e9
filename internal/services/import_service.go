package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
	"logbook/internal/repositories"
	"logbook/internal/utils"

	"github.com/google/uuid"
)

// Candidate is one row of a bulk passenger import.
type Candidate struct {
	Row        int    `json:"row"`
	Name       string `json:"name"`
	Cedula     string `json:"cedula"`
	Department string `json:"department"`
}

// RowIssue explains why a row was not imported.
type RowIssue struct {
	Row    int    `json:"row"`
	Cedula string `json:"cedula,omitempty"`
	Reason string `json:"reason"`
}

type ImportReport struct {
	Imported  int        `json:"imported"`
	Skipped   []RowIssue `json:"skipped"`
	Total     int        `json:"total"`
	Passenger []string   `json:"passengerIds"`
}

var headerAliases = map[string]string{
	"nombre":       "name",
	"name":         "name",
	"cedula":       "cedula",
	"departamento": "department",
	"department":   "department",
}

// MapRows turns a header plus data rows into candidates by exact header
// names. It does no I/O.
func MapRows(header []string, rows [][]string) ([]Candidate, error) {
	idx := map[string]int{}
	for i, h := range header {
		if field, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := idx[field]; !dup {
				idx[field] = i
			}
		}
	}
	for _, required := range []string{"name", "cedula"} {
		if _, ok := idx[required]; !ok {
			return nil, domain.ValidationError{Field: "header", Msg: "missing column " + required}
		}
	}

	cell := func(row []string, field string) string {
		i, ok := idx[field]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	out := make([]Candidate, 0, len(rows))
	for i, row := range rows {
		c := Candidate{
			Row:        i + 2, // 1-based, after the header
			Name:       utils.NormalizeSpace(cell(row, "name")),
			Cedula:     utils.NormalizeCedula(cell(row, "cedula")),
			Department: utils.NormalizeSpace(cell(row, "department")),
		}
		if c.Name == "" && c.Cedula == "" && c.Department == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// ReadCSV parses a CSV stream into candidates. Comma and semicolon
// delimiters are both accepted.
func ReadCSV(r io.Reader) ([]Candidate, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := strings.TrimPrefix(string(raw), "\ufeff")
	first, _, _ := strings.Cut(text, "\n")

	reader := csv.NewReader(strings.NewReader(text))
	if strings.Count(first, ";") > strings.Count(first, ",") {
		reader.Comma = ';'
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, domain.ValidationError{Field: "file", Msg: "unreadable CSV", Err: err}
	}
	if len(records) == 0 {
		return nil, domain.ValidationError{Field: "file", Msg: "empty CSV"}
	}
	return MapRows(records[0], records[1:])
}

type ImportService struct {
	Repo      repositories.PassengerRepository
	RequestID string
	Now       func() time.Time
}

// Import stores every candidate whose cedula is new, both against the
// stored passengers and earlier rows of the same batch. Trips are never
// created here.
func (s ImportService) Import(ctx context.Context, candidates []Candidate) (ImportReport, error) {
	report := ImportReport{Total: len(candidates), Skipped: []RowIssue{}, Passenger: []string{}}
	known, err := s.Repo.Cedulas(ctx)
	if err != nil {
		return report, err
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	at := now()
	batch := make([]models.Passenger, 0, len(candidates))
	for _, c := range candidates {
		switch {
		case c.Name == "":
			report.Skipped = append(report.Skipped, RowIssue{Row: c.Row, Cedula: c.Cedula, Reason: "missing name"})
			continue
		case c.Cedula == "":
			report.Skipped = append(report.Skipped, RowIssue{Row: c.Row, Reason: "missing cedula"})
			continue
		}
		if _, dup := known[c.Cedula]; dup {
			report.Skipped = append(report.Skipped, RowIssue{Row: c.Row, Cedula: c.Cedula, Reason: "cedula already registered"})
			continue
		}
		p := models.Passenger{
			Base:       models.Base{ID: uuid.NewString(), CreatedAt: at},
			Name:       c.Name,
			Cedula:     c.Cedula,
			Department: c.Department,
			UpdatedAt:  at,
		}
		blob, err := EncodeIdentity(p, at)
		if err != nil {
			return report, err
		}
		p.QRPayload = blob
		known[c.Cedula] = p.ID
		batch = append(batch, p)
	}

	n, err := s.Repo.SaveAll(ctx, batch)
	report.Imported = n
	for _, p := range batch[:n] {
		report.Passenger = append(report.Passenger, p.ID)
	}
	utils.LogEvent(s.RequestID, "passenger", "import", fmt.Sprintf("imported=%d skipped=%d total=%d", n, len(report.Skipped), report.Total))
	if err != nil {
		return report, err
	}
	return report, nil
}
