// Package csvfile reads rosters and long-format daily records from CSV
// and writes resolved statuses as CSV or JSON.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/okian/readiness/internal/domain/model"
)

// ErrHeader is returned when a file lacks a required column.
var ErrHeader = errors.New("csv header")

// Column names.
const (
	ColAthleteID = "athlete_id"
	ColName      = "name"
	ColPosition  = "position"
	ColTier      = "tier"
	ColDate      = "date"
	ColDomain    = "domain"
	ColField     = "field"
	ColValue     = "value"
)

var (
	rosterColumns = []string{ColAthleteID, ColName, ColPosition, ColTier}
	recordColumns = []string{ColAthleteID, ColDate, ColDomain, ColField, ColValue}
)

// Malformed describes a record that was dropped while reading.
type Malformed struct {
	// Key is athlete|date|domain, or empty when the row could not be keyed.
	Key  string
	Line int
	Err  error
}

func (m Malformed) Error() string {
	if m.Key == "" {
		return fmt.Sprintf("line %d: %v", m.Line, m.Err)
	}
	return fmt.Sprintf("line %d: %s: %v", m.Line, m.Key, m.Err)
}

func (m Malformed) Unwrap() error { return m.Err }

// ReadRoster reads athlete_id,name,position,tier rows. Columns are matched
// by header name; extra columns are ignored.
func ReadRoster(r io.Reader) ([]model.Athlete, error) {
	cr := newReader(r)
	idx, err := header(cr, []string{ColAthleteID})
	if err != nil {
		return nil, err
	}

	var out []model.Athlete
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read roster: %w", err)
		}
		if blank(row) {
			continue
		}
		line, _ := cr.FieldPos(0)
		a := model.Athlete{
			ID:       cell(row, idx, ColAthleteID),
			Name:     cell(row, idx, ColName),
			Position: cell(row, idx, ColPosition),
			Tier:     cell(row, idx, ColTier),
		}
		if a.ID == "" {
			return nil, fmt.Errorf("roster line %d: missing %s", line, ColAthleteID)
		}
		out = append(out, a)
	}
}

// group accumulates the rows of one (athlete, date, domain) record.
type group struct {
	rec  model.Record
	line int
	err  error
}

// ReadRecords reads long-format athlete_id,date,domain,field,value rows
// and groups them into one Record per (athlete, date, domain), in order
// of first appearance. An empty value leaves the field absent and a
// record with no values at all is dropped. A bad date, domain or value
// marks the whole record malformed; it is returned in the second result
// instead of the first. A repeated field keeps the last value.
func ReadRecords(r io.Reader) ([]model.Record, []Malformed, error) {
	cr := newReader(r)
	idx, err := header(cr, recordColumns)
	if err != nil {
		return nil, nil, err
	}

	var (
		order     []string
		groups    = make(map[string]*group)
		malformed []Malformed
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read records: %w", err)
		}
		if blank(row) {
			continue
		}
		line, _ := cr.FieldPos(0)

		athlete := cell(row, idx, ColAthleteID)
		rawDate := cell(row, idx, ColDate)
		rawDomain := cell(row, idx, ColDomain)
		if athlete == "" || rawDate == "" {
			malformed = append(malformed, Malformed{Line: line,
				Err: fmt.Errorf("%w: row without %s or %s", model.ErrMalformedRecord, ColAthleteID, ColDate)})
			continue
		}

		key := athlete + "|" + rawDate + "|" + strings.ToLower(rawDomain)
		g, ok := groups[key]
		if !ok {
			g = &group{line: line, rec: model.Record{AthleteID: athlete, Fields: map[string]float64{}}}
			groups[key] = g
			order = append(order, key)
			g.rec.Date, g.err = parseDate(rawDate)
			if g.err == nil {
				g.rec.Domain, g.err = model.ParseDomain(rawDomain)
			}
		}
		if g.err != nil {
			continue
		}

		field := cell(row, idx, ColField)
		raw := cell(row, idx, ColValue)
		switch {
		case field == "":
			g.err = fmt.Errorf("line %d: empty %s", line, ColField)
		case raw == "":
			// not measured
		default:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				g.err = fmt.Errorf("line %d: %s=%q is not a number", line, field, raw)
				continue
			}
			g.rec.Fields[field] = v
		}
	}

	records := make([]model.Record, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if g.err != nil {
			malformed = append(malformed, Malformed{Key: key, Line: g.line,
				Err: fmt.Errorf("%w: %w", model.ErrMalformedRecord, g.err)})
			continue
		}
		if len(g.rec.Fields) == 0 {
			continue
		}
		records = append(records, g.rec)
	}
	return records, malformed, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return cr
}

// header reads the header row and maps column names to positions.
func header(cr *csv.Reader, required []string) (map[string]int, error) {
	row, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeader, err)
	}
	idx := make(map[string]int, len(row))
	for i, name := range row {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrHeader, col)
		}
	}
	return idx, nil
}

func cell(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseDate(s string) (time.Time, error) {
	if d, err := model.ParseDay(s); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad %s %q", ColDate, s)
	}
	return model.Day(t), nil
}
