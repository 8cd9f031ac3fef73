package csvfile

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// StatusColumns is the header of a status export.
var StatusColumns = []string{"athlete_id", "date", "status", "score", "reason", "active_flags", "unknown"}

// WriteStatuses writes statuses in the given format.
func WriteStatuses(w io.Writer, format string, statuses []types.DailyStatus) error {
	switch strings.ToLower(format) {
	case FormatCSV, "":
		return WriteStatusesCSV(w, statuses)
	case FormatJSON:
		return WriteStatusesJSON(w, statuses)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// WriteStatusesCSV writes one row per status. Flags render as
// "metric=value:LEVEL" and unknowns as "metric:REASON", both joined by ";".
func WriteStatusesCSV(w io.Writer, statuses []types.DailyStatus) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(StatusColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range statuses {
		flags := make([]string, len(s.ActiveFlags))
		for i, f := range s.ActiveFlags {
			flags[i] = fmt.Sprintf("%s=%s:%s", f.Metric, strconv.FormatFloat(f.Value, 'f', 2, 64), f.Level)
		}
		unknown := make([]string, len(s.Unknown))
		for i, u := range s.Unknown {
			unknown[i] = u.Metric + ":" + string(u.Reason)
		}
		reason := string(s.Resolution.Rule)
		if s.Resolution.Detail != "" {
			reason += ": " + s.Resolution.Detail
		}
		err := cw.Write([]string{
			s.AthleteID,
			model.DayKey(s.Date),
			string(s.Status),
			s.Score.String(),
			reason,
			strings.Join(flags, ";"),
			strings.Join(unknown, ";"),
		})
		if err != nil {
			return fmt.Errorf("write status %s: %w", s.AthleteID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStatusesJSON writes statuses as an indented JSON array.
func WriteStatusesJSON(w io.Writer, statuses []types.DailyStatus) error {
	if statuses == nil {
		statuses = []types.DailyStatus{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(statuses); err != nil {
		return fmt.Errorf("encode statuses: %w", err)
	}
	return nil
}

// WriteRoster writes a roster in the format ReadRoster reads.
func WriteRoster(w io.Writer, roster []model.Athlete) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rosterColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, a := range roster {
		if err := cw.Write([]string{a.ID, a.Name, a.Position, a.Tier}); err != nil {
			return fmt.Errorf("write athlete %s: %w", a.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRecords writes records in long format, one row per field in
// sorted field order.
func WriteRecords(w io.Writer, records []model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(recordColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		day := model.DayKey(r.Date)
		for _, field := range r.FieldNames() {
			v := strconv.FormatFloat(r.Fields[field], 'f', -1, 64)
			if err := cw.Write([]string{r.AthleteID, day, string(r.Domain), field, v}); err != nil {
				return fmt.Errorf("write record %s: %w", r.Key(), err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
