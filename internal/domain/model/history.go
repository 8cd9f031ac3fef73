package model

import (
	"sort"
	"time"
)

// Observation is one dated value of a single field.
type Observation struct {
	Date  time.Time
	Value float64
}

// History indexes one athlete's records by domain and day. At most one
// record exists per (domain, day); adding a second replaces the first,
// so merging domains can never duplicate rows.
type History struct {
	AthleteID string
	byDomain  map[Domain]map[string]Record
}

// NewHistory builds a History from an athlete's records. Records for
// other athletes are ignored.
func NewHistory(athleteID string, records []Record) *History {
	h := &History{
		AthleteID: athleteID,
		byDomain:  make(map[Domain]map[string]Record, len(Domains)),
	}
	for _, r := range records {
		h.Add(r)
	}
	return h
}

// Add inserts or replaces the record for its (domain, day).
func (h *History) Add(r Record) {
	if r.AthleteID != h.AthleteID {
		return
	}
	days, ok := h.byDomain[r.Domain]
	if !ok {
		days = make(map[string]Record)
		h.byDomain[r.Domain] = days
	}
	r.Date = Day(r.Date)
	days[DayKey(r.Date)] = r
}

// Record returns the record for a domain on a day.
func (h *History) Record(d Domain, day time.Time) (Record, bool) {
	r, ok := h.byDomain[d][DayKey(day)]
	return r, ok
}

// Len returns the number of records held.
func (h *History) Len() int {
	n := 0
	for _, days := range h.byDomain {
		n += len(days)
	}
	return n
}

// Until returns a copy holding only records dated on or before day.
// Every derived value for a day is computed from Until(day).
func (h *History) Until(day time.Time) *History {
	cut := Day(day)
	out := &History{AthleteID: h.AthleteID, byDomain: make(map[Domain]map[string]Record, len(h.byDomain))}
	for d, days := range h.byDomain {
		kept := make(map[string]Record, len(days))
		for k, r := range days {
			if !r.Date.After(cut) {
				kept[k] = r
			}
		}
		out.byDomain[d] = kept
	}
	return out
}

// Value looks a field up on a day, walking domains in precedence order.
func (h *History) Value(field string, day time.Time) (float64, bool) {
	key := DayKey(day)
	for _, d := range Domains {
		if r, ok := h.byDomain[d][key]; ok {
			if v, ok := r.Fields[field]; ok {
				return v, true
			}
		}
	}
	return 0, false
}

// Series returns every observation of a field in a domain, oldest first.
func (h *History) Series(d Domain, field string) []Observation {
	days := h.byDomain[d]
	out := make([]Observation, 0, len(days))
	for _, r := range days {
		if v, ok := r.Fields[field]; ok {
			out = append(out, Observation{Date: r.Date, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// FieldSeries returns the observations of a field across all domains,
// oldest first. When several domains carry the field on the same day
// the higher-precedence domain wins.
func (h *History) FieldSeries(field string) []Observation {
	seen := make(map[string]bool)
	var out []Observation
	for _, d := range Domains {
		for key, r := range h.byDomain[d] {
			if seen[key] {
				continue
			}
			if v, ok := r.Fields[field]; ok {
				seen[key] = true
				out = append(out, Observation{Date: r.Date, Value: v})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// SameDay returns the merged field values available on a day.
func (h *History) SameDay(day time.Time) map[string]float64 {
	key := DayKey(day)
	out := make(map[string]float64)
	// walk in reverse so higher-precedence domains overwrite
	for i := len(Domains) - 1; i >= 0; i-- {
		if r, ok := h.byDomain[Domains[i]][key]; ok {
			for k, v := range r.Fields {
				out[k] = v
			}
		}
	}
	return out
}
