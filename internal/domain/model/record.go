package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Domain groups the measurements captured by one collection process.
type Domain string

// Known data domains.
const (
	DomainWellness   Domain = "wellness"
	DomainLoad       Domain = "load"
	DomainForcePlate Domain = "force_plate"
	DomainWearable   Domain = "wearable"
)

// Domains lists every domain in field-lookup precedence order.
var Domains = []Domain{DomainWellness, DomainLoad, DomainForcePlate, DomainWearable}

// ParseDomain maps a string onto a known Domain.
func ParseDomain(s string) (Domain, error) {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Domains {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
}

// Field names referenced by the scoring rules.
const (
	FieldSleepHours   = "sleep_hours"
	FieldSoreness     = "soreness_0_10"
	FieldFatigue      = "fatigue_0_10"
	FieldMood         = "mood_0_10"
	FieldPlayerLoad   = "player_load"
	FieldDistance     = "distance_m"
	FieldJumpHeight   = "jump_height_cm"
	FieldRSI          = "rsi"
	FieldAsymmetry    = "asymmetry_pct"
	FieldSteps        = "steps"
	FieldRestingHR    = "resting_hr"
	FieldHRV          = "hrv_ms"
	maxSleepHours     = 24
	maxAsymmetryPct   = 100
	maxSurveyOverflow = 100 // noisy surveys are clamped later, not rejected
)

// bound is the accepted range of a known field. Values outside it are
// not plausible measurements and make the record malformed.
type bound struct {
	min, max float64
}

var fieldBounds = map[string]bound{
	FieldSleepHours: {0, maxSleepHours},
	FieldSoreness:   {0, maxSurveyOverflow},
	FieldFatigue:    {0, maxSurveyOverflow},
	FieldMood:       {0, maxSurveyOverflow},
	FieldPlayerLoad: {0, math.MaxFloat64},
	FieldDistance:   {0, math.MaxFloat64},
	FieldJumpHeight: {0, math.MaxFloat64},
	FieldRSI:        {0, math.MaxFloat64},
	FieldAsymmetry:  {0, maxAsymmetryPct},
	FieldSteps:      {0, math.MaxFloat64},
	FieldRestingHR:  {0, math.MaxFloat64},
	FieldHRV:        {0, math.MaxFloat64},
}

// Record is one day of measurements for one athlete in one domain.
type Record struct {
	ID        string             `json:"record_id,omitempty"`
	AthleteID string             `json:"athlete_id"`
	Date      time.Time          `json:"date"`
	Domain    Domain             `json:"domain"`
	Fields    map[string]float64 `json:"fields"`
}

// Value returns a field value and whether it is present.
func (r Record) Value(field string) (float64, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// FieldNames returns the record's field names in sorted order.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate checks basic type and range constraints. The returned error
// wraps ErrMalformedRecord.
func (r Record) Validate() error {
	if strings.TrimSpace(r.AthleteID) == "" {
		return fmt.Errorf("%w: missing athlete_id", ErrMalformedRecord)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrMalformedRecord)
	}
	if _, err := ParseDomain(string(r.Domain)); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if len(r.Fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrMalformedRecord)
	}
	for _, name := range r.FieldNames() {
		v := r.Fields[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: field %s is not a finite number", ErrMalformedRecord, name)
		}
		if b, ok := fieldBounds[name]; ok && (v < b.min || v > b.max) {
			return fmt.Errorf("%w: field %s=%g outside [%g, %g]", ErrMalformedRecord, name, v, b.min, b.max)
		}
	}
	return nil
}

// Normalize returns a copy with the date truncated to a Day and the
// domain lower-cased. The field map is copied.
func (r Record) Normalize() Record {
	out := r
	out.Date = Day(r.Date)
	out.Domain = Domain(strings.ToLower(strings.TrimSpace(string(r.Domain))))
	out.Fields = make(map[string]float64, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[strings.TrimSpace(k)] = v
	}
	return out
}

// Key identifies the (athlete, date, domain) slot a record occupies.
func (r Record) Key() string {
	return r.AthleteID + "|" + DayKey(r.Date) + "|" + string(r.Domain)
}
