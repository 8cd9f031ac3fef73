package synth

import (
	"time"

	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
)

// Profile shapes the data generated for one athlete.
type Profile string

// Athlete profiles, assigned round-robin across the roster.
const (
	ProfileSteady    Profile = "steady"     // stable load, good sleep
	ProfileSpike     Profile = "load_spike" // load jumps over the final week
	ProfilePoorSleep Profile = "poor_sleep" // short sleep and missed surveys
	ProfileDeclining Profile = "declining"  // jump height falls, asymmetry grows
	ProfileLate      Profile = "late_joiner"
)

// Profiles lists every profile in assignment order.
var Profiles = []Profile{ProfileSteady, ProfileSpike, ProfilePoorSleep, ProfileDeclining, ProfileLate}

// Config holds configuration for the generator.
type Config struct {
	Athletes int       // Number of athletes on the roster
	Days     int       // Days of history per athlete
	Start    time.Time // First day of history
	Seed     int64     // Seed for reproducible output
	Workers  int       // Concurrent per-athlete generators
}

// Dataset is a generated roster with its records, ordered by day and
// then by roster position.
type Dataset struct {
	Roster   []model.Athlete
	Profiles map[string]Profile
	Records  []model.Record
}

// LastDay returns the final day covered by cfg.
func (c Config) LastDay() time.Time {
	return model.Day(c.Start).AddDate(0, 0, c.Days-1)
}

// ReplayConfig holds configuration for replaying a dataset against a
// running service.
type ReplayConfig struct {
	BaseURL string        // Base URL of the service
	Workers int           // Number of concurrent submitters
	Timeout time.Duration // HTTP request timeout
	Date    time.Time     // Day to evaluate after submission; zero means the last record day
}

// ackResponse mirrors the body of POST /records.
type ackResponse struct {
	Status    string `json:"status"`
	RecordID  string `json:"record_id"`
	Duplicate bool   `json:"duplicate"`
}

// statusesResponse mirrors the body of POST /evaluations.
type statusesResponse struct {
	Date     string              `json:"date"`
	Statuses []types.DailyStatus `json:"statuses"`
}

// Stats holds replay statistics.
type Stats struct {
	Athletes          int
	RecordsSubmitted  int
	RecordsAccepted   int
	RecordsDuplicate  int
	RecordsFailed     int
	StatusesEvaluated int
	ByStatus          map[types.Status]int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
