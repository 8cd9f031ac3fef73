// Package model contains the domain models passed between layers.
package model

// Athlete is roster reference data. The core never mutates it.
type Athlete struct {
	ID       string `json:"athlete_id" validate:"required,excludesall=0x7C"`
	Name     string `json:"name"`
	Position string `json:"position"`
	Tier     string `json:"tier"` // e.g. "starter", "rotation", "development"
}
