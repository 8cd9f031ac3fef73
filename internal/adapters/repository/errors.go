package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound        = errors.New("status not found")
	ErrAthleteNotFound = errors.New("athlete not found")
)
