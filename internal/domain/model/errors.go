package model

import "errors"

// Sentinel kinds for record errors.
var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrUnknownDomain   = errors.New("unknown domain")
)
