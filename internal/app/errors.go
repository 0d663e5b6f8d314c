package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrDuplicateMatch = errors.New("duplicate match")
	ErrUnsupported    = errors.New("operation not supported by algorithm")
	ErrInvalidMatch   = errors.New("invalid match")
)
