package repository

import "errors"

// Sentinel kinds for standings errors.
var (
	ErrNotFound      = errors.New("participant not found")
	ErrInvalidLimit  = errors.New("invalid leaderboard limit")
	ErrInvalidRecord = errors.New("invalid participant record")
)
