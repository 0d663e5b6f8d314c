package config

import "errors"

// Sentinel kinds for configuration errors; match them with errors.Is.
var (
	// ErrInvalidConfig marks values that decode but fail validation.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks unreadable or unparsable sources.
	ErrLoadConfig = errors.New("load config failed")
)
