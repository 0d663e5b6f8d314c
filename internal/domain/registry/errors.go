package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds for registry errors.
var (
	ErrUnknownAlgorithm    = errors.New("unknown algorithm")
	ErrInvalidRegistration = errors.New("invalid algorithm registration")
)

// UnknownAlgorithmError reports a name with no registered constructor
// together with the names that are registered.
type UnknownAlgorithmError struct {
	Name      string
	Available []string
}

func (e *UnknownAlgorithmError) Error() string {
	return fmt.Sprintf("unknown algorithm %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// Unwrap lets errors.Is match ErrUnknownAlgorithm.
func (e *UnknownAlgorithmError) Unwrap() error {
	return ErrUnknownAlgorithm
}
