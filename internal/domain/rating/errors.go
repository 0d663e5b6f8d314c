package rating

import "errors"

// Sentinel error kinds shared by all algorithms. Callers match them with
// errors.Is.
var (
	ErrInvalidConfig   = errors.New("invalid algorithm config")
	ErrStateMismatch   = errors.New("rating state does not match algorithm")
	ErrNonConvergence  = errors.New("rating computation did not converge")
	ErrInvalidArgument = errors.New("invalid argument")
)
