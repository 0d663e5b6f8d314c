// Package rating defines the contract shared by every rating algorithm:
// the rating state sum type, match outcomes, configuration params and the
// Algorithm capability set.
//
// Algorithms are stateless with respect to participants. The caller owns
// every State value and passes it in on each call; implementations must
// never mutate their inputs.
package rating

// Result values for pairwise outcomes.
const (
	Loss = 0.0
	Draw = 0.5
	Win  = 1.0
)

// Outcome is one observation relative to an opponent. Pairwise algorithms
// read Opponent and a Result of Loss, Draw or Win. Points algorithms ignore
// Opponent and treat Result as the raw score or rank earned in one event.
type Outcome struct {
	Opponent State
	Result   float64
}

// Algorithm is the capability set every rating system implements.
type Algorithm interface {
	// CalculateRating folds outcomes into current and returns the new state.
	CalculateRating(current State, outcomes []Outcome) (State, error)

	// ExpectedOutcome returns the probability that a beats b.
	ExpectedOutcome(a, b State) (float64, error)

	// DefaultRating is the state assigned to a newly observed participant.
	DefaultRating() State

	// DisplayName identifies the algorithm and its tunable parameters.
	DisplayName() string
}

// Projection is a season-end forecast derived from a participant's history.
type Projection struct {
	Projected  float64
	Min        float64
	Max        float64
	LowerBound float64
	UpperBound float64
}

// Projector is implemented by algorithms that can forecast season totals.
type Projector interface {
	ProjectSeasonFinish(current State, remainingEvents int, confidence float64) (Projection, error)
}

// Trend describes the direction of recent performance.
type Trend string

// Trend values.
const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Trender is implemented by algorithms that keep a per-event history.
type Trender interface {
	TrendOf(current State, window int) (Trend, error)
}
