// Package types contains common types used across the application
package types

// Standing represents one row of the leaderboard. Rating, Deviation and
// Volatility are the display form of the participant's rating state.
type Standing struct {
	Rank          int     `json:"rank"`
	ParticipantID string  `json:"participant_id"`
	Rating        float64 `json:"rating"`
	Deviation     float64 `json:"deviation,omitempty"`
	Volatility    float64 `json:"volatility,omitempty"`
}
