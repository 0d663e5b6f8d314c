// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sentinel kinds for invalid matches.
var (
	ErrMissingParticipant = errors.New("match has no participant")
	ErrSelfMatch          = errors.New("participant cannot play itself")
	ErrInvalidScore       = errors.New("pairwise score must be within [0, 1]")
	ErrNonFiniteScore     = errors.New("score must be a finite number")
)

// Match is one reported result. A pairwise match names an opponent and a
// score of 0 (loss), 0.5 (draw) or 1 (win) from the participant's side. A
// solo event has no opponent; its score is raw points or a finishing rank.
type Match struct {
	MatchID       string    // unique id for idempotency
	ParticipantID string    // subject of the result
	OpponentID    string    // empty for solo events
	Score         float64   // result from the participant's side
	TS            time.Time // when the match was played
}

// Pairwise reports whether the match involves an opponent.
func (m Match) Pairwise() bool {
	return m.OpponentID != ""
}

// Validate checks the fields every algorithm relies on.
func (m Match) Validate() error {
	if m.ParticipantID == "" {
		return ErrMissingParticipant
	}
	if !m.Pairwise() {
		if math.IsNaN(m.Score) || math.IsInf(m.Score, 0) {
			return fmt.Errorf("%w: got %v", ErrNonFiniteScore, m.Score)
		}
		return nil
	}
	if m.OpponentID == m.ParticipantID {
		return fmt.Errorf("%w: %s", ErrSelfMatch, m.ParticipantID)
	}
	if !(m.Score >= 0 && m.Score <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidScore, m.Score)
	}
	return nil
}

// Result is one outcome inside a rating period, scored from the
// participant's side. An empty OpponentID is a solo event.
type Result struct {
	OpponentID string
	Score      float64
}
