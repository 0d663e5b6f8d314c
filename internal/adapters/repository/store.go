// Package repository defines the standings store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/okian/rankd/internal/domain/rating"
)

// Record is the stored rating state of one participant.
type Record struct {
	ParticipantID string
	State         rating.State
	Matches       int       // outcomes applied so far
	LastMatchID   string    // most recent match that changed the state
	UpdatedAt     time.Time // when the state last changed
}

// Entry represents a leaderboard row. Display is the normalized form of the
// record's state and decides the ordering.
type Entry struct {
	Rank    int
	Record  Record
	Display rating.Triple
}

// Store provides read/write access to the standings.
type Store interface {
	// Put stores rec, replacing any earlier record for the participant.
	Put(ctx context.Context, rec Record) error

	// Get returns the record of a participant.
	// Returns ErrNotFound if the participant is unknown.
	Get(ctx context.Context, participantID string) (Record, error)

	// Rank returns the current rank of a participant.
	// Returns ErrNotFound if the participant is unknown.
	Rank(ctx context.Context, participantID string) (Entry, error)

	// TopN returns the top-N entries ordered by display rating desc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of participants tracked.
	Count(ctx context.Context) int

	// Range calls fn for every record until fn returns false. fn runs
	// without store locks held and may call back into the store.
	Range(ctx context.Context, fn func(Record) bool)
}
