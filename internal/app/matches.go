package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rankd/internal/adapters/repository"
	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/internal/domain/rating"
	"github.com/okian/rankd/pkg/logger"
	"github.com/okian/rankd/pkg/metrics"
)

// Submit queues a match for asynchronous application and returns its id.
// A match without an id gets a random one. A match id that was seen before
// is dropped with ErrDuplicateMatch.
func (s *Service) Submit(ctx context.Context, m model.Match) (string, error) { //nolint:gocritic // hugeParam: Match is passed by value for channel semantics
	e, err := s.running()
	if err != nil {
		return m.MatchID, err
	}
	if m.MatchID == "" {
		m.MatchID = uuid.NewString()
	}
	if err := m.Validate(); err != nil {
		return m.MatchID, fmt.Errorf("%w: %w", ErrInvalidMatch, err)
	}

	metrics.RecordMatchSubmitted()
	if e.deduper.SeenAndRecord(ctx, m.MatchID) {
		metrics.RecordMatchDuplicate()
		e.logger.Debug(ctx, "duplicate match detected, skipping", logger.String("matchID", m.MatchID))
		return m.MatchID, ErrDuplicateMatch
	}

	e.pending.Add(1)
	if err := e.queue.Enqueue(ctx, m); err != nil {
		e.pending.Add(-1)
		e.deduper.Unrecord(ctx, m.MatchID)
		return m.MatchID, fmt.Errorf("enqueue match %s: %w", m.MatchID, err)
	}
	return m.MatchID, nil
}

// Apply folds a match into the standings synchronously. Matches share the
// duplicate check with Submit; a failed application can be retried.
func (s *Service) Apply(ctx context.Context, m model.Match) error { //nolint:gocritic // hugeParam: Match is passed by value for channel semantics
	e, err := s.running()
	if err != nil {
		return err
	}
	if m.MatchID == "" {
		m.MatchID = uuid.NewString()
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMatch, err)
	}

	metrics.RecordMatchSubmitted()
	if e.deduper.SeenAndRecord(ctx, m.MatchID) {
		metrics.RecordMatchDuplicate()
		return ErrDuplicateMatch
	}
	if err := e.apply(ctx, m); err != nil {
		e.deduper.Unrecord(ctx, m.MatchID)
		return err
	}
	return nil
}

// applyQueued is the worker entry point for matches accepted by Submit.
func (e *engine) applyQueued(ctx context.Context, m model.Match) error { //nolint:gocritic // hugeParam: Match is passed by value for channel semantics
	defer e.pending.Add(-1)
	return e.apply(ctx, m)
}

// apply updates the participants of one match. Both sides of a pairwise match
// are rated against the other's pre-match state and written together.
func (e *engine) apply(ctx context.Context, m model.Match) error { //nolint:gocritic // hugeParam: Match is passed by value for channel semantics
	start := time.Now()

	if !m.Pairwise() {
		unlock := e.lock(m.ParticipantID)
		defer unlock()

		rec, err := e.record(ctx, m.ParticipantID)
		if err != nil {
			return e.fail(err, "load %s", m.ParticipantID)
		}
		next, err := e.alg.CalculateRating(rec.State, []rating.Outcome{{Result: m.Score}})
		if err != nil {
			return e.fail(err, "rate %s in match %s", m.ParticipantID, m.MatchID)
		}
		if err := e.store.Put(ctx, advance(rec, next, 1, m.MatchID)); err != nil {
			return e.fail(err, "store %s", m.ParticipantID)
		}
		e.markActive(m.ParticipantID)
	} else {
		unlock := e.lock(m.ParticipantID, m.OpponentID)
		defer unlock()

		a, err := e.record(ctx, m.ParticipantID)
		if err != nil {
			return e.fail(err, "load %s", m.ParticipantID)
		}
		b, err := e.record(ctx, m.OpponentID)
		if err != nil {
			return e.fail(err, "load %s", m.OpponentID)
		}
		nextA, err := e.alg.CalculateRating(a.State, []rating.Outcome{{Opponent: b.State, Result: m.Score}})
		if err != nil {
			return e.fail(err, "rate %s in match %s", m.ParticipantID, m.MatchID)
		}
		nextB, err := e.alg.CalculateRating(b.State, []rating.Outcome{{Opponent: a.State, Result: 1 - m.Score}})
		if err != nil {
			return e.fail(err, "rate %s in match %s", m.OpponentID, m.MatchID)
		}
		if err := e.store.Put(ctx, advance(a, nextA, 1, m.MatchID)); err != nil {
			return e.fail(err, "store %s", m.ParticipantID)
		}
		if err := e.store.Put(ctx, advance(b, nextB, 1, m.MatchID)); err != nil {
			return e.fail(err, "store %s", m.OpponentID)
		}
		e.markActive(m.ParticipantID, m.OpponentID)
	}

	metrics.RecordRatingUpdate(e.name, float64(time.Since(start).Microseconds())/1000)
	metrics.RecordMatchProcessed()
	return nil
}

// RecordPeriod applies every result of a rating period to one participant in
// a single update. Opponents are rated at their current state and are not
// updated.
func (s *Service) RecordPeriod(ctx context.Context, participantID string, results []model.Result) (rating.State, error) {
	e, err := s.running()
	if err != nil {
		return nil, err
	}
	if participantID == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMatch, model.ErrMissingParticipant)
	}

	start := time.Now()
	outcomes := make([]rating.Outcome, len(results))
	for i, r := range results {
		m := model.Match{ParticipantID: participantID, OpponentID: r.OpponentID, Score: r.Score}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%w: result %d: %w", ErrInvalidMatch, i, err)
		}
		outcomes[i].Result = r.Score
		if r.OpponentID == "" {
			continue
		}
		opp, err := e.record(ctx, r.OpponentID)
		if err != nil {
			return nil, e.fail(err, "load %s", r.OpponentID)
		}
		outcomes[i].Opponent = opp.State
	}

	unlock := e.lock(participantID)
	defer unlock()

	rec, err := e.record(ctx, participantID)
	if err != nil {
		return nil, e.fail(err, "load %s", participantID)
	}
	next, err := e.alg.CalculateRating(rec.State, outcomes)
	if err != nil {
		return nil, e.fail(err, "rate period for %s", participantID)
	}
	if err := e.store.Put(ctx, advance(rec, next, len(results), rec.LastMatchID)); err != nil {
		return nil, e.fail(err, "store %s", participantID)
	}
	if len(results) > 0 {
		e.markActive(participantID)
	}
	metrics.RecordRatingUpdate(e.name, float64(time.Since(start).Microseconds())/1000)
	return next, nil
}

// EndPeriod closes the current rating period. Queued matches are applied
// first, then every participant without a match since the previous period end
// gets an update with no outcomes. It returns the number of such updates.
func (s *Service) EndPeriod(ctx context.Context) (int, error) {
	e, err := s.running()
	if err != nil {
		return 0, err
	}
	if err := e.flush(ctx); err != nil {
		return 0, err
	}

	e.periodMu.Lock()
	active := e.active
	e.active = make(map[string]struct{})
	e.periodMu.Unlock()

	var (
		decayed  int
		rangeErr error
	)
	e.store.Range(ctx, func(rec repository.Record) bool {
		if _, ok := active[rec.ParticipantID]; ok {
			return true
		}
		if err := e.decay(ctx, rec.ParticipantID); err != nil {
			rangeErr = err
			return false
		}
		decayed++
		return true
	})
	if rangeErr == nil {
		rangeErr = ctx.Err()
	}

	metrics.RecordInactivityDecays(decayed)
	e.logger.Info(ctx, "rating period ended",
		logger.Int("active", len(active)),
		logger.Int("inactive", decayed),
	)
	return decayed, rangeErr
}

func (e *engine) decay(ctx context.Context, id string) error {
	unlock := e.lock(id)
	defer unlock()

	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return e.fail(err, "load %s", id)
	}
	next, err := e.alg.CalculateRating(rec.State, nil)
	if err != nil {
		return e.fail(err, "decay %s", id)
	}
	rec.State = next
	rec.UpdatedAt = time.Now()
	if err := e.store.Put(ctx, rec); err != nil {
		return e.fail(err, "store %s", id)
	}
	return nil
}

// advance returns rec carrying the new state after n more outcomes.
func advance(rec repository.Record, state rating.State, n int, matchID string) repository.Record {
	rec.State = state
	rec.Matches += n
	rec.LastMatchID = matchID
	rec.UpdatedAt = time.Now()
	return rec
}
