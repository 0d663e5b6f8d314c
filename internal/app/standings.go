package service

import (
	"context"
	"fmt"

	"github.com/okian/rankd/internal/adapters/repository"
	"github.com/okian/rankd/internal/domain/rating"
	"github.com/okian/rankd/internal/domain/types"
	"github.com/okian/rankd/pkg/metrics"
)

// Predict returns the expected score of a against b. Unknown participants
// are treated as new entrants at the default rating.
func (s *Service) Predict(ctx context.Context, a, b string) (float64, error) {
	e, err := s.built()
	if err != nil {
		return 0, err
	}
	ra, err := e.record(ctx, a)
	if err != nil {
		return 0, err
	}
	rb, err := e.record(ctx, b)
	if err != nil {
		return 0, err
	}
	p, err := e.alg.ExpectedOutcome(ra.State, rb.State)
	if err != nil {
		return 0, e.fail(err, "predict %s vs %s", a, b)
	}
	metrics.RecordExpectedOutcome(e.name)
	return p, nil
}

// Rating returns the current rating state of a participant. The state does
// not share memory with the stored standing.
func (s *Service) Rating(ctx context.Context, participantID string) (rating.State, error) {
	e, err := s.built()
	if err != nil {
		return nil, err
	}
	rec, err := e.store.Get(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("participant %s: %w", participantID, err)
	}
	if t, ok := rec.State.(rating.Tally); ok {
		return t.Clone(), nil
	}
	return rec.State, nil
}

// Rank returns the standing of a participant.
func (s *Service) Rank(ctx context.Context, participantID string) (types.Standing, error) {
	e, err := s.built()
	if err != nil {
		return types.Standing{}, err
	}
	entry, err := e.store.Rank(ctx, participantID)
	if err != nil {
		return types.Standing{}, fmt.Errorf("participant %s: %w", participantID, err)
	}
	return standing(entry), nil
}

// TopN returns the top n standings.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Standing, error) {
	e, err := s.built()
	if err != nil {
		return nil, err
	}
	entries, err := e.store.TopN(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]types.Standing, len(entries))
	for i, entry := range entries {
		out[i] = standing(entry)
	}
	return out, nil
}

// Project forecasts a participant's season total when the algorithm keeps a
// per-event history.
func (s *Service) Project(ctx context.Context, participantID string, remaining int, confidence float64) (rating.Projection, error) {
	e, err := s.built()
	if err != nil {
		return rating.Projection{}, err
	}
	p, ok := e.alg.(rating.Projector)
	if !ok {
		return rating.Projection{}, fmt.Errorf("project with %s: %w", e.alg.DisplayName(), ErrUnsupported)
	}
	rec, err := e.store.Get(ctx, participantID)
	if err != nil {
		return rating.Projection{}, fmt.Errorf("participant %s: %w", participantID, err)
	}
	return p.ProjectSeasonFinish(rec.State, remaining, confidence)
}

// Trend reports the recent direction of a participant's results.
func (s *Service) Trend(ctx context.Context, participantID string, window int) (rating.Trend, error) {
	e, err := s.built()
	if err != nil {
		return "", err
	}
	t, ok := e.alg.(rating.Trender)
	if !ok {
		return "", fmt.Errorf("trend with %s: %w", e.alg.DisplayName(), ErrUnsupported)
	}
	rec, err := e.store.Get(ctx, participantID)
	if err != nil {
		return "", fmt.Errorf("participant %s: %w", participantID, err)
	}
	return t.TrendOf(rec.State, window)
}

func standing(entry repository.Entry) types.Standing {
	return types.Standing{
		Rank:          entry.Rank,
		ParticipantID: entry.Record.ParticipantID,
		Rating:        entry.Display.Rating,
		Deviation:     entry.Display.Deviation,
		Volatility:    entry.Display.Volatility,
	}
}
