// Package elo implements the Elo rating system: a scalar rating with a
// logistic expected score and a fixed per-match adjustment (the K-factor).
package elo

import (
	"fmt"
	"math"

	"github.com/okian/rankd/internal/domain/rating"
	"github.com/rotisserie/eris"
)

// Name is the registry name of the algorithm.
const Name = "elo"

// Defaults and rating bands.
const (
	DefaultKFactor = 32.0
	DefaultRating  = 1500.0

	// Dynamic K bands.
	masterThreshold = 2100.0
	expertThreshold = 2400.0
	noviceK         = 32.0
	masterK         = 24.0
	expertK         = 16.0

	logisticScale = 400.0
)

// Config holds the tunables of the algorithm.
type Config struct {
	KFactor       float64 `param:"k_factor"`
	DefaultRating float64 `param:"default_rating"`
	// DynamicK makes CalculateRating derive K from the starting rating.
	DynamicK bool `param:"dynamic_k"`
}

// DefaultConfig returns K=32 and a starting rating of 1500.
func DefaultConfig() Config {
	return Config{
		KFactor:       DefaultKFactor,
		DefaultRating: DefaultRating,
	}
}

func (c Config) validate() error {
	if math.IsNaN(c.KFactor) || math.IsInf(c.KFactor, 0) || c.KFactor < 0 {
		return eris.Wrapf(rating.ErrInvalidConfig, "elo: k_factor must be a finite value >= 0, got %v", c.KFactor)
	}
	if math.IsNaN(c.DefaultRating) || math.IsInf(c.DefaultRating, 0) {
		return eris.Wrapf(rating.ErrInvalidConfig, "elo: default_rating must be finite, got %v", c.DefaultRating)
	}
	return nil
}

// Option configures an Algorithm.
type Option func(*Config)

// WithKFactor sets the fixed K-factor.
func WithKFactor(k float64) Option {
	return func(c *Config) { c.KFactor = k }
}

// WithDefaultRating sets the rating assigned to new participants.
func WithDefaultRating(r float64) Option {
	return func(c *Config) { c.DefaultRating = r }
}

// WithDynamicK switches CalculateRating to the banded K-factor.
func WithDynamicK(enabled bool) Option {
	return func(c *Config) { c.DynamicK = enabled }
}

// Game is one match against an opponent rated Opponent. Score is 0, 0.5 or 1.
type Game struct {
	Opponent float64
	Score    float64
}

// Algorithm is the Elo rating system. It holds configuration only and is
// safe for concurrent use.
type Algorithm struct {
	cfg Config
}

// New builds an Algorithm from DefaultConfig and opts.
func New(opts ...Option) (*Algorithm, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Algorithm{cfg: cfg}, nil
}

// FromParams decodes params over DefaultConfig and builds an Algorithm.
func FromParams(params rating.Params) (*Algorithm, error) {
	cfg := DefaultConfig()
	if err := params.Decode(&cfg); err != nil {
		return nil, eris.Wrap(err, "elo: decode params")
	}
	return New(func(c *Config) { *c = cfg })
}

// Config returns a copy of the active configuration.
func (a *Algorithm) Config() Config {
	return a.cfg
}

// Expected returns the probability that a player rated r1 beats one rated r2.
func Expected(r1, r2 float64) float64 {
	return 1 / (1 + math.Pow(10, (r2-r1)/logisticScale))
}

// AdjustKFactor returns the banded K for a rating: 32 below 2100, 24 below
// 2400 and 16 from 2400 up.
func AdjustKFactor(r float64) float64 {
	switch {
	case r < masterThreshold:
		return noviceK
	case r < expertThreshold:
		return masterK
	default:
		return expertK
	}
}

// RatingChange is the rating delta of a single game at the configured K.
func (a *Algorithm) RatingChange(r, opponent, score float64) float64 {
	return a.cfg.KFactor * (score - Expected(r, opponent))
}

// Update folds games into r in order; each game sees the rating produced by
// the games before it.
func (a *Algorithm) Update(r float64, games []Game) float64 {
	return fold(r, a.cfg.KFactor, games)
}

// UpdateDynamicK derives K once from the starting rating and folds every game
// with it.
func (a *Algorithm) UpdateDynamicK(r float64, games []Game) float64 {
	return fold(r, AdjustKFactor(r), games)
}

func fold(r, k float64, games []Game) float64 {
	for _, g := range games {
		r += k * (g.Score - Expected(r, g.Opponent))
	}
	return r
}

// CalculateRating implements rating.Algorithm. Both the current state and
// every opponent must be rating.Scalar.
func (a *Algorithm) CalculateRating(current rating.State, outcomes []rating.Outcome) (rating.State, error) {
	r, err := scalar(current)
	if err != nil {
		return nil, err
	}
	games := make([]Game, 0, len(outcomes))
	for i, o := range outcomes {
		opp, err := scalar(o.Opponent)
		if err != nil {
			return nil, eris.Wrapf(err, "outcome %d", i)
		}
		games = append(games, Game{Opponent: opp, Score: o.Result})
	}
	if a.cfg.DynamicK {
		return rating.Scalar{Value: a.UpdateDynamicK(r, games)}, nil
	}
	return rating.Scalar{Value: a.Update(r, games)}, nil
}

// ExpectedOutcome implements rating.Algorithm.
func (a *Algorithm) ExpectedOutcome(x, y rating.State) (float64, error) {
	r1, err := scalar(x)
	if err != nil {
		return 0, err
	}
	r2, err := scalar(y)
	if err != nil {
		return 0, err
	}
	return Expected(r1, r2), nil
}

// DefaultRating implements rating.Algorithm.
func (a *Algorithm) DefaultRating() rating.State {
	return rating.Scalar{Value: a.cfg.DefaultRating}
}

// DisplayName implements rating.Algorithm.
func (a *Algorithm) DisplayName() string {
	if a.cfg.DynamicK {
		return "Elo (dynamic K)"
	}
	return fmt.Sprintf("Elo (K=%g)", a.cfg.KFactor)
}

func scalar(s rating.State) (float64, error) {
	v, ok := s.(rating.Scalar)
	if !ok {
		return 0, eris.Wrapf(rating.ErrStateMismatch, "elo: want Scalar, got %T", s)
	}
	return v.Value, nil
}
