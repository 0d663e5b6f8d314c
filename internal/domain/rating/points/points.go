// Package points implements points accumulation: a running total plus the
// raw per-event history, with optional rank tables, bonuses, history
// weighted expectations, season projections and trends.
package points

import (
	"math"
	"sort"

	"github.com/okian/rankd/internal/domain/rating"
	"github.com/rotisserie/eris"
)

// Name is the registry name of the algorithm.
const Name = "points"

const (
	defaultWindow      = 3
	logisticScale      = 100.0
	recentAverageScale = 10.0
)

// Config holds the tunables of the algorithm.
type Config struct {
	DefaultPoints float64 `param:"default_points"`
	// HistoryWeight blends recent form into expectations; clamped to [0, 1].
	HistoryWeight float64 `param:"points_history_weight"`
	// RankPoints maps a 1-based finishing position to points. Empty means
	// outcomes are raw scores.
	RankPoints []float64 `param:"rank_points"`
	// AverageWindow is the number of recent events in the form average.
	AverageWindow int `param:"weekly_average_window"`
	// BonusThreshold, when set, awards BonusPoints to scores strictly above it.
	BonusThreshold *float64 `param:"bonus_threshold"`
	BonusPoints    float64  `param:"bonus_points"`
}

// DefaultConfig returns a raw-score configuration with a window of three.
func DefaultConfig() Config {
	return Config{AverageWindow: defaultWindow}
}

func (c Config) normalize() (Config, error) {
	finite := []float64{c.DefaultPoints, c.HistoryWeight, c.BonusPoints}
	finite = append(finite, c.RankPoints...)
	if c.BonusThreshold != nil {
		finite = append(finite, *c.BonusThreshold)
	}
	for _, v := range finite {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return c, eris.Wrapf(rating.ErrInvalidConfig, "points: values must be finite, got %v", v)
		}
	}
	c.HistoryWeight = math.Max(0, math.Min(1, c.HistoryWeight))
	if c.AverageWindow < 1 {
		c.AverageWindow = 1
	}
	c.RankPoints = append([]float64(nil), c.RankPoints...)
	if c.BonusThreshold != nil {
		t := *c.BonusThreshold
		c.BonusThreshold = &t
	}
	return c, nil
}

// Option configures an Algorithm.
type Option func(*Config)

// WithRankPoints enables rank mode with the given table.
func WithRankPoints(table ...float64) Option {
	return func(c *Config) { c.RankPoints = table }
}

// WithHistoryWeight sets the weight of recent form in expectations.
func WithHistoryWeight(w float64) Option {
	return func(c *Config) { c.HistoryWeight = w }
}

// WithBonus awards bonus to every score strictly above threshold.
func WithBonus(threshold, bonus float64) Option {
	return func(c *Config) {
		c.BonusThreshold = &threshold
		c.BonusPoints = bonus
	}
}

// WithAverageWindow sets the recent form window.
func WithAverageWindow(n int) Option {
	return func(c *Config) { c.AverageWindow = n }
}

// WithDefaultPoints sets the starting total.
func WithDefaultPoints(p float64) Option {
	return func(c *Config) { c.DefaultPoints = p }
}

// Algorithm is the points-based system. It holds configuration only and is
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
	return build(cfg)
}

// FromParams decodes params over DefaultConfig and builds an Algorithm.
func FromParams(params rating.Params) (*Algorithm, error) {
	cfg := DefaultConfig()
	if err := params.Decode(&cfg); err != nil {
		return nil, eris.Wrap(err, "points: decode params")
	}
	return build(cfg)
}

func build(cfg Config) (*Algorithm, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &Algorithm{cfg: cfg}, nil
}

// Config returns a copy of the active configuration.
func (a *Algorithm) Config() Config {
	c := a.cfg
	c.RankPoints = append([]float64(nil), a.cfg.RankPoints...)
	return c
}

// Transform converts one raw outcome into the points it earns: the rank
// table lookup (0 when out of range) followed by the bonus rule.
func (a *Algorithm) Transform(value float64) float64 {
	pts := value
	if len(a.cfg.RankPoints) > 0 {
		pts = 0
		if value >= 1 && value < float64(len(a.cfg.RankPoints)+1) {
			pts = a.cfg.RankPoints[int(value)-1]
		}
	}
	if a.cfg.BonusThreshold != nil && pts > *a.cfg.BonusThreshold {
		pts += a.cfg.BonusPoints
	}
	return pts
}

// Accumulate folds event values into t. The total grows by the transformed
// values and the history keeps the originals. t is not modified.
func (a *Algorithm) Accumulate(t rating.Tally, values []float64) rating.Tally {
	if len(values) == 0 {
		return t.Clone()
	}
	out := rating.Tally{
		Total:   t.Total,
		History: make([]float64, 0, len(t.History)+len(values)),
	}
	out.History = append(out.History, t.History...)
	for _, v := range values {
		out.Total += a.Transform(v)
		out.History = append(out.History, v)
	}
	return out
}

// CalculateRating implements rating.Algorithm. Opponents are ignored; each
// outcome Result is one event's score or rank.
func (a *Algorithm) CalculateRating(current rating.State, outcomes []rating.Outcome) (rating.State, error) {
	t, err := tally(current)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(outcomes))
	for i, o := range outcomes {
		values[i] = o.Result
	}
	return a.Accumulate(t, values), nil
}

// ExpectedOutcome implements rating.Algorithm. With a zero history weight it
// compares totals; otherwise each total is blended with ten times the
// participant's recent average before the comparison.
func (a *Algorithm) ExpectedOutcome(x, y rating.State) (float64, error) {
	t1, err := tally(x)
	if err != nil {
		return 0, err
	}
	t2, err := tally(y)
	if err != nil {
		return 0, err
	}
	if a.cfg.HistoryWeight == 0 {
		return logistic(t1.Total - t2.Total), nil
	}
	return logistic(a.blend(t1) - a.blend(t2)), nil
}

func (a *Algorithm) blend(t rating.Tally) float64 {
	w := a.cfg.HistoryWeight
	return (1-w)*t.Total + w*a.recentAverage(t)*recentAverageScale
}

func (a *Algorithm) recentAverage(t rating.Tally) float64 {
	if len(t.History) == 0 {
		return t.Total / recentAverageScale
	}
	start := len(t.History) - a.cfg.AverageWindow
	if start < 0 {
		start = 0
	}
	return mean(t.History[start:])
}

// DefaultRating implements rating.Algorithm.
func (a *Algorithm) DefaultRating() rating.State {
	return rating.Tally{Total: a.cfg.DefaultPoints, History: []float64{}}
}

// DisplayName implements rating.Algorithm.
func (a *Algorithm) DisplayName() string {
	if len(a.cfg.RankPoints) > 0 {
		return "Points-Based (Ranked)"
	}
	return "Points-Based"
}

// TrendOf implements rating.Trender over the state's history.
func (a *Algorithm) TrendOf(current rating.State, window int) (rating.Trend, error) {
	t, err := tally(current)
	if err != nil {
		return rating.TrendStable, err
	}
	if window < 1 {
		return rating.TrendStable, eris.Wrapf(rating.ErrInvalidArgument, "points: trend window must be positive, got %d", window)
	}
	return Trend(t.History, window), nil
}

// Standing is one entry of RankParticipants.
type Standing struct {
	ID    string
	Tally rating.Tally
}

// RankParticipants orders participants by total, highest first. Equal totals
// are ordered by id.
func RankParticipants(participants map[string]rating.Tally) []Standing {
	out := make([]Standing, 0, len(participants))
	for id, t := range participants {
		out = append(out, Standing{ID: id, Tally: t})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tally.Total != out[j].Tally.Total {
			return out[i].Tally.Total > out[j].Tally.Total
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func tally(s rating.State) (rating.Tally, error) {
	switch v := s.(type) {
	case rating.Tally:
		return v, nil
	case rating.Scalar:
		return rating.Tally{Total: v.Value}, nil
	default:
		return rating.Tally{}, eris.Wrapf(rating.ErrStateMismatch, "points: want Tally, got %T", s)
	}
}

func logistic(diff float64) float64 {
	return 1 / (1 + math.Exp(-diff/logisticScale))
}
