// Package glicko2 implements Glicko-2: a rating with a deviation measuring
// confidence and a volatility measuring consistency. Each update converts to
// the internal scale, estimates variance and improvement from the period's
// games, solves for the new volatility with the Illinois method and scales
// back.
package glicko2

import (
	"fmt"
	"math"

	"github.com/okian/rankd/internal/domain/rating"
	"github.com/rotisserie/eris"
)

// Name is the registry name of the algorithm.
const Name = "glicko2"

// Scale constants and the state of a new participant.
const (
	Scale             = 173.7178
	DefaultRating     = 1500.0
	DefaultDeviation  = 350.0
	DefaultVolatility = 0.06
)

// Config holds the tunables of the algorithm.
type Config struct {
	// Tau constrains volatility change between periods.
	Tau           float64 `param:"tau"`
	MaxDeviation  float64 `param:"max_deviation"`
	MinDeviation  float64 `param:"min_deviation"`
	MinVolatility float64 `param:"min_volatility"`
	MaxVolatility float64 `param:"max_volatility"`
	// Tolerance is the convergence width of the volatility solve.
	Tolerance float64 `param:"tolerance"`
	// MaxIterations bounds the bracket search and the Illinois loop together.
	MaxIterations int `param:"max_iterations"`
}

// DefaultConfig returns tau 0.5, deviation band [1, 350], volatility band
// [0.01, 0.1], tolerance 1e-6 and 100 solver iterations.
func DefaultConfig() Config {
	return Config{
		Tau:           0.5,
		MaxDeviation:  DefaultDeviation,
		MinDeviation:  1.0,
		MinVolatility: 0.01,
		MaxVolatility: 0.1,
		Tolerance:     1e-6,
		MaxIterations: 100,
	}
}

func (c Config) validate() error {
	switch {
	case !(c.Tau > 0) || math.IsInf(c.Tau, 0):
		return eris.Wrapf(rating.ErrInvalidConfig, "glicko2: tau must be positive, got %v", c.Tau)
	case !(c.MinDeviation > 0) || !(c.MaxDeviation >= c.MinDeviation) || math.IsInf(c.MaxDeviation, 0):
		return eris.Wrapf(rating.ErrInvalidConfig, "glicko2: deviation band [%v, %v] is invalid", c.MinDeviation, c.MaxDeviation)
	case !(c.MinVolatility > 0) || !(c.MaxVolatility >= c.MinVolatility) || math.IsInf(c.MaxVolatility, 0):
		return eris.Wrapf(rating.ErrInvalidConfig, "glicko2: volatility band [%v, %v] is invalid", c.MinVolatility, c.MaxVolatility)
	case !(c.Tolerance > 0):
		return eris.Wrapf(rating.ErrInvalidConfig, "glicko2: tolerance must be positive, got %v", c.Tolerance)
	case c.MaxIterations < 1:
		return eris.Wrapf(rating.ErrInvalidConfig, "glicko2: max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	return nil
}

// Option configures an Algorithm.
type Option func(*Algorithm)

// WithTau sets the volatility constraint.
func WithTau(tau float64) Option {
	return func(a *Algorithm) { a.cfg.Tau = tau }
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(a *Algorithm) { a.cfg = cfg }
}

// WithIterationObserver registers fn to receive the solver iteration count of
// every successful volatility solve.
func WithIterationObserver(fn func(iterations int)) Option {
	return func(a *Algorithm) { a.observe = fn }
}

// Game is one result against an opponent in a rating period.
type Game struct {
	Rating    float64
	Deviation float64
	Score     float64
}

// Algorithm is the Glicko-2 rating system. It holds configuration only and is
// safe for concurrent use.
type Algorithm struct {
	cfg     Config
	observe func(int)
}

// New builds an Algorithm from DefaultConfig and opts.
func New(opts ...Option) (*Algorithm, error) {
	a := &Algorithm{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.cfg.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// FromParams decodes params over DefaultConfig and builds an Algorithm.
func FromParams(params rating.Params, opts ...Option) (*Algorithm, error) {
	cfg := DefaultConfig()
	if err := params.Decode(&cfg); err != nil {
		return nil, eris.Wrap(err, "glicko2: decode params")
	}
	return New(append([]Option{WithConfig(cfg)}, opts...)...)
}

// Config returns a copy of the active configuration.
func (a *Algorithm) Config() Config {
	return a.cfg
}

// Decay inflates the deviation of a participant who played no games in the
// period: RD' = min(sqrt(RD² + σ²), max_deviation).
func (a *Algorithm) Decay(p rating.Triple) rating.Triple {
	rd := math.Sqrt(p.Deviation*p.Deviation + p.Volatility*p.Volatility)
	p.Deviation = math.Min(rd, a.cfg.MaxDeviation)
	return p
}

// Rate applies one rating period. With no games it is Decay. When the games
// carry no information (zero variance) p is returned unchanged.
func (a *Algorithm) Rate(p rating.Triple, games []Game) (rating.Triple, error) {
	if len(games) == 0 {
		return a.Decay(p), nil
	}

	mu := toMu(p.Rating)
	phi := toPhi(p.Deviation)

	var varianceSum, improvementSum float64
	for _, gm := range games {
		gj := g(toPhi(gm.Deviation))
		ej := expect(mu, toMu(gm.Rating), gj)
		varianceSum += gj * gj * ej * (1 - ej)
		improvementSum += gj * (gm.Score - ej)
	}
	if varianceSum == 0 {
		return p, nil
	}

	v := 1 / varianceSum
	delta := v * improvementSum

	sigma, err := a.solveVolatility(phi, p.Volatility, v, delta)
	if err != nil {
		return rating.Triple{}, err
	}
	sigma = clamp(sigma, a.cfg.MinVolatility, a.cfg.MaxVolatility)

	phiStar := math.Sqrt(phi*phi + sigma*sigma)
	phiNew := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	muNew := mu + phiNew*phiNew*improvementSum

	return rating.Triple{
		Rating:     Scale*muNew + DefaultRating,
		Deviation:  clamp(Scale*phiNew, a.cfg.MinDeviation, a.cfg.MaxDeviation),
		Volatility: sigma,
	}, nil
}

// solveVolatility finds σ' with the Illinois variant of regula falsi on
// f(x) = eˣ(Δ² − φ² − v − eˣ) / 2(φ² + v + eˣ)² − (x − a)/τ², a = ln σ².
func (a *Algorithm) solveVolatility(phi, sigma, v, delta float64) (float64, error) {
	tau := a.cfg.Tau
	alpha := math.Log(sigma * sigma)
	phi2 := phi * phi
	delta2 := delta * delta

	f := func(x float64) float64 {
		ex := math.Exp(x)
		d := phi2 + v + ex
		return ex*(delta2-phi2-v-ex)/(2*d*d) - (x-alpha)/(tau*tau)
	}

	iterations := 0
	lo := alpha
	var hi float64
	if delta2 > phi2+v {
		hi = math.Log(delta2 - phi2 - v)
	} else {
		k := 1.0
		for f(alpha-k*tau) < 0 {
			iterations++
			if iterations >= a.cfg.MaxIterations {
				return 0, eris.Wrapf(rating.ErrNonConvergence, "glicko2: no volatility bracket after %d steps", iterations)
			}
			k++
		}
		hi = alpha - k*tau
	}

	fLo, fHi := f(lo), f(hi)
	for math.Abs(hi-lo) > a.cfg.Tolerance {
		iterations++
		if iterations > a.cfg.MaxIterations {
			return 0, eris.Wrapf(rating.ErrNonConvergence,
				"glicko2: volatility solve exceeded %d iterations (width %g)", a.cfg.MaxIterations, math.Abs(hi-lo))
		}
		mid := lo + (lo-hi)*fLo/(fHi-fLo)
		fMid := f(mid)
		if fMid*fHi <= 0 {
			lo, fLo = hi, fHi
		} else {
			fLo /= 2
		}
		hi, fHi = mid, fMid
	}

	if a.observe != nil {
		a.observe(iterations)
	}
	return math.Exp(lo / 2), nil
}

// CalculateRating implements rating.Algorithm. The current state must be a
// rating.Triple; opponents may be a Triple or a Pair.
func (a *Algorithm) CalculateRating(current rating.State, outcomes []rating.Outcome) (rating.State, error) {
	p, ok := current.(rating.Triple)
	if !ok {
		return nil, eris.Wrapf(rating.ErrStateMismatch, "glicko2: want Triple, got %T", current)
	}
	games := make([]Game, 0, len(outcomes))
	for i, o := range outcomes {
		r, rd, err := ratingDeviation(o.Opponent)
		if err != nil {
			return nil, eris.Wrapf(err, "outcome %d", i)
		}
		games = append(games, Game{Rating: r, Deviation: rd, Score: o.Result})
	}
	return a.Rate(p, games)
}

// ExpectedOutcome implements rating.Algorithm with the one-sided Glicko-2
// expectation, weighting by the deviation of y only. It is not symmetric
// unless both deviations are equal.
func (a *Algorithm) ExpectedOutcome(x, y rating.State) (float64, error) {
	r1, _, err := ratingDeviation(x)
	if err != nil {
		return 0, err
	}
	r2, rd2, err := ratingDeviation(y)
	if err != nil {
		return 0, err
	}
	return expect(toMu(r1), toMu(r2), g(toPhi(rd2))), nil
}

// DefaultRating implements rating.Algorithm.
func (a *Algorithm) DefaultRating() rating.State {
	return rating.Triple{
		Rating:     DefaultRating,
		Deviation:  math.Min(DefaultDeviation, a.cfg.MaxDeviation),
		Volatility: DefaultVolatility,
	}
}

// DisplayName implements rating.Algorithm.
func (a *Algorithm) DisplayName() string {
	return fmt.Sprintf("Glicko-2 (τ=%g)", a.cfg.Tau)
}

func ratingDeviation(s rating.State) (float64, float64, error) {
	switch v := s.(type) {
	case rating.Triple:
		return v.Rating, v.Deviation, nil
	case rating.Pair:
		return v.Rating, v.Deviation, nil
	default:
		return 0, 0, eris.Wrapf(rating.ErrStateMismatch, "glicko2: want Triple or Pair, got %T", s)
	}
}

func toMu(r float64) float64 { return (r - DefaultRating) / Scale }

func toPhi(rd float64) float64 { return rd / Scale }

func g(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

func expect(mu, muJ, gj float64) float64 {
	return 1 / (1 + math.Exp(-gj*(mu-muJ)))
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
