package glicko2_test

import (
	"math"
	"testing"

	"github.com/okian/rankd/internal/domain/rating"
	"github.com/okian/rankd/internal/domain/rating/glicko2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The worked example from Glickman's Glicko-2 paper.
var (
	paperPlayer = rating.Triple{Rating: 1500, Deviation: 200, Volatility: 0.06}
	paperGames  = []rating.Outcome{
		{Opponent: rating.Pair{Rating: 1400, Deviation: 30}, Result: rating.Win},
		{Opponent: rating.Pair{Rating: 1550, Deviation: 100}, Result: rating.Loss},
		{Opponent: rating.Pair{Rating: 1700, Deviation: 300}, Result: rating.Loss},
	}
)

func TestReferenceExample(t *testing.T) {
	algo, err := glicko2.New()
	require.NoError(t, err)

	next, err := algo.CalculateRating(paperPlayer, paperGames)
	require.NoError(t, err)

	got := next.(rating.Triple)
	assert.InDelta(t, 1464.06, got.Rating, 0.01)
	assert.InDelta(t, 151.52, got.Deviation, 0.01)
	assert.InDelta(t, 0.05999, got.Volatility, 0.0001)
}

func TestReferenceExampleWithTripleOpponents(t *testing.T) {
	algo, err := glicko2.New()
	require.NoError(t, err)

	games := make([]rating.Outcome, len(paperGames))
	for i, o := range paperGames {
		p := o.Opponent.(rating.Pair)
		games[i] = rating.Outcome{
			Opponent: rating.Triple{Rating: p.Rating, Deviation: p.Deviation, Volatility: 0.09},
			Result:   o.Result,
		}
	}
	fromTriples, err := algo.CalculateRating(paperPlayer, games)
	require.NoError(t, err)
	fromPairs, err := algo.CalculateRating(paperPlayer, paperGames)
	require.NoError(t, err)
	assert.Equal(t, fromPairs, fromTriples, "opponent volatility does not enter the update")
}

func TestInactivity(t *testing.T) {
	algo, err := glicko2.New()
	require.NoError(t, err)

	tests := []struct {
		name  string
		start rating.Triple
	}{
		{"established player", rating.Triple{Rating: 1820, Deviation: 60, Volatility: 0.06}},
		{"volatile player", rating.Triple{Rating: 1400, Deviation: 120, Volatility: 0.1}},
		{"near the ceiling", rating.Triple{Rating: 1500, Deviation: 349.99999, Volatility: 0.06}},
		{"at the ceiling", rating.Triple{Rating: 1500, Deviation: 350, Volatility: 0.06}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			state := rating.State(test.start)
			prev := test.start.Deviation
			for i := 0; i < 25; i++ {
				state, err = algo.CalculateRating(state, nil)
				require.NoError(t, err)
				got := state.(rating.Triple)
				assert.Equal(t, test.start.Rating, got.Rating)
				assert.Equal(t, test.start.Volatility, got.Volatility)
				assert.GreaterOrEqual(t, got.Deviation, prev)
				assert.LessOrEqual(t, got.Deviation, 350.0)
				if prev < 350 {
					assert.Greater(t, got.Deviation, prev)
				}
				prev = got.Deviation
			}
		})
	}
}

func TestDecayFormula(t *testing.T) {
	algo, err := glicko2.New()
	require.NoError(t, err)

	got := algo.Decay(rating.Triple{Rating: 1600, Deviation: 80, Volatility: 0.06})
	assert.InDelta(t, math.Sqrt(80*80+0.06*0.06), got.Deviation, 1e-12)
}

func TestDeviationShrinksWithPlay(t *testing.T) {
	algo, err := glicko2.New()
	require.NoError(t, err)

	results := []float64{rating.Loss, rating.Draw, rating.Win}
	for _, result := range results {
		start := rating.Triple{Rating: 1500, Deviation: 250, Volatility: 0.06}
		next, err := algo.CalculateRating(start, []rating.Outcome{
			{Opponent: rating.Pair{Rating: 1500, Deviation: 80}, Result: result},
		})
		require.NoError(t, err)
		assert.Less(t, next.(rating.Triple).Deviation, start.Deviation)
	}
}

func TestUncertaintySensitivity(t *testing.T) {
	algo, err := glicko2.New()
	require.NoError(t, err)

	opponent := []rating.Outcome{{Opponent: rating.Pair{Rating: 1500, Deviation: 100}, Result: rating.Win}}
	certain := rating.Triple{Rating: 1500, Deviation: 50, Volatility: 0.06}
	uncertain := rating.Triple{Rating: 1500, Deviation: 300, Volatility: 0.06}

	a, err := algo.CalculateRating(certain, opponent)
	require.NoError(t, err)
	b, err := algo.CalculateRating(uncertain, opponent)
	require.NoError(t, err)

	certainDelta := math.Abs(a.(rating.Triple).Rating - certain.Rating)
	uncertainDelta := math.Abs(b.(rating.Triple).Rating - uncertain.Rating)
	assert.Greater(t, uncertainDelta, certainDelta)
}

func TestZeroVarianceLeavesStateUnchanged(t *testing.T) {
	algo, err := glicko2.New()
	require.NoError(t, err)

	start := rating.Triple{Rating: 1500, Deviation: 200, Volatility: 0.06}
	next, err := algo.CalculateRating(start, []rating.Outcome{
		{Opponent: rating.Pair{Rating: -1e6, Deviation: 30}, Result: rating.Win},
	})
	require.NoError(t, err)
	assert.Equal(t, start, next)
}

func TestNonConvergence(t *testing.T) {
	cfg := glicko2.DefaultConfig()
	cfg.MaxIterations = 1
	algo, err := glicko2.New(glicko2.WithConfig(cfg))
	require.NoError(t, err)

	_, err = algo.CalculateRating(paperPlayer, paperGames)
	require.ErrorIs(t, err, rating.ErrNonConvergence)
}

func TestIterationObserver(t *testing.T) {
	var seen []int
	algo, err := glicko2.New(glicko2.WithIterationObserver(func(n int) { seen = append(seen, n) }))
	require.NoError(t, err)

	_, err = algo.CalculateRating(paperPlayer, paperGames)
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Greater(t, seen[0], 0)
	assert.LessOrEqual(t, seen[0], glicko2.DefaultConfig().MaxIterations)

	_, err = algo.CalculateRating(paperPlayer, nil)
	require.NoError(t, err)
	assert.Len(t, seen, 1, "inactivity does not run the solver")
}

func TestVolatilityBand(t *testing.T) {
	algo, err := glicko2.New(glicko2.WithTau(1.2))
	require.NoError(t, err)

	// A long run of upsets pushes volatility up; the band caps it.
	state := rating.State(rating.Triple{Rating: 1200, Deviation: 60, Volatility: 0.09})
	for i := 0; i < 10; i++ {
		state, err = algo.CalculateRating(state, []rating.Outcome{
			{Opponent: rating.Pair{Rating: 2400, Deviation: 40}, Result: rating.Win},
		})
		require.NoError(t, err)
		got := state.(rating.Triple)
		assert.GreaterOrEqual(t, got.Volatility, 0.01)
		assert.LessOrEqual(t, got.Volatility, 0.1)
		assert.GreaterOrEqual(t, got.Deviation, 1.0)
	}
}

func TestExpectedOutcome(t *testing.T) {
	algo, err := glicko2.New()
	require.NoError(t, err)

	t.Run("equal deviations are symmetric", func(t *testing.T) {
		a := rating.Triple{Rating: 1700, Deviation: 80, Volatility: 0.06}
		b := rating.Pair{Rating: 1450, Deviation: 80}
		ab, err := algo.ExpectedOutcome(a, b)
		require.NoError(t, err)
		ba, err := algo.ExpectedOutcome(b, a)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, ab+ba, 1e-12)
		assert.Greater(t, ab, 0.5)
	})

	t.Run("unequal deviations are one-sided", func(t *testing.T) {
		a := rating.Pair{Rating: 1700, Deviation: 30}
		b := rating.Pair{Rating: 1450, Deviation: 300}
		ab, err := algo.ExpectedOutcome(a, b)
		require.NoError(t, err)
		ba, err := algo.ExpectedOutcome(b, a)
		require.NoError(t, err)
		assert.NotEqual(t, 1.0, ab+ba)
	})

	t.Run("even match", func(t *testing.T) {
		p, err := algo.ExpectedOutcome(algo.DefaultRating(), algo.DefaultRating())
		require.NoError(t, err)
		assert.InDelta(t, 0.5, p, 1e-12)
	})

	t.Run("rejects scalar", func(t *testing.T) {
		_, err := algo.ExpectedOutcome(rating.Scalar{Value: 1500}, algo.DefaultRating())
		assert.ErrorIs(t, err, rating.ErrStateMismatch)
	})
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		params rating.Params
	}{
		{"zero tau", rating.Params{"tau": 0}},
		{"negative tau", rating.Params{"tau": "-0.5"}},
		{"inverted deviation band", rating.Params{"min_deviation": 400}},
		{"zero deviation floor", rating.Params{"min_deviation": 0}},
		{"inverted volatility band", rating.Params{"min_volatility": 0.2}},
		{"zero tolerance", rating.Params{"tolerance": 0}},
		{"no iterations", rating.Params{"max_iterations": 0}},
		{"unknown key", rating.Params{"tua": 0.5}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := glicko2.FromParams(test.params)
			assert.ErrorIs(t, err, rating.ErrInvalidConfig)
		})
	}

	_, err := glicko2.New(glicko2.WithTau(-1))
	assert.ErrorIs(t, err, rating.ErrInvalidConfig)
}

func TestDefaultsAndDisplay(t *testing.T) {
	algo, err := glicko2.FromParams(rating.Params{"tau": "0.3"})
	require.NoError(t, err)
	assert.Equal(t, "Glicko-2 (τ=0.3)", algo.DisplayName())
	assert.Equal(t, rating.Triple{Rating: 1500, Deviation: 350, Volatility: 0.06}, algo.DefaultRating())

	defaults, err := glicko2.New()
	require.NoError(t, err)
	assert.Equal(t, "Glicko-2 (τ=0.5)", defaults.DisplayName())
}

func TestStateMismatch(t *testing.T) {
	algo, err := glicko2.New()
	require.NoError(t, err)

	_, err = algo.CalculateRating(rating.Scalar{Value: 1500}, nil)
	assert.ErrorIs(t, err, rating.ErrStateMismatch)

	_, err = algo.CalculateRating(paperPlayer, []rating.Outcome{{Opponent: rating.Tally{Total: 3}, Result: 1}})
	assert.ErrorIs(t, err, rating.ErrStateMismatch)
}
