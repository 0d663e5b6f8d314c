package points

import (
	"math"

	"github.com/okian/rankd/internal/domain/rating"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// Fallback standard deviation as a fraction of the mean when history has
	// a single event.
	fallbackStdDevRatio = 0.2
	// Relative change beyond which a trend is up or down.
	trendThreshold = 0.10
)

// Two-sided z-scores for the common confidence levels.
var zScores = map[float64]float64{
	0.90: 1.645,
	0.95: 1.96,
	0.99: 2.576,
}

// ZScore returns the two-sided normal critical value for confidence in (0,1).
func ZScore(confidence float64) (float64, error) {
	if !(confidence > 0 && confidence < 1) {
		return 0, eris.Wrapf(rating.ErrInvalidArgument, "points: confidence must be in (0, 1), got %v", confidence)
	}
	if z, ok := zScores[confidence]; ok {
		return z, nil
	}
	return distuv.UnitNormal.Quantile(0.5 + confidence/2), nil
}

// Project forecasts the season total of t after remaining more events.
// projected = total + mean·remaining; the interval half width is
// z·(stddev/√n)·√remaining, clamped into the best and worst case implied by
// the history's per-event extremes.
func Project(t rating.Tally, remaining int, confidence float64) (rating.Projection, error) {
	if remaining < 0 {
		return rating.Projection{}, eris.Wrapf(rating.ErrInvalidArgument, "points: remaining events must be >= 0, got %d", remaining)
	}
	z, err := ZScore(confidence)
	if err != nil {
		return rating.Projection{}, err
	}
	if len(t.History) == 0 {
		return rating.Projection{
			Projected:  t.Total,
			Min:        t.Total,
			Max:        t.Total,
			LowerBound: t.Total,
			UpperBound: t.Total,
		}, nil
	}

	n := float64(len(t.History))
	rem := float64(remaining)
	avg := mean(t.History)
	sd := math.Abs(avg) * fallbackStdDevRatio
	if len(t.History) > 1 {
		sd = stat.StdDev(t.History, nil)
	}

	projected := t.Total + avg*rem
	margin := z * (sd / math.Sqrt(n)) * math.Sqrt(rem)
	lo := t.Total + floats.Min(t.History)*rem
	hi := t.Total + floats.Max(t.History)*rem

	return rating.Projection{
		Projected:  projected,
		Min:        lo,
		Max:        hi,
		LowerBound: math.Max(projected-margin, lo),
		UpperBound: math.Min(projected+margin, hi),
	}, nil
}

// ProjectSeasonFinish implements rating.Projector.
func (a *Algorithm) ProjectSeasonFinish(current rating.State, remaining int, confidence float64) (rating.Projection, error) {
	t, err := tally(current)
	if err != nil {
		return rating.Projection{}, err
	}
	return Project(t, remaining, confidence)
}

// Trend compares the mean of the last window entries with the mean of the
// window before it. A relative change beyond ±10% is up or down. Short
// histories and non-positive earlier averages are stable.
func Trend(history []float64, window int) rating.Trend {
	if window < 1 || len(history) < 2*window {
		return rating.TrendStable
	}
	recent := mean(history[len(history)-window:])
	previous := mean(history[len(history)-2*window : len(history)-window])
	if previous <= 0 {
		return rating.TrendStable
	}
	change := (recent - previous) / previous
	switch {
	case change > trendThreshold:
		return rating.TrendUp
	case change < -trendThreshold:
		return rating.TrendDown
	default:
		return rating.TrendStable
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}
