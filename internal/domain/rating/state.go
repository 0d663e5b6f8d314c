package rating

// State is a participant's rating representation. The set of variants is
// closed: Scalar, Pair, Triple and Tally.
type State interface {
	isState()
}

// Scalar is a single rating value (Elo).
type Scalar struct {
	Value float64
}

// Pair is a rating with its deviation. Glicko-2 accepts it wherever only the
// rating and deviation matter.
type Pair struct {
	Rating    float64
	Deviation float64
}

// Triple is a full Glicko-2 state.
type Triple struct {
	Rating     float64
	Deviation  float64
	Volatility float64
}

// Tally is a points total with the raw per-event values that produced it,
// oldest first.
type Tally struct {
	Total   float64
	History []float64
}

func (Scalar) isState() {}
func (Pair) isState()   {}
func (Triple) isState() {}
func (Tally) isState()  {}

// Clone returns a copy whose History does not alias t's.
func (t Tally) Clone() Tally {
	if t.History == nil {
		return Tally{Total: t.Total}
	}
	h := make([]float64, len(t.History))
	copy(h, t.History)
	return Tally{Total: t.Total, History: h}
}

// Display normalizes any state into (rating, deviation, volatility) for
// reporting and plotting. Missing components are zero.
func Display(s State) Triple {
	switch v := s.(type) {
	case Triple:
		return v
	case Pair:
		return Triple{Rating: v.Rating, Deviation: v.Deviation}
	case Scalar:
		return Triple{Rating: v.Value}
	case Tally:
		return Triple{Rating: v.Total}
	default:
		return Triple{}
	}
}
