// Package propagation predicts point-to-point radio path loss over terrain.
//
// The path-loss model sits behind the narrow Solver interface so that it can
// be swapped for a different implementation, or stubbed in tests, without
// touching the pair evaluator.
package propagation

import "errors"

// ErrDegenerateGeometry indicates a path the solver is undefined for:
// coincident endpoints, a profile shorter than the model's minimum, or too
// few terrain samples.
var ErrDegenerateGeometry = errors.New("degenerate path geometry")

// ErrOutOfRange indicates an input outside the model's valid ranges, such as
// a carrier frequency beyond the band the model is calibrated for.
var ErrOutOfRange = errors.New("input outside model range")

// Profile is a terrain elevation profile between a transmitter and a
// receiver, sampled along the great-circle path. Distances are meters from
// the transmitter, ascending, with the final entry being the total path
// length. Antenna heights are meters above ground level at each endpoint.
type Profile struct {
	Distances  []float64
	Elevations []float64
	TxHeightM  float64
	RxHeightM  float64
}

// TotalDistanceM returns the path length in meters, or 0 for an empty profile.
func (p *Profile) TotalDistanceM() float64 {
	if len(p.Distances) == 0 {
		return 0
	}
	return p.Distances[len(p.Distances)-1]
}

// Solver computes path loss from a terrain profile. Loss is always positive
// dB; larger means a weaker received signal.
type Solver interface {
	// PointToPoint returns the predicted loss over the full path.
	PointToPoint(p *Profile, freqHz float64) (float64, error)

	// Path returns the predicted loss at each profile point past the
	// transmitter, one value per interior and terminal point. Used for
	// report records; considerably more work than PointToPoint.
	Path(p *Profile, freqHz float64) ([]float64, error)
}
