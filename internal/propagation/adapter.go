package propagation

import (
	"errors"
	"fmt"
	"math"

	"github.com/edgewatch/edgewatch/internal/elevation"
	"github.com/edgewatch/edgewatch/pkg/geo"
)

// profileStepM is the target spacing of terrain profile samples, matching
// 3-arc-second tile resolution. maxProfilePoints caps the work for very long
// asserted paths.
const (
	profileStepM     = 90.0
	maxProfilePoints = 2000
)

// Endpoint describes one end of a link with its resolved position and
// asserted antenna parameters.
type Endpoint struct {
	Position geo.Point
	HeightM  float64 // asserted antenna height above ground
	GainDBI  float64
}

// Prediction is the adapter's output for one link.
type Prediction struct {
	LossDB   float64  // predicted path loss, positive dB
	PowerDBM float64  // predicted received power at the witness
	Profile  *Profile // terrain profile used for the prediction

	// LossPath holds per-step cumulative loss when requested; nil otherwise.
	LossPath []float64
}

// Adapter builds terrain profiles from the tile store and drives the
// path-loss solver, normalizing units so downstream comparison is always
// "loss in positive dB, larger = weaker signal".
type Adapter struct {
	sampler elevation.Sampler
	solver  Solver
}

// NewAdapter wires a terrain sampler to a path-loss solver.
func NewAdapter(sampler elevation.Sampler, solver Solver) *Adapter {
	return &Adapter{sampler: sampler, solver: solver}
}

// Predict computes the predicted loss and received power for a transmitter
// at tx heard by a receiver at rx.
//
// Asserted antenna heights are clamped into the solver's valid range before
// the call: owners occasionally assert implausible heights and the model is
// undefined outside it. Errors wrap ErrDegenerateGeometry, ErrOutOfRange or
// elevation.ErrCoverageMissing.
func (a *Adapter) Predict(tx, rx Endpoint, txPowerDBM, freqHz float64, withPath bool) (Prediction, error) {
	profile, err := a.buildProfile(tx, rx)
	if err != nil {
		return Prediction{}, err
	}

	loss, err := a.solver.PointToPoint(profile, freqHz)
	if err != nil {
		return Prediction{}, fmt.Errorf("solver: %w", err)
	}
	if loss < 0 {
		// A solver reporting gain along a terrain path is a solver bug;
		// refuse to classify on top of it.
		return Prediction{}, fmt.Errorf("solver returned negative loss %.2f dB: %w", loss, ErrOutOfRange)
	}

	pred := Prediction{
		LossDB:   loss,
		PowerDBM: txPowerDBM + tx.GainDBI + rx.GainDBI - loss,
		Profile:  profile,
	}

	if withPath {
		path, err := a.solver.Path(profile, freqHz)
		if err != nil {
			return Prediction{}, fmt.Errorf("solver path: %w", err)
		}
		pred.LossPath = path
	}

	return pred, nil
}

func (a *Adapter) buildProfile(tx, rx Endpoint) (*Profile, error) {
	totalM := geo.DistanceM(tx.Position, rx.Position)
	if totalM < MinPathM {
		return nil, fmt.Errorf("endpoints %.1f m apart: %w", totalM, ErrDegenerateGeometry)
	}

	n := int(math.Ceil(totalM/profileStepM)) + 1
	if n < 2 {
		n = 2
	}
	if n > maxProfilePoints {
		n = maxProfilePoints
	}

	points := geo.Path(tx.Position, rx.Position, n)
	profile := &Profile{
		Distances:  make([]float64, n),
		Elevations: make([]float64, n),
		TxHeightM:  clampHeight(tx.HeightM),
		RxHeightM:  clampHeight(rx.HeightM),
	}

	for i, p := range points {
		elev, err := a.sampler.Elevation(p)
		if err != nil {
			if errors.Is(err, elevation.ErrCoverageMissing) {
				return nil, fmt.Errorf("profile point %d/%d: %w", i, n, err)
			}
			return nil, fmt.Errorf("sampling profile point %d/%d: %w", i, n, err)
		}
		profile.Distances[i] = totalM * float64(i) / float64(n-1)
		profile.Elevations[i] = elev
	}

	return profile, nil
}

func clampHeight(h float64) float64 {
	return math.Min(math.Max(h, MinAntennaM), MaxAntennaM)
}
