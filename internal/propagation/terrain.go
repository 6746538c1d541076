package propagation

import (
	"fmt"
	"math"
)

// Model constraints. The terrain model is calibrated for sub-GHz IoT links;
// inputs outside these ranges produce ErrOutOfRange rather than garbage.
const (
	// MinPathM is the shortest path the model accepts. Below this the
	// far-field assumptions behind the loss equation do not hold.
	MinPathM = 100.0

	MinFreqHz = 400e6
	MaxFreqHz = 1000e6

	MinAntennaM = 1.0
	MaxAntennaM = 50.0
)

const speedOfLight = 2.998e8

// TerrainModel is the default Solver: free-space path loss plus single
// dominant knife-edge diffraction from the terrain profile. It deliberately
// under-predicts loss relative to a full irregular-terrain model, which
// keeps the classifier conservative: a link must beat even this optimistic
// floor by the configured margin to be flagged.
type TerrainModel struct{}

// NewTerrainModel returns the default terrain path-loss solver.
func NewTerrainModel() *TerrainModel {
	return &TerrainModel{}
}

func (m *TerrainModel) validate(p *Profile, freqHz float64) error {
	if p == nil || len(p.Distances) < 2 || len(p.Distances) != len(p.Elevations) {
		return fmt.Errorf("profile needs at least 2 matched samples: %w", ErrDegenerateGeometry)
	}
	if p.TotalDistanceM() < MinPathM {
		return fmt.Errorf("path of %.1f m below model minimum %.0f m: %w",
			p.TotalDistanceM(), MinPathM, ErrDegenerateGeometry)
	}
	if freqHz < MinFreqHz || freqHz > MaxFreqHz {
		return fmt.Errorf("frequency %.0f Hz outside %0.f-%0.f Hz: %w",
			freqHz, MinFreqHz, MaxFreqHz, ErrOutOfRange)
	}
	if p.TxHeightM < MinAntennaM || p.TxHeightM > MaxAntennaM ||
		p.RxHeightM < MinAntennaM || p.RxHeightM > MaxAntennaM {
		return fmt.Errorf("antenna heights %.1f/%.1f m outside %.0f-%.0f m: %w",
			p.TxHeightM, p.RxHeightM, MinAntennaM, MaxAntennaM, ErrOutOfRange)
	}
	return nil
}

// PointToPoint returns free-space loss plus knife-edge diffraction loss for
// the dominant terrain obstruction, in dB.
func (m *TerrainModel) PointToPoint(p *Profile, freqHz float64) (float64, error) {
	if err := m.validate(p, freqHz); err != nil {
		return 0, err
	}
	return m.loss(p.Distances, p.Elevations, p.TxHeightM, p.RxHeightM, freqHz), nil
}

// Path returns the cumulative loss at each profile point past the
// transmitter, as if the receiver were at that point's terrain at the
// receiver's antenna height.
func (m *TerrainModel) Path(p *Profile, freqHz float64) ([]float64, error) {
	if err := m.validate(p, freqHz); err != nil {
		return nil, err
	}
	losses := make([]float64, len(p.Distances)-1)
	for i := 1; i < len(p.Distances); i++ {
		losses[i-1] = m.loss(p.Distances[:i+1], p.Elevations[:i+1], p.TxHeightM, p.RxHeightM, freqHz)
	}
	return losses, nil
}

func (m *TerrainModel) loss(distances, elevations []float64, txH, rxH, freqHz float64) float64 {
	total := distances[len(distances)-1]
	if total < 1.0 {
		total = 1.0
	}

	fspl := 32.45 + 20*math.Log10(total/1000.0) + 20*math.Log10(freqHz/1e6)

	return fspl + m.diffractionLoss(distances, elevations, txH, rxH, freqHz)
}

// diffractionLoss finds the dominant knife edge along the profile and
// returns its diffraction loss per the ITU-R P.526 single-edge
// approximation. Only terrain reaching the line of sight contributes; a
// clear path costs nothing beyond free-space loss, which keeps the solver an
// optimistic floor.
func (m *TerrainModel) diffractionLoss(distances, elevations []float64, txH, rxH, freqHz float64) float64 {
	n := len(distances)
	total := distances[n-1]
	wavelength := speedOfLight / freqHz

	txAlt := elevations[0] + txH
	rxAlt := elevations[n-1] + rxH

	vMax := math.Inf(-1)
	for i := 1; i < n-1; i++ {
		d1 := distances[i]
		d2 := total - d1
		if d1 <= 0 || d2 <= 0 {
			continue
		}

		// Line-of-sight altitude above the obstacle
		los := txAlt + (rxAlt-txAlt)*(d1/total)
		h := elevations[i] - los

		v := h * math.Sqrt(2.0/wavelength*(d1+d2)/(d1*d2))
		if v > vMax {
			vMax = v
		}
	}

	if vMax <= 0 || math.IsInf(vMax, -1) {
		return 0
	}
	return 6.9 + 20*math.Log10(math.Sqrt(math.Pow(vMax-0.1, 2)+1)+vMax-0.1)
}
