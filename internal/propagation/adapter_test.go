package propagation

import (
	"errors"
	"math"
	"testing"

	"github.com/edgewatch/edgewatch/internal/elevation"
	"github.com/edgewatch/edgewatch/pkg/geo"
)

type constSampler struct {
	elev float64
	err  error
}

func (c constSampler) Elevation(geo.Point) (float64, error) {
	return c.elev, c.err
}

// stubSolver records its input and returns a fixed loss.
type stubSolver struct {
	loss    float64
	profile *Profile
}

func (s *stubSolver) PointToPoint(p *Profile, freqHz float64) (float64, error) {
	s.profile = p
	return s.loss, nil
}

func (s *stubSolver) Path(p *Profile, freqHz float64) ([]float64, error) {
	return []float64{s.loss}, nil
}

var (
	denver  = geo.Point{Lat: 39.7392, Lon: -104.9903}
	boulder = geo.Point{Lat: 40.0150, Lon: -105.2705}
)

func TestPredictReceivedPower(t *testing.T) {
	solver := &stubSolver{loss: 120.0}
	a := NewAdapter(constSampler{elev: 1600}, solver)

	pred, err := a.Predict(
		Endpoint{Position: denver, HeightM: 5, GainDBI: 2.3},
		Endpoint{Position: boulder, HeightM: 8, GainDBI: 5.8},
		27.0, 915e6, false,
	)
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}

	// 27 dBm + 2.3 dBi + 5.8 dBi - 120 dB
	want := 27.0 + 2.3 + 5.8 - 120.0
	if math.Abs(pred.PowerDBM-want) > 0.001 {
		t.Errorf("PowerDBM = %v, want %v", pred.PowerDBM, want)
	}
	if pred.LossDB != 120.0 {
		t.Errorf("LossDB = %v, want 120", pred.LossDB)
	}
	if pred.LossPath != nil {
		t.Error("LossPath should be nil when not requested")
	}
}

func TestPredictProfileShape(t *testing.T) {
	solver := &stubSolver{loss: 100.0}
	a := NewAdapter(constSampler{elev: 1600}, solver)

	_, err := a.Predict(
		Endpoint{Position: denver, HeightM: 5},
		Endpoint{Position: boulder, HeightM: 5},
		27.0, 915e6, false,
	)
	if err != nil {
		t.Fatal(err)
	}

	p := solver.profile
	if p == nil {
		t.Fatal("solver never called")
	}
	if len(p.Distances) != len(p.Elevations) {
		t.Fatalf("mismatched profile lengths %d/%d", len(p.Distances), len(p.Elevations))
	}
	if len(p.Distances) < 2 || len(p.Distances) > maxProfilePoints {
		t.Fatalf("profile has %d points", len(p.Distances))
	}

	totalM := geo.DistanceM(denver, boulder)
	if math.Abs(p.TotalDistanceM()-totalM) > 1.0 {
		t.Errorf("profile length %v m, want %v m", p.TotalDistanceM(), totalM)
	}
	if p.Distances[0] != 0 {
		t.Errorf("profile must start at 0, got %v", p.Distances[0])
	}
	for i := 1; i < len(p.Distances); i++ {
		if p.Distances[i] <= p.Distances[i-1] {
			t.Fatalf("profile distances not ascending at %d", i)
		}
	}
}

func TestPredictClampsHeights(t *testing.T) {
	solver := &stubSolver{loss: 100.0}
	a := NewAdapter(constSampler{elev: 0}, solver)

	_, err := a.Predict(
		Endpoint{Position: denver, HeightM: 0},    // below model minimum
		Endpoint{Position: boulder, HeightM: 300}, // rooftop tower fantasy
		27.0, 915e6, false,
	)
	if err != nil {
		t.Fatal(err)
	}
	if solver.profile.TxHeightM != MinAntennaM {
		t.Errorf("TxHeightM = %v, want clamped to %v", solver.profile.TxHeightM, MinAntennaM)
	}
	if solver.profile.RxHeightM != MaxAntennaM {
		t.Errorf("RxHeightM = %v, want clamped to %v", solver.profile.RxHeightM, MaxAntennaM)
	}
}

func TestPredictDegenerateGeometry(t *testing.T) {
	a := NewAdapter(constSampler{elev: 0}, NewTerrainModel())

	// Same position twice
	_, err := a.Predict(
		Endpoint{Position: denver, HeightM: 5},
		Endpoint{Position: denver, HeightM: 5},
		27.0, 915e6, false,
	)
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Errorf("coincident endpoints error = %v, want ErrDegenerateGeometry", err)
	}
}

func TestPredictCoverageMiss(t *testing.T) {
	a := NewAdapter(constSampler{err: elevation.ErrCoverageMissing}, NewTerrainModel())

	_, err := a.Predict(
		Endpoint{Position: denver, HeightM: 5},
		Endpoint{Position: boulder, HeightM: 5},
		27.0, 915e6, false,
	)
	if !errors.Is(err, elevation.ErrCoverageMissing) {
		t.Errorf("error = %v, want ErrCoverageMissing", err)
	}
}

func TestPredictWithPath(t *testing.T) {
	a := NewAdapter(constSampler{elev: 1600}, NewTerrainModel())

	pred, err := a.Predict(
		Endpoint{Position: denver, HeightM: 5},
		Endpoint{Position: boulder, HeightM: 5},
		27.0, 915e6, true,
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(pred.LossPath) != len(pred.Profile.Distances)-1 {
		t.Errorf("LossPath has %d entries for %d profile points",
			len(pred.LossPath), len(pred.Profile.Distances))
	}
	final := pred.LossPath[len(pred.LossPath)-1]
	if math.Abs(final-pred.LossDB) > 0.001 {
		t.Errorf("final path loss %v != point-to-point loss %v", final, pred.LossDB)
	}
}
