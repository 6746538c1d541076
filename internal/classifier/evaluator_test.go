package classifier

import (
	"errors"
	"math"
	"testing"

	"github.com/edgewatch/edgewatch/internal/elevation"
	"github.com/edgewatch/edgewatch/internal/propagation"
	"github.com/edgewatch/edgewatch/pkg/geo"
)

type flatSampler struct {
	elev float64
	err  error
}

func (f flatSampler) Elevation(geo.Point) (float64, error) {
	return f.elev, f.err
}

// fixedSolver always predicts the same loss, so tests control the predicted
// received power exactly.
type fixedSolver struct {
	loss float64
	err  error
}

func (s fixedSolver) PointToPoint(*propagation.Profile, float64) (float64, error) {
	return s.loss, s.err
}

func (s fixedSolver) Path(p *propagation.Profile, _ float64) ([]float64, error) {
	return make([]float64, len(p.Distances)-1), s.err
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// newTestEvaluator builds an evaluator over flat terrain and a fixed-loss
// solver. With tx power 27 dBm, zero gains and 167 dB loss, the predicted
// received power is exactly -140 dBm.
func newTestEvaluator(solver propagation.Solver, sampler elevation.Sampler) *Evaluator {
	resolver := elevation.NewResolver(sampler, 0)
	adapter := propagation.NewAdapter(sampler, solver)
	return NewEvaluator(resolver, adapter, Params{
		MinSamples:    10,
		MinDistanceKM: 1.0,
		ThresholdDB:   -50.0,
	})
}

// fiveKMPair returns a pair asserted ~5 km apart.
func fiveKMPair(rssis []float64) Observation {
	return Observation{
		Beaconer: Endpoint{
			Pubkey:        "beaconer1",
			Position:      geo.Point{Lat: 39.000, Lon: -105.0},
			AntennaHeight: 5,
			TxPower:       27,
		},
		Witness: Endpoint{
			Pubkey:        "witness1",
			Position:      geo.Point{Lat: 39.045, Lon: -105.0},
			AntennaHeight: 5,
		},
		RSSIs:       rssis,
		FrequencyHz: 915e6,
	}
}

func TestScenarioFlagged(t *testing.T) {
	// 5 km apart, 20 samples averaging -110 dBm, predicted received power
	// -140 dBm: delta = +30 dB, well past the -50 dB threshold.
	e := newTestEvaluator(fixedSolver{loss: 167}, flatSampler{elev: 1600})

	ev := e.Evaluate(fiveKMPair(repeat(-110, 20)))
	if ev.Outcome != OutcomeFlagged {
		t.Fatalf("Outcome = %v, want OutcomeFlagged (err: %v)", ev.Outcome, ev.Err)
	}
	if math.Abs(ev.Result.DeltaDB-30.0) > 0.001 {
		t.Errorf("DeltaDB = %v, want 30", ev.Result.DeltaDB)
	}
	if math.Abs(ev.Result.PredictedPowerDBM-(-140.0)) > 0.001 {
		t.Errorf("PredictedPowerDBM = %v, want -140", ev.Result.PredictedPowerDBM)
	}
	if ev.Result.SampleCount != 20 {
		t.Errorf("SampleCount = %d, want 20", ev.Result.SampleCount)
	}
	if math.Abs(ev.Result.DistanceKM-5.0) > 0.1 {
		t.Errorf("DistanceKM = %v, want ~5", ev.Result.DistanceKM)
	}
}

func TestScenarioTooFewSamples(t *testing.T) {
	e := newTestEvaluator(fixedSolver{loss: 167}, flatSampler{elev: 1600})

	// Same geometry, absurdly strong signal, but only 8 samples: excluded
	// regardless of delta.
	ev := e.Evaluate(fiveKMPair(repeat(-30, 8)))
	if ev.Outcome != OutcomeExcluded {
		t.Fatalf("Outcome = %v, want OutcomeExcluded", ev.Outcome)
	}
	if ev.Reason != ReasonTooFewSamples {
		t.Errorf("Reason = %v, want ReasonTooFewSamples", ev.Reason)
	}
	if ev.Result != nil {
		t.Error("excluded pair must not carry a Result")
	}
}

func TestScenarioTooClose(t *testing.T) {
	e := newTestEvaluator(fixedSolver{loss: 167}, flatSampler{elev: 1600})

	obs := fiveKMPair(repeat(-110, 20))
	obs.Witness.Position = geo.Point{Lat: 39.0045, Lon: -105.0} // ~0.5 km

	ev := e.Evaluate(obs)
	if ev.Outcome != OutcomeExcluded || ev.Reason != ReasonTooClose {
		t.Fatalf("got outcome %v reason %v, want excluded/too_close", ev.Outcome, ev.Reason)
	}
}

func TestScenarioCoverageMiss(t *testing.T) {
	e := newTestEvaluator(fixedSolver{loss: 167}, flatSampler{err: elevation.ErrCoverageMissing})

	ev := e.Evaluate(fiveKMPair(repeat(-110, 20)))
	if ev.Outcome != OutcomeExcluded || ev.Reason != ReasonCoverageMiss {
		t.Fatalf("got outcome %v reason %v, want excluded/coverage_miss", ev.Outcome, ev.Reason)
	}
	if ev.Err == nil {
		t.Error("coverage miss must carry the underlying error for logging")
	}
}

func TestSolverFailureExcludes(t *testing.T) {
	e := newTestEvaluator(fixedSolver{err: propagation.ErrOutOfRange}, flatSampler{elev: 1600})

	ev := e.Evaluate(fiveKMPair(repeat(-110, 20)))
	if ev.Outcome != OutcomeExcluded || ev.Reason != ReasonSolverFailure {
		t.Fatalf("got outcome %v reason %v, want excluded/solver_failure", ev.Outcome, ev.Reason)
	}
}

func TestThresholdBoundary(t *testing.T) {
	e := newTestEvaluator(fixedSolver{loss: 167}, flatSampler{elev: 1600})

	// Predicted power is -140 dBm and the threshold is -50 dB, so a mean
	// RSSI of exactly -190 dBm sits exactly on the threshold and must flag.
	ev := e.Evaluate(fiveKMPair(repeat(-190.0, 20)))
	if ev.Outcome != OutcomeFlagged {
		t.Errorf("delta exactly at threshold: outcome = %v, want flagged (delta %v)",
			ev.Outcome, ev.Result.DeltaDB)
	}

	// One histogram step below must not flag.
	ev = e.Evaluate(fiveKMPair(repeat(-190.1, 20)))
	if ev.Outcome != OutcomeNotFlagged {
		t.Errorf("delta below threshold: outcome = %v, want not flagged", ev.Outcome)
	}
	if ev.Result == nil {
		t.Fatal("a not-flagged pair still carries its Result")
	}
	if ev.Result.Flagged {
		t.Error("Result.Flagged = true for a not-flagged pair")
	}
}

func TestFlagMonotonicInMeanRSSI(t *testing.T) {
	e := newTestEvaluator(fixedSolver{loss: 167}, flatSampler{elev: 1600})

	flaggedSeen := false
	for rssi := -200.0; rssi <= -100.0; rssi += 5.0 {
		ev := e.Evaluate(fiveKMPair(repeat(rssi, 20)))
		if ev.Outcome == OutcomeExcluded {
			t.Fatalf("unexpected exclusion at %v dBm: %v", rssi, ev.Err)
		}
		flagged := ev.Outcome == OutcomeFlagged
		if flaggedSeen && !flagged {
			t.Fatalf("pair unflagged at %v dBm after flagging at a weaker signal", rssi)
		}
		if flagged {
			flaggedSeen = true
		}
	}
	if !flaggedSeen {
		t.Fatal("no RSSI in the sweep flagged; threshold is wrong")
	}
}

func TestBadAssertionExcludes(t *testing.T) {
	e := newTestEvaluator(fixedSolver{loss: 167}, flatSampler{elev: 1600})

	tests := []struct {
		name   string
		mutate func(*Observation)
	}{
		{"latitude out of range", func(o *Observation) { o.Beaconer.Position.Lat = 91 }},
		{"longitude out of range", func(o *Observation) { o.Witness.Position.Lon = -181 }},
		{"no samples", func(o *Observation) { o.RSSIs = nil }},
		{"zero frequency", func(o *Observation) { o.FrequencyHz = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := fiveKMPair(repeat(-110, 20))
			tt.mutate(&obs)
			ev := e.Evaluate(obs)
			if ev.Outcome != OutcomeExcluded || ev.Reason != ReasonBadAssertion {
				t.Errorf("got outcome %v reason %v, want excluded/bad_assertion", ev.Outcome, ev.Reason)
			}
		})
	}
}

func TestHistogramStats(t *testing.T) {
	// Two bins: -110.0 x3 and -120.0 x1 -> mean -112.5
	mean, stddev := histogramStats([]float64{-110, -110, -110, -120})
	if math.Abs(mean-(-112.5)) > 0.001 {
		t.Errorf("mean = %v, want -112.5", mean)
	}
	if stddev <= 0 {
		t.Errorf("stddev = %v, want positive", stddev)
	}

	// A single repeated value has zero spread
	mean, stddev = histogramStats([]float64{-95.5, -95.5})
	if mean != -95.5 || stddev != 0 {
		t.Errorf("constant samples: mean %v stddev %v, want -95.5 and 0", mean, stddev)
	}
}

func TestErrNotWrappedAsCoverage(t *testing.T) {
	someErr := errors.New("disk exploded")
	e := newTestEvaluator(fixedSolver{loss: 167}, flatSampler{err: someErr})

	ev := e.Evaluate(fiveKMPair(repeat(-110, 20)))
	if ev.Outcome != OutcomeExcluded {
		t.Fatalf("Outcome = %v, want excluded", ev.Outcome)
	}
	if ev.Reason == ReasonCoverageMiss {
		t.Error("arbitrary I/O failure must not be classified as coverage miss")
	}
}
