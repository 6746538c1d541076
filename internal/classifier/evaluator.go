// Package classifier decides, for one beaconer-witness pair, whether the
// observed signal strength is physically plausible given terrain and the
// asserted positions. Implausibly strong links are flagged; pairs that
// cannot be evaluated are excluded, which is a distinct outcome from
// "evaluated and not flagged".
package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/edgewatch/edgewatch/internal/elevation"
	"github.com/edgewatch/edgewatch/internal/propagation"
	"github.com/edgewatch/edgewatch/pkg/geo"
)

// Endpoint is one device of a pair with its asserted metadata.
type Endpoint struct {
	Pubkey        string
	Position      geo.Point
	AntennaHeight float64 // m above ground, asserted
	AntennaGain   float64 // dBi
	TxPower       float64 // dBm, used when this endpoint is the beaconer
}

// Observation is the raw input for one pair: both endpoints plus every RSSI
// sample recorded for the link inside the analysis window.
type Observation struct {
	Beaconer    Endpoint
	Witness     Endpoint
	RSSIs       []float64 // dBm, one per receipt
	FrequencyHz float64
}

// Outcome classifies what happened to a pair.
type Outcome int

const (
	// OutcomeExcluded means the pair could not or must not be evaluated.
	OutcomeExcluded Outcome = iota
	// OutcomeNotFlagged means the pair was evaluated and looks physical.
	OutcomeNotFlagged
	// OutcomeFlagged means the pair outperforms the physical model by at
	// least the configured margin.
	OutcomeFlagged
)

// ExcludeReason says why an excluded pair was not evaluated.
type ExcludeReason int

const (
	ReasonNone ExcludeReason = iota
	ReasonTooFewSamples
	ReasonTooClose
	ReasonBadAssertion
	ReasonCoverageMiss
	ReasonSolverFailure
)

func (r ExcludeReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTooFewSamples:
		return "too_few_samples"
	case ReasonTooClose:
		return "too_close"
	case ReasonBadAssertion:
		return "bad_assertion"
	case ReasonCoverageMiss:
		return "coverage_miss"
	case ReasonSolverFailure:
		return "solver_failure"
	}
	return "unknown"
}

// Result carries the statistics behind a flag decision.
type Result struct {
	BeaconerPubkey string
	WitnessPubkey  string

	SampleCount       int
	MeanRSSI          float64 // dBm
	RSSIStdDev        float64 // dB
	PredictedLossDB   float64
	PredictedPowerDBM float64
	DeltaDB           float64 // MeanRSSI - PredictedPowerDBM
	DistanceKM        float64 // asserted great-circle distance
	FrequencyHz       float64

	TxElevationM float64 // resolved terrain at the beaconer
	RxElevationM float64 // resolved terrain at the witness
	TxGainDBI    float64
	RxGainDBI    float64

	Flagged bool
}

// Evaluation is the full outcome for one pair.
type Evaluation struct {
	Outcome Outcome
	Reason  ExcludeReason
	Err     error   // underlying cause when excluded by a failure
	Result  *Result // non-nil iff the pair was evaluated
}

// Params are the decision-rule tunables.
type Params struct {
	MinSamples    int
	MinDistanceKM float64
	ThresholdDB   float64
}

// Evaluator applies the filter, prediction and flag decision to pairs.
type Evaluator struct {
	resolver *elevation.Resolver
	adapter  *propagation.Adapter
	params   Params
}

// NewEvaluator builds an Evaluator over the given resolver and propagation
// adapter.
func NewEvaluator(resolver *elevation.Resolver, adapter *propagation.Adapter, params Params) *Evaluator {
	return &Evaluator{
		resolver: resolver,
		adapter:  adapter,
		params:   params,
	}
}

func exclude(reason ExcludeReason, err error) Evaluation {
	return Evaluation{Outcome: OutcomeExcluded, Reason: reason, Err: err}
}

// Evaluate runs the full decision for one pair.
//
// The eligibility gates run first and cheapest: a pair with too few samples
// or endpoints asserted too close together yields no statistical confidence
// and is excluded before any tile I/O or solver work.
func (e *Evaluator) Evaluate(obs Observation) Evaluation {
	if err := validateAssertion(obs); err != nil {
		return exclude(ReasonBadAssertion, err)
	}

	if len(obs.RSSIs) < e.params.MinSamples {
		return exclude(ReasonTooFewSamples, nil)
	}

	distKM := geo.DistanceKM(obs.Beaconer.Position, obs.Witness.Position)
	if distKM < e.params.MinDistanceKM {
		return exclude(ReasonTooClose, nil)
	}

	txRes, err := e.resolver.Resolve(obs.Beaconer.Position)
	if err != nil {
		return exclude(reasonForError(err), fmt.Errorf("beaconer %s: %w", obs.Beaconer.Pubkey, err))
	}
	rxRes, err := e.resolver.Resolve(obs.Witness.Position)
	if err != nil {
		return exclude(reasonForError(err), fmt.Errorf("witness %s: %w", obs.Witness.Pubkey, err))
	}

	mean, stddev := histogramStats(obs.RSSIs)

	pred, err := e.adapter.Predict(
		propagation.Endpoint{Position: txRes.Position, HeightM: obs.Beaconer.AntennaHeight, GainDBI: obs.Beaconer.AntennaGain},
		propagation.Endpoint{Position: rxRes.Position, HeightM: obs.Witness.AntennaHeight, GainDBI: obs.Witness.AntennaGain},
		obs.Beaconer.TxPower, obs.FrequencyHz, false,
	)
	if err != nil {
		return exclude(reasonForError(err), err)
	}

	delta := mean - pred.PowerDBM

	res := &Result{
		BeaconerPubkey:    obs.Beaconer.Pubkey,
		WitnessPubkey:     obs.Witness.Pubkey,
		SampleCount:       len(obs.RSSIs),
		MeanRSSI:          mean,
		RSSIStdDev:        stddev,
		PredictedLossDB:   pred.LossDB,
		PredictedPowerDBM: pred.PowerDBM,
		DeltaDB:           delta,
		DistanceKM:        distKM,
		FrequencyHz:       obs.FrequencyHz,
		TxElevationM:      txRes.Elevation,
		RxElevationM:      rxRes.Elevation,
		TxGainDBI:         obs.Beaconer.AntennaGain,
		RxGainDBI:         obs.Witness.AntennaGain,
	}

	// The threshold is inclusive: a delta exactly at the configured margin
	// flags.
	if delta >= e.params.ThresholdDB {
		res.Flagged = true
		return Evaluation{Outcome: OutcomeFlagged, Result: res}
	}
	return Evaluation{Outcome: OutcomeNotFlagged, Result: res}
}

// LossProfile recomputes the prediction for an already-flagged pair with the
// per-step loss path included, for report generation.
func (e *Evaluator) LossProfile(obs Observation) (propagation.Prediction, error) {
	txRes, err := e.resolver.Resolve(obs.Beaconer.Position)
	if err != nil {
		return propagation.Prediction{}, err
	}
	rxRes, err := e.resolver.Resolve(obs.Witness.Position)
	if err != nil {
		return propagation.Prediction{}, err
	}
	return e.adapter.Predict(
		propagation.Endpoint{Position: txRes.Position, HeightM: obs.Beaconer.AntennaHeight, GainDBI: obs.Beaconer.AntennaGain},
		propagation.Endpoint{Position: rxRes.Position, HeightM: obs.Witness.AntennaHeight, GainDBI: obs.Witness.AntennaGain},
		obs.Beaconer.TxPower, obs.FrequencyHz, true,
	)
}

func validateAssertion(obs Observation) error {
	for _, ep := range []struct {
		label string
		e     Endpoint
	}{
		{"beaconer", obs.Beaconer},
		{"witness", obs.Witness},
	} {
		if ep.e.Position.Lat < -90 || ep.e.Position.Lat > 90 {
			return fmt.Errorf("invalid latitude for %s %s: %v", ep.label, ep.e.Pubkey, ep.e.Position.Lat)
		}
		if ep.e.Position.Lon < -180 || ep.e.Position.Lon > 180 {
			return fmt.Errorf("invalid longitude for %s %s: %v", ep.label, ep.e.Pubkey, ep.e.Position.Lon)
		}
	}
	if len(obs.RSSIs) == 0 {
		return errors.New("no RSSI samples")
	}
	if obs.FrequencyHz <= 0 {
		return fmt.Errorf("invalid frequency %v Hz", obs.FrequencyHz)
	}
	return nil
}

func reasonForError(err error) ExcludeReason {
	if errors.Is(err, elevation.ErrCoverageMissing) {
		return ReasonCoverageMiss
	}
	return ReasonSolverFailure
}

// histogramStats collapses the samples into a 0.1 dB histogram, the
// resolution receipts are reported at, and returns the weighted mean and
// standard deviation.
func histogramStats(rssis []float64) (mean, stddev float64) {
	hist := make(map[int]float64)
	for _, r := range rssis {
		hist[int(math.Round(r*10))]++
	}

	bins := make([]float64, 0, len(hist))
	keys := make([]int, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	weights := make([]float64, 0, len(hist))
	for _, k := range keys {
		bins = append(bins, float64(k)/10.0)
		weights = append(weights, hist[k])
	}

	mean = stat.Mean(bins, weights)
	if len(bins) > 1 {
		stddev = math.Sqrt(stat.Variance(bins, weights))
	}
	return mean, stddev
}
