// Package report derives the per-hotspot report records: for every witness
// with at least one flagged pair, the single worst-offending pair with the
// full terrain and loss profile needed to render a report card. Rendering
// itself happens downstream; this package only guarantees the record is
// selected deterministically and written with everything a renderer needs.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/edgewatch/edgewatch/internal/classifier"
	"github.com/edgewatch/edgewatch/internal/propagation"
)

// Record is one witness's worst-pair report artifact.
type Record struct {
	BeaconerPubkey string `json:"beaconer_pubkey"`
	WitnessPubkey  string `json:"witness_pubkey"`

	DeltaDB           float64 `json:"delta_db"`
	MeanRSSI          float64 `json:"measured_rssi_dbm"`
	RSSIStdDev        float64 `json:"rssi_std_dev_db"`
	SampleCount       int     `json:"samples"`
	PredictedLossDB   float64 `json:"predicted_loss_db"`
	PredictedPowerDBM float64 `json:"predicted_power_dbm"`
	DistanceKM        float64 `json:"distance_km"`
	FrequencyHz       float64 `json:"frequency_hz"`

	TxAntennaHeightM float64 `json:"tx_antenna_height_m"`
	RxAntennaHeightM float64 `json:"rx_antenna_height_m"`
	TxAntennaGainDBI float64 `json:"tx_antenna_gain_dbi"`
	RxAntennaGainDBI float64 `json:"rx_antenna_gain_dbi"`

	ProfileDistancesM  []float64 `json:"profile_distances_m"`
	ProfileElevationsM []float64 `json:"profile_elevations_m"`
	LossPathDB         []float64 `json:"loss_path_db"`
}

// WorstPairs selects, for each witness appearing in results, the pair with
// the largest delta. Ties break to the lexicographically smallest beaconer
// pubkey, so the selection never depends on evaluation or merge order.
// Returned records are sorted by witness pubkey.
func WorstPairs(results []classifier.Result) []classifier.Result {
	best := make(map[string]classifier.Result)
	for _, r := range results {
		cur, ok := best[r.WitnessPubkey]
		if !ok || r.DeltaDB > cur.DeltaDB ||
			(r.DeltaDB == cur.DeltaDB && r.BeaconerPubkey < cur.BeaconerPubkey) {
			best[r.WitnessPubkey] = r
		}
	}

	out := make([]classifier.Result, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WitnessPubkey < out[j].WitnessPubkey
	})
	return out
}

// Build assembles a Record from a flagged result and its loss-profile
// prediction.
func Build(r classifier.Result, pred propagation.Prediction) Record {
	return Record{
		BeaconerPubkey:     r.BeaconerPubkey,
		WitnessPubkey:      r.WitnessPubkey,
		DeltaDB:            r.DeltaDB,
		MeanRSSI:           r.MeanRSSI,
		RSSIStdDev:         r.RSSIStdDev,
		SampleCount:        r.SampleCount,
		PredictedLossDB:    r.PredictedLossDB,
		PredictedPowerDBM:  r.PredictedPowerDBM,
		DistanceKM:         r.DistanceKM,
		FrequencyHz:        r.FrequencyHz,
		TxAntennaHeightM:   pred.Profile.TxHeightM,
		RxAntennaHeightM:   pred.Profile.RxHeightM,
		TxAntennaGainDBI:   r.TxGainDBI,
		RxAntennaGainDBI:   r.RxGainDBI,
		ProfileDistancesM:  pred.Profile.Distances,
		ProfileElevationsM: pred.Profile.Elevations,
		LossPathDB:         pred.LossPath,
	}
}

// Write stores the record as <witness>.json in dir, creating dir if needed.
func Write(dir string, rec Record) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report for %s: %w", rec.WitnessPubkey, err)
	}

	path := filepath.Join(dir, rec.WitnessPubkey+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}
