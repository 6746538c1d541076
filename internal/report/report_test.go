package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/edgewatch/edgewatch/internal/classifier"
	"github.com/edgewatch/edgewatch/internal/propagation"
)

func result(beaconer, witness string, delta float64) classifier.Result {
	return classifier.Result{
		BeaconerPubkey: beaconer,
		WitnessPubkey:  witness,
		DeltaDB:        delta,
		Flagged:        true,
	}
}

func TestWorstPairs(t *testing.T) {
	results := []classifier.Result{
		result("b1", "w1", 10),
		result("b2", "w1", 35), // worst for w1
		result("b3", "w1", 20),
		result("b1", "w2", 5), // only pair for w2
	}

	worst := WorstPairs(results)
	if len(worst) != 2 {
		t.Fatalf("got %d records, want 2", len(worst))
	}
	if worst[0].WitnessPubkey != "w1" || worst[0].BeaconerPubkey != "b2" {
		t.Errorf("w1 worst pair = %s, want b2", worst[0].BeaconerPubkey)
	}
	if worst[1].WitnessPubkey != "w2" || worst[1].BeaconerPubkey != "b1" {
		t.Errorf("w2 worst pair = %s, want b1", worst[1].BeaconerPubkey)
	}
}

func TestWorstPairsTieBreak(t *testing.T) {
	// Equal deltas: the lexicographically smallest beaconer wins,
	// regardless of input order.
	forward := []classifier.Result{
		result("bZ", "w1", 25),
		result("bA", "w1", 25),
		result("bM", "w1", 25),
	}
	reversed := []classifier.Result{forward[2], forward[1], forward[0]}

	a := WorstPairs(forward)
	b := WorstPairs(reversed)
	if len(a) != 1 || len(b) != 1 {
		t.Fatal("expected a single record per witness")
	}
	if a[0].BeaconerPubkey != "bA" || b[0].BeaconerPubkey != "bA" {
		t.Errorf("tie-break picked %s / %s, want bA in both orders",
			a[0].BeaconerPubkey, b[0].BeaconerPubkey)
	}
}

func TestBuildAndWrite(t *testing.T) {
	r := result("b1", "w1", 30)
	r.MeanRSSI = -110
	r.SampleCount = 20
	r.TxGainDBI = 2.3
	r.RxGainDBI = 5.8

	pred := propagation.Prediction{
		LossDB: 120,
		Profile: &propagation.Profile{
			Distances:  []float64{0, 2500, 5000},
			Elevations: []float64{1600, 1650, 1600},
			TxHeightM:  5,
			RxHeightM:  8,
		},
		LossPath: []float64{95, 120},
	}

	rec := Build(r, pred)
	if rec.TxAntennaHeightM != 5 || rec.RxAntennaHeightM != 8 {
		t.Errorf("antenna heights = %v/%v, want 5/8", rec.TxAntennaHeightM, rec.RxAntennaHeightM)
	}
	if rec.TxAntennaGainDBI != 2.3 {
		t.Errorf("TxAntennaGainDBI = %v, want 2.3", rec.TxAntennaGainDBI)
	}
	if len(rec.LossPathDB) != 2 {
		t.Errorf("LossPathDB has %d entries, want 2", len(rec.LossPathDB))
	}

	dir := filepath.Join(t.TempDir(), "reports")
	if err := Write(dir, rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "w1.json"))
	if err != nil {
		t.Fatal(err)
	}
	var got Record
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if got.BeaconerPubkey != "b1" || got.SampleCount != 20 {
		t.Errorf("round trip got %+v", got)
	}
}
