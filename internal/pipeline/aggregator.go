package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/edgewatch/edgewatch/internal/classifier"
)

// csvHeader is the stable column order of the final artifact.
var csvHeader = []string{"beaconer_pubkey", "witness_pubkey", "delta_db", "samples", "distance_km"}

// Merge concatenates shard partial artifacts into the final flagged-pair
// set: deduplicated by (beaconer, witness) and sorted so that re-running the
// merge over the same shard set yields an identical result.
func Merge(shardPaths []string) ([]classifier.Result, error) {
	var all []classifier.Result
	for _, path := range shardPaths {
		results, err := ReadShard(path)
		if err != nil {
			return nil, err
		}
		all = append(all, results...)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].BeaconerPubkey != all[j].BeaconerPubkey {
			return all[i].BeaconerPubkey < all[j].BeaconerPubkey
		}
		return all[i].WitnessPubkey < all[j].WitnessPubkey
	})

	merged := all[:0]
	seen := make(map[[2]string]bool, len(all))
	for _, r := range all {
		key := [2]string{r.BeaconerPubkey, r.WitnessPubkey}
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, r)
	}
	return merged, nil
}

// WriteCSV writes the merged flagged-pair artifact. The header row appears
// exactly once and number formatting is fixed, so identical inputs produce a
// byte-identical file.
func WriteCSV(path string, results []classifier.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating artifact %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			r.BeaconerPubkey,
			r.WitnessPubkey,
			strconv.FormatFloat(r.DeltaDB, 'f', 2, 64),
			strconv.Itoa(r.SampleCount),
			strconv.FormatFloat(r.DistanceKM, 'f', 3, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing artifact %s: %w", path, err)
	}
	return f.Sync()
}
