// Package pipeline drives the classification run: it shards the witness
// inventory across a fixed worker pool, evaluates every eligible pair,
// writes per-shard partial artifacts, and merges them into the final
// flagged-pair set.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgewatch/edgewatch/internal/classifier"
	"github.com/edgewatch/edgewatch/internal/database"
	"github.com/edgewatch/edgewatch/internal/log"
	"github.com/edgewatch/edgewatch/pkg/config"
	"github.com/edgewatch/edgewatch/pkg/geo"
)

// Store is the slice of the metadata client the orchestrator needs. Defined
// here so tests can substitute an in-memory store.
type Store interface {
	GetHotspot(ctx context.Context, pubkey string) (*database.Hotspot, error)
	GetWitnessReceipts(ctx context.Context, witnessPubkey string, since time.Time, maxBeaconers int) (map[string][]database.WitnessReceipt, error)
}

// Orchestrator runs the shard workers over a witness inventory.
type Orchestrator struct {
	store Store
	eval  *classifier.Evaluator
	cfg   *config.Config
	stats *Stats
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(store Store, eval *classifier.Evaluator, cfg *config.Config, stats *Stats) *Orchestrator {
	return &Orchestrator{
		store: store,
		eval:  eval,
		cfg:   cfg,
		stats: stats,
	}
}

// partition splits the witness list into shards of at most size keys.
func partition(witnesses []string, size int) [][]string {
	var shards [][]string
	for len(witnesses) > 0 {
		n := size
		if n > len(witnesses) {
			n = len(witnesses)
		}
		shards = append(shards, witnesses[:n])
		witnesses = witnesses[n:]
	}
	return shards
}

// Run evaluates every eligible pair for every witness, writing one partial
// artifact per shard into the output directory. Workers share nothing but
// the read-only store and the elevation caches; the call returns once every
// shard has terminated. A hotspot-level failure is recorded and skipped; only
// context cancellation or an artifact write failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context, witnesses []string) error {
	shards := partition(witnesses, o.cfg.BatchSize)
	log.Infow("starting classification run",
		"witnesses", len(witnesses),
		"shards", len(shards),
		"workers", o.cfg.Workers,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	for idx, shard := range shards {
		idx, shard := idx, shard
		g.Go(func() error {
			return o.runShard(ctx, idx, shard)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) runShard(ctx context.Context, idx int, witnesses []string) error {
	var flagged []classifier.Result
	since := time.Now().Add(-time.Duration(o.cfg.WindowHours) * time.Hour)

	for _, witness := range witnesses {
		if err := ctx.Err(); err != nil {
			return err
		}

		results, err := o.evaluateWitness(ctx, witness, since)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			// Record and move on: one bad hotspot must not sink the shard.
			log.Warnw("skipping hotspot", "witness", witness, "shard", idx, "error", err)
			o.stats.SkipHotspot()
			continue
		}
		flagged = append(flagged, results...)
	}

	if err := WriteShard(o.cfg.OutputDir, idx, flagged); err != nil {
		return err
	}
	log.Infow("shard complete", "shard", idx, "witnesses", len(witnesses), "flagged", len(flagged))
	return nil
}

// evaluateWitness runs the pair evaluator over every beaconer that this
// witness heard inside the window, returning the flagged results.
func (o *Orchestrator) evaluateWitness(ctx context.Context, witnessPubkey string, since time.Time) ([]classifier.Result, error) {
	witness, err := o.store.GetHotspot(ctx, witnessPubkey)
	if err != nil {
		return nil, err
	}

	grouped, err := o.store.GetWitnessReceipts(ctx, witnessPubkey, since, o.cfg.MaxBeaconers)
	if err != nil {
		return nil, err
	}

	// Deterministic evaluation order; the flag decision itself is order
	// independent but logs and stats read better this way.
	beaconers := make([]string, 0, len(grouped))
	for b := range grouped {
		beaconers = append(beaconers, b)
	}
	sort.Strings(beaconers)

	var flagged []classifier.Result
	for _, beaconerPubkey := range beaconers {
		receipts := grouped[beaconerPubkey]

		beaconer, err := o.store.GetHotspot(ctx, beaconerPubkey)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				log.Debugw("beaconer has no metadata, skipping pair",
					"beaconer", beaconerPubkey, "witness", witnessPubkey)
				continue
			}
			return nil, err
		}

		ev := o.eval.Evaluate(BuildObservation(beaconer, witness, receipts))
		o.stats.Record(ev)

		switch ev.Outcome {
		case classifier.OutcomeFlagged:
			log.Infow("pair flagged",
				"beaconer", beaconerPubkey,
				"witness", witnessPubkey,
				"delta_db", ev.Result.DeltaDB,
				"samples", ev.Result.SampleCount,
			)
			flagged = append(flagged, *ev.Result)
		case classifier.OutcomeExcluded:
			if ev.Err != nil {
				log.Infow("pair excluded",
					"beaconer", beaconerPubkey,
					"witness", witnessPubkey,
					"reason", ev.Reason.String(),
					"error", ev.Err,
				)
			}
		}
	}
	return flagged, nil
}

// BuildObservation adapts store rows into the evaluator's input. The link
// frequency is taken from the receipts; every receipt for a pair carries the
// beaconer's transmit frequency.
func BuildObservation(beaconer, witness *database.Hotspot, receipts []database.WitnessReceipt) classifier.Observation {
	rssis := make([]float64, len(receipts))
	var freq float64
	for i, r := range receipts {
		rssis[i] = r.RSSI
		if freq == 0 {
			freq = r.Frequency
		}
	}

	return classifier.Observation{
		Beaconer: classifier.Endpoint{
			Pubkey:        beaconer.Pubkey,
			Position:      geo.Point{Lat: beaconer.Lat, Lon: beaconer.Lon},
			AntennaHeight: beaconer.AntennaHeight,
			AntennaGain:   beaconer.AntennaGain,
			TxPower:       beaconer.TxPower,
		},
		Witness: classifier.Endpoint{
			Pubkey:        witness.Pubkey,
			Position:      geo.Point{Lat: witness.Lat, Lon: witness.Lon},
			AntennaHeight: witness.AntennaHeight,
			AntennaGain:   witness.AntennaGain,
		},
		RSSIs:       rssis,
		FrequencyHz: freq,
	}
}
