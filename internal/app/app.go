package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edgewatch/edgewatch/internal/classifier"
	"github.com/edgewatch/edgewatch/internal/database"
	"github.com/edgewatch/edgewatch/internal/elevation"
	"github.com/edgewatch/edgewatch/internal/log"
	"github.com/edgewatch/edgewatch/internal/pipeline"
	"github.com/edgewatch/edgewatch/internal/propagation"
	"github.com/edgewatch/edgewatch/internal/report"
	"github.com/edgewatch/edgewatch/pkg/config"
)

// inventoryPageSize is how many hotspot pubkeys we pull per query when no
// explicit witness list was given.
const inventoryPageSize = 5000

// App wires the metadata store, the terrain stack and the shard pipeline
// into one classification run.
type App struct {
	cfg       *config.Config
	inputPath string // optional witness list; empty means the full inventory
	logger    *zap.SugaredLogger
}

// New creates a new application instance.
func New(cfg *config.Config, inputPath string, logger *zap.SugaredLogger) *App {
	return &App{
		cfg:       cfg,
		inputPath: inputPath,
		logger:    logger,
	}
}

// Run executes a single classification run end to end: evaluate every pair,
// merge the shard artifacts, write the flagged-pair CSV and the per-witness
// report cards, and optionally record the run in the results database.
func (a *App) Run(ctx context.Context) error {
	runID := uuid.New().String()
	startedAt := time.Now().UTC()
	log.Infow("starting run", "run_id", runID, "threshold_db", a.cfg.ThresholdDB, "window_hours", a.cfg.WindowHours)

	client := database.NewClient(a.cfg.DatabaseDSN, a.cfg.RetryAttempts, a.logger)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connecting to metadata store: %w", err)
	}

	tiles, err := elevation.NewTileStore(a.cfg.TileDir)
	if err != nil {
		return fmt.Errorf("opening tile store: %w", err)
	}
	resolver := elevation.NewResolver(tiles, a.cfg.SearchRadius)
	adapter := propagation.NewAdapter(tiles, propagation.NewTerrainModel())
	eval := classifier.NewEvaluator(resolver, adapter, classifier.Params{
		MinSamples:    a.cfg.MinSamples,
		MinDistanceKM: a.cfg.MinDistanceKM,
		ThresholdDB:   a.cfg.ThresholdDB,
	})

	for _, dir := range []string{a.cfg.OutputDir, a.cfg.ReportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	witnesses, err := a.loadWitnesses(ctx, client)
	if err != nil {
		return err
	}
	if len(witnesses) == 0 {
		return fmt.Errorf("no witnesses to evaluate")
	}

	stats := pipeline.NewStats()
	orch := pipeline.NewOrchestrator(client, eval, a.cfg, stats)
	if err := orch.Run(ctx, witnesses); err != nil {
		return fmt.Errorf("classification run: %w", err)
	}

	shards, err := pipeline.ListShards(a.cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("listing shard artifacts: %w", err)
	}
	results, err := pipeline.Merge(shards)
	if err != nil {
		return fmt.Errorf("merging shard artifacts: %w", err)
	}

	csvPath := filepath.Join(a.cfg.OutputDir, "flagged_pairs.csv")
	if err := pipeline.WriteCSV(csvPath, results); err != nil {
		return fmt.Errorf("writing flagged-pair artifact: %w", err)
	}
	log.Infow("flagged-pair artifact written", "path", csvPath, "pairs", len(results))

	if err := a.writeReports(ctx, client, eval, results); err != nil {
		return fmt.Errorf("writing report cards: %w", err)
	}

	if a.cfg.ResultsDB != "" {
		if err := a.recordRun(runID, startedAt, stats, results); err != nil {
			return fmt.Errorf("recording run: %w", err)
		}
	}

	log.Infow("run complete", append([]interface{}{"run_id", runID}, stats.Fields()...)...)
	return nil
}

// loadWitnesses returns the witness inventory for this run: the pubkeys in
// the input file when one was given, otherwise every hotspot the metadata
// store knows about.
func (a *App) loadWitnesses(ctx context.Context, client *database.Client) ([]string, error) {
	if a.inputPath != "" {
		return readPubkeyList(a.inputPath)
	}

	total, err := client.CountHotspots(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting hotspots: %w", err)
	}
	witnesses := make([]string, 0, total)
	for offset := 0; ; offset += inventoryPageSize {
		page, err := client.ListHotspotPubkeys(ctx, offset, inventoryPageSize)
		if err != nil {
			return nil, fmt.Errorf("listing hotspots: %w", err)
		}
		if len(page) == 0 {
			break
		}
		witnesses = append(witnesses, page...)
	}
	log.Infow("loaded witness inventory", "witnesses", len(witnesses))
	return witnesses, nil
}

// readPubkeyList reads one pubkey per line, ignoring blanks and #-comments.
func readPubkeyList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening witness list: %w", err)
	}
	defer f.Close()

	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading witness list: %w", err)
	}
	return keys, nil
}

// writeReports produces one report card per witness for its worst flagged
// pair, re-running the prediction with the full loss profile attached.
func (a *App) writeReports(ctx context.Context, client *database.Client, eval *classifier.Evaluator, results []classifier.Result) error {
	since := time.Now().Add(-time.Duration(a.cfg.WindowHours) * time.Hour)

	for _, worst := range report.WorstPairs(results) {
		witness, err := client.GetHotspot(ctx, worst.WitnessPubkey)
		if err != nil {
			log.Warnw("skipping report card", "witness", worst.WitnessPubkey, "error", err)
			continue
		}
		beaconer, err := client.GetHotspot(ctx, worst.BeaconerPubkey)
		if err != nil {
			log.Warnw("skipping report card", "witness", worst.WitnessPubkey, "error", err)
			continue
		}
		receipts, err := client.GetWitnessReceipts(ctx, worst.WitnessPubkey, since, a.cfg.MaxBeaconers)
		if err != nil {
			log.Warnw("skipping report card", "witness", worst.WitnessPubkey, "error", err)
			continue
		}
		pairReceipts := receipts[worst.BeaconerPubkey]
		if len(pairReceipts) == 0 {
			log.Warnw("skipping report card: receipts aged out of window", "witness", worst.WitnessPubkey, "beaconer", worst.BeaconerPubkey)
			continue
		}

		obs := pipeline.BuildObservation(beaconer, witness, pairReceipts)
		pred, err := eval.LossProfile(obs)
		if err != nil {
			log.Warnw("skipping report card", "witness", worst.WitnessPubkey, "error", err)
			continue
		}
		if err := report.Write(a.cfg.ReportDir, report.Build(worst, pred)); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) recordRun(runID string, startedAt time.Time, stats *pipeline.Stats, results []classifier.Result) error {
	sink, err := pipeline.NewSQLiteSink(a.cfg.ResultsDB)
	if err != nil {
		return err
	}
	defer sink.Close()

	return sink.SaveRun(pipeline.RunRecord{
		RunID:         runID,
		StartedAt:     startedAt,
		FinishedAt:    time.Now().UTC(),
		ThresholdDB:   a.cfg.ThresholdDB,
		MinSamples:    a.cfg.MinSamples,
		MinDistanceKM: a.cfg.MinDistanceKM,
	}, stats, results)
}
