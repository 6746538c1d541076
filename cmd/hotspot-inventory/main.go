// Command hotspot-inventory exports the hotspot inventory from the metadata
// store as batch files of witness pubkeys, ready to feed to edgewatch -input.
// Splitting the inventory up front lets operators spread a large run across
// machines or schedule slices of it independently.
package main

import (
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("DATABASE_DSN"), "PostgreSQL connection string")
	outDir := flag.String("out", "inventory", "Directory for batch files")
	batchSize := flag.Int("batch-size", 1000, "Pubkeys per batch file")
	maxBatches := flag.Int("max-batches", 0, "Stop after this many batches (0 = no limit)")
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "no DSN: pass -dsn or set DATABASE_DSN")
		os.Exit(1)
	}
	if *batchSize < 1 {
		fmt.Fprintln(os.Stderr, "-batch-size must be positive")
		os.Exit(1)
	}

	if err := run(*dsn, *outDir, *batchSize, *maxBatches); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(dsn, outDir string, batchSize, maxBatches int) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	// Stable order so reruns produce the same batch boundaries.
	rows, err := db.Query("SELECT pubkey FROM hotspots ORDER BY pubkey")
	if err != nil {
		return fmt.Errorf("querying hotspots: %w", err)
	}
	defer rows.Close()

	var (
		batch   []string
		written int
		total   int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		path := filepath.Join(outDir, fmt.Sprintf("batch_%03d.csv", written))
		if err := writeBatch(path, batch); err != nil {
			return err
		}
		total += len(batch)
		written++
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		if maxBatches > 0 && written >= maxBatches {
			break
		}
		var pubkey string
		if err := rows.Scan(&pubkey); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
		batch = append(batch, pubkey)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading rows: %w", err)
	}
	if maxBatches == 0 || written < maxBatches {
		if err := flush(); err != nil {
			return err
		}
	}

	fmt.Printf("Wrote %d pubkeys across %d batch files to %s\n", total, written, outDir)
	return nil
}

func writeBatch(path string, pubkeys []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, pk := range pubkeys {
		if err := w.Write([]string{pk}); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return f.Sync()
}
