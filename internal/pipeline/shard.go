package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/edgewatch/edgewatch/internal/classifier"
)

// Shard partial artifacts are msgpack streams of classifier.Result records,
// one file per shard. Files are written to a temp name and renamed into
// place only when complete, so a cancelled or crashed worker can never leave
// a partial file where the aggregator would read it.

// shardFileName returns the partial artifact name for a shard index.
func shardFileName(dir string, idx int) string {
	return filepath.Join(dir, fmt.Sprintf("shard_%04d.msgpack", idx))
}

// WriteShard atomically writes a shard's flagged results.
func WriteShard(dir string, idx int, results []classifier.Result) error {
	final := shardFileName(dir, idx)

	tmp, err := os.CreateTemp(dir, ".shard-*.tmp")
	if err != nil {
		return fmt.Errorf("creating shard temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := msgpack.NewEncoder(tmp)
	for i := range results {
		if err := enc.Encode(&results[i]); err != nil {
			tmp.Close()
			return fmt.Errorf("encoding shard %d record: %w", idx, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing shard temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("publishing shard %d: %w", idx, err)
	}
	return nil
}

// ReadShard loads one shard partial artifact.
func ReadShard(path string) ([]classifier.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shard %s: %w", path, err)
	}
	defer f.Close()

	var results []classifier.Result
	dec := msgpack.NewDecoder(f)
	for {
		var r classifier.Result
		if err := dec.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding shard %s: %w", path, err)
		}
		results = append(results, r)
	}
	return results, nil
}

// ListShards returns every completed shard artifact in dir, sorted by name.
// Temp files from interrupted workers are never matched.
func ListShards(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "shard_*.msgpack"))
	if err != nil {
		return nil, err
	}
	return paths, nil
}
