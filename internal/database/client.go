// Package database is the read-only client for the Postgres metadata and
// telemetry store: hotspot assertions and witness receipts.
package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/edgewatch/edgewatch/internal/log"
	"go.uber.org/zap"
)

// ErrNotFound indicates a hotspot pubkey with no metadata row.
var ErrNotFound = errors.New("hotspot not found")

// Client holds the connection to the metadata store
type Client struct {
	dsn           string
	retryAttempts int
	DB            *gorm.DB // Exported so it can be accessed from other packages
	logger        *zap.SugaredLogger
}

// NewClient creates a new database client. retryAttempts bounds how many
// times a transient query failure is retried before it degrades to an error.
func NewClient(dsn string, retryAttempts int, logger *zap.SugaredLogger) *Client {
	return &Client{
		dsn:           dsn,
		retryAttempts: retryAttempts,
		logger:        logger,
	}
}

// Connect connects to the metadata store
func (c *Client) Connect() error {
	var err error

	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Misses are handled as ErrNotFound
			Colorful:                  false,
		},
	)

	config := &gorm.Config{
		Logger: dbLogger,
	}

	log.Info("connecting to metadata store...")
	c.DB, err = gorm.Open(postgres.Open(c.dsn), config)
	if err != nil {
		log.Warn("warning: unable to create a metadata store connection:", err)
		return err
	}
	log.Info("metadata store connection successful")

	return nil
}

// retry runs op with bounded exponential backoff. Context cancellation is
// honored between attempts.
func (c *Client) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.retryAttempts)),
		ctx,
	)
	return backoff.Retry(op, policy)
}

// CountHotspots returns the total hotspot inventory size.
func (c *Client) CountHotspots(ctx context.Context) (int64, error) {
	var count int64
	err := c.retry(ctx, func() error {
		return c.DB.WithContext(ctx).Model(&Hotspot{}).Count(&count).Error
	})
	return count, err
}

// ListHotspotPubkeys returns one inventory page in stable pubkey order.
func (c *Client) ListHotspotPubkeys(ctx context.Context, offset, limit int) ([]string, error) {
	var pubkeys []string
	err := c.retry(ctx, func() error {
		return c.DB.WithContext(ctx).Model(&Hotspot{}).
			Order("pubkey").
			Offset(offset).
			Limit(limit).
			Pluck("pubkey", &pubkeys).Error
	})
	if err != nil {
		return nil, fmt.Errorf("listing hotspot pubkeys: %w", err)
	}
	return pubkeys, nil
}

// GetHotspot returns a hotspot's asserted metadata.
func (c *Client) GetHotspot(ctx context.Context, pubkey string) (*Hotspot, error) {
	var hs Hotspot
	err := c.retry(ctx, func() error {
		res := c.DB.WithContext(ctx).First(&hs, "pubkey = ?", pubkey)
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return backoff.Permanent(fmt.Errorf("hotspot %s: %w", pubkey, ErrNotFound))
		}
		return res.Error
	})
	if err != nil {
		return nil, err
	}
	return &hs, nil
}

// GetWitnessReceipts returns every receipt recorded for the witness within
// the window, grouped by beaconer pubkey. At most maxBeaconers distinct
// beaconers are returned, chosen in lexicographic pubkey order so the cap is
// deterministic across runs.
func (c *Client) GetWitnessReceipts(ctx context.Context, witnessPubkey string, since time.Time, maxBeaconers int) (map[string][]WitnessReceipt, error) {
	var receipts []WitnessReceipt
	err := c.retry(ctx, func() error {
		return c.DB.WithContext(ctx).
			Where("witness_pubkey = ? AND received_at >= ?", witnessPubkey, since).
			Order("beaconer_pubkey, received_at").
			Find(&receipts).Error
	})
	if err != nil {
		return nil, fmt.Errorf("fetching receipts for witness %s: %w", witnessPubkey, err)
	}

	grouped := make(map[string][]WitnessReceipt)
	for _, r := range receipts {
		grouped[r.BeaconerPubkey] = append(grouped[r.BeaconerPubkey], r)
	}

	if len(grouped) > maxBeaconers {
		keys := make([]string, 0, len(grouped))
		for k := range grouped {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys[maxBeaconers:] {
			delete(grouped, k)
		}
	}

	return grouped, nil
}
