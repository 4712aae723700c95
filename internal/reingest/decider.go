// Package reingest decides, per granule, whether LP DAAC's missing granules can be
// re-announced for ingestion, and does so by touching their trigger objects.
//
// Each granule moves once from pending to a terminal outcome, evaluated in this order:
//
//  1. If a catalog is configured and already lists the granule → skipped.
//  2. If the granule's trigger object exists in the data bucket, its metadata is
//     rewritten in place (content untouched) → triggered.
//  3. Otherwise → missing: a real gap that needs upstream reprocessing.
//
// A failure talking to the catalog or the object store, or a granule ID that
// cannot be mapped to a trigger key, yields the error outcome for that granule
// only; the remaining granules are still processed.
package reingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/time/rate"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/granule"
)

// ErrTouchFailed wraps failures rewriting a trigger object's metadata.
var ErrTouchFailed = errors.New("failed to touch trigger object")

type (
	// ObjectStore is the storage capability the decider needs.
	ObjectStore interface {
		// Exists reports whether bucket/key exists.
		Exists(ctx context.Context, bucket, key string) (bool, error)
		// Touch rewrites the object's metadata in place so that its modification
		// time changes and a new event notification is emitted. Content must be
		// preserved and repeated calls must be safe.
		Touch(ctx context.Context, bucket, key string) error
	}

	// Catalog answers whether a granule is already published.
	Catalog interface {
		GranuleExists(ctx context.Context, collection granule.CollectionID, granuleID string) (bool, error)
	}

	// Config holds the decider's optional capabilities.
	Config struct {
		// Catalog enables the skipped outcome when non-nil.
		Catalog Catalog
		// TouchRateLimit caps trigger touches per second. Zero or negative disables throttling.
		TouchRateLimit float64
		// TouchBurst is the limiter burst size (minimum 1).
		TouchBurst int
		// DryRun decides outcomes without touching anything.
		DryRun bool
	}

	// Decider evaluates reingestion outcomes.
	Decider struct {
		store   ObjectStore
		catalog Catalog
		limiter *rate.Limiter
		dryRun  bool
		logger  *slog.Logger
	}
)

// NewDecider creates a Decider backed by store.
func NewDecider(store ObjectStore, cfg Config, logger *slog.Logger) *Decider {
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.TouchRateLimit > 0 && !math.IsInf(cfg.TouchRateLimit, 1) {
		limit = rate.Limit(cfg.TouchRateLimit)
	}

	burst := max(cfg.TouchBurst, 1)

	return &Decider{
		store:   store,
		catalog: cfg.Catalog,
		limiter: rate.NewLimiter(limit, burst),
		dryRun:  cfg.DryRun,
		logger:  logger,
	}
}

// CatalogEnabled reports whether the skipped outcome can occur.
func (d *Decider) CatalogEnabled() bool {
	return d.catalog != nil
}

// DryRun reports whether touches are suppressed.
func (d *Decider) DryRun() bool {
	return d.dryRun
}

// Decide evaluates the outcome of one granule. The returned error is non-nil
// exactly when the outcome is OutcomeError and explains it.
func (d *Decider) Decide(
	ctx context.Context,
	collection granule.CollectionID,
	bucket string,
	granuleID string,
) (Outcome, error) {
	if d.catalog != nil {
		present, err := d.catalog.GranuleExists(ctx, collection, granuleID)
		if err != nil {
			return OutcomeError, fmt.Errorf("catalog lookup for %s: %w", granuleID, err)
		}

		if present {
			return OutcomeSkipped, nil
		}
	}

	key, err := granule.TriggerObjectKey(granuleID)
	if err != nil {
		return OutcomeError, err
	}

	exists, err := d.store.Exists(ctx, bucket, key)
	if err != nil {
		return OutcomeError, fmt.Errorf("checking s3://%s/%s: %w", bucket, key, err)
	}

	if !exists {
		return OutcomeMissing, nil
	}

	if d.dryRun {
		return OutcomeTriggered, nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return OutcomeError, fmt.Errorf("%w: s3://%s/%s: %w", ErrTouchFailed, bucket, key, err)
	}

	if err := d.store.Touch(ctx, bucket, key); err != nil {
		return OutcomeError, fmt.Errorf("%w: s3://%s/%s: %w", ErrTouchFailed, bucket, key, err)
	}

	return OutcomeTriggered, nil
}
