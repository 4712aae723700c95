package reingest

import (
	"context"
	"log/slog"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/discrepancy"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/granule"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/notification"
)

type (
	// CollectionResult holds the outcome of every granule of one collection.
	CollectionResult struct {
		CollectionID string
		FileCount    int
		// Granules maps each outcome to the granule IDs that reached it, in
		// ascending order. Under OutcomeError it also lists the file names no
		// granule ID could be derived from.
		Granules map[Outcome][]string
	}

	// Result is the outcome of processing a whole report, in report order.
	Result struct {
		Bucket      string
		Collections []CollectionResult
	}

	// Summary maps collection ID to outcome counts. Outcomes with no granules are
	// omitted, so a collection without discrepancies maps to an empty count map.
	Summary map[string]map[Outcome]int
)

// Count returns the number of granules with the given outcome.
func (c CollectionResult) Count(o Outcome) int {
	return len(c.Granules[o])
}

// Summary reduces the result to per-outcome counts, keeping output bounded for
// reports with very many granules.
func (r *Result) Summary() Summary {
	summary := make(Summary, len(r.Collections))

	for _, c := range r.Collections {
		counts := make(map[Outcome]int)

		for _, o := range Outcomes {
			if n := c.Count(o); n > 0 {
				counts[o] = n
			}
		}

		summary[c.CollectionID] = counts
	}

	return summary
}

// Merge adds the counts of other into s. A collection present in both sums
// its per-outcome counts; one present only in other is copied.
func (s Summary) Merge(other Summary) {
	for collectionID, counts := range other {
		merged, ok := s[collectionID]
		if !ok {
			merged = make(map[Outcome]int, len(counts))
			s[collectionID] = merged
		}

		for o, n := range counts {
			merged[o] += n
		}
	}
}

// Totals sums outcome counts across all collections.
func (r *Result) Totals() map[Outcome]int {
	totals := make(map[Outcome]int)

	for _, c := range r.Collections {
		for o, ids := range c.Granules {
			totals[o] += len(ids)
		}
	}

	return totals
}

// BucketRouter selects the data bucket holding trigger objects. Reports for the
// historical ingestion path carry "historical" in their key; all others belong to
// forward processing. The choice is made once per report.
type BucketRouter struct {
	Forward    string
	Historical string
}

// BucketFor returns the trigger bucket for the report at loc.
func (r BucketRouter) BucketFor(loc notification.Location) string {
	if loc.IsHistorical() {
		return r.Historical
	}

	return r.Forward
}

// ProcessCollection decides the outcome of every granule in a group.
func (d *Decider) ProcessCollection(
	ctx context.Context,
	collection granule.CollectionID,
	bucket string,
	group discrepancy.Group,
) CollectionResult {
	result := CollectionResult{
		CollectionID: group.CollectionID,
		FileCount:    group.FileCount,
		Granules:     make(map[Outcome][]string),
	}

	for _, filename := range group.Invalid {
		d.logger.Warn("Cannot derive granule ID from file name",
			slog.String("collection_id", group.CollectionID),
			slog.String("filename", filename),
		)

		result.Granules[OutcomeError] = append(result.Granules[OutcomeError], filename)
	}

	for _, granuleID := range group.GranuleIDs {
		outcome, err := d.Decide(ctx, collection, bucket, granuleID)
		if err != nil {
			d.logger.Error("Granule reingestion failed",
				slog.String("collection_id", group.CollectionID),
				slog.String("granule_id", granuleID),
				slog.String("error", err.Error()),
			)
		} else {
			d.logger.Debug("Granule outcome decided",
				slog.String("collection_id", group.CollectionID),
				slog.String("granule_id", granuleID),
				slog.String("outcome", outcome.String()),
			)
		}

		result.Granules[outcome] = append(result.Granules[outcome], granuleID)
	}

	return result
}

// ProcessReport folds ProcessCollection over every group, in order.
//
// A malformed collection ID aborts the run before any granule is touched: it
// means the report itself is not in the expected format.
func (d *Decider) ProcessReport(ctx context.Context, bucket string, groups []discrepancy.Group) (*Result, error) {
	collections := make([]granule.CollectionID, len(groups))

	for i, group := range groups {
		id, err := granule.DecodeCollectionID(group.CollectionID)
		if err != nil {
			return nil, err
		}

		collections[i] = id
	}

	result := &Result{Bucket: bucket, Collections: make([]CollectionResult, 0, len(groups))}

	for i, group := range groups {
		collectionResult := d.ProcessCollection(ctx, collections[i], bucket, group)

		d.logger.Info("Processed collection",
			slog.String("collection_id", group.CollectionID),
			slog.Int("file_count", group.FileCount),
			slog.Int("granule_count", len(group.GranuleIDs)),
			slog.Int(string(OutcomeTriggered), collectionResult.Count(OutcomeTriggered)),
			slog.Int(string(OutcomeMissing), collectionResult.Count(OutcomeMissing)),
			slog.Int(string(OutcomeSkipped), collectionResult.Count(OutcomeSkipped)),
			slog.Int(string(OutcomeError), collectionResult.Count(OutcomeError)),
		)

		result.Collections = append(result.Collections, collectionResult)
	}

	return result, nil
}
