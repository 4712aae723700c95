package discrepancy

import (
	"slices"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/granule"
)

// Group is the per-collection view of a report that the reingestion step consumes.
type Group struct {
	// CollectionID is the "{short_name}___{version}" ID as sent by LP DAAC.
	CollectionID string
	// FileCount is the total number of flagged files, including Invalid ones.
	FileCount int
	// GranuleIDs holds the unique granule IDs derived from the file names, sorted ascending.
	GranuleIDs []string
	// Invalid holds the file names no granule ID could be derived from, in report order.
	Invalid []string
}

// GroupGranuleIDs groups the unique granule IDs of every collection in the report.
//
// Collections keep report order, including those without files (FileCount 0, no
// granule IDs), so summaries still show "no discrepancies" for them. A file name
// that fails granule.ParseGranuleID is isolated in Group.Invalid instead of
// aborting the batch. The report is not modified.
func GroupGranuleIDs(report Report) []Group {
	groups := make([]Group, 0, len(report))

	for _, collection := range report {
		group := Group{
			CollectionID: collection.CollectionID,
			FileCount:    len(collection.Files),
			GranuleIDs:   []string{},
		}

		seen := make(map[string]struct{}, len(collection.Files))

		for _, file := range collection.Files {
			granuleID, err := granule.ParseGranuleID(file.Filename)
			if err != nil {
				group.Invalid = append(group.Invalid, file.Filename)

				continue
			}

			if _, dup := seen[granuleID]; dup {
				continue
			}

			seen[granuleID] = struct{}{}
			group.GranuleIDs = append(group.GranuleIDs, granuleID)
		}

		slices.Sort(group.GranuleIDs)
		groups = append(groups, group)
	}

	return groups
}
