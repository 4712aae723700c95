package granule

import (
	"fmt"
	"strings"
)

// CollectionID identifies a versioned collection, encoded externally as
// "{short_name}___{version}" (Cumulus convention).
type CollectionID struct {
	ShortName string
	Version   string
}

// DecodeCollectionID splits a collection ID on the first "___".
//
// Examples:
//   - "HLSS30___2.0" → {HLSS30 2.0}
//   - "HLS_VI_L30___2.0_beta" → {HLS_VI_L30 2.0_beta}
//
// Returns ErrMalformedCollectionID if the separator is absent.
func DecodeCollectionID(collectionID string) (CollectionID, error) {
	shortName, version, found := strings.Cut(collectionID, CollectionIDSeparator)
	if !found {
		return CollectionID{}, fmt.Errorf("%w: %q", ErrMalformedCollectionID, collectionID)
	}

	return CollectionID{ShortName: shortName, Version: version}, nil
}

// String encodes the collection ID back into its external form.
func (c CollectionID) String() string {
	return c.ShortName + CollectionIDSeparator + c.Version
}
