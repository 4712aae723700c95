// Package granule derives canonical HLS granule identifiers from file names and
// maps them onto the storage keys the ingestion pipeline depends on.
//
// Granule ID Format: {product}.{instrument}.{tile}.{YYYYDDDThhmmss}.v{MAJOR}[.{MINOR}...]
//
// Examples:
//   - "HLS.S30.T15XWH.2024237T194859.v2.0"
//   - "HLS-VI.L30.T10SEG.2025067T184250.v2.0"
//
// Every file belonging to a granule is named "{granule_id}{suffix}", where the
// suffix is free-form ("_stac.json", ".B04.tif", ".jpg", ...). The granule ID is
// therefore recovered by truncating the file name right after its version token.
//
// Product family rule:
// The first dot-separated field MUST be exactly "HLS" or "HLS-VI". "HLS-VI"
// granules live under the "{instrument}_VI" prefix of the data bucket; "HLS"
// granules under "{instrument}". Any other value is rejected rather than guessed,
// because downstream consumers of trigger keys would silently miss the granule.
package granule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for granule identity operations.
var (
	ErrMalformedFilename     = errors.New("malformed filename: no version token found")
	ErrMalformedGranuleID    = errors.New("malformed granule ID")
	ErrMalformedCollectionID = errors.New("malformed collection ID: missing '___' separator")
)

const (
	// ProductHLS is the product prefix of surface reflectance granules.
	ProductHLS = "HLS"
	// ProductHLSVI is the product prefix of vegetation index granules.
	ProductHLSVI = "HLS-VI"

	// CollectionIDSeparator joins short name and version in Cumulus collection IDs.
	CollectionIDSeparator = "___"

	acquisitionLayout = "2006002T150405"
	minGranuleFields  = 4
	datePartLen       = 7
)

// granuleIDPattern matches everything up to and including the version token vN(.N)*.
// The leading ".+" is greedy, so the last version-looking token wins.
var granuleIDPattern = regexp.MustCompile(`^(.+\.v\d+(?:\.\d+)*)`)

// Identity is the decomposed form of a granule ID. It is derived, never stored.
type Identity struct {
	// ID is the canonical granule ID the identity was parsed from.
	ID string
	// ProductPrefix is "HLS" or "HLS-VI".
	ProductPrefix string
	// Instrument is the sensor code, e.g. "S30" or "L30".
	Instrument string
	// Tile is the MGRS tile, e.g. "T15XWH".
	Tile string
	// Acquired is the acquisition timestamp (UTC).
	Acquired time.Time
	// Version is the ordered sequence of version integers, e.g. [2 0].
	Version []int
}

// ParseGranuleID returns the granule ID for a file name.
//
// The returned ID is the longest prefix of filename ending in a version token
// "vN(.N)*"; anything after the token is ignored:
//
//	ParseGranuleID("HLS.S30.T15XWH.2024237T194859.v2.0_stac.json")
//	→ "HLS.S30.T15XWH.2024237T194859.v2.0"
//
// Returns ErrMalformedFilename if no version token is present.
func ParseGranuleID(filename string) (string, error) {
	m := granuleIDPattern.FindStringSubmatch(filename)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedFilename, filename)
	}

	return m[1], nil
}

// ParseIdentity decomposes a granule ID into its fields.
//
// Returns ErrMalformedGranuleID when the ID has fewer than four dot-separated
// fields before the version, an unknown product prefix, an unparseable
// acquisition timestamp, or a missing/invalid version token.
func ParseIdentity(granuleID string) (*Identity, error) {
	fields := strings.Split(granuleID, ".")
	if len(fields) < minGranuleFields+1 {
		return nil, fmt.Errorf("%w: %q has fewer than %d fields", ErrMalformedGranuleID, granuleID, minGranuleFields+1)
	}

	product, err := productPrefix(granuleID, fields[0])
	if err != nil {
		return nil, err
	}

	acquired, err := time.Parse(acquisitionLayout, fields[3])
	if err != nil {
		return nil, fmt.Errorf("%w: %q has invalid acquisition time %q", ErrMalformedGranuleID, granuleID, fields[3])
	}

	version, err := parseVersion(fields[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMalformedGranuleID, granuleID, err)
	}

	return &Identity{
		ID:            granuleID,
		ProductPrefix: product,
		Instrument:    fields[1],
		Tile:          fields[2],
		Acquired:      acquired.UTC(),
		Version:       version,
	}, nil
}

// TriggerObjectKey returns the key of the notification trigger object for a granule.
//
// Format: {instrument}[_VI]/data/{YYYYDDD}/{granule_id}/{granule_id}.json
//
// Example:
//
//	TriggerObjectKey("HLS.S30.T15XWH.2124237T194859.v2.0")
//	→ "S30/data/2124237/HLS.S30.T15XWH.2124237T194859.v2.0/HLS.S30.T15XWH.2124237T194859.v2.0.json"
//
// The date is the part of the datetime field before "T". Only the field count,
// product prefix and datetime shape are checked; the key is otherwise built verbatim.
func TriggerObjectKey(granuleID string) (string, error) {
	fields := strings.Split(granuleID, ".")
	if len(fields) < minGranuleFields {
		return "", fmt.Errorf("%w: %q has fewer than %d fields", ErrMalformedGranuleID, granuleID, minGranuleFields)
	}

	product, err := productPrefix(granuleID, fields[0])
	if err != nil {
		return "", err
	}

	date, _, found := strings.Cut(fields[3], "T")
	if !found || len(date) != datePartLen {
		return "", fmt.Errorf("%w: %q has invalid datetime field %q", ErrMalformedGranuleID, granuleID, fields[3])
	}

	prefix := fields[1]
	if product == ProductHLSVI {
		prefix += "_VI"
	}

	return prefix + "/data/" + date + "/" + granuleID + "/" + granuleID + ".json", nil
}

func productPrefix(granuleID, field string) (string, error) {
	switch field {
	case ProductHLS, ProductHLSVI:
		return field, nil
	default:
		return "", fmt.Errorf("%w: %q has unknown product prefix %q", ErrMalformedGranuleID, granuleID, field)
	}
}

// parseVersion parses ["v2", "0"] into [2 0].
func parseVersion(fields []string) ([]int, error) {
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "v") {
		return nil, errors.New("missing version token")
	}

	version := make([]int, 0, len(fields))

	for i, f := range fields {
		if i == 0 {
			f = f[1:]
		}

		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid version component %q", f)
		}

		version = append(version, n)
	}

	return version, nil
}
