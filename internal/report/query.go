// Package report turns the daily S3 inventory of the HLS data buckets into the
// per-product reconciliation reports sent to LP DAAC.
//
// A run submits one Athena query, polls it to completion, streams the ordered
// result rows and writes one headerless CSV file per product. Products are
// demultiplexed by grouping consecutive rows, which relies on the query's
// ORDER BY key.
package report

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidQueryParams is returned when a query parameter would produce unsafe or invalid SQL.
var ErrInvalidQueryParams = errors.New("invalid query parameters")

var (
	// DefaultProductPrefixes are the S3 prefixes of the four HLS product families.
	DefaultProductPrefixes = []string{"S30", "L30", "S30_VI", "L30_VI"}
	// DefaultFileExtensions are the reported file suffixes. The STAC item
	// "_stac.json" is included while the trigger "{granule_id}.json" is not.
	DefaultFileExtensions = []string{"tif", "jpg", "xml", "stac.json"}
)

var (
	tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
	prefixPattern    = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	extensionPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)
)

// Params selects the inventory rows of one report.
type Params struct {
	// Table is the inventory table, optionally qualified ("db.table").
	Table string
	// StartDate is the first day of the report; only its calendar date (UTC) is used.
	StartDate time.Time
	// ProductPrefixes limits the report to these top-level key prefixes.
	ProductPrefixes []string
	// FileExtensions limits the report to keys with these suffixes.
	FileExtensions []string
}

// Day returns the report's start date truncated to midnight UTC.
func (p Params) Day() time.Time {
	y, m, d := p.StartDate.UTC().Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// KeyPattern returns the regular expression matching reported inventory keys.
func (p Params) KeyPattern() string {
	extensions := make([]string, len(p.FileExtensions))
	for i, ext := range p.FileExtensions {
		extensions[i] = regexp.QuoteMeta(ext)
	}

	return `^(` + strings.Join(p.ProductPrefixes, "|") + `)/data/.*(` + strings.Join(extensions, "|") + `)$`
}

// Validate rejects parameters that cannot be embedded into the query text.
func (p Params) Validate() error {
	if !tableNamePattern.MatchString(p.Table) {
		return fmt.Errorf("%w: table name %q", ErrInvalidQueryParams, p.Table)
	}

	if p.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidQueryParams)
	}

	if len(p.ProductPrefixes) == 0 {
		return fmt.Errorf("%w: at least one product prefix is required", ErrInvalidQueryParams)
	}

	for _, prefix := range p.ProductPrefixes {
		if !prefixPattern.MatchString(prefix) {
			return fmt.Errorf("%w: product prefix %q", ErrInvalidQueryParams, prefix)
		}
	}

	if len(p.FileExtensions) == 0 {
		return fmt.Errorf("%w: at least one file extension is required", ErrInvalidQueryParams)
	}

	for _, ext := range p.FileExtensions {
		if !extensionPattern.MatchString(ext) {
			return fmt.Errorf("%w: file extension %q", ErrInvalidQueryParams, ext)
		}
	}

	return nil
}

// BuildQuery renders the inventory query for p.
//
// Rows come from the latest inventory partition, were last modified within
// [day, day+1), and are ordered by key then modification time. short_name is
// "HLS" followed by the key's first path segment ("HLSL30_VI" for
// "L30_VI/data/..."). last_modified uses format_datetime to get exactly three
// fractional digits, the format LP DAAC parses.
func BuildQuery(p Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	start := p.Day()
	end := start.AddDate(0, 0, 1)

	return fmt.Sprintf(`SELECT
    regexp_replace(key, '^([^/]+).*', 'HLS$1') AS short_name,
    regexp_extract(key, 'v([0-9]+(?:\.[0-9]+)*)', 1) AS version,
    regexp_extract(key, '[^/]+$') AS filename,
    size,
    format_datetime(last_modified_date, 'yyyy-MM-dd''T''HH:mm:ss.SSS''Z''') AS last_modified,
    'NA' AS checksum
FROM %[1]s
WHERE dt = (SELECT max(dt) FROM %[1]s)
    AND last_modified_date >= TIMESTAMP '%[2]s'
    AND last_modified_date < TIMESTAMP '%[3]s'
    AND regexp_like(key, '%[4]s')
ORDER BY key, last_modified_date`,
		p.Table,
		start.Format(time.DateOnly),
		end.Format(time.DateOnly),
		p.KeyPattern(),
	), nil
}

// DayOfYear formats t as the 7-digit YYYYDDD used in report paths.
func DayOfYear(t time.Time) string {
	return fmt.Sprintf("%04d%03d", t.Year(), t.YearDay())
}
