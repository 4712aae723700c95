// Package notification parses the free-text notifications exchanged with LP DAAC
// and builds the request messages sent to it.
package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrReportLocationNotFound is returned when a message does not contain the
// "Report available at BUCKET/KEY." sentence. It signals an unexpected external
// message format and must not be retried.
var ErrReportLocationNotFound = errors.New("cannot determine report location from message")

// noDiscrepancyMarker in a notification subject means LP DAAC found nothing to reconcile.
const noDiscrepancyMarker = "Ok"

var reportLocationPattern = regexp.MustCompile(`(?m)Report\s+available\s+at\s+(.+)[.]`)

// Location is an object location inside a bucket.
type Location struct {
	Bucket string
	Key    string
}

// String renders the location as an s3:// URI.
func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// IsHistorical reports whether the location names a report for the historical
// ingestion path rather than the forward-processing one.
func (l Location) IsHistorical() bool {
	return strings.Contains(l.Key, "historical")
}

// ExtractReportLocation extracts the report location from a notification message body.
//
// The message is expected to contain a sentence of the form
// "Report available at BUCKET/KEY." anywhere in its text. The first match wins
// and is split on the first "/".
func ExtractReportLocation(message string) (Location, error) {
	m := reportLocationPattern.FindStringSubmatch(message)
	if m == nil {
		return Location{}, fmt.Errorf("%w: %q", ErrReportLocationNotFound, message)
	}

	bucket, key, found := strings.Cut(m[1], "/")
	if !found || bucket == "" || key == "" {
		return Location{}, fmt.Errorf("%w: %q", ErrReportLocationNotFound, message)
	}

	return Location{Bucket: bucket, Key: key}, nil
}

// IsNoDiscrepancy reports whether a notification subject announces a clean reconciliation.
func IsNoDiscrepancy(subject string) bool {
	return strings.Contains(subject, noDiscrepancyMarker)
}

// ParseS3URI splits "s3://bucket/key" into a Location.
func ParseS3URI(uri string) (Location, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return Location{}, fmt.Errorf("not an s3:// URI: %q", uri)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("missing bucket in URI: %q", uri)
	}

	return Location{Bucket: bucket, Key: key}, nil
}

type (
	// RequestMessage is the reconciliation request published to LP DAAC.
	RequestMessage struct {
		Report ReportRef `json:"report"`
	}

	// ReportRef points at a generated reconciliation report.
	ReportRef struct {
		URI string `json:"uri"`
	}
)

// NewRequestMessage builds the request for a report written at bucket/key.
func NewRequestMessage(bucket, key string) RequestMessage {
	return RequestMessage{Report: ReportRef{URI: Location{Bucket: bucket, Key: key}.String()}}
}

// Marshal encodes the request as the JSON message body.
func (m RequestMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}
