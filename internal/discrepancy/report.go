// Package discrepancy models the reconciliation report LP DAAC returns and
// groups its file entries into unique granules per collection.
//
// A report is a JSON sequence of per-collection sub-reports:
//
//	[
//	    {
//	        "<SHORT_NAME>___<VERSION>": {
//	            "report": {
//	                "<FILENAME>": {"granuleId": "<GRANULE_ID>"},
//	                ...
//	            }
//	        }
//	    },
//	    ...
//	]
//
// Keys other than those shown are ignored. Collection order and file order are
// preserved exactly as they appear in the document.
package discrepancy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedReport is returned when a report document does not follow the expected structure.
var ErrMalformedReport = errors.New("malformed discrepancy report")

type (
	// Report is the ordered sequence of collection sub-reports.
	Report []CollectionReport

	// CollectionReport lists the files LP DAAC flagged for one collection.
	CollectionReport struct {
		CollectionID string
		Files        []File
	}

	// File is a single flagged file. GranuleID is the value LP DAAC sent; the
	// grouper derives its own ID from Filename and does not trust this field.
	File struct {
		Filename  string
		GranuleID string
	}
)

// Parse decodes a report document.
//
// Collection IDs are expected to be unique across the whole sequence. When a
// collection repeats, it keeps the position of its first occurrence and the
// files of its last one. Within a collection a repeated filename likewise keeps
// its first position and its last value.
func Parse(data []byte) (Report, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}

	var (
		report   Report
		position = make(map[string]int)
	)

	for dec.More() {
		err := eachMember(dec, func(collectionID string) error {
			files, err := decodeCollection(dec, collectionID)
			if err != nil {
				return err
			}

			if i, seen := position[collectionID]; seen {
				report[i].Files = files

				return nil
			}

			position[collectionID] = len(report)
			report = append(report, CollectionReport{CollectionID: collectionID, Files: files})

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}

	return report, nil
}

func decodeCollection(dec *json.Decoder, collectionID string) ([]File, error) {
	var body struct {
		Report json.RawMessage `json:"report"`
	}

	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: collection %q: %w", ErrMalformedReport, collectionID, err)
	}

	if len(body.Report) == 0 || string(body.Report) == "null" {
		return nil, fmt.Errorf("%w: collection %q has no \"report\" member", ErrMalformedReport, collectionID)
	}

	files := make([]File, 0)
	position := make(map[string]int)
	filesDec := json.NewDecoder(bytes.NewReader(body.Report))

	err := eachMember(filesDec, func(filename string) error {
		var entry struct {
			GranuleID string `json:"granuleId"`
		}

		if err := filesDec.Decode(&entry); err != nil {
			return fmt.Errorf("%w: collection %q file %q: %w", ErrMalformedReport, collectionID, filename, err)
		}

		file := File{Filename: filename, GranuleID: entry.GranuleID}

		if i, seen := position[filename]; seen {
			files[i] = file

			return nil
		}

		position[filename] = len(files)
		files = append(files, file)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// eachMember walks the members of the JSON object at the decoder's position,
// calling fn with each key. fn must consume the member's value.
func eachMember(dec *json.Decoder, fn func(key string) error) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedReport, err)
		}

		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected token %v", ErrMalformedReport, tok)
		}

		if err := fn(key); err != nil {
			return err
		}
	}

	return expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: expected %q: %w", ErrMalformedReport, want, err)
	}

	if got, ok := tok.(json.Delim); !ok || got != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrMalformedReport, want, tok)
	}

	return nil
}
