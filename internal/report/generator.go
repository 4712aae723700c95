package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// BatchSize is the number of rows buffered before each CSV write.
const BatchSize = 10_000

// DefaultReportExtension is appended to report file names.
const DefaultReportExtension = ".rpt"

// FieldNames are the report columns, in output order.
var FieldNames = []string{"short_name", "version", "filename", "size", "last_modified", "checksum"}

var (
	// ErrUnsortedResults is returned when a product's rows are not contiguous.
	ErrUnsortedResults = errors.New("query results are not grouped by product")
	// ErrMalformedResults is returned for a missing header column or a short row.
	ErrMalformedResults = errors.New("malformed query results")
	// ErrInvalidOutputPrefix is returned when the report prefix is not an s3:// URL.
	ErrInvalidOutputPrefix = errors.New("report output prefix must start with s3://")
)

type (
	// ObjectWriter uploads report files.
	ObjectWriter interface {
		Put(ctx context.Context, bucket, key string, body io.Reader) error
	}

	// Config holds the generator settings shared by every run.
	Config struct {
		Table    string
		Catalog  string
		Database string
		// QueryOutputLocation is where the engine writes raw query results.
		QueryOutputLocation string
		// OutputPrefix is the s3:// prefix reports are written under.
		OutputPrefix string
		// ProductVersion is the HLS version without the "v" ("2.0").
		ProductVersion string
		// Extension is the report file suffix, DefaultReportExtension when empty.
		Extension string
		// TempDir holds report files while they are written; os.TempDir when empty.
		TempDir string
	}

	// Request selects the day and products of one run.
	Request struct {
		StartDate       time.Time
		ProductPrefixes []string
		FileExtensions  []string
	}

	// WrittenFile describes an uploaded report.
	WrittenFile struct {
		Product string
		Bucket  string
		Key     string
		Rows    int64
	}

	// Result summarises a run.
	Result struct {
		QueryID   string
		StartDate time.Time
		Files     []WrittenFile
	}

	// Generator produces the per-product reports.
	Generator struct {
		engine QueryEngine
		store  ObjectWriter
		poller *Poller
		cfg    Config
		bucket string
		prefix string
		logger *slog.Logger
	}
)

// URI returns the s3:// URI of the file.
func (f WrittenFile) URI() string {
	return "s3://" + f.Bucket + "/" + f.Key
}

// NewGenerator validates cfg and creates a Generator.
func NewGenerator(engine QueryEngine, store ObjectWriter, poller *Poller, cfg Config, logger *slog.Logger) (*Generator, error) {
	bucket, prefix, err := ParseOutputPrefix(cfg.OutputPrefix)
	if err != nil {
		return nil, err
	}

	if cfg.Extension == "" {
		cfg.Extension = DefaultReportExtension
	}

	if logger == nil {
		logger = slog.Default()
	}

	if poller == nil {
		poller = NewPoller(0, 0, logger)
	}

	return &Generator{
		engine: engine,
		store:  store,
		poller: poller,
		cfg:    cfg,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
	}, nil
}

// ParseOutputPrefix splits "s3://bucket/some/prefix/" into bucket and key
// prefix, dropping trailing slashes.
func ParseOutputPrefix(prefix string) (string, string, error) {
	rest, found := strings.CutPrefix(strings.TrimRight(prefix, "/"), "s3://")
	if !found || rest == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidOutputPrefix, prefix)
	}

	bucket, keyPrefix, _ := strings.Cut(rest, "/")

	return bucket, keyPrefix, nil
}

// ReportKey returns the object key of a product report:
// {prefix}/{YYYYDDD}/HLS_reconcile_{YYYYDDD}_{product}_{version}{ext}.
func (g *Generator) ReportKey(day time.Time, product string) string {
	doy := DayOfYear(day)
	name := "HLS_reconcile_" + doy + "_" + product + "_" + g.cfg.ProductVersion + g.cfg.Extension

	if g.prefix == "" {
		return doy + "/" + name
	}

	return g.prefix + "/" + doy + "/" + name
}

// Generate runs the inventory query for req and writes one report per product
// with at least one row.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	params := Params{
		Table:           g.cfg.Table,
		StartDate:       req.StartDate,
		ProductPrefixes: req.ProductPrefixes,
		FileExtensions:  req.FileExtensions,
	}

	if len(params.ProductPrefixes) == 0 {
		params.ProductPrefixes = DefaultProductPrefixes
	}

	if len(params.FileExtensions) == 0 {
		params.FileExtensions = DefaultFileExtensions
	}

	sql, err := BuildQuery(params)
	if err != nil {
		return nil, err
	}

	day := params.Day()

	g.logger.Info("Generating report",
		slog.String("start_date", day.Format(time.DateOnly)),
		slog.String("end_date", day.AddDate(0, 0, 1).Format(time.DateOnly)),
		slog.Any("product_prefixes", params.ProductPrefixes))

	queryID, err := g.engine.StartQuery(ctx, QueryRequest{
		SQL:            sql,
		Catalog:        g.cfg.Catalog,
		Database:       g.cfg.Database,
		OutputLocation: g.cfg.QueryOutputLocation,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start query: %w", err)
	}

	if err := g.poller.Await(ctx, g.engine, queryID); err != nil {
		return nil, err
	}

	result := &Result{QueryID: queryID, StartDate: day}
	w := &demuxWriter{gen: g, ctx: ctx, day: day, seen: make(map[string]struct{}), result: result}

	defer w.discard()

	if err := g.engine.StreamResults(ctx, queryID, w.handleRow); err != nil {
		return result, err
	}

	if err := w.closeCurrent(); err != nil {
		return result, err
	}

	if len(result.Files) == 0 {
		g.logger.Info("No rows returned, no reports written", slog.String("query_id", queryID))
	}

	return result, nil
}

// demuxWriter splits the ordered row stream into one temp CSV per product.
type demuxWriter struct {
	gen    *Generator
	ctx    context.Context //nolint:containedctx // scoped to one Generate call
	day    time.Time
	result *Result

	columns []int
	seen    map[string]struct{}

	product string
	file    *os.File
	csv     *csv.Writer
	batch   [][]string
	rows    int64
}

func (w *demuxWriter) handleRow(row []string) error {
	if w.columns == nil {
		return w.readHeader(row)
	}

	record := make([]string, len(w.columns))

	for i, col := range w.columns {
		if col >= len(row) {
			return fmt.Errorf("%w: row has %d values, expected column %d", ErrMalformedResults, len(row), col+1)
		}

		record[i] = row[col]
	}

	product := strings.TrimPrefix(record[0], "HLS")

	if w.file == nil || product != w.product {
		if err := w.closeCurrent(); err != nil {
			return err
		}

		if err := w.open(product); err != nil {
			return err
		}
	}

	w.batch = append(w.batch, record)
	w.rows++

	if len(w.batch) >= BatchSize {
		return w.flush()
	}

	return nil
}

// readHeader maps FieldNames onto the result's column positions.
func (w *demuxWriter) readHeader(header []string) error {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[name] = i
	}

	columns := make([]int, len(FieldNames))

	for i, name := range FieldNames {
		pos, ok := positions[name]
		if !ok {
			return fmt.Errorf("%w: header lacks column %q", ErrMalformedResults, name)
		}

		columns[i] = pos
	}

	w.columns = columns

	return nil
}

func (w *demuxWriter) open(product string) error {
	if _, dup := w.seen[product]; dup {
		return fmt.Errorf("%w: rows for %q are not contiguous", ErrUnsortedResults, product)
	}

	file, err := os.CreateTemp(w.gen.cfg.TempDir, "report-*.rpt")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	w.seen[product] = struct{}{}
	w.product = product
	w.file = file
	w.csv = csv.NewWriter(file)
	w.csv.UseCRLF = true
	w.batch = w.batch[:0]
	w.rows = 0

	return nil
}

func (w *demuxWriter) flush() error {
	if err := w.csv.WriteAll(w.batch); err != nil {
		return fmt.Errorf("failed to write report rows: %w", err)
	}

	w.batch = w.batch[:0]

	return nil
}

// closeCurrent finishes the open product file and uploads it when it holds rows.
func (w *demuxWriter) closeCurrent() error {
	if w.file == nil {
		return nil
	}

	defer w.discard()

	if err := w.flush(); err != nil {
		return err
	}

	if w.rows == 0 {
		return nil
	}

	g := w.gen
	key := g.ReportKey(w.day, w.product)

	g.logger.Info("Completed writing rows to report file",
		slog.String("product", w.product),
		slog.Int64("rows", w.rows))

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind report file: %w", err)
	}

	if err := g.store.Put(w.ctx, g.bucket, key, w.file); err != nil {
		return fmt.Errorf("failed to upload report for %s: %w", w.product, err)
	}

	written := WrittenFile{Product: w.product, Bucket: g.bucket, Key: key, Rows: w.rows}
	w.result.Files = append(w.result.Files, written)

	g.logger.Info("Uploaded report",
		slog.String("product", w.product),
		slog.String("uri", written.URI()),
		slog.Int64("rows", w.rows))

	return nil
}

// discard closes and removes the open temp file, if any.
func (w *demuxWriter) discard() {
	if w.file == nil {
		return
	}

	name := w.file.Name()
	_ = w.file.Close()
	_ = os.Remove(name)

	w.file = nil
	w.csv = nil
}
