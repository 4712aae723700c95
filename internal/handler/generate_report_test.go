package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/report"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/storage"
)

// stubEngine succeeds immediately and returns rows.
type stubEngine struct {
	rows     [][]string
	startErr error
	sql      []string
}

func (e *stubEngine) StartQuery(_ context.Context, req report.QueryRequest) (string, error) {
	if e.startErr != nil {
		return "", e.startErr
	}

	e.sql = append(e.sql, req.SQL)

	return "query-1", nil
}

func (e *stubEngine) GetStatus(context.Context, string) (report.QueryStatus, error) {
	return report.QueryStatus{State: report.QueryStateSucceeded}, nil
}

func (e *stubEngine) StreamResults(_ context.Context, _ string, fn func(row []string) error) error {
	for _, row := range e.rows {
		if err := fn(row); err != nil {
			return err
		}
	}

	return nil
}

func newTestGenerateReport(
	t *testing.T,
	engine *stubEngine,
	store *storage.InMemoryObjectStore,
	fileConfig *report.FileConfig,
	ledger Ledger,
) *GenerateReport {
	t.Helper()

	gen, err := report.NewGenerator(engine, store, nil, report.Config{
		Table:          "hls_inventory",
		OutputPrefix:   "s3://hls-reports/reconciliation",
		ProductVersion: "2.0",
		TempDir:        t.TempDir(),
	}, discardLogger())
	require.NoError(t, err)

	h := NewGenerateReport(gen, fileConfig, "2.0", ledger, discardLogger())
	h.now = func() time.Time { return time.Date(2024, 8, 28, 1, 30, 0, 0, time.UTC) }

	return h
}

func inventoryRows() [][]string {
	return [][]string{
		report.FieldNames,
		{"HLSL30", "2.0", "HLS.L30.T10SEG.2024239T183512.v2.0.B01.tif", "2048", "2024-08-26T18:35:12.000Z", "NA"},
		{"HLSS30", "2.0", "HLS.S30.T15XWH.2024239T194859.v2.0.B01.tif", "1024", "2024-08-26T19:48:59.123Z", "NA"},
	}
}

func TestGenerateReport_StartDate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestGenerateReport(t, &stubEngine{}, storage.NewInMemoryObjectStore(), nil, nil)

	day, err := h.StartDate(Event{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 8, 26, 0, 0, 0, 0, time.UTC), day)

	day, err = h.StartDate(Event{ReportStartDate: "2025-07-01"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), day)

	_, err = h.StartDate(Event{ReportStartDate: "07/01/2025"})
	require.ErrorIs(t, err, ErrInvalidStartDate)
}

func TestGenerateReport_Handle(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	engine := &stubEngine{rows: inventoryRows()}
	store := storage.NewInMemoryObjectStore()
	ledger := &fakeLedger{}

	result, err := newTestGenerateReport(t, engine, store, nil, ledger).Handle(context.Background(), Event{})

	require.NoError(t, err)
	require.Len(t, result.Files, 2)

	obj, ok := store.Object("hls-reports", "reconciliation/2024239/HLS_reconcile_2024239_S30_2.0.rpt")
	require.True(t, ok)
	assert.Equal(t, "HLSS30,2.0,HLS.S30.T15XWH.2024239T194859.v2.0.B01.tif,1024,2024-08-26T19:48:59.123Z,NA\r\n", string(obj.Data))

	_, ok = store.Object("hls-reports", "reconciliation/2024239/HLS_reconcile_2024239_L30_2.0.rpt")
	assert.True(t, ok)

	require.Len(t, engine.sql, 1)
	assert.Contains(t, engine.sql[0], "^(S30|L30|S30_VI|L30_VI)/data/")
	assert.Contains(t, engine.sql[0], "TIMESTAMP '2024-08-26'")

	require.Len(t, ledger.runs, 1)
	assert.Equal(t, storage.RunKindReport, ledger.runs[0].Kind)
	assert.Equal(t, []storage.ReportFile{
		{
			URI:        "s3://hls-reports/reconciliation/2024239/HLS_reconcile_2024239_L30_2.0.rpt",
			Product:    "L30",
			Version:    "2.0",
			ReportDate: time.Date(2024, 8, 26, 0, 0, 0, 0, time.UTC),
			RowCount:   1,
		},
		{
			URI:        "s3://hls-reports/reconciliation/2024239/HLS_reconcile_2024239_S30_2.0.rpt",
			Product:    "S30",
			Version:    "2.0",
			ReportDate: time.Date(2024, 8, 26, 0, 0, 0, 0, time.UTC),
			RowCount:   1,
		},
	}, ledger.reportFiles)
	assert.Equal(t, []error{nil}, ledger.completed)
}

func TestGenerateReport_Handle_ProductOverrides(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	fileConfig := &report.FileConfig{ProductPrefixes: []string{"S30"}, FileExtensions: []string{"tif"}}

	engine := &stubEngine{rows: [][]string{report.FieldNames}}
	h := newTestGenerateReport(t, engine, storage.NewInMemoryObjectStore(), fileConfig, nil)

	_, err := h.Handle(context.Background(), Event{ReportStartDate: "2025-07-01"})
	require.NoError(t, err)
	assert.Contains(t, engine.sql[0], "'^(S30)/data/.*(tif)$'")

	_, err = h.Handle(context.Background(), Event{ProductPrefixes: []string{"S30_VI", "L30_VI"}})
	require.NoError(t, err)
	assert.Contains(t, engine.sql[1], "'^(S30_VI|L30_VI)/data/.*(tif)$'")
}

func TestGenerateReport_Handle_Failures(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ledger := &fakeLedger{}
	h := newTestGenerateReport(t, &stubEngine{startErr: errUnavailable}, storage.NewInMemoryObjectStore(), nil, ledger)

	_, err := h.Handle(context.Background(), Event{})
	require.ErrorIs(t, err, errUnavailable)
	require.Len(t, ledger.completed, 1)
	require.ErrorIs(t, ledger.completed[0], errUnavailable)

	_, err = h.Handle(context.Background(), Event{ReportStartDate: "yesterday"})
	require.ErrorIs(t, err, ErrInvalidStartDate)

	_, err = h.Handle(context.Background(), Event{ProductPrefixes: []string{"S30'; DROP TABLE x"}})
	require.ErrorIs(t, err, report.ErrInvalidQueryParams)
}
