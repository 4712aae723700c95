package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/granule"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/report"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/storage"
)

const (
	forwardBucket    = "hls-global-v2-forward"
	historicalBucket = "hls-global-v2-historical"
	presentGranule   = "HLS.S30.T15XWH.2124237T194859.v2.0"

	discrepancyReport = `[
  {"HLSS30___2.0": {"report": {
    "HLS.S30.T15XWH.2124237T194859.v2.0.B01.tif": {"granuleId": "HLS.S30.T15XWH.2124237T194859.v2.0"},
    "HLS.S30.T17RMP.2124237T160829.v2.0.Fmask.tif": {"granuleId": "HLS.S30.T17RMP.2124237T160829.v2.0"}
  }}}
]`
)

// cannedEngine succeeds immediately and returns rows.
type cannedEngine struct {
	rows [][]string
}

func (e *cannedEngine) StartQuery(context.Context, report.QueryRequest) (string, error) {
	return "query-1", nil
}

func (e *cannedEngine) GetStatus(context.Context, string) (report.QueryStatus, error) {
	return report.QueryStatus{State: report.QueryStateSucceeded}, nil
}

func (e *cannedEngine) StreamResults(_ context.Context, _ string, fn func(row []string) error) error {
	for _, row := range e.rows {
		if err := fn(row); err != nil {
			return err
		}
	}

	return nil
}

func executeCmd(t *testing.T, store *storage.InMemoryObjectStore, engine report.QueryEngine, args ...string) (string, error) {
	t.Helper()

	g := &globals{
		newStore:  func(context.Context) (storage.ObjectStore, error) { return store, nil },
		newEngine: func(context.Context) (report.QueryEngine, error) { return engine, nil },
	}

	var out, errOut bytes.Buffer

	root := newRootCmdWith(g)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

func seedTrigger(t *testing.T, store *storage.InMemoryObjectStore, bucket string) string {
	t.Helper()

	key, err := granule.TriggerObjectKey(presentGranule)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), bucket, key, strings.NewReader("{}")))

	return key
}

func writeReport(t *testing.T) string {
	t.Helper()

	return writeReportIn(t, t.TempDir())
}

func writeReportIn(t *testing.T, dir string) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o750))

	path := filepath.Join(dir, "HLS_reconcile_2024239_2.0.json")
	require.NoError(t, os.WriteFile(path, []byte(discrepancyReport), 0o600))

	return path
}

func setResponseEnv(t *testing.T) {
	t.Helper()

	t.Setenv("HLS_FORWARD_BUCKET", forwardBucket)
	t.Setenv("HLS_HISTORICAL_BUCKET", historicalBucket)
	t.Setenv("ENABLE_CATALOG_CHECK", "false")
	t.Setenv("DRY_RUN", "")
	t.Setenv("TOUCH_RATE_LIMIT", "")
	t.Setenv("TOUCH_BURST", "")
}

func TestTriggerKeyCmd(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	expected, err := granule.TriggerObjectKey(presentGranule)
	require.NoError(t, err)

	out, err := executeCmd(t, nil, nil, "trigger-key", presentGranule, presentGranule+".B01.tif")
	require.NoError(t, err)
	assert.Equal(t, expected+"\n"+expected+"\n", out)

	out, err = executeCmd(t, nil, nil, "trigger-key", "--bucket", forwardBucket, presentGranule)
	require.NoError(t, err)
	assert.Equal(t, "s3://"+forwardBucket+"/"+expected+"\n", out)

	_, err = executeCmd(t, nil, nil, "trigger-key", "not-a-granule")
	require.Error(t, err)

	_, err = executeCmd(t, nil, nil, "trigger-key")
	require.Error(t, err)
}

func TestReconcileCmd_LocalFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	setResponseEnv(t)

	store := storage.NewInMemoryObjectStore()
	key := seedTrigger(t, store, forwardBucket)

	out, err := executeCmd(t, store, nil, "reconcile", writeReport(t))

	require.NoError(t, err)
	assert.JSONEq(t, `{"HLSS30___2.0": {"triggered": 1, "missing": 1}}`, out)

	obj, ok := store.Object(forwardBucket, key)
	require.True(t, ok)
	assert.Equal(t, 1, obj.Touches)
}

func TestReconcileCmd_LocalPathDoesNotSelectBucket(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	setResponseEnv(t)

	store := storage.NewInMemoryObjectStore()
	key := seedTrigger(t, store, forwardBucket)
	path := writeReportIn(t, filepath.Join(t.TempDir(), "historical-backfill"))

	out, err := executeCmd(t, store, nil, "reconcile", path)

	require.NoError(t, err)
	assert.JSONEq(t, `{"HLSS30___2.0": {"triggered": 1, "missing": 1}}`, out)

	obj, ok := store.Object(forwardBucket, key)
	require.True(t, ok)
	assert.Equal(t, 1, obj.Touches)

	_, ok = store.Object(historicalBucket, key)
	assert.False(t, ok)
}

func TestReconcileCmd_DryRunHistorical(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	setResponseEnv(t)

	store := storage.NewInMemoryObjectStore()
	key := seedTrigger(t, store, historicalBucket)

	out, err := executeCmd(t, store, nil, "reconcile", "--dry-run", "--historical", writeReport(t))

	require.NoError(t, err)
	assert.JSONEq(t, `{"HLSS30___2.0": {"triggered": 1, "missing": 1}}`, out)

	obj, ok := store.Object(historicalBucket, key)
	require.True(t, ok)
	assert.Zero(t, obj.Touches)
}

func TestReconcileCmd_S3Object(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	setResponseEnv(t)

	store := storage.NewInMemoryObjectStore()
	seedTrigger(t, store, forwardBucket)
	require.NoError(t, store.Put(context.Background(), "lp-prod-reconciliation", "reports/r.json",
		strings.NewReader(discrepancyReport)))

	out, err := executeCmd(t, store, nil, "reconcile", "--details", "s3://lp-prod-reconciliation/reports/r.json")

	require.NoError(t, err)
	assert.Contains(t, out, `"HLS.S30.T17RMP.2124237T160829.v2.0"`)

	_, err = executeCmd(t, store, nil, "reconcile", "s3://lp-prod-reconciliation/reports/absent.json")
	require.Error(t, err)
}

func TestGenerateReportCmd(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("INVENTORY_TABLE_NAME", "hls_inventory")
	t.Setenv("QUERY_OUTPUT_PREFIX", "s3://hls-athena/results/")
	t.Setenv("REPORT_OUTPUT_PREFIX", "s3://hls-reports/reconciliation/")
	t.Setenv("HLS_PRODUCT_VERSION", "2.0")
	t.Setenv("QUERY_POLL_DELAY", "1ms")
	t.Setenv("REPORT_TEMP_DIR", t.TempDir())
	t.Setenv("HLS_LPDAAC_REPORT_EXTENSION", "")
	t.Setenv(report.ConfigPathEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))

	engine := &cannedEngine{rows: [][]string{
		report.FieldNames,
		{"HLSS30", "2.0", "HLS.S30.T15XWH.2025182T194859.v2.0.B01.tif", "1024", "2025-07-01T19:48:59.123Z", "NA"},
	}}
	store := storage.NewInMemoryObjectStore()

	out, err := executeCmd(t, store, engine, "generate-report", "--date", "2025-07-01", "--products", "S30")

	require.NoError(t, err)
	assert.Equal(t, "s3://hls-reports/reconciliation/2025182/HLS_reconcile_2025182_S30_2.0.rpt\t1\n", out)

	_, ok := store.Object("hls-reports", "reconciliation/2025182/HLS_reconcile_2025182_S30_2.0.rpt")
	assert.True(t, ok)

	_, err = executeCmd(t, store, engine, "generate-report", "--date", "01/07/2025")
	require.Error(t, err)
}

func TestRunsCmd_RequiresDatabase(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("DATABASE_URL", "")

	_, err := executeCmd(t, nil, nil, "runs")
	require.ErrorIs(t, err, storage.ErrDatabaseURLEmpty)
}

func TestPrintRuns(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	started := time.Date(2024, 8, 28, 1, 30, 0, 0, time.UTC)
	completed := started.Add(1500 * time.Millisecond)

	var out bytes.Buffer

	err := printRuns(&out, []storage.Run{
		{
			ID:          uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7"),
			Kind:        storage.RunKindResponse,
			Status:      storage.RunStatusCompleted,
			DryRun:      true,
			ReportURI:   "s3://lp-prod-reconciliation/reports/r.json",
			StartedAt:   started,
			CompletedAt: &completed,
		},
		{
			ID:        uuid.MustParse("9b2f1c6e-0d7a-4c1f-8b6e-2f7e3a4d5c6b"),
			Kind:      storage.RunKindReport,
			Status:    storage.RunStatusRunning,
			StartedAt: started,
		},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "completed (dry run)")
	assert.Contains(t, lines[1], "1.5s")
	assert.Contains(t, lines[1], "2024-08-28T01:30:00Z")
	assert.Contains(t, lines[2], string(storage.RunKindReport))
	assert.Contains(t, lines[2], " - ")
}

func TestPrintMissingGranules(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var out bytes.Buffer

	printMissingGranules(&out, map[string][]string{
		"HLSS30___2.0": {"HLS.S30.T17RMP.2124237T160829.v2.0"},
		"HLSL30___2.0": {"HLS.L30.T10SEG.2124237T183512.v2.0"},
	})

	assert.Equal(t,
		"HLSL30___2.0\tHLS.L30.T10SEG.2124237T183512.v2.0\nHLSS30___2.0\tHLS.S30.T17RMP.2124237T160829.v2.0\n",
		out.String())
}
