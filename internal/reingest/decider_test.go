package reingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/discrepancy"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/granule"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/notification"
)

const (
	testBucket = "hls-global"

	granuleWH  = "HLS.S30.T15XWH.2124237T194859.v2.0"
	granuleMP  = "HLS.S30.T17RMP.2124237T160829.v2.0"
	granuleCN  = "HLS.S30.T01WCN.2124237T234639.v2.0"
	triggerWH  = "S30/data/2124237/" + granuleWH + "/" + granuleWH + ".json"
	triggerMP  = "S30/data/2124237/" + granuleMP + "/" + granuleMP + ".json"
	collection = "HLSS30___2.0"
)

var errBackend = errors.New("backend unavailable")

// fakeStore records touches and lets tests inject per-key failures.
type fakeStore struct {
	mu         sync.Mutex
	objects    map[string]bool
	existsErrs map[string]error
	touchErrs  map[string]error
	touched    []string
}

func newFakeStore(keys ...string) *fakeStore {
	s := &fakeStore{
		objects:    make(map[string]bool),
		existsErrs: make(map[string]error),
		touchErrs:  make(map[string]error),
	}

	for _, k := range keys {
		s.objects[testBucket+"/"+k] = true
	}

	return s
}

func (s *fakeStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.existsErrs[key]; err != nil {
		return false, err
	}

	return s.objects[bucket+"/"+key], nil
}

func (s *fakeStore) Touch(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.touchErrs[key]; err != nil {
		return err
	}

	s.touched = append(s.touched, bucket+"/"+key)

	return nil
}

type fakeCatalog struct {
	published map[string]bool
	err       error
}

func (c *fakeCatalog) GranuleExists(_ context.Context, _ granule.CollectionID, granuleID string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}

	return c.published[granuleID], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func s30() granule.CollectionID {
	return granule.CollectionID{ShortName: "HLSS30", Version: "2.0"}
}

func TestDecide(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name        string
		granuleID   string
		setup       func(*fakeStore)
		catalog     Catalog
		dryRun      bool
		wantOutcome Outcome
		wantErr     error
		wantTouched []string
	}{
		{
			name:        "trigger present is touched",
			granuleID:   granuleWH,
			wantOutcome: OutcomeTriggered,
			wantTouched: []string{testBucket + "/" + triggerWH},
		},
		{
			name:        "trigger absent is missing",
			granuleID:   granuleMP,
			wantOutcome: OutcomeMissing,
		},
		{
			name:        "dry run does not touch",
			granuleID:   granuleWH,
			dryRun:      true,
			wantOutcome: OutcomeTriggered,
		},
		{
			name:        "published granule is skipped",
			granuleID:   granuleWH,
			catalog:     &fakeCatalog{published: map[string]bool{granuleWH: true}},
			wantOutcome: OutcomeSkipped,
		},
		{
			name:        "unpublished granule falls through to trigger check",
			granuleID:   granuleWH,
			catalog:     &fakeCatalog{published: map[string]bool{}},
			wantOutcome: OutcomeTriggered,
			wantTouched: []string{testBucket + "/" + triggerWH},
		},
		{
			name:        "catalog failure is an error",
			granuleID:   granuleWH,
			catalog:     &fakeCatalog{err: errBackend},
			wantOutcome: OutcomeError,
			wantErr:     errBackend,
		},
		{
			name:        "unmappable granule ID is an error",
			granuleID:   "XYZ.S30.T15XWH.2124237T194859.v2.0",
			wantOutcome: OutcomeError,
			wantErr:     granule.ErrMalformedGranuleID,
		},
		{
			name:        "existence check failure is an error",
			granuleID:   granuleWH,
			setup:       func(s *fakeStore) { s.existsErrs[triggerWH] = errBackend },
			wantOutcome: OutcomeError,
			wantErr:     errBackend,
		},
		{
			name:        "touch failure is an error",
			granuleID:   granuleWH,
			setup:       func(s *fakeStore) { s.touchErrs[triggerWH] = errBackend },
			wantOutcome: OutcomeError,
			wantErr:     ErrTouchFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(triggerWH)
			if tt.setup != nil {
				tt.setup(store)
			}

			decider := NewDecider(store, Config{Catalog: tt.catalog, DryRun: tt.dryRun}, discardLogger())

			outcome, err := decider.Decide(context.Background(), s30(), testBucket, tt.granuleID)

			assert.Equal(t, tt.wantOutcome, outcome)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.wantTouched, store.touched)
		})
	}
}

func TestDecide_IdempotentReplay(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newFakeStore(triggerWH)
	decider := NewDecider(store, Config{}, discardLogger())

	for range 3 {
		outcome, err := decider.Decide(context.Background(), s30(), testBucket, granuleWH)

		require.NoError(t, err)
		assert.Equal(t, OutcomeTriggered, outcome)
	}

	assert.Len(t, store.touched, 3)
}

func TestDecide_CancelledContextStopsThrottledTouch(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newFakeStore(triggerWH)
	decider := NewDecider(store, Config{TouchRateLimit: 0.001, TouchBurst: 1}, discardLogger())

	outcome, err := decider.Decide(context.Background(), s30(), testBucket, granuleWH)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTriggered, outcome)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err = decider.Decide(ctx, s30(), testBucket, granuleWH)

	assert.Equal(t, OutcomeError, outcome)
	require.ErrorIs(t, err, ErrTouchFailed)
	assert.Len(t, store.touched, 1)
}

func TestCatalogEnabled(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.False(t, NewDecider(newFakeStore(), Config{}, nil).CatalogEnabled())
	assert.True(t, NewDecider(newFakeStore(), Config{Catalog: &fakeCatalog{}}, nil).CatalogEnabled())
}

func TestProcessReport_Triggered(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	decider := NewDecider(newFakeStore(triggerWH), Config{}, discardLogger())
	groups := []discrepancy.Group{{CollectionID: collection, FileCount: 2, GranuleIDs: []string{granuleWH}}}

	result, err := decider.ProcessReport(context.Background(), testBucket, groups)

	require.NoError(t, err)
	assert.Equal(t, Summary{collection: {OutcomeTriggered: 1}}, result.Summary())
}

func TestProcessReport_Missing(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	decider := NewDecider(newFakeStore(), Config{}, discardLogger())
	groups := []discrepancy.Group{{CollectionID: collection, FileCount: 1, GranuleIDs: []string{granuleWH}}}

	result, err := decider.ProcessReport(context.Background(), testBucket, groups)

	require.NoError(t, err)
	assert.Equal(t, Summary{collection: {OutcomeMissing: 1}}, result.Summary())
}

func TestProcessReport_FixtureShape(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newFakeStore(triggerWH)
	decider := NewDecider(store, Config{}, discardLogger())
	groups := []discrepancy.Group{
		{CollectionID: "HLSL30___2.0", GranuleIDs: []string{}},
		{CollectionID: collection, FileCount: 5, GranuleIDs: []string{granuleCN, granuleWH, granuleMP}},
	}

	result, err := decider.ProcessReport(context.Background(), testBucket, groups)

	require.NoError(t, err)
	assert.Equal(t, Summary{
		"HLSL30___2.0": {},
		collection:     {OutcomeTriggered: 1, OutcomeMissing: 2},
	}, result.Summary())
	assert.Equal(t, []string{testBucket + "/" + triggerWH}, store.touched)
	assert.Equal(t, []string{granuleCN, granuleMP}, result.Collections[1].Granules[OutcomeMissing])
	assert.Equal(t, map[Outcome]int{OutcomeTriggered: 1, OutcomeMissing: 2}, result.Totals())
}

func TestProcessReport_ErrorIsolation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newFakeStore(triggerWH, triggerMP)
	store.existsErrs[triggerWH] = errBackend
	decider := NewDecider(store, Config{}, discardLogger())
	groups := []discrepancy.Group{{
		CollectionID: collection,
		FileCount:    3,
		GranuleIDs:   []string{granuleWH, granuleMP},
		Invalid:      []string{"manifest.txt"},
	}}

	result, err := decider.ProcessReport(context.Background(), testBucket, groups)

	require.NoError(t, err)
	assert.Equal(t, Summary{collection: {OutcomeTriggered: 1, OutcomeError: 2}}, result.Summary())
	assert.Equal(t, []string{"manifest.txt", granuleWH}, result.Collections[0].Granules[OutcomeError])
	assert.Equal(t, []string{testBucket + "/" + triggerMP}, store.touched)
}

func TestProcessReport_MalformedCollectionAbortsBeforeTouching(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newFakeStore(triggerWH)
	decider := NewDecider(store, Config{}, discardLogger())
	groups := []discrepancy.Group{
		{CollectionID: collection, GranuleIDs: []string{granuleWH}},
		{CollectionID: "HLSS30-2.0", GranuleIDs: []string{granuleMP}},
	}

	result, err := decider.ProcessReport(context.Background(), testBucket, groups)

	require.ErrorIs(t, err, granule.ErrMalformedCollectionID)
	assert.Nil(t, result)
	assert.Empty(t, store.touched)
}

func TestBucketRouter(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	router := BucketRouter{Forward: "hls-global", Historical: "hls-historical"}

	assert.Equal(t, "hls-global",
		router.BucketFor(notification.Location{Bucket: "lp", Key: "reports/HLS_reconcile_2024239_2.0.json"}))
	assert.Equal(t, "hls-historical",
		router.BucketFor(notification.Location{Bucket: "lp", Key: "historical/HLS_reconcile_2024239_2.0.json"}))
}

func TestSummary_Merge(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	summary := Summary{
		"HLSS30___2.0": {OutcomeTriggered: 1, OutcomeMissing: 2},
	}
	other := Summary{
		"HLSS30___2.0": {OutcomeMissing: 1, OutcomeError: 1},
		"HLSL30___2.0": {},
	}

	summary.Merge(other)

	assert.Equal(t, Summary{
		"HLSS30___2.0": {OutcomeTriggered: 1, OutcomeMissing: 3, OutcomeError: 1},
		"HLSL30___2.0": {},
	}, summary)

	other["HLSL30___2.0"][OutcomeMissing] = 7
	assert.Empty(t, summary["HLSL30___2.0"])
}
