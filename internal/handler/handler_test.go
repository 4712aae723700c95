package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/storage"
)

var errUnavailable = errors.New("service unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type published struct {
	topic   string
	payload string
}

type fakePublisher struct {
	messages []published
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	if p.err != nil {
		return p.err
	}

	p.messages = append(p.messages, published{topic: topic, payload: string(payload)})

	return nil
}

func (p *fakePublisher) Close() error { return nil }

// fakeLedger records every call; startErr disables the run.
type fakeLedger struct {
	mu sync.Mutex

	startErr    error
	outcomesErr error

	runs        []storage.Run
	outcomes    []storage.CollectionOutcome
	reportFiles []storage.ReportFile
	completed   []error
}

func (l *fakeLedger) StartRun(_ context.Context, run storage.Run) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.startErr != nil {
		return uuid.Nil, l.startErr
	}

	l.runs = append(l.runs, run)

	return uuid.New(), nil
}

func (l *fakeLedger) RecordOutcomes(_ context.Context, _ uuid.UUID, outcomes []storage.CollectionOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.outcomesErr != nil {
		return l.outcomesErr
	}

	l.outcomes = append(l.outcomes, outcomes...)

	return nil
}

func (l *fakeLedger) RecordReportFile(_ context.Context, _ uuid.UUID, file storage.ReportFile) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reportFiles = append(l.reportFiles, file)

	return nil
}

func (l *fakeLedger) CompleteRun(_ context.Context, _ uuid.UUID, runErr error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.completed = append(l.completed, runErr)

	return nil
}

func putObject(t *testing.T, store *storage.InMemoryObjectStore, bucket, key, body string) {
	t.Helper()

	require.NoError(t, store.Put(context.Background(), bucket, key, strings.NewReader(body)))
}

func (l *fakeLedger) Close() error { return nil }
