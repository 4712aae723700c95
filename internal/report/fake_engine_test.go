package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var header = []string{"short_name", "version", "filename", "size", "last_modified", "checksum"}

// fakeEngine replays a scripted sequence of statuses and a fixed result set.
type fakeEngine struct {
	statuses  []QueryStatus
	statusErr error
	startErr  error
	streamErr error
	rows      [][]string

	started     []QueryRequest
	statusCalls int
}

func (e *fakeEngine) StartQuery(_ context.Context, req QueryRequest) (string, error) {
	if e.startErr != nil {
		return "", e.startErr
	}

	e.started = append(e.started, req)

	return "query-1", nil
}

func (e *fakeEngine) GetStatus(_ context.Context, _ string) (QueryStatus, error) {
	e.statusCalls++

	if e.statusErr != nil {
		return QueryStatus{}, e.statusErr
	}

	if len(e.statuses) == 0 {
		return QueryStatus{State: QueryStateSucceeded}, nil
	}

	i := min(e.statusCalls, len(e.statuses)) - 1

	return e.statuses[i], nil
}

func (e *fakeEngine) StreamResults(_ context.Context, _ string, fn func(row []string) error) error {
	for _, row := range e.rows {
		if err := fn(row); err != nil {
			return err
		}
	}

	return e.streamErr
}

// memoryWriter records uploads.
type memoryWriter struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{objects: make(map[string]string)}
}

func (w *memoryWriter) Put(_ context.Context, bucket, key string, body io.Reader) error {
	if w.err != nil {
		return w.err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.objects[bucket+"/"+key] = string(data)

	return nil
}

var errEngine = errors.New("engine unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// instantPoller never sleeps but records the requested delays.
func instantPoller(maxAttempts int, delays *[]time.Duration) *Poller {
	p := NewPoller(5*time.Second, maxAttempts, discardLogger())
	p.sleep = func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}

		return ctx.Err()
	}

	return p
}

func row(key, size string) []string {
	parts := strings.Split(key, "/")
	filename := parts[len(parts)-1]

	return []string{"HLS" + parts[0], "2.0", filename, size, "2024-08-26T19:48:59.123Z", "NA"}
}
