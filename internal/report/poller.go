package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultPollDelay is the fixed wait between status checks.
	DefaultPollDelay = 5 * time.Second
	// DefaultPollMaxAttempts bounds the number of status checks.
	DefaultPollMaxAttempts = 60
)

// QueryState is the lifecycle state of a query execution.
type QueryState string

const (
	QueryStateQueued    QueryState = "QUEUED"
	QueryStateRunning   QueryState = "RUNNING"
	QueryStateSucceeded QueryState = "SUCCEEDED"
	QueryStateFailed    QueryState = "FAILED"
	QueryStateCancelled QueryState = "CANCELLED"
)

var (
	// ErrQueryTimeout is returned when a query is still pending after the last poll.
	ErrQueryTimeout = errors.New("timed out waiting for query")
	// ErrUnknownQueryState is returned for a state outside the known lifecycle.
	ErrUnknownQueryState = errors.New("unknown query state")
)

// IsTerminal reports whether s ends the execution.
func (s QueryState) IsTerminal() bool {
	return s == QueryStateSucceeded || s == QueryStateFailed || s == QueryStateCancelled
}

type (
	// QueryStatus is the state of an execution, with the engine's reason for
	// failed or cancelled executions.
	QueryStatus struct {
		State  QueryState
		Reason string
	}

	// QueryRequest is a query submission.
	QueryRequest struct {
		SQL            string
		Catalog        string
		Database       string
		OutputLocation string
	}

	// QueryEngine runs inventory queries.
	QueryEngine interface {
		// StartQuery submits the query and returns its execution ID.
		StartQuery(ctx context.Context, req QueryRequest) (string, error)
		// GetStatus returns the current state of an execution.
		GetStatus(ctx context.Context, executionID string) (QueryStatus, error)
		// StreamResults calls fn for every result row, in order, starting with
		// the header row. Returning an error from fn stops the stream.
		StreamResults(ctx context.Context, executionID string, fn func(row []string) error) error
	}

	// QueryExecutionError reports a query that ended FAILED or CANCELLED.
	QueryExecutionError struct {
		ExecutionID string
		State       QueryState
		Reason      string
	}

	// Poller waits for query executions with a fixed delay and attempt ceiling.
	Poller struct {
		Delay       time.Duration
		MaxAttempts int
		Logger      *slog.Logger

		// sleep waits for d or until ctx is done.
		sleep func(ctx context.Context, d time.Duration) error
	}
)

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query %s was unsuccessful (%s): %s", e.ExecutionID, e.State, e.Reason)
}

// NewPoller creates a Poller. Non-positive values select the defaults.
// A Poller built as a literal logs to slog.Default and sleeps on a timer.
func NewPoller(delay time.Duration, maxAttempts int, logger *slog.Logger) *Poller {
	if delay <= 0 {
		delay = DefaultPollDelay
	}

	if maxAttempts <= 0 {
		maxAttempts = DefaultPollMaxAttempts
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{Delay: delay, MaxAttempts: maxAttempts, Logger: logger, sleep: sleepContext}
}

// Await polls executionID until it succeeds.
//
// It returns a *QueryExecutionError when the execution fails or is cancelled,
// ErrQueryTimeout when it is still pending after MaxAttempts status checks,
// and the context error when ctx ends first. Status lookup failures are
// returned as is and not retried.
func (p *Poller) Await(ctx context.Context, engine QueryEngine, executionID string) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		status, err := engine.GetStatus(ctx, executionID)
		if err != nil {
			return fmt.Errorf("failed to get status of query %s: %w", executionID, err)
		}

		switch {
		case status.State == QueryStateSucceeded:
			logger.Info("Query completed successfully",
				slog.String("query_id", executionID),
				slog.Int("attempt", attempt))

			return nil
		case status.State.IsTerminal():
			return &QueryExecutionError{ExecutionID: executionID, State: status.State, Reason: status.Reason}
		case status.State == QueryStateQueued, status.State == QueryStateRunning:
		default:
			return fmt.Errorf("%w: %q for query %s", ErrUnknownQueryState, status.State, executionID)
		}

		if attempt == p.MaxAttempts {
			break
		}

		logger.Debug("Waiting for query",
			slog.String("query_id", executionID),
			slog.String("state", string(status.State)),
			slog.Int("attempt", attempt),
			slog.Duration("delay", p.Delay))

		if err := sleep(ctx, p.Delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: query %s still pending after %d attempts", ErrQueryTimeout, executionID, p.MaxAttempts)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
