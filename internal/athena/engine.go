// Package athena runs inventory queries on Amazon Athena for the report generator.
package athena

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsathena "github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/report"
)

// PageSize is the number of rows requested per GetQueryResults call.
const PageSize int32 = 1000

var (
	// ErrMissingExecution is returned when Athena responds without a query execution.
	ErrMissingExecution = errors.New("athena returned no query execution")
	// ErrMissingExecutionID is returned when StartQueryExecution yields no id.
	ErrMissingExecutionID = errors.New("athena returned no query execution id")
)

var _ report.QueryEngine = (*Engine)(nil)

type (
	// API is the subset of the Athena client used by Engine.
	API interface {
		StartQueryExecution(
			ctx context.Context, params *awsathena.StartQueryExecutionInput, optFns ...func(*awsathena.Options),
		) (*awsathena.StartQueryExecutionOutput, error)
		GetQueryExecution(
			ctx context.Context, params *awsathena.GetQueryExecutionInput, optFns ...func(*awsathena.Options),
		) (*awsathena.GetQueryExecutionOutput, error)
		awsathena.GetQueryResultsAPIClient
	}

	// Engine implements report.QueryEngine on Athena.
	Engine struct {
		client   API
		pageSize int32
	}
)

// NewEngine loads the default AWS configuration and creates an Athena engine.
func NewEngine(ctx context.Context, region string) (*Engine, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewEngineWithClient(awsathena.NewFromConfig(awsCfg)), nil
}

// NewEngineWithClient wraps an existing client.
func NewEngineWithClient(client API) *Engine {
	return &Engine{client: client, pageSize: PageSize}
}

// StartQuery submits req and returns the query execution id.
func (e *Engine) StartQuery(ctx context.Context, req report.QueryRequest) (string, error) {
	input := &awsathena.StartQueryExecutionInput{
		QueryString: aws.String(req.SQL),
		QueryExecutionContext: &types.QueryExecutionContext{
			Catalog:  optionalString(req.Catalog),
			Database: optionalString(req.Database),
		},
	}

	if req.OutputLocation != "" {
		input.ResultConfiguration = &types.ResultConfiguration{
			OutputLocation: aws.String(req.OutputLocation),
		}
	}

	out, err := e.client.StartQueryExecution(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to start query execution: %w", err)
	}

	id := aws.ToString(out.QueryExecutionId)
	if id == "" {
		return "", ErrMissingExecutionID
	}

	return id, nil
}

// GetStatus returns the state of the query execution id.
func (e *Engine) GetStatus(ctx context.Context, id string) (report.QueryStatus, error) {
	out, err := e.client.GetQueryExecution(ctx, &awsathena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(id),
	})
	if err != nil {
		return report.QueryStatus{}, fmt.Errorf("failed to get query execution %s: %w", id, err)
	}

	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return report.QueryStatus{}, fmt.Errorf("%w: %s", ErrMissingExecution, id)
	}

	status := out.QueryExecution.Status

	return report.QueryStatus{
		State:  report.QueryState(status.State),
		Reason: aws.ToString(status.StateChangeReason),
	}, nil
}

// StreamResults pages through the results of id and calls fn for every row,
// header first. A null cell is passed as "".
func (e *Engine) StreamResults(ctx context.Context, id string, fn func(row []string) error) error {
	paginator := awsathena.NewGetQueryResultsPaginator(e.client, &awsathena.GetQueryResultsInput{
		QueryExecutionId: aws.String(id),
		MaxResults:       aws.Int32(e.pageSize),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch results of %s: %w", id, err)
		}

		if page.ResultSet == nil {
			continue
		}

		for _, r := range page.ResultSet.Rows {
			values := make([]string, len(r.Data))
			for i, datum := range r.Data {
				values[i] = aws.ToString(datum.VarCharValue)
			}

			if err := fn(values); err != nil {
				return err
			}
		}
	}

	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}

	return aws.String(s)
}
