// Package rpcclient is the typed async wrapper over the backtest/strategy/
// optimization control RPC surface described in spec.md §4.1. It speaks grpc
// transport (deadlines, status codes, connection pooling) against a JSON
// wire encoding — see codec.go and DESIGN.md for why.
package rpcclient

import (
	"context"
	"fmt"
	"time"

	"github.com/codycjy/freqsearch-orchestrator/pkg/orcherrors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const serviceName = "/optimization.v1.OptimizationService/"

// Config configures connection and deadline behavior for a Client.
type Config struct {
	Address          string
	Insecure         bool
	DefaultDeadline  time.Duration // applied to every call except ValidateStrategy
	ValidateDeadline time.Duration // applied to ValidateStrategy only (spec.md §4.1: longer because first call may build a sandbox image)
}

// Client is a scoped resource: Open establishes the channel, the returned
// close func tears it down. Callers defer the close around all the calls
// that use the Client: `optimize` opens one Client for its single run,
// `serve` opens one Client shared by every run it drives.
type Client struct {
	conn *grpc.ClientConn
	cfg  Config
}

// Open dials addr and returns a ready Client plus its close function.
func Open(cfg Config, extraOpts ...grpc.DialOption) (*Client, func() error, error) {
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = 30 * time.Second
	}
	if cfg.ValidateDeadline <= 0 {
		cfg.ValidateDeadline = 60 * time.Second
	}

	var dialOpts []grpc.DialOption
	if cfg.Insecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	dialOpts = append(dialOpts, extraOpts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create rpc client for %s: %w", cfg.Address, err)
	}
	c := &Client{conn: conn, cfg: cfg}
	return c, conn.Close, nil
}

func (c *Client) invoke(ctx context.Context, method string, deadline time.Duration, req, resp any) error {
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	err := c.conn.Invoke(callCtx, serviceName+method, req, resp, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return mapError(err)
	}
	return nil
}

// mapError applies spec.md §4.1's fixed taxonomy:
// NOT_FOUND; INVALID_ARGUMENT/FAILED_PRECONDITION → ValidationError;
// UNAVAILABLE → ConnectionError; DEADLINE_EXCEEDED → TimeoutError;
// CANCELLED → CancelledError; others → InternalError.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %w", orcherrors.ErrInternal, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return orcherrors.NewNotFoundError("resource", st.Message())
	case codes.InvalidArgument, codes.FailedPrecondition:
		return orcherrors.NewValidationError("", st.Message())
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", orcherrors.ErrConnection, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", orcherrors.ErrTimeout, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", orcherrors.ErrCancelled, st.Message())
	default:
		return fmt.Errorf("%w: %s", orcherrors.ErrInternal, st.Message())
	}
}

func (c *Client) CreateStrategy(ctx context.Context, req CreateStrategyRequest) (CreateStrategyResponse, error) {
	var resp CreateStrategyResponse
	err := c.invoke(ctx, "CreateStrategy", c.cfg.DefaultDeadline, &req, &resp)
	return resp, err
}

func (c *Client) GetStrategy(ctx context.Context, strategyID string) (GetStrategyResponse, error) {
	var resp GetStrategyResponse
	err := c.invoke(ctx, "GetStrategy", c.cfg.DefaultDeadline, &GetStrategyRequest{StrategyID: strategyID}, &resp)
	return resp, err
}

func (c *Client) ValidateStrategy(ctx context.Context, req ValidateStrategyRequest) (ValidateStrategyResponse, error) {
	var resp ValidateStrategyResponse
	err := c.invoke(ctx, "ValidateStrategy", c.cfg.ValidateDeadline, &req, &resp)
	return resp, err
}

func (c *Client) SubmitBacktest(ctx context.Context, req SubmitBacktestRequest) (SubmitBacktestResponse, error) {
	var resp SubmitBacktestResponse
	err := c.invoke(ctx, "SubmitBacktest", c.cfg.DefaultDeadline, &req, &resp)
	return resp, err
}

func (c *Client) GetBacktestJob(ctx context.Context, jobID string) (GetBacktestJobResponse, error) {
	var resp GetBacktestJobResponse
	err := c.invoke(ctx, "GetBacktestJob", c.cfg.DefaultDeadline, &GetBacktestJobRequest{JobID: jobID}, &resp)
	return resp, err
}

func (c *Client) GetBacktestResult(ctx context.Context, jobID string) (GetBacktestResultResponse, error) {
	var resp GetBacktestResultResponse
	err := c.invoke(ctx, "GetBacktestResult", c.cfg.DefaultDeadline, &GetBacktestResultRequest{JobID: jobID}, &resp)
	return resp, err
}

func (c *Client) ControlOptimization(ctx context.Context, req ControlOptimizationRequest) (ControlOptimizationResponse, error) {
	var resp ControlOptimizationResponse
	err := c.invoke(ctx, "ControlOptimization", c.cfg.DefaultDeadline, &req, &resp)
	return resp, err
}

func (c *Client) GetOptimizationRun(ctx context.Context, runID string) (GetOptimizationRunResponse, error) {
	var resp GetOptimizationRunResponse
	err := c.invoke(ctx, "GetOptimizationRun", c.cfg.DefaultDeadline, &GetOptimizationRunRequest{RunID: runID}, &resp)
	return resp, err
}

func (c *Client) ListOptimizationRuns(ctx context.Context, req ListOptimizationRunsRequest) (ListOptimizationRunsResponse, error) {
	var resp ListOptimizationRunsResponse
	err := c.invoke(ctx, "ListOptimizationRuns", c.cfg.DefaultDeadline, &req, &resp)
	return resp, err
}

func (c *Client) EngineerGenerate(ctx context.Context, req EngineerGenerateRequest) (EngineerGenerateResponse, error) {
	var resp EngineerGenerateResponse
	err := c.invoke(ctx, "EngineerGenerate", c.cfg.DefaultDeadline, &req, &resp)
	return resp, err
}

func (c *Client) AnalystDiagnose(ctx context.Context, req AnalystDiagnoseRequest) (AnalystDiagnoseResponse, error) {
	var resp AnalystDiagnoseResponse
	err := c.invoke(ctx, "AnalystDiagnose", c.cfg.DefaultDeadline, &req, &resp)
	return resp, err
}
