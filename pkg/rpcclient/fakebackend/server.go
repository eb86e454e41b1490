// Package fakebackend is an in-memory implementation of the backend's gRPC
// surface (spec.md §4.1), served over a real *grpc.Server via an in-process
// bufconn listener. It exists so tests can exercise
// the production rpcclient.Client against deterministic, explicit state
// instead of a live backend — grounded on teacher test/e2e/mock_llm.go's
// pattern of an in-process fake standing in behind the real client interface.
package fakebackend

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/model"
	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// Backend is the in-memory store plus the grpc.ServiceDesc wiring.
type Backend struct {
	mu sync.Mutex

	strategies map[string]model.Strategy
	jobs       map[string]model.BacktestJob
	results    map[string]model.BacktestResult
	runs       map[string]model.OptimizationRun
	iterations map[string][]model.Iteration

	// ValidateFunc/EngineerFunc/AnalystFunc hooks let tests script outcomes
	// without reimplementing domain semantics each time.
	ValidateFunc func(code, name string) rpcclient.ValidateStrategyResponse
	EngineerFunc func(req rpcclient.EngineerGenerateRequest) rpcclient.EngineerGenerateResponse
	AnalystFunc  func(req rpcclient.AnalystDiagnoseRequest) rpcclient.AnalystDiagnoseResponse

	nextJobSeq int
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		strategies: make(map[string]model.Strategy),
		jobs:       make(map[string]model.BacktestJob),
		results:    make(map[string]model.BacktestResult),
		runs:       make(map[string]model.OptimizationRun),
		iterations: make(map[string][]model.Iteration),
	}
}

// SeedRun registers a run record directly, for test setup.
func (b *Backend) SeedRun(run model.OptimizationRun) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runs[run.RunID] = run
}

// SeedStrategy registers a strategy record directly, for test setup.
func (b *Backend) SeedStrategy(s model.Strategy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.strategies[s.StrategyID] = s
}

// SeedJobResult pre-registers a completed (or failed) job+result pair so a
// test-driven Engineer/Analyst flow can call SubmitBacktest and immediately
// poll it to completion.
func (b *Backend) SeedJobResult(job model.BacktestJob, result model.BacktestResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs[job.JobID] = job
	b.results[job.JobID] = result
}

// Listen starts an in-process grpc.Server bound to a bufconn listener and
// returns a dialer suitable for grpc.WithContextDialer.
func (b *Backend) Listen() (dialer func(context.Context, string) (net.Conn, error), stop func()) {
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	srv.RegisterService(serviceDesc(), b)

	go func() { _ = srv.Serve(lis) }()

	return func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}, func() {
			srv.Stop()
			_ = lis.Close()
		}
}

// DialClient starts the Backend's in-process server and returns a ready
// rpcclient.Client wired to it via bufconn, plus a combined close function.
func (b *Backend) DialClient() (*rpcclient.Client, func() error, error) {
	dialer, stop := b.Listen()
	client, closeConn, err := rpcclient.Open(rpcclient.Config{Address: "bufnet", Insecure: true},
		grpc.WithContextDialer(dialer))
	if err != nil {
		stop()
		return nil, nil, err
	}
	return client, func() error {
		err := closeConn()
		stop()
		return err
	}, nil
}

func serviceDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: "optimization.v1.OptimizationService",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			unaryMethod("CreateStrategy", func(b *Backend, ctx context.Context, req *rpcclient.CreateStrategyRequest) (*rpcclient.CreateStrategyResponse, error) {
				return b.createStrategy(req)
			}),
			unaryMethod("GetStrategy", func(b *Backend, ctx context.Context, req *rpcclient.GetStrategyRequest) (*rpcclient.GetStrategyResponse, error) {
				return b.getStrategy(req)
			}),
			unaryMethod("ValidateStrategy", func(b *Backend, ctx context.Context, req *rpcclient.ValidateStrategyRequest) (*rpcclient.ValidateStrategyResponse, error) {
				return b.validateStrategy(req)
			}),
			unaryMethod("SubmitBacktest", func(b *Backend, ctx context.Context, req *rpcclient.SubmitBacktestRequest) (*rpcclient.SubmitBacktestResponse, error) {
				return b.submitBacktest(req)
			}),
			unaryMethod("GetBacktestJob", func(b *Backend, ctx context.Context, req *rpcclient.GetBacktestJobRequest) (*rpcclient.GetBacktestJobResponse, error) {
				return b.getBacktestJob(req)
			}),
			unaryMethod("GetBacktestResult", func(b *Backend, ctx context.Context, req *rpcclient.GetBacktestResultRequest) (*rpcclient.GetBacktestResultResponse, error) {
				return b.getBacktestResult(req)
			}),
			unaryMethod("ControlOptimization", func(b *Backend, ctx context.Context, req *rpcclient.ControlOptimizationRequest) (*rpcclient.ControlOptimizationResponse, error) {
				return b.controlOptimization(req)
			}),
			unaryMethod("GetOptimizationRun", func(b *Backend, ctx context.Context, req *rpcclient.GetOptimizationRunRequest) (*rpcclient.GetOptimizationRunResponse, error) {
				return b.getOptimizationRun(req)
			}),
			unaryMethod("ListOptimizationRuns", func(b *Backend, ctx context.Context, req *rpcclient.ListOptimizationRunsRequest) (*rpcclient.ListOptimizationRunsResponse, error) {
				return b.listOptimizationRuns(req)
			}),
			unaryMethod("EngineerGenerate", func(b *Backend, ctx context.Context, req *rpcclient.EngineerGenerateRequest) (*rpcclient.EngineerGenerateResponse, error) {
				return b.engineerGenerate(req)
			}),
			unaryMethod("AnalystDiagnose", func(b *Backend, ctx context.Context, req *rpcclient.AnalystDiagnoseRequest) (*rpcclient.AnalystDiagnoseResponse, error) {
				return b.analystDiagnose(req)
			}),
		},
	}
}

// unaryMethod adapts a typed (*Backend, ctx, *Req) (*Resp, error) function
// into a grpc.MethodDesc, decoding the request with the server's registered
// codec (the jsonCodec from codec.go — shared process-wide, selected by the
// client's content-subtype call option).
func unaryMethod[Req any, Resp any](name string, fn func(*Backend, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			b, ok := srv.(*Backend)
			if !ok {
				return nil, status.Error(codes.Internal, "unexpected service type")
			}
			return fn(b, ctx, req)
		},
	}
}

func (b *Backend) createStrategy(req *rpcclient.CreateStrategyRequest) (*rpcclient.CreateStrategyResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	generation := 0
	if req.ParentID != "" {
		parent, ok := b.strategies[req.ParentID]
		if !ok {
			return nil, status.Errorf(codes.NotFound, "parent strategy %s not found", req.ParentID)
		}
		generation = parent.Generation + 1
	}
	s := model.Strategy{
		StrategyID: uuid.NewString(),
		Name:       req.Name,
		Code:       req.Code,
		ParentID:   req.ParentID,
		Generation: generation,
	}
	b.strategies[s.StrategyID] = s
	return &rpcclient.CreateStrategyResponse{Strategy: s}, nil
}

func (b *Backend) getStrategy(req *rpcclient.GetStrategyRequest) (*rpcclient.GetStrategyResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.strategies[req.StrategyID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "strategy %s not found", req.StrategyID)
	}
	return &rpcclient.GetStrategyResponse{Strategy: s}, nil
}

func (b *Backend) validateStrategy(req *rpcclient.ValidateStrategyRequest) (*rpcclient.ValidateStrategyResponse, error) {
	if b.ValidateFunc != nil {
		resp := b.ValidateFunc(req.Code, req.Name)
		return &resp, nil
	}
	if req.Code == "" {
		return &rpcclient.ValidateStrategyResponse{Valid: false, Errors: []string{"code is empty"}}, nil
	}
	return &rpcclient.ValidateStrategyResponse{Valid: true}, nil
}

func (b *Backend) submitBacktest(req *rpcclient.SubmitBacktestRequest) (*rpcclient.SubmitBacktestResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.strategies[req.StrategyID]; !ok {
		return nil, status.Errorf(codes.NotFound, "strategy %s not found", req.StrategyID)
	}
	b.nextJobSeq++
	job := model.BacktestJob{
		JobID:      fmt.Sprintf("job-%d", b.nextJobSeq),
		StrategyID: req.StrategyID,
		Status:     model.JobStatusQueued,
	}
	b.jobs[job.JobID] = job
	return &rpcclient.SubmitBacktestResponse{Job: job}, nil
}

func (b *Backend) getBacktestJob(req *rpcclient.GetBacktestJobRequest) (*rpcclient.GetBacktestJobResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[req.JobID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "job %s not found", req.JobID)
	}
	return &rpcclient.GetBacktestJobResponse{Job: j}, nil
}

func (b *Backend) getBacktestResult(req *rpcclient.GetBacktestResultRequest) (*rpcclient.GetBacktestResultResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[req.JobID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "job %s not found", req.JobID)
	}
	if j.Status != model.JobStatusCompleted {
		return nil, status.Errorf(codes.FailedPrecondition, "job %s is not completed", req.JobID)
	}
	r, ok := b.results[req.JobID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "result for job %s not found", req.JobID)
	}
	return &rpcclient.GetBacktestResultResponse{Result: r}, nil
}

func (b *Backend) controlOptimization(req *rpcclient.ControlOptimizationRequest) (*rpcclient.ControlOptimizationResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	run, ok := b.runs[req.RunID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "run %s not found", req.RunID)
	}
	switch req.Action {
	case model.ActionPause:
		run.Status = model.RunStatusPaused
	case model.ActionResume:
		run.Status = model.RunStatusRunning
	case model.ActionCancel:
		run.Status = model.RunStatusCancelled
	case model.ActionComplete:
		run.Status = model.RunStatusCompleted
		if req.BestStrategyID != "" {
			run.BestStrategyID = req.BestStrategyID
		}
	case model.ActionFail:
		run.Status = model.RunStatusFailed
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown action %q", req.Action)
	}
	b.runs[req.RunID] = run
	return &rpcclient.ControlOptimizationResponse{Success: true, Run: run}, nil
}

func (b *Backend) getOptimizationRun(req *rpcclient.GetOptimizationRunRequest) (*rpcclient.GetOptimizationRunResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	run, ok := b.runs[req.RunID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "run %s not found", req.RunID)
	}
	return &rpcclient.GetOptimizationRunResponse{Run: run, Iterations: b.iterations[req.RunID]}, nil
}

func (b *Backend) listOptimizationRuns(req *rpcclient.ListOptimizationRunsRequest) (*rpcclient.ListOptimizationRunsResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	var matched []model.OptimizationRun
	for _, r := range b.runs {
		if req.Status != "" && string(r.Status) != req.Status {
			continue
		}
		matched = append(matched, r)
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	return &rpcclient.ListOptimizationRunsResponse{
		Runs: matched[start:end],
		Pagination: model.Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalCount: len(matched),
		},
	}, nil
}

func (b *Backend) engineerGenerate(req *rpcclient.EngineerGenerateRequest) (*rpcclient.EngineerGenerateResponse, error) {
	if b.EngineerFunc != nil {
		resp := b.EngineerFunc(*req)
		return &resp, nil
	}
	// default: always succeeds, echoing the input code back with a marker comment.
	return &rpcclient.EngineerGenerateResponse{
		GeneratedCode:    req.Code + "\n# generated\n",
		ValidationPassed: true,
		StrategyName:     req.Name,
	}, nil
}

func (b *Backend) analystDiagnose(req *rpcclient.AnalystDiagnoseRequest) (*rpcclient.AnalystDiagnoseResponse, error) {
	if b.AnalystFunc != nil {
		resp := b.AnalystFunc(*req)
		return &resp, nil
	}
	decision := "modify"
	if req.CurrentIteration >= req.MaxIterations {
		decision = "archive"
	}
	return &rpcclient.AnalystDiagnoseResponse{Decision: decision, Confidence: 0.5}, nil
}

// RecordIteration appends an iteration to a run's history. The production
// client never calls this directly — spec.md §4.1 has no "save iteration"
// method, so a real backend is expected to derive history from the
// CreateStrategy/SubmitBacktest/ControlOptimization calls it already
// observes. Tests call it to seed GetOptimizationRun's iteration history.
func (b *Backend) RecordIteration(runID string, it model.Iteration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.iterations[runID] = append(b.iterations[runID], it)
}

// UpdateRun replaces a run record directly. Nothing in the production path
// calls this — spec.md §4.1's RPC surface has no generic "update run" method,
// and RunContext deliberately keeps its own mid-run progress (current
// strategy/iteration/best tracking) in memory rather than round-tripping it
// through the backend every turn (see runcontext.Refresh). Tests call this
// to seed a run's state at an arbitrary point, e.g. to set up a resume scenario.
func (b *Backend) UpdateRun(run model.OptimizationRun) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runs[run.RunID] = run
}

// CompleteJob marks a queued/running job completed with the given result,
// for tests driving Stage 3's polling loop.
func (b *Backend) CompleteJob(jobID string, result model.BacktestResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j := b.jobs[jobID]
	j.Status = model.JobStatusCompleted
	b.jobs[jobID] = j
	b.results[jobID] = result
}

// Jobs returns a snapshot of all submitted jobs, keyed by job ID — used by
// tests that need to observe and react to a job submitted inside a running
// pipeline invocation.
func (b *Backend) Jobs() map[string]model.BacktestJob {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]model.BacktestJob, len(b.jobs))
	for k, v := range b.jobs {
		out[k] = v
	}
	return out
}

// FailJob marks a job failed with the given error/logs (synthetic-failure path).
func (b *Backend) FailJob(jobID, errMsg, logs string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j := b.jobs[jobID]
	j.Status = model.JobStatusFailed
	j.ErrorMessage = errMsg
	j.Logs = logs
	b.jobs[jobID] = j
}
