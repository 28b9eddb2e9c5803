package batch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/http"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

// DefaultConcurrency is the number of requests in flight when none is set.
const DefaultConcurrency = 5

// Executor runs one request. *http.Engine implements it.
type Executor interface {
	Execute(ctx context.Context, req *http.Request, sink telemetry.Sink) (*http.Response, error)
}

// Result is the outcome of one request, at the same index as its input.
type Result struct {
	Index     int
	RequestID string
	Response  *http.Response
	Err       error
	Duration  time.Duration
	Skipped   bool
}

// Runner executes requests concurrently.
type Runner struct {
	executor    Executor
	concurrency int
	limiter     *rate.Limiter
	sink        telemetry.Sink
	onResult    func(Result)
}

type RunnerOption func(*Runner)

// WithConcurrency bounds the number of requests in flight.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRate limits request starts per second. Zero means unlimited.
func WithRate(perSecond float64) RunnerOption {
	return func(r *Runner) {
		if perSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithSink sets where telemetry of every request goes.
func WithSink(sink telemetry.Sink) RunnerOption {
	return func(r *Runner) {
		r.sink = sink
	}
}

// WithResultHandler is called once per finished request, from the
// goroutine that ran it.
func WithResultHandler(fn func(Result)) RunnerOption {
	return func(r *Runner) {
		r.onResult = fn
	}
}

func NewRunner(executor Executor, opts ...RunnerOption) *Runner {
	r := &Runner{
		executor:    executor,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every request and returns results in input order. Once ctx
// is done no further requests start; those are reported as skipped.
func (r *Runner) Run(ctx context.Context, reqs []*http.Request) ([]Result, *Summary) {
	metrics := NewMetrics()
	metrics.Start()

	results := make([]Result, len(reqs))
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	for i, req := range reqs {
		if err := r.acquire(ctx, sem); err != nil {
			for j := i; j < len(reqs); j++ {
				results[j] = skipped(j, reqs[j], err)
				metrics.Skip()
			}
			break
		}

		wg.Add(1)
		go func(i int, req *http.Request) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			resp, err := r.executor.Execute(ctx, req, r.sink)
			res := Result{
				Index:     i,
				RequestID: req.ID,
				Response:  resp,
				Err:       err,
				Duration:  time.Since(start),
			}
			if resp != nil {
				res.RequestID = resp.RequestID
			}
			metrics.Record(res.Duration, err)
			results[i] = res
			if r.onResult != nil {
				r.onResult(res)
			}
		}(i, req)
	}

	wg.Wait()
	metrics.Stop()
	return results, metrics.Summary()
}

// acquire waits for the rate limiter and a concurrency slot.
func (r *Runner) acquire(ctx context.Context, sem chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func skipped(i int, req *http.Request, cause error) Result {
	return Result{
		Index:     i,
		RequestID: req.ID,
		Err:       apperror.Wrap(apperror.UserCancelled, cause, "Batch stopped before request started"),
		Skipped:   true,
	}
}
