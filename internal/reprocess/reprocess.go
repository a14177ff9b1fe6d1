// Package reprocess re-runs the approval pipeline over requests that are
// still pending on the platform, for example after the extension was down
// or misconfigured when they arrived.
package reprocess

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/VTimofeenko/connect-autoapprove/internal/connect"
	"github.com/VTimofeenko/connect-autoapprove/internal/extension"
)

// Lister pages through platform requests.
type Lister interface {
	ListAllRequests(ctx context.Context, q *connect.Query, pageSize, capAt int) ([]connect.Request, error)
}

// Processor handles one request. *extension.Extension satisfies it.
type Processor interface {
	Dispatch(ctx context.Context, eventType string, req *connect.Request) (extension.Result, error)
}

// ApprovalChecker reports whether a request was already approved by us.
// *ledger.Ledger satisfies it.
type ApprovalChecker interface {
	WasApproved(ctx context.Context, requestID string) (bool, error)
}

// Options bound one run.
type Options struct {
	ProductIDs  []string
	Concurrency int
	PageSize    int
	Limit       int // 0 means all pending requests
}

// Summary counts what a run did.
type Summary struct {
	Seen            int
	Approved        int
	Skipped         int
	AlreadyApproved int
	Failed          int
	Failures        map[string]error
	Duration        time.Duration
}

// FailedIDs returns the failed request ids, sorted.
func (s *Summary) FailedIDs() []string {
	ids := make([]string, 0, len(s.Failures))
	for id := range s.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reprocessor runs pending requests through a Processor.
type Reprocessor struct {
	lister  Lister
	proc    Processor
	checker ApprovalChecker
	logger  *zap.Logger
}

// New creates a Reprocessor. checker may be nil.
func New(lister Lister, proc Processor, checker ApprovalChecker, logger *zap.Logger) *Reprocessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reprocessor{lister: lister, proc: proc, checker: checker, logger: logger}
}

// PendingQuery selects pending purchase, change and cancel requests,
// optionally for the given products only.
func PendingQuery(productIDs []string) *connect.Query {
	return connect.NewQuery().
		Eq("status", connect.StatusPending).
		In("type", connect.RequestTypePurchase, connect.RequestTypeChange, connect.RequestTypeCancel).
		In("asset.product.id", productIDs...)
}

// Run lists pending requests and processes them with bounded concurrency.
// Per-request failures land in the summary. A cancelled context stops
// scheduling new requests; the partial summary is returned with ctx.Err().
func (r *Reprocessor) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	requests, err := r.lister.ListAllRequests(ctx, PendingQuery(opts.ProductIDs), opts.PageSize, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	r.logger.Info("reprocessing pending requests",
		zap.Int("count", len(requests)),
		zap.Int("concurrency", opts.Concurrency),
		zap.Strings("products", opts.ProductIDs))

	summary := &Summary{Failures: make(map[string]error)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)

	for i := range requests {
		if ctx.Err() != nil {
			break
		}
		req := &requests[i]

		mu.Lock()
		summary.Seen++
		mu.Unlock()

		g.Go(func() error {
			approved, skipped, already, err := r.one(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Failed++
				summary.Failures[req.ID] = err
			case already:
				summary.AlreadyApproved++
				summary.Skipped++
			case skipped:
				summary.Skipped++
			case approved:
				summary.Approved++
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(start)
	r.logger.Info("reprocessing finished",
		zap.Int("seen", summary.Seen),
		zap.Int("approved", summary.Approved),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("took", summary.Duration))

	return summary, ctx.Err()
}

func (r *Reprocessor) one(ctx context.Context, req *connect.Request) (approved, skipped, already bool, err error) {
	if r.checker != nil {
		done, cerr := r.checker.WasApproved(ctx, req.ID)
		if cerr != nil {
			r.logger.Warn("ledger check failed, processing anyway", zap.String("request", req.ID), zap.Error(cerr))
		} else if done {
			r.logger.Debug("already approved", zap.String("request", req.ID))
			return false, false, true, nil
		}
	}

	res, err := r.proc.Dispatch(ctx, req.Type, req)
	if err != nil {
		return false, false, false, err
	}
	switch res.Status {
	case extension.StatusSuccess:
		return true, false, false, nil
	case extension.StatusSkip:
		return false, true, false, nil
	default:
		return false, false, false, fmt.Errorf("request %s: %s", req.ID, res.Message)
	}
}
