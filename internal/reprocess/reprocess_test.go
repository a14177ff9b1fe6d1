package reprocess

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/VTimofeenko/connect-autoapprove/internal/connect"
	"github.com/VTimofeenko/connect-autoapprove/internal/extension"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeLister struct {
	requests []connect.Request
	err      error

	query    string
	pageSize int
	capAt    int
}

func (f *fakeLister) ListAllRequests(_ context.Context, q *connect.Query, pageSize, capAt int) ([]connect.Request, error) {
	f.query, f.pageSize, f.capAt = q.String(), pageSize, capAt
	if f.err != nil {
		return nil, f.err
	}
	return f.requests, nil
}

type fakeProcessor struct {
	mu      sync.Mutex
	results map[string]extension.Result
	errs    map[string]error
	seen    []string
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeProcessor) Dispatch(ctx context.Context, eventType string, req *connect.Request) (extension.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, req.ID)
	if err, ok := f.errs[req.ID]; ok {
		return extension.Fail(err.Error()), err
	}
	if res, ok := f.results[req.ID]; ok {
		return res, nil
	}
	return extension.Done(), nil
}

type fakeChecker struct {
	approved map[string]bool
	err      error
}

func (f *fakeChecker) WasApproved(_ context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.approved[id], nil
}

func requests(n int) []connect.Request {
	out := make([]connect.Request, n)
	for i := range out {
		out[i] = connect.Request{
			ID:     fmt.Sprintf("PR-%03d", i),
			Type:   connect.RequestTypePurchase,
			Status: connect.StatusPending,
		}
	}
	return out
}

func TestPendingQuery(t *testing.T) {
	assert.Equal(t,
		"and(eq(status,pending),in(type,(purchase,change,cancel)))",
		PendingQuery(nil).String())
	assert.Equal(t,
		"and(eq(status,pending),in(type,(purchase,change,cancel)),in(asset.product.id,(PRD-1,PRD-2)))",
		PendingQuery([]string{"PRD-1", "PRD-2"}).String())
}

func TestRun_CountsOutcomes(t *testing.T) {
	lister := &fakeLister{requests: requests(6)}
	proc := &fakeProcessor{
		results: map[string]extension.Result{"PR-001": extension.Skip("not pending")},
		errs:    map[string]error{"PR-002": errors.New("no template"), "PR-003": errors.New("api down")},
	}
	checker := &fakeChecker{approved: map[string]bool{"PR-004": true}}

	r := New(lister, proc, checker, nil)
	sum, err := r.Run(context.Background(), Options{Concurrency: 3, PageSize: 50, Limit: 10, ProductIDs: []string{"PRD-1"}})
	require.NoError(t, err)

	assert.Equal(t, 6, sum.Seen)
	assert.Equal(t, 2, sum.Approved)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 1, sum.AlreadyApproved)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, []string{"PR-002", "PR-003"}, sum.FailedIDs())

	assert.NotContains(t, proc.seen, "PR-004", "ledger-approved request is not dispatched")
	assert.Len(t, proc.seen, 5)
	assert.Equal(t, 50, lister.pageSize)
	assert.Equal(t, 10, lister.capAt)
	assert.Contains(t, lister.query, "PRD-1")
}

func TestRun_SkipResultWithFailStatusIsFailure(t *testing.T) {
	lister := &fakeLister{requests: requests(1)}
	proc := &fakeProcessor{results: map[string]extension.Result{"PR-000": extension.Fail("odd")}}

	sum, err := New(lister, proc, nil, nil).Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.ErrorContains(t, sum.Failures["PR-000"], "odd")
}

func TestRun_RespectsConcurrencyLimit(t *testing.T) {
	lister := &fakeLister{requests: requests(12)}
	proc := &fakeProcessor{delay: 10 * time.Millisecond}

	sum, err := New(lister, proc, nil, nil).Run(context.Background(), Options{Concurrency: 3})
	require.NoError(t, err)
	assert.Equal(t, 12, sum.Approved)
	assert.LessOrEqual(t, proc.maxInFlight.Load(), int32(3))
	assert.GreaterOrEqual(t, proc.maxInFlight.Load(), int32(1))
}

func TestRun_CheckerErrorStillProcesses(t *testing.T) {
	lister := &fakeLister{requests: requests(2)}
	proc := &fakeProcessor{}
	checker := &fakeChecker{err: errors.New("locked")}

	sum, err := New(lister, proc, checker, nil).Run(context.Background(), Options{Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Approved)
}

func TestRun_ListErrorIsFatal(t *testing.T) {
	lister := &fakeLister{err: errors.New("unauthorized")}
	_, err := New(lister, &fakeProcessor{}, nil, nil).Run(context.Background(), Options{})
	assert.ErrorContains(t, err, "unauthorized")
}

func TestRun_CancelledContextStopsScheduling(t *testing.T) {
	lister := &fakeLister{requests: requests(20)}
	proc := &fakeProcessor{delay: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	sum, err := New(lister, proc, nil, nil).Run(ctx, Options{Concurrency: 1})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, sum)
	assert.Less(t, sum.Seen, 20)
}
