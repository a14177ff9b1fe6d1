package extension

import (
	"context"
	"sync"

	"github.com/VTimofeenko/connect-autoapprove/internal/connect"
	"github.com/VTimofeenko/connect-autoapprove/internal/ledger"
)

type approval struct {
	requestID  string
	templateID string
}

type update struct {
	requestID string
	params    []connect.Param
}

// fakeAPI records every write and serves canned reads.
type fakeAPI struct {
	mu sync.Mutex

	requests  map[string]*connect.Request
	templates map[string][]connect.Template

	getErr     error
	updateErr  error
	approveErr error
	listErr    error

	updates     []update
	approvals   []approval
	listQueries []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		requests:  make(map[string]*connect.Request),
		templates: make(map[string][]connect.Template),
	}
}

func (f *fakeAPI) GetRequest(_ context.Context, id string) (*connect.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	req, ok := f.requests[id]
	if !ok {
		return nil, &connect.APIError{StatusCode: 404, ErrorCode: "REQ_404"}
	}
	cp := *req
	cp.Asset.Params = append([]connect.Param(nil), req.Asset.Params...)
	return &cp, nil
}

func (f *fakeAPI) UpdateRequestParams(_ context.Context, id string, params []connect.Param) (*connect.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates = append(f.updates, update{requestID: id, params: append([]connect.Param(nil), params...)})
	return &connect.Request{ID: id}, nil
}

func (f *fakeAPI) ApproveRequest(_ context.Context, id, templateID string) (*connect.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	f.approvals = append(f.approvals, approval{requestID: id, templateID: templateID})
	return &connect.Request{ID: id, Status: connect.StatusApproved}, nil
}

func (f *fakeAPI) ListTemplates(_ context.Context, productID string, q *connect.Query) ([]connect.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listQueries = append(f.listQueries, q.String())
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.templates[productID], nil
}

func (f *fakeAPI) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates) + len(f.approvals)
}

// memRecorder keeps recorded entries in memory.
type memRecorder struct {
	mu      sync.Mutex
	entries []ledger.Entry
	err     error
}

func (m *memRecorder) Record(_ context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return m.err
}

func (m *memRecorder) all() []ledger.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.Entry(nil), m.entries...)
}

func pendingRequest(id, reqType, productID string, params ...connect.Param) *connect.Request {
	return &connect.Request{
		ID:     id,
		Type:   reqType,
		Status: connect.StatusPending,
		Asset: connect.Asset{
			ID:      "AS-" + id,
			Product: connect.Product{ID: productID},
			Params:  params,
		},
	}
}

func fixedLicense() string { return "11111111-2222-4333-8444-555555555555" }
