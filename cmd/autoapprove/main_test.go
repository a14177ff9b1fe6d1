package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VTimofeenko/connect-autoapprove/internal/connect"
	"github.com/VTimofeenko/connect-autoapprove/internal/params"
	"github.com/VTimofeenko/connect-autoapprove/internal/reprocess"
)

// fakePlatform serves the handful of endpoints the commands call.
type fakePlatform struct {
	mu        sync.Mutex
	requests  map[string]connect.Request
	approvals map[string]string
	updates   map[string]int
	authOK    bool
}

func newFakePlatform(t *testing.T) (*fakePlatform, *httptest.Server) {
	t.Helper()
	p := &fakePlatform{
		requests:  make(map[string]connect.Request),
		approvals: make(map[string]string),
		updates:   make(map[string]int),
		authOK:    true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		req, ok := p.requests[r.PathValue("id")]
		p.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error_code":"REQ_404","errors":["not found"]}`)
			return
		}
		_ = json.NewEncoder(w).Encode(req)
	})
	mux.HandleFunc("GET /requests", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		list := make([]connect.Request, 0, len(p.requests))
		for _, req := range p.requests {
			if req.Status == connect.StatusPending {
				list = append(list, req)
			}
		}
		_ = json.NewEncoder(w).Encode(list)
	})
	mux.HandleFunc("PUT /requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.updates[r.PathValue("id")]++
		p.mu.Unlock()
		fmt.Fprintf(w, `{"id":%q}`, r.PathValue("id"))
	})
	mux.HandleFunc("POST /requests/{id}/approve", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TemplateID string `json:"template_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.mu.Lock()
		p.approvals[r.PathValue("id")] = body.TemplateID
		p.mu.Unlock()
		fmt.Fprintf(w, `{"id":%q,"status":"approved"}`, r.PathValue("id"))
	})
	mux.HandleFunc("GET /products/{id}/templates", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"TL-1","type":"fulfillment","scope":"asset"}]`)
	})
	mux.HandleFunc("GET /products/{id}/parameters", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":"PRM-1","name":"admin_email","type":"email"},
			{"id":"PRM-2","name":"office","type":"address"},
			{"id":"PRM-3","name":"secret","type":"password"}
		]`)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "ApiKey test-key" {
			p.mu.Lock()
			p.authOK = false
			p.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return p, srv
}

func (p *fakePlatform) add(req connect.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests[req.ID] = req
}

func purchase(id string) connect.Request {
	return connect.Request{
		ID:     id,
		Type:   connect.RequestTypePurchase,
		Status: connect.StatusPending,
		Asset: connect.Asset{
			ID:      "AS-" + id,
			Product: connect.Product{ID: "PRD-1"},
			Params:  []connect.Param{{ID: "volume_license", Type: "text"}},
		},
	}
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	for _, key := range []string{"CONNECT_API_KEY", "CONNECT_API_URL", "AUTOAPPROVE_LEDGER", "AUTOAPPROVE_LISTEN", "AUTOAPPROVE_TOKEN", "AUTOAPPROVE_DRY_RUN"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "autoapprove.yaml")
	body := fmt.Sprintf(`connect:
  base_url: %s
  api_key: test-key
extension:
  assign_license: true
  approve_cancellations: true
  seed: 7
ledger:
  enabled: true
  path: %s
logging:
  level: error
`, baseURL, filepath.Join(dir, "ledger.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	processDryRun = false
	reprocessDryRun = false
	reprocessConcurrency = 0
	reprocessLimit = 0
	ledgerStatus = ""
	ledgerLimit = 20
	synthSeed = 0

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestProcessCommand(t *testing.T) {
	p, srv := newFakePlatform(t)
	p.add(purchase("PR-1"))
	cfgPath := writeConfig(t, srv.URL)

	out, err := execute(t, "process", "PR-1", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "PR-1")
	assert.Contains(t, out, "success")

	assert.Equal(t, "TL-1", p.approvals["PR-1"])
	assert.Equal(t, 1, p.updates["PR-1"], "license written once")
	assert.True(t, p.authOK)

	out, err = execute(t, "ledger", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "PR-1")
	assert.Contains(t, out, "approved")
}

func TestProcessCommand_DryRun(t *testing.T) {
	p, srv := newFakePlatform(t)
	p.add(purchase("PR-1"))
	cfgPath := writeConfig(t, srv.URL)

	out, err := execute(t, "process", "PR-1", "--dry-run", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "dry run")
	assert.Empty(t, p.approvals)
	assert.Empty(t, p.updates)
}

func TestProcessCommand_UnknownRequest(t *testing.T) {
	_, srv := newFakePlatform(t)
	cfgPath := writeConfig(t, srv.URL)

	out, err := execute(t, "process", "PR-404", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 requests failed")
	assert.Contains(t, out, "fail")
}

func TestProcessCommand_MissingAPIKey(t *testing.T) {
	for _, key := range []string{"CONNECT_API_KEY", "CONNECT_API_URL", "AUTOAPPROVE_LEDGER"} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "autoapprove.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\n"), 0644))

	_, err := execute(t, "process", "PR-1", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestReprocessCommand(t *testing.T) {
	p, srv := newFakePlatform(t)
	p.add(purchase("PR-1"))
	p.add(purchase("PR-2"))
	done := purchase("PR-3")
	done.Status = connect.StatusApproved
	p.add(done)
	cfgPath := writeConfig(t, srv.URL)

	out, err := execute(t, "reprocess", "--concurrency", "2", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Reprocess summary")
	assert.Len(t, p.approvals, 2)

	// A second sweep sees the same pending requests but the ledger has them.
	out, err = execute(t, "reprocess", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Len(t, p.approvals, 2)
	assert.Contains(t, out, "already approved")
}

func TestReprocessCommand_DryRun(t *testing.T) {
	p, srv := newFakePlatform(t)
	p.add(purchase("PR-1"))
	cfgPath := writeConfig(t, srv.URL)

	out, err := execute(t, "reprocess", "--dry-run", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "dry run")
	assert.Contains(t, out, "would approve")
	assert.Empty(t, p.approvals)
}

func TestSynthCommand(t *testing.T) {
	_, srv := newFakePlatform(t)
	cfgPath := writeConfig(t, srv.URL)

	out, err := execute(t, "synth", "PRD-1", "--seed", "3", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "admin_email (email)")
	assert.Contains(t, out, "@")
	assert.Contains(t, out, "address_line1")
	assert.Contains(t, out, "no generator")
}

func TestLedgerCommand_Empty(t *testing.T) {
	_, srv := newFakePlatform(t)
	cfgPath := writeConfig(t, srv.URL)

	out, err := execute(t, "ledger", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "no requests recorded yet")
}

func TestLedgerCommand_BadStatus(t *testing.T) {
	_, srv := newFakePlatform(t)
	cfgPath := writeConfig(t, srv.URL)

	_, err := execute(t, "ledger", "--status", "bogus", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestPrintSummary_DryRunLabel(t *testing.T) {
	sum := &reprocess.Summary{Seen: 2, Approved: 2}

	var buf bytes.Buffer
	printSummary(&buf, sum, true)
	assert.Contains(t, buf.String(), "would approve")

	buf.Reset()
	printSummary(&buf, sum, false)
	assert.NotContains(t, buf.String(), "would approve")
	assert.NotContains(t, buf.String(), "dry run")
}

func TestPrintSynth_UnsupportedTypeNotSynthesized(t *testing.T) {
	defs := []connect.ProductParameter{
		{ID: "PRM-1", Name: "office", Type: "address"},
		{ID: "PRM-2", Name: "secret", Type: "password"},
	}

	var buf bytes.Buffer
	printSynth(&buf, "PRD-1", defs, params.New(3))
	out := buf.String()
	assert.Contains(t, out, "address_line1", "structured value rendered as JSON")
	assert.Contains(t, out, "no generator")
	assert.NotContains(t, out, "unsupported")
}
