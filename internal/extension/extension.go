// Package extension approves purchase, change and cancel requests as they
// arrive from the platform. Each request goes through the same short
// pipeline: optional license assignment, optional parameter synthesis,
// fulfillment template resolution and a single approve call.
package extension

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VTimofeenko/connect-autoapprove/internal/connect"
	"github.com/VTimofeenko/connect-autoapprove/internal/ledger"
	"github.com/VTimofeenko/connect-autoapprove/internal/logging"
	"github.com/VTimofeenko/connect-autoapprove/internal/params"
)

var (
	// ErrNoProduct is returned for a request whose asset carries no product id.
	ErrNoProduct = errors.New("request has no product id")
	// ErrNilRequest is returned when an entry point is handed nothing.
	ErrNilRequest = errors.New("nil request")
)

// API is the part of the platform client the handler calls.
type API interface {
	GetRequest(ctx context.Context, id string) (*connect.Request, error)
	UpdateRequestParams(ctx context.Context, id string, params []connect.Param) (*connect.Request, error)
	ApproveRequest(ctx context.Context, id, templateID string) (*connect.Request, error)
	ListTemplates(ctx context.Context, productID string, q *connect.Query) ([]connect.Template, error)
}

// Recorder receives one entry per processed request.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// Option configures an Extension.
type Option func(*Extension)

// WithRecorder sets where outcomes are recorded.
func WithRecorder(r Recorder) Option {
	return func(e *Extension) { e.recorder = r }
}

// WithSynthesizer sets the parameter synthesizer.
func WithSynthesizer(s *params.Synthesizer) Option {
	return func(e *Extension) { e.synth = s }
}

// WithLogger sets the category logger source.
func WithLogger(l *logging.Logger) Option {
	return func(e *Extension) { e.logs = l }
}

// WithLicenseGenerator replaces the UUID license generator.
func WithLicenseGenerator(gen func() string) Option {
	return func(e *Extension) { e.newLicense = gen }
}

// Extension is the request handler.
type Extension struct {
	api        API
	recorder   Recorder
	synth      *params.Synthesizer
	logs       *logging.Logger
	newLicense func() string

	mu       sync.RWMutex
	settings Settings
}

// New creates an Extension.
func New(api API, settings Settings, opts ...Option) *Extension {
	e := &Extension{
		api:        api,
		settings:   settings.withDefaults(),
		newLicense: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logs == nil {
		e.logs = logging.Nop()
	}
	if e.synth == nil {
		e.synth = params.New(0)
	}
	return e
}

// Settings returns the current settings.
func (e *Extension) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// UpdateSettings swaps the settings for requests that start after the call.
func (e *Extension) UpdateSettings(s Settings) {
	e.mu.Lock()
	e.settings = s.withDefaults()
	e.mu.Unlock()
}

// ProcessAssetPurchaseRequest handles a new purchase.
func (e *Extension) ProcessAssetPurchaseRequest(ctx context.Context, req *connect.Request) (Result, error) {
	return e.process(ctx, req, pipelineProvision)
}

// ProcessAssetChangeRequest handles a change. A license already on the
// asset is kept.
func (e *Extension) ProcessAssetChangeRequest(ctx context.Context, req *connect.Request) (Result, error) {
	return e.process(ctx, req, pipelineProvision)
}

// ProcessAssetCancelRequest handles a cancellation. Nothing is written to
// the request's parameters. Pending cancellations are left for manual
// review unless ApproveCancellations is set.
func (e *Extension) ProcessAssetCancelRequest(ctx context.Context, req *connect.Request) (Result, error) {
	return e.process(ctx, req, pipelineCancel)
}

type pipeline int

const (
	// pipelineProvision may write a license and synthesized parameters.
	pipelineProvision pipeline = iota
	// pipelineCancel only approves, and only when cancellations are enabled.
	pipelineCancel
)

// outcome carries what a pipeline run produced for the ledger.
type outcome struct {
	status     string
	templateID string
	license    string
	msg        string
}

func (e *Extension) process(ctx context.Context, req *connect.Request, kind pipeline) (Result, error) {
	if req == nil {
		return Fail(ErrNilRequest.Error()), ErrNilRequest
	}

	s := e.Settings()
	log := e.logs.Get(logging.CategoryEvents).With(
		zap.String("request", req.ID),
		zap.String("type", req.Type))
	log.Info("processing request", zap.String("status", req.Status), zap.Bool("dry_run", s.DryRun))

	if req.Status != connect.StatusPending {
		msg := fmt.Sprintf("request is %s, not %s", req.Status, connect.StatusPending)
		log.Info("skipping request", zap.String("reason", msg))
		return Skip(msg), nil
	}

	if kind == pipelineCancel && !s.ApproveCancellations {
		log.Info("cancellation left for manual review")
		res := Skip("cancellation approval is disabled")
		e.record(ctx, s, req, outcome{status: ledger.StatusSkipped, msg: res.Message})
		return res, nil
	}

	productID := req.ProductID()
	if productID == "" {
		err := fmt.Errorf("request %s: %w", req.ID, ErrNoProduct)
		e.record(ctx, s, req, outcome{status: ledger.StatusFailed, msg: err.Error()})
		return Fail(err.Error()), err
	}

	var out outcome
	if kind == pipelineProvision {
		if s.AssignLicense {
			license, err := e.setLicense(ctx, s, req)
			if err != nil {
				return e.fail(ctx, s, req, out, err)
			}
			out.license = license
		}
		if s.SynthesizeParameters {
			if err := e.fillParameters(ctx, s, req); err != nil {
				return e.fail(ctx, s, req, out, err)
			}
		}
	}

	templateID, err := e.resolveTemplate(ctx, s, productID)
	if err != nil {
		return e.fail(ctx, s, req, out, err)
	}
	out.templateID = templateID

	if s.DryRun {
		log.Info("dry run: would approve", zap.String("template", templateID))
		return Done(), nil
	}

	if _, err := e.api.ApproveRequest(ctx, req.ID, templateID); err != nil {
		return e.fail(ctx, s, req, out, err)
	}
	log.Info("request approved", zap.String("template", templateID))

	out.status = ledger.StatusApproved
	e.record(ctx, s, req, out)
	return Done(), nil
}

func (e *Extension) fail(ctx context.Context, s Settings, req *connect.Request, out outcome, err error) (Result, error) {
	err = fmt.Errorf("request %s: %w", req.ID, err)
	e.logs.Get(logging.CategoryEvents).Error("request processing failed",
		zap.String("request", req.ID), zap.Error(err))
	out.status = ledger.StatusFailed
	out.msg = err.Error()
	e.record(ctx, s, req, out)
	return Fail(err.Error()), err
}

// record writes to the recorder if one is set. Dry runs leave no trace.
func (e *Extension) record(ctx context.Context, s Settings, req *connect.Request, out outcome) {
	if e.recorder == nil || s.DryRun {
		return
	}
	entry := ledger.Entry{
		RequestID:   req.ID,
		RequestType: req.Type,
		ProductID:   req.ProductID(),
		TemplateID:  out.templateID,
		License:     out.license,
		Status:      out.status,
		Error:       out.msg,
	}
	if err := e.recorder.Record(ctx, entry); err != nil {
		e.logs.Get(logging.CategoryLedger).Warn("failed to record outcome",
			zap.String("request", req.ID), zap.Error(err))
	}
}

// hasParam finds a parameter on the request's asset by id.
func hasParam(req *connect.Request, id string) (*connect.Param, bool) {
	for i := range req.Asset.Params {
		if req.Asset.Params[i].ID == id {
			return &req.Asset.Params[i], true
		}
	}
	return nil, false
}

// setLicense writes a fresh license to the license parameter when the
// request declares it and it is still empty. It returns the license written,
// or "" when nothing was written.
func (e *Extension) setLicense(ctx context.Context, s Settings, req *connect.Request) (string, error) {
	log := e.logs.Get(logging.CategoryLicense).With(zap.String("request", req.ID))

	param, ok := hasParam(req, s.LicenseParam)
	if !ok {
		log.Debug("request does not declare license parameter", zap.String("param", s.LicenseParam))
		return "", nil
	}
	if param.HasValue() {
		log.Debug("license already set, keeping it", zap.String("param", s.LicenseParam))
		return "", nil
	}

	license := e.newLicense()
	log.Info("assigning license", zap.String("param", s.LicenseParam), zap.String("license", license))

	if !s.DryRun {
		update := []connect.Param{{ID: s.LicenseParam, Value: license}}
		if _, err := e.api.UpdateRequestParams(ctx, req.ID, update); err != nil {
			return "", fmt.Errorf("set license: %w", err)
		}
	}
	param.Value = license
	return license, nil
}

// fillParameters synthesizes values for every empty parameter and pushes
// them in one update. Types without a generator are left empty.
func (e *Extension) fillParameters(ctx context.Context, s Settings, req *connect.Request) error {
	log := e.logs.Get(logging.CategorySynth).With(zap.String("request", req.ID))

	var filled []connect.Param
	for i := range req.Asset.Params {
		p := &req.Asset.Params[i]
		if p.HasValue() {
			continue
		}
		if !params.IsSupported(p.Type) {
			log.Debug("no generator for parameter type", zap.String("param", p.ID), zap.String("param_type", p.Type))
			continue
		}
		out, err := e.synth.Synthesize(*p)
		if err != nil {
			log.Warn("cannot synthesize parameter", zap.String("param", p.ID), zap.Error(err))
			continue
		}
		*p = out
		filled = append(filled, out)
	}

	if len(filled) == 0 {
		log.Debug("no empty parameters to fill")
		return nil
	}
	log.Info("synthesized parameters", zap.Int("count", len(filled)))
	if s.DryRun {
		return nil
	}
	if _, err := e.api.UpdateRequestParams(ctx, req.ID, filled); err != nil {
		return fmt.Errorf("fill parameters: %w", err)
	}
	return nil
}
