package extension

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/VTimofeenko/connect-autoapprove/internal/connect"
	"github.com/VTimofeenko/connect-autoapprove/internal/logging"
)

// Event types the platform delivers to the extension.
const (
	EventPurchase = "asset_purchase_request_processing"
	EventChange   = "asset_change_request_processing"
	EventCancel   = "asset_cancel_request_processing"
)

var (
	// ErrUnknownEvent is returned by Dispatch for event types it does not handle.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrTypeMismatch is returned when an event carries a request of another type.
	ErrTypeMismatch = errors.New("request type does not match event")
)

type handler func(*Extension, context.Context, *connect.Request) (Result, error)

type route struct {
	requestType string
	handle      handler
}

var routes = map[string]route{
	EventPurchase:               {connect.RequestTypePurchase, (*Extension).ProcessAssetPurchaseRequest},
	EventChange:                 {connect.RequestTypeChange, (*Extension).ProcessAssetChangeRequest},
	EventCancel:                 {connect.RequestTypeCancel, (*Extension).ProcessAssetCancelRequest},
	connect.RequestTypePurchase: {connect.RequestTypePurchase, (*Extension).ProcessAssetPurchaseRequest},
	connect.RequestTypeChange:   {connect.RequestTypeChange, (*Extension).ProcessAssetChangeRequest},
	connect.RequestTypeCancel:   {connect.RequestTypeCancel, (*Extension).ProcessAssetCancelRequest},
}

// Handles reports whether Dispatch routes the event or request type.
func Handles(eventType string) bool {
	_, ok := routes[eventType]
	return ok
}

// Dispatch routes an event type or bare request type to its entry point.
// A request whose own type is set must match the event.
func (e *Extension) Dispatch(ctx context.Context, eventType string, req *connect.Request) (Result, error) {
	r, ok := routes[eventType]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
		return Fail(err.Error()), err
	}
	if req == nil {
		return Fail(ErrNilRequest.Error()), ErrNilRequest
	}
	if req.Type != "" && req.Type != r.requestType {
		err := fmt.Errorf("request %s: %w: %s carries a %s request", req.ID, ErrTypeMismatch, eventType, req.Type)
		e.logs.Get(logging.CategoryEvents).Warn("rejecting mismatched event",
			zap.String("request", req.ID),
			zap.String("event", eventType),
			zap.String("type", req.Type))
		return Fail(err.Error()), err
	}
	return r.handle(e, ctx, req)
}

// ProcessRequestID fetches a request and processes it by its own type.
func (e *Extension) ProcessRequestID(ctx context.Context, id string) (Result, error) {
	req, err := e.api.GetRequest(ctx, id)
	if err != nil {
		err = fmt.Errorf("request %s: %w", id, err)
		return Fail(err.Error()), err
	}
	e.logs.Get(logging.CategoryEvents).Debug("fetched request",
		zap.String("request", req.ID),
		zap.String("type", req.Type),
		zap.String("status", req.Status))
	return e.Dispatch(ctx, req.Type, req)
}
