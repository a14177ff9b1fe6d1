package extension

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/VTimofeenko/connect-autoapprove/internal/connect"
	"github.com/VTimofeenko/connect-autoapprove/internal/logging"
)

var (
	// ErrTemplateNotFound means the product has no asset fulfillment template.
	ErrTemplateNotFound = errors.New("no fulfillment template found")
	// ErrAmbiguousTemplate means the product has more than one.
	ErrAmbiguousTemplate = errors.New("more than one fulfillment template found")
)

// TemplateError reports a template lookup that did not yield exactly one id.
type TemplateError struct {
	ProductID string
	Count     int
	Err       error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("product %s: %v (got %d)", e.ProductID, e.Err, e.Count)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// fulfillmentQuery selects asset-scoped fulfillment templates.
func fulfillmentQuery() *connect.Query {
	return connect.NewQuery().
		Eq("scope", connect.TemplateScopeAsset).
		Eq("type", connect.TemplateTypeFulfillment)
}

// resolveTemplate returns the single fulfillment template id for a product.
// A configured override is returned without asking the platform.
func (e *Extension) resolveTemplate(ctx context.Context, s Settings, productID string) (string, error) {
	log := e.logs.Get(logging.CategoryTemplates).With(zap.String("product", productID))

	if id, ok := s.templateOverride(productID); ok {
		log.Debug("using template override", zap.String("template", id))
		return id, nil
	}

	templates, err := e.api.ListTemplates(ctx, productID, fulfillmentQuery())
	if err != nil {
		return "", fmt.Errorf("resolve template: %w", err)
	}

	switch len(templates) {
	case 1:
		log.Debug("resolved template", zap.String("template", templates[0].ID))
		return templates[0].ID, nil
	case 0:
		return "", &TemplateError{ProductID: productID, Count: 0, Err: ErrTemplateNotFound}
	default:
		ids := make([]string, len(templates))
		for i, t := range templates {
			ids[i] = t.ID
		}
		log.Warn("ambiguous fulfillment templates", zap.Strings("templates", ids))
		return "", &TemplateError{ProductID: productID, Count: len(templates), Err: ErrAmbiguousTemplate}
	}
}
