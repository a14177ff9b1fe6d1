// Package connect is a thin client for the commerce platform's public REST API.
// It covers only the calls the approval extension makes and does not retry.
package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client talks to the platform API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

// New creates a client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     cfg.Logger,
	}, nil
}

// GetRequest fetches a single request.
func (c *Client) GetRequest(ctx context.Context, id string) (*Request, error) {
	var req Request
	if err := c.do(ctx, http.MethodGet, "/requests/"+url.PathEscape(id), "", nil, &req); err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	return &req, nil
}

// paramUpdate is the wire shape of one parameter in an update payload.
// Exactly one of Value / StructuredValue is sent.
type paramUpdate struct {
	ID              string         `json:"id"`
	Value           *string        `json:"value,omitempty"`
	StructuredValue map[string]any `json:"structured_value,omitempty"`
}

// UpdateRequestParams writes parameter values onto a request's asset.
func (c *Client) UpdateRequestParams(ctx context.Context, id string, params []Param) (*Request, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("update request %s: no parameters given", id)
	}

	updates := make([]paramUpdate, 0, len(params))
	for _, p := range params {
		u := paramUpdate{ID: p.ID}
		if len(p.StructuredValue) > 0 {
			u.StructuredValue = p.StructuredValue
		} else {
			v := p.Value
			u.Value = &v
		}
		updates = append(updates, u)
	}

	body := map[string]any{
		"asset": map[string]any{"params": updates},
	}

	var out Request
	if err := c.do(ctx, http.MethodPut, "/requests/"+url.PathEscape(id), "", body, &out); err != nil {
		return nil, fmt.Errorf("update request %s: %w", id, err)
	}
	return &out, nil
}

// ApproveRequest approves a pending request with the given template.
func (c *Client) ApproveRequest(ctx context.Context, id, templateID string) (*Request, error) {
	if templateID == "" {
		return nil, fmt.Errorf("approve request %s: template id is required", id)
	}

	body := map[string]string{"template_id": templateID}

	var out Request
	if err := c.do(ctx, http.MethodPost, "/requests/"+url.PathEscape(id)+"/approve", "", body, &out); err != nil {
		return nil, fmt.Errorf("approve request %s: %w", id, err)
	}
	return &out, nil
}

// ListTemplates lists a product's templates matching q.
func (c *Client) ListTemplates(ctx context.Context, productID string, q *Query) ([]Template, error) {
	var out []Template
	path := "/products/" + url.PathEscape(productID) + "/templates"
	if err := c.do(ctx, http.MethodGet, path, q.clone().Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("list templates for %s: %w", productID, err)
	}
	return out, nil
}

// ListProductParameters lists a product's parameter definitions.
func (c *Client) ListProductParameters(ctx context.Context, productID string) ([]ProductParameter, error) {
	var out []ProductParameter
	path := "/products/" + url.PathEscape(productID) + "/parameters"
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, fmt.Errorf("list parameters for %s: %w", productID, err)
	}
	return out, nil
}

// ListRequests returns one page of requests matching q.
func (c *Client) ListRequests(ctx context.Context, q *Query, limit, offset int) ([]Request, error) {
	page := q.clone().Limit(limit).Offset(offset)

	var out []Request
	if err := c.do(ctx, http.MethodGet, "/requests", page.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return out, nil
}

// ListAllRequests pages through every request matching q, stopping at the
// first short page. capAt <= 0 means no cap.
func (c *Client) ListAllRequests(ctx context.Context, q *Query, pageSize, capAt int) ([]Request, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	var all []Request
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		page, err := c.ListRequests(ctx, q, pageSize, offset)
		if err != nil {
			return all, err
		}
		all = append(all, page...)

		if capAt > 0 && len(all) >= capAt {
			return all[:capAt], nil
		}
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// do performs one JSON round trip. rawQuery is appended verbatim.
func (c *Client) do(ctx context.Context, method, path, rawQuery string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("api call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if len(data) > 0 {
			// Body is best effort; keep the status even if it isn't JSON.
			_ = json.Unmarshal(data, apiErr)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
