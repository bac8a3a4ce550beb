// Package backend is the REST client for the closure endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/fire-closure/pkg/auth"
	"github.com/yourorg/fire-closure/pkg/closure"
	"github.com/yourorg/fire-closure/pkg/form"
)

// APIError is a non-2xx answer from the backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned HTTP %d", e.StatusCode)
}

// ServerMessage returns the message the backend attached to err, if any
func ServerMessage(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Config contains client configuration
type Config struct {
	// BaseURL is the backend root, without the /api/v1 prefix
	BaseURL string
	// Token is the bearer token sent on every request
	Token string
	// Timeout is the timeout for HTTP requests
	Timeout time.Duration
}

// Client talks to the closure backend
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new backend client
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SetToken replaces the bearer token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// GetCierre fetches the closure record of an incident
func (c *Client) GetCierre(ctx context.Context, incidentID string) (*closure.Record, error) {
	return c.record(ctx, http.MethodGet, "/cierre/"+url.PathEscape(incidentID), nil)
}

// InitCierre creates an empty closure record for an incident
func (c *Client) InitCierre(ctx context.Context, incidentID string) (*closure.Record, error) {
	body := map[string]string{"incendio_uuid": incidentID}
	return c.record(ctx, http.MethodPost, "/cierre/init", body)
}

// PatchCierreCatalogos sends a sparse closure patch
func (c *Client) PatchCierreCatalogos(ctx context.Context, incidentID string, payload *closure.Payload) (*closure.Record, error) {
	return c.record(ctx, http.MethodPatch, "/cierre/"+url.PathEscape(incidentID), payload)
}

// Finalizar marks the closure record extinguished
func (c *Client) Finalizar(ctx context.Context, incidentID string) (*closure.Record, error) {
	return c.record(ctx, http.MethodPost, "/cierre/"+url.PathEscape(incidentID)+"/finalizar", nil)
}

// Reabrir clears the extinguished state of the closure record
func (c *Client) Reabrir(ctx context.Context, incidentID string) (*closure.Record, error) {
	return c.record(ctx, http.MethodPost, "/cierre/"+url.PathEscape(incidentID)+"/reabrir", nil)
}

// record sends a request answered with a closure record
func (c *Client) record(ctx context.Context, method, path string, body any) (*closure.Record, error) {
	var raw json.RawMessage
	if err := c.do(ctx, method, path, body, &raw); err != nil {
		return nil, err
	}
	return closure.DecodeRecord(raw)
}

// ListCatalogoItems fetches one page of a catalog
func (c *Client) ListCatalogoItems(ctx context.Context, catalog string, page, pageSize int) (*closure.CatalogPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var res closure.CatalogPage
	if err := c.do(ctx, http.MethodGet, "/catalogos/"+url.PathEscape(catalog)+"?"+q.Encode(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateCatalogoItem adds an item to a catalog
func (c *Client) CreateCatalogoItem(ctx context.Context, catalog, nombre string) (*closure.CatalogItem, error) {
	var item closure.CatalogItem
	body := map[string]string{"nombre": nombre}
	if err := c.do(ctx, http.MethodPost, "/catalogos/"+url.PathEscape(catalog), body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteCatalogoItem removes an item from a catalog
func (c *Client) DeleteCatalogoItem(ctx context.Context, catalog, itemID string) error {
	return c.do(ctx, http.MethodDelete, "/catalogos/"+url.PathEscape(catalog)+"/"+url.PathEscape(itemID), nil, nil)
}

// GetFormularioCierre fetches the template-based closure form of an incident
func (c *Client) GetFormularioCierre(ctx context.Context, incidentID string) (*form.FilledForm, error) {
	var f form.FilledForm
	if err := c.do(ctx, http.MethodGet, "/incendios/"+url.PathEscape(incidentID)+"/formulario-cierre", nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// SaveRespuestas submits the answered fields of the closure form
func (c *Client) SaveRespuestas(ctx context.Context, incidentID string, responses []form.ResponseInput) error {
	body := map[string]any{"respuestas": responses}
	return c.do(ctx, http.MethodPost, "/incendios/"+url.PathEscape(incidentID)+"/formulario-cierre/respuestas", body, nil)
}

// FinalizarIncendio finalizes the template-based closure form
func (c *Client) FinalizarIncendio(ctx context.Context, incidentID string) error {
	return c.do(ctx, http.MethodPost, "/incendios/"+url.PathEscape(incidentID)+"/finalizar", nil, nil)
}

// User fetches the authenticated caller
func (c *Client) User(ctx context.Context) (auth.User, error) {
	var u auth.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return auth.User{}, err
	}
	return u, nil
}

// do sends a JSON request to /api/v1 and decodes the answer into out
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("backend URL not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the "error" or "message" key of an error body
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Message
}
