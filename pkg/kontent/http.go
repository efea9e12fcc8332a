package kontent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL is the Management API v2 root.
const DefaultBaseURL = "https://manage.kontent.ai/v2"

// maxResponseBody caps how much of a response is read (10 MiB).
const maxResponseBody = 10 << 20

// HTTPClient implements Client against the Kontent.ai Management API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.http = c }
}

// WithRetry retries failed requests up to maxRetries times, doubling backoff
// after each attempt. Only network errors, 429 and 5xx responses are retried,
// and POST requests only after a 429.
func WithRetry(maxRetries int, backoff time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		h.maxRetries = maxRetries
		h.backoff = backoff
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(h *HTTPClient) { h.logger = l }
}

// NewHTTPClient creates a client for the given API root and management key.
// An empty baseURL selects DefaultBaseURL.
func NewHTTPClient(baseURL, apiKey string, opts ...HTTPOption) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		backoff: 200 * time.Millisecond,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func projectPath(environmentID string, segments ...string) string {
	var b strings.Builder
	b.WriteString("/projects/")
	b.WriteString(url.PathEscape(environmentID))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(s)
	}
	return b.String()
}

// FetchItem implements Reader.
func (h *HTTPClient) FetchItem(ctx context.Context, environmentID, itemID string) (ContentItem, error) {
	var item ContentItem
	err := h.do(ctx, http.MethodGet, projectPath(environmentID, "items", url.PathEscape(itemID)), nil, &item)
	return item, err
}

// FetchVariant implements Reader.
func (h *HTTPClient) FetchVariant(ctx context.Context, environmentID, itemID, languageID string) (LanguageVariant, error) {
	var v LanguageVariant
	p := projectPath(environmentID, "items", url.PathEscape(itemID), "variants", url.PathEscape(languageID))
	err := h.do(ctx, http.MethodGet, p, nil, &v)
	return v, err
}

// FetchContentType implements Reader. Attached snippets are fetched
// concurrently and returned in attachment order.
func (h *HTTPClient) FetchContentType(ctx context.Context, environmentID, typeID string) (TypeWithSnippets, error) {
	var ct ContentType
	if err := h.do(ctx, http.MethodGet, projectPath(environmentID, "types", url.PathEscape(typeID)), nil, &ct); err != nil {
		return TypeWithSnippets{}, err
	}

	ids := ct.SnippetIDs()
	snippets := make([]Snippet, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			p := projectPath(environmentID, "snippets", url.PathEscape(id))
			if err := h.do(gctx, http.MethodGet, p, nil, &snippets[i]); err != nil {
				return fmt.Errorf("snippet %s: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TypeWithSnippets{}, err
	}
	return TypeWithSnippets{ContentType: ct, Snippets: snippets}, nil
}

// FetchTaxonomy implements Reader.
func (h *HTTPClient) FetchTaxonomy(ctx context.Context, environmentID, codename string) (TaxonomyGroup, error) {
	var tg TaxonomyGroup
	err := h.do(ctx, http.MethodGet, projectPath(environmentID, "taxonomies", "codename", url.PathEscape(codename)), nil, &tg)
	return tg, err
}

// FetchLanguage implements Reader.
func (h *HTTPClient) FetchLanguage(ctx context.Context, environmentID, languageID string) (Language, error) {
	var lang Language
	err := h.do(ctx, http.MethodGet, projectPath(environmentID, "languages", url.PathEscape(languageID)), nil, &lang)
	return lang, err
}

// CreateItem implements Writer.
func (h *HTTPClient) CreateItem(ctx context.Context, environmentID string, item NewItem) (ContentItem, error) {
	var created ContentItem
	err := h.do(ctx, http.MethodPost, projectPath(environmentID, "items"), item, &created)
	return created, err
}

// UpsertVariant implements Writer.
func (h *HTTPClient) UpsertVariant(ctx context.Context, environmentID, itemID, languageID string, elements []ElementValue) (LanguageVariant, error) {
	body := struct {
		Elements []ElementValue `json:"elements"`
	}{Elements: elements}
	var v LanguageVariant
	p := projectPath(environmentID, "items", url.PathEscape(itemID), "variants", url.PathEscape(languageID))
	err := h.do(ctx, http.MethodPut, p, body, &v)
	return v, err
}

// DeleteItem implements Writer.
func (h *HTTPClient) DeleteItem(ctx context.Context, environmentID, itemID string) error {
	return h.do(ctx, http.MethodDelete, projectPath(environmentID, "items", url.PathEscape(itemID)), nil, nil)
}

func (h *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("kontent: encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		retry, err := h.attempt(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if method == http.MethodPost {
			// The server may have created the entity before the failure.
			// Only a rate-limit rejection is known to have done nothing.
			retry = isRateLimited(err)
		}
		if !retry || ctx.Err() != nil || attempt == h.maxRetries {
			break
		}

		wait := h.backoff * (1 << uint(attempt))
		h.logger.Warn("retrying kontent request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", h.maxRetries),
			zap.Duration("backoff", wait),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(wait):
		}
	}
	return lastErr
}

// attempt performs one request. The bool result reports whether a failure
// is worth retrying.
func (h *HTTPClient) attempt(ctx context.Context, method, path string, payload []byte, out any) (bool, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("kontent: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return true, fmt.Errorf("kontent: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return true, fmt.Errorf("kontent: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		apiErr.StatusCode = resp.StatusCode
		return apiErr.Temporary(), apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("kontent: decode response: %w", err)
	}
	return false, nil
}

func isRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// IsNotFound reports whether err denotes a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
