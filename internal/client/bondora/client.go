// Package bondora is a typed REST client for the lending marketplace
// API: primary-market auctions, the secondary market, and account
// holdings, plus the bid/buy/sell/cancel submission endpoints.
package bondora

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

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Client struct {
	host       string
	httpClient *http.Client
	tokens     TokenSource

	// fetchRetries bounds extra attempts for idempotent reads. Writes
	// carry an idempotency key and are never retried here; callers must
	// check post-submission state before resubmitting.
	fetchRetries uint64
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

// retryable reports whether a failed read is worth another attempt.
func (e *APIError) retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

func NewClient(httpClient *http.Client, host string, tokens TokenSource, fetchRetries int) *Client {
	if host == "" {
		host = "https://api.bondora.com"
	}
	host = strings.TrimRight(host, "/")
	if fetchRetries < 0 {
		fetchRetries = 0
	}
	return &Client{
		host:         host,
		httpClient:   httpClient,
		tokens:       tokens,
		fetchRetries: uint64(fetchRetries),
	}
}

// doGet performs an authorized read with bounded retry and backoff.
func (c *Client) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var body []byte
	op := func() error {
		raw, err := c.doRequest(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		body = raw
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.fetchRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return body, nil
}

// doPost performs an authorized write exactly once, tagged with a fresh
// idempotency key so the gateway can deduplicate a caller-level retry.
func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.doRequest(ctx, http.MethodPost, path, nil, raw)
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("client is nil")
	}
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Idempotency-Key", uuid.NewString())
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
