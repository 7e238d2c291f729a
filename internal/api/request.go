package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// Errors
var (
	ErrRejected     = errors.New("request rejected by backend")
	ErrUnauthorized = errors.New("no token source for authenticated endpoint")
)

// APIError represents an error from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// errorBody is the backend's error shape.
type errorBody struct {
	Detail any `json:"detail"`
}

// doRequest performs a single POST with a JSON body.
func (c *Client) doRequest(ctx context.Context, path string, payload []byte, authenticated bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if authenticated {
		if c.tokens == nil {
			return nil, ErrUnauthorized
		}
		token, err := c.tokens.FreshToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("get token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := http.StatusText(resp.StatusCode)
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil {
			if s, ok := eb.Detail.(string); ok && s != "" {
				msg = s
			}
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			Body:       body,
		}
	}

	return body, nil
}

// doWithRetry performs a request with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, path string, payload []byte, authenticated bool) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)+1))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)
			c.metrics.APIRequest(path, "retry")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, path, payload, authenticated)
		if err == nil {
			c.metrics.APIRequest(path, "ok")
			return body, nil
		}

		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			c.metrics.APIRequest(path, "error")
			return nil, err
		}
	}

	c.metrics.APIRequest(path, "error")
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// post sends body and decodes the response into result. result may be nil.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.send(ctx, path, body, result, true)
}

// postPublic is post without a bearer token.
func (c *Client) postPublic(ctx context.Context, path string, body, result any) error {
	return c.send(ctx, path, body, result, false)
}

func (c *Client) send(ctx context.Context, path string, body, result any, authenticated bool) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.doWithRetry(ctx, path, payload, authenticated)
	if err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// postAction sends body to an endpoint answering {"success": bool}.
func (c *Client) postAction(ctx context.Context, path string, body any) error {
	var resp SuccessResponse
	if err := c.post(ctx, path, body, &resp); err != nil {
		return err
	}
	return resp.check(path)
}

func (r SuccessResponse) check(path string) error {
	switch {
	case r.Success:
		return nil
	case r.Message != "":
		return fmt.Errorf("%s: %w: %s", path, ErrRejected, r.Message)
	default:
		return fmt.Errorf("%s: %w", path, ErrRejected)
	}
}
