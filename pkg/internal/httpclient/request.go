package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status: %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the response is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Client struct {
	HTTP       *http.Client
	MaxElapsed time.Duration
}

func New(timeout time.Duration) *Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 100
	t.MaxConnsPerHost = 100
	t.MaxIdleConnsPerHost = 100
	return &Client{
		HTTP: &http.Client{
			Timeout:   timeout,
			Transport: t,
		},
		MaxElapsed: 30 * time.Second,
	}
}

// DoRequest sends a JSON request and decodes a JSON response into v. 429 and
// 5xx responses as well as transport errors are retried with exponential
// backoff until MaxElapsed.
func (c *Client) DoRequest(ctx context.Context, method, url string, headers map[string]string, payload []byte, v interface{}) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = c.MaxElapsed

	op := func() error {
		err := c.do(ctx, method, url, headers, payload, v)
		var status *StatusError
		if errors.As(err, &status) && !status.Retryable() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

func (c *Client) do(ctx context.Context, method, url string, headers map[string]string, payload []byte, v interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		d, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return &StatusError{StatusCode: res.StatusCode, Body: string(d)}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
