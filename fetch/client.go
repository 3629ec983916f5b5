// Package fetch provides the resilient HTTP JSON client and the JSON-RPC
// batch helpers used by all estimators.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bbayazit16/l2savings/metrics"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	// ErrRateLimited means the rate-limit retry ceiling was exhausted on 429s.
	ErrRateLimited = errors.New("too many requests")

	// ErrUnavailable means the failure retry ceiling was exhausted on
	// transport errors or non-2xx responses.
	ErrUnavailable = errors.New("service unavailable")
)

type ClientOpts struct {
	Log *zap.SugaredLogger

	// BaseDelay scales linearly with the attempt count: delay = BaseDelay * (attempt+1).
	// Deliberately no jitter.
	BaseDelay time.Duration

	// FailureRetryLimit bounds retries after transport errors and non-2xx
	// non-429 responses. RateLimitRetryLimit bounds retries after 429s and is
	// typically higher, since rate limits clear on their own.
	FailureRetryLimit   int
	RateLimitRetryLimit int

	// Alert is invoked at most once per client lifetime, when a retry ceiling
	// is exhausted. Rendering it is the caller's concern.
	Alert func(msg string)

	HTTPClient *http.Client
}

// Client is a fetch wrapper with linear-scaled backoff and separate retry
// ceilings for "rate limited" and "failed" outcomes.
type Client struct {
	log        *zap.SugaredLogger
	httpClient *http.Client

	baseDelay           time.Duration
	failureRetryLimit   int
	rateLimitRetryLimit int

	alert      func(string)
	hasAlerted atomic.Bool
}

func NewClient(opts ClientOpts) *Client {
	if opts.BaseDelay == 0 {
		opts.BaseDelay = 1536 * time.Millisecond
	}
	if opts.FailureRetryLimit == 0 {
		opts.FailureRetryLimit = 5
	}
	if opts.RateLimitRetryLimit == 0 {
		opts.RateLimitRetryLimit = 16
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		log:                 opts.Log,
		httpClient:          opts.HTTPClient,
		baseDelay:           opts.BaseDelay,
		failureRetryLimit:   opts.FailureRetryLimit,
		rateLimitRetryLimit: opts.RateLimitRetryLimit,
		alert:               opts.Alert,
	}
}

// GetJSON fetches url and decodes the JSON response into out, retrying per
// the client's policy.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, nil, out)
}

// PostJSON sends body as JSON to url and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, url, payload, out)
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload []byte, out any) error {
	var rateLimitRetries, failureRetries int

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		metrics.IncFetchRequests()
		body, status, err := c.once(ctx, method, url, payload)
		if err == nil && status >= 200 && status < 300 {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode response from %s: %w", url, err)
			}
			return nil
		}

		var attempt int
		if status == http.StatusTooManyRequests {
			metrics.IncFetchRateLimited()
			rateLimitRetries++
			attempt = rateLimitRetries
			if rateLimitRetries > c.rateLimitRetryLimit {
				c.alertOnce("API endpoints receiving too many requests at the moment. Consider trying again later.")
				return fmt.Errorf("%w: %s", ErrRateLimited, url)
			}
			c.log.Debugw("rate limited, backing off", "url", url, "attempt", rateLimitRetries)
		} else {
			metrics.IncFetchFailures()
			failureRetries++
			attempt = failureRetries
			if failureRetries > c.failureRetryLimit {
				c.alertOnce("Network error! One of the services used may be down. Consider trying again later.")
				if err != nil {
					return fmt.Errorf("%w: %s: %s", ErrUnavailable, url, err)
				}
				return fmt.Errorf("%w: %s: status %d", ErrUnavailable, url, status)
			}
			c.log.Debugw("request failed, backing off", "url", url, "status", status, "attempt", failureRetries, "err", err)
		}

		select {
		case <-time.After(c.baseDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) once(ctx context.Context, method, url string, payload []byte) (body []byte, status int, err error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) alertOnce(msg string) {
	if c.alert == nil {
		return
	}
	if c.hasAlerted.CompareAndSwap(false, true) {
		c.alert(msg)
	}
}
