package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// HTTPClient is a JSON HTTP client with bounded retries. Backoff grows
// exponentially with jitter and is capped; 4xx responses are not retried
// since repeating a rejected request cannot succeed.
type HTTPClient struct {
	client     *http.Client
	retries    int
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewHTTPClient(timeout time.Duration, retries int, backoff, maxBackoff time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	if backoff == 0 {
		backoff = 300 * time.Millisecond
	}
	if maxBackoff == 0 {
		maxBackoff = 5 * time.Second
	}
	return &HTTPClient{
		client:     &http.Client{Timeout: timeout},
		retries:    retries,
		backoff:    backoff,
		maxBackoff: maxBackoff,
	}
}

func (c *HTTPClient) DoJSON(ctx context.Context, method, url string, headers map[string]string, body any, out any) error {
	var encoded []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		encoded = b
	}

	var lastErr error
	tries := c.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		var bodyReader io.Reader
		if encoded != nil {
			bodyReader = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if encoded != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			done, retryable, reqErr := consumeResponse(resp, out)
			if done {
				return reqErr
			}
			lastErr = reqErr
			if !retryable {
				// deterministic rejection, retrying cannot succeed
				return lastErr
			}
		}

		if attempt < tries-1 {
			delay := c.backoff * time.Duration(1<<attempt)
			if delay > c.maxBackoff {
				delay = c.maxBackoff
			}
			delay += time.Duration(rand.Int63n(int64(c.backoff)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func consumeResponse(resp *http.Response, out any) (done bool, retryable bool, err error) {
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return true, false, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return true, false, err
		}
		return true, false, nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err = errors.New(resp.Status + ": " + string(b))
	retryable = resp.StatusCode < 400 || resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	return false, retryable, err
}
