// Package vendorerr gives the llm/stt/tts vendor clients a shared,
// structured failure type and a retrying HTTP round trip, so a translation
// failure and a synthesis failure surface the same shape to the fan-out's
// logging and metrics instead of each vendor file inventing its own
// fmt.Errorf text.
package vendorerr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Error wraps one vendor HTTP call's failure. StatusCode is 0 when the
// call never got a response at all (dial/timeout/context failure).
type Error struct {
	Vendor     string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Vendor, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s error: %v", e.Vendor, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure looks like the vendor's own
// instability (5xx, or a request that never got a response) rather than a
// request the client built wrong (4xx) — only the former is worth a retry.
func (e *Error) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
}

// FromStatus wraps a non-2xx response already read into body.
func FromStatus(vendor string, statusCode int, body string) *Error {
	return &Error{Vendor: vendor, StatusCode: statusCode, Body: body}
}

// FromErr wraps a transport-level failure (the request never got a response).
func FromErr(vendor string, err error) *Error {
	return &Error{Vendor: vendor, Err: err}
}

// Do issues method/url with body and headers, retrying up to maxRetries
// times (exponential backoff starting at 200ms) on a transport error or a
// 5xx response. body is re-read from scratch on every attempt since an
// http.Request's body can only be consumed once. The returned response is
// the caller's to close; Do only inspects StatusCode to decide whether to
// retry, never the decoded payload.
func Do(ctx context.Context, client *http.Client, method, url string, headers http.Header, body []byte, vendor string, maxRetries int) (*http.Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		req.Header = headers.Clone()

		resp, err := client.Do(req)
		if err != nil {
			lastErr = FromErr(vendor, err)
			if attempt >= maxRetries {
				return nil, lastErr
			}
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError && attempt < maxRetries {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = FromStatus(vendor, resp.StatusCode, string(respBody))
			continue
		}

		return resp, nil
	}
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt) * 200 * time.Millisecond
}
