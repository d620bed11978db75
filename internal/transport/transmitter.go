// Package transport performs one network exchange per item. Retry policy
// lives in the scheduler; Send never retries internally.
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	v1 "pulsewire/pkg/api/v1"
	"pulsewire/pkg/constraints"
)

// maxResponseBytes bounds how much of the ingestion response is retained.
const maxResponseBytes = 64 << 10

type Options struct {
	Endpoint  string
	Timeout   time.Duration
	AuthToken string
}

// SendMetadata rides along with the transformed body and ends up in the
// request headers for server-side tracking.
type SendMetadata struct {
	ItemID          string
	SessionID       string
	Priority        constraints.Priority
	RetryAttempt    int
	ContentEncoding string
	Encryption      string
}

type Transmitter struct {
	mu     sync.RWMutex
	opts   Options
	client *http.Client
}

func New(opts Options) *Transmitter {
	return &Transmitter{
		opts:   opts,
		client: &http.Client{},
	}
}

// UpdateOptions swaps endpoint/timeout/credential. Takes effect on the
// next Send.
func (t *Transmitter) UpdateOptions(opts Options) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts = opts
}

// Close releases pooled connections. Called from Destroy.
func (t *Transmitter) Close() {
	t.client.CloseIdleConnections()
}

// Send posts one transformed payload to the ingestion endpoint and maps the
// outcome to a TransmissionResult: any 2xx is success, any other status is
// a failure carrying the code, a transport error is a failure carrying its
// description. The configured timeout always bounds the exchange.
func (t *Transmitter) Send(ctx context.Context, body []byte, meta SendMetadata) v1.TransmissionResult {
	t.mu.RLock()
	opts := t.opts
	t.mu.RUnlock()

	result := v1.TransmissionResult{RetryAttempt: meta.RetryAttempt}
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		result.Error = "build request: " + err.Error()
		result.Duration = time.Since(start)
		return result
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(constraints.HeaderSessionID, meta.SessionID)
	req.Header.Set(constraints.HeaderItemID, meta.ItemID)
	req.Header.Set(constraints.HeaderPriority, meta.Priority.String())
	if opts.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+opts.AuthToken)
	}
	if meta.ContentEncoding != "" {
		req.Header.Set("Content-Encoding", meta.ContentEncoding)
	}
	if meta.Encryption != "" {
		req.Header.Set(constraints.HeaderEncryption, meta.Encryption)
	}

	resp, err := t.client.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			result.Error = "request timed out after " + opts.Timeout.String()
		} else {
			result.Error = err.Error()
		}
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Error = "unexpected status " + strconv.Itoa(resp.StatusCode)
		return result
	}
	if readErr != nil {
		result.Error = "read response: " + readErr.Error()
		return result
	}

	result.Success = true
	result.Response = respBody
	return result
}

// Retriable classifies a failed result. Timeouts, transport errors, 5xx,
// 408 and 429 are worth retrying; any other 4xx is a terminal request
// error and retrying it only burns budget.
func Retriable(res v1.TransmissionResult) bool {
	if res.Success {
		return false
	}
	if res.StatusCode == 0 {
		// Transport-level failure or timeout: no response was received.
		return true
	}
	if res.StatusCode >= 500 {
		return true
	}
	return res.StatusCode == http.StatusTooManyRequests || res.StatusCode == http.StatusRequestTimeout
}
