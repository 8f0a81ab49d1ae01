package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"issue-scout/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

type retryingCompleter struct {
	base  Completer
	delay time.Duration
}

// WithRetry retries a transient completer failure once after a short delay.
func WithRetry(base Completer) Completer {
	if base == nil {
		return nil
	}
	return retryingCompleter{base: base, delay: retryBaseDelay}
}

func (r retryingCompleter) Complete(ctx context.Context, prompt Prompt) (Completion, error) {
	resp, err := r.base.Complete(ctx, prompt)
	if err == nil || !shouldRetry(err) || ctx.Err() != nil {
		return resp, err
	}

	telemetry.Warn("llm.retry", map[string]any{
		"attempt":    1,
		"request_id": telemetry.RequestID(ctx),
		"error":      err,
	})
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	}
	return r.base.Complete(ctx, prompt)
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrNotImplemented) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == 429 || statusErr.Status >= 500
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") || strings.Contains(msg, "overloaded") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "anthropic") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}
	return false
}

// StatusError carries the HTTP status of a failed provider call.
type StatusError struct {
	Provider string
	Status   int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s http status %d: %s", e.Provider, e.Status, e.Message)
}
