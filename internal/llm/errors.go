package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransport covers network failures and timeouts talking to the backend.
	ErrTransport = errors.New("backend transport failure")
	// ErrRateLimited is a transport failure caused by HTTP 429.
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrTransport)
	// ErrExhausted wraps the last attempt's error once retries run out.
	ErrExhausted = errors.New("retries exhausted")
	// ErrNotConfigured means no backend credentials are available.
	ErrNotConfigured = errors.New("llm provider not configured")
)

// classifyTransport tags a backend error as rate limited or transport.
// The OpenAI-compatible client only surfaces status codes in the message.
func classifyTransport(err error) error {
	if errors.Is(err, ErrTransport) {
		return err
	}
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") {
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
