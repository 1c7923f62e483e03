package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/breachwatch/scraper/internal/logger"
)

// ClientConfig holds the shared request policy for every stage.
type ClientConfig struct {
	RequestsPerMinute int
	Burst             int
	MaxRetries        int // total attempts per request
	RetryDelay        time.Duration
	RequestTimeout    time.Duration // per attempt
}

// Request is one stage's round trip to the backend.
type Request struct {
	Stage     string
	Prompt    string
	MaxTokens int
}

// Client applies rate limiting, per-attempt timeouts and fixed-delay retries
// around a Provider. It is safe for concurrent use; all workers share one
// limiter.
type Client struct {
	provider Provider
	limiter  *rate.Limiter
	cfg      ClientConfig
}

// NewClient creates a client. Zero values fall back to one attempt with no
// timeout and an unlimited rate.
func NewClient(provider Provider, cfg ClientConfig) *Client {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}
	return &Client{
		provider: provider,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		cfg:      cfg,
	}
}

// Configured reports whether the underlying provider can serve requests.
func (c *Client) Configured() bool {
	return c.provider != nil && c.provider.IsConfigured()
}

// Do runs req until decode accepts the reply. Transport errors and decode
// errors are both retried. After the last attempt the error wraps
// ErrExhausted and the final cause.
func (c *Client) Do(ctx context.Context, req Request, decode func(text string) error) error {
	if !c.Configured() {
		return fmt.Errorf("%s: %w", req.Stage, ErrNotConfigured)
	}

	log := logger.Log.WithField("stage", req.Stage)
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 && c.cfg.RetryDelay > 0 {
			timer := time.NewTimer(c.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: %w", req.Stage, ctx.Err())
			case <-timer.C:
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: waiting for rate limiter: %w", req.Stage, err)
		}

		err := c.attempt(ctx, req, decode)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", req.Stage, ctx.Err())
		}
		lastErr = err
		log.Warnf("attempt %d/%d failed: %v", attempt, c.cfg.MaxRetries, err)
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrExhausted, req.Stage, c.cfg.MaxRetries, lastErr)
}

func (c *Client) attempt(ctx context.Context, req Request, decode func(string) error) error {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	text, err := c.provider.Generate(ctx, req.Prompt, req.MaxTokens)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return err
		}
		return classifyTransport(err)
	}
	return decode(text)
}
