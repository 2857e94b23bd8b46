// Package retry implements the transient-I/O retry policy:
// exponential backoff with jitter, 3-5 tries, applied to the Market Data
// Gateway's order placement and (via Do) to any other transient call a
// caller wants wrapped, such as the account checkpoint write. Grounded on
// this design: same Config shape, same crypto/rand jitter
// and string-matched transient-error classification.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/eddiefleurent/orb-agent/internal/marketdata"
	"github.com/eddiefleurent/orb-agent/internal/models"
)

// Config bounds a retry loop's attempt count and backoff growth.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig follows a "3-5 tries" guidance: 4 attempts total
// (1 initial + 3 retries), 30s backoff ceiling, a 2 minute overall budget.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

func (c Config) sanitized() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultConfig.MaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig.Timeout
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	return c
}

// Client wraps a Gateway with retry logic for order placement, the one
// broker call this repo singles out for per-signal abandonment on exhaustion
// ("order failures abandon the specific signal with an
// AGGREGATED_EXECUTION_REJECTED alert reason").
type Client struct {
	gw     marketdata.Gateway
	config Config
}

// NewClient wraps gw with cfg's retry policy.
func NewClient(gw marketdata.Gateway, cfg Config) *Client {
	return &Client{gw: gw, config: cfg.sanitized()}
}

// PlaceOrderWithRetry retries gw.PlaceOrder on transient failure with
// exponential backoff plus jitter, honoring ctx cancellation and the
// client's own timeout budget.
func (c *Client) PlaceOrderWithRetry(
	ctx context.Context,
	clientID, symbol string,
	side models.Side,
	qty int,
	orderType marketdata.OrderType,
) (marketdata.Fill, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := opCtx.Err(); err != nil {
			return marketdata.Fill{}, fmt.Errorf("place order %s timed out: %w", clientID, err)
		}

		fill, err := c.gw.PlaceOrder(opCtx, clientID, symbol, side, qty, orderType)
		if err == nil {
			return fill, nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == c.config.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, c.config.MaxBackoff)
		case <-opCtx.Done():
			return marketdata.Fill{}, fmt.Errorf("place order %s canceled during backoff: %w", clientID, opCtx.Err())
		}
	}

	return marketdata.Fill{}, fmt.Errorf("place order %s failed after %d attempts: %w", clientID, c.config.MaxRetries+1, lastErr)
}

// Do runs fn with the same retry policy, for any other transient call a
// caller wants covered — notably the account checkpoint write, whose
// read-modify-write step that must "tolerate transient failure
// with bounded retry (exponential, >=3 tries) before surfacing."
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.sanitized()
	opCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := opCtx.Err(); err != nil {
			return fmt.Errorf("operation timed out: %w", err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, cfg.MaxBackoff)
		case <-opCtx.Done():
			return fmt.Errorf("operation canceled during backoff: %w", opCtx.Err())
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

func nextBackoff(current, max time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > max {
		backoff = max
	}

	maxJitter := int64(backoff / 4)
	if maxJitter <= 0 {
		return backoff
	}
	jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
	if err != nil {
		return backoff
	}
	return backoff + time.Duration(jitterVal.Int64())
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout", "i/o timeout", "connection refused", "connection reset",
		"temporary failure", "temporarily unavailable", "server error",
		"rate limit", "429", "502", "503", "504", "network", "dns", "tcp",
		"no such host", "deadline exceeded", "tls handshake", "broken pipe", "eof",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
