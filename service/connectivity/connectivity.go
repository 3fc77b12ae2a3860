// Package connectivity verifies that the application server is reachable,
// with a bounded per-attempt timeout and exponential backoff between
// retries.
package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

type Checker struct {
	addr       string
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

func NewChecker(host string, port int, logger *slog.Logger) *Checker {
	return &Checker{
		addr:       net.JoinHostPort(host, fmt.Sprint(port)),
		timeout:    2 * time.Second,
		maxRetries: 2,
		baseDelay:  500 * time.Millisecond,
		logger:     logger,
	}
}

func (c *Checker) checkOnce(ctx context.Context) error {
	c.logger.Debug("Checking connectivity", "addr", c.addr)

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.logger.Debug("Connectivity check failed", "addr", c.addr, "error", err)
		return err
	}
	_ = conn.Close()

	c.logger.Debug("Connectivity check successful", "addr", c.addr)
	return nil
}

// CheckQuick performs a single connection attempt; useful for on-demand
// checks where immediate feedback matters more than resilience.
func (c *Checker) CheckQuick(ctx context.Context) bool {
	return c.checkOnce(ctx) == nil
}

// Check probes the server with retries: one immediate attempt, then up to
// maxRetries more, waiting baseDelay*2^(n-1) between them. It reports false
// (never an error) when all attempts fail; the caller only needs the
// verdict.
func (c *Checker) Check(ctx context.Context) bool {
	if c.checkOnce(ctx) == nil {
		c.logger.Info("Connectivity check passed on first attempt", "addr", c.addr)
		return true
	}

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		delay := c.baseDelay * (1 << (attempt - 1))
		c.logger.Debug("Retrying connectivity check", "attempt", attempt, "max", c.maxRetries, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false
		}

		if c.checkOnce(ctx) == nil {
			c.logger.Info("Connectivity check passed on retry", "addr", c.addr, "attempt", attempt)
			return true
		}
	}

	c.logger.Warn("Connectivity check failed after retries", "addr", c.addr, "retries", c.maxRetries)
	return false
}
