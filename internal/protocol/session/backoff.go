package session

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// OpenRetry calls Open, retrying up to retries more times while the failure
// is a transport failure. Login and handshake rejections are returned at once.
func (c *Conn) OpenRetry(ctx context.Context, retries int) error {
	rng := rand.New(rand.NewSource(c.cfg.Clock().UnixNano()))
	for attempt := 1; ; attempt++ {
		err := c.Open(ctx)
		if err == nil || attempt > retries || !errors.Is(err, ErrTransportUnavailable) || errors.Is(err, ErrHandshakeFailed) {
			return err
		}
		delay := NextBackoffDelay(c.cfg.Backoff, attempt, rng)
		c.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("session.OpenRetry backing off")
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
	}
}
