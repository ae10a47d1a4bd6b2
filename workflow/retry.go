package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/craftstock_backend/config"
	"github.com/mmdatafocus/craftstock_backend/models"
	"github.com/sirupsen/logrus"
)

// RetryPolicy bounds the transparent retries of a transaction that lost a lock race.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	maxAttempts, base, maxBackoff := config.LedgerRetrySettings()
	return RetryPolicy{MaxAttempts: maxAttempts, BaseBackoff: base, MaxBackoff: maxBackoff}
}

// Backoff is base*2^(attempt-1), capped at MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.BaseBackoff <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift > 20 {
		shift = 20
	}
	d := p.BaseBackoff * time.Duration(1<<shift)
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// runInTx runs fn in one store transaction, retrying serialization failures.
// fn must be safe to run again from scratch: each attempt sees a fresh transaction.
func (e *LedgerEngine) runInTx(ctx context.Context, op string, fn func(tx models.LedgerTx) error) error {
	maxAttempts := e.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := e.Store.Transaction(ctx, fn)
		if err == nil || !errors.Is(err, models.ErrSerializationFailure) {
			return err
		}
		if attempt >= maxAttempts {
			e.log().WithFields(logrus.Fields{
				"op":       op,
				"attempts": attempt,
			}).Warn("ledger transaction gave up after serialization failures")
			return err
		}

		wait := e.Retry.Backoff(attempt)
		e.log().WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"backoff": wait.String(),
		}).Info("ledger transaction serialization failure; retrying")
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
