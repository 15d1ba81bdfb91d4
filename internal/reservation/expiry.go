package reservation

import (
	"context"
	"fmt"
	"time"

	"ms-reservation/internal/apperrors"
)

const expiryBatch = 100

// ExpirePending cancels Pending bookings older than ttl through the normal
// Cancel path and returns how many were cancelled. A booking paid or
// cancelled meanwhile is skipped.
func (e *Engine) ExpirePending(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	codes, err := e.ledger.PendingBefore(ctx, e.db, cutoff, expiryBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, code := range codes {
		if _, err := e.Cancel(ctx, code); err != nil {
			if apperrors.KindOf(err) == apperrors.KindInvalidState {
				continue
			}
			return expired, err
		}
		e.log.LogBooking("EXPIRE", code, fmt.Sprintf("pending for more than %s", ttl))
		expired++
	}
	e.metrics.Expired(expired)
	return expired, nil
}

// RunExpirySweeper calls ExpirePending every interval until ctx is done.
// A zero ttl disables expiry and returns immediately.
func (e *Engine) RunExpirySweeper(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	e.log.Info("SWEEPER", fmt.Sprintf("Expiring pending bookings older than %s every %s", ttl, interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("SWEEPER", "Stopped")
			return
		case <-ticker.C:
			n, err := e.ExpirePending(ctx, ttl)
			if err != nil {
				e.log.Error("SWEEPER", fmt.Sprintf("Expiry run failed: %v", err))
				continue
			}
			if n > 0 {
				e.log.Info("SWEEPER", fmt.Sprintf("Expired %d pending bookings", n))
			}
		}
	}
}
