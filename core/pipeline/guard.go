package pipeline

import (
	"context"

	"github.com/odpf/salt/log"

	"github.com/odpf/tablevault/internal/errors"
	"github.com/odpf/tablevault/internal/telemetry"
)

// Guard deduplicates deliveries per stage. The flag for a delivery is
// written before the stage does its non-repeatable work, which narrows the
// race window between check and mark without eliminating it.
type Guard struct {
	l     log.Logger
	flags FlagStore
}

func NewGuard(logger log.Logger, flags FlagStore) *Guard {
	return &Guard{
		l:     logger,
		flags: flags,
	}
}

// CheckAndMark reports whether (stage, deliveryID) has been seen before and
// marks it seen if not. Flag store failures are retryable: the delivery can
// safely come back later.
func (g *Guard) CheckAndMark(ctx context.Context, stage, deliveryID string) (bool, error) {
	key := stage + "/" + deliveryID
	seen, err := g.flags.Contains(ctx, key)
	if err != nil {
		return false, errors.MarkRetryable(errors.InternalError(EntityPipeline, "checking delivery flag "+key, err))
	}
	if seen {
		telemetry.NewCounter("tablevault_duplicate_deliveries_total", map[string]string{"stage": stage}).Inc()
		return true, nil
	}
	if err := g.flags.Add(ctx, key); err != nil {
		return false, errors.MarkRetryable(errors.InternalError(EntityPipeline, "marking delivery flag "+key, err))
	}
	return false, nil
}

// Unmark withdraws the seen flag so a redelivery is processed again. Used
// when the stage succeeded but its outbound messages could not be published.
func (g *Guard) Unmark(ctx context.Context, stage, deliveryID string) error {
	key := stage + "/" + deliveryID
	if err := g.flags.Remove(ctx, key); err != nil {
		return errors.MarkRetryable(errors.InternalError(EntityPipeline, "removing delivery flag "+key, err))
	}
	return nil
}
