package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/liunix61/uptane-server/internal/usecase"
)

type Sweeper interface {
	Sweep(ctx context.Context) (usecase.SweepResult, error)
}

const sweepTimeout = 2 * time.Minute

// ScheduleReconcile runs the namespace reconciler on the given cron spec
// until ctx is cancelled.
func ScheduleReconcile(ctx context.Context, spec string, sweeper Sweeper, logger zerolog.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { runSweep(ctx, sweeper, logger) }); err != nil {
		return nil, fmt.Errorf("reconcile schedule %q: %w", spec, err)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c, nil
}

func runSweep(parent context.Context, sweeper Sweeper, logger zerolog.Logger) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, sweepTimeout)
	defer cancel()
	ctx = logger.With().Str("job", "reconcile").Logger().WithContext(ctx)

	result, err := sweeper.Sweep(ctx)
	event := zerolog.Ctx(ctx).Debug()
	if err != nil {
		event = zerolog.Ctx(ctx).Error().Err(err)
	} else if result.RolledBack+result.Purged > 0 {
		event = zerolog.Ctx(ctx).Info()
	}
	event.
		Int("rolled_back", result.RolledBack).
		Int("purged", result.Purged).
		Int("failed", result.Failed).
		Msg("reconcile sweep")
}
