package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/brecho-erp/brecho-erp/internal/credit"
	"github.com/brecho-erp/brecho-erp/internal/shared"
)

// sweepLockTTL bounds how long a crashed sweep can block the next run.
const sweepLockTTL = 10 * time.Minute

// CreditSweeper releases matured pending credits.
type CreditSweeper interface {
	ReleaseMatured(ctx context.Context) (int, error)
}

// CreditReleaseJob runs the maturation sweep under a redis lock so
// overlapping cron triggers skip instead of double-scanning. Per-credit
// version conflicts inside the sweep are already tolerated by the service.
type CreditReleaseJob struct {
	sweeper CreditSweeper
	locker  *redis.Client
	logger  *slog.Logger
}

// NewCreditReleaseJob constructs the sweep handler. locker may be nil, in
// which case runs are not mutually excluded.
func NewCreditReleaseJob(sweeper CreditSweeper, locker *redis.Client, logger *slog.Logger) *CreditReleaseJob {
	return &CreditReleaseJob{sweeper: sweeper, locker: locker, logger: logger}
}

// Handle processes TaskCreditReleaseSweep tasks.
func (j *CreditReleaseJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j.locker != nil {
		ok, err := j.locker.SetNX(ctx, shared.CreditSweepLockKey(), "1", sweepLockTTL).Result()
		if err != nil {
			return err
		}
		if !ok {
			j.logger.Info("credit sweep already running, skipping")
			return nil
		}
		defer j.locker.Del(context.WithoutCancel(ctx), shared.CreditSweepLockKey())
	}

	released, err := j.sweeper.ReleaseMatured(ctx)
	if err != nil {
		j.logger.Error("credit sweep failed", slog.Any("error", err))
		return err
	}
	j.logger.Info("credit sweep finished", slog.Int("released", released))
	return nil
}

var _ CreditSweeper = (*credit.Service)(nil)
