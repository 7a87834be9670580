package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/igorsilveira/tokenlens/pkg/telemetry"
)

// PruneFunc deletes records older than before and reports how many went.
// store.Store.PruneTasks and audit.Logger.Prune both fit.
type PruneFunc func(ctx context.Context, before time.Time) (int64, error)

// RetentionJob builds a job that removes records older than ttl each time
// it runs. A non-positive ttl disables retention and returns false.
func RetentionJob(name, schedule string, ttl time.Duration, prune PruneFunc, now func() time.Time) (Job, bool) {
	if ttl <= 0 || prune == nil {
		return Job{}, false
	}
	if now == nil {
		now = time.Now
	}
	return Job{
		Name:     name,
		Schedule: schedule,
		Func: func(ctx context.Context) error {
			cutoff := now().Add(-ttl)
			n, err := prune(ctx, cutoff)
			if err != nil {
				return err
			}
			if n > 0 {
				telemetry.FromContext(ctx).Info("retention pruned records",
					slog.String("job", name),
					slog.Int64("removed", n),
					slog.Time("cutoff", cutoff),
				)
			}
			return nil
		},
	}, true
}
