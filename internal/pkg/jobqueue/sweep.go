package jobqueue

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
	"github.com/ManuelReschke/ReportFox/internal/pkg/storage"
)

type OrderCanceller interface {
	CancelStaleOrders(ctx context.Context, olderThan time.Duration) (int64, error)
}

type CounterFlusher interface {
	Flush(ctx context.Context) (int, error)
}

// SweepDeps are the collaborators of the maintenance tasks. Nil members
// disable the matching task.
type SweepDeps struct {
	Orders     OrderCanceller
	Counters   CounterFlusher
	PendingTTL time.Duration
	TempDir    string
}

// SweepTasks returns the maintenance tasks: stale order cancellation, temp
// file cleanup and view counter flushing.
func SweepTasks(cfg config.SweeperConfig, deps SweepDeps) []Task {
	var tasks []Task
	if deps.Orders != nil {
		tasks = append(tasks, Task{
			Name:     "stale-orders",
			Interval: cfg.Interval,
			Run: func(ctx context.Context) error {
				_, err := deps.Orders.CancelStaleOrders(ctx, deps.PendingTTL)
				return err
			},
		})
	}
	if deps.TempDir != "" {
		tasks = append(tasks, Task{
			Name:     "temp-files",
			Interval: cfg.Interval,
			Run: func(ctx context.Context) error {
				n, err := storage.PurgeTemp(deps.TempDir, cfg.TempMaxAge, time.Now())
				if n > 0 {
					log.Infof("[Sweeper] Removed %d temp files older than %s", n, cfg.TempMaxAge)
				}
				return err
			},
		})
	}
	if deps.Counters != nil {
		tasks = append(tasks, Task{
			Name:     "view-counters",
			Interval: cfg.CounterInterval,
			Run: func(ctx context.Context) error {
				_, err := deps.Counters.Flush(ctx)
				return err
			},
		})
	}
	return tasks
}
