// services/scheduler.go
package services

import (
	"context"
	"time"

	"box-mining-service/logger"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartCatalogScheduler refreshes the active template snapshot every interval so /boxes
// rarely touches the database. The returned scheduler must be shut down by the caller.
func (s *TemplateStore) StartCatalogScheduler(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if err := s.Refresh(ctx); err != nil {
				logger.Warn("[Scheduler] catalog refresh failed", zap.Error(err))
				return
			}
			logger.Debug("[Scheduler] catalog refreshed")
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
