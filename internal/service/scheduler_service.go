package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SchedulerService runs periodic maintenance sweeps such as reconcile.
type SchedulerService struct {
	cron *cron.Cron
	log  zerolog.Logger
	ctx  context.Context
}

func NewSchedulerService(ctx context.Context, loc *time.Location, zl zerolog.Logger) *SchedulerService {
	cronLog := cron.PrintfLogger(log.New(zl.With().Str("component", "sweeps").Logger(), "", 0))
	return &SchedulerService{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		log: zl,
		ctx: ctx,
	}
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// ScheduleInterval registers a named job every given duration.
func (s *SchedulerService) ScheduleInterval(name string, interval time.Duration, job func(ctx context.Context) error) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	// Convert to cron spec: every N seconds.
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, func() {
		started := time.Now()
		if err := job(s.ctx); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("periodic job failed")
			return
		}
		s.log.Debug().Str("job", name).Dur("took", time.Since(started)).Msg("periodic job done")
	})
}

// ScheduleReconcile runs the reminder reconcile sweep every interval.
func (s *SchedulerService) ScheduleReconcile(reminders *ReminderService, interval time.Duration) (cron.EntryID, error) {
	return s.ScheduleInterval("reconcile", interval, func(ctx context.Context) error {
		plan, err := reminders.Reconcile(ctx)
		if len(plan.Cancel) > 0 || len(plan.Reschedule) > 0 {
			s.log.Info().Int("cancelled", len(plan.Cancel)).Int("rescheduled", len(plan.Reschedule)).Msg("reminders reconciled")
		}
		return err
	})
}
