package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"group-reminder/internal/bot"
	"group-reminder/internal/config"
	"group-reminder/internal/logging"
	"group-reminder/internal/repository"
	"group-reminder/internal/service"
	"group-reminder/internal/timer"
)

// stack is the store plus the services built on it.
type stack struct {
	db        *gorm.DB
	taskRepo  *repository.TaskRepository
	timer     *timer.CronTimer
	describer *service.Describer
	reminders *service.ReminderService
	tasks     *service.TaskService
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func buildStack(cfg config.Config, log zerolog.Logger, delivery service.Delivery, format service.Formatter) (*stack, error) {
	db, err := repository.NewDB(cfg.DatabaseURL, logging.Component(log, "store"))
	if err != nil {
		return nil, err
	}

	taskRepo := repository.NewTaskRepository(db)
	assignments := repository.NewAssignmentRepository(db)
	cronTimer := timer.NewCronTimer(repository.NewTimerJobRepository(db), cfg.Location, logging.Component(log, "timer"))
	describer := service.NewDescriber(taskRepo, assignments, format, cfg.Location)
	reminders := service.NewReminderService(taskRepo, cronTimer, describer, delivery, cfg.RemindJitter, logging.Component(log, "reminder"))
	rotation := service.NewRotationService(assignments, repository.NewAssigneeRepository(db), logging.Component(log, "rotation"))
	tasks := service.NewTaskService(taskRepo, repository.NewRecordRepository(db), rotation, reminders, logging.Component(log, "task"))

	return &stack{
		db:        db,
		taskRepo:  taskRepo,
		timer:     cronTimer,
		describer: describer,
		reminders: reminders,
		tasks:     tasks,
	}, nil
}

func (s *stack) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.RequireToken(); err != nil {
		return err
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	api, err := bot.NewAPI(cfg.TelegramToken, logging.Component(log, "bot"))
	if err != nil {
		return err
	}
	sender := bot.NewSender(api, cfg.DeliveryRate, logging.Component(log, "sender"))

	st, err := buildStack(cfg, log, sender, bot.HTMLFormatter{})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.timer.Start(ctx, st.reminders.Fire); err != nil {
		return err
	}
	defer st.timer.Stop()

	// Jobs may have drifted from the store while the process was down.
	if plan, err := st.reminders.Reconcile(ctx); err != nil {
		log.Error().Err(err).Msg("initial reconcile")
	} else {
		log.Info().Int("cancelled", len(plan.Cancel)).Int("rescheduled", len(plan.Reschedule)).Msg("initial reconcile done")
	}

	sweeps := service.NewSchedulerService(ctx, cfg.Location, logging.Component(log, "sweeps"))
	if _, err := sweeps.ScheduleReconcile(st.reminders, cfg.ReconcileInterval); err != nil {
		return fmt.Errorf("schedule reconcile: %w", err)
	}
	sweeps.Start()
	defer sweeps.Stop()

	if cfg.File != "" {
		go func() {
			err := config.Watch(ctx, cfg.File, logging.Component(log, "config"), func(next config.Config) {
				lvl := logging.SetLevel(next.LogLevel)
				log.Info().Str("level", lvl.String()).Msg("config reloaded")
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("config watch stopped")
			}
		}()
	}

	telegramBot := bot.New(api, sender, bot.Deps{
		Tasks:     st.tasks,
		Reminders: st.reminders,
		Describer: st.describer,
		Defaults:  cfg.Defaults,
		Location:  cfg.Location,
	}, logging.Component(log, "bot"))

	log.Info().Str("timezone", cfg.Location.String()).Msg("reminder bot started")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("bot stopped: %w", err)
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func runReconcile(parent context.Context, configPath string, dryRun bool) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	// No delivery: reminders cannot fire from a one-shot run.
	st, err := buildStack(cfg, log, nil, service.PlainFormatter{})
	if err != nil {
		return err
	}
	defer st.Close()

	if dryRun {
		tasks, err := st.taskRepo.ListActive(parent)
		if err != nil {
			return err
		}
		jobs, err := st.timer.List(parent)
		if err != nil {
			return err
		}
		plan := service.PlanReconcile(tasks, jobs)
		fmt.Printf("would cancel %d job(s): %v\nwould reschedule %d task(s): %v\n",
			len(plan.Cancel), plan.Cancel, len(plan.Reschedule), plan.Reschedule)
		return nil
	}

	plan, err := st.reminders.Reconcile(parent)
	fmt.Printf("cancelled %d job(s), rescheduled %d task(s)\n", len(plan.Cancel), len(plan.Reschedule))
	return err
}
