package service

import (
	"context"
	"sync"
	"time"

	"dailypost/internal/constants"
	"dailypost/internal/errors"
	"dailypost/internal/metrics"
	"dailypost/internal/models"
	"dailypost/internal/settings"
	"dailypost/internal/tracing"
	"dailypost/internal/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// SchedulerConfig tunes a Scheduler
type SchedulerConfig struct {
	// Policy is constants.SchedulePolicyExact or constants.SchedulePolicyCatchUp
	Policy string
	// Interval between ticks; ticks are aligned to wall-clock multiples of it
	Interval time.Duration
	// Workers bounds concurrent dispatches within one tick
	Workers int
}

// TickSummary counts what a tick did
type TickSummary struct {
	TickID    string
	Scheduled int
	Due       int
	Published int
	Empty     int
	Failed    int
	Skipped   int
}

// Scheduler wakes up once per minute and dispatches every chat whose local
// time has reached its post time.
type Scheduler struct {
	settings   *settings.Registry
	dispatcher ChatDispatcher
	config     SchedulerConfig
	logger     *logrus.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
	ticks      sync.WaitGroup

	mu         sync.Mutex
	lastMinute time.Time
}

func NewScheduler(reg *settings.Registry, dispatcher ChatDispatcher, config SchedulerConfig, logger *logrus.Logger) *Scheduler {
	if config.Policy == "" {
		config.Policy = constants.SchedulePolicyExact
	}
	if config.Interval <= 0 {
		config.Interval = constants.DefaultTickIntervalSec * time.Second
	}
	if config.Workers <= 0 {
		config.Workers = constants.DefaultDispatchWorkers
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		settings:   reg,
		dispatcher: dispatcher,
		config:     config,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Start runs the tick loop until ctx is cancelled or Stop is called. Each
// tick runs on its own goroutine so a slow publish never delays the timer.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.WithFields(logrus.Fields{
		LogFieldPolicy: s.config.Policy,
		"interval":     s.config.Interval.String(),
		"workers":      s.config.Workers,
	}).Info("Starting post scheduler")

	timer := time.NewTimer(s.untilNextTick(time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case now := <-timer.C:
			s.ticks.Add(1)
			// Shutdown stops new ticks; a tick already running finishes its publishes
			go func(now time.Time) {
				defer s.ticks.Done()
				s.Tick(context.WithoutCancel(ctx), now)
			}(now)
			timer.Reset(s.untilNextTick(time.Now()))
		}
	}
}

// Stop ends the tick loop. Ticks already running are not interrupted; use
// Wait to let them finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Wait blocks until every started tick has finished
func (s *Scheduler) Wait() {
	s.ticks.Wait()
}

func (s *Scheduler) untilNextTick(now time.Time) time.Duration {
	next := now.Truncate(s.config.Interval).Add(s.config.Interval)
	return next.Sub(now)
}

// Tick evaluates every scheduled chat against now and dispatches the due
// ones concurrently. A second tick for the same minute is ignored, so timer
// jitter can never publish two items in one minute.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) TickSummary {
	summary := TickSummary{TickID: uuid.NewString()}

	minute := now.Truncate(time.Minute)
	s.mu.Lock()
	if !s.lastMinute.IsZero() && !minute.After(s.lastMinute) {
		s.mu.Unlock()
		s.logger.WithField(LogFieldTickID, summary.TickID).Debug("Tick for an already handled minute, ignoring")
		return summary
	}
	s.lastMinute = minute
	s.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "scheduler.tick", attribute.String("tick.id", summary.TickID))
	defer span.End()

	logger := s.logger.WithField(LogFieldTickID, summary.TickID)
	start := time.Now()

	chats, err := s.settings.ScheduledChats(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to list scheduled chats")
		tracing.RecordError(ctx, err)
		return summary
	}
	summary.Scheduled = len(chats)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.config.Workers)
	dispatchCtx := context.WithoutCancel(ctx)

	for _, chatID := range chats {
		due, localDate, err := s.IsDue(ctx, chatID, now)
		if err != nil {
			logger.WithFields(chatFields(ctx, chatID)).WithError(err).Warn("Failed to evaluate chat schedule")
			continue
		}
		if !due {
			continue
		}
		summary.Due++

		chatID := chatID
		g.Go(func() error {
			// Dispatch failures are per chat and never abort the tick
			outcome, err := s.dispatcher.Dispatch(dispatchCtx, chatID)
			if err != nil {
				logger.WithFields(chatFields(ctx, chatID)).WithError(err).
					WithField(LogFieldErrorCode, errors.GetCode(err)).Warn("Dispatch failed")
			}
			if s.config.Policy == constants.SchedulePolicyCatchUp && outcome != models.OutcomeSkipped {
				s.markDispatched(dispatchCtx, chatID, localDate)
			}

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case models.OutcomePublished:
				summary.Published++
			case models.OutcomeEmpty:
				summary.Empty++
			case models.OutcomeSkipped:
				summary.Skipped++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	metrics.RecordTimer("scheduler_tick_duration", elapsed, nil, "Time spent per scheduler tick")
	metrics.SetGauge("scheduler_scheduled_chats", float64(summary.Scheduled), nil, "Chats with a post time")
	span.SetAttributes(
		attribute.Int("tick.scheduled", summary.Scheduled),
		attribute.Int("tick.due", summary.Due),
	)

	if summary.Due > 0 {
		logger.WithFields(logrus.Fields{
			LogFieldDueChats: summary.Due,
			"published":      summary.Published,
			"failed":         summary.Failed,
			"empty":          summary.Empty,
			"skipped":        summary.Skipped,
			LogFieldDuration: elapsed.Milliseconds(),
		}).Info("Scheduler tick completed")
	}
	return summary
}

// IsDue reports whether chatID should be dispatched at now, together with
// the chat's local date.
func (s *Scheduler) IsDue(ctx context.Context, chatID string, now time.Time) (bool, string, error) {
	loc, err := s.settings.Location(ctx, chatID)
	if err != nil {
		return false, "", err
	}
	stored, err := s.settings.PostTime(ctx, chatID)
	if err != nil {
		return false, "", err
	}
	postTime, err := validation.ParsePostTime(stored)
	if err != nil {
		return false, "", err
	}

	local := now.In(loc)
	localTime := local.Format(constants.PostTimeLayout)
	localDate := local.Format(constants.LocalDateLayout)

	var due bool
	switch s.config.Policy {
	case constants.SchedulePolicyCatchUp:
		last, err := s.settings.LastDispatched(ctx, chatID)
		if err != nil {
			return false, "", err
		}
		// Canonical HH:MM strings order the same way as the times they encode
		due = last != localDate && localTime >= postTime
	default:
		due = localTime == postTime
	}

	if due {
		fields := chatFields(ctx, chatID)
		fields[LogFieldTimezone] = loc.String()
		fields[LogFieldLocalTime] = localTime
		fields[LogFieldPostTime] = postTime
		s.logger.WithFields(fields).Debug("Chat is due")
	}
	return due, localDate, nil
}

func (s *Scheduler) markDispatched(ctx context.Context, chatID, localDate string) {
	if err := s.settings.SetLastDispatched(ctx, chatID, localDate); err != nil {
		s.logger.WithFields(chatFields(ctx, chatID)).WithError(err).Error("Failed to record dispatch date")
	}
}
