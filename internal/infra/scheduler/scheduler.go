package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"weekly_report_bot/internal/app"
)

type Job string

const (
	JobWeeklyReminders Job = "weekly_reminders"
	JobDailyReminders  Job = "daily_reminders"
	JobCuratorDigest   Job = "curator_digest"
)

// Schedule places the jobs on the week. Hours are in the scheduler's location.
type Schedule struct {
	ReminderHour  int
	DigestHour    int
	DigestWeekday time.Weekday
}

// DueJobs returns the jobs to run for the hour now falls into.
func DueJobs(now time.Time, s Schedule) []Job {
	var jobs []Job
	if now.Hour() == s.ReminderHour {
		if now.Weekday() == time.Monday {
			jobs = append(jobs, JobWeeklyReminders)
		} else {
			jobs = append(jobs, JobDailyReminders)
		}
	}
	if now.Weekday() == s.DigestWeekday && now.Hour() == s.DigestHour {
		jobs = append(jobs, JobCuratorDigest)
	}
	return jobs
}

// Notifier is the part of app.NotificationService driven by the calendar.
type Notifier interface {
	SendWeeklyReminders(ctx context.Context) (app.DeliveryStats, error)
	SendDailyMissingReportReminders(ctx context.Context) (app.DeliveryStats, error)
	SendCuratorMissingReportsNotifications(ctx context.Context) (app.DeliveryStats, error)
}

// WeeklyScheduler wakes up on a fixed tick and runs whatever is due.
type WeeklyScheduler struct {
	cronEngine *cron.Cron
	notifier   Notifier
	schedule   Schedule
	tickSpec   string
	logger     *logrus.Entry
	now        func() time.Time

	// running holds one guard per job so a long batch only skips its own next run.
	running map[Job]*sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func NewWeeklyScheduler(
	notifier Notifier,
	schedule Schedule,
	tickSpec string, // e.g. "@hourly" or "0 * * * *"
	loc *time.Location,
	logger *logrus.Entry,
) *WeeklyScheduler {
	logger = logger.WithField("component", "scheduler")
	cl := cronLogger{entry: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &WeeklyScheduler{
		cronEngine: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		notifier: notifier,
		schedule: schedule,
		tickSpec: tickSpec,
		logger:   logger,
		now:      func() time.Time { return time.Now().In(loc) },
		running: map[Job]*sync.Mutex{
			JobWeeklyReminders: {},
			JobDailyReminders:  {},
			JobCuratorDigest:   {},
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *WeeklyScheduler) Start() error {
	s.logger.WithField("tick", s.tickSpec).Info("Starting weekly scheduler")
	if _, err := s.cronEngine.AddFunc(s.tickSpec, func() { s.RunDue(s.ctx, s.now()) }); err != nil {
		return fmt.Errorf("could not add scheduler tick %q: %w", s.tickSpec, err)
	}
	s.cronEngine.Start()
	return nil
}

// RunDue runs every job due at now concurrently and waits for them.
// A job still running from an earlier tick is skipped. Failures are logged and never stop the other jobs.
func (s *WeeklyScheduler) RunDue(ctx context.Context, now time.Time) {
	var wg sync.WaitGroup
	for _, job := range DueJobs(now, s.schedule) {
		logCtx := s.logger.WithFields(logrus.Fields{"job": job, "run_id": uuid.NewString()})

		guard := s.running[job]
		if !guard.TryLock() {
			logCtx.Warn("Previous run still in progress, skipping")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer guard.Unlock()
			s.runJob(ctx, job, logCtx)
		}()
	}
	wg.Wait()
}

func (s *WeeklyScheduler) runJob(ctx context.Context, job Job, logCtx *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil {
			logCtx.WithField("panic", r).Error("Scheduled job panicked")
		}
	}()

	logCtx.Info("Scheduled job started")
	stats, err := s.run(ctx, job)
	if err != nil {
		logCtx.WithError(err).Error("Scheduled job failed")
		return
	}
	logCtx.WithFields(logrus.Fields{
		"recipients": stats.Recipients,
		"delivered":  stats.Delivered,
		"abandoned":  stats.Abandoned,
	}).Info("Scheduled job finished")
}

func (s *WeeklyScheduler) run(ctx context.Context, job Job) (app.DeliveryStats, error) {
	switch job {
	case JobWeeklyReminders:
		return s.notifier.SendWeeklyReminders(ctx)
	case JobDailyReminders:
		return s.notifier.SendDailyMissingReportReminders(ctx)
	case JobCuratorDigest:
		return s.notifier.SendCuratorMissingReportsNotifications(ctx)
	}
	return app.DeliveryStats{}, fmt.Errorf("unknown job %q", job)
}

// Stop aborts retries still waiting and returns once running jobs have finished.
func (s *WeeklyScheduler) Stop() {
	s.logger.Info("Stopping weekly scheduler...")
	s.cancel()
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Weekly scheduler gracefully stopped")
}

// cronLogger routes cron's own messages into logrus.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) fields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(l.fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(l.fields(keysAndValues)).Error(msg)
}
