package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"gopkg.in/telebot.v3"

	"weekly_report_bot/internal/domain/curatorship"
	"weekly_report_bot/internal/domain/report"
	"weekly_report_bot/internal/domain/telegram"
	"weekly_report_bot/internal/domain/user"
)

const (
	weeklyReminderText = "📝 *Время для еженедельного отчета!*\n\n" +
		"Пожалуйста, заполни отчет по форме:\n" +
		"• На каком сейчас этапе? (этап + тема)\n" +
		"• Что планируешь делать?\n" +
		"• Есть ли проблемы или вопросы?\n\n" +
		"Используй кнопку '" + BtnSendReport + "' для начала заполнения."

	dailyReminderText = "🔔 *Напоминание об отчете!*\n\n" +
		"Мы ждем твой еженедельный отчет. Заполни форму, чтобы поделиться прогрессом."

	defaultRetryInterval = 300 * time.Second
	defaultConcurrency   = 20
)

// DeliveryStats summarises one reminder batch.
type DeliveryStats struct {
	Recipients int
	Delivered  int
	Abandoned  int
}

type NotificationOptions struct {
	// RetryInterval is the pause between delivery attempts of a reminder.
	RetryInterval time.Duration
	// Concurrency bounds how many reminders are in flight at once.
	Concurrency int
	Now         func() time.Time
}

// NotificationService sends everything the bot initiates itself: event
// notifications and scheduled reminders.
type NotificationService struct {
	reports   report.Repository
	relations curatorship.Repository
	client    telegram.Client
	logger    *logrus.Entry

	retryInterval time.Duration
	concurrency   int
	now           func() time.Time
}

func NewNotificationService(
	rr report.Repository,
	cr curatorship.Repository,
	client telegram.Client,
	logger *logrus.Entry,
	opts NotificationOptions,
) *NotificationService {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &NotificationService{
		reports:       rr,
		relations:     cr,
		client:        client,
		logger:        logger.WithField("component", "notifications"),
		retryInterval: opts.RetryInterval,
		concurrency:   opts.Concurrency,
		now:           opts.Now,
	}
}

func (s *NotificationService) send(recipientID int64, text string) error {
	return s.client.SendMessage(recipientID, text, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
}

// NotifyCuratorNewReport tells the student's curator about a freshly saved report.
func (s *NotificationService) NotifyCuratorNewReport(ctx context.Context, student *user.User, rep *report.Report) {
	logCtx := s.logger.WithFields(logrus.Fields{"student_id": student.UserID, "report_id": rep.ID})

	curator, err := s.relations.GetStudentCurator(ctx, student.UserID)
	if err != nil {
		if !errors.Is(err, curatorship.ErrNoCurator) {
			logCtx.WithError(err).Error("Failed to look up curator for new report notification")
		}
		return
	}
	if !curator.IsActive {
		logCtx.WithField("curator_id", curator.UserID).Debug("Curator is deactivated, skipping new report notification")
		return
	}

	text := fmt.Sprintf("📝 *Новый отчет от %s!*\n\n%s\n\nИспользуйте `/reports` для просмотра всех отчетов.",
		name(student), reportBody(rep))
	if err := s.send(curator.UserID, text); err != nil {
		logCtx.WithError(err).WithField("curator_id", curator.UserID).Error("Failed to notify curator about new report")
	}
}

func (s *NotificationService) NotifyStudentCuratorAssigned(ctx context.Context, studentID int64) {
	text := "👨‍🏫 *К тебе назначен куратор!*\n\nТеперь твои отчеты будут просматриваться куратором."
	if err := s.send(studentID, text); err != nil {
		s.logger.WithError(err).WithField("student_id", studentID).Error("Failed to notify student about curator assignment")
	}
}

func (s *NotificationService) NotifyStudentReportRead(ctx context.Context, rep *report.Report) {
	text := "✅ *Твой отчет просмотрен куратором!*\n\n" + reportBody(rep)
	if err := s.send(rep.UserID, text); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"student_id": rep.UserID,
			"report_id":  rep.ID,
		}).Error("Failed to notify student about read report")
	}
}

// SendWeeklyReminders asks every active student without a report this week to submit one.
func (s *NotificationService) SendWeeklyReminders(ctx context.Context) (DeliveryStats, error) {
	return s.remind(ctx, weeklyReminderText)
}

// SendDailyMissingReportReminders repeats the reminder on the days after Monday.
func (s *NotificationService) SendDailyMissingReportReminders(ctx context.Context) (DeliveryStats, error) {
	return s.remind(ctx, dailyReminderText)
}

func (s *NotificationService) remind(ctx context.Context, text string) (DeliveryStats, error) {
	recipients, err := s.reports.ListStudentsWithoutReportSince(ctx, report.WeekStart(s.now()))
	if err != nil {
		return DeliveryStats{}, fmt.Errorf("failed to list students without weekly report: %w", err)
	}
	if len(recipients) == 0 {
		return DeliveryStats{}, nil
	}
	return s.deliverAll(ctx, recipients, text), nil
}

// deliverAll sends text to every recipient concurrently. One recipient's failure never affects another.
// Only sends in flight count against the concurrency limit; recipients waiting for a retry hold no slot.
func (s *NotificationService) deliverAll(ctx context.Context, recipients []int64, text string) DeliveryStats {
	var delivered, abandoned atomic.Int64

	sendSlots := semaphore.NewWeighted(int64(s.concurrency))
	var g errgroup.Group
	for _, recipientID := range recipients {
		g.Go(func() error {
			if err := s.deliverWithRetry(ctx, sendSlots, recipientID, text); err != nil {
				abandoned.Add(1)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	stats := DeliveryStats{
		Recipients: len(recipients),
		Delivered:  int(delivered.Load()),
		Abandoned:  int(abandoned.Load()),
	}
	s.logger.WithFields(logrus.Fields{
		"recipients": stats.Recipients,
		"delivered":  stats.Delivered,
		"abandoned":  stats.Abandoned,
	}).Info("Reminder batch finished")
	return stats
}

// deliverWithRetry keeps retrying transient failures until the context ends.
func (s *NotificationService) deliverWithRetry(ctx context.Context, sendSlots *semaphore.Weighted, recipientID int64, text string) error {
	logCtx := s.logger.WithField("recipient_id", recipientID)

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := sendSlots.Acquire(ctx, 1); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		err := s.send(recipientID, text)
		sendSlots.Release(1)
		switch {
		case err == nil:
			return struct{}{}, nil
		case telegram.IsPermanent(err):
			return struct{}{}, backoff.Permanent(err)
		}
		if wait, ok := telegram.RetryAfter(err); ok {
			return struct{}{}, backoff.RetryAfter(int(wait / time.Second))
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.retryInterval)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logCtx.WithError(err).WithField("retry_in", next.String()).Warn("Reminder delivery failed, retrying")
		}),
	)
	if err != nil {
		logCtx.WithError(err).Error("Reminder delivery abandoned")
	}
	return err
}

// SendCuratorMissingReportsNotifications sends each curator one digest listing
// their students who have not reported this week.
func (s *NotificationService) SendCuratorMissingReportsNotifications(ctx context.Context) (DeliveryStats, error) {
	missing, err := s.relations.ListMissingReports(ctx, report.WeekStart(s.now()))
	if err != nil {
		return DeliveryStats{}, fmt.Errorf("failed to list missing weekly reports: %w", err)
	}

	digests := groupMissingByCurator(missing)
	stats := DeliveryStats{Recipients: len(digests)}
	for _, d := range digests {
		var list strings.Builder
		for i, student := range d.students {
			if i > 0 {
				list.WriteString("\n")
			}
			list.WriteString("• " + name(student))
		}
		text := "⚠️ *Уведомление куратора*\n\n" +
			"Следующие ученики не отправили отчет за эту неделю:\n\n" +
			list.String() + "\n\n" +
			"Рекомендуется связаться с ними для выяснения причин."
		if err := s.send(d.curatorID, text); err != nil {
			stats.Abandoned++
			s.logger.WithError(err).WithField("curator_id", d.curatorID).Error("Failed to send missing reports digest")
			continue
		}
		stats.Delivered++
	}
	return stats, nil
}

type curatorDigest struct {
	curatorID int64
	students  []*user.User
}

// groupMissingByCurator keeps curators in order of first appearance and students in input order.
func groupMissingByCurator(missing []*curatorship.MissingReport) []*curatorDigest {
	index := make(map[int64]*curatorDigest)
	digests := make([]*curatorDigest, 0)
	for _, m := range missing {
		d, ok := index[m.CuratorID]
		if !ok {
			d = &curatorDigest{curatorID: m.CuratorID}
			index[m.CuratorID] = d
			digests = append(digests, d)
		}
		student := m.Student
		d.students = append(d.students, &student)
	}
	return digests
}

// reportBody renders the fields of a report shared by several messages.
func reportBody(rep *report.Report) string {
	var b strings.Builder
	b.WriteString("🎯 *Этап:* " + escape(rep.Stage) + "\n")
	if rep.PlansCompleted != nil {
		if *rep.PlansCompleted {
			b.WriteString("✅ *Планы прошлой недели:* выполнены\n")
		} else {
			b.WriteString("❌ *Планы прошлой недели:* не выполнены\n")
			if rep.PlansFailureReason != nil {
				b.WriteString("📝 *Причина:* " + escape(*rep.PlansFailureReason) + "\n")
			}
		}
	}
	b.WriteString("📋 *Планы:* " + escape(rep.Plans) + "\n")
	problems := strings.TrimSpace(rep.Problems)
	if problems == "" {
		problems = "нет"
	}
	b.WriteString("❓ *Проблемы:* " + escape(problems))
	return b.String()
}
