package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"weekly_report_bot/internal/domain/conversation"
	"weekly_report_bot/internal/domain/curatorship"
	"weekly_report_bot/internal/domain/report"
	"weekly_report_bot/internal/domain/user"
)

// minAnswerLength applies to the failure reason and the plans.
const minAnswerLength = 5

const (
	msgChooseStageButton = "Пожалуйста, выбери этап из предложенных кнопок выше ⬆️"
	msgChooseAnswer      = "Пожалуйста, выбери ответ из предложенных кнопок выше ⬆️"
	msgAskPlans          = "*Что планируешь делать на следующую неделю?*\n\nОпиши свои планы:"
	msgStaleButton       = "Эта кнопка больше не активна."
)

// Notifier is the part of NotificationService that reacts to user actions.
type Notifier interface {
	NotifyCuratorNewReport(ctx context.Context, student *user.User, rep *report.Report)
	NotifyStudentCuratorAssigned(ctx context.Context, studentID int64)
	NotifyStudentReportRead(ctx context.Context, rep *report.Report)
}

// ReportDialogue walks a student through the weekly report questions.
type ReportDialogue struct {
	users     user.Repository
	reports   report.Repository
	relations curatorship.Repository
	states    conversation.Store
	notifier  Notifier
	logger    *logrus.Entry
	now       func() time.Time

	problemsMinLength int
}

func NewReportDialogue(
	ur user.Repository,
	rr report.Repository,
	cr curatorship.Repository,
	states conversation.Store,
	notifier Notifier,
	logger *logrus.Entry,
	now func() time.Time,
	problemsMinLength int,
) *ReportDialogue {
	return &ReportDialogue{
		users:             ur,
		reports:           rr,
		relations:         cr,
		states:            states,
		notifier:          notifier,
		logger:            logger.WithField("component", "report_dialogue"),
		now:               now,
		problemsMinLength: problemsMinLength,
	}
}

// Start opens the dialogue if the student has a curator and has not reported this week.
func (d *ReportDialogue) Start(ctx context.Context, u Update, r Responder) error {
	if _, err := d.relations.GetStudentCurator(ctx, u.UserID); err != nil {
		if errors.Is(err, curatorship.ErrNoCurator) {
			return r.Send("❌ *У тебя нет закрепленного куратора!*\n\n"+
				"Для отправки отчетов необходимо, чтобы за тобой был закреплен куратор.\n\n"+
				"*Пожалуйста, напиши об этом в группу менторства*.\n\n"+
				"После назначения куратора ты сможешь отправлять отчеты.", markdown(studentKeyboard()))
		}
		return fmt.Errorf("failed to check student curator: %w", err)
	}

	now := d.now()
	current, err := d.reports.ListSince(ctx, u.UserID, report.WeekStart(now))
	if err != nil {
		return fmt.Errorf("failed to check current week reports: %w", err)
	}
	if len(current) > 0 {
		sentAt := current[0].CreatedAt.In(now.Location())
		return r.Send(fmt.Sprintf("⏰ *Отчет за эту неделю уже отправлен!*\n\n"+
			"Твой отчет за текущую неделю был отправлен %s\n"+
			"Следующий отчет можно будет отправить в понедельник.\n\n"+
			"Используй кнопку '%s' для просмотра всех отчетов.",
			sentAt.Format("02.01.2006 в 15:04"), BtnMyReports), markdown(studentKeyboard()))
	}

	lastStage, hasLast, err := d.reports.LastStage(ctx, u.UserID)
	if err != nil {
		return fmt.Errorf("failed to load last stage: %w", err)
	}

	if err := d.states.Set(ctx, u.UserID, conversation.AwaitingStageSelection{}); err != nil {
		return err
	}

	text := "📝 Начинаем заполнение еженедельного отчета!\n\n*Выбери свой текущий этап:*"
	if hasLast {
		text += "\n\n💡 *Рекомендация:* В прошлый раз ты выбрал `" + strings.ReplaceAll(lastStage, "`", "'") + "`"
	}
	return r.Send(text, markdown(stageKeyboard()))
}

// ChooseStage handles a press on one of the stage buttons.
func (d *ReportDialogue) ChooseStage(ctx context.Context, u Update, r Responder, st conversation.State, key string) error {
	if _, ok := st.(conversation.AwaitingStageSelection); !ok {
		return r.Answer(msgStaleButton)
	}
	stage, ok := report.StageByKey(key)
	if !ok {
		return r.Answer(msgStaleButton)
	}

	hasPrevious, err := d.reports.HasAny(ctx, u.UserID)
	if err != nil {
		return fmt.Errorf("failed to check previous reports: %w", err)
	}

	header := "✅ *Выбран этап:* " + escape(stage.Value) + "\n\n"
	if hasPrevious {
		if err := d.states.Set(ctx, u.UserID, conversation.AwaitingPlansCompletion{Stage: stage.Value}); err != nil {
			return err
		}
		if err := r.Edit(header+"*Удалось ли выполнить все запланированное на этой неделе?*", markdown(nil)); err != nil {
			return err
		}
		if err := r.Send("Пожалуйста, выбери ответ:", markdown(plansKeyboard())); err != nil {
			return err
		}
		return r.Answer("")
	}

	if err := d.states.Set(ctx, u.UserID, conversation.AwaitingPlans{Stage: stage.Value}); err != nil {
		return err
	}
	if err := r.Edit(header+msgAskPlans, markdown(nil)); err != nil {
		return err
	}
	if err := r.Send("Пожалуйста, опиши свои планы:", markdown(cancelKeyboard())); err != nil {
		return err
	}
	return r.Answer("")
}

// ChoosePlansCompletion handles the yes/no buttons about last week's plans.
func (d *ReportDialogue) ChoosePlansCompletion(ctx context.Context, u Update, r Responder, st conversation.State, completed bool) error {
	current, ok := st.(conversation.AwaitingPlansCompletion)
	if !ok {
		return r.Answer(msgStaleButton)
	}

	if completed {
		if err := d.states.Set(ctx, u.UserID, conversation.AwaitingPlans{Stage: current.Stage, PlansCompleted: &completed}); err != nil {
			return err
		}
		if err := r.Edit("✅ *Отлично!* Ты выполнил все запланированное.\n\n*Что планируешь делать на следующую неделю?*", markdown(nil)); err != nil {
			return err
		}
		if err := r.Send("Пожалуйста, опиши свои планы:", markdown(cancelKeyboard())); err != nil {
			return err
		}
		return r.Answer("")
	}

	if err := d.states.Set(ctx, u.UserID, conversation.AwaitingFailureReason{Stage: current.Stage}); err != nil {
		return err
	}
	if err := r.Edit("❌ *Понятно.* Не все запланированное удалось выполнить.\n\n*Почему не удалось выполнить планы?*", markdown(nil)); err != nil {
		return err
	}
	if err := r.Send("Пожалуйста, объясни причины:", markdown(cancelKeyboard())); err != nil {
		return err
	}
	return r.Answer("")
}

// HandleText processes a free-text answer in one of the report steps.
func (d *ReportDialogue) HandleText(ctx context.Context, u Update, r Responder, st conversation.State) error {
	answer := strings.TrimSpace(u.Text)

	switch s := st.(type) {
	case conversation.AwaitingStageSelection:
		return r.Send(msgChooseStageButton, nil)

	case conversation.AwaitingPlansCompletion:
		return r.Send(msgChooseAnswer, nil)

	case conversation.AwaitingFailureReason:
		if utf8.RuneCountInString(answer) < minAnswerLength {
			return r.Send("Пожалуйста, напиши более подробно о причинах (минимум 5 символов).", nil)
		}
		no := false
		next := conversation.AwaitingPlans{Stage: s.Stage, PlansCompleted: &no, FailureReason: &answer}
		if err := d.states.Set(ctx, u.UserID, next); err != nil {
			return err
		}
		return r.Send(msgAskPlans, markdown(cancelKeyboard()))

	case conversation.AwaitingPlans:
		if utf8.RuneCountInString(answer) < minAnswerLength {
			return r.Send("Пожалуйста, напиши более подробно о своих планах (минимум 5 символов).", nil)
		}
		next := conversation.AwaitingProblems{
			Stage:          s.Stage,
			PlansCompleted: s.PlansCompleted,
			FailureReason:  s.FailureReason,
			Plans:          answer,
		}
		if err := d.states.Set(ctx, u.UserID, next); err != nil {
			return err
		}
		return r.Send("*Есть ли проблемы или вопросы?*\n\n"+
			"Опиши трудности, с которыми столкнулся, или вопросы, которые у тебя есть.", markdown(cancelKeyboard()))

	case conversation.AwaitingProblems:
		if d.problemsMinLength > 0 && utf8.RuneCountInString(answer) < d.problemsMinLength {
			return r.Send(fmt.Sprintf("Пожалуйста, напиши более подробно (минимум %d символов).", d.problemsMinLength), nil)
		}
		return d.submit(ctx, u, r, s, answer)
	}

	return fmt.Errorf("report dialogue cannot handle step %s", conversation.StepOf(st))
}

func (d *ReportDialogue) submit(ctx context.Context, u Update, r Responder, st conversation.AwaitingProblems, problems string) error {
	sub := report.Submission{
		UserID:             u.UserID,
		Stage:              st.Stage,
		Plans:              st.Plans,
		PlansCompleted:     st.PlansCompleted,
		PlansFailureReason: st.FailureReason,
		Problems:           problems,
	}
	if err := sub.Validate(); err != nil {
		return err
	}

	rep := sub.Report(d.now())
	if err := d.reports.Save(ctx, rep); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	logCtx := d.logger.WithFields(logrus.Fields{"user_id": u.UserID, "report_id": rep.ID})
	logCtx.Info("Weekly report saved")
	if err := d.states.Clear(ctx, u.UserID); err != nil {
		logCtx.WithError(err).Error("Failed to clear conversation state after saving report")
	}

	err := r.Send("✅ *Отчет сохранен!*\n\n"+reportBody(rep)+
		"\n\nСпасибо за твою работу! Следующее напоминание придет через неделю.", markdown(studentKeyboard()))
	if err != nil {
		logCtx.WithError(err).Warn("Failed to send report confirmation")
	}

	student, err := d.users.GetByUserID(ctx, u.UserID)
	if err != nil {
		student = u.profile()
	}
	d.notifier.NotifyCuratorNewReport(ctx, student, rep)
	return nil
}
