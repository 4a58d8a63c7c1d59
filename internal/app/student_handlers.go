package app

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/telebot.v3"

	"weekly_report_bot/internal/domain/conversation"
	"weekly_report_bot/internal/domain/report"
)

const myReportsLimit = 5

const (
	adminHelp = "🔧 *Команды администратора:*\n\n" +
		"/admin - панель администратора\n" +
		"/all\\_curators - все кураторы\n" +
		"/all\\_students\\_admin - все ученики\n" +
		"/notify\\_curators - уведомить кураторов о неотправленных отчетах\n" +
		"/add\\_curator - добавить куратора\n" +
		"/assign\\_student - назначить ученика куратору\n" +
		"/remove\\_relation - удалить связь\n" +
		"/deactivate\\_curator - деактивировать куратора\n" +
		"/activate\\_curator - активировать куратора\n" +
		"/students\\_without\\_curators - ученики без кураторов\n" +
		"/admin\\_stats - статистика\n" +
		"/help - помощь"

	curatorHelp = "👨‍🏫 *Команды куратора:*\n\n" +
		"/curator - активация режима куратора\n" +
		"/add\\_student - добавить ученика\n" +
		"/my\\_students - мои ученики\n" +
		"/all\\_students - все ученики и их кураторы\n" +
		"/reports - непрочитанные отчеты\n" +
		"/help - помощь"

	studentHelp = "📝 *Команды ученика:*\n\n" +
		"/start - регистрация в системе\n" +
		"/report - отправить отчет\n" +
		"/my\\_reports - посмотреть мои отчеты\n" +
		"/cancel - отменить текущее действие\n" +
		"/help - помощь"
)

func helpFor(rl role) (string, *telebot.ReplyMarkup) {
	switch rl {
	case roleAdmin:
		return adminHelp, adminKeyboard()
	case roleCurator:
		return curatorHelp, curatorKeyboard()
	default:
		return studentHelp, studentKeyboard()
	}
}

func (d *Dispatcher) handleStart(ctx context.Context, u Update, r Responder, _ []string) error {
	if err := d.students.Register(ctx, u.profile()); err != nil {
		return err
	}
	rl, err := d.roleOf(ctx, u.UserID)
	if err != nil {
		return err
	}
	text, keyboard := helpFor(rl)
	return r.Send("Привет! Я бот для сбора еженедельных отчетов.\n\n"+text, markdown(keyboard))
}

func (d *Dispatcher) handleHelp(ctx context.Context, u Update, r Responder, _ []string) error {
	rl, err := d.roleOf(ctx, u.UserID)
	if err != nil {
		return err
	}
	text, keyboard := helpFor(rl)
	return r.Send(text, markdown(keyboard))
}

func (d *Dispatcher) handleReport(ctx context.Context, u Update, r Responder, _ []string) error {
	return d.dialogue.Start(ctx, u, r)
}

func (d *Dispatcher) handleMyReports(ctx context.Context, u Update, r Responder, _ []string) error {
	reports, err := d.students.Reports(ctx, u.UserID)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return r.Send("У тебя пока нет отчетов.", markdown(studentKeyboard()))
	}
	current, err := d.students.CurrentWeekReports(ctx, u.UserID)
	if err != nil {
		return err
	}
	now := d.now()
	loc := now.Location()

	var b strings.Builder
	b.WriteString("📊 Твои отчеты:\n\n")
	for i, rep := range reports {
		if i == myReportsLimit {
			break
		}
		fmt.Fprintf(&b, "*%d. %s*", i+1, rep.CreatedAt.In(loc).Format("02.01.2006"))
		if report.InCurrentWeek(rep.CreatedAt, now) {
			b.WriteString(" (эта неделя)")
		}
		b.WriteString("\n")
		b.WriteString("🎯 Этап: " + escape(rep.Stage) + "\n")
		b.WriteString("📋 Планы: " + preview(rep.Plans) + "\n")
		if rep.PlansCompleted != nil {
			if *rep.PlansCompleted {
				b.WriteString("✅ Выполнение планов: Да\n")
			} else {
				b.WriteString("❌ Выполнение планов: Нет\n")
				if rep.PlansFailureReason != nil {
					b.WriteString("📝 Причина: " + preview(*rep.PlansFailureReason) + "\n")
				}
			}
		}
		b.WriteString("❓ Проблемы: " + preview(rep.Problems) + "\n\n")
	}
	if len(reports) > myReportsLimit {
		fmt.Fprintf(&b, "... и еще %d отчетов\n", len(reports)-myReportsLimit)
	}

	if len(current) > 0 {
		fmt.Fprintf(&b, "\n⏰ Отчет за эту неделю уже отправлен (%s)\n📅 Следующий отчет можно отправить в понедельник",
			current[0].CreatedAt.In(loc).Format("02.01.2006"))
	} else {
		b.WriteString("\n✅ Можно отправить отчет за эту неделю!")
	}
	return r.Send(b.String(), markdown(studentKeyboard()))
}

func (d *Dispatcher) onStage(ctx context.Context, u Update, r Responder, st conversation.State, payload string) error {
	return d.dialogue.ChooseStage(ctx, u, r, st, payload)
}

func (d *Dispatcher) onPlansCompletion(ctx context.Context, u Update, r Responder, st conversation.State, payload string) error {
	switch payload {
	case "yes":
		return d.dialogue.ChoosePlansCompletion(ctx, u, r, st, true)
	case "no":
		return d.dialogue.ChoosePlansCompletion(ctx, u, r, st, false)
	}
	return r.Answer(msgStaleButton)
}
