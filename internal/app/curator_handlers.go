package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"weekly_report_bot/internal/domain/conversation"
	"weekly_report_bot/internal/domain/curatorship"
	"weekly_report_bot/internal/domain/report"
	"weekly_report_bot/internal/domain/user"
)

const unreadReportsLimit = 5

func (d *Dispatcher) handleCurator(ctx context.Context, u Update, r Responder, _ []string) error {
	if err := d.curators.Activate(ctx, u.profile()); err != nil {
		return err
	}
	return r.Send("👨‍🏫 *Режим куратора активирован!*\n\nИспользуй кнопки ниже для навигации:", markdown(curatorKeyboard()))
}

// handleAddStudent accepts the student ID inline or asks for it.
func (d *Dispatcher) handleAddStudent(ctx context.Context, u Update, r Responder, args []string) error {
	if err := d.curators.Authorize(ctx, u.UserID); err != nil {
		return err
	}
	if len(args) > 0 {
		studentID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return r.Send("❌ Пожалуйста, отправь корректный ID ученика (число).", nil)
		}
		_, err = d.addStudent(ctx, u, r, studentID)
		return err
	}

	if err := d.states.Set(ctx, u.UserID, conversation.AwaitingStudentID{}); err != nil {
		return err
	}
	return r.Send("👤 *Добавление ученика*\n\n"+
		"Отправь ID ученика (число), которого хочешь добавить к себе.\n"+
		"Ученик должен сначала зарегистрироваться через /start.\n\n"+
		"Для возврата нажми '"+BtnBack+"'.", markdown(backKeyboard()))
}

func (d *Dispatcher) processStudentID(ctx context.Context, u Update, r Responder, _ conversation.State) error {
	studentID, err := strconv.ParseInt(strings.TrimSpace(u.Text), 10, 64)
	if err != nil {
		return r.Send("❌ Пожалуйста, отправь корректный ID ученика (число).", markdown(backKeyboard()))
	}
	done, err := d.addStudent(ctx, u, r, studentID)
	if err != nil || !done {
		return err
	}
	return d.states.Clear(ctx, u.UserID)
}

// addStudent reports whether the dialogue is finished, successfully or not.
func (d *Dispatcher) addStudent(ctx context.Context, u Update, r Responder, studentID int64) (bool, error) {
	student, err := d.curators.AddStudent(ctx, u.UserID, studentID)
	switch {
	case errors.Is(err, user.ErrNotFound):
		return false, r.Send(fmt.Sprintf("❌ Ученик с ID %d не найден.\n"+
			"Ученик должен сначала зарегистрироваться через /start.", studentID), markdown(backKeyboard()))
	case errors.Is(err, curatorship.ErrStudentHasCurator):
		return true, r.Send(fmt.Sprintf("❌ У ученика с ID %d уже есть куратор.\n"+
			"Для переназначения обратись к администратору.", studentID), markdown(curatorKeyboard()))
	case err != nil:
		return false, err
	}
	return true, r.Send(fmt.Sprintf("✅ Ученик %s добавлен к тебе!\n"+
		"Теперь ты будешь получать уведомления о его отчетах.", nameWithID(student)), markdown(curatorKeyboard()))
}

func (d *Dispatcher) handleMyStudents(ctx context.Context, u Update, r Responder, _ []string) error {
	students, err := d.curators.Students(ctx, u.UserID)
	if err != nil {
		return err
	}
	if len(students) == 0 {
		return r.Send("У тебя пока нет учеников. Используй /add\\_student для добавления.", markdown(curatorKeyboard()))
	}
	var b strings.Builder
	b.WriteString("👥 *Твои ученики:*\n\n")
	for _, s := range students {
		b.WriteString("• " + nameWithID(s) + "\n")
	}
	return r.Send(b.String(), markdown(curatorKeyboard()))
}

func (d *Dispatcher) handleAllStudents(ctx context.Context, u Update, r Responder, _ []string) error {
	assignments, err := d.curators.AllStudents(ctx, u.UserID)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		return r.Send("В системе пока нет учеников.", markdown(curatorKeyboard()))
	}
	return r.Send(renderAssignments("👥 *Все ученики и их кураторы:*\n\n", assignments), markdown(curatorKeyboard()))
}

// renderAssignments lists students with their curators followed by totals.
func renderAssignments(title string, assignments []*curatorship.Assignment) string {
	var b strings.Builder
	b.WriteString(title)
	withCurators := 0
	for _, a := range assignments {
		student := a.Student
		fmt.Fprintf(&b, "*%s* (ID: %d)\n", name(&student), student.UserID)
		if a.Curator != nil {
			withCurators++
			b.WriteString("   👨‍🏫 " + name(a.Curator) + "\n\n")
		} else {
			b.WriteString("   ❌ Без куратора\n\n")
		}
	}
	b.WriteString("📊 *Статистика:*\n")
	fmt.Fprintf(&b, "Всего учеников: %d\n", len(assignments))
	fmt.Fprintf(&b, "С кураторами: %d\n", withCurators)
	fmt.Fprintf(&b, "Без кураторов: %d", len(assignments)-withCurators)
	return b.String()
}

func (d *Dispatcher) handleReports(ctx context.Context, u Update, r Responder, _ []string) error {
	entries, err := d.curators.UnreadReports(ctx, u.UserID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return r.Send("📭 У тебя нет непрочитанных отчетов.", markdown(curatorKeyboard()))
	}

	loc := d.now().Location()
	for i, e := range entries {
		if i == unreadReportsLimit {
			break
		}
		text := fmt.Sprintf("📝 *Отчет от %s*\n📅 %s\n\n%s",
			name(&e.Author), e.CreatedAt.In(loc).Format("02.01.2006 15:04"), reportBody(&e.Report))
		if err := r.Send(text, markdown(readKeyboard(e.ID))); err != nil {
			return err
		}
	}
	if len(entries) > unreadReportsLimit {
		return r.Send(fmt.Sprintf("... и еще %d отчетов", len(entries)-unreadReportsLimit), nil)
	}
	return nil
}

func (d *Dispatcher) onRead(ctx context.Context, u Update, r Responder, _ conversation.State, payload string) error {
	reportID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return r.Answer(msgStaleButton)
	}

	alreadyRead, err := d.curators.MarkRead(ctx, u.UserID, reportID)
	switch {
	case errors.Is(err, report.ErrNotFound):
		return r.Answer("❌ Отчет не найден.")
	case errors.Is(err, report.ErrNotAccessible):
		return r.Answer("❌ Это отчет ученика другого куратора.")
	case err != nil:
		return err
	}

	if err := r.Edit(escape(u.MessageText)+"\n\n✅ *ПРОЧИТАНО*", markdown(nil)); err != nil {
		d.logger.WithError(err).WithField("report_id", reportID).Warn("Failed to mark report message as read")
	}
	if alreadyRead {
		return r.Answer("Отчет уже был отмечен как прочитанный.")
	}
	return r.Answer("✅ Отчет отмечен как прочитанный!")
}
