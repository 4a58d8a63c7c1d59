package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"weekly_report_bot/internal/domain/conversation"
	"weekly_report_bot/internal/domain/curatorship"
	"weekly_report_bot/internal/domain/user"
)

const (
	assignChoiceLimit = 10
	statsCuratorLimit = 5
)

func (d *Dispatcher) handleAdmin(_ context.Context, _ Update, r Responder, _ []string) error {
	return r.Send("🔧 *Панель администратора кураторов*\n\n"+
		"Используй кнопки ниже для управления кураторами:", markdown(adminKeyboard()))
}

func (d *Dispatcher) handleAllCurators(ctx context.Context, u Update, r Responder, _ []string) error {
	curators, err := d.admins.Curators(ctx, u.UserID)
	if err != nil {
		return err
	}
	if len(curators) == 0 {
		return r.Send("В системе нет кураторов.", markdown(adminKeyboard()))
	}
	var b strings.Builder
	b.WriteString("👥 *Все кураторы:*\n\n")
	for _, c := range curators {
		fmt.Fprintf(&b, "*%s* (ID: %d)\n", name(c.Curator), c.Curator.UserID)
		fmt.Fprintf(&b, "   👥 Учеников: %d\n", c.Stats.StudentCount)
		fmt.Fprintf(&b, "   📝 Отчетов: %d\n", c.Stats.TotalReports)
		fmt.Fprintf(&b, "   📭 Непрочитанных: %d\n\n", c.Stats.UnreadReports)
	}
	return r.Send(b.String(), markdown(adminKeyboard()))
}

func (d *Dispatcher) handleAllStudentsAdmin(ctx context.Context, u Update, r Responder, _ []string) error {
	assignments, err := d.admins.Students(ctx, u.UserID)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		return r.Send("В системе нет учеников.", markdown(adminKeyboard()))
	}
	return r.Send(renderAssignments("👥 *Все ученики в системе:*\n\n", assignments), markdown(adminKeyboard()))
}

func (d *Dispatcher) handleStudentsWithoutCurators(ctx context.Context, u Update, r Responder, _ []string) error {
	students, err := d.admins.StudentsWithoutCurators(ctx, u.UserID)
	if err != nil {
		return err
	}
	if len(students) == 0 {
		return r.Send("✅ Все ученики имеют кураторов.", markdown(adminKeyboard()))
	}
	var b strings.Builder
	b.WriteString("👥 *Ученики без кураторов:*\n\n")
	for _, s := range students {
		b.WriteString("• " + nameWithID(s) + "\n")
	}
	fmt.Fprintf(&b, "\n📊 Всего без кураторов: %d", len(students))
	return r.Send(b.String(), markdown(adminKeyboard()))
}

func (d *Dispatcher) handleAdminStats(ctx context.Context, u Update, r Responder, _ []string) error {
	stats, err := d.admins.Stats(ctx, u.UserID)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("📊 *Общая статистика системы:*\n\n")
	fmt.Fprintf(&b, "👨‍🏫 Всего кураторов: %d\n", stats.TotalCurators)
	fmt.Fprintf(&b, "👥 Всего учеников: %d\n", stats.TotalStudents)
	fmt.Fprintf(&b, "🔗 С кураторами: %d\n", stats.WithCurators)
	fmt.Fprintf(&b, "❌ Без кураторов: %d\n", stats.WithoutCurators)
	if len(stats.Curators) > 0 {
		b.WriteString("\n📈 *Статистика по кураторам:*\n")
		for i, c := range stats.Curators {
			if i == statsCuratorLimit {
				fmt.Fprintf(&b, "... и еще %d кураторов", len(stats.Curators)-statsCuratorLimit)
				break
			}
			fmt.Fprintf(&b, "• %s: %d учеников, %d непрочитанных\n",
				name(c.Curator), c.Stats.StudentCount, c.Stats.UnreadReports)
		}
	}
	return r.Send(b.String(), markdown(adminKeyboard()))
}

func (d *Dispatcher) handleNotifyCurators(ctx context.Context, u Update, r Responder, _ []string) error {
	stats, err := d.admins.NotifyCurators(ctx, u.UserID)
	if err != nil {
		d.logger.WithError(err).Error("Manual curator digest failed")
		return r.Send("❌ Ошибка при отправке уведомлений.", markdown(adminKeyboard()))
	}
	return r.Send(fmt.Sprintf("✅ Уведомления кураторам о неотправленных отчетах отправлены!\n\n"+
		"Кураторов: %d, доставлено: %d", stats.Recipients, stats.Delivered), markdown(adminKeyboard()))
}

// curatorIDPrompt opens the dialogue shared by adding, deactivating and activating curators.
func (d *Dispatcher) curatorIDPrompt(action conversation.CuratorAction) commandHandler {
	var prompt string
	switch action {
	case conversation.CuratorActionAdd:
		prompt = "👤 *Добавление куратора*\n\n" +
			"Отправь ID пользователя, которого хочешь сделать куратором."
	case conversation.CuratorActionDeactivate:
		prompt = "🚫 *Деактивация куратора*\n\n" +
			"Отправь ID куратора, которого нужно деактивировать."
	case conversation.CuratorActionActivate:
		prompt = "✅ *Активация куратора*\n\n" +
			"Отправь ID куратора, которого нужно активировать."
	}
	return func(ctx context.Context, u Update, r Responder, _ []string) error {
		if err := d.states.Set(ctx, u.UserID, conversation.AwaitingCuratorID{Action: action}); err != nil {
			return err
		}
		return r.Send(prompt, markdown(cancelKeyboard()))
	}
}

func (d *Dispatcher) processCuratorID(ctx context.Context, u Update, r Responder, st conversation.State) error {
	current := st.(conversation.AwaitingCuratorID)
	curatorID, err := strconv.ParseInt(strings.TrimSpace(u.Text), 10, 64)
	if err != nil {
		return r.Send("❌ Пожалуйста, отправь корректный ID пользователя (число).", markdown(cancelKeyboard()))
	}

	var text string
	switch current.Action {
	case conversation.CuratorActionAdd:
		if err := d.admins.AddCurator(ctx, u.UserID, curatorID); err != nil {
			return err
		}
		text = fmt.Sprintf("✅ Пользователь с ID %d назначен куратором!\n"+
			"Теперь он может использовать команду /curator для активации режима куратора.", curatorID)
	case conversation.CuratorActionDeactivate, conversation.CuratorActionActivate:
		active := current.Action == conversation.CuratorActionActivate
		err := d.admins.SetCuratorActive(ctx, u.UserID, curatorID, active)
		if errors.Is(err, user.ErrNotFound) {
			return r.Send(fmt.Sprintf("❌ Куратор с ID %d не найден. Отправь другой ID.", curatorID), markdown(cancelKeyboard()))
		}
		if err != nil {
			return err
		}
		text = fmt.Sprintf("✅ Куратор ID %d деактивирован.", curatorID)
		if active {
			text = fmt.Sprintf("✅ Куратор ID %d активирован.", curatorID)
		}
	default:
		return fmt.Errorf("unknown curator action %q", current.Action)
	}

	if err := d.states.Clear(ctx, u.UserID); err != nil {
		return err
	}
	return r.Send(text, markdown(adminKeyboard()))
}

func (d *Dispatcher) handleAssignStudent(ctx context.Context, u Update, r Responder, _ []string) error {
	students, err := d.admins.StudentsWithoutCurators(ctx, u.UserID)
	if err != nil {
		return err
	}
	if len(students) == 0 {
		return r.Send("Все ученики уже имеют кураторов.", markdown(adminKeyboard()))
	}
	curators, err := d.admins.Curators(ctx, u.UserID)
	if err != nil {
		return err
	}
	if len(curators) == 0 {
		return r.Send("В системе нет кураторов. Сначала добавь кураторов.", markdown(adminKeyboard()))
	}

	next := conversation.AwaitingStudentChoice{}
	for _, c := range curators {
		next.CuratorIDs = append(next.CuratorIDs, c.Curator.UserID)
	}

	var b strings.Builder
	b.WriteString("👥 *Выбери ученика для назначения куратора:*\n\n")
	for i, s := range students {
		if i == assignChoiceLimit {
			fmt.Fprintf(&b, "... и еще %d учеников\n", len(students)-assignChoiceLimit)
			break
		}
		next.StudentIDs = append(next.StudentIDs, s.UserID)
		fmt.Fprintf(&b, "%d. %s\n", i+1, nameWithID(s))
	}
	b.WriteString("\nОтправь номер ученика:")

	if err := d.states.Set(ctx, u.UserID, next); err != nil {
		return err
	}
	return r.Send(b.String(), markdown(cancelKeyboard()))
}

// choice parses a 1-based position in a list of n items.
func choice(text string, n int) (int, bool) {
	num, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || num < 1 || num > n {
		return 0, false
	}
	return num - 1, true
}

func (d *Dispatcher) processStudentChoice(ctx context.Context, u Update, r Responder, st conversation.State) error {
	current := st.(conversation.AwaitingStudentChoice)
	idx, ok := choice(u.Text, len(current.StudentIDs))
	if !ok {
		return r.Send("❌ Неверный номер ученика. Попробуй снова.", markdown(cancelKeyboard()))
	}

	student, err := d.users.GetByUserID(ctx, current.StudentIDs[idx])
	if err != nil {
		return err
	}
	curators, err := d.admins.CuratorsByIDs(ctx, u.UserID, current.CuratorIDs)
	if err != nil {
		return err
	}
	if len(curators) == 0 {
		if err := d.states.Clear(ctx, u.UserID); err != nil {
			return err
		}
		return r.Send("В системе нет кураторов. Сначала добавь кураторов.", markdown(adminKeyboard()))
	}

	next := conversation.AwaitingCuratorChoice{StudentID: student.UserID}
	var b strings.Builder
	b.WriteString("👤 *Выбран ученик:* " + nameWithID(student) + "\n\n")
	b.WriteString("👥 *Выбери куратора из списка ниже:*\n\n")
	for i, c := range curators {
		next.CuratorIDs = append(next.CuratorIDs, c.UserID)
		fmt.Fprintf(&b, "%d. %s\n", i+1, nameWithID(c))
	}
	b.WriteString("\nОтправь номер куратора:")

	if err := d.states.Set(ctx, u.UserID, next); err != nil {
		return err
	}
	return r.Send(b.String(), markdown(cancelKeyboard()))
}

func (d *Dispatcher) processCuratorChoice(ctx context.Context, u Update, r Responder, st conversation.State) error {
	current := st.(conversation.AwaitingCuratorChoice)
	idx, ok := choice(u.Text, len(current.CuratorIDs))
	if !ok {
		return r.Send("❌ Неверный номер куратора. Попробуй снова.", markdown(cancelKeyboard()))
	}
	curatorID := current.CuratorIDs[idx]

	if err := d.admins.Assign(ctx, u.UserID, curatorID, current.StudentID); err != nil {
		return err
	}
	if err := d.states.Clear(ctx, u.UserID); err != nil {
		return err
	}

	people, err := d.users.ListByUserIDs(ctx, []int64{current.StudentID, curatorID})
	if err != nil || len(people) != 2 {
		d.logger.WithError(err).Warn("Failed to load names for assignment confirmation")
		return r.Send(fmt.Sprintf("✅ *Назначение выполнено!*\n\n"+
			"👤 Ученик: ID %d\n👨‍🏫 Куратор: ID %d", current.StudentID, curatorID), markdown(adminKeyboard()))
	}
	return r.Send("✅ *Назначение выполнено!*\n\n"+
		"👤 Ученик: "+nameWithID(people[0])+"\n"+
		"👨‍🏫 Куратор: "+nameWithID(people[1])+"\n\n"+
		"Теперь куратор будет получать уведомления об отчетах этого ученика.", markdown(adminKeyboard()))
}

func (d *Dispatcher) handleRemoveRelation(ctx context.Context, u Update, r Responder, _ []string) error {
	if err := d.states.Set(ctx, u.UserID, conversation.AwaitingRelationStudentID{}); err != nil {
		return err
	}
	return r.Send("🔗 *Удаление связи куратор-ученик*\n\n"+
		"Отправь ID ученика, у которого нужно удалить связь с куратором.", markdown(cancelKeyboard()))
}

func (d *Dispatcher) processRemoveRelation(ctx context.Context, u Update, r Responder, _ conversation.State) error {
	studentID, err := strconv.ParseInt(strings.TrimSpace(u.Text), 10, 64)
	if err != nil {
		return r.Send("❌ Пожалуйста, отправь корректный ID ученика (число).", markdown(cancelKeyboard()))
	}

	curator, err := d.admins.RemoveRelation(ctx, u.UserID, studentID)
	if errors.Is(err, curatorship.ErrNoCurator) || errors.Is(err, curatorship.ErrRelationNotFound) {
		return r.Send(fmt.Sprintf("❌ У ученика ID %d нет куратора.", studentID), markdown(cancelKeyboard()))
	}
	if err != nil {
		return err
	}
	if err := d.states.Clear(ctx, u.UserID); err != nil {
		return err
	}
	return r.Send(fmt.Sprintf("✅ Связь с куратором удалена для ученика ID %d.\nКуратор: %s",
		studentID, name(curator)), markdown(adminKeyboard()))
}
