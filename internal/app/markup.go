package app

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/telebot.v3"

	"weekly_report_bot/internal/domain/report"
	"weekly_report_bot/internal/domain/user"
)

// Reply keyboard labels.
const (
	BtnSendReport = "📝 Отправить отчет"
	BtnMyReports  = "📊 Мои отчеты"
	BtnHelp       = "❓ Помощь"

	BtnAddStudent  = "👤 Добавить ученика"
	BtnMyStudents  = "👥 Мои ученики"
	BtnAllStudents = "📋 Все ученики"
	BtnReports     = "📝 Отчеты"

	BtnAllCurators        = "👥 Все кураторы"
	BtnAllStudentsAdmin   = "👥 Все ученики"
	BtnAdminStats         = "📊 Статистика"
	BtnAddCurator         = "👤 Добавить куратора"
	BtnAssignStudent      = "🔗 Назначить ученика"
	BtnRemoveRelation     = "❌ Удалить связь"
	BtnDeactivateCurator  = "🚫 Деактивировать куратора"
	BtnActivateCurator    = "✅ Активировать куратора"
	BtnStudentsNoCurators = "👥 Без кураторов"
	BtnAdminHelp          = "❓ Помощь админа"

	BtnCancel = "❌ Отменить"
	BtnBack   = "⬅️ Назад"
)

// Inline button payload prefixes.
const (
	cbStage = "stage:"
	cbPlans = "plans:"
	cbRead  = "read:"

	cbPlansYes = cbPlans + "yes"
	cbPlansNo  = cbPlans + "no"
)

const previewLimit = 50

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// escape makes user-supplied text safe inside a legacy Markdown message.
func escape(s string) string {
	return markdownEscaper.Replace(s)
}

// preview cuts s to the first previewLimit characters and marks the cut.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLimit {
		return escape(s)
	}
	return escape(string([]rune(s)[:previewLimit])) + "..."
}

func name(u *user.User) string {
	return escape(u.DisplayName())
}

func nameWithID(u *user.User) string {
	return name(u) + " (ID: " + strconv.FormatInt(u.UserID, 10) + ")"
}

func markdown(markup *telebot.ReplyMarkup) *telebot.SendOptions {
	return &telebot.SendOptions{ParseMode: telebot.ModeMarkdown, ReplyMarkup: markup}
}

func replyKeyboard(oneTime bool, rows ...[]string) *telebot.ReplyMarkup {
	m := &telebot.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: oneTime}
	for _, row := range rows {
		buttons := make([]telebot.ReplyButton, 0, len(row))
		for _, text := range row {
			buttons = append(buttons, telebot.ReplyButton{Text: text})
		}
		m.ReplyKeyboard = append(m.ReplyKeyboard, buttons)
	}
	return m
}

func studentKeyboard() *telebot.ReplyMarkup {
	return replyKeyboard(false,
		[]string{BtnSendReport, BtnMyReports},
		[]string{BtnHelp},
	)
}

func curatorKeyboard() *telebot.ReplyMarkup {
	return replyKeyboard(false,
		[]string{BtnAddStudent, BtnMyStudents},
		[]string{BtnAllStudents, BtnReports},
		[]string{BtnHelp},
	)
}

func adminKeyboard() *telebot.ReplyMarkup {
	return replyKeyboard(false,
		[]string{BtnAllCurators, BtnAllStudentsAdmin},
		[]string{BtnAdminStats, BtnAddCurator},
		[]string{BtnAssignStudent, BtnRemoveRelation},
		[]string{BtnDeactivateCurator, BtnActivateCurator},
		[]string{BtnStudentsNoCurators, BtnAdminHelp},
	)
}

func cancelKeyboard() *telebot.ReplyMarkup {
	return replyKeyboard(true, []string{BtnCancel})
}

func backKeyboard() *telebot.ReplyMarkup {
	return replyKeyboard(true, []string{BtnBack})
}

func inlineKeyboard(rows ...[]telebot.InlineButton) *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{InlineKeyboard: rows}
}

func stageKeyboard() *telebot.ReplyMarkup {
	rows := make([][]telebot.InlineButton, 0, len(report.Stages))
	for _, s := range report.Stages {
		rows = append(rows, []telebot.InlineButton{{Text: s.Label, Data: cbStage + s.Key}})
	}
	return inlineKeyboard(rows...)
}

func plansKeyboard() *telebot.ReplyMarkup {
	return inlineKeyboard(
		[]telebot.InlineButton{{Text: "✅ Да, выполнил", Data: cbPlansYes}},
		[]telebot.InlineButton{{Text: "❌ Нет, не выполнил", Data: cbPlansNo}},
	)
}

func readKeyboard(reportID int64) *telebot.ReplyMarkup {
	return inlineKeyboard(
		[]telebot.InlineButton{{Text: "✅ Отметить как прочитанный", Data: cbRead + strconv.FormatInt(reportID, 10)}},
	)
}
