package app

import (
	"strings"

	"gopkg.in/telebot.v3"

	"weekly_report_bot/internal/domain/user"
)

// Update is one incoming message or button press, stripped of transport details.
type Update struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string

	Text string
	// Callback is the data of a pressed inline button. Empty for messages.
	Callback string
	// MessageText is the text of the message carrying the pressed button.
	MessageText string
}

func (u Update) IsCallback() bool { return u.Callback != "" }

func (u Update) profile() *user.User {
	return &user.User{
		UserID:    u.UserID,
		Username:  user.NullString(u.Username),
		FirstName: user.NullString(u.FirstName),
		LastName:  user.NullString(u.LastName),
	}
}

// Responder answers in the chat the update came from.
type Responder interface {
	Send(text string, opts *telebot.SendOptions) error
	// Edit replaces the message carrying the pressed button.
	Edit(text string, opts *telebot.SendOptions) error
	// Answer acknowledges a button press with a short notice.
	Answer(text string) error
}

// parseCommand splits "/cmd@bot arg1 arg2" into "/cmd" and its args.
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") || len(fields[0]) == 1 {
		return "", nil, false
	}
	cmd := fields[0]
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), fields[1:], true
}
