package telegram

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"gopkg.in/telebot.v3"
)

// Client delivers text to a Telegram user. Implementations return telebot
// errors unchanged so callers can classify them with IsPermanent.
type Client interface {
	SendMessage(recipientID int64, text string, options *telebot.SendOptions) error
}

var permanentErrors = []error{
	telebot.ErrBlockedByUser,
	telebot.ErrUserIsDeactivated,
	telebot.ErrChatNotFound,
	telebot.ErrKickedFromGroup,
	telebot.ErrKickedFromSuperGroup,
	telebot.ErrNotStartedByUser,
}

// Lowercase fragments of Bot API descriptions that mean the recipient is gone for good.
var permanentMarkers = []string{
	"blocked",
	"forbidden",
	"chat not found",
	"user is deactivated",
	"bot was kicked",
}

// IsPermanent reports whether a send failure means the recipient cannot be
// reached at all, so retrying is pointless. Anything else is treated as transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	var apiErr *telebot.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		return true
	}
	text := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// RetryAfter extracts the wait Telegram asks for when the bot hits a flood limit.
func RetryAfter(err error) (time.Duration, bool) {
	var flood telebot.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second, true
	}
	return 0, false
}
