package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"

	"weekly_report_bot/internal/app"
)

// Dispatcher consumes normalized updates. Implemented by app.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, u app.Update, r app.Responder)
}

// NewBot creates a long-polling bot whose handler errors end up in the log.
func NewBot(token string, pollTimeout time.Duration, logger *logrus.Entry) (*telebot.Bot, error) {
	logger = logger.WithField("component", "telebot")
	pref := telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: pollTimeout},
		OnError: func(err error, c telebot.Context) {
			logCtx := logger.WithError(err)
			if c != nil && c.Sender() != nil {
				logCtx = logCtx.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "text": c.Text()})
			}
			logCtx.Error("Telegram handler error")
		},
	}
	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("could not create telegram bot: %w", err)
	}
	b.Use(middleware.Recover())
	return b, nil
}

// RegisterHandlers routes every text message and button press into d.
// Commands without a dedicated handler reach OnText, so d sees them too.
func RegisterHandlers(ctx context.Context, b *telebot.Bot, d Dispatcher) {
	handle := func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}
		d.Dispatch(ctx, updateFromContext(c), contextResponder{c: c})
		return nil
	}
	b.Handle(telebot.OnText, handle)
	b.Handle(telebot.OnCallback, handle)
}

func updateFromContext(c telebot.Context) app.Update {
	sender := c.Sender()
	u := app.Update{
		UserID:    sender.ID,
		Username:  sender.Username,
		FirstName: sender.FirstName,
		LastName:  sender.LastName,
	}
	if cb := c.Callback(); cb != nil {
		u.Callback = strings.TrimPrefix(cb.Data, "\f")
		if cb.Message != nil {
			u.MessageText = cb.Message.Text
		}
		return u
	}
	u.Text = c.Text()
	return u
}

// contextResponder answers through the telebot context of the current update.
type contextResponder struct {
	c telebot.Context
}

func (r contextResponder) Send(text string, opts *telebot.SendOptions) error {
	if opts == nil {
		return r.c.Send(text)
	}
	return r.c.Send(text, opts)
}

func (r contextResponder) Edit(text string, opts *telebot.SendOptions) error {
	if opts == nil {
		return r.c.Edit(text)
	}
	return r.c.Edit(text, opts)
}

func (r contextResponder) Answer(text string) error {
	if text == "" {
		return r.c.Respond()
	}
	return r.c.Respond(&telebot.CallbackResponse{Text: text})
}
