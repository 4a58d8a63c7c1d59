package telegram

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/telebot.v3"
)

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"blocked", telebot.ErrBlockedByUser, true},
		{"wrapped chat not found", fmt.Errorf("send: %w", telebot.ErrChatNotFound), true},
		{"deactivated", telebot.ErrUserIsDeactivated, true},
		{"other 403", telebot.NewError(403, "Forbidden: something new"), true},
		{"plain text marker", errors.New("telegram: Bot was kicked from the channel"), true},
		{"timeout", errors.New("context deadline exceeded"), false},
		{"server error", telebot.ErrInternal, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsPermanent(tc.err))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	wait, ok := RetryAfter(telebot.FloodError{RetryAfter: 7})
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, wait)

	_, ok = RetryAfter(telebot.ErrInternal)
	assert.False(t, ok)
}
