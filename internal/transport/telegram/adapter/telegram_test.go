package adapter

import (
	"errors"
	"fmt"
	"testing"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

func TestClassifyErr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"nil", nil, false},
		{"blocked", tele.ErrBlockedByUser, true},
		{"deactivated", tele.ErrUserIsDeactivated, true},
		{"never started", tele.ErrNotStartedByUser, true},
		{"chat gone", tele.ErrChatNotFound, true},
		{"wrapped blocked", fmt.Errorf("send: %w", tele.ErrBlockedByUser), true},
		{"flood", tele.FloodError{RetryAfter: 5}, false},
		{"generic", errors.New("telegram: internal server error"), false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := classifyErr(tc.err)
			if tc.err == nil {
				if got != nil {
					t.Fatalf("classifyErr(nil) = %v", got)
				}
				return
			}
			if perm := errors.Is(got, transport.ErrRecipientUnreachable); perm != tc.permanent {
				t.Fatalf("permanent = %v, want %v (err %v)", perm, tc.permanent, got)
			}
		})
	}
}

func TestInlineMarkup(t *testing.T) {
	t.Parallel()
	mk := inlineMarkup([][]transport.Button{
		{{Text: "Subscribe", Data: "event:sub:7"}},
		{{Text: "Open", URL: "https://t.me/somebot?start=event_7"}, {Text: "Back", Data: "menu"}},
	})
	if len(mk.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(mk.InlineKeyboard))
	}
	if mk.InlineKeyboard[0][0].Data != "event:sub:7" {
		t.Fatalf("row 0 data = %q", mk.InlineKeyboard[0][0].Data)
	}
	if mk.InlineKeyboard[1][0].URL == "" || mk.InlineKeyboard[1][1].Data != "menu" {
		t.Fatalf("row 1 mangled: %+v", mk.InlineKeyboard[1])
	}
}

func TestSendOptions(t *testing.T) {
	t.Parallel()
	if so := sendOptions(nil); so == nil || so.ReplyMarkup != nil {
		t.Fatalf("nil options should map to empty tele options, got %+v", so)
	}
	so := sendOptions(&transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
		Keyboard:       [][]transport.Button{{{Text: "x", Data: "y"}}},
	})
	if so.ParseMode != "HTML" || !so.DisableWebPagePreview || so.ReplyMarkup == nil {
		t.Fatalf("options not carried over: %+v", so)
	}
}

func TestNewRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
