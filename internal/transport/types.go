// Package transport defines the platform-neutral boundary between the
// reminder core and the chat platform: incoming updates, the outbound
// send capability, and the delivery error taxonomy.
package transport

import (
	"context"
	"errors"
)

// ErrRecipientUnreachable marks a permanent delivery failure: the recipient
// blocked the bot, was deactivated, or cannot be resolved. Callers react by
// dropping the recipient's subscription; there is no point retrying.
//
// Any other send error is considered transient (rate limiting, timeouts).
var ErrRecipientUnreachable = errors.New("recipient unreachable")

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string

	// PhotoFileID is the platform file reference of the largest attached
	// photo, empty when the message carries no photo.
	PhotoFileID string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

// Recipient identifies a single delivery target.
type Recipient struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is one inline keyboard button. Exactly one of Data or URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool

	// Keyboard is an inline keyboard, one slice per row. Nil means none.
	Keyboard [][]Button
}

// Sender delivers a message, optionally with an image, to one recipient.
type Sender interface {
	SendText(ctx context.Context, to Recipient, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to Recipient, fileID, caption string, opt *SendOptions) (MessageRef, error)
}

// Adapter is the full platform binding: Sender plus the inbound update
// stream and callback acknowledgement.
type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	AnswerCallback(ctx context.Context, callbackID string, text string) error

	// BotUsername returns the bot's public username for deep links.
	BotUsername() string
}
