// Package router is the presentation layer: it turns transport updates into
// event-service calls and renders menus, event cards and admin flows back
// through the chat adapter.
package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"remindbot/internal/services/events"
	"remindbot/internal/session"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// EventService is the orchestration surface the router drives.
type EventService interface {
	CreateEvent(ctx context.Context, req events.CreateRequest) ([]storage.Event, error)
	UpdateEvent(ctx context.Context, id int64, patch storage.EventPatch) error
	DeleteEvent(ctx context.Context, id int64) error
	Subscribe(ctx context.Context, subscriberID, eventID int64, now time.Time) error
	Unsubscribe(ctx context.Context, subscriberID, eventID int64) error
	Get(ctx context.Context, id int64) (storage.Event, error)
	ListFuture(ctx context.Context, now time.Time) ([]storage.Event, error)
	IsSubscribed(ctx context.Context, subscriberID, eventID int64) (bool, error)
	CountSubscribers(ctx context.Context, eventID int64) (int, error)
}

// Chat is the outbound capability the router needs from the adapter.
type Chat interface {
	transport.Sender
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	BotUsername() string
}

type Config struct {
	AdminIDs []int64
	Timezone *time.Location
}

type Router struct {
	cfg      Config
	log      logx.Logger
	events   EventService
	sessions *session.Store
	chat     Chat

	now func() time.Time
}

func New(cfg Config, ev EventService, sessions *session.Store, chat Chat, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.Local
	}
	return &Router{
		cfg:      cfg,
		log:      log,
		events:   ev,
		sessions: sessions,
		chat:     chat,
		now:      time.Now,
	}
}

// Run consumes updates until ctx is cancelled or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			r.handle(ctx, up)
		}
	}
}

func (r *Router) handle(ctx context.Context, up transport.Update) {
	defer func() {
		// One malformed update must not stop the loop.
		if rec := recover(); rec != nil {
			r.log.Error("panic handling update",
				logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()

	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			r.handleMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			r.handleCallback(ctx, up.Callback)
		}
	}
}

func (r *Router) isAdmin(userID int64) bool {
	for _, id := range r.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *Router) handleMessage(ctx context.Context, m *transport.Message) {
	if strings.HasPrefix(m.Text, "/start") {
		r.sessions.Delete(m.FromID)
		r.handleStart(ctx, m)
		return
	}
	if v, ok := r.sessions.Get(m.FromID); ok {
		r.handleFlowMessage(ctx, m, v)
		return
	}
	// Free-form text outside any flow: point back at the menu.
	r.sendMenu(ctx, m.ChatID, m.FromID, "Main menu:")
}

func (r *Router) handleStart(ctx context.Context, m *transport.Message) {
	if id, ok := parseStartPayload(m.Text); ok {
		r.showEvent(ctx, m.ChatID, m.FromID, id)
		return
	}
	r.sendMenu(ctx, m.ChatID, m.FromID, "Hi! I'll make sure you don't miss an event.")
}

func (r *Router) handleCallback(ctx context.Context, cb *transport.Callback) {
	action, id := parseCallback(cb.Data)

	switch action {
	case "menu":
		r.sessions.Delete(cb.FromID)
		r.sendMenu(ctx, cb.ChatID, cb.FromID, "Main menu:")
		r.ack(ctx, cb.ID, "")
	case "noop":
		r.ack(ctx, cb.ID, "Already on")
	case "events:list":
		r.listEvents(ctx, cb.ChatID, cb.FromID)
		r.ack(ctx, cb.ID, "")
	case "event:open":
		r.showEvent(ctx, cb.ChatID, cb.FromID, id)
		r.ack(ctx, cb.ID, "")
	case "event:sub":
		r.subscribe(ctx, cb, id)
	case "event:unsub":
		r.unsubscribe(ctx, cb, id)
	default:
		if strings.HasPrefix(action, "admin:") {
			r.handleAdminCallback(ctx, cb, action, id)
			return
		}
		r.log.Debug("unknown callback", logx.String("data", cb.Data))
		r.ack(ctx, cb.ID, "")
	}
}

func (r *Router) subscribe(ctx context.Context, cb *transport.Callback, eventID int64) {
	err := r.events.Subscribe(ctx, cb.FromID, eventID, r.now())
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, events.ErrEventPassed):
		r.ack(ctx, cb.ID, "Event unavailable")
		return
	case err != nil:
		r.log.Error("subscribe failed", logx.Int64("event_id", eventID), logx.Err(err))
		r.ack(ctx, cb.ID, "Something went wrong, try again")
		return
	}
	r.showEvent(ctx, cb.ChatID, cb.FromID, eventID)
	r.ack(ctx, cb.ID, "Reminder enabled")
}

func (r *Router) unsubscribe(ctx context.Context, cb *transport.Callback, eventID int64) {
	if err := r.events.Unsubscribe(ctx, cb.FromID, eventID); err != nil {
		r.log.Error("unsubscribe failed", logx.Int64("event_id", eventID), logx.Err(err))
		r.ack(ctx, cb.ID, "Something went wrong, try again")
		return
	}
	r.showEvent(ctx, cb.ChatID, cb.FromID, eventID)
	r.ack(ctx, cb.ID, "Reminder disabled")
}

func (r *Router) listEvents(ctx context.Context, chatID, userID int64) {
	list, err := r.events.ListFuture(ctx, r.now())
	if err != nil {
		r.log.Error("listing events failed", logx.Err(err))
		r.sendText(ctx, chatID, "Something went wrong, try again.", nil)
		return
	}
	if len(list) == 0 {
		r.sendText(ctx, chatID, "No upcoming events yet.", nil)
		return
	}
	for _, ev := range list {
		r.sendCard(ctx, chatID, ev, eventTitle(ev, r.cfg.Timezone), listItemKeyboard(ev.ID))
	}
}

// showEvent renders the full event card with the subscribe toggle.
func (r *Router) showEvent(ctx context.Context, chatID, userID, eventID int64) {
	ev, err := r.events.Get(ctx, eventID)
	if err != nil || !ev.StartAt.After(r.now()) {
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			r.log.Error("loading event failed", logx.Int64("event_id", eventID), logx.Err(err))
		}
		r.sendText(ctx, chatID, "Event not found or already past.", nil)
		return
	}
	count, err := r.events.CountSubscribers(ctx, eventID)
	if err != nil {
		r.log.Error("counting subscribers failed", logx.Int64("event_id", eventID), logx.Err(err))
	}
	subscribed, err := r.events.IsSubscribed(ctx, userID, eventID)
	if err != nil {
		r.log.Error("subscription lookup failed", logx.Int64("event_id", eventID), logx.Err(err))
	}

	text := fmt.Sprintf("%s\n\n📅 %s\n👥 Subscribers: %d",
		ev.Text, formatStart(ev.StartAt, r.cfg.Timezone), count)
	r.sendCard(ctx, chatID, ev, text, eventKeyboard(subscribed, count, r.isAdmin(userID), eventID))
}

func (r *Router) sendMenu(ctx context.Context, chatID, userID int64, text string) {
	r.sendText(ctx, chatID, text, menuKeyboard(r.isAdmin(userID)))
}

func (r *Router) sendCard(ctx context.Context, chatID int64, ev storage.Event, text string, kb [][]transport.Button) {
	to := transport.Recipient{ChatID: chatID}
	opt := &transport.SendOptions{Keyboard: kb}
	var err error
	if ev.ImageFileID != "" {
		_, err = r.chat.SendPhoto(ctx, to, ev.ImageFileID, text, opt)
	} else {
		_, err = r.chat.SendText(ctx, to, text, opt)
	}
	if err != nil {
		r.log.Error("send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (r *Router) sendText(ctx context.Context, chatID int64, text string, kb [][]transport.Button) {
	var opt *transport.SendOptions
	if kb != nil {
		opt = &transport.SendOptions{Keyboard: kb}
	}
	if _, err := r.chat.SendText(ctx, transport.Recipient{ChatID: chatID}, text, opt); err != nil {
		r.log.Error("send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (r *Router) ack(ctx context.Context, callbackID, text string) {
	if err := r.chat.AnswerCallback(ctx, callbackID, text); err != nil {
		r.log.Debug("callback answer failed", logx.Err(err))
	}
}

func eventTitle(ev storage.Event, loc *time.Location) string {
	return ev.Text + "\n📅 " + formatStart(ev.StartAt, loc)
}

func formatStart(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02.01.2006 15:04")
}
