package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/services/events"
	"remindbot/internal/session"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	adminID = int64(1)
	userID  = int64(2)
)

type fakeEvents struct {
	mu      sync.Mutex
	nextID  int64
	events  map[int64]storage.Event
	subs    map[[2]int64]bool
	patches []storage.EventPatch
	deleted []int64
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{nextID: 1, events: map[int64]storage.Event{}, subs: map[[2]int64]bool{}}
}

func (f *fakeEvents) add(ev storage.Event) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev.ID = f.nextID
	f.nextID++
	f.events[ev.ID] = ev
	return ev.ID
}

func (f *fakeEvents) CreateEvent(ctx context.Context, req events.CreateRequest) ([]storage.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Event
	for _, off := range req.LeadOffsets {
		if off <= 0 {
			return out, storage.ErrInvalidLeadTime
		}
		ev := storage.Event{
			ID: f.nextID, StartAt: req.StartAt, LeadMinutes: off,
			Text: req.Text, ImageFileID: req.ImageFileID,
		}
		f.nextID++
		f.events[ev.ID] = ev
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeEvents) UpdateEvent(ctx context.Context, id int64, patch storage.EventPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return storage.ErrNotFound
	}
	if patch.StartAt != nil {
		ev.StartAt = *patch.StartAt
	}
	if patch.LeadMinutes != nil {
		ev.LeadMinutes = *patch.LeadMinutes
	}
	if patch.Text != nil {
		ev.Text = *patch.Text
	}
	if patch.ImageFileID != nil {
		ev.ImageFileID = *patch.ImageFileID
	}
	f.events[id] = ev
	f.patches = append(f.patches, patch)
	return nil
}

func (f *fakeEvents) DeleteEvent(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.events, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeEvents) Subscribe(ctx context.Context, subscriberID, eventID int64, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[eventID]
	if !ok {
		return storage.ErrNotFound
	}
	if !ev.StartAt.After(now) {
		return events.ErrEventPassed
	}
	f.subs[[2]int64{subscriberID, eventID}] = true
	return nil
}

func (f *fakeEvents) Unsubscribe(ctx context.Context, subscriberID, eventID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, [2]int64{subscriberID, eventID})
	return nil
}

func (f *fakeEvents) Get(ctx context.Context, id int64) (storage.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return storage.Event{}, storage.ErrNotFound
	}
	return ev, nil
}

func (f *fakeEvents) ListFuture(ctx context.Context, now time.Time) ([]storage.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Event
	for _, ev := range f.events {
		if ev.StartAt.After(now) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEvents) IsSubscribed(ctx context.Context, subscriberID, eventID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[[2]int64{subscriberID, eventID}], nil
}

func (f *fakeEvents) CountSubscribers(ctx context.Context, eventID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.subs {
		if k[1] == eventID {
			n++
		}
	}
	return n, nil
}

type sentMsg struct {
	chatID   int64
	text     string
	photo    string
	keyboard [][]transport.Button
}

type fakeChat struct {
	mu   sync.Mutex
	sent []sentMsg
	acks []string
}

func newFakeChat() *fakeChat { return &fakeChat{} }

func (f *fakeChat) SendText(ctx context.Context, to transport.Recipient, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := sentMsg{chatID: to.ChatID, text: text}
	if opt != nil {
		m.keyboard = opt.Keyboard
	}
	f.sent = append(f.sent, m)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeChat) SendPhoto(ctx context.Context, to transport.Recipient, fileID, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := sentMsg{chatID: to.ChatID, text: caption, photo: fileID}
	if opt != nil {
		m.keyboard = opt.Keyboard
	}
	f.sent = append(f.sent, m)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeChat) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, text)
	return nil
}

func (f *fakeChat) BotUsername() string { return "remindtestbot" }

func (f *fakeChat) last() sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMsg{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeChat) all() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.sent...)
}

func newTestRouter(t *testing.T) (*Router, *fakeEvents, *fakeChat) {
	t.Helper()
	ev := newFakeEvents()
	chat := newFakeChat()
	sessions := session.New(session.Config{}, logx.Nop())
	r := New(Config{AdminIDs: []int64{adminID}, Timezone: time.UTC}, ev, sessions, chat, logx.Nop())
	return r, ev, chat
}

func msg(from int64, text string) transport.Update {
	return transport.Update{
		Kind:    transport.UpdateMessage,
		Message: &transport.Message{ChatID: from, FromID: from, Text: text},
	}
}

func photoMsg(from int64, fileID string) transport.Update {
	return transport.Update{
		Kind:    transport.UpdateMessage,
		Message: &transport.Message{ChatID: from, FromID: from, PhotoFileID: fileID},
	}
}

func callback(from int64, data string) transport.Update {
	return transport.Update{
		Kind:     transport.UpdateCallback,
		Callback: &transport.Callback{ID: "cb", ChatID: from, FromID: from, Data: data},
	}
}

func TestStartShowsMenu(t *testing.T) {
	t.Parallel()
	r, _, chat := newTestRouter(t)
	ctx := context.Background()

	r.handle(ctx, msg(userID, "/start"))
	m := chat.last()
	if !strings.Contains(m.text, "miss an event") {
		t.Fatalf("greeting not sent: %q", m.text)
	}
	if len(m.keyboard) != 1 {
		t.Fatalf("non-admin menu rows = %d, want 1", len(m.keyboard))
	}

	r.handle(ctx, msg(adminID, "/start"))
	if len(chat.last().keyboard) != 2 {
		t.Fatal("admin menu must include the create button")
	}
}

func TestDeepLinkOpensEventCard(t *testing.T) {
	t.Parallel()
	r, ev, chat := newTestRouter(t)
	id := ev.add(storage.Event{StartAt: time.Now().Add(time.Hour), LeadMinutes: 30, Text: "quiz night", ImageFileID: "img-9"})

	r.handle(context.Background(), msg(userID, "/start event_1"))
	m := chat.last()
	if m.photo != "img-9" {
		t.Fatalf("card should be a photo message, got %+v", m)
	}
	if !strings.Contains(m.text, "quiz night") || !strings.Contains(m.text, "Subscribers: 0") {
		t.Fatalf("card text = %q", m.text)
	}
	found := false
	for _, row := range m.keyboard {
		for _, b := range row {
			if b.Data == "event:sub:1" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("subscribe button missing for event %d: %v", id, m.keyboard)
	}
}

func TestDeepLinkPastEvent(t *testing.T) {
	t.Parallel()
	r, ev, chat := newTestRouter(t)
	ev.add(storage.Event{StartAt: time.Now().Add(-time.Hour), LeadMinutes: 30, Text: "gone"})

	r.handle(context.Background(), msg(userID, "/start event_1"))
	if !strings.Contains(chat.last().text, "not found or already past") {
		t.Fatalf("got %q", chat.last().text)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	t.Parallel()
	r, ev, chat := newTestRouter(t)
	ev.add(storage.Event{StartAt: time.Now().Add(time.Hour), LeadMinutes: 30, Text: "x"})
	ctx := context.Background()

	r.handle(ctx, callback(userID, "event:sub:1"))
	if !ev.subs[[2]int64{userID, 1}] {
		t.Fatal("subscription not recorded")
	}
	if got := chat.acks[len(chat.acks)-1]; got != "Reminder enabled" {
		t.Fatalf("ack = %q", got)
	}

	r.handle(ctx, callback(userID, "event:unsub:1"))
	if ev.subs[[2]int64{userID, 1}] {
		t.Fatal("subscription survived unsubscribe")
	}
}

func TestSubscribePastEventRefused(t *testing.T) {
	t.Parallel()
	r, ev, chat := newTestRouter(t)
	ev.add(storage.Event{StartAt: time.Now().Add(-time.Minute), LeadMinutes: 30, Text: "x"})

	r.handle(context.Background(), callback(userID, "event:sub:1"))
	if len(ev.subs) != 0 {
		t.Fatal("past event must not accept subscriptions")
	}
	if got := chat.acks[len(chat.acks)-1]; got != "Event unavailable" {
		t.Fatalf("ack = %q", got)
	}
}

func TestNonAdminCannotEnterAdminFlows(t *testing.T) {
	t.Parallel()
	r, ev, chat := newTestRouter(t)
	ev.add(storage.Event{StartAt: time.Now().Add(time.Hour), LeadMinutes: 30, Text: "x"})
	ctx := context.Background()

	for _, data := range []string{"admin:create", "admin:manage:1", "admin:delete:1", "admin:confirm_delete:1"} {
		r.handle(ctx, callback(userID, data))
	}
	if len(chat.all()) != 0 {
		t.Fatalf("non-admin got admin responses: %+v", chat.all())
	}
	if len(ev.deleted) != 0 {
		t.Fatal("non-admin deleted an event")
	}
	if _, ok := r.sessions.Get(userID); ok {
		t.Fatal("non-admin got a flow session")
	}
}

func TestAdminCreateFlow(t *testing.T) {
	t.Parallel()
	r, ev, chat := newTestRouter(t)
	ctx := context.Background()

	r.handle(ctx, callback(adminID, "admin:create"))
	if !strings.Contains(chat.last().text, "YYYY-MM-DD HH:MM") {
		t.Fatalf("date prompt missing: %q", chat.last().text)
	}

	// Bad date keeps the step.
	r.handle(ctx, msg(adminID, "next friday"))
	if !strings.Contains(chat.last().text, "Invalid format") {
		t.Fatalf("got %q", chat.last().text)
	}

	r.handle(ctx, msg(adminID, "2030-06-01 19:30"))
	r.handle(ctx, msg(adminID, "   "))
	if !strings.Contains(chat.last().text, "must not be empty") {
		t.Fatalf("got %q", chat.last().text)
	}
	r.handle(ctx, msg(adminID, "summer meetup"))

	// Bad offsets keep the step.
	r.handle(ctx, msg(adminID, "soon"))
	if !strings.Contains(chat.last().text, "greater than zero") {
		t.Fatalf("got %q", chat.last().text)
	}

	r.handle(ctx, msg(adminID, "30, 1440"))
	if len(ev.events) != 2 {
		t.Fatalf("created %d events, want one per offset", len(ev.events))
	}

	msgs := chat.all()
	link := msgs[len(msgs)-1].text
	if !strings.Contains(link, "t.me/remindtestbot?start=event_1") {
		t.Fatalf("deep link not sent: %q", link)
	}
	created := msgs[len(msgs)-2]
	if !strings.Contains(created.text, "Event created") || len(created.keyboard) != 1 {
		t.Fatalf("created message mangled: %+v", created)
	}

	// Attach the image; it lands on every created row and ends the flow.
	r.handle(ctx, photoMsg(adminID, "file-77"))
	for id, e := range ev.events {
		if e.ImageFileID != "file-77" {
			t.Fatalf("event %d image = %q", id, e.ImageFileID)
		}
	}
	if _, ok := r.sessions.Get(adminID); ok {
		t.Fatal("session not cleared after create flow")
	}
}

func TestAdminCreateImageSkip(t *testing.T) {
	t.Parallel()
	r, ev, _ := newTestRouter(t)
	ctx := context.Background()

	r.handle(ctx, callback(adminID, "admin:create"))
	r.handle(ctx, msg(adminID, "2030-06-01 19:30"))
	r.handle(ctx, msg(adminID, "meetup"))
	r.handle(ctx, msg(adminID, "30"))
	r.handle(ctx, callback(adminID, "admin:image_skip:1"))

	if _, ok := r.sessions.Get(adminID); ok {
		t.Fatal("session not cleared after skip")
	}
	if ev.events[1].ImageFileID != "" {
		t.Fatal("skip must leave the event without an image")
	}
}

func TestAdminEditTextFlow(t *testing.T) {
	t.Parallel()
	r, ev, chat := newTestRouter(t)
	ev.add(storage.Event{StartAt: time.Now().Add(time.Hour), LeadMinutes: 30, Text: "old"})
	ctx := context.Background()

	r.handle(ctx, callback(adminID, "admin:edit_text:1"))
	r.handle(ctx, msg(adminID, "new announcement"))

	if ev.events[1].Text != "new announcement" {
		t.Fatalf("text = %q", ev.events[1].Text)
	}
	if len(ev.patches) != 1 || ev.patches[0].Text == nil || ev.patches[0].StartAt != nil {
		t.Fatalf("patch = %+v, want text-only", ev.patches)
	}
	var seen bool
	for _, m := range chat.all() {
		if strings.Contains(m.text, "Text updated.") {
			seen = true
		}
	}
	if !seen {
		t.Fatal("confirmation not sent")
	}
}

func TestAdminEditReminderRejectsBadInput(t *testing.T) {
	t.Parallel()
	r, ev, chat := newTestRouter(t)
	ev.add(storage.Event{StartAt: time.Now().Add(time.Hour), LeadMinutes: 30, Text: "x"})
	ctx := context.Background()

	r.handle(ctx, callback(adminID, "admin:edit_reminder:1"))
	for _, bad := range []string{"zero", "0", "-10"} {
		r.handle(ctx, msg(adminID, bad))
		if !strings.Contains(chat.last().text, "greater than zero") {
			t.Fatalf("input %q: got %q", bad, chat.last().text)
		}
	}
	r.handle(ctx, msg(adminID, "45"))
	if ev.events[1].LeadMinutes != 45 {
		t.Fatalf("lead = %d, want 45", ev.events[1].LeadMinutes)
	}
}

func TestAdminDeleteNeedsConfirmation(t *testing.T) {
	t.Parallel()
	r, ev, chat := newTestRouter(t)
	ev.add(storage.Event{StartAt: time.Now().Add(time.Hour), LeadMinutes: 30, Text: "x"})
	ctx := context.Background()

	r.handle(ctx, callback(adminID, "admin:delete:1"))
	if len(ev.deleted) != 0 {
		t.Fatal("delete before confirmation")
	}
	if kb := chat.last().keyboard; len(kb) != 2 {
		t.Fatalf("confirm keyboard = %v", kb)
	}

	r.handle(ctx, callback(adminID, "admin:confirm_delete:1"))
	if len(ev.deleted) != 1 || ev.deleted[0] != 1 {
		t.Fatalf("deleted = %v", ev.deleted)
	}
	if !strings.Contains(chat.last().text, "Event deleted.") {
		t.Fatalf("got %q", chat.last().text)
	}
}

func TestStartClearsPendingFlow(t *testing.T) {
	t.Parallel()
	r, _, chat := newTestRouter(t)
	ctx := context.Background()

	r.handle(ctx, callback(adminID, "admin:create"))
	r.handle(ctx, msg(adminID, "/start"))
	if _, ok := r.sessions.Get(adminID); ok {
		t.Fatal("/start must abort the running flow")
	}
	if !strings.Contains(chat.last().text, "miss an event") {
		t.Fatalf("got %q", chat.last().text)
	}
}
