package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/services/events"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// createState walks an admin through the new-event conversation.
type createState struct {
	step     string // "datetime" -> "text" -> "reminder" -> "image"
	startAt  time.Time
	text     string
	eventIDs []int64
}

// editState is a single-prompt edit of one field of one event.
type editState struct {
	field   string // "datetime" | "text" | "reminder" | "image"
	eventID int64
}

func (r *Router) handleAdminCallback(ctx context.Context, cb *transport.Callback, action string, id int64) {
	if !r.isAdmin(cb.FromID) {
		// Non-admins pressing stale admin buttons are silently ignored.
		r.ack(ctx, cb.ID, "")
		return
	}

	switch action {
	case "admin:create":
		r.sessions.Put(cb.FromID, &createState{step: "datetime"})
		r.sendText(ctx, cb.ChatID, "Send the event date and time as: YYYY-MM-DD HH:MM", nil)
	case "admin:manage":
		r.sendText(ctx, cb.ChatID, "Event management:", manageKeyboard(id))
	case "admin:delete":
		r.sendText(ctx, cb.ChatID, "Delete this event?", confirmDeleteKeyboard(id))
	case "admin:confirm_delete":
		if err := r.events.DeleteEvent(ctx, id); err != nil {
			r.log.Error("delete failed", logx.Int64("event_id", id), logx.Err(err))
			r.sendText(ctx, cb.ChatID, "Something went wrong, try again.", nil)
			break
		}
		r.sendText(ctx, cb.ChatID, "Event deleted.", nil)
	case "admin:edit_dt":
		r.sessions.Put(cb.FromID, &editState{field: "datetime", eventID: id})
		r.sendText(ctx, cb.ChatID, "Send the new date and time: YYYY-MM-DD HH:MM", nil)
	case "admin:edit_text":
		r.sessions.Put(cb.FromID, &editState{field: "text", eventID: id})
		r.sendText(ctx, cb.ChatID, "Send the new announcement text.", nil)
	case "admin:edit_reminder":
		r.sessions.Put(cb.FromID, &editState{field: "reminder", eventID: id})
		r.sendText(ctx, cb.ChatID, "Send the new reminder offset in minutes.", nil)
	case "admin:edit_image":
		r.sessions.Put(cb.FromID, &editState{field: "image", eventID: id})
		r.sendText(ctx, cb.ChatID, "Send the new image.", nil)
	case "admin:image_skip":
		r.sessions.Delete(cb.FromID)
		r.sendText(ctx, cb.ChatID, "Image skipped.", nil)
		r.showEvent(ctx, cb.ChatID, cb.FromID, id)
	default:
		r.log.Debug("unknown admin callback", logx.String("data", cb.Data))
	}
	r.ack(ctx, cb.ID, "")
}

func (r *Router) handleFlowMessage(ctx context.Context, m *transport.Message, state any) {
	if !r.isAdmin(m.FromID) {
		// A session for a non-admin should not exist; drop it.
		r.sessions.Delete(m.FromID)
		return
	}
	switch st := state.(type) {
	case *createState:
		r.handleCreateStep(ctx, m, st)
	case *editState:
		r.handleEditStep(ctx, m, st)
	default:
		r.sessions.Delete(m.FromID)
	}
}

func (r *Router) handleCreateStep(ctx context.Context, m *transport.Message, st *createState) {
	switch st.step {
	case "datetime":
		at, err := parseDateTime(m.Text, r.cfg.Timezone)
		if err != nil {
			r.sendText(ctx, m.ChatID, "Invalid format. Example: 2024-12-31 19:30", nil)
			return
		}
		st.startAt = at
		st.step = "text"
		r.sessions.Put(m.FromID, st)
		r.sendText(ctx, m.ChatID, "Send the announcement text.", nil)

	case "text":
		text := strings.TrimSpace(m.Text)
		if text == "" {
			r.sendText(ctx, m.ChatID, "Text must not be empty.", nil)
			return
		}
		st.text = text
		st.step = "reminder"
		r.sessions.Put(m.FromID, st)
		r.sendText(ctx, m.ChatID,
			"How many minutes before the event should I remind? One number, or several separated by commas.", nil)

	case "reminder":
		offsets, err := parseLeadOffsets(m.Text)
		if err != nil {
			r.sendText(ctx, m.ChatID, "Send whole numbers greater than zero.", nil)
			return
		}
		created, err := r.events.CreateEvent(ctx, events.CreateRequest{
			StartAt:     st.startAt,
			LeadOffsets: offsets,
			Text:        st.text,
		})
		if err != nil {
			r.log.Error("event create failed", logx.Err(err))
			r.sendText(ctx, m.ChatID, "Something went wrong, try again.", nil)
			return
		}
		for _, ev := range created {
			st.eventIDs = append(st.eventIDs, ev.ID)
		}
		st.step = "image"
		r.sessions.Put(m.FromID, st)
		first := st.eventIDs[0]
		r.sendText(ctx, m.ChatID, "Event created! Send an image or press Skip.", imageSkipKeyboard(first))
		if name := r.chat.BotUsername(); name != "" {
			r.sendText(ctx, m.ChatID, fmt.Sprintf("Event link: t.me/%s?start=event_%d", name, first), nil)
		}

	case "image":
		if m.PhotoFileID == "" {
			r.sendText(ctx, m.ChatID, "Send an image or press Skip.", nil)
			return
		}
		fileID := m.PhotoFileID
		for _, id := range st.eventIDs {
			if err := r.events.UpdateEvent(ctx, id, storage.EventPatch{ImageFileID: &fileID}); err != nil {
				r.log.Error("image attach failed", logx.Int64("event_id", id), logx.Err(err))
			}
		}
		r.sessions.Delete(m.FromID)
		r.sendText(ctx, m.ChatID, "Image saved.", nil)
		r.showEvent(ctx, m.ChatID, m.FromID, st.eventIDs[0])

	default:
		r.sessions.Delete(m.FromID)
	}
}

func (r *Router) handleEditStep(ctx context.Context, m *transport.Message, st *editState) {
	var patch storage.EventPatch

	switch st.field {
	case "datetime":
		at, err := parseDateTime(m.Text, r.cfg.Timezone)
		if err != nil {
			r.sendText(ctx, m.ChatID, "Invalid format. Example: 2024-12-31 19:30", nil)
			return
		}
		patch.StartAt = &at
	case "text":
		text := strings.TrimSpace(m.Text)
		if text == "" {
			r.sendText(ctx, m.ChatID, "Text must not be empty.", nil)
			return
		}
		patch.Text = &text
	case "reminder":
		minutes, err := strconv.Atoi(strings.TrimSpace(m.Text))
		if err != nil || minutes <= 0 {
			r.sendText(ctx, m.ChatID, "Send a whole number greater than zero.", nil)
			return
		}
		patch.LeadMinutes = &minutes
	case "image":
		if m.PhotoFileID == "" {
			r.sendText(ctx, m.ChatID, "Send an image.", nil)
			return
		}
		fileID := m.PhotoFileID
		patch.ImageFileID = &fileID
	default:
		r.sessions.Delete(m.FromID)
		return
	}

	err := r.events.UpdateEvent(ctx, st.eventID, patch)
	r.sessions.Delete(m.FromID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		r.sendText(ctx, m.ChatID, "Event not found.", nil)
		return
	case err != nil:
		r.log.Error("event update failed", logx.Int64("event_id", st.eventID), logx.Err(err))
		r.sendText(ctx, m.ChatID, "Something went wrong, try again.", nil)
		return
	}
	r.sendText(ctx, m.ChatID, editDoneMessage(st.field), nil)
	r.showEvent(ctx, m.ChatID, m.FromID, st.eventID)
}

func editDoneMessage(field string) string {
	switch field {
	case "datetime":
		return "Date updated."
	case "text":
		return "Text updated."
	case "reminder":
		return "Reminder updated."
	case "image":
		return "Image updated."
	}
	return "Updated."
}
