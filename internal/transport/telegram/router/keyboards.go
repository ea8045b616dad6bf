package router

import (
	"fmt"

	"remindbot/internal/transport"
)

func menuKeyboard(isAdmin bool) [][]transport.Button {
	rows := [][]transport.Button{
		{{Text: "All events", Data: "events:list"}},
	}
	if isAdmin {
		rows = append(rows, []transport.Button{{Text: "➕ New event", Data: "admin:create"}})
	}
	return rows
}

func eventKeyboard(subscribed bool, count int, isAdmin bool, eventID int64) [][]transport.Button {
	var rows [][]transport.Button
	if subscribed {
		rows = append(rows,
			[]transport.Button{{Text: "🔔 Reminder on", Data: "noop"}},
			[]transport.Button{{Text: "Unsubscribe", Data: fmt.Sprintf("event:unsub:%d", eventID)}},
		)
	} else {
		rows = append(rows, []transport.Button{{
			Text: fmt.Sprintf("🔔 Remind me (%d)", count),
			Data: fmt.Sprintf("event:sub:%d", eventID),
		}})
	}
	rows = append(rows, []transport.Button{{Text: "All events", Data: "events:list"}})
	if isAdmin {
		rows = append(rows, []transport.Button{{
			Text: "⚙️ Manage",
			Data: fmt.Sprintf("admin:manage:%d", eventID),
		}})
	}
	return rows
}

func listItemKeyboard(eventID int64) [][]transport.Button {
	return [][]transport.Button{
		{{Text: "Open", Data: fmt.Sprintf("event:open:%d", eventID)}},
		{{Text: "Menu", Data: "menu"}},
	}
}

func manageKeyboard(eventID int64) [][]transport.Button {
	return [][]transport.Button{
		{{Text: "✏️ Edit date", Data: fmt.Sprintf("admin:edit_dt:%d", eventID)}},
		{{Text: "✏️ Edit text", Data: fmt.Sprintf("admin:edit_text:%d", eventID)}},
		{{Text: "✏️ Edit reminder", Data: fmt.Sprintf("admin:edit_reminder:%d", eventID)}},
		{{Text: "🖼 Replace image", Data: fmt.Sprintf("admin:edit_image:%d", eventID)}},
		{{Text: "🗑 Delete event", Data: fmt.Sprintf("admin:delete:%d", eventID)}},
		{{Text: "Back", Data: fmt.Sprintf("event:open:%d", eventID)}},
	}
}

func confirmDeleteKeyboard(eventID int64) [][]transport.Button {
	return [][]transport.Button{
		{{Text: "Delete", Data: fmt.Sprintf("admin:confirm_delete:%d", eventID)}},
		{{Text: "Cancel", Data: fmt.Sprintf("admin:manage:%d", eventID)}},
	}
}

func imageSkipKeyboard(eventID int64) [][]transport.Button {
	return [][]transport.Button{
		{{Text: "Skip", Data: fmt.Sprintf("admin:image_skip:%d", eventID)}},
	}
}
