// Package storage persists events and their subscriptions.
//
// Two tables: events (id, start_at, lead_minutes, text, image_file_id) and
// subscriptions keyed (subscriber_id, event_id). Event start times are stored
// as UTC unix milliseconds so range comparisons never depend on local-time
// arithmetic; display timezones are a presentation concern.
package storage
