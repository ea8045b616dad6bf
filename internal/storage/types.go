package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by reads of a missing event.
	ErrNotFound = errors.New("not found")

	// ErrInvalidLeadTime is returned when an event's reminder lead time is
	// zero or negative.
	ErrInvalidLeadTime = errors.New("reminder lead time must be positive")
)

// Config configures storage.
//
// Driver values: "sqlite" (default when empty).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Event is a future occurrence with an announce payload and a reminder lead
// time. Payload (Text + optional ImageFileID) is opaque to scheduling.
type Event struct {
	ID          int64
	StartAt     time.Time
	LeadMinutes int
	Text        string
	ImageFileID string
}

// FireAt is the derived reminder instant. It is never stored independently
// of StartAt and LeadMinutes.
func (e Event) FireAt() time.Time {
	return e.StartAt.Add(-time.Duration(e.LeadMinutes) * time.Minute)
}

// NewEvent carries the fields needed to create an event.
type NewEvent struct {
	StartAt     time.Time
	LeadMinutes int
	Text        string
	ImageFileID string
}

// EventPatch is a partial update; nil fields are left untouched.
type EventPatch struct {
	StartAt     *time.Time
	LeadMinutes *int
	Text        *string
	ImageFileID *string
}

func (p EventPatch) isEmpty() bool {
	return p.StartAt == nil && p.LeadMinutes == nil && p.Text == nil && p.ImageFileID == nil
}

// AffectsTiming reports whether applying the patch can move the fire time.
func (p EventPatch) AffectsTiming() bool {
	return p.StartAt != nil || p.LeadMinutes != nil
}
