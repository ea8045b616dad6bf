package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// ErrEventPassed is returned on an attempt to subscribe to an event whose
// start time is not in the future.
var ErrEventPassed = errors.New("event already passed")

// Scheduler is the reminder scheduler as seen from orchestration.
type Scheduler interface {
	ScheduleEvent(eventID int64, startAt time.Time, leadMinutes int)
	CancelEvent(eventID int64)
	RestoreAll(ctx context.Context, now time.Time) error
}

// CreateRequest describes a new announcement. LeadOffsets holds one or more
// reminder lead times in minutes; each offset becomes its own event row
// sharing the payload, so every offset gets an independent one-shot reminder.
type CreateRequest struct {
	StartAt     time.Time
	LeadOffsets []int
	Text        string
	ImageFileID string
}

// Service is the write path for events and subscriptions. Every mutation that
// can move a fire time goes through here so the store and the scheduler never
// drift apart.
type Service struct {
	store storage.Store
	sched Scheduler
	log   logx.Logger
}

func New(store storage.Store, sched Scheduler, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, sched: sched, log: log}
}

// CreateEvent persists one event per lead offset and schedules each of them.
// Offsets must be positive; duplicates are collapsed.
func (s *Service) CreateEvent(ctx context.Context, req CreateRequest) ([]storage.Event, error) {
	if len(req.LeadOffsets) == 0 {
		return nil, storage.ErrInvalidLeadTime
	}
	offsets := make([]int, 0, len(req.LeadOffsets))
	seen := map[int]bool{}
	for _, off := range req.LeadOffsets {
		if off <= 0 {
			return nil, fmt.Errorf("%w: %d", storage.ErrInvalidLeadTime, off)
		}
		if !seen[off] {
			seen[off] = true
			offsets = append(offsets, off)
		}
	}

	created := make([]storage.Event, 0, len(offsets))
	for _, off := range offsets {
		id, err := s.store.CreateEvent(ctx, storage.NewEvent{
			StartAt:     req.StartAt,
			LeadMinutes: off,
			Text:        req.Text,
			ImageFileID: req.ImageFileID,
		})
		if err != nil {
			return created, err
		}
		ev := storage.Event{
			ID:          id,
			StartAt:     req.StartAt,
			LeadMinutes: off,
			Text:        req.Text,
			ImageFileID: req.ImageFileID,
		}
		created = append(created, ev)
		s.sched.ScheduleEvent(id, ev.StartAt, ev.LeadMinutes)
		s.log.Info("event created",
			logx.Int64("event_id", id),
			logx.Time("start_at", ev.StartAt),
			logx.Int("lead_minutes", off))
	}
	return created, nil
}

// UpdateEvent applies a partial update. When the patch can move the fire time
// the reminder is rescheduled from the stored row, replacing any pending job.
func (s *Service) UpdateEvent(ctx context.Context, id int64, patch storage.EventPatch) error {
	if err := s.store.UpdateEvent(ctx, id, patch); err != nil {
		return err
	}
	if patch.AffectsTiming() {
		ev, err := s.store.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		s.sched.ScheduleEvent(ev.ID, ev.StartAt, ev.LeadMinutes)
	}
	s.log.Info("event updated", logx.Int64("event_id", id), logx.Bool("rescheduled", patch.AffectsTiming()))
	return nil
}

// DeleteEvent cancels the pending reminder and removes the event together
// with its subscriptions. Deleting a missing event is a no-op.
func (s *Service) DeleteEvent(ctx context.Context, id int64) error {
	s.sched.CancelEvent(id)
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.log.Info("event deleted", logx.Int64("event_id", id))
	return nil
}

// Subscribe opts a subscriber into an event. Subscribing to an event whose
// start time has passed fails with ErrEventPassed; subscribing twice is a
// no-op.
func (s *Service) Subscribe(ctx context.Context, subscriberID, eventID int64, now time.Time) error {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !ev.StartAt.After(now) {
		return ErrEventPassed
	}
	if err := s.store.Subscribe(ctx, subscriberID, eventID, now); err != nil {
		return err
	}
	s.log.Debug("subscribed", logx.Int64("subscriber_id", subscriberID), logx.Int64("event_id", eventID))
	return nil
}

// Unsubscribe removes the subscription. Idempotent.
func (s *Service) Unsubscribe(ctx context.Context, subscriberID, eventID int64) error {
	if err := s.store.Unsubscribe(ctx, subscriberID, eventID); err != nil {
		return err
	}
	s.log.Debug("unsubscribed", logx.Int64("subscriber_id", subscriberID), logx.Int64("event_id", eventID))
	return nil
}

// Restore rebuilds pending reminders from the store after a restart.
func (s *Service) Restore(ctx context.Context, now time.Time) error {
	return s.sched.RestoreAll(ctx, now)
}

// Read-side passthroughs for the presentation layer.

func (s *Service) Get(ctx context.Context, id int64) (storage.Event, error) {
	return s.store.GetEvent(ctx, id)
}

func (s *Service) ListFuture(ctx context.Context, now time.Time) ([]storage.Event, error) {
	return s.store.ListFutureEvents(ctx, now)
}

func (s *Service) IsSubscribed(ctx context.Context, subscriberID, eventID int64) (bool, error) {
	return s.store.IsSubscribed(ctx, subscriberID, eventID)
}

func (s *Service) CountSubscribers(ctx context.Context, eventID int64) (int, error) {
	return s.store.CountSubscribers(ctx, eventID)
}
