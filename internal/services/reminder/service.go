package reminder

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Deliverer receives the event id of every fired reminder.
// Implemented by the fanout service.
type Deliverer interface {
	Deliver(ctx context.Context, eventID int64) error
}

// EventSource is the slice of the store the scheduler needs for RestoreAll.
type EventSource interface {
	ListFutureEvents(ctx context.Context, now time.Time) ([]storage.Event, error)
}

// Job is a snapshot of one pending reminder.
type Job struct {
	EventID int64
	FireAt  time.Time
}

type Service struct {
	log       logx.Logger
	events    EventSource
	deliverer Deliverer

	mu      sync.Mutex
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc

	// timers are runtime state; ver guards against stale callbacks from
	// timers that were replaced or cancelled after they already popped.
	timers map[int64]*time.Timer
	fireAt map[int64]time.Time
	ver    map[int64]uint64

	// fireWG tracks in-flight deliveries so Stop can wait for them.
	fireWG sync.WaitGroup
}

func New(events EventSource, deliverer Deliverer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:       log,
		events:    events,
		deliverer: deliverer,
		timers:    map[int64]*time.Timer{},
		fireAt:    map[int64]time.Time{},
		ver:       map[int64]uint64{},
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.log.Info("service started")
}

// Stop cancels all pending timers and waits for in-flight deliveries to
// finish (bounded by ctx). In-flight fires are allowed to complete;
// cancellation only prevents future firings.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.cancel = nil
	s.runCtx = nil
	for id, t := range s.timers {
		_ = t.Stop()
		delete(s.timers, id)
		delete(s.fireAt, id)
		s.ver[id]++
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.fireWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("service stopped")
}

// ScheduleEvent installs (or replaces) the reminder timer for an event.
//
// fire time = startAt - leadMinutes. When the fire time is not in the
// future, no job is installed and any existing one is removed: admins may
// create or move events into the past, and a reminder whose window closed
// has no catch-up value.
func (s *Service) ScheduleEvent(eventID int64, startAt time.Time, leadMinutes int) {
	fireAt := startAt.Add(-time.Duration(leadMinutes) * time.Minute)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replace-in-place: stop any existing timer and invalidate its callback.
	if t, ok := s.timers[eventID]; ok {
		_ = t.Stop()
		delete(s.timers, eventID)
		delete(s.fireAt, eventID)
	}
	ver := s.ver[eventID] + 1
	s.ver[eventID] = ver

	delay := time.Until(fireAt)
	if delay <= 0 {
		s.log.Debug("reminder window already closed; skipping",
			logx.Int64("event_id", eventID), logx.Time("fire_at", fireAt))
		return
	}
	if !s.started {
		s.log.Warn("schedule requested before start; ignoring", logx.Int64("event_id", eventID))
		return
	}

	s.fireAt[eventID] = fireAt
	s.timers[eventID] = time.AfterFunc(delay, func() { s.fire(eventID, ver) })
	s.log.Debug("reminder scheduled",
		logx.Int64("event_id", eventID),
		logx.Time("fire_at", fireAt),
		logx.Duration("in", delay))
}

// CancelEvent removes any pending timer for the event. Idempotent.
func (s *Service) CancelEvent(eventID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[eventID]; ok {
		_ = t.Stop()
		delete(s.timers, eventID)
		delete(s.fireAt, eventID)
		s.ver[eventID]++
		s.log.Debug("reminder cancelled", logx.Int64("event_id", eventID))
	}
}

// RestoreAll rebuilds pending timers from the event store. This is the sole
// recovery path after a restart; it is idempotent because ScheduleEvent
// replaces by event id.
func (s *Service) RestoreAll(ctx context.Context, now time.Time) error {
	events, err := s.events.ListFutureEvents(ctx, now)
	if err != nil {
		return err
	}
	restored := 0
	for _, e := range events {
		s.ScheduleEvent(e.ID, e.StartAt, e.LeadMinutes)
		s.mu.Lock()
		if _, ok := s.timers[e.ID]; ok {
			restored++
		}
		s.mu.Unlock()
	}
	s.log.Info("reminders restored", logx.Int("future_events", len(events)), logx.Int("pending", restored))
	return nil
}

// Pending returns a snapshot of pending jobs, ordered by fire time.
func (s *Service) Pending() []Job {
	s.mu.Lock()
	out := make([]Job, 0, len(s.fireAt))
	for id, at := range s.fireAt {
		out = append(out, Job{EventID: id, FireAt: at})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].EventID < out[j].EventID
	})
	return out
}

// fire runs in the timer's goroutine. A stale version means the job was
// replaced or cancelled after the timer popped; such callbacks are dropped.
func (s *Service) fire(eventID int64, ver uint64) {
	s.mu.Lock()
	if s.ver[eventID] != ver || !s.started {
		s.mu.Unlock()
		return
	}
	// Consume the job before delivering: a fired job is terminal.
	delete(s.timers, eventID)
	delete(s.fireAt, eventID)
	delete(s.ver, eventID)
	ctx := s.runCtx
	s.fireWG.Add(1)
	s.mu.Unlock()

	defer s.fireWG.Done()
	defer func() {
		// A failing fanout must never take down the scheduler.
		if r := recover(); r != nil {
			s.log.Error("panic in reminder delivery",
				logx.Int64("event_id", eventID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	if err := s.deliverer.Deliver(ctx, eventID); err != nil {
		// The job is still consumed: one-shot reminders are not retried.
		s.log.Error("reminder delivery failed", logx.Int64("event_id", eventID), logx.Err(err))
	}
}
