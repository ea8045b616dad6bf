package fanout

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/storage"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Store is the slice of the persistence layer the fanout reads and reconciles.
type Store interface {
	GetEvent(ctx context.Context, id int64) (storage.Event, error)
	ListSubscribers(ctx context.Context, eventID int64) ([]int64, error)
	Unsubscribe(ctx context.Context, subscriberID, eventID int64) error
}

type Config struct {
	Workers    int
	QueueSize  int
	RatePerSec int
	Timezone   *time.Location
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.Timezone == nil {
		c.Timezone = time.Local
	}
	return c
}

type Service struct {
	store  Store
	sender transport.Sender
	log    logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, store Store, sender transport.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		store:   store,
		sender:  sender,
		log:     log,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Apply swaps worker/rate settings at runtime. Safe to call concurrently
// with in-flight deliveries; they snapshot the config when they start.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Deliver broadcasts the reminder for one event to its current subscribers.
//
// A missing event (deleted between schedule and fire) is a no-op. Store
// failures propagate; per-recipient send failures never do.
func (s *Service) Deliver(ctx context.Context, eventID int64) error {
	start := time.Now()

	ev, err := s.store.GetEvent(ctx, eventID)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug("event gone before fire; skipping", logx.Int64("event_id", eventID))
		return nil
	}
	if err != nil {
		return err
	}

	subscribers, err := s.store.ListSubscribers(ctx, eventID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	s.log.Info("reminder fanout started",
		logx.Int64("event_id", eventID),
		logx.Int("subscribers", len(subscribers)))

	if len(subscribers) == 0 {
		return nil
	}

	text := composeReminder(ev, cfg.Timezone)

	workers := cfg.Workers
	if workers > len(subscribers) {
		workers = len(subscribers)
	}

	queue := make(chan int64, cfg.QueueSize)
	var wg sync.WaitGroup
	var dropped, failed int64
	var cmu sync.Mutex

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for sub := range queue {
				switch s.sendOne(ctx, lim, ev, sub, text) {
				case sendDropped:
					cmu.Lock()
					dropped++
					cmu.Unlock()
				case sendFailed:
					cmu.Lock()
					failed++
					cmu.Unlock()
				}
			}
		}()
	}
	for _, sub := range subscribers {
		queue <- sub
	}
	close(queue)
	wg.Wait()

	fields := []logx.Field{
		logx.Int64("event_id", eventID),
		logx.Int("subscribers", len(subscribers)),
		logx.Int64("unsubscribed", dropped),
		logx.Int64("failed", failed),
		logx.Duration("dur", time.Since(start)),
	}
	if failed > 0 || dropped > 0 {
		s.log.Warn("reminder fanout finished with failures", fields...)
	} else {
		s.log.Info("reminder fanout finished", fields...)
	}
	return nil
}

type sendOutcome int

const (
	sendOK sendOutcome = iota
	sendDropped
	sendFailed
)

func (s *Service) sendOne(ctx context.Context, lim *rate.Limiter, ev storage.Event, subscriberID int64, text string) sendOutcome {
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			s.log.Error("reminder send aborted",
				logx.Int64("event_id", ev.ID), logx.Int64("subscriber_id", subscriberID), logx.Err(err))
			return sendFailed
		}
	}

	to := transport.Recipient{ChatID: subscriberID}
	var err error
	if ev.ImageFileID != "" {
		_, err = s.sender.SendPhoto(ctx, to, ev.ImageFileID, text, nil)
	} else {
		_, err = s.sender.SendText(ctx, to, text, nil)
	}
	if err == nil {
		return sendOK
	}

	if errors.Is(err, transport.ErrRecipientUnreachable) {
		// Clean the index preemptively: this subscriber can never be reached
		// again, and the event is already past once the reminder fired.
		s.log.Warn("recipient unreachable; dropping subscription",
			logx.Int64("event_id", ev.ID), logx.Int64("subscriber_id", subscriberID), logx.Err(err))
		if uerr := s.store.Unsubscribe(ctx, subscriberID, ev.ID); uerr != nil {
			s.log.Error("failed to drop subscription",
				logx.Int64("event_id", ev.ID), logx.Int64("subscriber_id", subscriberID), logx.Err(uerr))
		}
		return sendDropped
	}

	// Transient failure: log and drop, no retry.
	s.log.Error("reminder send failed",
		logx.Int64("event_id", ev.ID), logx.Int64("subscriber_id", subscriberID), logx.Err(err))
	return sendFailed
}

func composeReminder(ev storage.Event, loc *time.Location) string {
	return "Upcoming event!\n\n" +
		ev.Text + "\n" +
		"📅 " + ev.StartAt.In(loc).Format("02.01.2006 15:04")
}
