package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Store is the persistence API used by the services.
//
// The event operations form the event store; the subscription operations form
// the subscription index. They are colocated because subscriptions reference
// events by id and event deletion cascades.
type Store interface {
	CreateEvent(ctx context.Context, e NewEvent) (int64, error)
	UpdateEvent(ctx context.Context, id int64, patch EventPatch) error
	GetEvent(ctx context.Context, id int64) (Event, error)
	DeleteEvent(ctx context.Context, id int64) error
	ListFutureEvents(ctx context.Context, now time.Time) ([]Event, error)

	Subscribe(ctx context.Context, subscriberID, eventID int64, now time.Time) error
	Unsubscribe(ctx context.Context, subscriberID, eventID int64) error
	IsSubscribed(ctx context.Context, subscriberID, eventID int64) (bool, error)
	CountSubscribers(ctx context.Context, eventID int64) (int, error)
	ListSubscribers(ctx context.Context, eventID int64) ([]int64, error)
	DeleteSubscriptionsForEvent(ctx context.Context, eventID int64) error

	// PruneEventsBefore removes events whose start time is before cutoff,
	// together with their subscriptions. Returns the number of events removed.
	PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
