package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- events ----

func (s *sqliteStore) CreateEvent(ctx context.Context, e NewEvent) (int64, error) {
	if e.LeadMinutes <= 0 {
		return 0, ErrInvalidLeadTime
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events(start_at, lead_minutes, text, image_file_id)
		 VALUES(?,?,?,?)`,
		e.StartAt.UnixMilli(), e.LeadMinutes, e.Text, nullStr(e.ImageFileID),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) UpdateEvent(ctx context.Context, id int64, patch EventPatch) error {
	if patch.isEmpty() {
		return nil
	}
	if patch.LeadMinutes != nil && *patch.LeadMinutes <= 0 {
		return ErrInvalidLeadTime
	}

	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if patch.StartAt != nil {
		sets = append(sets, "start_at = ?")
		args = append(args, patch.StartAt.UnixMilli())
	}
	if patch.LeadMinutes != nil {
		sets = append(sets, "lead_minutes = ?")
		args = append(args, *patch.LeadMinutes)
	}
	if patch.Text != nil {
		sets = append(sets, "text = ?")
		args = append(args, *patch.Text)
	}
	if patch.ImageFileID != nil {
		sets = append(sets, "image_file_id = ?")
		args = append(args, nullStr(*patch.ImageFileID))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE events SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) GetEvent(ctx context.Context, id int64) (Event, error) {
	var (
		e     Event
		ms    int64
		image sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, start_at, lead_minutes, text, image_file_id FROM events WHERE id = ?`, id,
	).Scan(&e.ID, &ms, &e.LeadMinutes, &e.Text, &image)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, err
	}
	e.StartAt = time.UnixMilli(ms).UTC()
	e.ImageFileID = image.String
	return e, nil
}

// DeleteEvent removes the event and all its subscriptions.
// Deleting a nonexistent id is a no-op.
func (s *sqliteStore) DeleteEvent(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE event_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) ListFutureEvents(ctx context.Context, now time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, start_at, lead_minutes, text, image_file_id
		 FROM events WHERE start_at > ? ORDER BY start_at ASC`,
		now.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e     Event
			ms    int64
			image sql.NullString
		)
		if err := rows.Scan(&e.ID, &ms, &e.LeadMinutes, &e.Text, &image); err != nil {
			return nil, err
		}
		e.StartAt = time.UnixMilli(ms).UTC()
		e.ImageFileID = image.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- subscriptions ----

// Subscribe is idempotent: subscribing twice leaves one row.
func (s *sqliteStore) Subscribe(ctx context.Context, subscriberID, eventID int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions(subscriber_id, event_id, subscribed_at)
		 VALUES(?,?,?)`,
		subscriberID, eventID, now.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Unsubscribe(ctx context.Context, subscriberID, eventID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE subscriber_id = ? AND event_id = ?`,
		subscriberID, eventID,
	)
	return err
}

func (s *sqliteStore) IsSubscribed(ctx context.Context, subscriberID, eventID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM subscriptions WHERE subscriber_id = ? AND event_id = ?`,
		subscriberID, eventID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) CountSubscribers(ctx context.Context, eventID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE event_id = ?`, eventID,
	).Scan(&n)
	return n, err
}

func (s *sqliteStore) ListSubscribers(ctx context.Context, eventID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subscriber_id FROM subscriptions WHERE event_id = ?`, eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteSubscriptionsForEvent(ctx context.Context, eventID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE event_id = ?`, eventID)
	return err
}

// ---- maintenance ----

func (s *sqliteStore) PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	ms := cutoff.UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE event_id IN (SELECT id FROM events WHERE start_at < ?)`, ms,
	); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE start_at < ?`, ms)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
