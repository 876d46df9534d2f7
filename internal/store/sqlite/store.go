// Package sqlite keeps calendars and their events in a local SQLite file.
// Events are stored as iCalendar objects. A write patches the object the
// event was read from, so properties the event does not model are kept.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beekhof/mail-invites/internal/ics"
	"github.com/beekhof/mail-invites/internal/invite"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrUnknownCalendar is returned for writes to a calendar that was never
// created.
var ErrUnknownCalendar = errors.New("unknown calendar")

// Store is an invite.Store backed by SQLite.
type Store struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

var _ invite.Store = (*Store)(nil)

// Open opens (or creates) a database at the given path.
func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{conn: conn, path: dbPath, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// EnsureCalendar creates the calendar if it does not exist. Marking a
// calendar as default clears the flag on every other one.
func (s *Store) EnsureCalendar(ctx context.Context, cal invite.CalendarRef) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if cal.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE calendars SET is_default = 0 WHERE id != ?`, cal.ID); err != nil {
			return fmt.Errorf("clear default calendar: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO calendars (id, name, is_default, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, is_default = excluded.is_default`,
		cal.ID, cal.Name, cal.IsDefault, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert calendar %s: %w", cal.ID, err)
	}
	return tx.Commit()
}

// ListCalendars returns every calendar, default first.
func (s *Store) ListCalendars(ctx context.Context) ([]invite.CalendarRef, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, name, is_default FROM calendars ORDER BY is_default DESC, created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	defer rows.Close()

	var cals []invite.CalendarRef
	for rows.Next() {
		var c invite.CalendarRef
		if err := rows.Scan(&c.ID, &c.Name, &c.IsDefault); err != nil {
			return nil, fmt.Errorf("scan calendar: %w", err)
		}
		cals = append(cals, c)
	}
	return cals, rows.Err()
}

// FetchEventByUID searches the given calendars in order. With no calendars
// every calendar is searched.
func (s *Store) FetchEventByUID(ctx context.Context, uid string, calendars []invite.CalendarRef) (*invite.Event, *invite.CalendarRef, error) {
	if len(calendars) == 0 {
		all, err := s.ListCalendars(ctx)
		if err != nil {
			return nil, nil, err
		}
		calendars = all
	}

	for _, cal := range calendars {
		var id, data string
		err := s.conn.QueryRowContext(ctx,
			`SELECT id, data FROM events WHERE calendar_id = ? AND uid = ?`, cal.ID, uid,
		).Scan(&id, &data)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("fetch event %s: %w", uid, err)
		}

		ev, err := ics.DecodeObject([]byte(data))
		if err != nil {
			return nil, nil, fmt.Errorf("decode stored event %s: %w", id, err)
		}
		ev.StoreID = id
		ev.Source = invite.SourceStore
		found := cal
		return &ev, &found, nil
	}
	return nil, nil, nil
}

// ResolveCalendarKeys checks that the calendar exists. Local calendars are
// not encrypted, so no key material is returned.
func (s *Store) ResolveCalendarKeys(ctx context.Context, calendarID string) (invite.CalendarKeys, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT 1 FROM calendars WHERE id = ?`, calendarID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return invite.CalendarKeys{}, fmt.Errorf("%w: %s", ErrUnknownCalendar, calendarID)
	}
	if err != nil {
		return invite.CalendarKeys{}, fmt.Errorf("resolve calendar %s: %w", calendarID, err)
	}
	return invite.CalendarKeys{MemberID: calendarID}, nil
}

// PersistEvent inserts or replaces the event with the same UID in cal.
func (s *Store) PersistEvent(ctx context.Context, ev invite.Event, cal invite.CalendarRef, keys invite.CalendarKeys) (invite.Event, error) {
	now := s.now()
	data, err := ics.Encode(ev, "", now)
	if err != nil {
		return invite.Event{}, err
	}

	var id string
	err = s.conn.QueryRowContext(ctx, `SELECT id FROM events WHERE calendar_id = ? AND uid = ?`, cal.ID, ev.UID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
	case err != nil:
		return invite.Event{}, fmt.Errorf("look up event %s: %w", ev.UID, err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO events (id, calendar_id, uid, sequence, status, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(calendar_id, uid) DO UPDATE SET
			sequence = excluded.sequence,
			status = excluded.status,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		id, cal.ID, ev.UID, ev.Sequence, ev.Status, string(data), now.UTC().UnixMilli(),
	)
	if err != nil {
		return invite.Event{}, fmt.Errorf("write event %s: %w", ev.UID, err)
	}

	saved := ev.Clone()
	saved.StoreID = id
	saved.Source = invite.SourceStore
	saved.Method = ""
	saved.Raw = data
	return saved, nil
}

// EventCount returns the number of stored events.
func (s *Store) EventCount(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
