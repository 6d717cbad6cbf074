package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Command is a write applied inside one transaction. Result fields, if any,
// are set on the command itself.
type Command interface {
	apply(ctx context.Context, tx *sql.Tx) error
}

// Exec runs cmd in its own transaction.
func (s *Store) Exec(ctx context.Context, cmd Command) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := cmd.apply(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const scheduleCols = `id, user_id, message, scheduled_at, chats`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(r rowScanner) (Schedule, error) {
	var (
		sc    Schedule
		at    int64
		chats string
	)
	if err := r.Scan(&sc.ID, &sc.UserID, &sc.Message, &at, &chats); err != nil {
		return Schedule{}, err
	}
	sc.ScheduledAt = time.Unix(at, 0)
	if err := json.Unmarshal([]byte(chats), &sc.Chats); err != nil {
		return Schedule{}, fmt.Errorf("schedule %d chats: %w", sc.ID, err)
	}
	return sc, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func querySchedules(ctx context.Context, q querier, where string, args ...any) ([]Schedule, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+scheduleCols+` FROM schedules `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func getSchedule(ctx context.Context, q querier, id int64) (Schedule, error) {
	sc, err := scanSchedule(q.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, ErrNotFound
	}
	return sc, err
}

func (s *Store) Get(ctx context.Context, id int64) (Schedule, error) {
	if s == nil || s.db == nil {
		return Schedule{}, ErrClosed
	}
	return getSchedule(ctx, s.db, id)
}

func (s *Store) ListByUser(ctx context.Context, userID int64) ([]Schedule, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	return querySchedules(ctx, s.db, `WHERE user_id = ?`, userID)
}

func (s *Store) List(ctx context.Context) ([]Schedule, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	return querySchedules(ctx, s.db, ``)
}

func (s *Store) HasUser(ctx context.Context, userID int64) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE user_id = ?`, userID).Scan(&n)
	return n > 0, err
}

// CountUsers is used by diagnostics and tests.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&n)
	return n, err
}

func (s *Store) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(name, started_at, took_ms, err) VALUES(?,?,?,?)`,
		r.Name, r.StartedAt.UnixMilli(), r.Took.Milliseconds(), nullStr(r.Err),
	)
	return err
}

// RecentRuns returns the newest records first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, started_at, took_ms, COALESCE(err, '') FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		var (
			r      RunRecord
			at, ms int64
		)
		if err := rows.Scan(&r.Name, &at, &ms, &r.Err); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(at)
		r.Took = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func encodeChats(chats []int64) (string, error) {
	if chats == nil {
		chats = []int64{}
	}
	b, err := json.Marshal(chats)
	return string(b), err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
