package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// EnsureUser inserts the user if absent.
type EnsureUser struct {
	UserID int64
	Now    time.Time
}

func (c *EnsureUser) apply(ctx context.Context, tx *sql.Tx) error {
	return ensureUser(ctx, tx, c.UserID, c.Now)
}

func ensureUser(ctx context.Context, tx *sql.Tx, userID int64, now time.Time) error {
	if now.IsZero() {
		now = time.Now()
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users(user_id, created_at) VALUES(?, ?)`, userID, now.Unix())
	return err
}

// DeleteUser removes the user and, by cascade, their schedules.
// Deleted lists the ids of the removed schedules.
type DeleteUser struct {
	UserID int64

	Deleted []int64
}

func (c *DeleteUser) apply(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM schedules WHERE user_id = ? ORDER BY id`, c.UserID)
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, c.UserID); err != nil {
		return err
	}
	c.Deleted = ids
	return nil
}

// CreateSchedules stores one schedule per time. Each ScheduledAt is today at
// that time in Location, or tomorrow if already elapsed.
type CreateSchedules struct {
	UserID   int64
	Message  int64
	Times    []Clock
	Chats    []int64
	Now      time.Time
	Location *time.Location

	Created []Schedule
}

func (c *CreateSchedules) apply(ctx context.Context, tx *sql.Tx) error {
	if len(c.Times) == 0 {
		return errors.New("create schedules: no times")
	}
	if len(c.Chats) == 0 {
		return errors.New("create schedules: no chats")
	}
	now := c.Now
	if now.IsZero() {
		now = time.Now()
	}
	if err := ensureUser(ctx, tx, c.UserID, now); err != nil {
		return err
	}
	chats, err := encodeChats(c.Chats)
	if err != nil {
		return err
	}
	created := make([]Schedule, 0, len(c.Times))
	for _, t := range c.Times {
		at := NextAt(t, now, c.Location)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO schedules(user_id, message, scheduled_at, chats) VALUES(?,?,?,?)`,
			c.UserID, c.Message, at.Unix(), chats)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		created = append(created, Schedule{
			ID:          id,
			UserID:      c.UserID,
			Message:     c.Message,
			ScheduledAt: at,
			Chats:       append([]int64(nil), c.Chats...),
		})
	}
	c.Created = created
	return nil
}

// SetTime moves a schedule to a new time of day. Schedule holds the result.
type SetTime struct {
	ID       int64
	Time     Clock
	Now      time.Time
	Location *time.Location

	Schedule Schedule
}

func (c *SetTime) apply(ctx context.Context, tx *sql.Tx) error {
	now := c.Now
	if now.IsZero() {
		now = time.Now()
	}
	at := NextAt(c.Time, now, c.Location)
	if err := updateOne(ctx, tx, `UPDATE schedules SET scheduled_at = ? WHERE id = ?`, at.Unix(), c.ID); err != nil {
		return err
	}
	sc, err := getSchedule(ctx, tx, c.ID)
	c.Schedule = sc
	return err
}

type SetMessage struct {
	ID      int64
	Message int64
}

func (c *SetMessage) apply(ctx context.Context, tx *sql.Tx) error {
	return updateOne(ctx, tx, `UPDATE schedules SET message = ? WHERE id = ?`, c.Message, c.ID)
}

// SetChats replaces the destination set.
type SetChats struct {
	ID    int64
	Chats []int64
}

func (c *SetChats) apply(ctx context.Context, tx *sql.Tx) error {
	if len(c.Chats) == 0 {
		return errors.New("set chats: empty selection")
	}
	chats, err := encodeChats(c.Chats)
	if err != nil {
		return err
	}
	return updateOne(ctx, tx, `UPDATE schedules SET chats = ? WHERE id = ?`, chats, c.ID)
}

type DeleteSchedule struct {
	ID int64
}

func (c *DeleteSchedule) apply(ctx context.Context, tx *sql.Tx) error {
	return updateOne(ctx, tx, `DELETE FROM schedules WHERE id = ?`, c.ID)
}

// AdvanceElapsed moves every schedule whose time is before Now forward by
// whole days and persists it. Schedules receives the full list afterwards.
type AdvanceElapsed struct {
	Now      time.Time
	Location *time.Location

	Schedules []Schedule
	Advanced  int
}

func (c *AdvanceElapsed) apply(ctx context.Context, tx *sql.Tx) error {
	now := c.Now
	if now.IsZero() {
		now = time.Now()
	}
	all, err := querySchedules(ctx, tx, ``)
	if err != nil {
		return err
	}
	advanced := 0
	for i := range all {
		if !all[i].ScheduledAt.Before(now) {
			continue
		}
		next := Advance(all[i].ScheduledAt, now, c.Location)
		if _, err := tx.ExecContext(ctx, `UPDATE schedules SET scheduled_at = ? WHERE id = ?`, next.Unix(), all[i].ID); err != nil {
			return err
		}
		all[i].ScheduledAt = next
		advanced++
	}
	c.Schedules = all
	c.Advanced = advanced
	return nil
}

func updateOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
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
