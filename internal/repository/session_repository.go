package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/table-session/internal/model"
)

// SessionRepo provides access to the table_sessions table.  All
// timestamps are stored in UTC.
type SessionRepo struct {
	q DBTX
}

// NewSessionRepo returns a SessionRepo running its statements on q.
func NewSessionRepo(q DBTX) *SessionRepo { return &SessionRepo{q: q} }

// GetSession returns the session with the given ID, active or not.
func (r *SessionRepo) GetSession(ctx context.Context, sessionID uint64) (*model.TableSession, error) {
	const q = `SELECT id, table_id, start_time, end_time, is_active
               FROM table_sessions
               WHERE id = ?`
	return scanSession(r.q.QueryRowContext(ctx, q, sessionID))
}

// GetActiveSessionByTable returns the active session of a table, or
// ErrNotFound when nobody is seated there.
func (r *SessionRepo) GetActiveSessionByTable(ctx context.Context, tableID uint64) (*model.TableSession, error) {
	const q = `SELECT id, table_id, start_time, end_time, is_active
               FROM table_sessions
               WHERE table_id = ? AND is_active = 1
               LIMIT 1`
	return scanSession(r.q.QueryRowContext(ctx, q, tableID))
}

// CreateSession inserts an active session and fills in its ID.  The
// unique index on the generated active_table_id column rejects a second
// active session for the same table with ErrDuplicate.
func (r *SessionRepo) CreateSession(ctx context.Context, s *model.TableSession) error {
	const q = `INSERT INTO table_sessions (table_id, start_time, is_active) VALUES (?, ?, 1)`
	res, err := r.q.ExecContext(ctx, q, s.TableID, s.StartTime.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.IsActive = true
	return nil
}

// EndSession marks an active session inactive and stamps its end time.
// Ending a session that is already inactive returns ErrNotFound.
func (r *SessionRepo) EndSession(ctx context.Context, sessionID uint64, endTime time.Time) error {
	const q = `UPDATE table_sessions SET is_active = 0, end_time = ? WHERE id = ? AND is_active = 1`
	res, err := r.q.ExecContext(ctx, q, endTime.UTC(), sessionID)
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

func scanSession(row *sql.Row) (*model.TableSession, error) {
	var s model.TableSession
	var end sql.NullTime
	err := row.Scan(&s.ID, &s.TableID, &s.StartTime, &end, &s.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if end.Valid {
		t := end.Time.UTC()
		s.EndTime = &t
	}
	s.StartTime = s.StartTime.UTC()
	return &s, nil
}
