package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/table-session/internal/model"
)

// ParticipantRepo provides access to session_participants.  Rows are
// hard-deleted when a diner leaves; the session boundary already scopes
// participants in time.
type ParticipantRepo struct {
	q DBTX
}

// NewParticipantRepo returns a ParticipantRepo running its statements on q.
func NewParticipantRepo(q DBTX) *ParticipantRepo { return &ParticipantRepo{q: q} }

// GetParticipant returns the participant with the given ID or ErrNotFound.
func (r *ParticipantRepo) GetParticipant(ctx context.Context, participantID uint64) (*model.Participant, error) {
	const q = `SELECT id, session_id, user_id, fantasy_name, joined_at
               FROM session_participants
               WHERE id = ?`
	var p model.Participant
	var userID sql.NullInt64
	err := r.q.QueryRowContext(ctx, q, participantID).Scan(&p.ID, &p.SessionID, &userID, &p.FantasyName, &p.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.UserID = nullableID(userID)
	p.JoinedAt = p.JoinedAt.UTC()
	return &p, nil
}

// ListParticipants returns the participants of a session in join order.
// An empty slice is returned for a session without participants.
func (r *ParticipantRepo) ListParticipants(ctx context.Context, sessionID uint64) ([]model.Participant, error) {
	const q = `SELECT id, session_id, user_id, fantasy_name, joined_at
               FROM session_participants
               WHERE session_id = ?
               ORDER BY joined_at, id`
	rows, err := r.q.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	participants := make([]model.Participant, 0)
	for rows.Next() {
		var p model.Participant
		var userID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.SessionID, &userID, &p.FantasyName, &p.JoinedAt); err != nil {
			return nil, err
		}
		p.UserID = nullableID(userID)
		p.JoinedAt = p.JoinedAt.UTC()
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return participants, nil
}

// CountParticipants returns how many participants a session has.
func (r *ParticipantRepo) CountParticipants(ctx context.Context, sessionID uint64) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_participants WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// CreateParticipant inserts a participant and fills in its ID.  A
// fantasy name or user already present in the session yields
// ErrDuplicate.
func (r *ParticipantRepo) CreateParticipant(ctx context.Context, p *model.Participant) error {
	const q = `INSERT INTO session_participants (session_id, user_id, fantasy_name, joined_at) VALUES (?, ?, ?, ?)`
	var userID any
	if p.UserID != nil {
		userID = *p.UserID
	}
	res, err := r.q.ExecContext(ctx, q, p.SessionID, userID, p.FantasyName, p.JoinedAt.UTC())
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
	p.ID = uint64(id)
	return nil
}

// RenameParticipant changes a participant's fantasy name.  The caller
// is expected to have checked that the participant exists; MySQL
// reports zero affected rows when the name is unchanged, so the count is
// not inspected.
func (r *ParticipantRepo) RenameParticipant(ctx context.Context, participantID uint64, name string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE session_participants SET fantasy_name = ? WHERE id = ?`, name, participantID)
	if err != nil && isDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}

// DeleteParticipant removes a participant.  It reports false when no
// row matched.
func (r *ParticipantRepo) DeleteParticipant(ctx context.Context, participantID uint64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM session_participants WHERE id = ?`, participantID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullableID(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	id := uint64(v.Int64)
	return &id
}
