package service

import (
	"context"
	"errors"

	"github.com/iliyamo/table-session/internal/model"
	"github.com/iliyamo/table-session/internal/repository"
)

// lockParticipant resolves a participant, locks the table its session
// is held at and reads the participant again under that lock, so a
// departure that committed while we waited is observed.  All writers
// take the table lock before touching participants or orders, which
// keeps the lock order identical everywhere.
func lockParticipant(ctx context.Context, tx repository.Store, participantID uint64) (*model.Participant, *model.TableSession, error) {
	p, err := tx.GetParticipant(ctx, participantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, nil, internal("load participant", err)
	}
	session, err := tx.GetSession(ctx, p.SessionID)
	if err != nil {
		return nil, nil, internal("load session", err)
	}
	if _, err := tx.LockTable(ctx, session.TableID); err != nil {
		return nil, nil, internal("lock table", err)
	}
	p, err = tx.GetParticipant(ctx, participantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, nil, internal("load participant", err)
	}
	return p, session, nil
}
