package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-session/internal/model"
	"github.com/iliyamo/table-session/internal/queue"
	"github.com/iliyamo/table-session/internal/repository"
)

// JoinRequest asks for a seat at a table.  UserID is nil for anonymous
// guests; an empty FantasyName lets the coordinator pick one.
type JoinRequest struct {
	TableID     uint64
	UserID      *uint64
	FantasyName string
}

// SessionInfo describes the session a participant ended up in.
type SessionInfo struct {
	SessionID        uint64    `json:"session_id"`
	TableID          uint64    `json:"table_id"`
	TableNumber      uint32    `json:"table_number"`
	Capacity         uint32    `json:"capacity"`
	ParticipantCount int       `json:"participant_count"`
	StartTime        time.Time `json:"start_time"`
}

// JoinResult is returned by a successful JoinTable.
type JoinResult struct {
	ParticipantID uint64      `json:"participant_id"`
	FantasyName   string      `json:"fantasy_name"`
	NewSession    bool        `json:"new_session"`
	Session       SessionInfo `json:"session"`
}

// TableStatus is the read-only view of a table shown before check-in.
type TableStatus struct {
	Table          model.Table  `json:"table"`
	Session        *SessionInfo `json:"session,omitempty"`
	SeatsAvailable int          `json:"seats_available"`
}

// ErrConcurrentCheckin is returned when the store rejects a second
// active session for a table.  The table row lock makes this
// unreachable for writers going through the coordinator.
var ErrConcurrentCheckin = conflict("table session changed concurrently, try again")

// ErrDuplicateParticipant is returned when the store's unique keys
// reject a participant the in-transaction checks accepted.
var ErrDuplicateParticipant = conflict("participant already in session or name taken")

// CheckinCoordinator turns a "join table" request into a seat in the
// table's single active session.
//
// Every check-in locks the table row first.  That serializes concurrent
// check-ins and departures at one table across all service processes,
// so the capacity count and the set of taken names read afterwards
// cannot change before the transaction commits.  Locking the table
// rather than the session row also covers the case where no session
// exists yet.
type CheckinCoordinator struct {
	store repository.Store
	names NameAssigner
	deps
}

// NewCheckinCoordinator returns a coordinator using store.  A nil names
// falls back to NewFantasyNames.
func NewCheckinCoordinator(store repository.Store, names NameAssigner, opts ...Option) *CheckinCoordinator {
	if store == nil {
		panic("nil store passed to NewCheckinCoordinator")
	}
	if names == nil {
		names = NewFantasyNames()
	}
	return &CheckinCoordinator{store: store, names: names, deps: newDeps(opts)}
}

// JoinTable attaches the caller to the table's active session, starting
// one when the table is free.  It fails with NotFound for a missing or
// inactive table, Conflict when the table is full, the user is already
// seated or the requested name is taken, and Validation for a malformed
// name.
func (c *CheckinCoordinator) JoinTable(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	logCtx := c.log.WithField("table_id", req.TableID)
	if req.UserID != nil {
		logCtx = logCtx.WithField("user_id", *req.UserID)
	}
	custom := normalizeName(req.FantasyName)

	var result JoinResult
	err := c.store.Transaction(ctx, func(tx repository.Store) error {
		table, err := tx.LockTable(ctx, req.TableID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTableNotFound
		}
		if err != nil {
			return internal("load table", err)
		}
		if !table.IsActive {
			return ErrTableNotFound
		}

		newSession := false
		var participants []model.Participant
		session, err := tx.GetActiveSessionByTable(ctx, table.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			session = &model.TableSession{TableID: table.ID, StartTime: c.now().UTC()}
			if err := tx.CreateSession(ctx, session); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return ErrConcurrentCheckin
				}
				return internal("create session", err)
			}
			newSession = true
		case err != nil:
			return internal("load active session", err)
		default:
			participants, err = tx.ListParticipants(ctx, session.ID)
			if err != nil {
				return internal("list participants", err)
			}
		}

		if len(participants) >= int(table.Capacity) {
			return ErrTableAtCapacity
		}
		taken := make(map[string]struct{}, len(participants))
		for _, p := range participants {
			if req.UserID != nil && p.UserID != nil && *p.UserID == *req.UserID {
				return ErrAlreadyInSession
			}
			taken[p.FantasyName] = struct{}{}
		}

		name := custom
		if name != "" {
			if err := c.names.Validate(name); err != nil {
				return asValidation(err)
			}
			if _, ok := taken[name]; ok {
				return ErrNameTaken
			}
		} else {
			name = c.names.Generate(taken)
		}

		p := &model.Participant{
			SessionID:   session.ID,
			UserID:      req.UserID,
			FantasyName: name,
			JoinedAt:    c.now().UTC(),
		}
		if err := tx.CreateParticipant(ctx, p); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateParticipant
			}
			return internal("insert participant", err)
		}

		count, err := tx.CountParticipants(ctx, session.ID)
		if err != nil {
			return internal("count participants", err)
		}
		result = JoinResult{
			ParticipantID: p.ID,
			FantasyName:   p.FantasyName,
			NewSession:    newSession,
			Session:       sessionInfo(table, session, count),
		}
		return nil
	})
	if err != nil {
		c.logFailure(logCtx, "join table", err)
		return nil, err
	}

	logCtx.WithFields(logrus.Fields{
		"session_id":     result.Session.SessionID,
		"participant_id": result.ParticipantID,
		"new_session":    result.NewSession,
	}).Info("participant joined")
	c.publish(ctx, queue.SessionEvent{
		Type:          queue.EventParticipantJoined,
		SessionID:     result.Session.SessionID,
		TableID:       result.Session.TableID,
		ParticipantID: result.ParticipantID,
		FantasyName:   result.FantasyName,
	})
	c.tableChanged(ctx, result.Session.TableID)
	return &result, nil
}

// RenameParticipant changes a participant's fantasy name, enforcing the
// same format and uniqueness rules as JoinTable.  Renaming to the
// current name succeeds without a write.
func (c *CheckinCoordinator) RenameParticipant(ctx context.Context, participantID uint64, newName string) (*model.Participant, error) {
	logCtx := c.log.WithField("participant_id", participantID)
	name := normalizeName(newName)

	var result model.Participant
	var tableID uint64
	renamed := false
	err := c.store.Transaction(ctx, func(tx repository.Store) error {
		p, s, err := lockParticipant(ctx, tx, participantID)
		if err != nil {
			return err
		}
		tableID = s.TableID
		if err := c.names.Validate(name); err != nil {
			return asValidation(err)
		}
		if name == p.FantasyName {
			result = *p
			return nil
		}
		participants, err := tx.ListParticipants(ctx, p.SessionID)
		if err != nil {
			return internal("list participants", err)
		}
		for _, other := range participants {
			if other.ID != p.ID && other.FantasyName == name {
				return ErrNameTaken
			}
		}
		if err := tx.RenameParticipant(ctx, p.ID, name); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrNameTaken
			}
			return internal("rename participant", err)
		}
		p.FantasyName = name
		result = *p
		renamed = true
		return nil
	})
	if err != nil {
		c.logFailure(logCtx, "rename participant", err)
		return nil, err
	}
	if renamed {
		logCtx.WithField("session_id", result.SessionID).Info("participant renamed")
		c.publish(ctx, queue.SessionEvent{
			Type:          queue.EventParticipantRenamed,
			SessionID:     result.SessionID,
			TableID:       tableID,
			ParticipantID: result.ID,
			FantasyName:   result.FantasyName,
		})
	}
	return &result, nil
}

// ListParticipants returns the participants of a session in join order.
func (c *CheckinCoordinator) ListParticipants(ctx context.Context, sessionID uint64) ([]model.Participant, error) {
	if _, err := c.store.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, internal("load session", err)
	}
	participants, err := c.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, internal("list participants", err)
	}
	return participants, nil
}

// GetTable returns a table together with its active session, if any.
func (c *CheckinCoordinator) GetTable(ctx context.Context, tableID uint64) (*TableStatus, error) {
	table, err := c.store.GetTable(ctx, tableID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTableNotFound
	}
	if err != nil {
		return nil, internal("load table", err)
	}
	status := &TableStatus{Table: *table}
	if !table.IsActive {
		return status, nil
	}
	session, err := c.store.GetActiveSessionByTable(ctx, table.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status.SeatsAvailable = int(table.Capacity)
		return status, nil
	case err != nil:
		return nil, internal("load active session", err)
	}
	count, err := c.store.CountParticipants(ctx, session.ID)
	if err != nil {
		return nil, internal("count participants", err)
	}
	info := sessionInfo(table, session, count)
	status.Session = &info
	if free := int(table.Capacity) - count; free > 0 {
		status.SeatsAvailable = free
	}
	return status, nil
}

func sessionInfo(t *model.Table, s *model.TableSession, count int) SessionInfo {
	return SessionInfo{
		SessionID:        s.ID,
		TableID:          t.ID,
		TableNumber:      t.TableNumber,
		Capacity:         t.Capacity,
		ParticipantCount: count,
		StartTime:        s.StartTime,
	}
}

// asValidation keeps typed errors from a NameAssigner and wraps anything
// else as a validation failure.
func asValidation(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return validation(err.Error())
}
