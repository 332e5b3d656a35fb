package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-session/internal/model"
	"github.com/iliyamo/table-session/internal/queue"
	"github.com/iliyamo/table-session/internal/repository"
)

// OrderLookup is what the coordinator needs from the order component.
// repository.OrderRepo satisfies it; tests substitute a stub.
type OrderLookup interface {
	OrdersBySession(ctx context.Context, sessionID uint64) ([]model.Order, error)
	CountPendingOrders(ctx context.Context, participantID uint64) (int, error)
}

// Summary aggregates the orders of a session.  Participants are listed
// in join order.  IndividualTotals has an entry for every present
// participant and for anyone who left after their orders were
// finalized.  Cancelled orders are listed but not counted.
type Summary struct {
	SessionID        uint64              `json:"session_id"`
	TableID          uint64              `json:"table_id"`
	TableNumber      uint32              `json:"table_number"`
	IsActive         bool                `json:"is_active"`
	Participants     []model.Participant `json:"participants"`
	Orders           []model.Order       `json:"orders"`
	TotalAmountCents int64               `json:"total_amount_cents"`
	IndividualTotals map[uint64]int64    `json:"individual_totals"`
}

// GroupOrderCoordinator handles departures, order hand-offs and the
// group order summary.
type GroupOrderCoordinator struct {
	store  repository.Store
	orders OrderLookup
	deps
}

// NewGroupOrderCoordinator returns a coordinator using store for its
// transactions and orders for the summary.  A nil orders uses store.
func NewGroupOrderCoordinator(store repository.Store, orders OrderLookup, opts ...Option) *GroupOrderCoordinator {
	if store == nil {
		panic("nil store passed to NewGroupOrderCoordinator")
	}
	if orders == nil {
		orders = store
	}
	return &GroupOrderCoordinator{store: store, orders: orders, deps: newDeps(opts)}
}

// LeaveSession removes a participant from their session.  It reports
// false when the participant does not exist.  A participant with
// unfinalized orders cannot leave.  When the last participant leaves,
// the session is closed.
func (c *GroupOrderCoordinator) LeaveSession(ctx context.Context, participantID uint64) (bool, error) {
	logCtx := c.log.WithField("participant_id", participantID)

	var (
		left          bool
		sessionClosed bool
		participant   *model.Participant
		session       *model.TableSession
	)
	err := c.store.Transaction(ctx, func(tx repository.Store) error {
		p, s, err := lockParticipant(ctx, tx, participantID)
		if errors.Is(err, ErrParticipantNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		pending, err := tx.CountPendingOrders(ctx, p.ID)
		if err != nil {
			return internal("count pending orders", err)
		}
		if pending > 0 {
			return ErrPendingOrders
		}

		deleted, err := tx.DeleteParticipant(ctx, p.ID)
		if err != nil {
			return internal("delete participant", err)
		}
		if !deleted {
			return nil
		}

		remaining, err := tx.CountParticipants(ctx, p.SessionID)
		if err != nil {
			return internal("count participants", err)
		}
		if remaining == 0 {
			err := tx.EndSession(ctx, p.SessionID, c.now().UTC())
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return internal("end session", err)
			}
			sessionClosed = true
		}
		left, participant, session = true, p, s
		return nil
	})
	if err != nil {
		c.logFailure(logCtx, "leave session", err)
		return false, err
	}
	if !left {
		logCtx.Debug("leave session: participant not found")
		return false, nil
	}

	logCtx.WithFields(logrus.Fields{
		"session_id":     participant.SessionID,
		"session_closed": sessionClosed,
	}).Info("participant left")
	c.publish(ctx, queue.SessionEvent{
		Type:          queue.EventParticipantLeft,
		SessionID:     participant.SessionID,
		TableID:       session.TableID,
		ParticipantID: participant.ID,
		FantasyName:   participant.FantasyName,
	})
	if sessionClosed {
		c.publish(ctx, queue.SessionEvent{
			Type:      queue.EventSessionClosed,
			SessionID: session.ID,
			TableID:   session.TableID,
		})
	}
	c.tableChanged(ctx, session.TableID)
	return true, nil
}

// TransferOrder hands an order from one participant to another in the
// same session.  Only orders still PENDING can change hands.  The
// updated order is returned with its line items.
func (c *GroupOrderCoordinator) TransferOrder(ctx context.Context, orderID, fromParticipantID, toParticipantID uint64) (*model.Order, error) {
	logCtx := c.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"from":     fromParticipantID,
		"to":       toParticipantID,
	})
	if fromParticipantID == toParticipantID {
		c.logFailure(logCtx, "transfer order", ErrSameParticipant)
		return nil, ErrSameParticipant
	}

	var result *model.Order
	var tableID uint64
	err := c.store.Transaction(ctx, func(tx repository.Store) error {
		from, session, err := lockParticipant(ctx, tx, fromParticipantID)
		if errors.Is(err, ErrParticipantNotFound) {
			return ErrDifferentSessions
		}
		if err != nil {
			return err
		}
		to, err := tx.GetParticipant(ctx, toParticipantID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDifferentSessions
		}
		if err != nil {
			return internal("load participant", err)
		}
		if from.SessionID != to.SessionID {
			return ErrDifferentSessions
		}

		order, err := tx.LockOrder(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderNotTransferable
		}
		if err != nil {
			return internal("load order", err)
		}
		if order.ParticipantID != from.ID || order.SessionID != from.SessionID || !order.Transferable() {
			return ErrOrderNotTransferable
		}

		if err := tx.UpdateOrderParticipant(ctx, order.ID, to.ID); err != nil {
			return internal("update order owner", err)
		}
		updated, err := tx.GetOrder(ctx, order.ID)
		if err != nil {
			return internal("reload order", err)
		}
		result, tableID = updated, session.TableID
		return nil
	})
	if err != nil {
		c.logFailure(logCtx, "transfer order", err)
		return nil, err
	}

	logCtx.WithField("session_id", result.SessionID).Info("order transferred")
	c.publish(ctx, queue.SessionEvent{
		Type:              queue.EventOrderTransferred,
		SessionID:         result.SessionID,
		TableID:           tableID,
		OrderID:           result.ID,
		FromParticipantID: fromParticipantID,
		ToParticipantID:   toParticipantID,
	})
	return result, nil
}

// GroupOrderSummary totals the orders of a session overall and per
// participant.  It runs outside a transaction; each read is consistent
// on its own.
func (c *GroupOrderCoordinator) GroupOrderSummary(ctx context.Context, sessionID uint64) (*Summary, error) {
	session, err := c.store.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, internal("load session", err)
	}
	table, err := c.store.GetTable(ctx, session.TableID)
	if err != nil {
		return nil, internal("load table", err)
	}
	participants, err := c.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, internal("list participants", err)
	}
	orders, err := c.orders.OrdersBySession(ctx, sessionID)
	if err != nil {
		return nil, internal("list orders", err)
	}

	sum := &Summary{
		SessionID:        session.ID,
		TableID:          table.ID,
		TableNumber:      table.TableNumber,
		IsActive:         session.IsActive,
		Participants:     participants,
		Orders:           orders,
		IndividualTotals: make(map[uint64]int64, len(participants)),
	}
	for _, p := range participants {
		sum.IndividualTotals[p.ID] = 0
	}
	for _, o := range orders {
		if o.Status == model.OrderCancelled {
			continue
		}
		sum.IndividualTotals[o.ParticipantID] += o.TotalAmountCents
		sum.TotalAmountCents += o.TotalAmountCents
	}
	return sum, nil
}
