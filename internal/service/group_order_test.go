package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/table-session/internal/model"
	"github.com/iliyamo/table-session/internal/queue"
)

func newGroupOrders(store *fakeStore, opts ...Option) *GroupOrderCoordinator {
	opts = append([]Option{WithLogger(quietLogger()), WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewGroupOrderCoordinator(store, nil, opts...)
}

// seatTwo opens a session at a fresh table and seats two named diners.
func seatTwo(t *testing.T, store *fakeStore, a, b string) (*JoinResult, *JoinResult) {
	t.Helper()
	c := newCheckin(store)
	table := store.addTable(4)
	ra, err := c.JoinTable(context.Background(), JoinRequest{TableID: table.ID, FantasyName: a})
	require.NoError(t, err)
	rb, err := c.JoinTable(context.Background(), JoinRequest{TableID: table.ID, FantasyName: b})
	require.NoError(t, err)
	return ra, rb
}

func TestLeaveSessionUnknownParticipant(t *testing.T) {
	g := newGroupOrders(newFakeStore())
	left, err := g.LeaveSession(context.Background(), 31337)
	require.NoError(t, err)
	assert.False(t, left)
}

func TestLeaveSessionTwice(t *testing.T) {
	store := newFakeStore()
	a, _ := seatTwo(t, store, "Ann", "Ben")
	g := newGroupOrders(store)

	left, err := g.LeaveSession(context.Background(), a.ParticipantID)
	require.NoError(t, err)
	assert.True(t, left)

	left, err = g.LeaveSession(context.Background(), a.ParticipantID)
	require.NoError(t, err)
	assert.False(t, left)
}

func TestLeaveSessionClosesWhenLastLeaves(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	a, b := seatTwo(t, store, "Ann", "Ben")
	pub := &recordingPublisher{}
	g := newGroupOrders(store, WithPublisher(pub))

	_, err := g.LeaveSession(ctx, a.ParticipantID)
	require.NoError(t, err)
	s, _ := store.session(a.Session.SessionID)
	assert.True(t, s.IsActive, "co-occupant remains")
	assert.Nil(t, s.EndTime)

	_, err = g.LeaveSession(ctx, b.ParticipantID)
	require.NoError(t, err)
	s, _ = store.session(a.Session.SessionID)
	assert.False(t, s.IsActive)
	require.NotNil(t, s.EndTime)

	assert.Equal(t, []string{
		queue.EventParticipantLeft,
		queue.EventParticipantLeft,
		queue.EventSessionClosed,
	}, pub.types())
}

func TestLeaveSessionBlockedByUnfinalizedOrders(t *testing.T) {
	for _, status := range model.UnfinalizedOrderStatuses {
		t.Run(status, func(t *testing.T) {
			store := newFakeStore()
			a, _ := seatTwo(t, store, "Ann", "Ben")
			store.addOrder(a.Session.SessionID, a.ParticipantID, status, 1200)
			g := newGroupOrders(store)

			left, err := g.LeaveSession(context.Background(), a.ParticipantID)
			assert.ErrorIs(t, err, ErrPendingOrders)
			assert.ErrorIs(t, err, ErrConflict)
			assert.False(t, left)

			ps, _ := store.ListParticipants(context.Background(), a.Session.SessionID)
			assert.Len(t, ps, 2)
		})
	}
}

func TestLeaveSessionAllowedWithFinalizedOrders(t *testing.T) {
	store := newFakeStore()
	a, _ := seatTwo(t, store, "Ann", "Ben")
	store.addOrder(a.Session.SessionID, a.ParticipantID, model.OrderDelivered, 1200)
	store.addOrder(a.Session.SessionID, a.ParticipantID, model.OrderCancelled, 800)
	g := newGroupOrders(store)

	left, err := g.LeaveSession(context.Background(), a.ParticipantID)
	require.NoError(t, err)
	assert.True(t, left)
}

func TestTransferOrder(t *testing.T) {
	store := newFakeStore()
	a, b := seatTwo(t, store, "Ann", "Ben")
	o := store.addOrder(a.Session.SessionID, a.ParticipantID, model.OrderPending, 2599,
		model.OrderItem{ID: 1, MenuItemID: 9, Name: "Ramen", Quantity: 1, UnitPriceCents: 2599})
	pub := &recordingPublisher{}
	g := newGroupOrders(store, WithPublisher(pub))

	got, err := g.TransferOrder(context.Background(), o.ID, a.ParticipantID, b.ParticipantID)
	require.NoError(t, err)
	assert.Equal(t, b.ParticipantID, got.ParticipantID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Ramen", got.Items[0].Name)
	assert.Equal(t, b.ParticipantID, store.order(o.ID).ParticipantID)
	assert.Equal(t, []string{queue.EventOrderTransferred}, pub.types())

	// Ann no longer owns it, so she cannot hand it off again.
	_, err = g.TransferOrder(context.Background(), o.ID, a.ParticipantID, b.ParticipantID)
	assert.ErrorIs(t, err, ErrOrderNotTransferable)
}

func TestTransferOrderAcrossSessionsFails(t *testing.T) {
	store := newFakeStore()
	a, _ := seatTwo(t, store, "Ann", "Ben")
	c, _ := seatTwo(t, store, "Cid", "Dot")
	o := store.addOrder(a.Session.SessionID, a.ParticipantID, model.OrderPending, 1000)
	g := newGroupOrders(store)

	_, err := g.TransferOrder(context.Background(), o.ID, a.ParticipantID, c.ParticipantID)
	assert.ErrorIs(t, err, ErrDifferentSessions)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, a.ParticipantID, store.order(o.ID).ParticipantID)

	_, err = g.TransferOrder(context.Background(), o.ID, a.ParticipantID, 987654)
	assert.ErrorIs(t, err, ErrDifferentSessions)
	assert.Equal(t, a.ParticipantID, store.order(o.ID).ParticipantID)
}

func TestTransferOrderPostPendingFails(t *testing.T) {
	for _, status := range []string{model.OrderConfirmed, model.OrderPreparing, model.OrderReady, model.OrderDelivered, model.OrderCancelled} {
		t.Run(status, func(t *testing.T) {
			store := newFakeStore()
			a, b := seatTwo(t, store, "Ann", "Ben")
			o := store.addOrder(a.Session.SessionID, a.ParticipantID, status, 1000)
			g := newGroupOrders(store)

			_, err := g.TransferOrder(context.Background(), o.ID, a.ParticipantID, b.ParticipantID)
			assert.ErrorIs(t, err, ErrOrderNotTransferable)
			assert.Equal(t, a.ParticipantID, store.order(o.ID).ParticipantID)
		})
	}
}

func TestTransferOrderGuards(t *testing.T) {
	store := newFakeStore()
	a, b := seatTwo(t, store, "Ann", "Ben")
	o := store.addOrder(a.Session.SessionID, b.ParticipantID, model.OrderPending, 1000)
	g := newGroupOrders(store)
	ctx := context.Background()

	_, err := g.TransferOrder(ctx, o.ID, a.ParticipantID, a.ParticipantID)
	assert.ErrorIs(t, err, ErrSameParticipant)

	// Ann does not own the order.
	_, err = g.TransferOrder(ctx, o.ID, a.ParticipantID, b.ParticipantID)
	assert.ErrorIs(t, err, ErrOrderNotTransferable)

	_, err = g.TransferOrder(ctx, 55555, b.ParticipantID, a.ParticipantID)
	assert.ErrorIs(t, err, ErrOrderNotTransferable)
}

func TestTransferOrderStoreFailureRollsBack(t *testing.T) {
	store := newFakeStore()
	a, b := seatTwo(t, store, "Ann", "Ben")
	o := store.addOrder(a.Session.SessionID, a.ParticipantID, model.OrderPending, 1000)
	store.failOn["UpdateOrderParticipant"] = errors.New("lock wait timeout")
	pub := &recordingPublisher{}
	g := newGroupOrders(store, WithPublisher(pub))

	_, err := g.TransferOrder(context.Background(), o.ID, a.ParticipantID, b.ParticipantID)
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, a.ParticipantID, store.order(o.ID).ParticipantID)
	assert.Empty(t, pub.types())
}

func TestGroupOrderSummary(t *testing.T) {
	store := newFakeStore()
	a, b := seatTwo(t, store, "Ann", "Ben")
	sid := a.Session.SessionID
	store.addOrder(sid, a.ParticipantID, model.OrderDelivered, 2599)
	store.addOrder(sid, b.ParticipantID, model.OrderPending, 1850)
	g := newGroupOrders(store)

	sum, err := g.GroupOrderSummary(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, int64(4449), sum.TotalAmountCents)
	assert.Equal(t, map[uint64]int64{a.ParticipantID: 2599, b.ParticipantID: 1850}, sum.IndividualTotals)
	assert.True(t, sum.IsActive)
	assert.Equal(t, a.Session.TableID, sum.TableID)
	require.Len(t, sum.Participants, 2)
	assert.Equal(t, "Ann", sum.Participants[0].FantasyName)
	assert.Len(t, sum.Orders, 2)
}

func TestGroupOrderSummaryEdgeCases(t *testing.T) {
	store := newFakeStore()
	a, b := seatTwo(t, store, "Ann", "Ben")
	sid := a.Session.SessionID
	store.addOrder(sid, a.ParticipantID, model.OrderDelivered, 1000)
	store.addOrder(sid, a.ParticipantID, model.OrderCancelled, 5000)
	g := newGroupOrders(store)

	_, err := g.LeaveSession(context.Background(), a.ParticipantID)
	require.NoError(t, err)

	sum, err := g.GroupOrderSummary(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), sum.TotalAmountCents, "cancelled orders are not owed")
	assert.Equal(t, int64(1000), sum.IndividualTotals[a.ParticipantID], "departed diners keep their totals")
	assert.Equal(t, int64(0), sum.IndividualTotals[b.ParticipantID])
	require.Len(t, sum.Participants, 1)
	assert.Len(t, sum.Orders, 2)

	_, err = g.GroupOrderSummary(context.Background(), 123456)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

type stubOrders struct {
	orders []model.Order
	err    error
}

func (s stubOrders) OrdersBySession(context.Context, uint64) ([]model.Order, error) {
	return s.orders, s.err
}

func (s stubOrders) CountPendingOrders(context.Context, uint64) (int, error) { return 0, s.err }

func TestGroupOrderSummaryUsesOrderLookup(t *testing.T) {
	store := newFakeStore()
	a, _ := seatTwo(t, store, "Ann", "Ben")
	sid := a.Session.SessionID

	g := NewGroupOrderCoordinator(store, stubOrders{orders: []model.Order{
		{ID: 1, SessionID: sid, ParticipantID: a.ParticipantID, Status: model.OrderReady, TotalAmountCents: 700},
	}}, WithLogger(quietLogger()))
	sum, err := g.GroupOrderSummary(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, int64(700), sum.TotalAmountCents)

	g = NewGroupOrderCoordinator(store, stubOrders{err: errors.New("orders service down")}, WithLogger(quietLogger()))
	_, err = g.GroupOrderSummary(context.Background(), sid)
	assert.ErrorIs(t, err, ErrInternal)
}
