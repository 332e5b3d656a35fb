package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/table-session/internal/model"
)

// OrderRepo is the slice of the order component the session coordinator
// needs: session-wide order listing, the pending-order count guarding a
// departure, and ownership transfer between participants.
type OrderRepo struct {
	q DBTX
}

// NewOrderRepo returns an OrderRepo running its statements on q.
func NewOrderRepo(q DBTX) *OrderRepo { return &OrderRepo{q: q} }

const selectOrder = `SELECT id, session_id, participant_id, status, total_amount_cents, created_at, updated_at
                     FROM orders`

// GetOrder returns an order together with its line items.
func (r *OrderRepo) GetOrder(ctx context.Context, orderID uint64) (*model.Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx, selectOrder+` WHERE id = ?`, orderID))
	if err != nil {
		return nil, err
	}
	items, err := r.itemsByOrder(ctx, []uint64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []model.OrderItem{}
	}
	return o, nil
}

// LockOrder reads an order row FOR UPDATE without its items.
func (r *OrderRepo) LockOrder(ctx context.Context, orderID uint64) (*model.Order, error) {
	return scanOrder(r.q.QueryRowContext(ctx, selectOrder+` WHERE id = ? FOR UPDATE`, orderID))
}

// UpdateOrderParticipant moves an order to another participant.
func (r *OrderRepo) UpdateOrderParticipant(ctx context.Context, orderID, participantID uint64) error {
	const q = `UPDATE orders SET participant_id = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
	res, err := r.q.ExecContext(ctx, q, participantID, orderID)
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

// CountPendingOrders counts the orders of a participant that have not
// reached a final state (delivered or cancelled).
func (r *OrderRepo) CountPendingOrders(ctx context.Context, participantID uint64) (int, error) {
	args := make([]any, 0, len(model.UnfinalizedOrderStatuses)+1)
	args = append(args, participantID)
	for _, s := range model.UnfinalizedOrderStatuses {
		args = append(args, s)
	}
	q := `SELECT COUNT(*) FROM orders WHERE participant_id = ? AND status IN (` + placeholders(len(model.UnfinalizedOrderStatuses)) + `)`
	var n int
	err := r.q.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// OrdersBySession returns every order placed in a session, oldest first,
// with line items populated.  Items for all orders are loaded in a
// single query.
func (r *OrderRepo) OrdersBySession(ctx context.Context, sessionID uint64) ([]model.Order, error) {
	rows, err := r.q.QueryContext(ctx, selectOrder+` WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := make([]model.Order, 0)
	ids := make([]uint64, 0)
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.SessionID, &o.ParticipantID, &o.Status, &o.TotalAmountCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}
	items, err := r.itemsByOrder(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []model.OrderItem{}
		}
	}
	return orders, nil
}

func (r *OrderRepo) itemsByOrder(ctx context.Context, orderIDs []uint64) (map[uint64][]model.OrderItem, error) {
	args := make([]any, 0, len(orderIDs))
	for _, id := range orderIDs {
		args = append(args, id)
	}
	q := `SELECT id, order_id, menu_item_id, name, quantity, unit_price_cents
          FROM order_items
          WHERE order_id IN (` + placeholders(len(orderIDs)) + `)
          ORDER BY order_id, id`
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make(map[uint64][]model.OrderItem, len(orderIDs))
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		items[it.OrderID] = append(items[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanOrder(row *sql.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.SessionID, &o.ParticipantID, &o.Status, &o.TotalAmountCents, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
