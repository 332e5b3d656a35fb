package model

import "time"

// Order statuses in lifecycle order.  Orders start PENDING and move
// forward; CANCELLED may be reached from any non-delivered state.
const (
	OrderPending   = "PENDING"
	OrderConfirmed = "CONFIRMED"
	OrderPreparing = "PREPARING"
	OrderReady     = "READY"
	OrderDelivered = "DELIVERED"
	OrderCancelled = "CANCELLED"
)

// UnfinalizedOrderStatuses lists the statuses that still require the
// owning participant to be present.  A participant holding an order in
// one of these states cannot leave the session.
var UnfinalizedOrderStatuses = []string{OrderPending, OrderConfirmed, OrderPreparing, OrderReady}

// Order is a diner's order as seen by the session coordinator.  The
// order component owns it; the coordinator only reads Status and
// TotalAmountCents and rewrites ParticipantID during a transfer.
type Order struct {
	ID               uint64      `json:"id"`                 // orders.id
	SessionID        uint64      `json:"session_id"`         // orders.session_id
	ParticipantID    uint64      `json:"participant_id"`     // orders.participant_id
	Status           string      `json:"status"`             // orders.status
	TotalAmountCents int64       `json:"total_amount_cents"` // orders.total_amount_cents
	Items            []OrderItem `json:"items"`
	CreatedAt        time.Time   `json:"created_at"` // orders.created_at
	UpdatedAt        time.Time   `json:"updated_at"` // orders.updated_at
}

// Transferable reports whether the order may still change hands, i.e.
// the kitchen has not started on it.
func (o Order) Transferable() bool { return o.Status == OrderPending }

// OrderItem is a single line of an order.
type OrderItem struct {
	ID             uint64 `json:"id"`               // order_items.id
	OrderID        uint64 `json:"order_id"`         // order_items.order_id
	MenuItemID     uint64 `json:"menu_item_id"`     // order_items.menu_item_id
	Name           string `json:"name"`             // order_items.name
	Quantity       uint32 `json:"quantity"`         // order_items.quantity
	UnitPriceCents int64  `json:"unit_price_cents"` // order_items.unit_price_cents
}
