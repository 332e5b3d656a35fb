// Package queue defines the session lifecycle events exchanged over the
// message broker, together with their publisher and audit consumer.
package queue

// Event types.
const (
	EventParticipantJoined  = "participant.joined"
	EventParticipantLeft    = "participant.left"
	EventParticipantRenamed = "participant.renamed"
	EventSessionClosed      = "session.closed"
	EventOrderTransferred   = "order.transferred"
)

// SessionEvent is published after a check-in, departure, rename or order
// transfer commits.  It carries enough information for downstream
// consumers (waiter notifications, analytics, the audit log) to act
// without querying the primary database.  Fields that do not apply to
// an event type are left zero and omitted from the JSON payload.
type SessionEvent struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	SessionID         uint64 `json:"session_id"`
	TableID           uint64 `json:"table_id,omitempty"`
	ParticipantID     uint64 `json:"participant_id,omitempty"`
	FantasyName       string `json:"fantasy_name,omitempty"`
	OrderID           uint64 `json:"order_id,omitempty"`
	FromParticipantID uint64 `json:"from_participant_id,omitempty"`
	ToParticipantID   uint64 `json:"to_participant_id,omitempty"`
	OccurredAt        string `json:"occurred_at"`
}
