package model

import "time"

// Participant is one diner's membership in a table session.  UserID is
// nil for anonymous guests.  FantasyName is the display alias shown to
// the other diners and is unique within the session.  Participants are
// hard-deleted when they leave.
type Participant struct {
	ID          uint64    `json:"id"`                // session_participants.id
	SessionID   uint64    `json:"session_id"`        // session_participants.session_id
	UserID      *uint64   `json:"user_id,omitempty"` // session_participants.user_id (nullable)
	FantasyName string    `json:"fantasy_name"`      // session_participants.fantasy_name
	JoinedAt    time.Time `json:"joined_at"`         // session_participants.joined_at
}
