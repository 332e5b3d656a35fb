package model

import "time"

// TableSession groups the diners sharing one table for a period of
// time.  At most one session per table is active at once.  Sessions
// are never deleted; when the last participant leaves the session is
// marked inactive and EndTime is stamped.
//
// Fields:
//  ID        – primary key identifier.
//  TableID   – table the session is held at.
//  StartTime – when the first participant checked in.
//  EndTime   – when the last participant left (nil while active).
//  IsActive  – whether the session still accepts participants.
type TableSession struct {
	ID        uint64     `json:"id"`                 // table_sessions.id
	TableID   uint64     `json:"table_id"`           // table_sessions.table_id
	StartTime time.Time  `json:"start_time"`         // table_sessions.start_time
	EndTime   *time.Time `json:"end_time,omitempty"` // table_sessions.end_time (nullable)
	IsActive  bool       `json:"is_active"`          // table_sessions.is_active
}
