package model

import "time"

// Table describes a physical seating unit at a location.  Tables are
// created by location management; the check-in flow only reads them
// and relies on Capacity to bound the number of participants in the
// table's active session.
//
// Fields:
//  ID          – primary key identifier.
//  LocationID  – location (restaurant) the table belongs to.
//  TableNumber – number printed on the table, unique per location.
//  Capacity    – number of seats, always positive.
//  IsActive    – whether the table accepts check-ins.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Table struct {
	ID          uint64    `json:"id"`           // tables.id
	LocationID  uint64    `json:"location_id"`  // tables.location_id
	TableNumber uint32    `json:"table_number"` // tables.table_number
	Capacity    uint32    `json:"capacity"`     // tables.capacity
	IsActive    bool      `json:"is_active"`    // tables.is_active
	CreatedAt   time.Time `json:"-"`            // tables.created_at
	UpdatedAt   time.Time `json:"-"`            // tables.updated_at
}
