package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/table-session/internal/model"
)

// TableRepo reads rows of the tables table.  Tables are maintained by
// location management; the session coordinator never writes them.
type TableRepo struct {
	q DBTX
}

// NewTableRepo returns a TableRepo running its statements on q.
func NewTableRepo(q DBTX) *TableRepo { return &TableRepo{q: q} }

const selectTable = `SELECT id, location_id, table_number, capacity, is_active, created_at, updated_at
                     FROM tables
                     WHERE id = ?`

// GetTable returns the table with the given ID or ErrNotFound.
func (r *TableRepo) GetTable(ctx context.Context, tableID uint64) (*model.Table, error) {
	return scanTable(r.q.QueryRowContext(ctx, selectTable, tableID))
}

// LockTable is GetTable with FOR UPDATE.  Inside a transaction the row
// stays locked until commit or rollback, which serializes check-ins and
// departures at the same table across processes.
func (r *TableRepo) LockTable(ctx context.Context, tableID uint64) (*model.Table, error) {
	return scanTable(r.q.QueryRowContext(ctx, selectTable+` FOR UPDATE`, tableID))
}

func scanTable(row *sql.Row) (*model.Table, error) {
	var t model.Table
	err := row.Scan(&t.ID, &t.LocationID, &t.TableNumber, &t.Capacity, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
