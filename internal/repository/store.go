package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/table-session/internal/model"
)

// DBTX is the subset of *sql.DB and *sql.Tx used by the repositories.
// Every repository runs against a DBTX so the same code serves both
// autocommit reads and statements inside a unit of work.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the unit of work the coordinators depend on.  Transaction
// runs fn against a Store bound to a single database transaction; the
// transaction commits when fn returns nil and is rolled back otherwise.
// Methods called outside Transaction run in autocommit mode.
type Store interface {
	Transaction(ctx context.Context, fn func(Store) error) error

	GetTable(ctx context.Context, tableID uint64) (*model.Table, error)
	// LockTable reads the table row and holds a row lock on it until the
	// surrounding transaction ends.
	LockTable(ctx context.Context, tableID uint64) (*model.Table, error)

	GetSession(ctx context.Context, sessionID uint64) (*model.TableSession, error)
	GetActiveSessionByTable(ctx context.Context, tableID uint64) (*model.TableSession, error)
	CreateSession(ctx context.Context, s *model.TableSession) error
	EndSession(ctx context.Context, sessionID uint64, endTime time.Time) error

	GetParticipant(ctx context.Context, participantID uint64) (*model.Participant, error)
	ListParticipants(ctx context.Context, sessionID uint64) ([]model.Participant, error)
	CountParticipants(ctx context.Context, sessionID uint64) (int, error)
	CreateParticipant(ctx context.Context, p *model.Participant) error
	RenameParticipant(ctx context.Context, participantID uint64, name string) error
	DeleteParticipant(ctx context.Context, participantID uint64) (bool, error)

	GetOrder(ctx context.Context, orderID uint64) (*model.Order, error)
	LockOrder(ctx context.Context, orderID uint64) (*model.Order, error)
	UpdateOrderParticipant(ctx context.Context, orderID, participantID uint64) error
	OrdersBySession(ctx context.Context, sessionID uint64) ([]model.Order, error)
	CountPendingOrders(ctx context.Context, participantID uint64) (int, error)
}

// MySQLStore is the MySQL implementation of Store.  It is a thin
// composition of the per-table repositories.
type MySQLStore struct {
	db *sql.DB // nil when bound to a transaction
	*TableRepo
	*SessionRepo
	*ParticipantRepo
	*OrderRepo
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore returns a Store backed by the given connection pool.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	s := bind(db)
	s.db = db
	return s
}

func bind(q DBTX) *MySQLStore {
	return &MySQLStore{
		TableRepo:       NewTableRepo(q),
		SessionRepo:     NewSessionRepo(q),
		ParticipantRepo: NewParticipantRepo(q),
		OrderRepo:       NewOrderRepo(q),
	}
}

// DB returns the underlying pool.
func (s *MySQLStore) DB() *sql.DB { return s.db }

// Transaction runs fn inside a READ COMMITTED transaction.  Locking
// reads (LockTable, LockOrder) serialize writers contending for the same
// table, and READ COMMITTED makes every later plain read in the
// transaction observe what the previous lock holder committed.  Calling
// Transaction on a store that is already bound to a transaction reuses
// it.
func (s *MySQLStore) Transaction(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(bind(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}
