package service

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/table-session/internal/model"
	"github.com/iliyamo/table-session/internal/queue"
	"github.com/iliyamo/table-session/internal/repository"
)

// fakeState is the data behind fakeStore.
type fakeState struct {
	tables       map[uint64]model.Table
	sessions     map[uint64]model.TableSession
	participants map[uint64]model.Participant
	orders       map[uint64]model.Order
	nextID       uint64
}

// fakeTx is the bookkeeping of one open transaction: the table locks it
// holds and the undo steps replayed on rollback.
type fakeTx struct {
	held map[uint64]*sync.Mutex
	undo []func(*fakeState)
}

// fakeStore is an in-memory repository.Store.  Like MySQL it does not
// serialize transactions as a whole: the only mutual exclusion is the
// per-table lock taken by LockTable and held until commit or rollback.
// dataMu only makes single reads and writes atomic.  Reads yield the
// processor so that a coordinator that forgets the table lock
// interleaves with its competitors.
type fakeStore struct {
	dataMu *sync.Mutex
	state  *fakeState

	lockMu     *sync.Mutex
	tableLocks map[uint64]*sync.Mutex

	tx *fakeTx

	// failOn makes the named method return the error once.
	failOn map[string]error

	// counters for assertions
	locks   *int
	commits *int
	aborts  *int
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		dataMu: &sync.Mutex{},
		state: &fakeState{
			tables:       map[uint64]model.Table{},
			sessions:     map[uint64]model.TableSession{},
			participants: map[uint64]model.Participant{},
			orders:       map[uint64]model.Order{},
			nextID:       100,
		},
		lockMu:     &sync.Mutex{},
		tableLocks: map[uint64]*sync.Mutex{},
		failOn:     map[string]error{},
		locks:      new(int),
		commits:    new(int),
		aborts:     new(int),
	}
}

func (f *fakeStore) fail(method string) error {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	if err, ok := f.failOn[method]; ok {
		delete(f.failOn, method)
		return err
	}
	return nil
}

func (f *fakeStore) tableLock(tableID uint64) *sync.Mutex {
	f.lockMu.Lock()
	defer f.lockMu.Unlock()
	m, ok := f.tableLocks[tableID]
	if !ok {
		m = &sync.Mutex{}
		f.tableLocks[tableID] = m
	}
	return m
}

// holdTable takes the row lock of a table as a competing transaction
// would, until the returned func is called.
func (f *fakeStore) holdTable(tableID uint64) (release func()) {
	m := f.tableLock(tableID)
	m.Lock()
	return m.Unlock
}

// record registers the inverse of a write; dataMu must be held.
func (f *fakeStore) record(undo func(*fakeState)) {
	if f.tx != nil {
		f.tx.undo = append(f.tx.undo, undo)
	}
}

func (f *fakeStore) Transaction(ctx context.Context, fn func(repository.Store) error) error {
	if f.tx != nil {
		return fn(f)
	}
	tx := *f
	tx.tx = &fakeTx{held: map[uint64]*sync.Mutex{}}
	defer func() {
		for _, m := range tx.tx.held {
			m.Unlock()
		}
	}()

	err := fn(&tx)
	if err == nil {
		err = ctx.Err()
	}
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	if err != nil {
		for i := len(tx.tx.undo) - 1; i >= 0; i-- {
			tx.tx.undo[i](f.state)
		}
		*f.aborts++
		return err
	}
	*f.commits++
	return nil
}

// seeding helpers, used outside transactions

func (f *fakeStore) addTable(capacity uint32) model.Table {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	st := f.state
	st.nextID++
	t := model.Table{ID: st.nextID, LocationID: 1, TableNumber: uint32(st.nextID % 1000), Capacity: capacity, IsActive: true}
	st.tables[t.ID] = t
	return t
}

func (f *fakeStore) setTableActive(id uint64, active bool) {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	t := f.state.tables[id]
	t.IsActive = active
	f.state.tables[id] = t
}

func (f *fakeStore) addOrder(sessionID, participantID uint64, status string, cents int64, items ...model.OrderItem) model.Order {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	st := f.state
	st.nextID++
	o := model.Order{
		ID:               st.nextID,
		SessionID:        sessionID,
		ParticipantID:    participantID,
		Status:           status,
		TotalAmountCents: cents,
		Items:            items,
		CreatedAt:        time.Date(2026, 1, 1, 12, 0, int(st.nextID%60), 0, time.UTC),
	}
	st.orders[o.ID] = o
	return o
}

func (f *fakeStore) session(id uint64) (model.TableSession, bool) {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	s, ok := f.state.sessions[id]
	return s, ok
}

func (f *fakeStore) activeSessions(tableID uint64) int {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	n := 0
	for _, s := range f.state.sessions {
		if s.TableID == tableID && s.IsActive {
			n++
		}
	}
	return n
}

func (f *fakeStore) order(id uint64) model.Order {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	return f.state.orders[id]
}

// repository.Store

func (f *fakeStore) GetTable(ctx context.Context, tableID uint64) (*model.Table, error) {
	if err := f.fail("GetTable"); err != nil {
		return nil, err
	}
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	t, ok := f.state.tables[tableID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (f *fakeStore) LockTable(ctx context.Context, tableID uint64) (*model.Table, error) {
	if err := f.fail("LockTable"); err != nil {
		return nil, err
	}
	if f.tx != nil {
		if _, ok := f.tx.held[tableID]; !ok {
			m := f.tableLock(tableID)
			m.Lock()
			f.tx.held[tableID] = m
		}
	}
	f.dataMu.Lock()
	*f.locks++
	f.dataMu.Unlock()
	return f.GetTable(ctx, tableID)
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID uint64) (*model.TableSession, error) {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	s, ok := f.state.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (f *fakeStore) GetActiveSessionByTable(ctx context.Context, tableID uint64) (*model.TableSession, error) {
	runtime.Gosched()
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	for _, s := range f.state.sessions {
		if s.TableID == tableID && s.IsActive {
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) CreateSession(ctx context.Context, s *model.TableSession) error {
	if err := f.fail("CreateSession"); err != nil {
		return err
	}
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	st := f.state
	for _, other := range st.sessions {
		if other.TableID == s.TableID && other.IsActive {
			return repository.ErrDuplicate
		}
	}
	st.nextID++
	s.ID = st.nextID
	s.IsActive = true
	st.sessions[s.ID] = *s
	id := s.ID
	f.record(func(st *fakeState) { delete(st.sessions, id) })
	return nil
}

func (f *fakeStore) EndSession(ctx context.Context, sessionID uint64, endTime time.Time) error {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	s, ok := f.state.sessions[sessionID]
	if !ok || !s.IsActive {
		return repository.ErrNotFound
	}
	prev := s
	s.IsActive = false
	s.EndTime = &endTime
	f.state.sessions[sessionID] = s
	f.record(func(st *fakeState) { st.sessions[sessionID] = prev })
	return nil
}

func (f *fakeStore) GetParticipant(ctx context.Context, participantID uint64) (*model.Participant, error) {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	p, ok := f.state.participants[participantID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (f *fakeStore) ListParticipants(ctx context.Context, sessionID uint64) ([]model.Participant, error) {
	runtime.Gosched()
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	out := make([]model.Participant, 0)
	for _, p := range f.state.participants {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeStore) CountParticipants(ctx context.Context, sessionID uint64) (int, error) {
	ps, err := f.ListParticipants(ctx, sessionID)
	return len(ps), err
}

func (f *fakeStore) CreateParticipant(ctx context.Context, p *model.Participant) error {
	if err := f.fail("CreateParticipant"); err != nil {
		return err
	}
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	st := f.state
	for _, other := range st.participants {
		if other.SessionID != p.SessionID {
			continue
		}
		if other.FantasyName == p.FantasyName {
			return repository.ErrDuplicate
		}
		if p.UserID != nil && other.UserID != nil && *p.UserID == *other.UserID {
			return repository.ErrDuplicate
		}
	}
	st.nextID++
	p.ID = st.nextID
	st.participants[p.ID] = *p
	id := p.ID
	f.record(func(st *fakeState) { delete(st.participants, id) })
	return nil
}

func (f *fakeStore) RenameParticipant(ctx context.Context, participantID uint64, name string) error {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	st := f.state
	p, ok := st.participants[participantID]
	if !ok {
		return nil
	}
	for _, other := range st.participants {
		if other.ID != p.ID && other.SessionID == p.SessionID && other.FantasyName == name {
			return repository.ErrDuplicate
		}
	}
	prev := p
	p.FantasyName = name
	st.participants[participantID] = p
	f.record(func(st *fakeState) { st.participants[participantID] = prev })
	return nil
}

func (f *fakeStore) DeleteParticipant(ctx context.Context, participantID uint64) (bool, error) {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	prev, ok := f.state.participants[participantID]
	if !ok {
		return false, nil
	}
	delete(f.state.participants, participantID)
	f.record(func(st *fakeState) { st.participants[participantID] = prev })
	return true, nil
}

func (f *fakeStore) GetOrder(ctx context.Context, orderID uint64) (*model.Order, error) {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	o, ok := f.state.orders[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if o.Items == nil {
		o.Items = []model.OrderItem{}
	}
	return &o, nil
}

func (f *fakeStore) LockOrder(ctx context.Context, orderID uint64) (*model.Order, error) {
	return f.GetOrder(ctx, orderID)
}

func (f *fakeStore) UpdateOrderParticipant(ctx context.Context, orderID, participantID uint64) error {
	if err := f.fail("UpdateOrderParticipant"); err != nil {
		return err
	}
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	o, ok := f.state.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	prev := o
	o.ParticipantID = participantID
	f.state.orders[orderID] = o
	f.record(func(st *fakeState) { st.orders[orderID] = prev })
	return nil
}

func (f *fakeStore) OrdersBySession(ctx context.Context, sessionID uint64) ([]model.Order, error) {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	out := make([]model.Order, 0)
	for _, o := range f.state.orders {
		if o.SessionID == sessionID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) CountPendingOrders(ctx context.Context, participantID uint64) (int, error) {
	runtime.Gosched()
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	n := 0
	for _, o := range f.state.orders {
		if o.ParticipantID != participantID {
			continue
		}
		for _, s := range model.UnfinalizedOrderStatuses {
			if o.Status == s {
				n++
			}
		}
	}
	return n, nil
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev queue.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev.Type)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}
