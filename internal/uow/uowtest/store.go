// Package uowtest provides an in-memory unit-of-work for handler tests.
// Sessions stage mutations and apply them to the backing store only on
// Commit, mirroring the transactional behavior of the pgx implementation.
package uowtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockflow/internal/domain"
	"stockflow/internal/domain/command"
	"stockflow/internal/domain/order"
	"stockflow/internal/domain/outbox"
	"stockflow/internal/domain/stock"
	"stockflow/internal/repository"
	"stockflow/internal/uow"
	stockflow_errors "stockflow/pkg/errors"
)

// Store is one in-memory shard store.
type Store struct {
	mu         sync.Mutex
	Orders     map[uuid.UUID]*order.Order
	StockItems map[uuid.UUID]*stock.StockItem
	Ledger     map[string]time.Time
	Outbox     []outbox.OutboxMessage

	// Injectable failures, consumed one per call.
	CommitErrs      []error
	OrderUpdateErrs []error
	StockUpdateErrs []error

	Sessions []*Session
}

func NewStore() *Store {
	return &Store{
		Orders:     make(map[uuid.UUID]*order.Order),
		StockItems: make(map[uuid.UUID]*stock.StockItem),
		Ledger:     make(map[string]time.Time),
	}
}

// ForKey implements the bus's SessionFactory against the single store.
func (st *Store) ForKey(_ context.Context, _ uuid.UUID) (uow.Session, error) {
	return st.Open(0), nil
}

// Open starts a session pinned to the given shard index.
func (st *Store) Open(shard int) *Session {
	s := &Session{
		store:        st,
		shard:        shard,
		pendingOrder: make(map[uuid.UUID]*order.Order),
		pendingStock: make(map[uuid.UUID]*stock.StockItem),
	}
	st.mu.Lock()
	st.Sessions = append(st.Sessions, s)
	st.mu.Unlock()
	return s
}

// Seed inserts aggregates directly, bypassing session semantics.
func (st *Store) Seed(aggs ...interface{}) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, a := range aggs {
		switch v := a.(type) {
		case *order.Order:
			st.Orders[v.ID] = copyOrder(v)
		case *stock.StockItem:
			st.StockItems[v.ID] = copyStock(v)
		default:
			panic(fmt.Sprintf("uowtest: cannot seed %T", a))
		}
	}
}

func (st *Store) popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

type ledgerRow struct {
	correlationID string
	commandType   string
	at            time.Time
}

// Session is a staged view over the store.
type Session struct {
	store        *Store
	shard        int
	pendingOrder map[uuid.UUID]*order.Order
	pendingStock map[uuid.UUID]*stock.StockItem
	pendingRows  []ledgerRow

	Committed     bool
	Closed        bool
	CommittedMsgs []outbox.OutboxMessage
}

func (s *Session) Shard() int { return s.shard }

func (s *Session) Orders() repository.OrderRepository  { return &fakeOrders{s} }
func (s *Session) Stock() repository.StockRepository   { return &fakeStock{s} }
func (s *Session) Ledger() repository.LedgerRepository { return &fakeLedger{s} }

func (s *Session) Commit(_ context.Context, msgs []outbox.OutboxMessage) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if err := s.store.popErr(&s.store.CommitErrs); err != nil {
		return err
	}
	for id, o := range s.pendingOrder {
		s.store.Orders[id] = copyOrder(o)
	}
	for id, it := range s.pendingStock {
		s.store.StockItems[id] = copyStock(it)
	}
	for _, row := range s.pendingRows {
		s.store.Ledger[row.correlationID+"|"+row.commandType] = row.at
	}
	s.store.Outbox = append(s.store.Outbox, msgs...)
	s.CommittedMsgs = append(s.CommittedMsgs, msgs...)
	s.Committed = true
	return nil
}

func (s *Session) Close(_ context.Context) error {
	if !s.Committed {
		s.pendingOrder = make(map[uuid.UUID]*order.Order)
		s.pendingStock = make(map[uuid.UUID]*stock.StockItem)
		s.pendingRows = nil
	}
	s.Closed = true
	return nil
}

type fakeOrders struct{ s *Session }

func (r *fakeOrders) Get(_ context.Context, orderID uuid.UUID) (*order.Order, error) {
	r.s.store.mu.Lock()
	defer r.s.store.mu.Unlock()
	if o, ok := r.s.pendingOrder[orderID]; ok {
		return copyOrder(o), nil
	}
	if o, ok := r.s.store.Orders[orderID]; ok {
		return copyOrder(o), nil
	}
	return nil, fmt.Errorf("%w: order %s", stockflow_errors.ErrNotFound, orderID)
}

func (r *fakeOrders) Create(_ context.Context, o *order.Order) error {
	r.s.store.mu.Lock()
	defer r.s.store.mu.Unlock()
	if _, ok := r.s.store.Orders[o.ID]; ok {
		return fmt.Errorf("%w: order %s", stockflow_errors.ErrAlreadyExists, o.ID)
	}
	r.s.pendingOrder[o.ID] = copyOrder(o)
	return nil
}

func (r *fakeOrders) Update(_ context.Context, o *order.Order) error {
	r.s.store.mu.Lock()
	defer r.s.store.mu.Unlock()
	if err := r.s.store.popErr(&r.s.store.OrderUpdateErrs); err != nil {
		return err
	}
	current, ok := r.s.pendingOrder[o.ID]
	if !ok {
		current, ok = r.s.store.Orders[o.ID]
	}
	if !ok {
		return fmt.Errorf("%w: order %s", stockflow_errors.ErrNotFound, o.ID)
	}
	if current.Version != o.Version {
		return fmt.Errorf("%w: order %s version %d", stockflow_errors.ErrConcurrencyConflict, o.ID, o.Version)
	}
	o.Version++
	r.s.pendingOrder[o.ID] = copyOrder(o)
	return nil
}

type fakeStock struct{ s *Session }

func (r *fakeStock) Get(_ context.Context, productID uuid.UUID) (*stock.StockItem, error) {
	r.s.store.mu.Lock()
	defer r.s.store.mu.Unlock()
	if it, ok := r.s.pendingStock[productID]; ok {
		return copyStock(it), nil
	}
	if it, ok := r.s.store.StockItems[productID]; ok {
		return copyStock(it), nil
	}
	return nil, fmt.Errorf("%w: stock item %s", stockflow_errors.ErrNotFound, productID)
}

func (r *fakeStock) Create(_ context.Context, item *stock.StockItem) error {
	r.s.store.mu.Lock()
	defer r.s.store.mu.Unlock()
	if _, ok := r.s.store.StockItems[item.ID]; ok {
		return fmt.Errorf("%w: stock item %s", stockflow_errors.ErrAlreadyExists, item.ID)
	}
	r.s.pendingStock[item.ID] = copyStock(item)
	return nil
}

func (r *fakeStock) Update(_ context.Context, item *stock.StockItem) error {
	r.s.store.mu.Lock()
	defer r.s.store.mu.Unlock()
	if err := r.s.store.popErr(&r.s.store.StockUpdateErrs); err != nil {
		return err
	}
	current, ok := r.s.pendingStock[item.ID]
	if !ok {
		current, ok = r.s.store.StockItems[item.ID]
	}
	if !ok {
		return fmt.Errorf("%w: stock item %s", stockflow_errors.ErrNotFound, item.ID)
	}
	if current.Version != item.Version {
		return fmt.Errorf("%w: stock item %s version %d", stockflow_errors.ErrConcurrencyConflict, item.ID, item.Version)
	}
	item.Version++
	r.s.pendingStock[item.ID] = copyStock(item)
	return nil
}

type fakeLedger struct{ s *Session }

func (r *fakeLedger) Seen(_ context.Context, correlationID, commandType string) (bool, error) {
	r.s.store.mu.Lock()
	defer r.s.store.mu.Unlock()
	if _, ok := r.s.store.Ledger[correlationID+"|"+commandType]; ok {
		return true, nil
	}
	for _, row := range r.s.pendingRows {
		if row.correlationID == correlationID && row.commandType == commandType {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeLedger) Record(_ context.Context, row command.ProcessedCommand) error {
	r.s.pendingRows = append(r.s.pendingRows, ledgerRow{row.CorrelationID, row.CommandType, row.ProcessedAt})
	return nil
}

func copyOrder(o *order.Order) *order.Order {
	c := *o
	c.Recorder = domain.Recorder{}
	c.Items = append([]order.OrderItem(nil), o.Items...)
	return &c
}

func copyStock(s *stock.StockItem) *stock.StockItem {
	c := *s
	c.Recorder = domain.Recorder{}
	return &c
}
