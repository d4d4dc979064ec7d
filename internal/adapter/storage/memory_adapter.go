package storage

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/rl1809/general-store/internal/core/domain"
	"github.com/rl1809/general-store/internal/port"
)

var errUnitFinished = errors.New("unit of work already finished")

// MemoryAdapter keeps the store in process. A unit of work reads from a
// snapshot taken at Begin and applies its writes atomically on Commit,
// checking product versions the same way the SQL store does.
type MemoryAdapter struct {
	mu           sync.Mutex
	customers    map[int64]domain.Customer
	products     map[int64]domain.Product
	transactions map[int64]domain.Transaction

	// one sequence per table, like AUTO_INCREMENT / BIGSERIAL
	lastCustomerID    int64
	lastProductID     int64
	lastTransactionID int64
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		customers:    make(map[int64]domain.Customer),
		products:     make(map[int64]domain.Product),
		transactions: make(map[int64]domain.Transaction),
	}
}

func (m *MemoryAdapter) Begin(ctx context.Context) (port.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return &memoryUnit{
		store:        m,
		customers:    maps.Clone(m.customers),
		products:     maps.Clone(m.products),
		transactions: maps.Clone(m.transactions),
	}, nil
}

func (m *MemoryAdapter) nextID(seq *int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	*seq++
	return *seq
}

type memoryOpKind int

const (
	opInsertCustomer memoryOpKind = iota
	opInsertProduct
	opInsertTransaction
	opUpdateTransaction
	opRemoveTransaction
	opUpdateInventory
)

type memoryOp struct {
	kind        memoryOpKind
	customer    domain.Customer
	product     domain.Product
	transaction domain.Transaction
}

type memoryUnit struct {
	store    *MemoryAdapter
	finished bool
	ops      []memoryOp

	customers    map[int64]domain.Customer
	products     map[int64]domain.Product
	transactions map[int64]domain.Transaction
}

func (u *memoryUnit) FindCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	c, ok := u.customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (u *memoryUnit) FindProduct(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := u.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (u *memoryUnit) FindTransaction(_ context.Context, id int64) (*domain.Transaction, error) {
	t, ok := u.transactions[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (u *memoryUnit) ListProducts(context.Context) ([]domain.Product, error) {
	var out []domain.Product
	for _, id := range slices.Sorted(maps.Keys(u.products)) {
		out = append(out, u.products[id])
	}
	return out, nil
}

func (u *memoryUnit) ListTransactions(context.Context) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, id := range slices.Sorted(maps.Keys(u.transactions)) {
		out = append(out, u.transactions[id])
	}
	return out, nil
}

func (u *memoryUnit) ListTransactionsByCustomer(_ context.Context, customerID int64) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, id := range slices.Sorted(maps.Keys(u.transactions)) {
		if t := u.transactions[id]; t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (u *memoryUnit) InsertCustomer(_ context.Context, customer *domain.Customer) error {
	customer.ID = u.store.nextID(&u.store.lastCustomerID)
	u.customers[customer.ID] = *customer
	u.ops = append(u.ops, memoryOp{kind: opInsertCustomer, customer: *customer})
	return nil
}

func (u *memoryUnit) InsertProduct(_ context.Context, product *domain.Product) error {
	product.ID = u.store.nextID(&u.store.lastProductID)
	product.Version = 0
	u.products[product.ID] = *product
	u.ops = append(u.ops, memoryOp{kind: opInsertProduct, product: *product})
	return nil
}

func (u *memoryUnit) InsertTransaction(_ context.Context, transaction *domain.Transaction) error {
	transaction.ID = u.store.nextID(&u.store.lastTransactionID)
	u.transactions[transaction.ID] = *transaction
	u.ops = append(u.ops, memoryOp{kind: opInsertTransaction, transaction: *transaction})
	return nil
}

func (u *memoryUnit) UpdateTransaction(_ context.Context, transaction domain.Transaction) error {
	if _, ok := u.transactions[transaction.ID]; ok {
		u.transactions[transaction.ID] = transaction
	}
	u.ops = append(u.ops, memoryOp{kind: opUpdateTransaction, transaction: transaction})
	return nil
}

func (u *memoryUnit) RemoveTransaction(_ context.Context, id int64) error {
	delete(u.transactions, id)
	u.ops = append(u.ops, memoryOp{kind: opRemoveTransaction, transaction: domain.Transaction{ID: id}})
	return nil
}

func (u *memoryUnit) UpdateProductInventory(_ context.Context, product domain.Product) error {
	current, ok := u.products[product.ID]
	if !ok || current.Version != product.Version {
		return port.ErrOptimisticLock
	}
	current.NumberInInventory = product.NumberInInventory
	current.Version++
	u.products[product.ID] = current
	u.ops = append(u.ops, memoryOp{kind: opUpdateInventory, product: product})
	return nil
}

// Commit replays the pending writes against the shared maps. A product whose
// version moved since it was read aborts the whole commit.
func (u *memoryUnit) Commit() (int, error) {
	if u.finished {
		return 0, errUnitFinished
	}
	u.finished = true

	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := make(map[int64]int)
	for _, op := range u.ops {
		switch op.kind {
		case opInsertProduct:
			versions[op.product.ID] = op.product.Version
		case opUpdateInventory:
			expected, ok := versions[op.product.ID]
			if !ok {
				current, exists := s.products[op.product.ID]
				if !exists {
					return 0, port.ErrOptimisticLock
				}
				expected = current.Version
			}
			if expected != op.product.Version {
				return 0, port.ErrOptimisticLock
			}
			versions[op.product.ID] = expected + 1
		}
	}

	changes := 0
	for _, op := range u.ops {
		switch op.kind {
		case opInsertCustomer:
			s.customers[op.customer.ID] = op.customer
			changes++
		case opInsertProduct:
			s.products[op.product.ID] = op.product
			changes++
		case opInsertTransaction:
			s.transactions[op.transaction.ID] = op.transaction
			changes++
		case opUpdateTransaction:
			current, ok := s.transactions[op.transaction.ID]
			if !ok {
				continue
			}
			// only the mutable columns are written
			updated := current
			updated.CustomerID = op.transaction.CustomerID
			updated.ProductID = op.transaction.ProductID
			updated.ItemCount = op.transaction.ItemCount
			if updated != current {
				s.transactions[op.transaction.ID] = updated
				changes++
			}
		case opRemoveTransaction:
			if _, ok := s.transactions[op.transaction.ID]; ok {
				delete(s.transactions, op.transaction.ID)
				changes++
			}
		case opUpdateInventory:
			current := s.products[op.product.ID]
			current.NumberInInventory = op.product.NumberInInventory
			current.Version++
			s.products[op.product.ID] = current
			changes++
		}
	}
	return changes, nil
}

func (u *memoryUnit) Rollback() error {
	u.finished = true
	return nil
}
