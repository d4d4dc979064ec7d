package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/general-store/internal/core/domain"
	"github.com/rl1809/general-store/internal/port"
)

const (
	idempotencyKeyPrefix = "idempotency:transaction:"

	// deleteChangeCount is the transaction removal plus the product counter write.
	deleteChangeCount = 2
)

// EventQueue accepts domain events for asynchronous publication.
type EventQueue interface {
	Enqueue(event domain.Event)
}

// TransactionService keeps each product's inventory counter in step with the
// transactions that reference it. Every operation runs in one unit of work.
type TransactionService struct {
	db     port.Database
	cache  port.TransactionCache
	idem   port.IdempotencyStore
	events EventQueue
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time

	// cacheGen moves on every invalidation; a fill started under an older
	// generation may hold a row read before the write and is dropped.
	cacheMu  sync.Mutex
	cacheGen uint64
}

// NewTransactionService wires the service. cache, idem and events may be nil.
func NewTransactionService(db port.Database, cache port.TransactionCache, idem port.IdempotencyStore, events EventQueue, logger *slog.Logger) *TransactionService {
	if cache == nil {
		cache = nopCache{}
	}
	if events == nil {
		events = nopQueue{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TransactionService{
		db:     db,
		cache:  cache,
		idem:   idem,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Create records a new transaction and takes its items out of inventory.
// A non-empty idempotencyKey rejects repeats of the same request.
func (s *TransactionService) Create(ctx context.Context, idempotencyKey string, in domain.TransactionInput) (domain.Transaction, error) {
	if err := validateInput(in); err != nil {
		return domain.Transaction{}, err
	}

	if idempotencyKey != "" && s.idem != nil {
		ok, err := s.idem.SetIdempotency(ctx, idempotencyKeyPrefix+idempotencyKey)
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.Transaction{}, ErrDuplicateRequest
		}
	}

	gen := s.cacheGeneration()
	transaction, levels, err := s.create(ctx, in)
	if err != nil {
		if idempotencyKey != "" && s.idem != nil {
			if releaseErr := s.idem.ReleaseIdempotency(ctx, idempotencyKeyPrefix+idempotencyKey); releaseErr != nil {
				s.logger.Warn("release idempotency key", "key", idempotencyKey, "error", releaseErr)
			}
		}
		return domain.Transaction{}, err
	}

	s.fillCache(ctx, gen, transaction)
	s.publish(domain.EventTransactionCreated, transaction, levels)
	s.logger.Info("transaction created",
		"transaction_id", transaction.ID,
		"product_id", transaction.ProductID,
		"item_count", transaction.ItemCount,
	)
	return transaction, nil
}

func (s *TransactionService) create(ctx context.Context, in domain.TransactionInput) (domain.Transaction, []domain.InventoryLevel, error) {
	uow, err := s.db.Begin(ctx)
	if err != nil {
		return domain.Transaction{}, nil, fmt.Errorf("begin: %w", err)
	}
	defer uow.Rollback()

	customer, err := uow.FindCustomer(ctx, in.CustomerID)
	if err != nil {
		return domain.Transaction{}, nil, err
	}
	product, err := uow.FindProduct(ctx, in.ProductID)
	if err != nil {
		return domain.Transaction{}, nil, err
	}
	if customer == nil || product == nil {
		return domain.Transaction{}, nil, ErrNotFound
	}

	if product.NumberInInventory < in.ItemCount {
		return domain.Transaction{}, nil, ErrInsufficientInventory
	}

	transaction := domain.Transaction{
		CustomerID:        in.CustomerID,
		ProductID:         in.ProductID,
		ItemCount:         in.ItemCount,
		DateOfTransaction: s.now().UTC(),
	}
	if err := uow.InsertTransaction(ctx, &transaction); err != nil {
		return domain.Transaction{}, nil, err
	}

	product.NumberInInventory -= in.ItemCount
	if err := uow.UpdateProductInventory(ctx, *product); err != nil {
		return domain.Transaction{}, nil, conflictOr(err)
	}

	if _, err := uow.Commit(); err != nil {
		return domain.Transaction{}, nil, conflictOr(err)
	}

	return transaction, []domain.InventoryLevel{levelOf(*product)}, nil
}

// List returns every transaction; an empty store yields an empty slice.
func (s *TransactionService) List(ctx context.Context) ([]domain.Transaction, error) {
	uow, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer uow.Rollback()

	transactions, err := uow.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	return transactions, nil
}

// Get reads through the view cache. Concurrent misses for the same id share
// one store lookup, detached from any single caller's cancellation.
func (s *TransactionService) Get(ctx context.Context, id int64) (domain.Transaction, error) {
	if cached, ok := s.cache.GetTransaction(ctx, id); ok {
		return *cached, nil
	}

	v, err, _ := s.group.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
		ctx := context.WithoutCancel(ctx)
		gen := s.cacheGeneration()

		uow, err := s.db.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin: %w", err)
		}
		defer uow.Rollback()

		transaction, err := uow.FindTransaction(ctx, id)
		if err != nil {
			return nil, err
		}
		if transaction == nil {
			return nil, ErrNotFound
		}
		s.fillCache(ctx, gen, *transaction)
		return *transaction, nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return v.(domain.Transaction), nil
}

// ListByCustomer returns the customer's transactions. Unlike List, an empty
// result is reported as ErrNoTransactions.
func (s *TransactionService) ListByCustomer(ctx context.Context, customerID int64) ([]domain.Transaction, error) {
	uow, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer uow.Rollback()

	transactions, err := uow.ListTransactionsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(transactions) == 0 {
		return nil, ErrNoTransactions
	}
	return transactions, nil
}

// Update returns the old item count to the old product, overwrites the
// transaction, then takes the old item count out of the new product.
// The new item count never reaches inventory; callers depend on this.
func (s *TransactionService) Update(ctx context.Context, id int64, in domain.TransactionInput) error {
	if err := validateInput(in); err != nil {
		return err
	}

	transaction, levels, err := s.update(ctx, id, in)
	if err != nil {
		return err
	}

	s.invalidateCache(ctx, id)
	s.publish(domain.EventTransactionUpdated, transaction, levels)
	s.logger.Info("transaction updated", "transaction_id", id)
	return nil
}

func (s *TransactionService) update(ctx context.Context, id int64, in domain.TransactionInput) (domain.Transaction, []domain.InventoryLevel, error) {
	uow, err := s.db.Begin(ctx)
	if err != nil {
		return domain.Transaction{}, nil, fmt.Errorf("begin: %w", err)
	}
	defer uow.Rollback()

	transaction, err := uow.FindTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, nil, err
	}
	newCustomer, err := uow.FindCustomer(ctx, in.CustomerID)
	if err != nil {
		return domain.Transaction{}, nil, err
	}
	newProduct, err := uow.FindProduct(ctx, in.ProductID)
	if err != nil {
		return domain.Transaction{}, nil, err
	}
	if transaction == nil || newCustomer == nil || newProduct == nil {
		return domain.Transaction{}, nil, ErrNotFound
	}

	tracker := newInventoryTracker()
	newProduct = tracker.track(newProduct)
	oldProduct := newProduct
	if transaction.ProductID != newProduct.ID {
		found, err := uow.FindProduct(ctx, transaction.ProductID)
		if err != nil {
			return domain.Transaction{}, nil, err
		}
		if found == nil {
			return domain.Transaction{}, nil, ErrNotFound
		}
		oldProduct = tracker.track(found)
	}

	oldItemCount := transaction.ItemCount
	oldProduct.NumberInInventory += oldItemCount
	changed := transaction.Apply(in)
	newProduct.NumberInInventory -= oldItemCount

	for _, product := range tracker.dirty() {
		if err := uow.UpdateProductInventory(ctx, *product); err != nil {
			return domain.Transaction{}, nil, conflictOr(err)
		}
	}
	if changed {
		if err := uow.UpdateTransaction(ctx, *transaction); err != nil {
			return domain.Transaction{}, nil, err
		}
	}

	changes, err := uow.Commit()
	if err != nil {
		return domain.Transaction{}, nil, conflictOr(err)
	}
	if changes == 0 {
		return domain.Transaction{}, nil, ErrNoChanges
	}

	return *transaction, tracker.levels(), nil
}

// Delete returns the transaction's items to inventory and removes it. The
// commit must report exactly two changed records; any other count is an
// internal failure even though the commit has already been applied.
func (s *TransactionService) Delete(ctx context.Context, id int64) error {
	uow, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer uow.Rollback()

	transaction, err := uow.FindTransaction(ctx, id)
	if err != nil {
		return err
	}
	if transaction == nil {
		return ErrNotFound
	}
	found, err := uow.FindProduct(ctx, transaction.ProductID)
	if err != nil {
		return err
	}
	if found == nil {
		return ErrNotFound
	}

	tracker := newInventoryTracker()
	product := tracker.track(found)
	product.NumberInInventory += transaction.ItemCount

	for _, p := range tracker.dirty() {
		if err := uow.UpdateProductInventory(ctx, *p); err != nil {
			return conflictOr(err)
		}
	}
	if err := uow.RemoveTransaction(ctx, id); err != nil {
		return err
	}

	changes, err := uow.Commit()
	if err != nil {
		return conflictOr(err)
	}
	s.invalidateCache(ctx, id)

	if changes != deleteChangeCount {
		s.logger.Error("delete changed unexpected number of records",
			"transaction_id", id,
			"changes", changes,
			"expected", deleteChangeCount,
		)
		return fmt.Errorf("%w: got %d, want %d", ErrUnexpectedChangeCount, changes, deleteChangeCount)
	}

	s.publish(domain.EventTransactionDeleted, *transaction, []domain.InventoryLevel{levelOf(*product)})
	s.logger.Info("transaction deleted", "transaction_id", id)
	return nil
}

func (s *TransactionService) publish(eventType domain.EventType, transaction domain.Transaction, levels []domain.InventoryLevel) {
	s.events.Enqueue(domain.Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Transaction: transaction,
		Inventory:   levels,
		OccurredAt:  s.now().UTC(),
	})
}

func (s *TransactionService) cacheGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cacheGen
}

// fillCache stores the view only if no write invalidated the cache since gen
// was taken.
func (s *TransactionService) fillCache(ctx context.Context, gen uint64, transaction domain.Transaction) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheGen != gen {
		return
	}
	s.cache.SetTransaction(ctx, transaction)
}

func (s *TransactionService) invalidateCache(ctx context.Context, id int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cacheGen++
	s.cache.InvalidateTransaction(ctx, id)
}

func validateInput(in domain.TransactionInput) error {
	if in.CustomerID <= 0 || in.ProductID <= 0 || in.ItemCount <= 0 {
		return ErrInvalidInput
	}
	return nil
}

func conflictOr(err error) error {
	if errors.Is(err, port.ErrOptimisticLock) {
		return ErrConflict
	}
	return err
}

func levelOf(p domain.Product) domain.InventoryLevel {
	return domain.InventoryLevel{ProductID: p.ID, NumberInInventory: p.NumberInInventory}
}

// inventoryTracker remembers the counter each product had when it was read,
// so only products whose counter moved are written back.
type inventoryTracker struct {
	order    []int64
	products map[int64]*domain.Product
	initial  map[int64]int
}

func newInventoryTracker() *inventoryTracker {
	return &inventoryTracker{
		products: make(map[int64]*domain.Product),
		initial:  make(map[int64]int),
	}
}

func (t *inventoryTracker) track(p *domain.Product) *domain.Product {
	if tracked, ok := t.products[p.ID]; ok {
		return tracked
	}
	t.order = append(t.order, p.ID)
	t.products[p.ID] = p
	t.initial[p.ID] = p.NumberInInventory
	return p
}

func (t *inventoryTracker) dirty() []*domain.Product {
	var out []*domain.Product
	for _, id := range t.order {
		if p := t.products[id]; p.NumberInInventory != t.initial[id] {
			out = append(out, p)
		}
	}
	return out
}

func (t *inventoryTracker) levels() []domain.InventoryLevel {
	out := make([]domain.InventoryLevel, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, levelOf(*t.products[id]))
	}
	return out
}

type nopCache struct{}

func (nopCache) GetTransaction(context.Context, int64) (*domain.Transaction, bool) { return nil, false }
func (nopCache) SetTransaction(context.Context, domain.Transaction)               {}
func (nopCache) InvalidateTransaction(context.Context, int64)                     {}

type nopQueue struct{}

func (nopQueue) Enqueue(domain.Event) {}
