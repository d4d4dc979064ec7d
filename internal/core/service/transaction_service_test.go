package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rl1809/general-store/internal/adapter/storage"
	"github.com/rl1809/general-store/internal/core/domain"
	"github.com/rl1809/general-store/internal/port"
)

// Mock IdempotencyStore
type mockIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMockIdempotencyStore() *mockIdempotencyStore {
	return &mockIdempotencyStore{keys: make(map[string]bool)}
}

func (m *mockIdempotencyStore) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockIdempotencyStore) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// Mock TransactionCache
type mockCache struct {
	mu    sync.Mutex
	items map[int64]domain.Transaction
	hits  int
}

func newMockCache() *mockCache {
	return &mockCache{items: make(map[int64]domain.Transaction)}
}

func (m *mockCache) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[id]
	if !ok {
		return nil, false
	}
	m.hits++
	return &t, true
}

func (m *mockCache) SetTransaction(ctx context.Context, transaction domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[transaction.ID] = transaction
}

func (m *mockCache) InvalidateTransaction(ctx context.Context, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
}

// eventRecorder collects queued events
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) Enqueue(event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// fixedCountDB reports a fixed change count from every commit
type fixedCountDB struct {
	port.Database
	count int
}

func (d fixedCountDB) Begin(ctx context.Context) (port.UnitOfWork, error) {
	uow, err := d.Database.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return fixedCountUnit{UnitOfWork: uow, count: d.count}, nil
}

type fixedCountUnit struct {
	port.UnitOfWork
	count int
}

func (u fixedCountUnit) Commit() (int, error) {
	if _, err := u.UnitOfWork.Commit(); err != nil {
		return 0, err
	}
	return u.count, nil
}

// pausingDB holds the first FindTransaction after arm until release is closed
type pausingDB struct {
	port.Database
	armed   atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func newPausingDB(db port.Database) *pausingDB {
	return &pausingDB{Database: db, reached: make(chan struct{}), release: make(chan struct{})}
}

func (d *pausingDB) Begin(ctx context.Context) (port.UnitOfWork, error) {
	uow, err := d.Database.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pausingUnit{UnitOfWork: uow, db: d}, nil
}

type pausingUnit struct {
	port.UnitOfWork
	db *pausingDB
}

func (u *pausingUnit) FindTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	transaction, err := u.UnitOfWork.FindTransaction(ctx, id)
	if u.db.armed.CompareAndSwap(true, false) {
		close(u.db.reached)
		<-u.db.release
	}
	return transaction, err
}

type fixture struct {
	db        *storage.MemoryAdapter
	svc       *TransactionService
	catalog   *CatalogService
	cache     *mockCache
	idem      *mockIdempotencyStore
	events    *eventRecorder
	customers []domain.Customer
	products  []domain.Product
}

// newFixture seeds two customers and two products with 10 units each.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := storage.NewMemoryAdapter()
	catalog := NewCatalogService(db)

	customers := []domain.Customer{
		{FirstName: "Ada", LastName: "Lovelace"},
		{FirstName: "Alan", LastName: "Turing"},
	}
	products := []domain.Product{
		{Name: "Lantern", Price: 1299, NumberInInventory: 10},
		{Name: "Rope", Price: 499, NumberInInventory: 10},
	}
	if _, err := catalog.Seed(context.Background(), customers, products); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	f := &fixture{
		db:        db,
		catalog:   catalog,
		cache:     newMockCache(),
		idem:      newMockIdempotencyStore(),
		events:    &eventRecorder{},
		customers: customers,
		products:  products,
	}
	f.svc = NewTransactionService(db, f.cache, f.idem, f.events, nil)
	return f
}

func (f *fixture) inventory(t *testing.T, productID int64) int {
	t.Helper()
	p, err := f.catalog.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product %d: %v", productID, err)
	}
	return p.NumberInInventory
}

func (f *fixture) input(customer, product, items int) domain.TransactionInput {
	return domain.TransactionInput{
		CustomerID: f.customers[customer].ID,
		ProductID:  f.products[product].ID,
		ItemCount:  items,
	}
}

func TestCreate_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transaction, err := f.svc.Create(ctx, "", f.input(0, 0, 4))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if transaction.ID == 0 {
		t.Error("expected assigned transaction ID")
	}
	if transaction.DateOfTransaction.IsZero() {
		t.Error("expected date of transaction to be set")
	}
	if got := f.inventory(t, f.products[0].ID); got != 6 {
		t.Errorf("expected inventory 6, got %d", got)
	}

	stored, err := f.svc.Get(ctx, transaction.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.CustomerID != f.customers[0].ID || stored.ProductID != f.products[0].ID || stored.ItemCount != 4 {
		t.Errorf("unexpected stored transaction: %+v", stored)
	}

	if types := f.events.types(); len(types) != 1 || types[0] != domain.EventTransactionCreated {
		t.Errorf("expected one created event, got %v", types)
	}
}

func TestCreate_InsufficientInventory(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), "", f.input(0, 0, 11))
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got: %v", err)
	}

	if got := f.inventory(t, f.products[0].ID); got != 10 {
		t.Errorf("expected inventory unchanged at 10, got %d", got)
	}
	all, _ := f.svc.List(context.Background())
	if len(all) != 0 {
		t.Errorf("expected no transactions, got %d", len(all))
	}
	if len(f.events.types()) != 0 {
		t.Error("expected no events for a rejected create")
	}
}

func TestCreate_ExactInventoryAllowed(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Create(context.Background(), "", f.input(0, 0, 10)); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if got := f.inventory(t, f.products[0].ID); got != 0 {
		t.Errorf("expected inventory 0, got %d", got)
	}
}

func TestCreate_NotFound(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   domain.TransactionInput
	}{
		{"missing customer", domain.TransactionInput{CustomerID: 999, ProductID: f.products[0].ID, ItemCount: 1}},
		{"missing product", domain.TransactionInput{CustomerID: f.customers[0].ID, ProductID: 999, ItemCount: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), "", tt.in)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got: %v", err)
			}
		})
	}
}

func TestCreate_InvalidInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   domain.TransactionInput
	}{
		{"zero item count", f.input(0, 0, 0)},
		{"negative item count", f.input(0, 0, -3)},
		{"zero customer", domain.TransactionInput{ProductID: f.products[0].ID, ItemCount: 1}},
		{"zero product", domain.TransactionInput{CustomerID: f.customers[0].ID, ItemCount: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), "", tt.in)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got: %v", err)
			}
		})
	}
}

func TestCreate_DuplicateRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, "req-1", f.input(0, 0, 1)); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	_, err := f.svc.Create(ctx, "req-1", f.input(0, 0, 1))
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}

	// Inventory should only be decremented once
	if got := f.inventory(t, f.products[0].ID); got != 9 {
		t.Errorf("expected inventory 9, got %d", got)
	}
}

func TestCreate_FailureReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "req-retry", f.input(0, 0, 50))
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got: %v", err)
	}

	if _, err := f.svc.Create(ctx, "req-retry", f.input(0, 0, 5)); err != nil {
		t.Errorf("retry with the same key should succeed, got: %v", err)
	}
}

func TestCreate_Concurrent(t *testing.T) {
	f := newFixture(t)
	initialStock := 10
	totalRequests := 30

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), "", f.input(0, 0, 1))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, ErrConflict), errors.Is(err, ErrInsufficientInventory):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	success := int(successCount.Load())
	if success > initialStock {
		t.Errorf("oversold: %d successes for %d units", success, initialStock)
	}
	if got := f.inventory(t, f.products[0].ID); got != initialStock-success {
		t.Errorf("expected inventory %d, got %d", initialStock-success, got)
	}
	all, _ := f.svc.List(context.Background())
	if len(all) != success {
		t.Errorf("expected %d transactions, got %d", success, len(all))
	}
}

func TestDelete_RestoresInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transaction, err := f.svc.Create(ctx, "", f.input(0, 1, 7))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if got := f.inventory(t, f.products[1].ID); got != 3 {
		t.Fatalf("expected inventory 3, got %d", got)
	}

	if err := f.svc.Delete(ctx, transaction.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if got := f.inventory(t, f.products[1].ID); got != 10 {
		t.Errorf("expected inventory restored to 10, got %d", got)
	}
	if _, err := f.svc.Get(ctx, transaction.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got: %v", err)
	}

	types := f.events.types()
	if len(types) != 2 || types[1] != domain.EventTransactionDeleted {
		t.Errorf("expected created then deleted events, got %v", types)
	}
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.Delete(context.Background(), 12345); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

// The commit must change exactly two records; a store that reports another
// count turns the delete into an internal failure.
func TestDelete_UnexpectedChangeCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transaction, err := f.svc.Create(ctx, "", f.input(0, 0, 2))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	svc := NewTransactionService(fixedCountDB{Database: f.db, count: 1}, f.cache, nil, nil, nil)
	err = svc.Delete(ctx, transaction.ID)
	if !errors.Is(err, ErrUnexpectedChangeCount) {
		t.Fatalf("expected ErrUnexpectedChangeCount, got: %v", err)
	}

	// the commit itself went through
	if got := f.inventory(t, f.products[0].ID); got != 10 {
		t.Errorf("expected inventory 10, got %d", got)
	}
}

func TestCreateThenDelete_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for items := 1; items <= 10; items++ {
		before := f.inventory(t, f.products[0].ID)

		transaction, err := f.svc.Create(ctx, "", f.input(0, 0, items))
		if err != nil {
			t.Fatalf("create %d failed: %v", items, err)
		}
		if err := f.svc.Delete(ctx, transaction.ID); err != nil {
			t.Fatalf("delete %d failed: %v", items, err)
		}

		if after := f.inventory(t, f.products[0].ID); after != before {
			t.Errorf("items=%d: expected inventory %d, got %d", items, before, after)
		}
	}
}

// Update takes the OLD item count out of the new product. Create(A, X, 5)
// then Update to (B, Y, 3) restores X by 5 and takes 5, not 3, from Y.
func TestUpdate_DecrementsNewProductByOldItemCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productX, productY := f.products[0].ID, f.products[1].ID

	transaction, err := f.svc.Create(ctx, "", f.input(0, 0, 5))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := f.svc.Update(ctx, transaction.ID, f.input(1, 1, 3)); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if got := f.inventory(t, productX); got != 10 {
		t.Errorf("expected product X restored to 10, got %d", got)
	}
	if got := f.inventory(t, productY); got != 5 {
		t.Errorf("expected product Y decremented by old count to 5, got %d", got)
	}

	updated, err := f.svc.Get(ctx, transaction.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if updated.CustomerID != f.customers[1].ID || updated.ProductID != productY || updated.ItemCount != 3 {
		t.Errorf("unexpected updated transaction: %+v", updated)
	}
}

func TestUpdate_SameProductLeavesInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transaction, err := f.svc.Create(ctx, "", f.input(0, 0, 4))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := f.svc.Update(ctx, transaction.ID, f.input(0, 0, 2)); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if got := f.inventory(t, f.products[0].ID); got != 6 {
		t.Errorf("expected inventory 6, got %d", got)
	}
}

func TestUpdate_NoChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transaction, err := f.svc.Create(ctx, "", f.input(0, 0, 4))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err = f.svc.Update(ctx, transaction.ID, f.input(0, 0, 4))
	if !errors.Is(err, ErrNoChanges) {
		t.Errorf("expected ErrNoChanges, got: %v", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transaction, err := f.svc.Create(ctx, "", f.input(0, 0, 1))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	tests := []struct {
		name string
		id   int64
		in   domain.TransactionInput
	}{
		{"missing transaction", 9999, f.input(0, 0, 1)},
		{"missing customer", transaction.ID, domain.TransactionInput{CustomerID: 9999, ProductID: f.products[0].ID, ItemCount: 1}},
		{"missing product", transaction.ID, domain.TransactionInput{CustomerID: f.customers[0].ID, ProductID: 9999, ItemCount: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.svc.Update(ctx, tt.id, tt.in); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got: %v", err)
			}
		})
	}
}

func TestUpdate_InvalidatesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transaction, err := f.svc.Create(ctx, "", f.input(0, 0, 4))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, ok := f.cache.GetTransaction(ctx, transaction.ID); !ok {
		t.Fatal("expected create to warm the cache")
	}

	if err := f.svc.Update(ctx, transaction.ID, f.input(1, 0, 4)); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, ok := f.cache.GetTransaction(ctx, transaction.ID); ok {
		t.Error("expected update to invalidate the cache")
	}

	got, err := f.svc.Get(ctx, transaction.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.CustomerID != f.customers[1].ID {
		t.Errorf("expected fresh read with customer %d, got %d", f.customers[1].ID, got.CustomerID)
	}
}

func TestGet_ServedFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cached := domain.Transaction{ID: 777, CustomerID: 1, ProductID: 2, ItemCount: 3}
	f.cache.SetTransaction(ctx, cached)

	got, err := f.svc.Get(ctx, 777)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != cached {
		t.Errorf("expected cached transaction, got %+v", got)
	}
	if f.cache.hits != 1 {
		t.Errorf("expected 1 cache hit, got %d", f.cache.hits)
	}
}

// startPausedGet runs a Get that misses the cache and stops right after its
// store read, before it fills the cache.
func startPausedGet(t *testing.T, f *fixture) (*TransactionService, domain.Transaction, func() error) {
	t.Helper()
	ctx := context.Background()

	db := newPausingDB(f.db)
	svc := NewTransactionService(db, f.cache, nil, nil, nil)

	created, err := svc.Create(ctx, "", f.input(0, 0, 2))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.cache.InvalidateTransaction(ctx, created.ID)

	db.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := svc.Get(ctx, created.ID)
		done <- err
	}()
	<-db.reached

	return svc, created, func() error {
		close(db.release)
		return <-done
	}
}

func TestGet_ConcurrentUpdateLeavesNoStaleView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	svc, created, finishGet := startPausedGet(t, f)
	if err := svc.Update(ctx, created.ID, f.input(1, 0, 7)); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := finishGet(); err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if cached, ok := f.cache.GetTransaction(ctx, created.ID); ok {
		t.Fatalf("expected no cached view after a racing update, got %+v", *cached)
	}
	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.CustomerID != f.customers[1].ID || got.ItemCount != 7 {
		t.Errorf("expected customer %d with 7 items, got customer %d with %d items",
			f.customers[1].ID, got.CustomerID, got.ItemCount)
	}
}

func TestGet_ConcurrentDeleteLeavesNoStaleView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	svc, created, finishGet := startPausedGet(t, f)
	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := finishGet(); err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if _, err := svc.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got: %v", err)
	}
}

func TestGet_CancelledCallerStillReadsStore(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.Create(context.Background(), "", f.input(0, 0, 1))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.cache.InvalidateTransaction(context.Background(), created.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := f.svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("expected shared lookup to ignore caller cancellation, got: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("expected transaction %d, got %d", created.ID, got.ID)
	}
}

func TestList_EmptyIsSuccess(t *testing.T) {
	f := newFixture(t)

	transactions, err := f.svc.List(context.Background())
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if transactions == nil || len(transactions) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", transactions)
	}
}

func TestListByCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.ListByCustomer(ctx, f.customers[0].ID); !errors.Is(err, ErrNoTransactions) {
		t.Fatalf("expected ErrNoTransactions, got: %v", err)
	}

	for _, in := range []domain.TransactionInput{f.input(0, 0, 1), f.input(1, 0, 1), f.input(0, 1, 2)} {
		if _, err := f.svc.Create(ctx, "", in); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	transactions, err := f.svc.ListByCustomer(ctx, f.customers[0].ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(transactions))
	}
	for _, tr := range transactions {
		if tr.CustomerID != f.customers[0].ID {
			t.Errorf("unexpected customer %d", tr.CustomerID)
		}
	}
}

// Product P starts at 10: take 4, fail to take 10, return the 4.
func TestInventoryScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productP := f.products[0].ID

	first, err := f.svc.Create(ctx, "", f.input(0, 0, 4))
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if got := f.inventory(t, productP); got != 6 {
		t.Fatalf("expected inventory 6, got %d", got)
	}

	if _, err := f.svc.Create(ctx, "", f.input(0, 0, 10)); !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got: %v", err)
	}
	if got := f.inventory(t, productP); got != 6 {
		t.Fatalf("expected inventory to stay 6, got %d", got)
	}

	if err := f.svc.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got := f.inventory(t, productP); got != 10 {
		t.Errorf("expected inventory 10, got %d", got)
	}
}
