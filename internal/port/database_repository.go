package port

import (
	"context"
	"errors"

	"github.com/rl1809/general-store/internal/core/domain"
)

var ErrOptimisticLock = errors.New("optimistic lock conflict")

type Database interface {
	// Begin opens a unit of work; it must be finished with Commit or Rollback
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork is a store handle scoped to one operation. Finders return
// (nil, nil) when the row does not exist.
type UnitOfWork interface {
	FindCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	FindProduct(ctx context.Context, id int64) (*domain.Product, error)
	FindTransaction(ctx context.Context, id int64) (*domain.Transaction, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	ListTransactionsByCustomer(ctx context.Context, customerID int64) ([]domain.Transaction, error)

	InsertCustomer(ctx context.Context, customer *domain.Customer) error
	InsertProduct(ctx context.Context, product *domain.Product) error

	// InsertTransaction assigns the new ID to transaction
	InsertTransaction(ctx context.Context, transaction *domain.Transaction) error
	UpdateTransaction(ctx context.Context, transaction domain.Transaction) error
	RemoveTransaction(ctx context.Context, id int64) error

	// UpdateProductInventory writes the counter with a version check and
	// returns ErrOptimisticLock if the product changed since it was read
	UpdateProductInventory(ctx context.Context, product domain.Product) error

	// Commit persists all pending writes and returns the number of changed records
	Commit() (int, error)
	Rollback() error
}
