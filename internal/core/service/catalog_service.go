package service

import (
	"context"
	"fmt"

	"github.com/rl1809/general-store/internal/core/domain"
	"github.com/rl1809/general-store/internal/port"
)

// CatalogService exposes customers and products read-only. Their lifecycle is
// owned elsewhere; Seed exists for local setups.
type CatalogService struct {
	db port.Database
}

func NewCatalogService(db port.Database) *CatalogService {
	return &CatalogService{db: db}
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	uow, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer uow.Rollback()

	products, err := uow.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	uow, err := s.db.Begin(ctx)
	if err != nil {
		return domain.Product{}, fmt.Errorf("begin: %w", err)
	}
	defer uow.Rollback()

	product, err := uow.FindProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if product == nil {
		return domain.Product{}, ErrNotFound
	}
	return *product, nil
}

func (s *CatalogService) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	uow, err := s.db.Begin(ctx)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("begin: %w", err)
	}
	defer uow.Rollback()

	customer, err := uow.FindCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, ErrNotFound
	}
	return *customer, nil
}

// Seed inserts customers and products in one commit and returns the number of
// records written.
func (s *CatalogService) Seed(ctx context.Context, customers []domain.Customer, products []domain.Product) (int, error) {
	uow, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer uow.Rollback()

	for i := range customers {
		if err := uow.InsertCustomer(ctx, &customers[i]); err != nil {
			return 0, err
		}
	}
	for i := range products {
		if products[i].NumberInInventory < 0 {
			return 0, fmt.Errorf("%w: product %q has negative inventory", ErrInvalidInput, products[i].Name)
		}
		if err := uow.InsertProduct(ctx, &products[i]); err != nil {
			return 0, err
		}
	}

	return uow.Commit()
}
