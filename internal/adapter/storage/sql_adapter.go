package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/general-store/internal/core/domain"
	"github.com/rl1809/general-store/internal/port"
)

// SQLAdapter is the relational store. Each unit of work is one database
// transaction; its change count is the sum of rows affected by its writes.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLAdapter(db *sql.DB, dialect Dialect) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: dialect}
}

func NewMySQLAdapter(db *sql.DB) *SQLAdapter {
	return NewSQLAdapter(db, DialectMySQL)
}

func NewPostgresAdapter(db *sql.DB) *SQLAdapter {
	return NewSQLAdapter(db, DialectPostgres)
}

// Migrate creates the tables if they do not exist.
func (a *SQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range a.dialect.schema() {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (a *SQLAdapter) Begin(ctx context.Context) (port.UnitOfWork, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &sqlUnit{tx: tx, dialect: a.dialect}, nil
}

type sqlUnit struct {
	tx      *sql.Tx
	dialect Dialect
	changes int
}

func (u *sqlUnit) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := u.tx.ExecContext(ctx, u.dialect.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	u.changes += int(rows)
	return rows, nil
}

func (u *sqlUnit) FindCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := u.tx.QueryRowContext(ctx, u.dialect.rebind(`
		SELECT id, first_name, last_name FROM customers WHERE id = ?`), id,
	).Scan(&c.ID, &c.FirstName, &c.LastName)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query customer: %w", err)
	}
	return &c, nil
}

func (u *sqlUnit) FindProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := u.tx.QueryRowContext(ctx, u.dialect.rebind(`
		SELECT id, name, price, number_in_inventory, version
		FROM products WHERE id = ?`), id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.NumberInInventory, &p.Version)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (u *sqlUnit) FindTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	var t domain.Transaction
	err := u.tx.QueryRowContext(ctx, u.dialect.rebind(`
		SELECT id, customer_id, product_id, item_count, date_of_transaction
		FROM transactions WHERE id = ?`), id,
	).Scan(&t.ID, &t.CustomerID, &t.ProductID, &t.ItemCount, &t.DateOfTransaction)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query transaction: %w", err)
	}
	return &t, nil
}

func (u *sqlUnit) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := u.tx.QueryContext(ctx, `
		SELECT id, name, price, number_in_inventory, version
		FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.NumberInInventory, &p.Version); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (u *sqlUnit) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return u.queryTransactions(ctx, `
		SELECT id, customer_id, product_id, item_count, date_of_transaction
		FROM transactions ORDER BY id`)
}

func (u *sqlUnit) ListTransactionsByCustomer(ctx context.Context, customerID int64) ([]domain.Transaction, error) {
	return u.queryTransactions(ctx, `
		SELECT id, customer_id, product_id, item_count, date_of_transaction
		FROM transactions WHERE customer_id = ? ORDER BY id`, customerID)
}

func (u *sqlUnit) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := u.tx.QueryContext(ctx, u.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.ProductID, &t.ItemCount, &t.DateOfTransaction); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func (u *sqlUnit) InsertCustomer(ctx context.Context, customer *domain.Customer) error {
	id, err := u.insert(ctx, `
		INSERT INTO customers (first_name, last_name) VALUES (?, ?)`,
		customer.FirstName, customer.LastName,
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	customer.ID = id
	return nil
}

func (u *sqlUnit) InsertProduct(ctx context.Context, product *domain.Product) error {
	id, err := u.insert(ctx, `
		INSERT INTO products (name, price, number_in_inventory, version) VALUES (?, ?, ?, 0)`,
		product.Name, product.Price, product.NumberInInventory,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	product.ID = id
	product.Version = 0
	return nil
}

func (u *sqlUnit) InsertTransaction(ctx context.Context, transaction *domain.Transaction) error {
	id, err := u.insert(ctx, `
		INSERT INTO transactions (customer_id, product_id, item_count, date_of_transaction)
		VALUES (?, ?, ?, ?)`,
		transaction.CustomerID, transaction.ProductID, transaction.ItemCount, transaction.DateOfTransaction,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	transaction.ID = id
	return nil
}

// insert returns the generated id. PostgreSQL has no LastInsertId, so the
// statement is extended with RETURNING there.
func (u *sqlUnit) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if u.dialect == DialectPostgres {
		var id int64
		if err := u.tx.QueryRowContext(ctx, u.dialect.rebind(query)+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		u.changes++
		return id, nil
	}

	result, err := u.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	u.changes += int(rows)
	return result.LastInsertId()
}

func (u *sqlUnit) UpdateTransaction(ctx context.Context, transaction domain.Transaction) error {
	_, err := u.exec(ctx, `
		UPDATE transactions
		SET customer_id = ?, product_id = ?, item_count = ?
		WHERE id = ?`,
		transaction.CustomerID, transaction.ProductID, transaction.ItemCount, transaction.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func (u *sqlUnit) RemoveTransaction(ctx context.Context, id int64) error {
	if _, err := u.exec(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

func (u *sqlUnit) UpdateProductInventory(ctx context.Context, product domain.Product) error {
	rows, err := u.exec(ctx, `
		UPDATE products
		SET number_in_inventory = ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND version = ?`,
		product.NumberInInventory, product.ID, product.Version,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}
	if rows == 0 {
		return port.ErrOptimisticLock
	}
	return nil
}

func (u *sqlUnit) Commit() (int, error) {
	if err := u.tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return u.changes, nil
}

func (u *sqlUnit) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
