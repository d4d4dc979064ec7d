package domain

import "time"

type Transaction struct {
	ID                int64     `json:"id"`
	CustomerID        int64     `json:"customerId"`
	ProductID         int64     `json:"productId"`
	ItemCount         int       `json:"itemCount"`
	DateOfTransaction time.Time `json:"dateOfTransaction"`
}

// TransactionInput carries the caller-supplied fields of a create or update.
type TransactionInput struct {
	CustomerID int64
	ProductID  int64
	ItemCount  int
}

// Apply overwrites the mutable fields and reports whether any of them changed.
func (t *Transaction) Apply(in TransactionInput) bool {
	changed := t.CustomerID != in.CustomerID || t.ProductID != in.ProductID || t.ItemCount != in.ItemCount
	t.CustomerID = in.CustomerID
	t.ProductID = in.ProductID
	t.ItemCount = in.ItemCount
	return changed
}
