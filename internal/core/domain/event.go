package domain

import "time"

type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionUpdated EventType = "transaction.updated"
	EventTransactionDeleted EventType = "transaction.deleted"
)

// InventoryLevel is a product counter as it stood after a commit.
type InventoryLevel struct {
	ProductID         int64 `json:"productId"`
	NumberInInventory int   `json:"numberInInventory"`
}

type Event struct {
	ID          string           `json:"id"`
	Type        EventType        `json:"type"`
	Transaction Transaction      `json:"transaction"`
	Inventory   []InventoryLevel `json:"inventory"`
	OccurredAt  time.Time        `json:"occurredAt"`
}
