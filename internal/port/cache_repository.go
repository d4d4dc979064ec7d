package port

import (
	"context"

	"github.com/rl1809/general-store/internal/core/domain"
)

type TransactionCache interface {
	// GetTransaction returns false on a miss
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, bool)

	SetTransaction(ctx context.Context, transaction domain.Transaction)

	InvalidateTransaction(ctx context.Context, id int64)
}

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
