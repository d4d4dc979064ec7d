package service

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrNoTransactions        = errors.New("customer has no transactions")
	ErrDuplicateRequest      = errors.New("duplicate request")
	ErrConflict              = errors.New("inventory changed concurrently")

	// ErrNoChanges and ErrUnexpectedChangeCount are internal failures: the
	// commit went through but did not alter the expected number of records.
	ErrNoChanges             = errors.New("commit changed no records")
	ErrUnexpectedChangeCount = errors.New("unexpected change count")
)
