package port

import "context"

// Store is one backend handle serving every storage role.
type Store interface {
	CatalogRepository
	CapacityLedger
	OrderRepository

	// Ping returns domain.ErrStoreUnavailable when the backend cannot be reached
	Ping(ctx context.Context) error

	Close() error
}
