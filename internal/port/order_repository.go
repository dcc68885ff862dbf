package port

import (
	"context"

	"github.com/rl1809/lesson-booking/internal/core/domain"
)

type OrderRepository interface {
	// AppendOrder persists a new, immutable order and returns its id
	AppendOrder(ctx context.Context, order domain.Order) (string, error)

	// ListOrders returns every persisted order, oldest first
	ListOrders(ctx context.Context) ([]domain.Order, error)
}
