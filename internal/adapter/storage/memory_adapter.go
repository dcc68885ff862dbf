package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rl1809/lesson-booking/internal/core/domain"
)

// MemoryAdapter keeps lessons and orders in process. Every capacity mutation
// happens under one mutex, which makes the conditional decrement atomic.
type MemoryAdapter struct {
	mu      sync.RWMutex
	lessons map[string]*domain.Lesson
	orders  []domain.Order
	closed  bool
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{lessons: make(map[string]*domain.Lesson)}
}

func (m *MemoryAdapter) ListLessons(ctx context.Context) ([]domain.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, domain.ErrStoreUnavailable
	}

	lessons := make([]domain.Lesson, 0, len(m.lessons))
	for _, l := range m.lessons {
		lessons = append(lessons, *l)
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].ID < lessons[j].ID })
	return lessons, nil
}

func (m *MemoryAdapter) GetLesson(ctx context.Context, id string) (*domain.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, domain.ErrStoreUnavailable
	}

	l, ok := m.lessons[id]
	if !ok {
		return nil, fmt.Errorf("lesson %s: %w", id, domain.ErrNotFound)
	}
	lesson := *l
	return &lesson, nil
}

func (m *MemoryAdapter) UpdateLesson(ctx context.Context, id string, update domain.LessonUpdate) (*domain.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, domain.ErrStoreUnavailable
	}

	l, ok := m.lessons[id]
	if !ok {
		return nil, fmt.Errorf("lesson %s: %w", id, domain.ErrNotFound)
	}
	updated := update.Apply(*l)
	if updated.SpacesAvailable < 0 {
		return nil, domain.NewValidationError("spacesAvailable", "must be at least 0")
	}
	*l = updated
	return &updated, nil
}

func (m *MemoryAdapter) SeedLessons(ctx context.Context, lessons []domain.Lesson) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, domain.ErrStoreUnavailable
	}
	if len(m.lessons) > 0 {
		return 0, nil
	}

	for _, l := range lessons {
		lesson := l
		m.lessons[l.ID] = &lesson
	}
	return len(lessons), nil
}

func (m *MemoryAdapter) TryDecrement(ctx context.Context, lessonID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, domain.NewValidationError("qty", "must be greater than 0")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, domain.ErrStoreUnavailable
	}

	l, ok := m.lessons[lessonID]
	if !ok || quantity > l.SpacesAvailable {
		return false, nil
	}
	l.SpacesAvailable -= quantity
	return true, nil
}

func (m *MemoryAdapter) Compensate(ctx context.Context, lessonID string, quantity int) error {
	if quantity <= 0 {
		return domain.NewValidationError("qty", "must be greater than 0")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrStoreUnavailable
	}

	l, ok := m.lessons[lessonID]
	if !ok {
		return fmt.Errorf("compensate lesson %s: %w", lessonID, domain.ErrNotFound)
	}
	l.SpacesAvailable += quantity
	return nil
}

func (m *MemoryAdapter) AppendOrder(ctx context.Context, order domain.Order) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", domain.ErrStoreUnavailable
	}

	order.LineItems = append([]domain.LineItem(nil), order.LineItems...)
	m.orders = append(m.orders, order)
	return order.ID, nil
}

func (m *MemoryAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, domain.ErrStoreUnavailable
	}

	orders := make([]domain.Order, len(m.orders))
	copy(orders, m.orders)
	return orders, nil
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return domain.ErrStoreUnavailable
	}
	return nil
}

// Close moves the adapter into the not-ready state; later calls report domain.ErrStoreUnavailable.
func (m *MemoryAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
