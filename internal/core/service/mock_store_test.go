package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rl1809/lesson-booking/internal/core/domain"
)

// mockStore plays catalog, ledger and order store, with failure injection.
type mockStore struct {
	mu      sync.Mutex
	lessons map[string]*domain.Lesson
	orders  []domain.Order

	appendErr     error
	compensateErr error
	decrementErr  map[string]error

	compensations []domain.LineItem
}

func newMockStore(lessons ...domain.Lesson) *mockStore {
	m := &mockStore{
		lessons:      make(map[string]*domain.Lesson),
		decrementErr: make(map[string]error),
	}
	for _, l := range lessons {
		lesson := l
		m.lessons[l.ID] = &lesson
	}
	return m
}

func (m *mockStore) ListLessons(ctx context.Context) ([]domain.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Lesson
	for _, l := range m.lessons {
		out = append(out, *l)
	}
	return out, nil
}

func (m *mockStore) GetLesson(ctx context.Context, id string) (*domain.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lessons[id]
	if !ok {
		return nil, fmt.Errorf("lesson %s: %w", id, domain.ErrNotFound)
	}
	lesson := *l
	return &lesson, nil
}

func (m *mockStore) UpdateLesson(ctx context.Context, id string, update domain.LessonUpdate) (*domain.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lessons[id]
	if !ok {
		return nil, fmt.Errorf("lesson %s: %w", id, domain.ErrNotFound)
	}
	updated := update.Apply(*l)
	*l = updated
	return &updated, nil
}

func (m *mockStore) SeedLessons(ctx context.Context, lessons []domain.Lesson) (int, error) {
	return 0, nil
}

func (m *mockStore) TryDecrement(ctx context.Context, lessonID string, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.decrementErr[lessonID]; err != nil {
		return false, err
	}
	l, ok := m.lessons[lessonID]
	if !ok || l.SpacesAvailable < quantity {
		return false, nil
	}
	l.SpacesAvailable -= quantity
	return true, nil
}

func (m *mockStore) Compensate(ctx context.Context, lessonID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.compensateErr != nil {
		return m.compensateErr
	}
	l, ok := m.lessons[lessonID]
	if !ok {
		return domain.ErrNotFound
	}
	l.SpacesAvailable += quantity
	m.compensations = append(m.compensations, domain.LineItem{LessonID: lessonID, Quantity: quantity})
	return nil
}

func (m *mockStore) AppendOrder(ctx context.Context, order domain.Order) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return "", m.appendErr
	}
	m.orders = append(m.orders, order)
	return order.ID, nil
}

func (m *mockStore) ListOrders(ctx context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Order(nil), m.orders...), nil
}

func (m *mockStore) spaces(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lessons[id].SpacesAvailable
}

func (m *mockStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type mockPublisher struct {
	mu        sync.Mutex
	published []domain.Order
	err       error
}

func (p *mockPublisher) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, order)
	return p.err
}

func (p *mockPublisher) Close() error { return nil }
