package port

import (
	"context"

	"github.com/rl1809/lesson-booking/internal/core/domain"
)

type CatalogRepository interface {
	// ListLessons returns a snapshot of every lesson
	ListLessons(ctx context.Context) ([]domain.Lesson, error)

	// GetLesson returns domain.ErrNotFound when the id is unknown
	GetLesson(ctx context.Context, id string) (*domain.Lesson, error)

	// UpdateLesson overwrites the given fields; rejects a negative spacesAvailable
	UpdateLesson(ctx context.Context, id string, update domain.LessonUpdate) (*domain.Lesson, error)

	// SeedLessons inserts lessons only when the catalog is empty, returns how many were written
	SeedLessons(ctx context.Context, lessons []domain.Lesson) (int, error)
}
