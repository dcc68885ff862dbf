package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/lesson-booking/internal/core/domain"
	"github.com/rl1809/lesson-booking/internal/port"
)

const (
	listLessonsKey     = "lessons"
	catalogLoadTimeout = 5 * time.Second
)

// CatalogService serves the read side of the catalog and the administrative override.
type CatalogService struct {
	catalog  port.CatalogRepository
	validate *validator.Validate
	logger   *zap.Logger
	group    singleflight.Group
}

func NewCatalogService(catalog port.CatalogRepository, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		catalog:  catalog,
		validate: newValidator(),
		logger:   logger,
	}
}

// ListLessons collapses concurrent reads into a single store round trip.
func (s *CatalogService) ListLessons(ctx context.Context) ([]domain.Lesson, error) {
	// Joined callers share one load; it is detached from whichever caller started it.
	ch := s.group.DoChan(listLessonsKey, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), catalogLoadTimeout)
		defer cancel()
		return s.catalog.ListLessons(lctx)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list lessons: %w", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, fmt.Errorf("list lessons: %w", res.Err)
	}

	// Callers own their copy; the shared result must not be mutated.
	shared := res.Val.([]domain.Lesson)
	lessons := make([]domain.Lesson, len(shared))
	copy(lessons, shared)
	return lessons, nil
}

// Search matches term case-insensitively against subject and location.
// An empty term returns the full catalog.
func (s *CatalogService) Search(ctx context.Context, term string) ([]domain.Lesson, error) {
	lessons, err := s.ListLessons(ctx)
	if err != nil {
		return nil, err
	}

	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return lessons, nil
	}

	matches := make([]domain.Lesson, 0, len(lessons))
	for _, l := range lessons {
		if strings.Contains(strings.ToLower(l.Subject), term) ||
			strings.Contains(strings.ToLower(l.Location), term) {
			matches = append(matches, l)
		}
	}
	return matches, nil
}

func (s *CatalogService) GetLesson(ctx context.Context, id string) (*domain.Lesson, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	return s.catalog.GetLesson(ctx, id)
}

// UpdateLesson applies an administrative overwrite outside the booking protocol.
func (s *CatalogService) UpdateLesson(ctx context.Context, id string, update domain.LessonUpdate) (*domain.Lesson, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	if update.IsEmpty() {
		return nil, domain.NewValidationError("", "update carries no fields")
	}
	if update.SpacesAvailable != nil && *update.SpacesAvailable < 0 {
		return nil, domain.NewValidationError("spacesAvailable", "must be at least 0")
	}
	if err := validateStruct(s.validate, update); err != nil {
		return nil, err
	}

	lesson, err := s.catalog.UpdateLesson(ctx, id, update)
	if err != nil {
		return nil, err
	}

	s.logger.Info("lesson updated by admin",
		zap.String("lesson_id", id),
		zap.Int("spaces_available", lesson.SpacesAvailable),
	)
	return lesson, nil
}
