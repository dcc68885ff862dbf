package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/lesson-booking/internal/core/domain"
)

func catalogFixture() *mockStore {
	return newMockStore(
		domain.Lesson{ID: "math-london", Subject: "Math", Location: "London", Price: 100, SpacesAvailable: 5},
		domain.Lesson{ID: "english-oxford", Subject: "English", Location: "Oxford", Price: 80, SpacesAvailable: 5},
		domain.Lesson{ID: "music-london", Subject: "Music", Location: "London", Price: 70, SpacesAvailable: 5},
		domain.Lesson{ID: "art-manchester", Subject: "Art", Location: "Manchester", Price: 60, SpacesAvailable: 5},
	)
}

func ids(lessons []domain.Lesson) []string {
	out := make([]string, 0, len(lessons))
	for _, l := range lessons {
		out = append(out, l.ID)
	}
	return out
}

func TestSearch(t *testing.T) {
	svc := NewCatalogService(catalogFixture(), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		term string
		want []string
	}{
		{name: "location match", term: "london", want: []string{"math-london", "music-london"}},
		{name: "case insensitive", term: "LoNdOn", want: []string{"math-london", "music-london"}},
		{name: "subject substring", term: "ngl", want: []string{"english-oxford"}},
		{name: "subject or location", term: "man", want: []string{"art-manchester"}},
		{name: "no match", term: "physics", want: []string{}},
		{name: "surrounding whitespace", term: "  art ", want: []string{"art-manchester"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Search(ctx, tt.term)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(got))
		})
	}
}

func TestSearch_EmptyTermReturnsCatalog(t *testing.T) {
	svc := NewCatalogService(catalogFixture(), nil)
	ctx := context.Background()

	all, err := svc.ListLessons(ctx)
	require.NoError(t, err)

	got, err := svc.Search(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(all), ids(got))
}

func TestSearch_ResultsAreSubsetThatMatch(t *testing.T) {
	svc := NewCatalogService(catalogFixture(), nil)
	ctx := context.Background()

	all, err := svc.ListLessons(ctx)
	require.NoError(t, err)
	known := make(map[string]bool, len(all))
	for _, l := range all {
		known[l.ID] = true
	}

	for _, term := range []string{"o", "n", "MATH", "ford", "x"} {
		got, err := svc.Search(ctx, term)
		require.NoError(t, err)
		lower := strings.ToLower(term)
		for _, l := range got {
			assert.True(t, known[l.ID])
			assert.True(t,
				strings.Contains(strings.ToLower(l.Subject), lower) ||
					strings.Contains(strings.ToLower(l.Location), lower),
				"%s does not match %q", l.ID, term)
		}
	}
}

func TestListLessons_ConcurrentCallersGetOwnCopy(t *testing.T) {
	svc := NewCatalogService(catalogFixture(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lessons, err := svc.ListLessons(ctx)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			for j := range lessons {
				lessons[j].Subject = "scribbled"
			}
		}()
	}
	wg.Wait()

	lessons, err := svc.ListLessons(ctx)
	require.NoError(t, err)
	for _, l := range lessons {
		assert.NotEqual(t, "scribbled", l.Subject)
	}
}

func TestGetLesson(t *testing.T) {
	svc := NewCatalogService(catalogFixture(), nil)
	ctx := context.Background()

	l, err := svc.GetLesson(ctx, "math-london")
	require.NoError(t, err)
	assert.Equal(t, "Math", l.Subject)

	_, err = svc.GetLesson(ctx, "nope")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = svc.GetLesson(ctx, " ")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestUpdateLesson_OverwritesSpaces(t *testing.T) {
	store := catalogFixture()
	svc := NewCatalogService(store, nil)

	spaces := 42
	l, err := svc.UpdateLesson(context.Background(), "math-london", domain.LessonUpdate{SpacesAvailable: &spaces})
	require.NoError(t, err)
	assert.Equal(t, 42, l.SpacesAvailable)
	assert.Equal(t, "Math", l.Subject)
	assert.Equal(t, 42, store.spaces("math-london"))
}

func TestUpdateLesson_Rejected(t *testing.T) {
	negative := -1
	zero := 0
	empty := ""
	negativePrice := -5.0

	tests := []struct {
		name   string
		id     string
		update domain.LessonUpdate
		kind   string
	}{
		{name: "negative spaces", id: "math-london", update: domain.LessonUpdate{SpacesAvailable: &negative}, kind: domain.KindValidation},
		{name: "negative price", id: "math-london", update: domain.LessonUpdate{Price: &negativePrice}, kind: domain.KindValidation},
		{name: "blank subject", id: "math-london", update: domain.LessonUpdate{Subject: &empty}, kind: domain.KindValidation},
		{name: "no fields", id: "math-london", update: domain.LessonUpdate{}, kind: domain.KindValidation},
		{name: "missing id", id: "", update: domain.LessonUpdate{SpacesAvailable: &zero}, kind: domain.KindValidation},
		{name: "unknown lesson", id: "nope", update: domain.LessonUpdate{SpacesAvailable: &zero}, kind: domain.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := catalogFixture()
			svc := NewCatalogService(store, nil)

			_, err := svc.UpdateLesson(context.Background(), tt.id, tt.update)
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))
			assert.Equal(t, 5, store.spaces("math-london"))
		})
	}
}

func TestUpdateLesson_NegativeSpacesNamesField(t *testing.T) {
	svc := NewCatalogService(catalogFixture(), nil)

	negative := -3
	_, err := svc.UpdateLesson(context.Background(), "math-london", domain.LessonUpdate{SpacesAvailable: &negative})

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "spacesAvailable", verr.Field)
}

// blockingCatalog holds ListLessons open until released or its ctx ends.
type blockingCatalog struct {
	*mockStore
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

func (b *blockingCatalog) ListLessons(ctx context.Context) ([]domain.Lesson, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return b.mockStore.ListLessons(ctx)
	}
}

func TestListLessons_CancelledCallerDoesNotFailOthers(t *testing.T) {
	repo := &blockingCatalog{
		mockStore: catalogFixture(),
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	svc := NewCatalogService(repo, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.ListLessons(firstCtx)
		firstErr <- err
	}()
	<-repo.started

	type result struct {
		lessons []domain.Lesson
		err     error
	}
	second := make(chan result, 1)
	go func() {
		lessons, err := svc.Search(context.Background(), "london")
		second <- result{lessons, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	err := <-firstErr
	assert.ErrorIs(t, err, context.Canceled)

	close(repo.release)
	res := <-second
	require.NoError(t, res.err)
	assert.ElementsMatch(t, []string{"math-london", "music-london"}, ids(res.lessons))
}
