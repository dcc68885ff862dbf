package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/lesson-booking/internal/adapter/storage"
	"github.com/rl1809/lesson-booking/internal/core/domain"
	"github.com/rl1809/lesson-booking/internal/core/service"
)

type testServer struct {
	handler http.Handler
	store   *storage.MemoryAdapter
}

func newTestServer(t *testing.T, lessons ...domain.Lesson) *testServer {
	t.Helper()
	store := storage.NewMemoryAdapter()
	if len(lessons) == 0 {
		lessons = []domain.Lesson{
			{ID: "L1", Subject: "Math", Location: "London", Price: 100, SpacesAvailable: 5},
			{ID: "L2", Subject: "English", Location: "Oxford", Price: 80, SpacesAvailable: 3},
		}
	}
	_, err := store.SeedLessons(context.Background(), lessons)
	require.NoError(t, err)

	logger := zap.NewNop()
	booking := service.NewBookingService(store, store, store, nil, logger)
	catalog := service.NewCatalogService(store, logger)
	h := NewHTTPHandler(booking, catalog, store, logger)
	return &testServer{handler: NewRouter(h, logger, ""), store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) spaces(t *testing.T, id string) int {
	t.Helper()
	l, err := s.store.GetLesson(context.Background(), id)
	require.NoError(t, err)
	return l.SpacesAvailable
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestPlaceOrder_Created(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/orders",
		`{"name":"Ada","phone":"0123","lineItems":[{"lessonId":"L1","qty":2},{"lessonId":"L2","qty":1}],"total":280}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp OrderCreatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Order)
	assert.NotEmpty(t, resp.Order.ID)
	assert.Equal(t, 280.0, resp.Order.Total)
	assert.Len(t, resp.Order.LineItems, 2)

	assert.Equal(t, 3, srv.spaces(t, "L1"))
	assert.Equal(t, 2, srv.spaces(t, "L2"))

	rec = srv.do(t, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, resp.Order.ID, orders[0].ID)
}

func TestPlaceOrder_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"name":`},
		{name: "unknown field", body: `{"name":"Ada","phone":"1","lineItems":[{"lessonId":"L1","qty":1}],"coupon":"x"}`},
		{name: "missing name", body: `{"phone":"1","lineItems":[{"lessonId":"L1","qty":1}]}`},
		{name: "blank phone", body: `{"name":"Ada","phone":"  ","lineItems":[{"lessonId":"L1","qty":1}]}`},
		{name: "no line items", body: `{"name":"Ada","phone":"1","lineItems":[]}`},
		{name: "zero quantity", body: `{"name":"Ada","phone":"1","lineItems":[{"lessonId":"L1","qty":0}]}`},
		{name: "unknown lesson", body: `{"name":"Ada","phone":"1","lineItems":[{"lessonId":"nope","qty":1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)

			rec := srv.do(t, http.MethodPost, "/api/orders", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, domain.KindValidation, decodeError(t, rec).Error)
			assert.Equal(t, 5, srv.spaces(t, "L1"))
		})
	}
}

func TestPlaceOrder_ConflictRestoresCapacity(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/orders",
		`{"name":"Ada","phone":"0123","lineItems":[{"lessonId":"L1","qty":2},{"lessonId":"L2","qty":100}]}`)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	resp := decodeError(t, rec)
	assert.Equal(t, domain.KindInsufficientCapacity, resp.Error)
	assert.Equal(t, "L2", resp.LessonID)

	assert.Equal(t, 5, srv.spaces(t, "L1"))
	assert.Equal(t, 3, srv.spaces(t, "L2"))

	rec = srv.do(t, http.MethodGet, "/api/orders", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestPlaceOrder_StoreDown(t *testing.T) {
	srv := newTestServer(t)
	srv.store.Close()

	rec := srv.do(t, http.MethodPost, "/api/orders",
		`{"name":"Ada","phone":"0123","lineItems":[{"lessonId":"L1","qty":1}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, domain.KindStoreUnavailable, resp.Error)
	assert.Equal(t, "storage is temporarily unavailable", resp.Message)
}

func TestWriteError_MasksServerSideDetail(t *testing.T) {
	h := NewHTTPHandler(nil, nil, nil, zap.NewNop())
	driverErr := errors.New("insert order: dial tcp 10.0.0.5:3306: connect: connection refused")

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "persistence", err: fmt.Errorf("%w: append order: %w", domain.ErrPersistence, driverErr), status: http.StatusInternalServerError, message: "order could not be saved"},
		{name: "unavailable", err: fmt.Errorf("get lesson: %w: %w", domain.ErrStoreUnavailable, driverErr), status: http.StatusServiceUnavailable, message: "storage is temporarily unavailable"},
		{name: "internal", err: driverErr, status: http.StatusInternalServerError, message: "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeError(rec, httptest.NewRequest(http.MethodPost, "/api/orders", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec).Message)
			assert.NotContains(t, rec.Body.String(), "10.0.0.5")
		})
	}
}

func TestListLessons(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/lessons", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var lessons []domain.Lesson
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lessons))
	require.Len(t, lessons, 2)
	assert.Equal(t, "L1", lessons[0].ID)
	assert.Equal(t, 5, lessons[0].SpacesAvailable)
}

func TestGetLesson(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/lessons/L2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var lesson domain.Lesson
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lesson))
	assert.Equal(t, "English", lesson.Subject)

	rec = srv.do(t, http.MethodGet, "/api/lessons/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.KindNotFound, decodeError(t, rec).Error)
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		query string
		want  []string
	}{
		{query: "/api/search?q=LONDON", want: []string{"L1"}},
		{query: "/api/search?q=ngl", want: []string{"L2"}},
		{query: "/api/search?q=", want: []string{"L1", "L2"}},
		{query: "/api/search", want: []string{"L1", "L2"}},
		{query: "/api/search?q=physics", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)

			var lessons []domain.Lesson
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lessons))
			got := make([]string, 0, len(lessons))
			for _, l := range lessons {
				got = append(got, l.ID)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestUpdateLesson(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPut, "/api/lessons/L1", `{"spacesAvailable":9}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 9, srv.spaces(t, "L1"))

	rec = srv.do(t, http.MethodPut, "/api/lessons/L1", `{"spacesAvailable":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 9, srv.spaces(t, "L1"))

	rec = srv.do(t, http.MethodPut, "/api/lessons/nope", `{"spacesAvailable":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/lessons/L1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Zero(t, health.CompensationFailures)

	srv.store.Close()
	rec = srv.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
