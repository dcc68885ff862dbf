package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rl1809/lesson-booking/internal/core/domain"
	"github.com/rl1809/lesson-booking/internal/core/service"
)

const maxBodyBytes = 1 << 20

type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	booking *service.BookingService
	catalog *service.CatalogService
	store   Pinger
	logger  *zap.Logger
}

type OrderCreatedResponse struct {
	Message string        `json:"message"`
	Order   *domain.Order `json:"order"`
}

type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	LessonID string `json:"lessonId,omitempty"`
}

type HealthResponse struct {
	Status               string `json:"status"`
	CompensationFailures int64  `json:"compensationFailures"`
}

func NewHTTPHandler(booking *service.BookingService, catalog *service.CatalogService, store Pinger, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{booking: booking, catalog: catalog, store: store, logger: logger}
}

// Routes mounts the API under r.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Get("/health", h.HealthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Get("/lessons", h.ListLessons)
		r.Get("/lessons/{id}", h.GetLesson)
		r.Put("/lessons/{id}", h.UpdateLesson)
		r.Get("/search", h.Search)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.ListOrders)
	})
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, domain.NewValidationError("body", "invalid request body: "+err.Error()))
		return
	}

	order, err := h.booking.PlaceOrder(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, OrderCreatedResponse{
		Message: "order placed successfully",
		Order:   order,
	})
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.booking.ListOrders(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *HTTPHandler) ListLessons(w http.ResponseWriter, r *http.Request) {
	lessons, err := h.catalog.ListLessons(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeLessons(w, lessons)
}

func (h *HTTPHandler) Search(w http.ResponseWriter, r *http.Request) {
	lessons, err := h.catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeLessons(w, lessons)
}

func (h *HTTPHandler) GetLesson(w http.ResponseWriter, r *http.Request) {
	lesson, err := h.catalog.GetLesson(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

func (h *HTTPHandler) UpdateLesson(w http.ResponseWriter, r *http.Request) {
	var update domain.LessonUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		h.writeError(w, r, domain.NewValidationError("body", "invalid request body: "+err.Error()))
		return
	}

	lesson, err := h.catalog.UpdateLesson(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:               "ok",
		CompensationFailures: h.booking.CompensationFailures(),
	})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	resp := ErrorResponse{Error: kind, Message: err.Error()}

	var capErr *domain.CapacityError
	if errors.As(err, &capErr) {
		resp.LessonID = capErr.LessonID
	}

	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", kind),
			zap.Error(err),
		)
		resp.Message = publicMessage(kind)
	}

	writeJSON(w, status, resp)
}

// publicMessage replaces server-side error text, which can carry driver detail.
func publicMessage(kind string) string {
	switch kind {
	case domain.KindStoreUnavailable:
		return "storage is temporarily unavailable"
	case domain.KindPersistence:
		return "order could not be saved"
	default:
		return "internal error"
	}
}

func statusFor(kind string) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientCapacity:
		return http.StatusConflict
	case domain.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeLessons(w http.ResponseWriter, lessons []domain.Lesson) {
	if lessons == nil {
		lessons = []domain.Lesson{}
	}
	writeJSON(w, http.StatusOK, lessons)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
