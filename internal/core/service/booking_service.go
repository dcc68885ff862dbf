package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/lesson-booking/internal/core/domain"
	"github.com/rl1809/lesson-booking/internal/port"
)

const (
	tracerName          = "github.com/rl1809/lesson-booking/internal/core/service"
	compensationTimeout = 5 * time.Second
)

type BookingService struct {
	catalog   port.CatalogRepository
	ledger    port.CapacityLedger
	orders    port.OrderRepository
	publisher port.EventPublisher
	validate  *validator.Validate
	logger    *zap.Logger
	tracer    trace.Tracer

	compensationFailures atomic.Int64
	now                  func() time.Time
}

func NewBookingService(
	catalog port.CatalogRepository,
	ledger port.CapacityLedger,
	orders port.OrderRepository,
	publisher port.EventPublisher,
	logger *zap.Logger,
) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		catalog:   catalog,
		ledger:    ledger,
		orders:    orders,
		publisher: publisher,
		validate:  newValidator(),
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder reserves every line item in submission order and persists the order.
// Any failure after the first reservation gives back what was already reserved.
func (s *BookingService) PlaceOrder(ctx context.Context, req domain.BookingRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "booking.place_order")
	defer span.End()
	span.SetAttributes(attribute.Int("order.line_items", len(req.LineItems)))

	order, err := s.placeOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.KindOf(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	span.SetStatus(codes.Ok, "order placed")
	return order, nil
}

func (s *BookingService) placeOrder(ctx context.Context, req domain.BookingRequest) (*domain.Order, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)

	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	lessons, err := s.lookupLessons(ctx, req.LineItems)
	if err != nil {
		return nil, err
	}

	reserved := make([]domain.LineItem, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		// Price snapshot is taken at reservation time and never re-read.
		price := lessons[item.LessonID].Price

		ok, err := s.reserve(ctx, item)
		if err != nil {
			s.compensate(ctx, reserved)
			return nil, fmt.Errorf("reserve lesson %s: %w", item.LessonID, err)
		}
		if !ok {
			s.compensate(ctx, reserved)
			return nil, &domain.CapacityError{LessonID: item.LessonID, Requested: item.Quantity}
		}

		reserved = append(reserved, domain.LineItem{
			LessonID:          item.LessonID,
			Quantity:          item.Quantity,
			UnitPriceSnapshot: price,
		})
	}

	order := domain.Order{
		ID:            uuid.NewString(),
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		LineItems:     reserved,
		Total:         domain.OrderTotal(reserved),
		CreatedAt:     s.now(),
	}
	if req.Total > 0 && math.Abs(req.Total-order.Total) > 0.005 {
		s.logger.Warn("client total differs from computed total",
			zap.Float64("client_total", req.Total),
			zap.Float64("computed_total", order.Total),
		)
	}

	id, err := s.orders.AppendOrder(ctx, order)
	if err != nil {
		s.compensate(ctx, reserved)
		return nil, fmt.Errorf("%w: append order: %w", domain.ErrPersistence, err)
	}
	order.ID = id

	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.Int("line_items", len(order.LineItems)),
		zap.Float64("total", order.Total),
	)
	s.announce(ctx, order)

	return &order, nil
}

func (s *BookingService) lookupLessons(ctx context.Context, items []domain.LineItemRequest) (map[string]domain.Lesson, error) {
	lessons := make(map[string]domain.Lesson, len(items))
	for i, item := range items {
		field := fmt.Sprintf("lineItems[%d].lessonId", i)
		if _, dup := lessons[item.LessonID]; dup {
			return nil, domain.NewValidationError(field, "lesson "+item.LessonID+" appears more than once")
		}

		lesson, err := s.catalog.GetLesson(ctx, item.LessonID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.ValidationError{
				Field:  field,
				Reason: "unknown lesson " + item.LessonID,
				Cause:  domain.ErrNotFound,
			}
		}
		if err != nil {
			return nil, fmt.Errorf("lookup lesson %s: %w", item.LessonID, err)
		}
		lessons[item.LessonID] = *lesson
	}
	return lessons, nil
}

func (s *BookingService) reserve(ctx context.Context, item domain.LineItemRequest) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "booking.reserve", trace.WithAttributes(
		attribute.String("lesson.id", item.LessonID),
		attribute.Int("lesson.quantity", item.Quantity),
	))
	defer span.End()

	ok, err := s.ledger.TryDecrement(ctx, item.LessonID, item.Quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reserve failed")
		return false, err
	}
	span.SetAttributes(attribute.Bool("lesson.reserved", ok))
	return ok, nil
}

// compensate gives back each reservation exactly once, newest first. It runs
// detached from the request context so a disconnecting client cannot leave
// capacity stranded.
func (s *BookingService) compensate(ctx context.Context, reserved []domain.LineItem) {
	if len(reserved) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "booking.compensate", trace.WithAttributes(
		attribute.Int("compensation.items", len(reserved)),
	))
	defer span.End()

	for i := len(reserved) - 1; i >= 0; i-- {
		item := reserved[i]
		if err := s.ledger.Compensate(ctx, item.LessonID, item.Quantity); err != nil {
			s.compensationFailures.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, "compensation failed")
			s.logger.Error("CRITICAL compensation failed, ledger may be inconsistent",
				zap.String("lesson_id", item.LessonID),
				zap.Int("quantity", item.Quantity),
				zap.Bool("ledger_inconsistent", true),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("compensated reservation",
			zap.String("lesson_id", item.LessonID),
			zap.Int("quantity", item.Quantity),
		)
	}
}

func (s *BookingService) announce(ctx context.Context, order domain.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderPlaced(ctx, order); err != nil {
		s.logger.Warn("failed to publish order event",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
}

func (s *BookingService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListOrders(ctx)
}

// CompensationFailures counts compensating increments that did not apply.
func (s *BookingService) CompensationFailures() int64 {
	return s.compensationFailures.Load()
}
