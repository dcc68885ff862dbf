package domain

import "time"

type LineItem struct {
	LessonID          string  `json:"lessonId"`
	Quantity          int     `json:"qty"`
	UnitPriceSnapshot float64 `json:"unitPrice"`
}

// Order is immutable once appended to the order store.
type Order struct {
	ID            string     `json:"id"`
	CustomerName  string     `json:"name"`
	CustomerPhone string     `json:"phone"`
	LineItems     []LineItem `json:"lineItems"`
	Total         float64    `json:"total"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type LineItemRequest struct {
	LessonID string `json:"lessonId" validate:"required"`
	Quantity int    `json:"qty" validate:"gt=0"`
}

type BookingRequest struct {
	CustomerName  string            `json:"name" validate:"required"`
	CustomerPhone string            `json:"phone" validate:"required"`
	LineItems     []LineItemRequest `json:"lineItems" validate:"required,min=1,dive"`
	Total         float64           `json:"total" validate:"gte=0"`
}

func OrderTotal(items []LineItem) float64 {
	var total float64
	for _, item := range items {
		total += item.UnitPriceSnapshot * float64(item.Quantity)
	}
	return total
}
