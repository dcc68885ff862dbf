package port

import "context"

type CapacityLedger interface {
	// TryDecrement atomically reserves quantity, returns false if insufficient or the lesson is unknown
	TryDecrement(ctx context.Context, lessonID string, quantity int) (bool, error)

	// Compensate atomically gives quantity back (rollback of an earlier TryDecrement)
	Compensate(ctx context.Context, lessonID string, quantity int) error
}
