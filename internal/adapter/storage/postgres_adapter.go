package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rl1809/lesson-booking/internal/core/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS lessons (
	id               TEXT           PRIMARY KEY,
	subject          TEXT           NOT NULL,
	location         TEXT           NOT NULL,
	price            NUMERIC(10, 2) NOT NULL CHECK (price >= 0),
	spaces_available INTEGER        NOT NULL CHECK (spaces_available >= 0),
	icon             TEXT           NOT NULL DEFAULT '',
	description      TEXT           NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS orders (
	id             UUID           PRIMARY KEY,
	customer_name  TEXT           NOT NULL,
	customer_phone TEXT           NOT NULL,
	total          NUMERIC(12, 2) NOT NULL,
	created_at     TIMESTAMPTZ    NOT NULL
);
CREATE TABLE IF NOT EXISTS order_items (
	order_id   UUID           NOT NULL REFERENCES orders (id),
	position   INTEGER        NOT NULL,
	lesson_id  TEXT           NOT NULL,
	quantity   INTEGER        NOT NULL CHECK (quantity > 0),
	unit_price NUMERIC(10, 2) NOT NULL,
	PRIMARY KEY (order_id, position)
);`

const lessonColumns = `id, subject, location, price::float8 AS price, spaces_available, icon, description`

// NewPostgresPool creates and validates a pgxpool connection pool.
// It retries a few times to accommodate containers starting up.
func NewPostgresPool(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	const attempts = 5
	var pool *pgxpool.Pool
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		logger.Warn("postgres connect attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("connect to postgres: %w: %w", domain.ErrStoreUnavailable, err)
}

type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

func (p *PostgresAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return wrapErr("create schema", err)
	}
	return nil
}

func (p *PostgresAdapter) ListLessons(ctx context.Context) ([]domain.Lesson, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+lessonColumns+` FROM lessons ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list lessons", err)
	}
	lessons, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Lesson])
	if err != nil {
		return nil, wrapErr("scan lessons", err)
	}
	return lessons, nil
}

func (p *PostgresAdapter) GetLesson(ctx context.Context, id string) (*domain.Lesson, error) {
	return p.getLesson(ctx, p.pool, id, false)
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (p *PostgresAdapter) getLesson(ctx context.Context, q pgQuerier, id string, forUpdate bool) (*domain.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, wrapErr("get lesson", err)
	}
	lesson, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[domain.Lesson])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lesson %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("scan lesson", err)
	}
	return &lesson, nil
}

func (p *PostgresAdapter) UpdateLesson(ctx context.Context, id string, update domain.LessonUpdate) (*domain.Lesson, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, wrapErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := p.getLesson(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	updated := update.Apply(*current)
	if updated.SpacesAvailable < 0 {
		return nil, domain.NewValidationError("spacesAvailable", "must be at least 0")
	}

	_, err = tx.Exec(ctx, `
		UPDATE lessons
		SET subject = $2, location = $3, price = $4, spaces_available = $5, icon = $6, description = $7
		WHERE id = $1`,
		updated.ID, updated.Subject, updated.Location, updated.Price,
		updated.SpacesAvailable, updated.Icon, updated.Description,
	)
	if err != nil {
		return nil, wrapErr("update lesson", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr("commit transaction", err)
	}
	return &updated, nil
}

func (p *PostgresAdapter) SeedLessons(ctx context.Context, lessons []domain.Lesson) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, wrapErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM lessons`).Scan(&count); err != nil {
		return 0, wrapErr("count lessons", err)
	}
	if count > 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, l := range lessons {
		batch.Queue(`
			INSERT INTO lessons (id, subject, location, price, spaces_available, icon, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.ID, l.Subject, l.Location, l.Price, l.SpacesAvailable, l.Icon, l.Description,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, wrapErr("insert lessons", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, wrapErr("commit transaction", err)
	}
	return len(lessons), nil
}

func (p *PostgresAdapter) TryDecrement(ctx context.Context, lessonID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, domain.NewValidationError("qty", "must be greater than 0")
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE lessons
		SET spaces_available = spaces_available - $2
		WHERE id = $1 AND spaces_available >= $2`,
		lessonID, quantity,
	)
	if err != nil {
		return false, wrapErr("decrement spaces", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresAdapter) Compensate(ctx context.Context, lessonID string, quantity int) error {
	if quantity <= 0 {
		return domain.NewValidationError("qty", "must be greater than 0")
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE lessons SET spaces_available = spaces_available + $2 WHERE id = $1`,
		lessonID, quantity,
	)
	if err != nil {
		return wrapErr("increment spaces", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("compensate lesson %s: %w", lessonID, domain.ErrNotFound)
	}
	return nil
}

func (p *PostgresAdapter) AppendOrder(ctx context.Context, order domain.Order) (string, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return "", wrapErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, customer_name, customer_phone, total, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		order.ID, order.CustomerName, order.CustomerPhone, order.Total, order.CreatedAt,
	)
	if err != nil {
		return "", wrapErr("insert order", err)
	}

	for i, item := range order.LineItems {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, position, lesson_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			order.ID, i, item.LessonID, item.Quantity, item.UnitPriceSnapshot,
		)
		if err != nil {
			return "", wrapErr("insert order item", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", wrapErr("commit transaction", err)
	}
	return order.ID, nil
}

func (p *PostgresAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text AS id, customer_name, customer_phone, total::float8 AS total, created_at
		FROM orders ORDER BY created_at, id`)
	if err != nil {
		return nil, wrapErr("list orders", err)
	}
	orders, err := pgx.CollectRows(rows, pgx.RowToStructByName[orderRow])
	if err != nil {
		return nil, wrapErr("scan orders", err)
	}

	rows, err = p.pool.Query(ctx, `
		SELECT order_id::text AS order_id, lesson_id, quantity, unit_price::float8 AS unit_price
		FROM order_items ORDER BY order_id, position`)
	if err != nil {
		return nil, wrapErr("list order items", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[orderItemRow])
	if err != nil {
		return nil, wrapErr("scan order items", err)
	}

	return assembleOrders(orders, items), nil
}

func (p *PostgresAdapter) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (p *PostgresAdapter) Close() error {
	p.pool.Close()
	return nil
}
