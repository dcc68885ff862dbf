package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rl1809/lesson-booking/internal/core/domain"
)

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS lessons (
	id               VARCHAR(64)    NOT NULL PRIMARY KEY,
	subject          VARCHAR(255)   NOT NULL,
	location         VARCHAR(255)   NOT NULL,
	price            DECIMAL(10, 2) NOT NULL,
	spaces_available INT            NOT NULL,
	icon             VARCHAR(255)   NOT NULL DEFAULT '',
	description      TEXT           NOT NULL,
	CONSTRAINT chk_spaces_non_negative CHECK (spaces_available >= 0)
);
CREATE TABLE IF NOT EXISTS orders (
	id             VARCHAR(36)    NOT NULL PRIMARY KEY,
	customer_name  VARCHAR(255)   NOT NULL,
	customer_phone VARCHAR(64)    NOT NULL,
	total          DECIMAL(12, 2) NOT NULL,
	created_at     DATETIME(6)    NOT NULL
);
CREATE TABLE IF NOT EXISTS order_items (
	order_id   VARCHAR(36)    NOT NULL,
	position   INT            NOT NULL,
	lesson_id  VARCHAR(64)    NOT NULL,
	quantity   INT            NOT NULL,
	unit_price DECIMAL(10, 2) NOT NULL,
	PRIMARY KEY (order_id, position)
);`

type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: sqlx.NewDb(db, "mysql")}
}

// EnsureSchema creates the tables when they do not exist. The DSN must allow multiStatements.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, mysqlSchema); err != nil {
		return wrapErr("create schema", err)
	}
	return nil
}

func (m *MySQLAdapter) ListLessons(ctx context.Context) ([]domain.Lesson, error) {
	var lessons []domain.Lesson
	err := m.db.SelectContext(ctx, &lessons, `
		SELECT id, subject, location, price, spaces_available, icon, description
		FROM lessons ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list lessons", err)
	}
	return lessons, nil
}

func (m *MySQLAdapter) GetLesson(ctx context.Context, id string) (*domain.Lesson, error) {
	var lesson domain.Lesson
	err := m.db.GetContext(ctx, &lesson, `
		SELECT id, subject, location, price, spaces_available, icon, description
		FROM lessons WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lesson %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("get lesson", err)
	}
	return &lesson, nil
}

func (m *MySQLAdapter) UpdateLesson(ctx context.Context, id string, update domain.LessonUpdate) (*domain.Lesson, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapErr("begin tx", err)
	}
	defer tx.Rollback()

	var current domain.Lesson
	err = tx.GetContext(ctx, &current, `
		SELECT id, subject, location, price, spaces_available, icon, description
		FROM lessons WHERE id = ? FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lesson %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("lock lesson", err)
	}

	updated := update.Apply(current)
	if updated.SpacesAvailable < 0 {
		return nil, domain.NewValidationError("spacesAvailable", "must be at least 0")
	}

	_, err = tx.NamedExecContext(ctx, `
		UPDATE lessons
		SET subject = :subject, location = :location, price = :price,
			spaces_available = :spaces_available, icon = :icon, description = :description
		WHERE id = :id`, updated)
	if err != nil {
		return nil, wrapErr("update lesson", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("commit", err)
	}
	return &updated, nil
}

func (m *MySQLAdapter) SeedLessons(ctx context.Context, lessons []domain.Lesson) (int, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, wrapErr("begin tx", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM lessons`); err != nil {
		return 0, wrapErr("count lessons", err)
	}
	if count > 0 {
		return 0, nil
	}

	for _, l := range lessons {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO lessons (id, subject, location, price, spaces_available, icon, description)
			VALUES (:id, :subject, :location, :price, :spaces_available, :icon, :description)`, l)
		if err != nil {
			return 0, wrapErr("insert lesson", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapErr("commit", err)
	}
	return len(lessons), nil
}

// TryDecrement is a single conditional UPDATE, so the capacity check and the
// write cannot be interleaved by another booking.
func (m *MySQLAdapter) TryDecrement(ctx context.Context, lessonID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, domain.NewValidationError("qty", "must be greater than 0")
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE lessons
		SET spaces_available = spaces_available - ?
		WHERE id = ? AND spaces_available >= ?`,
		quantity, lessonID, quantity,
	)
	if err != nil {
		return false, wrapErr("decrement spaces", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, wrapErr("rows affected", err)
	}
	return rows == 1, nil
}

func (m *MySQLAdapter) Compensate(ctx context.Context, lessonID string, quantity int) error {
	if quantity <= 0 {
		return domain.NewValidationError("qty", "must be greater than 0")
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE lessons SET spaces_available = spaces_available + ? WHERE id = ?`,
		quantity, lessonID,
	)
	if err != nil {
		return wrapErr("increment spaces", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return wrapErr("rows affected", err)
	}
	if rows == 0 {
		return fmt.Errorf("compensate lesson %s: %w", lessonID, domain.ErrNotFound)
	}
	return nil
}

func (m *MySQLAdapter) AppendOrder(ctx context.Context, order domain.Order) (string, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", wrapErr("begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_name, customer_phone, total, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.ID, order.CustomerName, order.CustomerPhone, order.Total, order.CreatedAt,
	)
	if err != nil {
		return "", wrapErr("insert order", err)
	}

	for i, item := range order.LineItems {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, lesson_id, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?)`,
			order.ID, i, item.LessonID, item.Quantity, item.UnitPriceSnapshot,
		)
		if err != nil {
			return "", wrapErr("insert order item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", wrapErr("commit", err)
	}
	return order.ID, nil
}

type orderRow struct {
	ID            string    `db:"id"`
	CustomerName  string    `db:"customer_name"`
	CustomerPhone string    `db:"customer_phone"`
	Total         float64   `db:"total"`
	CreatedAt     time.Time `db:"created_at"`
}

type orderItemRow struct {
	OrderID   string  `db:"order_id"`
	LessonID  string  `db:"lesson_id"`
	Quantity  int     `db:"quantity"`
	UnitPrice float64 `db:"unit_price"`
}

func (m *MySQLAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	var rows []orderRow
	if err := m.db.SelectContext(ctx, &rows, `
		SELECT id, customer_name, customer_phone, total, created_at
		FROM orders ORDER BY created_at, id`); err != nil {
		return nil, wrapErr("list orders", err)
	}

	var items []orderItemRow
	if err := m.db.SelectContext(ctx, &items, `
		SELECT order_id, lesson_id, quantity, unit_price
		FROM order_items ORDER BY order_id, position`); err != nil {
		return nil, wrapErr("list order items", err)
	}

	return assembleOrders(rows, items), nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (m *MySQLAdapter) Close() error {
	return m.db.Close()
}

func assembleOrders(rows []orderRow, items []orderItemRow) []domain.Order {
	byOrder := make(map[string][]domain.LineItem, len(rows))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], domain.LineItem{
			LessonID:          it.LessonID,
			Quantity:          it.Quantity,
			UnitPriceSnapshot: it.UnitPrice,
		})
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, domain.Order{
			ID:            r.ID,
			CustomerName:  r.CustomerName,
			CustomerPhone: r.CustomerPhone,
			LineItems:     byOrder[r.ID],
			Total:         r.Total,
			CreatedAt:     r.CreatedAt.UTC(),
		})
	}
	return orders
}
