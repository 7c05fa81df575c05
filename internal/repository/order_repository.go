package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const defaultOrderLimit = 50

type orderRow struct {
	ID        uuid.UUID       `db:"id"`
	OwnerID   string          `db:"user_id"`
	Total     decimal.Decimal `db:"total"`
	Status    string          `db:"status"`
	Notes     sql.NullString  `db:"notes"`
	CreatedAt time.Time       `db:"created_at"`
}

type orderItemRow struct {
	ID          uuid.UUID       `db:"id"`
	OrderID     uuid.UUID       `db:"order_id"`
	ProductID   uuid.NullUUID   `db:"product_id"`
	ProductName string          `db:"product_name"`
	Quantity    int             `db:"quantity"`
	Price       decimal.Decimal `db:"price"`
	Subtotal    decimal.Decimal `db:"subtotal"`
}

func (r orderRow) toDomain() *domain.Order {
	order := &domain.Order{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Total:     r.Total,
		Status:    domain.OrderStatus(r.Status),
		CreatedAt: r.CreatedAt,
		Items:     []domain.OrderItem{},
	}
	if r.Notes.Valid {
		notes := r.Notes.String
		order.Notes = &notes
	}
	return order
}

func (r orderItemRow) toDomain() domain.OrderItem {
	return domain.OrderItem{
		ID:          r.ID,
		OrderID:     r.OrderID,
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		Quantity:    r.Quantity,
		Price:       r.Price,
		Subtotal:    r.Subtotal,
	}
}

// SQLiteOrderRepository implements OrderRepository
type SQLiteOrderRepository struct {
	db *DB
}

// NewOrderRepository creates an order repository on db
func NewOrderRepository(db *DB) *SQLiteOrderRepository {
	return &SQLiteOrderRepository{db: db}
}

func (r *SQLiteOrderRepository) CreateWithItems(ctx context.Context, order *domain.Order) error {
	header := orderRow{
		ID:        order.ID,
		OwnerID:   order.OwnerID,
		Total:     order.Total,
		Status:    string(order.Status),
		CreatedAt: order.CreatedAt,
	}
	if order.Notes != nil {
		header.Notes = sql.NullString{String: *order.Notes, Valid: true}
	}

	items := make([]orderItemRow, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemRow{
			ID:          item.ID,
			OrderID:     order.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price,
			Subtotal:    item.Subtotal,
		})
	}

	return r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO orders (id, user_id, total, status, notes, created_at)
			VALUES (:id, :user_id, :total, :status, :notes, :created_at)
		`, header)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		if len(items) == 0 {
			return nil
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, price, subtotal)
			VALUES (:id, :order_id, :product_id, :product_name, :quantity, :price, :subtotal)
		`, items)
		if err != nil {
			return fmt.Errorf("failed to insert order items: %w", err)
		}
		return nil
	})
}

func (r *SQLiteOrderRepository) FindByID(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Order, error) {
	var row orderRow
	err := r.db.db.GetContext(ctx, &row, `
		SELECT id, user_id, total, status, notes, created_at
		FROM orders
		WHERE id = ? AND user_id = ?
	`, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	order := row.toDomain()
	if err := r.attachItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *SQLiteOrderRepository) List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = defaultOrderLimit
	}
	if offset < 0 {
		offset = 0
	}

	var rows []orderRow
	err := r.db.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, total, status, notes, created_at
		FROM orders
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.toDomain())
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *SQLiteOrderRepository) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for _, order := range orders {
		byID[order.ID] = order
		ids = append(ids, order.ID)
	}

	query, args, err := sqlx.In(`
		SELECT id, order_id, product_id, product_name, quantity, price, subtotal
		FROM order_items
		WHERE order_id IN (?)
		ORDER BY rowid
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to build order items query: %w", err)
	}

	var rows []orderItemRow
	if err := r.db.db.SelectContext(ctx, &rows, r.db.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	for _, row := range rows {
		if order, ok := byID[row.OrderID]; ok {
			order.Items = append(order.Items, row.toDomain())
		}
	}
	return nil
}

func (r *SQLiteOrderRepository) UpdateStatus(ctx context.Context, ownerID string, id uuid.UUID, from, to domain.OrderStatus) error {
	result, err := r.db.db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND user_id = ? AND status = ?`,
		string(to), id, ownerID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return r.checkGuardedWrite(ctx, result, ownerID, id)
}

func (r *SQLiteOrderRepository) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	result, err := r.db.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteOrderRepository) DeleteInStatus(ctx context.Context, ownerID string, id uuid.UUID, status domain.OrderStatus) error {
	result, err := r.db.db.ExecContext(ctx,
		`DELETE FROM orders WHERE id = ? AND user_id = ? AND status = ?`, id, ownerID, string(status))
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return r.checkGuardedWrite(ctx, result, ownerID, id)
}

// checkGuardedWrite tells a missing order apart from a status mismatch when
// a conditional write touched no rows
func (r *SQLiteOrderRepository) checkGuardedWrite(ctx context.Context, result sql.Result, ownerID string, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists int
	err = r.db.db.GetContext(ctx, &exists, `SELECT COUNT(1) FROM orders WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to check order: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrStatusConflict
}
