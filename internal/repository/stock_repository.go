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
)

const defaultMovementLimit = 100

type stockLevelRow struct {
	ProductID uuid.UUID `db:"product_id"`
	Quantity  int       `db:"quantity"`
	UpdatedAt time.Time `db:"updated_at"`
}

type stockMovementRow struct {
	ID             uuid.UUID     `db:"id"`
	OwnerID        string        `db:"user_id"`
	ProductID      uuid.UUID     `db:"product_id"`
	Delta          int           `db:"delta"`
	Reason         string        `db:"reason"`
	OrderID        uuid.NullUUID `db:"order_id"`
	QuantityBefore int           `db:"quantity_before"`
	QuantityAfter  int           `db:"quantity_after"`
	CreatedAt      time.Time     `db:"created_at"`
}

func (r stockMovementRow) toDomain() domain.StockMovement {
	return domain.StockMovement{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		ProductID:      r.ProductID,
		Delta:          r.Delta,
		Reason:         domain.MovementReason(r.Reason),
		OrderID:        r.OrderID,
		QuantityBefore: r.QuantityBefore,
		QuantityAfter:  r.QuantityAfter,
		CreatedAt:      r.CreatedAt,
	}
}

// SQLiteStockRepository implements StockRepository
type SQLiteStockRepository struct {
	db *DB
}

// NewStockRepository creates a stock repository on db
func NewStockRepository(db *DB) *SQLiteStockRepository {
	return &SQLiteStockRepository{db: db}
}

func (r *SQLiteStockRepository) GetLevel(ctx context.Context, ownerID string, productID uuid.UUID) (*domain.StockLevel, error) {
	if err := ownsProduct(ctx, r.db.db, ownerID, productID); err != nil {
		return nil, err
	}

	var row stockLevelRow
	err := r.db.db.GetContext(ctx, &row,
		`SELECT product_id, quantity, updated_at FROM stock_levels WHERE product_id = ?`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock level: %w", err)
	}
	return &domain.StockLevel{ProductID: row.ProductID, Quantity: row.Quantity, UpdatedAt: row.UpdatedAt}, nil
}

func (r *SQLiteStockRepository) ApplyMovement(ctx context.Context, m *domain.StockMovement) (*domain.StockLevel, error) {
	return r.apply(ctx, m, nil)
}

func (r *SQLiteStockRepository) SetQuantity(ctx context.Context, m *domain.StockMovement, quantity int) (*domain.StockLevel, error) {
	return r.apply(ctx, m, func(current int) int { return quantity - current })
}

// apply is the only code path that writes stock_levels
func (r *SQLiteStockRepository) apply(ctx context.Context, m *domain.StockMovement, deltaFor func(current int) int) (*domain.StockLevel, error) {
	var level *domain.StockLevel

	err := r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := ownsProduct(ctx, tx, m.OwnerID, m.ProductID); err != nil {
			return err
		}

		current, exists, err := currentQuantity(ctx, tx, m.ProductID)
		if err != nil {
			return err
		}

		if deltaFor != nil {
			m.Delta = deltaFor(current)
		}
		if m.Delta == 0 {
			level = &domain.StockLevel{ProductID: m.ProductID, Quantity: current}
			return nil
		}

		next, err := m.ApplyTo(current)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if exists {
			result, err := tx.ExecContext(ctx, `
				UPDATE stock_levels
				SET quantity = quantity + ?, updated_at = ?
				WHERE product_id = ? AND (quantity + ?) >= 0
			`, m.Delta, now, m.ProductID, m.Delta)
			if err != nil {
				return fmt.Errorf("failed to update stock level: %w", err)
			}
			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if rowsAffected == 0 {
				return &domain.InsufficientStockError{ProductID: m.ProductID, Available: current, Requested: -m.Delta}
			}
		} else {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO stock_levels (product_id, quantity, updated_at) VALUES (?, ?, ?)`,
				m.ProductID, next, now)
			if err != nil {
				return fmt.Errorf("failed to create stock level: %w", err)
			}
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO stock_movements
				(id, user_id, product_id, delta, reason, order_id, quantity_before, quantity_after, created_at)
			VALUES
				(:id, :user_id, :product_id, :delta, :reason, :order_id, :quantity_before, :quantity_after, :created_at)
		`, stockMovementRow{
			ID:             m.ID,
			OwnerID:        m.OwnerID,
			ProductID:      m.ProductID,
			Delta:          m.Delta,
			Reason:         string(m.Reason),
			OrderID:        m.OrderID,
			QuantityBefore: m.QuantityBefore,
			QuantityAfter:  m.QuantityAfter,
			CreatedAt:      m.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to insert stock movement: %w", err)
		}

		level = &domain.StockLevel{ProductID: m.ProductID, Quantity: next, UpdatedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return level, nil
}

// ownsProduct reports ErrProductNotFound unless ownerID owns productID
func ownsProduct(ctx context.Context, q sqlx.QueryerContext, ownerID string, productID uuid.UUID) error {
	var found int
	err := sqlx.GetContext(ctx, q, &found,
		`SELECT 1 FROM products WHERE id = ? AND user_id = ?`, productID, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check product owner: %w", err)
	}
	return nil
}

func currentQuantity(ctx context.Context, tx *sqlx.Tx, productID uuid.UUID) (int, bool, error) {
	var quantity int
	err := tx.GetContext(ctx, &quantity, `SELECT quantity FROM stock_levels WHERE product_id = ?`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read stock level: %w", err)
	}
	return quantity, true, nil
}

func (r *SQLiteStockRepository) ListMovements(ctx context.Context, ownerID string, productID uuid.UUID, limit int) ([]domain.StockMovement, error) {
	if err := ownsProduct(ctx, r.db.db, ownerID, productID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMovementLimit
	}

	var rows []stockMovementRow
	err := r.db.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, product_id, delta, reason, order_id, quantity_before, quantity_after, created_at
		FROM stock_movements
		WHERE product_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock movements: %w", err)
	}

	movements := make([]domain.StockMovement, 0, len(rows))
	for _, row := range rows {
		movements = append(movements, row.toDomain())
	}
	return movements, nil
}

func (r *SQLiteStockRepository) SumMovements(ctx context.Context, ownerID string, productID uuid.UUID) (int, error) {
	if err := ownsProduct(ctx, r.db.db, ownerID, productID); err != nil {
		return 0, err
	}

	var sum int
	err := r.db.db.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(delta), 0) FROM stock_movements WHERE product_id = ?`, productID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum stock movements: %w", err)
	}
	return sum, nil
}

func (r *SQLiteStockRepository) ReturnedForOrder(ctx context.Context, ownerID string, orderID uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		ProductID uuid.UUID `db:"product_id"`
		Quantity  int       `db:"quantity"`
	}
	err := r.db.db.SelectContext(ctx, &rows, `
		SELECT product_id, SUM(delta) AS quantity
		FROM stock_movements
		WHERE order_id = ? AND user_id = ? AND reason = ?
		GROUP BY product_id
	`, orderID, ownerID, string(domain.MovementReasonReturn))
	if err != nil {
		return nil, fmt.Errorf("failed to sum returns for order: %w", err)
	}

	returned := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		returned[row.ProductID] = row.Quantity
	}
	return returned, nil
}
