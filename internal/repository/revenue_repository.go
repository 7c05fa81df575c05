package repository

import (
	"context"
	"fmt"
	"time"

	"settlement-service/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type revenueEventRow struct {
	ID        uuid.UUID       `db:"id"`
	OwnerID   string          `db:"user_id"`
	OrderID   uuid.UUID       `db:"order_id"`
	Amount    decimal.Decimal `db:"amount"`
	CreatedAt time.Time       `db:"created_at"`
}

// SQLiteRevenueRepository implements RevenueRepository
type SQLiteRevenueRepository struct {
	db *DB
}

// NewRevenueRepository creates a revenue repository on db
func NewRevenueRepository(db *DB) *SQLiteRevenueRepository {
	return &SQLiteRevenueRepository{db: db}
}

func (r *SQLiteRevenueRepository) Record(ctx context.Context, event *domain.RevenueEvent) error {
	_, err := r.db.db.NamedExecContext(ctx, `
		INSERT INTO revenue_events (id, user_id, order_id, amount, created_at)
		VALUES (:id, :user_id, :order_id, :amount, :created_at)
	`, revenueEventRow{
		ID:        event.ID,
		OwnerID:   event.OwnerID,
		OrderID:   event.OrderID,
		Amount:    event.Amount,
		CreatedAt: event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert revenue event: %w", err)
	}
	return nil
}

func (r *SQLiteRevenueRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.RevenueEvent, error) {
	var rows []revenueEventRow
	err := r.db.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, order_id, amount, created_at
		FROM revenue_events
		WHERE order_id = ?
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revenue events: %w", err)
	}

	events := make([]domain.RevenueEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, domain.RevenueEvent{
			ID:        row.ID,
			OwnerID:   row.OwnerID,
			OrderID:   row.OrderID,
			Amount:    row.Amount,
			CreatedAt: row.CreatedAt,
		})
	}
	return events, nil
}
