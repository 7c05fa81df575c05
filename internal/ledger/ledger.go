// Package ledger is the single point of truth for on-hand stock. Every
// quantity change goes through ReserveAndApply, which re-checks the level and
// writes the level and its movement record in one transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/cache"
	"settlement-service/internal/domain"
	"settlement-service/internal/events"
	"settlement-service/internal/metrics"
	"settlement-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Movement is a requested change to one product's stock
type Movement struct {
	OwnerID   string
	ProductID uuid.UUID
	Delta     int
	Reason    domain.MovementReason
	OrderID   uuid.NullUUID
}

// Reconciliation compares a level with the sum of its movements
type Reconciliation struct {
	ProductID   uuid.UUID `json:"product_id"`
	Level       int       `json:"level"`
	MovementSum int       `json:"movement_sum"`
	Consistent  bool      `json:"consistent"`
}

type Ledger struct {
	stock     repository.StockRepository
	hints     cache.Cache
	hintTTL   time.Duration
	publisher events.EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewLedger wires the ledger to its store. hints and publisher may be nil.
func NewLedger(
	stock repository.StockRepository,
	hints cache.Cache,
	hintTTL time.Duration,
	publisher events.EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Ledger {
	return &Ledger{
		stock:     stock,
		hints:     hints,
		hintTTL:   hintTTL,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// GetAvailable returns the owner's on-hand quantity, 0 for a product that
// was never stocked. The answer may come from the hint cache; it is not
// authoritative.
func (l *Ledger) GetAvailable(ctx context.Context, ownerID string, productID uuid.UUID) (int, error) {
	key := cache.AvailabilityKey(ownerID, productID)
	if l.hints != nil {
		var cached int
		if err := cache.GetJSON(ctx, l.hints, key, &cached); err == nil {
			return cached, nil
		}
	}

	available := 0
	var readAt time.Time
	level, err := l.stock.GetLevel(ctx, ownerID, productID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return 0, l.storeError("read stock level", productID, err)
	default:
		available = level.Quantity
		readAt = level.UpdatedAt
	}

	l.fillHint(ctx, key, productID, available, readAt)
	return available, nil
}

// fillHint caches an availability read, then drops it again when a write
// committed after the level was read. Writers record the commit before
// deleting the hint, so a stale fill is always removed by one side.
func (l *Ledger) fillHint(ctx context.Context, key string, productID uuid.UUID, available int, readAt time.Time) {
	if l.hints == nil || l.hintTTL <= 0 {
		return
	}
	if err := cache.SetJSON(ctx, l.hints, key, available, l.hintTTL); err != nil {
		l.logger.Debug("Failed to cache availability", zap.String("product_id", productID.String()), zap.Error(err))
		return
	}

	var written time.Time
	if err := cache.GetJSON(ctx, l.hints, cache.StockWriteKey(productID), &written); err != nil {
		return
	}
	if written.After(readAt) {
		if err := l.hints.Delete(ctx, key); err != nil {
			l.logger.Warn("Failed to drop stale availability hint", zap.String("product_id", productID.String()), zap.Error(err))
		}
	}
}

// FlushHints drops every cached availability hint. Hints left in a shared
// cache by an earlier run may predate writes made while no ledger was
// watching, such as a seed run.
func (l *Ledger) FlushHints(ctx context.Context) error {
	if l.hints == nil {
		return nil
	}
	return l.hints.DeleteByPattern(ctx, cache.StockKeyPattern)
}

// ReserveAndApply applies mv atomically. A debit that would drive the level
// below zero fails with *domain.InsufficientStockError and writes nothing.
func (l *Ledger) ReserveAndApply(ctx context.Context, mv Movement) (*domain.StockMovement, error) {
	if mv.Delta == 0 || mv.Delta > domain.MaxQuantity || mv.Delta < -domain.MaxQuantity {
		return nil, &domain.InvalidQuantityError{Quantity: mv.Delta}
	}
	if !mv.Reason.Valid() {
		return nil, fmt.Errorf("unknown movement reason %q", mv.Reason)
	}

	m := domain.NewStockMovement(mv.OwnerID, mv.ProductID, mv.Delta, mv.Reason, mv.OrderID)
	level, err := l.stock.ApplyMovement(ctx, m)
	if err != nil {
		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			l.metrics.InsufficientStock()
			l.logger.Info("Stock movement rejected",
				zap.String("product_id", mv.ProductID.String()),
				zap.Int("available", insufficient.Available),
				zap.Int("requested", insufficient.Requested),
			)
			return nil, insufficient
		}
		return nil, l.storeError("apply stock movement", mv.ProductID, err)
	}

	l.afterCommit(ctx, m, level)
	return m, nil
}

// Restock returns quantity units of a product sold on orderID
func (l *Ledger) Restock(ctx context.Context, ownerID string, productID uuid.UUID, quantity int, orderID uuid.UUID) (*domain.StockMovement, error) {
	if quantity <= 0 {
		return nil, &domain.InvalidQuantityError{Quantity: quantity}
	}
	return l.ReserveAndApply(ctx, Movement{
		OwnerID:   ownerID,
		ProductID: productID,
		Delta:     quantity,
		Reason:    domain.MovementReasonReturn,
		OrderID:   uuid.NullUUID{UUID: orderID, Valid: true},
	})
}

// SetLevel sets the on-hand quantity by appending an adjustment movement
// for the difference. The returned movement is nil when nothing changed.
func (l *Ledger) SetLevel(ctx context.Context, ownerID string, productID uuid.UUID, quantity int) (*domain.StockLevel, *domain.StockMovement, error) {
	if quantity < 0 || quantity > domain.MaxQuantity {
		return nil, nil, &domain.InvalidQuantityError{Quantity: quantity}
	}

	m := domain.NewStockMovement(ownerID, productID, 0, domain.MovementReasonAdjustment, uuid.NullUUID{})
	level, err := l.stock.SetQuantity(ctx, m, quantity)
	if err != nil {
		return nil, nil, l.storeError("set stock level", productID, err)
	}
	if m.Delta == 0 {
		return level, nil, nil
	}

	l.afterCommit(ctx, m, level)
	return level, m, nil
}

// ListMovements returns the newest movements for one of the owner's products
func (l *Ledger) ListMovements(ctx context.Context, ownerID string, productID uuid.UUID, limit int) ([]domain.StockMovement, error) {
	movements, err := l.stock.ListMovements(ctx, ownerID, productID, limit)
	if err != nil {
		return nil, l.storeError("list stock movements", productID, err)
	}
	return movements, nil
}

// ReturnedForOrder reports how many units of each product were already
// returned to stock for an order
func (l *Ledger) ReturnedForOrder(ctx context.Context, ownerID string, orderID uuid.UUID) (map[uuid.UUID]int, error) {
	returned, err := l.stock.ReturnedForOrder(ctx, ownerID, orderID)
	if err != nil {
		return nil, &domain.PersistenceError{Operation: "read order returns", Err: err}
	}
	return returned, nil
}

// Reconcile checks that the stored level equals the sum of its movements
func (l *Ledger) Reconcile(ctx context.Context, ownerID string, productID uuid.UUID) (*Reconciliation, error) {
	result := &Reconciliation{ProductID: productID}

	level, err := l.stock.GetLevel(ctx, ownerID, productID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, l.storeError("read stock level", productID, err)
	default:
		result.Level = level.Quantity
	}

	sum, err := l.stock.SumMovements(ctx, ownerID, productID)
	if err != nil {
		return nil, l.storeError("sum stock movements", productID, err)
	}
	result.MovementSum = sum
	result.Consistent = result.Level == sum

	if !result.Consistent {
		l.logger.Error("Stock level does not match movement history",
			zap.String("product_id", productID.String()),
			zap.Int("level", result.Level),
			zap.Int("movement_sum", sum),
		)
	}
	return result, nil
}

func (l *Ledger) storeError(operation string, productID uuid.UUID, err error) error {
	if errors.Is(err, repository.ErrProductNotFound) {
		return &domain.ProductNotFoundError{ProductID: productID}
	}
	return &domain.PersistenceError{Operation: operation, Err: err}
}

// afterCommit runs the non-authoritative side effects of a committed
// movement. None of them can fail the movement.
func (l *Ledger) afterCommit(ctx context.Context, m *domain.StockMovement, level *domain.StockLevel) {
	if l.hints != nil && l.hintTTL > 0 {
		if err := cache.SetJSON(ctx, l.hints, cache.StockWriteKey(m.ProductID), level.UpdatedAt, l.hintTTL); err != nil {
			l.logger.Warn("Failed to record stock write", zap.String("product_id", m.ProductID.String()), zap.Error(err))
		}
	}
	if l.hints != nil {
		if err := l.hints.Delete(ctx, cache.AvailabilityKey(m.OwnerID, m.ProductID)); err != nil {
			l.logger.Warn("Failed to invalidate availability hint",
				zap.String("product_id", m.ProductID.String()),
				zap.Error(err),
			)
		}
	}

	l.metrics.Movement(string(m.Reason))

	if l.publisher != nil {
		if err := l.publisher.Publish(ctx, events.NewStockMovedEvent(m)); err != nil {
			l.logger.Warn("Failed to publish stock movement",
				zap.String("movement_id", m.ID.String()),
				zap.Error(err),
			)
		}
	}

	l.logger.Info("Stock movement applied",
		zap.String("product_id", m.ProductID.String()),
		zap.Int("change", m.Delta),
		zap.String("reason", string(m.Reason)),
		zap.Int("quantity", level.Quantity),
	)
}
