// Package settlement turns carts into orders and keeps inventory consistent
// with them.
//
// Order placement runs in a single pass:
//
//  1. validate the cart and precheck availability (advisory only),
//  2. recompute the total and persist header + items in one transaction,
//  3. debit every line through the ledger,
//  4. record the revenue event and publish OrderSettled.
//
// Once step 2 commits, the sale stands. Debit failures in step 3 are
// returned as *domain.StockDebitError alongside the order and are not
// reconciled automatically.
package settlement

import (
	"context"
	"errors"

	"settlement-service/internal/commands"
	"settlement-service/internal/domain"
	"settlement-service/internal/events"
	"settlement-service/internal/ledger"
	"settlement-service/internal/metrics"
	"settlement-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Inventory is the part of the ledger the service depends on
type Inventory interface {
	GetAvailable(ctx context.Context, ownerID string, productID uuid.UUID) (int, error)
	ReserveAndApply(ctx context.Context, mv ledger.Movement) (*domain.StockMovement, error)
	Restock(ctx context.Context, ownerID string, productID uuid.UUID, quantity int, orderID uuid.UUID) (*domain.StockMovement, error)
	ReturnedForOrder(ctx context.Context, ownerID string, orderID uuid.UUID) (map[uuid.UUID]int, error)
}

type Service struct {
	inventory Inventory
	orders    repository.OrderRepository
	revenue   repository.RevenueRepository
	publisher events.EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewService creates the settlement service. publisher and m may be nil.
func NewService(
	inventory Inventory,
	orders repository.OrderRepository,
	revenue repository.RevenueRepository,
	publisher events.EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		inventory: inventory,
		orders:    orders,
		revenue:   revenue,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// CreateOrder settles a cart. On success the returned order is completed
// and its stock is debited. When the order was committed but some lines
// could not be debited, both the order and a *domain.StockDebitError are
// returned.
func (s *Service) CreateOrder(ctx context.Context, cmd commands.CreateOrderCommand) (*domain.Order, error) {
	if err := cmd.Cart.Validate(); err != nil {
		s.metrics.OrderOutcome(metrics.OutcomeRejected)
		return nil, err
	}

	if err := s.precheck(ctx, cmd.OwnerID, cmd.Cart); err != nil {
		var (
			insufficient *domain.InsufficientStockError
			unknown      *domain.ProductNotFoundError
		)
		if errors.As(err, &insufficient) || errors.As(err, &unknown) {
			s.metrics.OrderOutcome(metrics.OutcomeRejected)
		} else {
			s.metrics.OrderOutcome(metrics.OutcomeFailed)
		}
		return nil, err
	}

	order, err := domain.NewOrder(cmd.OwnerID, cmd.Cart)
	if err != nil {
		s.metrics.OrderOutcome(metrics.OutcomeRejected)
		return nil, err
	}
	if cmd.ClientTotal != nil && !cmd.ClientTotal.Equal(order.Total) {
		s.logger.Warn("Client total differs from recomputed total, using recomputed value",
			zap.String("order_id", order.ID.String()),
			zap.String("client_total", cmd.ClientTotal.String()),
			zap.String("total", order.Total.String()),
		)
	}

	if err := s.orders.CreateWithItems(ctx, order); err != nil {
		s.compensate(ctx, order)
		s.metrics.OrderOutcome(metrics.OutcomeFailed)
		s.logger.Error("Failed to persist order",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return nil, &domain.PersistenceError{Operation: "create order", Err: err}
	}

	failures := s.debit(ctx, order)

	if err := s.revenue.Record(ctx, domain.NewRevenueEvent(order)); err != nil {
		s.logger.Error("Failed to record revenue event",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}

	s.publish(ctx, events.NewOrderSettledEvent(order))

	if len(failures) > 0 {
		s.metrics.OrderOutcome(metrics.OutcomeDebitFailed)
		return order, &domain.StockDebitError{OrderID: order.ID, Failures: failures}
	}

	s.metrics.OrderOutcome(metrics.OutcomeSettled)
	s.logger.Info("Order settled",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", order.OwnerID),
		zap.String("total", order.Total.String()),
		zap.Int("items", len(order.Items)),
	)
	return order, nil
}

// precheck compares requested quantities (summed per product) with the
// ledger's current availability. It also rejects products the owner does
// not have. The availability part is a UX guard; the ledger re-checks on
// every debit.
func (s *Service) precheck(ctx context.Context, ownerID string, cart domain.Cart) error {
	products, requested := cart.RequestedByProduct()
	for _, productID := range products {
		available, err := s.inventory.GetAvailable(ctx, ownerID, productID)
		if err != nil {
			return err
		}
		if requested[productID] > available {
			return &domain.InsufficientStockError{
				ProductID: productID,
				Available: available,
				Requested: requested[productID],
			}
		}
	}
	return nil
}

// compensate removes whatever part of a failed order insert survived
func (s *Service) compensate(ctx context.Context, order *domain.Order) {
	err := s.orders.Delete(ctx, order.OwnerID, order.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("Failed to remove partially created order",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) debit(ctx context.Context, order *domain.Order) []domain.DebitFailure {
	var failures []domain.DebitFailure
	for _, item := range order.Items {
		_, err := s.inventory.ReserveAndApply(ctx, ledger.Movement{
			OwnerID:   order.OwnerID,
			ProductID: item.ProductID.UUID,
			Delta:     -item.Quantity,
			Reason:    domain.MovementReasonSale,
			OrderID:   uuid.NullUUID{UUID: order.ID, Valid: true},
		})
		if err != nil {
			s.logger.Error("Stock debit failed for committed order",
				zap.String("order_id", order.ID.String()),
				zap.String("product_id", item.ProductID.UUID.String()),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
			failures = append(failures, domain.DebitFailure{
				ProductID: item.ProductID.UUID,
				Quantity:  item.Quantity,
				Err:       err,
			})
		}
	}
	return failures
}

// CancelOrder restocks every line of a completed order and marks it
// cancelled. Lines whose product no longer exists are skipped. Units already
// returned for the order by an earlier, interrupted cancel are not returned
// again, so a failed cancel can be retried.
func (s *Service) CancelOrder(ctx context.Context, cmd commands.CancelOrderCommand) (*domain.Order, error) {
	order, err := s.loadOrder(ctx, cmd.OwnerID, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.CanCancel() {
		return nil, &domain.InvalidOrderStateError{OrderID: order.ID, Status: order.Status, Operation: "cancel"}
	}

	returned, err := s.inventory.ReturnedForOrder(ctx, order.OwnerID, order.ID)
	if err != nil {
		return nil, err
	}

	for _, item := range order.Items {
		if !item.ProductID.Valid {
			s.logger.Warn("Skipping restock for line without product",
				zap.String("order_id", order.ID.String()),
				zap.String("product_name", item.ProductName),
				zap.Int("quantity", item.Quantity),
			)
			continue
		}

		quantity := item.Quantity
		if already := min(returned[item.ProductID.UUID], quantity); already > 0 {
			returned[item.ProductID.UUID] -= already
			quantity -= already
			s.logger.Info("Line already returned to stock",
				zap.String("order_id", order.ID.String()),
				zap.String("product_id", item.ProductID.UUID.String()),
				zap.Int("quantity", already),
			)
		}
		if quantity == 0 {
			continue
		}

		if _, err := s.inventory.Restock(ctx, order.OwnerID, item.ProductID.UUID, quantity, order.ID); err != nil {
			s.logger.Error("Restock failed during cancellation",
				zap.String("order_id", order.ID.String()),
				zap.String("product_id", item.ProductID.UUID.String()),
				zap.Error(err),
			)
			return nil, err
		}
	}

	err = s.orders.UpdateStatus(ctx, order.OwnerID, order.ID, domain.OrderStatusCompleted, domain.OrderStatusCancelled)
	if err != nil {
		// Stock has already been returned at this point.
		s.logger.Error("Order restocked but status update failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, &domain.OrderNotFoundError{OrderID: order.ID}
		case errors.Is(err, repository.ErrStatusConflict):
			return nil, &domain.InvalidOrderStateError{OrderID: order.ID, Status: order.Status, Operation: "cancel"}
		}
		return nil, &domain.PersistenceError{Operation: "cancel order", Err: err}
	}
	if err := order.Cancel(); err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewOrderCancelledEvent(order))
	s.metrics.OrderCancelled()
	s.logger.Info("Order cancelled",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", order.OwnerID),
	)
	return order, nil
}

// DeleteOrder removes a cancelled order and its items
func (s *Service) DeleteOrder(ctx context.Context, cmd commands.DeleteOrderCommand) error {
	order, err := s.loadOrder(ctx, cmd.OwnerID, cmd.OrderID)
	if err != nil {
		return err
	}
	if !order.CanDelete() {
		return &domain.InvalidOrderStateError{OrderID: order.ID, Status: order.Status, Operation: "delete"}
	}

	err = s.orders.DeleteInStatus(ctx, order.OwnerID, order.ID, domain.OrderStatusCancelled)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &domain.OrderNotFoundError{OrderID: order.ID}
	case errors.Is(err, repository.ErrStatusConflict):
		return &domain.InvalidOrderStateError{OrderID: order.ID, Status: order.Status, Operation: "delete"}
	case err != nil:
		return &domain.PersistenceError{Operation: "delete order", Err: err}
	}

	s.publish(ctx, events.NewOrderDeletedEvent(order))
	s.metrics.OrderDeleted()
	s.logger.Info("Order deleted", zap.String("order_id", order.ID.String()))
	return nil
}

// GetOrder returns one order with its items
func (s *Service) GetOrder(ctx context.Context, ownerID string, orderID uuid.UUID) (*domain.Order, error) {
	return s.loadOrder(ctx, ownerID, orderID)
}

// ListOrders returns the owner's orders, newest first
func (s *Service) ListOrders(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Order, error) {
	orders, err := s.orders.List(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, &domain.PersistenceError{Operation: "list orders", Err: err}
	}
	return orders, nil
}

func (s *Service) loadOrder(ctx context.Context, ownerID string, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, ownerID, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &domain.OrderNotFoundError{OrderID: orderID}
	}
	if err != nil {
		return nil, &domain.PersistenceError{Operation: "load order", Err: err}
	}
	return order, nil
}

func (s *Service) publish(ctx context.Context, event interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event-type", events.EventType(event)),
			zap.Error(err),
		)
	}
}
