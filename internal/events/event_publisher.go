package events

import (
	"context"
	"sync"
	"time"

	"settlement-service/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(ctx context.Context, event interface{}) error
}

// OrderLine is the per-item payload carried by order events
type OrderLine struct {
	ProductID   uuid.NullUUID   `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// OrderSettledEvent is emitted once an order and its items are committed
type OrderSettledEvent struct {
	OrderID    uuid.UUID       `json:"order_id"`
	OwnerID    string          `json:"user_id"`
	Total      decimal.Decimal `json:"total"`
	Lines      []OrderLine     `json:"lines"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// OrderCancelledEvent is emitted after a cancelled order was restocked
type OrderCancelledEvent struct {
	OrderID    uuid.UUID       `json:"order_id"`
	OwnerID    string          `json:"user_id"`
	Total      decimal.Decimal `json:"total"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// OrderDeletedEvent is emitted when a cancelled order is removed
type OrderDeletedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	OwnerID    string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StockMovedEvent mirrors one committed stock movement
type StockMovedEvent struct {
	MovementID     uuid.UUID             `json:"movement_id"`
	ProductID      uuid.UUID             `json:"product_id"`
	OwnerID        string                `json:"user_id"`
	Delta          int                   `json:"change"`
	Reason         domain.MovementReason `json:"reason"`
	OrderID        uuid.NullUUID         `json:"order_id"`
	QuantityBefore int                   `json:"quantity_before"`
	QuantityAfter  int                   `json:"quantity_after"`
	OccurredAt     time.Time             `json:"occurred_at"`
}

func NewOrderSettledEvent(order *domain.Order) OrderSettledEvent {
	lines := make([]OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, OrderLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price,
			Subtotal:    item.Subtotal,
		})
	}
	return OrderSettledEvent{
		OrderID:    order.ID,
		OwnerID:    order.OwnerID,
		Total:      order.Total,
		Lines:      lines,
		OccurredAt: time.Now().UTC(),
	}
}

func NewOrderCancelledEvent(order *domain.Order) OrderCancelledEvent {
	return OrderCancelledEvent{
		OrderID:    order.ID,
		OwnerID:    order.OwnerID,
		Total:      order.Total,
		OccurredAt: time.Now().UTC(),
	}
}

func NewOrderDeletedEvent(order *domain.Order) OrderDeletedEvent {
	return OrderDeletedEvent{
		OrderID:    order.ID,
		OwnerID:    order.OwnerID,
		OccurredAt: time.Now().UTC(),
	}
}

func NewStockMovedEvent(m *domain.StockMovement) StockMovedEvent {
	return StockMovedEvent{
		MovementID:     m.ID,
		ProductID:      m.ProductID,
		OwnerID:        m.OwnerID,
		Delta:          m.Delta,
		Reason:         m.Reason,
		OrderID:        m.OrderID,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		OccurredAt:     m.CreatedAt,
	}
}

// InMemoryEventPublisher keeps events in process. Used when Kafka is
// disabled and in tests.
type InMemoryEventPublisher struct {
	logger *zap.Logger
	mu     sync.Mutex
	events []interface{}
}

func NewEventPublisher(logger *zap.Logger) *InMemoryEventPublisher {
	return &InMemoryEventPublisher{
		logger: logger,
		events: make([]interface{}, 0),
	}
}

func (p *InMemoryEventPublisher) Publish(ctx context.Context, event interface{}) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	p.logger.Debug("Event published (in-memory)", zap.String("event-type", EventType(event)))
	return nil
}

// Events returns a copy of everything published so far
func (p *InMemoryEventPublisher) Events() []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]interface{}, len(p.events))
	copy(out, p.events)
	return out
}

// EventType returns the event type as string
func EventType(event interface{}) string {
	switch event.(type) {
	case OrderSettledEvent:
		return "OrderSettled"
	case OrderCancelledEvent:
		return "OrderCancelled"
	case OrderDeletedEvent:
		return "OrderDeleted"
	case StockMovedEvent:
		return "StockMoved"
	default:
		return "Unknown"
	}
}
