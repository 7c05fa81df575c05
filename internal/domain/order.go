package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a sale
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order represents the aggregate root for a sale
type Order struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   string          `json:"user_id"`
	Total     decimal.Decimal `json:"total"`
	Status    OrderStatus     `json:"status"`
	Notes     *string         `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Items     []OrderItem     `json:"items"`
}

// OrderItem is an immutable line of an order. ProductID becomes invalid
// (NULL) when the product is removed from the catalog after the sale.
type OrderItem struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.NullUUID   `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// NewOrder settles a validated cart into a completed order. The total is
// always recomputed from the lines.
func NewOrder(ownerID string, cart Cart) (*Order, error) {
	if err := cart.Validate(); err != nil {
		return nil, err
	}

	order := &Order{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Status:    OrderStatusCompleted,
		Notes:     cart.Notes,
		CreatedAt: time.Now().UTC(),
		Items:     make([]OrderItem, 0, len(cart.Items)),
	}

	for _, line := range cart.Items {
		order.Items = append(order.Items, OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   uuid.NullUUID{UUID: line.ProductID, Valid: true},
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			Price:       line.UnitPrice,
			Subtotal:    line.Subtotal(),
		})
	}
	order.Total = cart.Total()

	return order, nil
}

// CanCancel reports whether the order may transition to cancelled
func (o *Order) CanCancel() bool {
	return o.Status == OrderStatusCompleted
}

// Cancel moves the order from completed to cancelled
func (o *Order) Cancel() error {
	if !o.CanCancel() {
		return &InvalidOrderStateError{OrderID: o.ID, Status: o.Status, Operation: "cancel"}
	}
	o.Status = OrderStatusCancelled
	return nil
}

// CanDelete reports whether the order may be removed
func (o *Order) CanDelete() bool {
	return o.Status == OrderStatusCancelled
}

// RevenueEvent records the revenue recognized for a completed order
type RevenueEvent struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   string          `json:"user_id"`
	OrderID   uuid.UUID       `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewRevenueEvent creates the revenue record for an order
func NewRevenueEvent(order *Order) *RevenueEvent {
	return &RevenueEvent{
		ID:        uuid.New(),
		OwnerID:   order.OwnerID,
		OrderID:   order.ID,
		Amount:    order.Total,
		CreatedAt: time.Now().UTC(),
	}
}
