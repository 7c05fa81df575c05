package commands

import (
	"settlement-service/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateOrderCommand represents a command to settle a cart into an order
type CreateOrderCommand struct {
	OwnerID string
	Cart    domain.Cart
	// ClientTotal is what the caller believes the total is. It is only
	// compared against the recomputed total, never persisted.
	ClientTotal *decimal.Decimal
}

// CancelOrderCommand represents a command to cancel and restock an order
type CancelOrderCommand struct {
	OwnerID string
	OrderID uuid.UUID
}

// DeleteOrderCommand represents a command to delete a cancelled order
type DeleteOrderCommand struct {
	OwnerID string
	OrderID uuid.UUID
}

// SetStockCommand represents a manual stock level correction
type SetStockCommand struct {
	OwnerID   string
	ProductID uuid.UUID
	Quantity  int
}
