package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxQuantity bounds a single line quantity, stock movement, or stock level
const MaxQuantity = 1_000_000_000

// MovementReason tags why a stock level changed
type MovementReason string

const (
	MovementReasonSale       MovementReason = "sale"
	MovementReasonReturn     MovementReason = "return"
	MovementReasonAdjustment MovementReason = "adjustment"
)

// Valid reports whether the reason is one the ledger accepts
func (r MovementReason) Valid() bool {
	switch r {
	case MovementReasonSale, MovementReasonReturn, MovementReasonAdjustment:
		return true
	}
	return false
}

// ProductStatus is the catalog state of a product
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

// Product is a catalog entry. Settlement only reads it.
type Product struct {
	ID          uuid.UUID       `json:"id"`
	OwnerID     string          `json:"user_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Status      ProductStatus   `json:"status"`
	CategoryID  uuid.NullUUID   `json:"category_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewProduct creates an active product
func NewProduct(ownerID, name, description string, price decimal.Decimal) *Product {
	now := time.Now().UTC()
	return &Product{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		Price:       price,
		Status:      ProductStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// StockLevel is the on-hand quantity of one product
type StockLevel struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StockMovement is one append-only change to a stock level
type StockMovement struct {
	ID             uuid.UUID      `json:"id"`
	OwnerID        string         `json:"user_id"`
	ProductID      uuid.UUID      `json:"product_id"`
	Delta          int            `json:"change"`
	Reason         MovementReason `json:"reason"`
	OrderID        uuid.NullUUID  `json:"order_id"`
	QuantityBefore int            `json:"quantity_before"`
	QuantityAfter  int            `json:"quantity_after"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewStockMovement prepares a movement; before/after are filled in by the
// ledger when it is applied.
func NewStockMovement(ownerID string, productID uuid.UUID, delta int, reason MovementReason, orderID uuid.NullUUID) *StockMovement {
	return &StockMovement{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		ProductID: productID,
		Delta:     delta,
		Reason:    reason,
		OrderID:   orderID,
		CreatedAt: time.Now().UTC(),
	}
}

// ApplyTo computes the resulting quantity for a current level, failing
// when the level would go negative.
func (m *StockMovement) ApplyTo(current int) (int, error) {
	next := current + m.Delta
	if next < 0 {
		return current, &InsufficientStockError{
			ProductID: m.ProductID,
			Available: current,
			Requested: -m.Delta,
		}
	}
	m.QuantityBefore = current
	m.QuantityAfter = next
	return next, nil
}
