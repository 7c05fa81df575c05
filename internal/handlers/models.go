package handlers

import (
	"time"

	"settlement-service/internal/domain"

	"github.com/shopspring/decimal"
)

// ErrorResponse mirrors errors.StandardError for the API docs
// @Description Error response
type ErrorResponse struct {
	Error   string `json:"error" example:"InsufficientStock"`
	Message string `json:"message" example:"insufficient stock available"`
	Details string `json:"details" example:"Product ID: 550e8400-e29b-41d4-a716-446655440000, Available: 2, Requested: 3"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message" example:"order deleted successfully"`
}

// OrderItemRequest is one cart line
type OrderItemRequest struct {
	ProductID   string          `json:"product_id" binding:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	ProductName string          `json:"product_name" binding:"required" example:"Laptop Dell XPS 15"`
	Quantity    int             `json:"quantity" example:"3"`
	Price       decimal.Decimal `json:"price" swaggertype:"string" example:"10.00"`
}

// CreateOrderRequest represents the request body for settling a cart
// @Description The total is recomputed from the lines. A client supplied total is only compared and logged.
type CreateOrderRequest struct {
	Items []OrderItemRequest `json:"items"`
	Notes *string            `json:"notes" example:"walk-in customer"`
	Total *decimal.Decimal   `json:"total" swaggertype:"string" example:"30.00"`
}

// StockWarning describes a line of a committed order whose stock debit failed
type StockWarning struct {
	ProductID string `json:"product_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Quantity  int    `json:"quantity" example:"3"`
	Reason    string `json:"reason" example:"insufficient stock: product 550e8400-e29b-41d4-a716-446655440000 has 1, requested 3"`
}

// OrderResponse is an order with any stock warnings raised while settling it
type OrderResponse struct {
	*domain.Order
	StockWarnings []StockWarning `json:"stock_warnings,omitempty"`
}

// ListOrdersResponse is a page of orders
type ListOrdersResponse struct {
	Orders []*domain.Order `json:"orders"`
	Limit  int             `json:"limit" example:"50"`
	Offset int             `json:"offset" example:"0"`
}

// AvailabilityResponse is the on-hand quantity of one product
type AvailabilityResponse struct {
	ProductID string `json:"product_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Available int    `json:"available" example:"42"`
}

// SetStockRequest represents a manual stock level correction
type SetStockRequest struct {
	Quantity *int `json:"quantity" binding:"required" example:"100"`
}

// SetStockResponse is the level after a correction and the movement that
// produced it, if any
type SetStockResponse struct {
	ProductID string                `json:"product_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Quantity  int                   `json:"quantity" example:"100"`
	UpdatedAt time.Time             `json:"updated_at" example:"2024-01-15T10:30:00Z"`
	Movement  *domain.StockMovement `json:"movement,omitempty"`
}

// ListMovementsResponse is the movement history of one product, newest first
type ListMovementsResponse struct {
	ProductID string                 `json:"product_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Movements []domain.StockMovement `json:"movements"`
}
