package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderError is implemented by every failure the settlement workflow
// returns to its callers. The set is closed: only this package can add
// variants.
type OrderError interface {
	error
	orderError()
}

// EmptyCartError is returned when a cart has no lines
type EmptyCartError struct{}

func (e *EmptyCartError) Error() string { return "cart must contain at least one item" }
func (*EmptyCartError) orderError()     {}

// InvalidQuantityError is returned for a line whose quantity is not in
// 1..MaxQuantity
type InvalidQuantityError struct {
	Line     int
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	if e.Quantity > MaxQuantity {
		return fmt.Sprintf("line %d: quantity must not exceed %d, got %d", e.Line, MaxQuantity, e.Quantity)
	}
	return fmt.Sprintf("line %d: quantity must be a positive integer, got %d", e.Line, e.Quantity)
}
func (*InvalidQuantityError) orderError() {}

// InvalidPriceError is returned for a line with a negative unit price
type InvalidPriceError struct {
	Line  int
	Price decimal.Decimal
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("line %d: unit price must not be negative, got %s", e.Line, e.Price.String())
}
func (*InvalidPriceError) orderError() {}

// InsufficientStockError is returned when a debit would drive a stock
// level below zero
type InsufficientStockError struct {
	ProductID uuid.UUID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}
func (*InsufficientStockError) orderError() {}

// ProductNotFoundError is returned when a product does not exist for the
// owner. Stock of another owner's product is reported the same way.
type ProductNotFoundError struct {
	ProductID uuid.UUID
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}
func (*ProductNotFoundError) orderError() {}

// OrderNotFoundError is returned when the order does not exist for the owner
type OrderNotFoundError struct {
	OrderID uuid.UUID
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.OrderID)
}
func (*OrderNotFoundError) orderError() {}

// InvalidOrderStateError is returned when an operation is not legal for the
// order's current status
type InvalidOrderStateError struct {
	OrderID   uuid.UUID
	Status    OrderStatus
	Operation string
}

func (e *InvalidOrderStateError) Error() string {
	return fmt.Sprintf("cannot %s order %s in status %s", e.Operation, e.OrderID, e.Status)
}
func (*InvalidOrderStateError) orderError() {}

// PersistenceError wraps a store failure
type PersistenceError struct {
	Operation string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Operation, e.Err)
}
func (e *PersistenceError) Unwrap() error { return e.Err }
func (*PersistenceError) orderError()     {}

// DebitFailure is one line whose stock debit failed after the order was
// committed
type DebitFailure struct {
	ProductID uuid.UUID
	Quantity  int
	Err       error
}

// StockDebitError reports lines that could not be debited for a committed
// order. The order itself stands.
type StockDebitError struct {
	OrderID  uuid.UUID
	Failures []DebitFailure
}

func (e *StockDebitError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s x%d: %v", f.ProductID, f.Quantity, f.Err))
	}
	return fmt.Sprintf("order %s committed but stock debit failed for %d line(s): %s",
		e.OrderID, len(e.Failures), strings.Join(parts, "; "))
}
func (*StockDebitError) orderError() {}
