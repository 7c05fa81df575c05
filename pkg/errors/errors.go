package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"settlement-service/internal/domain"
)

// StandardError represents a standardized error response
type StandardError struct {
	Code    string `json:"error"`   // Error code/type (e.g., "InvalidRequest", "OrderNotFound")
	Message string `json:"message"` // Human-readable error message
	Details string `json:"details"` // Additional details (field name, stock levels, etc.)
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for the error
func (e *StandardError) HTTPStatus() int {
	switch e.Code {
	case "InvalidRequest", "ValidationError":
		return http.StatusBadRequest
	case "Unauthorized":
		return http.StatusUnauthorized
	case "OrderNotFound", "ProductNotFound", "ResourceNotFound":
		return http.StatusNotFound
	case "InsufficientStock", "InvalidOrderState", "Conflict":
		return http.StatusConflict
	case "BrokerConnectionError", "ServiceUnavailable":
		return http.StatusServiceUnavailable
	case "SerializationError", "DatabaseError", "InternalError":
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewStandardError creates a new StandardError
func NewStandardError(errorCode, message, details string) *StandardError {
	return &StandardError{
		Code:    errorCode,
		Message: message,
		Details: details,
	}
}

// Common error constructors
func NewInvalidRequest(message, details string) *StandardError {
	return NewStandardError("InvalidRequest", message, details)
}

func NewValidationError(message, field string) *StandardError {
	return NewStandardError("ValidationError", message, fmt.Sprintf("Field: %s", field))
}

func NewUnauthorized(message string) *StandardError {
	return NewStandardError("Unauthorized", message, "")
}

func NewOrderNotFound(orderID string) *StandardError {
	return NewStandardError("OrderNotFound", "order not found", fmt.Sprintf("Order ID: %s", orderID))
}

func NewProductNotFound(productID string) *StandardError {
	return NewStandardError("ProductNotFound", "product not found", fmt.Sprintf("Product ID: %s", productID))
}

func NewInsufficientStock(productID string, available, requested int) *StandardError {
	return NewStandardError("InsufficientStock", "insufficient stock available",
		fmt.Sprintf("Product ID: %s, Available: %d, Requested: %d", productID, available, requested))
}

func NewInvalidOrderState(status, operation string) *StandardError {
	return NewStandardError("InvalidOrderState", fmt.Sprintf("order cannot be %s", pastTense(operation)),
		fmt.Sprintf("Status: %s", status))
}

func NewSerializationError(err error) *StandardError {
	return NewStandardError("SerializationError", "failed to serialize data", err.Error())
}

func NewDatabaseError(operation string, err error) *StandardError {
	return NewStandardError("DatabaseError", fmt.Sprintf("database operation failed: %s", operation), err.Error())
}

func NewBrokerConnectionError(err error) *StandardError {
	return NewStandardError("BrokerConnectionError", "failed to connect to event broker", err.Error())
}

func NewInternalError(message string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewStandardError("InternalError", message, details)
}

// FromDomain maps a workflow error onto its response shape. Errors that are
// not order errors become InternalError.
func FromDomain(err error) *StandardError {
	var std *StandardError
	if stderrors.As(err, &std) {
		return std
	}

	var (
		emptyCart    *domain.EmptyCartError
		badQuantity  *domain.InvalidQuantityError
		badPrice     *domain.InvalidPriceError
		insufficient *domain.InsufficientStockError
		notFound     *domain.OrderNotFoundError
		noProduct    *domain.ProductNotFoundError
		badState     *domain.InvalidOrderStateError
		persistence  *domain.PersistenceError
	)
	switch {
	case stderrors.As(err, &emptyCart):
		return NewValidationError(err.Error(), "items")
	case stderrors.As(err, &badQuantity):
		return NewValidationError(err.Error(), lineField(badQuantity.Line, "quantity"))
	case stderrors.As(err, &badPrice):
		return NewValidationError(err.Error(), lineField(badPrice.Line, "price"))
	case stderrors.As(err, &insufficient):
		return NewInsufficientStock(insufficient.ProductID.String(), insufficient.Available, insufficient.Requested)
	case stderrors.As(err, &noProduct):
		return NewProductNotFound(noProduct.ProductID.String())
	case stderrors.As(err, &notFound):
		return NewOrderNotFound(notFound.OrderID.String())
	case stderrors.As(err, &badState):
		return NewInvalidOrderState(string(badState.Status), badState.Operation)
	case stderrors.As(err, &persistence):
		return NewDatabaseError(persistence.Operation, persistence.Err)
	default:
		return NewInternalError("unexpected error", err)
	}
}

// lineField names the request field of a 1-based cart line
func lineField(line int, field string) string {
	if line < 1 {
		return field
	}
	return fmt.Sprintf("items[%d].%s", line-1, field)
}

func pastTense(operation string) string {
	switch operation {
	case "cancel":
		return "cancelled"
	case "delete":
		return "deleted"
	default:
		return operation + "ed"
	}
}
