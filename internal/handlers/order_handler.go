package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"

	"settlement-service/internal/commands"
	"settlement-service/internal/domain"
	"settlement-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxPageSize = 200

// OrderService is the settlement workflow as seen by the HTTP layer
type OrderService interface {
	CreateOrder(ctx context.Context, cmd commands.CreateOrderCommand) (*domain.Order, error)
	CancelOrder(ctx context.Context, cmd commands.CancelOrderCommand) (*domain.Order, error)
	DeleteOrder(ctx context.Context, cmd commands.DeleteOrderCommand) error
	GetOrder(ctx context.Context, ownerID string, orderID uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Order, error)
}

type OrderHandler struct {
	logger  *zap.Logger
	service OrderService
}

func NewOrderHandler(logger *zap.Logger, service OrderService) *OrderHandler {
	return &OrderHandler{
		logger:  logger,
		service: service,
	}
}

// CreateOrder handles POST /api/v1/orders
// @Summary      Settle a cart into an order
// @Description  Validates the cart, prechecks availability, stores the order with its items and debits stock for every line.
// @Description  The total is recomputed server side. If the order was stored but some debits failed, the response is still 201 and lists them in stock_warnings.
// @Description  **Idempotency**: send X-Request-ID; a repeated id replays the stored response.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        X-Request-ID  header    string              false  "Request ID for idempotency (UUID)"
// @Param        request       body      CreateOrderRequest  true   "Cart"
// @Success      201           {object}  OrderResponse
// @Failure      400           {object}  ErrorResponse  "Empty cart, invalid quantity or price"
// @Failure      401           {object}  ErrorResponse
// @Failure      409           {object}  ErrorResponse  "Insufficient stock"
// @Failure      500           {object}  ErrorResponse
// @Router       /orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid order request", zap.Error(err))
		c.Error(errors.NewInvalidRequest("invalid request body", err.Error()))
		return
	}

	cart := domain.Cart{Notes: req.Notes, Items: make([]domain.CartItem, 0, len(req.Items))}
	for i, item := range req.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			c.Error(errors.NewValidationError("invalid product id", "items["+strconv.Itoa(i)+"].product_id"))
			return
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID:   productID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.Price,
		})
	}

	order, err := h.service.CreateOrder(c.Request.Context(), commands.CreateOrderCommand{
		OwnerID:     c.GetString("user_id"),
		Cart:        cart,
		ClientTotal: req.Total,
	})

	var debitErr *domain.StockDebitError
	if err != nil && !stderrors.As(err, &debitErr) {
		c.Error(err)
		return
	}

	response := OrderResponse{Order: order}
	if debitErr != nil {
		for _, f := range debitErr.Failures {
			response.StockWarnings = append(response.StockWarnings, StockWarning{
				ProductID: f.ProductID.String(),
				Quantity:  f.Quantity,
				Reason:    f.Err.Error(),
			})
		}
	}
	c.JSON(http.StatusCreated, response)
}

// ListOrders handles GET /api/v1/orders
// @Summary      List orders
// @Description  Returns the caller's orders with their items, newest first.
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query     int  false  "Page size (default 50, max 200)"
// @Param        offset  query     int  false  "Offset"
// @Success      200     {object}  ListOrdersResponse
// @Failure      400     {object}  ErrorResponse
// @Failure      401     {object}  ErrorResponse
// @Router       /orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil || limit < 1 || limit > maxPageSize {
		c.Error(errors.NewValidationError("limit must be between 1 and 200", "limit"))
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.Error(errors.NewValidationError("offset must not be negative", "offset"))
		return
	}

	orders, err := h.service.ListOrders(c.Request.Context(), c.GetString("user_id"), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	c.JSON(http.StatusOK, ListOrdersResponse{Orders: orders, Limit: limit, Offset: offset})
}

// GetOrder handles GET /api/v1/orders/:id
// @Summary      Get an order
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Order ID (UUID)"
// @Success      200  {object}  domain.Order
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(c.Request.Context(), c.GetString("user_id"), orderID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// CancelOrder handles POST /api/v1/orders/:id/cancel
// @Summary      Cancel an order
// @Description  Returns every line's quantity to stock and marks the order cancelled. Only completed orders can be cancelled.
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        X-Request-ID  header    string  false  "Request ID for idempotency (UUID)"
// @Param        id            path      string  true   "Order ID (UUID)"
// @Success      200           {object}  domain.Order
// @Failure      404           {object}  ErrorResponse
// @Failure      409           {object}  ErrorResponse  "Order is not completed"
// @Router       /orders/{id}/cancel [post]
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	order, err := h.service.CancelOrder(c.Request.Context(), commands.CancelOrderCommand{
		OwnerID: c.GetString("user_id"),
		OrderID: orderID,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// DeleteOrder handles DELETE /api/v1/orders/:id
// @Summary      Delete a cancelled order
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        X-Request-ID  header    string  false  "Request ID for idempotency (UUID)"
// @Param        id            path      string  true   "Order ID (UUID)"
// @Success      200           {object}  SuccessResponse
// @Failure      404           {object}  ErrorResponse
// @Failure      409           {object}  ErrorResponse  "Order is not cancelled"
// @Router       /orders/{id} [delete]
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	err := h.service.DeleteOrder(c.Request.Context(), commands.DeleteOrderCommand{
		OwnerID: c.GetString("user_id"),
		OrderID: orderID,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "order deleted successfully"})
}

func (h *OrderHandler) orderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(errors.NewValidationError("invalid order id", "id"))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, defaultValue int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(raw)
}
