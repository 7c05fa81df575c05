package handlers

import (
	"context"
	"net/http"

	"settlement-service/internal/commands"
	"settlement-service/internal/domain"
	"settlement-service/internal/ledger"
	"settlement-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InventoryService is the ledger as seen by the HTTP layer
type InventoryService interface {
	GetAvailable(ctx context.Context, ownerID string, productID uuid.UUID) (int, error)
	SetLevel(ctx context.Context, ownerID string, productID uuid.UUID, quantity int) (*domain.StockLevel, *domain.StockMovement, error)
	ListMovements(ctx context.Context, ownerID string, productID uuid.UUID, limit int) ([]domain.StockMovement, error)
	Reconcile(ctx context.Context, ownerID string, productID uuid.UUID) (*ledger.Reconciliation, error)
}

type InventoryHandler struct {
	logger *zap.Logger
	ledger InventoryService
}

func NewInventoryHandler(logger *zap.Logger, ledger InventoryService) *InventoryHandler {
	return &InventoryHandler{
		logger: logger,
		ledger: ledger,
	}
}

// GetAvailable handles GET /api/v1/inventory/:product_id
// @Summary      Get available stock
// @Description  Returns the on-hand quantity of one of the caller's products, 0 if it was never stocked. The value may be served from cache and is advisory.
// @Tags         inventory
// @Produce      json
// @Security     BearerAuth
// @Param        product_id  path      string  true  "Product ID (UUID)"
// @Success      200         {object}  AvailabilityResponse
// @Failure      400         {object}  ErrorResponse
// @Failure      404         {object}  ErrorResponse
// @Router       /inventory/{product_id} [get]
func (h *InventoryHandler) GetAvailable(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	available, err := h.ledger.GetAvailable(c.Request.Context(), c.GetString("user_id"), productID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, AvailabilityResponse{ProductID: productID.String(), Available: available})
}

// SetLevel handles PUT /api/v1/inventory/:product_id
// @Summary      Set stock level
// @Description  Sets the on-hand quantity by recording an adjustment movement for the difference.
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        X-Request-ID  header    string           false  "Request ID for idempotency (UUID)"
// @Param        product_id    path      string           true   "Product ID (UUID)"
// @Param        request       body      SetStockRequest  true   "New level"
// @Success      200           {object}  SetStockResponse
// @Failure      400           {object}  ErrorResponse
// @Failure      404           {object}  ErrorResponse
// @Router       /inventory/{product_id} [put]
func (h *InventoryHandler) SetLevel(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	var req SetStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("quantity is required", "quantity"))
		return
	}

	cmd := commands.SetStockCommand{
		OwnerID:   c.GetString("user_id"),
		ProductID: productID,
		Quantity:  *req.Quantity,
	}
	level, movement, err := h.ledger.SetLevel(c.Request.Context(), cmd.OwnerID, cmd.ProductID, cmd.Quantity)
	if err != nil {
		c.Error(err)
		return
	}

	h.logger.Info("Stock level set",
		zap.String("product_id", productID.String()),
		zap.String("user_id", cmd.OwnerID),
		zap.Int("quantity", level.Quantity),
	)
	c.JSON(http.StatusOK, SetStockResponse{
		ProductID: level.ProductID.String(),
		Quantity:  level.Quantity,
		UpdatedAt: level.UpdatedAt,
		Movement:  movement,
	})
}

// ListMovements handles GET /api/v1/inventory/:product_id/movements
// @Summary      List stock movements
// @Tags         inventory
// @Produce      json
// @Security     BearerAuth
// @Param        product_id  path      string  true   "Product ID (UUID)"
// @Param        limit       query     int     false  "Maximum entries (default 100, max 200)"
// @Success      200         {object}  ListMovementsResponse
// @Failure      400         {object}  ErrorResponse
// @Failure      404         {object}  ErrorResponse
// @Router       /inventory/{product_id}/movements [get]
func (h *InventoryHandler) ListMovements(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil || limit < 1 || limit > maxPageSize {
		c.Error(errors.NewValidationError("limit must be between 1 and 200", "limit"))
		return
	}

	movements, err := h.ledger.ListMovements(c.Request.Context(), c.GetString("user_id"), productID, limit)
	if err != nil {
		c.Error(err)
		return
	}
	if movements == nil {
		movements = []domain.StockMovement{}
	}
	c.JSON(http.StatusOK, ListMovementsResponse{ProductID: productID.String(), Movements: movements})
}

// Reconcile handles GET /api/v1/inventory/:product_id/reconcile
// @Summary      Check a stock level against its movement history
// @Tags         inventory
// @Produce      json
// @Security     BearerAuth
// @Param        product_id  path      string  true  "Product ID (UUID)"
// @Success      200         {object}  ledger.Reconciliation
// @Failure      400         {object}  ErrorResponse
// @Failure      404         {object}  ErrorResponse
// @Router       /inventory/{product_id}/reconcile [get]
func (h *InventoryHandler) Reconcile(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	result, err := h.ledger.Reconcile(c.Request.Context(), c.GetString("user_id"), productID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func productIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("product_id"))
	if err != nil {
		c.Error(errors.NewValidationError("invalid product id", "product_id"))
		return uuid.Nil, false
	}
	return id, true
}
