package repository

import (
	"context"

	"settlement-service/internal/domain"

	"github.com/google/uuid"
)

// StockRepository persists stock levels and their movement history.
// Both Apply methods write the level and the movement in one transaction.
// Every method is scoped to the owner of the product and returns
// ErrProductNotFound for products the owner does not have.
type StockRepository interface {
	GetLevel(ctx context.Context, ownerID string, productID uuid.UUID) (*domain.StockLevel, error)
	// ApplyMovement re-reads the level, applies m.Delta and appends m. It
	// returns *domain.InsufficientStockError without writing when the level
	// would go negative. m.OwnerID must own m.ProductID.
	ApplyMovement(ctx context.Context, m *domain.StockMovement) (*domain.StockLevel, error)
	// SetQuantity derives m.Delta from the current level so the level ends
	// at quantity. When the level already matches, nothing is written and
	// m.Delta stays zero.
	SetQuantity(ctx context.Context, m *domain.StockMovement, quantity int) (*domain.StockLevel, error)
	ListMovements(ctx context.Context, ownerID string, productID uuid.UUID, limit int) ([]domain.StockMovement, error)
	SumMovements(ctx context.Context, ownerID string, productID uuid.UUID) (int, error)
	// ReturnedForOrder sums the return movements recorded for an order, per product
	ReturnedForOrder(ctx context.Context, ownerID string, orderID uuid.UUID) (map[uuid.UUID]int, error)
}

// OrderRepository persists orders with their items. Every read and write
// is scoped to the owning user.
type OrderRepository interface {
	// CreateWithItems inserts the header and all items atomically
	CreateWithItems(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Order, error)
	// UpdateStatus only writes when the current status equals from
	UpdateStatus(ctx context.Context, ownerID string, id uuid.UUID, from, to domain.OrderStatus) error
	// Delete removes the order and, by cascade, its items
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	// DeleteInStatus is Delete guarded by the current status
	DeleteInStatus(ctx context.Context, ownerID string, id uuid.UUID, status domain.OrderStatus) error
}

// RevenueRepository appends revenue events
type RevenueRepository interface {
	Record(ctx context.Context, event *domain.RevenueEvent) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.RevenueEvent, error)
}

// ProductRepository is the minimal catalog access the workflow and the
// seed tool need
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	FindByID(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Product, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}
