package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"settlement-service/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB("file:"+uuid.NewString()+"?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func movement(productID uuid.UUID, delta int, reason domain.MovementReason) *domain.StockMovement {
	return domain.NewStockMovement("admin", productID, delta, reason, uuid.NullUUID{})
}

func TestStockRepository_GetLevel_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewStockRepository(db)
	product := seedProduct(t, db, "Widget")

	_, err := repo.GetLevel(context.Background(), "admin", product.ID)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStockRepository_GetLevel_UnknownProduct(t *testing.T) {
	repo := NewStockRepository(newTestDB(t))

	_, err := repo.GetLevel(context.Background(), "admin", uuid.New())

	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestStockRepository_ApplyMovement_CreatesLevelLazily(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewStockRepository(db)
	productID := seedProduct(t, db, "Widget").ID

	level, err := repo.ApplyMovement(ctx, movement(productID, 5, domain.MovementReasonAdjustment))
	require.NoError(t, err)
	assert.Equal(t, 5, level.Quantity)

	stored, err := repo.GetLevel(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Quantity)
	assert.False(t, stored.UpdatedAt.IsZero())
}

func TestStockRepository_ApplyMovement_Debit(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewStockRepository(db)
	productID := seedProduct(t, db, "Widget").ID
	_, err := repo.ApplyMovement(ctx, movement(productID, 5, domain.MovementReasonAdjustment))
	require.NoError(t, err)

	orderID := uuid.NullUUID{UUID: uuid.New(), Valid: true}
	sale := domain.NewStockMovement("admin", productID, -3, domain.MovementReasonSale, orderID)
	level, err := repo.ApplyMovement(ctx, sale)

	require.NoError(t, err)
	assert.Equal(t, 2, level.Quantity)

	movements, err := repo.ListMovements(ctx, "admin", productID, 0)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, -3, movements[0].Delta)
	assert.Equal(t, domain.MovementReasonSale, movements[0].Reason)
	assert.Equal(t, orderID, movements[0].OrderID)
	assert.Equal(t, 5, movements[0].QuantityBefore)
	assert.Equal(t, 2, movements[0].QuantityAfter)
}

func TestStockRepository_ApplyMovement_Error_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewStockRepository(db)
	productID := seedProduct(t, db, "Widget").ID
	_, err := repo.ApplyMovement(ctx, movement(productID, 2, domain.MovementReasonAdjustment))
	require.NoError(t, err)

	_, err = repo.ApplyMovement(ctx, movement(productID, -3, domain.MovementReasonSale))

	var target *domain.InsufficientStockError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, 2, target.Available)
	assert.Equal(t, 3, target.Requested)

	level, err := repo.GetLevel(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, 2, level.Quantity)
	sum, err := repo.SumMovements(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum)
}

func TestStockRepository_ApplyMovement_Error_NeverStocked(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewStockRepository(db)
	productID := seedProduct(t, db, "Widget").ID

	_, err := repo.ApplyMovement(ctx, movement(productID, -1, domain.MovementReasonSale))

	var target *domain.InsufficientStockError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, 0, target.Available)

	_, err = repo.GetLevel(ctx, "admin", productID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStockRepository_SetQuantity(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewStockRepository(db)
	productID := seedProduct(t, db, "Widget").ID
	_, err := repo.ApplyMovement(ctx, movement(productID, 8, domain.MovementReasonAdjustment))
	require.NoError(t, err)

	m := movement(productID, 0, domain.MovementReasonAdjustment)
	level, err := repo.SetQuantity(ctx, m, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, level.Quantity)
	assert.Equal(t, -5, m.Delta)

	unchanged := movement(productID, 0, domain.MovementReasonAdjustment)
	level, err = repo.SetQuantity(ctx, unchanged, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, level.Quantity)
	assert.Zero(t, unchanged.Delta)

	movements, err := repo.ListMovements(ctx, "admin", productID, 10)
	require.NoError(t, err)
	assert.Len(t, movements, 2)
}

func TestStockRepository_ConcurrentDebitsNeverOversell(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewStockRepository(db)
	productID := seedProduct(t, db, "Widget").ID
	_, err := repo.ApplyMovement(ctx, movement(productID, 5, domain.MovementReasonAdjustment))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.ApplyMovement(ctx, movement(productID, -1, domain.MovementReasonSale))
			mu.Lock()
			defer mu.Unlock()
			var insufficient *domain.InsufficientStockError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &insufficient):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 7, rejected)

	level, err := repo.GetLevel(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, 0, level.Quantity)
	sum, err := repo.SumMovements(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, level.Quantity, sum)
}

func TestStockRepository_ScopedToProductOwner(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewStockRepository(db)
	productID := seedProduct(t, db, "Widget").ID
	_, err := repo.ApplyMovement(ctx, movement(productID, 5, domain.MovementReasonAdjustment))
	require.NoError(t, err)

	foreignSale := domain.NewStockMovement("user", productID, -3, domain.MovementReasonSale, uuid.NullUUID{})
	_, err = repo.ApplyMovement(ctx, foreignSale)
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = repo.SetQuantity(ctx, domain.NewStockMovement("user", productID, 0, domain.MovementReasonAdjustment, uuid.NullUUID{}), 0)
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = repo.GetLevel(ctx, "user", productID)
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = repo.ListMovements(ctx, "user", productID, 10)
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = repo.SumMovements(ctx, "user", productID)
	assert.ErrorIs(t, err, ErrProductNotFound)

	level, err := repo.GetLevel(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, 5, level.Quantity)
	movements, err := repo.ListMovements(ctx, "admin", productID, 10)
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestStockRepository_ReturnedForOrder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewStockRepository(db)
	widget := seedProduct(t, db, "Widget").ID
	gadget := seedProduct(t, db, "Gadget").ID
	orderID := uuid.NullUUID{UUID: uuid.New(), Valid: true}

	for _, m := range []*domain.StockMovement{
		domain.NewStockMovement("admin", widget, 2, domain.MovementReasonReturn, orderID),
		domain.NewStockMovement("admin", widget, 1, domain.MovementReasonReturn, orderID),
		domain.NewStockMovement("admin", gadget, 4, domain.MovementReasonAdjustment, orderID),
		domain.NewStockMovement("admin", gadget, 5, domain.MovementReasonReturn, uuid.NullUUID{UUID: uuid.New(), Valid: true}),
	} {
		_, err := repo.ApplyMovement(ctx, m)
		require.NoError(t, err)
	}

	returned, err := repo.ReturnedForOrder(ctx, "admin", orderID.UUID)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{widget: 3}, returned)

	returned, err = repo.ReturnedForOrder(ctx, "user", orderID.UUID)
	require.NoError(t, err)
	assert.Empty(t, returned)
}
