package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"settlement-service/internal/cache"
	"settlement-service/internal/domain"
	"settlement-service/internal/events"
	"settlement-service/internal/metrics"
	"settlement-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	ledger    *Ledger
	stock     *repository.SQLiteStockRepository
	products  *repository.SQLiteProductRepository
	hints     *cache.InMemoryCache
	publisher *events.InMemoryEventPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.NewDB("file:"+uuid.NewString()+"?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		stock:     repository.NewStockRepository(db),
		products:  repository.NewProductRepository(db),
		hints:     cache.NewInMemoryCache(zap.NewNop()),
		publisher: events.NewEventPublisher(zap.NewNop()),
	}
	f.ledger = NewLedger(f.stock, f.hints, time.Minute, f.publisher, metrics.New(), zap.NewNop())
	return f
}

func (f *fixture) newProduct(t *testing.T) uuid.UUID {
	t.Helper()
	product := domain.NewProduct("admin", "Widget", "", decimal.RequireFromString("10.00"))
	require.NoError(t, f.products.Create(context.Background(), product))
	return product.ID
}

func (f *fixture) stockUp(t *testing.T, productID uuid.UUID, quantity int) {
	t.Helper()
	_, _, err := f.ledger.SetLevel(context.Background(), "admin", productID, quantity)
	require.NoError(t, err)
}

func (f *fixture) assertConsistent(t *testing.T, productID uuid.UUID) {
	t.Helper()
	rec, err := f.ledger.Reconcile(context.Background(), "admin", productID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent, "level %d, movement sum %d", rec.Level, rec.MovementSum)
}

func sale(productID uuid.UUID, quantity int) Movement {
	return Movement{
		OwnerID:   "admin",
		ProductID: productID,
		Delta:     -quantity,
		Reason:    domain.MovementReasonSale,
		OrderID:   uuid.NullUUID{UUID: uuid.New(), Valid: true},
	}
}

func TestGetAvailable_NeverStocked(t *testing.T) {
	f := newFixture(t)

	available, err := f.ledger.GetAvailable(context.Background(), "admin", f.newProduct(t))

	require.NoError(t, err)
	assert.Equal(t, 0, available)
}

func TestReserveAndApply_Debit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	productID := f.newProduct(t)
	f.stockUp(t, productID, 5)

	m, err := f.ledger.ReserveAndApply(ctx, sale(productID, 3))

	require.NoError(t, err)
	assert.Equal(t, -3, m.Delta)
	assert.Equal(t, 5, m.QuantityBefore)
	assert.Equal(t, 2, m.QuantityAfter)
	available, err := f.ledger.GetAvailable(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, 2, available)
	f.assertConsistent(t, productID)
}

func TestReserveAndApply_Error_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	productID := f.newProduct(t)
	f.stockUp(t, productID, 2)
	before := len(f.publisher.Events())

	m, err := f.ledger.ReserveAndApply(ctx, sale(productID, 3))

	assert.Nil(t, m)
	var target *domain.InsufficientStockError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, productID, target.ProductID)
	assert.Equal(t, 2, target.Available)
	assert.Equal(t, 3, target.Requested)

	available, err := f.ledger.GetAvailable(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, 2, available)
	assert.Len(t, f.publisher.Events(), before)
	f.assertConsistent(t, productID)
}

func TestReserveAndApply_Error_ZeroDelta(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.ReserveAndApply(context.Background(), sale(uuid.New(), 0))

	var target *domain.InvalidQuantityError
	assert.True(t, errors.As(err, &target))
}

func TestReserveAndApply_Error_UnknownReason(t *testing.T) {
	f := newFixture(t)
	mv := sale(uuid.New(), 1)
	mv.Reason = "gift"

	_, err := f.ledger.ReserveAndApply(context.Background(), mv)

	assert.Error(t, err)
}

func TestReserveAndApply_InvalidatesAvailabilityHint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	productID := f.newProduct(t)
	f.stockUp(t, productID, 5)

	available, err := f.ledger.GetAvailable(ctx, "admin", productID)
	require.NoError(t, err)
	require.Equal(t, 5, available)
	exists, _ := f.hints.Exists(ctx, cache.AvailabilityKey("admin", productID))
	require.True(t, exists)

	_, err = f.ledger.ReserveAndApply(ctx, sale(productID, 1))
	require.NoError(t, err)

	exists, _ = f.hints.Exists(ctx, cache.AvailabilityKey("admin", productID))
	assert.False(t, exists)
	available, err = f.ledger.GetAvailable(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, 4, available)
}

func TestReserveAndApply_PublishesStockMoved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	productID := f.newProduct(t)
	f.stockUp(t, productID, 5)

	mv := sale(productID, 2)
	_, err := f.ledger.ReserveAndApply(ctx, mv)
	require.NoError(t, err)

	published := f.publisher.Events()
	last, ok := published[len(published)-1].(events.StockMovedEvent)
	require.True(t, ok)
	assert.Equal(t, -2, last.Delta)
	assert.Equal(t, domain.MovementReasonSale, last.Reason)
	assert.Equal(t, mv.OrderID, last.OrderID)
	assert.Equal(t, 3, last.QuantityAfter)
}

func TestRestock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	productID := f.newProduct(t)
	orderID := uuid.New()
	f.stockUp(t, productID, 2)

	m, err := f.ledger.Restock(ctx, "admin", productID, 3, orderID)

	require.NoError(t, err)
	assert.Equal(t, domain.MovementReasonReturn, m.Reason)
	assert.Equal(t, orderID, m.OrderID.UUID)
	available, err := f.ledger.GetAvailable(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}

func TestRestock_NeverStockedProductCreatesLevel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	productID := f.newProduct(t)

	_, err := f.ledger.Restock(ctx, "admin", productID, 4, uuid.New())

	require.NoError(t, err)
	available, err := f.ledger.GetAvailable(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, 4, available)
	f.assertConsistent(t, productID)
}

func TestRestock_Error_NonPositive(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.Restock(context.Background(), "admin", uuid.New(), 0, uuid.New())

	var target *domain.InvalidQuantityError
	assert.True(t, errors.As(err, &target))
}

func TestSetLevel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	productID := f.newProduct(t)

	level, m, err := f.ledger.SetLevel(ctx, "admin", productID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, level.Quantity)
	require.NotNil(t, m)
	assert.Equal(t, 10, m.Delta)
	assert.Equal(t, domain.MovementReasonAdjustment, m.Reason)

	level, m, err = f.ledger.SetLevel(ctx, "admin", productID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, level.Quantity)
	assert.Equal(t, -6, m.Delta)

	level, m, err = f.ledger.SetLevel(ctx, "admin", productID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, level.Quantity)
	assert.Nil(t, m)

	movements, err := f.ledger.ListMovements(ctx, "admin", productID, 0)
	require.NoError(t, err)
	assert.Len(t, movements, 2)
	f.assertConsistent(t, productID)
}

func TestSetLevel_Error_Negative(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.ledger.SetLevel(context.Background(), "admin", uuid.New(), -1)

	var target *domain.InvalidQuantityError
	assert.True(t, errors.As(err, &target))
}

// The precheck in order placement is advisory; this is the guarantee that
// actually holds under concurrent checkouts of the same product.
func TestReserveAndApply_ConcurrentSalesKeepLevelNonNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	productID := f.newProduct(t)
	f.stockUp(t, productID, 10)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		debited  int
		rejected int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.ReserveAndApply(ctx, sale(productID, 3))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				debited += 3
				return
			}
			var insufficient *domain.InsufficientStockError
			if errors.As(err, &insufficient) {
				rejected++
				return
			}
			t.Errorf("unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 9, debited)
	assert.Equal(t, 5, rejected)
	available, err := f.ledger.GetAvailable(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, 1, available)
	f.assertConsistent(t, productID)
}

func TestReserveAndApply_Error_AboveBound(t *testing.T) {
	f := newFixture(t)
	mv := sale(f.newProduct(t), 0)
	mv.Delta = domain.MaxQuantity + 1
	mv.Reason = domain.MovementReasonReturn

	_, err := f.ledger.ReserveAndApply(context.Background(), mv)

	var target *domain.InvalidQuantityError
	assert.True(t, errors.As(err, &target))
}

func TestSetLevel_Error_AboveBound(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.ledger.SetLevel(context.Background(), "admin", f.newProduct(t), domain.MaxQuantity+1)

	var target *domain.InvalidQuantityError
	assert.True(t, errors.As(err, &target))
}

func TestLedger_OtherOwnerCannotTouchStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	productID := f.newProduct(t)
	f.stockUp(t, productID, 5)
	var target *domain.ProductNotFoundError

	_, _, err := f.ledger.SetLevel(ctx, "user", productID, 0)
	require.True(t, errors.As(err, &target))
	assert.Equal(t, productID, target.ProductID)

	mv := sale(productID, 3)
	mv.OwnerID = "user"
	_, err = f.ledger.ReserveAndApply(ctx, mv)
	assert.True(t, errors.As(err, &target))

	_, err = f.ledger.Restock(ctx, "user", productID, 3, uuid.New())
	assert.True(t, errors.As(err, &target))

	_, err = f.ledger.GetAvailable(ctx, "user", productID)
	assert.True(t, errors.As(err, &target))
	_, err = f.ledger.ListMovements(ctx, "user", productID, 0)
	assert.True(t, errors.As(err, &target))
	_, err = f.ledger.Reconcile(ctx, "user", productID)
	assert.True(t, errors.As(err, &target))

	available, err := f.ledger.GetAvailable(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, 5, available)
	f.assertConsistent(t, productID)
}

func TestGetAvailable_HintIsPerOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	productID := f.newProduct(t)
	f.stockUp(t, productID, 5)

	_, err := f.ledger.GetAvailable(ctx, "admin", productID)
	require.NoError(t, err)

	_, err = f.ledger.GetAvailable(ctx, "user", productID)
	var target *domain.ProductNotFoundError
	assert.True(t, errors.As(err, &target))
}

func TestGetAvailable_DropsHintReadBeforeLaterWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	productID := f.newProduct(t)
	f.stockUp(t, productID, 5)
	key := cache.AvailabilityKey("admin", productID)

	// a reader loaded quantity 5, then a restock committed and invalidated
	// before the reader stored its hint
	stale, err := f.stock.GetLevel(ctx, "admin", productID)
	require.NoError(t, err)
	_, err = f.ledger.Restock(ctx, "admin", productID, 3, uuid.New())
	require.NoError(t, err)

	f.ledger.fillHint(ctx, key, productID, stale.Quantity, stale.UpdatedAt)

	exists, _ := f.hints.Exists(ctx, key)
	assert.False(t, exists)
	available, err := f.ledger.GetAvailable(ctx, "admin", productID)
	require.NoError(t, err)
	assert.Equal(t, 8, available)
	exists, _ = f.hints.Exists(ctx, key)
	assert.True(t, exists)
}

func TestFlushHints(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	productID := f.newProduct(t)
	f.stockUp(t, productID, 5)
	_, err := f.ledger.GetAvailable(ctx, "admin", productID)
	require.NoError(t, err)
	require.NoError(t, f.hints.Set(ctx, "idempotency:admin:POST:/api/v1/orders:r1", []byte("{}"), time.Minute))

	require.NoError(t, f.ledger.FlushHints(ctx))

	exists, _ := f.hints.Exists(ctx, cache.AvailabilityKey("admin", productID))
	assert.False(t, exists)
	exists, _ = f.hints.Exists(ctx, "idempotency:admin:POST:/api/v1/orders:r1")
	assert.True(t, exists)
}

func TestReturnedForOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	productID := f.newProduct(t)
	orderID := uuid.New()
	f.stockUp(t, productID, 1)

	_, err := f.ledger.Restock(ctx, "admin", productID, 2, orderID)
	require.NoError(t, err)

	returned, err := f.ledger.ReturnedForOrder(ctx, "admin", orderID)
	require.NoError(t, err)
	assert.Equal(t, 2, returned[productID])
}
