package main

import (
	"context"
	"testing"

	"settlement-service/internal/ledger"
	"settlement-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sample = `
owner: store-7
products:
  - id: 3b1f6a0e-7c2d-4f5e-9a81-0d4c2e6b7f10
    name: Espresso beans 1kg
    price: "24.50"
    initial_stock: 40
  - name: Paper filters
    price: "3.20"
    initial_stock: 0
`

func TestParseCatalog(t *testing.T) {
	cat, err := parseCatalog([]byte(sample))

	require.NoError(t, err)
	assert.Equal(t, "store-7", cat.Owner)
	require.Len(t, cat.Products, 2)
	assert.Equal(t, 40, cat.Products[0].InitialStock)
}

func TestParseCatalog_Errors(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{"missing name", "products:\n  - price: \"1\"\n"},
		{"negative stock", "products:\n  - name: x\n    initial_stock: -1\n"},
		{"bad price", "products:\n  - name: x\n    price: cheap\n"},
		{"bad id", "products:\n  - name: x\n    id: sku-1\n"},
		{"not yaml", "products: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseCatalog([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSeed_IsRepeatable(t *testing.T) {
	ctx := context.Background()
	db, err := repository.NewDB("file:"+uuid.NewString()+"?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	products := repository.NewProductRepository(db)
	stock := ledger.NewLedger(repository.NewStockRepository(db), nil, 0, nil, nil, zap.NewNop())

	cat, err := parseCatalog([]byte(sample))
	require.NoError(t, err)
	cat.Products = cat.Products[:1]

	n, err := seed(ctx, cat, products, stock, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cat.Products[0].InitialStock = 35
	_, err = seed(ctx, cat, products, stock, zap.NewNop())
	require.NoError(t, err)

	productID := uuid.MustParse("3b1f6a0e-7c2d-4f5e-9a81-0d4c2e6b7f10")
	product, err := products.FindByID(ctx, "store-7", productID)
	require.NoError(t, err)
	assert.Equal(t, "24.5", product.Price.String())

	available, err := stock.GetAvailable(ctx, "store-7", productID)
	require.NoError(t, err)
	assert.Equal(t, 35, available)

	rec, err := stock.Reconcile(ctx, "store-7", productID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
}
