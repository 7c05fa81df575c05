// Command seed loads a product catalog with opening stock from YAML.
//
//	go run ./cmd/seed -file cmd/seed/catalog.yaml -owner admin
//
// Products with an id that already exists are left as they are; their stock
// is still set to initial_stock, so the command can be re-run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"settlement-service/internal/config"
	"settlement-service/internal/domain"
	"settlement-service/internal/ledger"
	"settlement-service/internal/repository"
	"settlement-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type catalog struct {
	Owner    string         `yaml:"owner"`
	Products []catalogEntry `yaml:"products"`
}

type catalogEntry struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Price        string `yaml:"price"`
	InitialStock int    `yaml:"initial_stock"`
}

// StockSetter is the part of the ledger seeding needs
type StockSetter interface {
	SetLevel(ctx context.Context, ownerID string, productID uuid.UUID, quantity int) (*domain.StockLevel, *domain.StockMovement, error)
}

func main() {
	file := flag.String("file", "cmd/seed/catalog.yaml", "YAML catalog to load")
	owner := flag.String("owner", "", "tenant to seed (overrides the catalog's owner)")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.Environment)
	defer log.Sync()

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal("Failed to read catalog", zap.String("file", *file), zap.Error(err))
	}
	cat, err := parseCatalog(raw)
	if err != nil {
		log.Fatal("Failed to parse catalog", zap.String("file", *file), zap.Error(err))
	}
	if *owner != "" {
		cat.Owner = *owner
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Fatal("Failed to create data directory", zap.Error(err))
	}
	db, err := repository.NewDB(cfg.SQLitePath, log)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	stock := ledger.NewLedger(repository.NewStockRepository(db), nil, 0, nil, nil, log)
	n, err := seed(context.Background(), cat, repository.NewProductRepository(db), stock, log)
	if err != nil {
		log.Fatal("Seeding failed", zap.Int("seeded", n), zap.Error(err))
	}
	log.Info("✅ Catalog seeded", zap.String("owner", cat.Owner), zap.Int("products", n))
}

func parseCatalog(raw []byte) (*catalog, error) {
	var cat catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, err
	}
	if cat.Owner == "" {
		cat.Owner = "admin"
	}
	for i, p := range cat.Products {
		if p.Name == "" {
			return nil, fmt.Errorf("product %d: name is required", i+1)
		}
		if p.InitialStock < 0 {
			return nil, fmt.Errorf("product %q: initial_stock must not be negative", p.Name)
		}
		if p.ID != "" {
			if _, err := uuid.Parse(p.ID); err != nil {
				return nil, fmt.Errorf("product %q: invalid id: %w", p.Name, err)
			}
		}
		if _, err := decimal.NewFromString(priceOrZero(p.Price)); err != nil {
			return nil, fmt.Errorf("product %q: invalid price %q", p.Name, p.Price)
		}
	}
	return &cat, nil
}

func priceOrZero(price string) string {
	if price == "" {
		return "0"
	}
	return price
}

// seed creates missing products and sets each one's stock level. It returns
// how many entries were processed.
func seed(ctx context.Context, cat *catalog, products repository.ProductRepository, stock StockSetter, log *zap.Logger) (int, error) {
	for i, entry := range cat.Products {
		price := decimal.RequireFromString(priceOrZero(entry.Price))
		product := domain.NewProduct(cat.Owner, entry.Name, entry.Description, price)
		if entry.ID != "" {
			product.ID = uuid.MustParse(entry.ID)
		}

		_, err := products.FindByID(ctx, cat.Owner, product.ID)
		switch {
		case err == nil:
			log.Info("Product exists, updating stock only", zap.String("product_id", product.ID.String()))
		case errors.Is(err, repository.ErrNotFound):
			if err := products.Create(ctx, product); err != nil {
				return i, fmt.Errorf("create %q: %w", entry.Name, err)
			}
		default:
			return i, fmt.Errorf("look up %q: %w", entry.Name, err)
		}

		if _, _, err := stock.SetLevel(ctx, cat.Owner, product.ID, entry.InitialStock); err != nil {
			return i, fmt.Errorf("stock %q: %w", entry.Name, err)
		}
		log.Info("Seeded product",
			zap.String("product_id", product.ID.String()),
			zap.String("name", entry.Name),
			zap.Int("initial_stock", entry.InitialStock),
		)
	}
	return len(cat.Products), nil
}
