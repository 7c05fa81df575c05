package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type productRow struct {
	ID          uuid.UUID       `db:"id"`
	OwnerID     string          `db:"user_id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	Status      string          `db:"status"`
	CategoryID  uuid.NullUUID   `db:"category_id"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// SQLiteProductRepository implements ProductRepository
type SQLiteProductRepository struct {
	db *DB
}

// NewProductRepository creates a product repository on db
func NewProductRepository(db *DB) *SQLiteProductRepository {
	return &SQLiteProductRepository{db: db}
}

func (r *SQLiteProductRepository) Create(ctx context.Context, product *domain.Product) error {
	_, err := r.db.db.NamedExecContext(ctx, `
		INSERT INTO products (id, user_id, name, description, price, status, category_id, created_at, updated_at)
		VALUES (:id, :user_id, :name, :description, :price, :status, :category_id, :created_at, :updated_at)
	`, productRow{
		ID:          product.ID,
		OwnerID:     product.OwnerID,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Status:      string(product.Status),
		CategoryID:  product.CategoryID,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (r *SQLiteProductRepository) FindByID(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Product, error) {
	var row productRow
	err := r.db.db.GetContext(ctx, &row, `
		SELECT id, user_id, name, description, price, status, category_id, created_at, updated_at
		FROM products
		WHERE id = ? AND user_id = ?
	`, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &domain.Product{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Name:        row.Name,
		Description: row.Description,
		Price:       row.Price,
		Status:      domain.ProductStatus(row.Status),
		CategoryID:  row.CategoryID,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

func (r *SQLiteProductRepository) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	result, err := r.db.db.ExecContext(ctx, `DELETE FROM products WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
