package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	FindWithStock(ctx context.Context, id uuid.UUID) (*domain.ProductWithStock, error)
	List(ctx context.Context, categoryID *uuid.UUID, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.ProductWithStock, int, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `p.id, p.sku, p.name, p.description, p.price, p.category_id, p.created_at, p.updated_at`

func productFields(p *domain.Product) []interface{} {
	return []interface{}{
		&p.ID,
		&p.SKU,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.CategoryID,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
}

func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, sku, name, description, price, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		product.ID,
		product.SKU,
		product.Name,
		product.Description,
		domain.RoundMoney(product.Price),
		product.CategoryID,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "products_sku_key") {
			return ErrProductSKUExists
		}
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET sku = $2, name = $3, description = $4, price = $5, category_id = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		product.ID,
		product.SKU,
		product.Name,
		product.Description,
		domain.RoundMoney(product.Price),
		product.CategoryID,
		product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "products_sku_key") {
			return ErrProductSKUExists
		}
		return fmt.Errorf("failed to update product: %w", err)
	}

	return expectAffected(result, ErrProductNotFound)
}

func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	return expectAffected(result, ErrProductNotFound)
}

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1`

	product := &domain.Product{}
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(productFields(product)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

func (r *productRepository) FindWithStock(ctx context.Context, id uuid.UUID) (*domain.ProductWithStock, error) {
	query := `
		SELECT ` + productColumns + `, COALESCE(i.quantity, 0), COALESCE(i.low_stock_threshold, 0)
		FROM products p
		LEFT JOIN inventory i ON i.product_id = p.id
		WHERE p.id = $1
	`

	item := &domain.ProductWithStock{}
	fields := append(productFields(&item.Product), &item.Quantity, &item.LowStockThreshold)
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(fields...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product with stock: %w", err)
	}
	item.InStock = item.Quantity > 0

	return item, nil
}

// List retrieves products with optional category filtering, pagination, and sorting
func (r *productRepository) List(ctx context.Context, categoryID *uuid.UUID, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.ProductWithStock, int, error) {
	// Sort fields are interpolated, so only whitelisted columns are accepted
	validSortFields := map[string]string{
		"name":       "p.name",
		"price":      "p.price",
		"created_at": "p.created_at",
		"stock":      "COALESCE(i.quantity, 0)",
	}

	sortColumn, ok := validSortFields[sortBy]
	if !ok {
		sortColumn = "p.created_at"
	}
	if sortOrder != SortOrderAsc && sortOrder != SortOrderDesc {
		sortOrder = SortOrderDesc
	}
	page, pageSize = normalizePage(page, pageSize)

	whereClause := ""
	args := []interface{}{}
	argIndex := 1

	if categoryID != nil {
		whereClause = fmt.Sprintf("WHERE p.category_id = $%d", argIndex)
		args = append(args, *categoryID)
		argIndex++
	}

	q := conn(ctx, r.db)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products p %s", whereClause)
	if err := q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s, COALESCE(i.quantity, 0), COALESCE(i.low_stock_threshold, 0)
		FROM products p
		LEFT JOIN inventory i ON i.product_id = p.id
		%s
		ORDER BY %s %s, p.id
		LIMIT $%d OFFSET $%d
	`, productColumns, whereClause, sortColumn, sortOrder, argIndex, argIndex+1)

	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.ProductWithStock{}
	for rows.Next() {
		item := &domain.ProductWithStock{}
		fields := append(productFields(&item.Product), &item.Quantity, &item.LowStockThreshold)
		if err := rows.Scan(fields...); err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		item.InStock = item.Quantity > 0
		products = append(products, item)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating products: %w", err)
	}

	return products, total, nil
}

func expectAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
