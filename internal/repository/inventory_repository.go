package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

// InventoryRepository stores per-product stock counters. Locking reads only hold their
// lock when ctx carries a transaction.
type InventoryRepository interface {
	Find(ctx context.Context, productID uuid.UUID, lock LockMode) (*domain.InventoryLevel, error)
	SetQuantity(ctx context.Context, productID uuid.UUID, quantity int) error
	Upsert(ctx context.Context, level *domain.InventoryLevel) error
	ListLowStock(ctx context.Context) ([]*domain.ProductWithStock, error)
}

type inventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository creates a new instance of InventoryRepository
func NewInventoryRepository(db *sql.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) Find(ctx context.Context, productID uuid.UUID, lock LockMode) (*domain.InventoryLevel, error) {
	query := `
		SELECT product_id, quantity, low_stock_threshold, updated_at
		FROM inventory
		WHERE product_id = $1` + lock.clause()

	level := &domain.InventoryLevel{}
	err := conn(ctx, r.db).QueryRowContext(ctx, query, productID).Scan(
		&level.ProductID, &level.Quantity, &level.LowStockThreshold, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInventoryNotFound
		}
		return nil, fmt.Errorf("failed to find inventory level: %w", err)
	}

	return level, nil
}

// SetQuantity overwrites the counter; the table's CHECK rejects negative values.
func (r *inventoryRepository) SetQuantity(ctx context.Context, productID uuid.UUID, quantity int) error {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE inventory SET quantity = $2 WHERE product_id = $1`, productID, quantity)
	if err != nil {
		if isCheckViolation(err) {
			return ErrNegativeQuantity
		}
		return fmt.Errorf("failed to update inventory quantity: %w", err)
	}

	return expectAffected(result, ErrInventoryNotFound)
}

func (r *inventoryRepository) Upsert(ctx context.Context, level *domain.InventoryLevel) error {
	query := `
		INSERT INTO inventory (product_id, quantity, low_stock_threshold, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, low_stock_threshold = EXCLUDED.low_stock_threshold
		RETURNING updated_at
	`

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		level.ProductID, level.Quantity, level.LowStockThreshold).Scan(&level.UpdatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return ErrNegativeQuantity
		}
		return fmt.Errorf("failed to upsert inventory level: %w", err)
	}

	return nil
}

func (r *inventoryRepository) ListLowStock(ctx context.Context) ([]*domain.ProductWithStock, error) {
	query := `
		SELECT ` + productColumns + `, i.quantity, i.low_stock_threshold
		FROM inventory i
		JOIN products p ON p.id = i.product_id
		WHERE i.quantity <= i.low_stock_threshold
		ORDER BY i.quantity ASC, p.name ASC
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock: %w", err)
	}
	defer rows.Close()

	items := []*domain.ProductWithStock{}
	for rows.Next() {
		item := &domain.ProductWithStock{}
		fields := append(productFields(&item.Product), &item.Quantity, &item.LowStockThreshold)
		if err := rows.Scan(fields...); err != nil {
			return nil, fmt.Errorf("failed to scan low stock row: %w", err)
		}
		item.InStock = item.Quantity > 0
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating low stock: %w", err)
	}

	return items, nil
}
