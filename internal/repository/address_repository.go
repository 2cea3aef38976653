package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

type AddressRepository interface {
	Create(ctx context.Context, address *domain.ShippingAddress) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.ShippingAddress, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ShippingAddress, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type addressRepository struct {
	db *sql.DB
}

func NewAddressRepository(db *sql.DB) AddressRepository {
	return &addressRepository{db: db}
}

const addressColumns = `id, user_id, full_name, line1, line2, city, state, postal_code, country, phone, created_at`

func scanAddress(row interface{ Scan(...interface{}) error }) (*domain.ShippingAddress, error) {
	a := &domain.ShippingAddress{}
	err := row.Scan(&a.ID, &a.UserID, &a.FullName, &a.Line1, &a.Line2, &a.City, &a.State,
		&a.PostalCode, &a.Country, &a.Phone, &a.CreatedAt)
	return a, err
}

func (r *addressRepository) Create(ctx context.Context, a *domain.ShippingAddress) error {
	query := `INSERT INTO shipping_addresses (` + addressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		a.ID, a.UserID, a.FullName, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country, a.Phone, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create shipping address: %w", err)
	}
	return nil
}

func (r *addressRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ShippingAddress, error) {
	query := `SELECT ` + addressColumns + ` FROM shipping_addresses WHERE id = $1`

	a, err := scanAddress(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to find shipping address: %w", err)
	}
	return a, nil
}

func (r *addressRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ShippingAddress, error) {
	query := `SELECT ` + addressColumns + ` FROM shipping_addresses WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shipping addresses: %w", err)
	}
	defer rows.Close()

	addresses := []*domain.ShippingAddress{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shipping address: %w", err)
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

func (r *addressRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM shipping_addresses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete shipping address: %w", err)
	}
	return expectAffected(result, ErrAddressNotFound)
}
