package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

// CartRepository stores cart lines keyed by (owner, product).
type CartRepository interface {
	ListByOwner(ctx context.Context, owner domain.Owner) ([]*domain.CartLineView, error)
	// LockByOwner is ListByOwner holding row locks on the owner's lines until the transaction ends.
	LockByOwner(ctx context.Context, owner domain.Owner) ([]*domain.CartLineView, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.CartLine, error)
	FindByOwnerAndProduct(ctx context.Context, owner domain.Owner, productID uuid.UUID) (*domain.CartLine, error)
	Create(ctx context.Context, line *domain.CartLine) error
	UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) error
	ReassignOwner(ctx context.Context, id uuid.UUID, owner domain.Owner) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByOwner(ctx context.Context, owner domain.Owner) (int64, error)
}

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository creates a new instance of CartRepository
func NewCartRepository(db *sql.DB) CartRepository {
	return &cartRepository{db: db}
}

// ownerColumns maps an owner onto the nullable user_id / session_id pair.
func ownerColumns(owner domain.Owner) (userID, sessionID interface{}, err error) {
	if id, ok := owner.UserID(); ok {
		return id, nil, nil
	}
	if token, ok := owner.SessionToken(); ok {
		return nil, token, nil
	}
	return nil, nil, ErrCartOwnerRequired
}

// ownerFilter renders the WHERE fragment selecting one owner's lines.
func ownerFilter(owner domain.Owner, alias string) (string, interface{}, error) {
	if id, ok := owner.UserID(); ok {
		return alias + "user_id = $1", id, nil
	}
	if token, ok := owner.SessionToken(); ok {
		return alias + "session_id = $1", token, nil
	}
	return "", nil, ErrCartOwnerRequired
}

func scanOwner(userID uuid.NullUUID, sessionID sql.NullString) domain.Owner {
	if userID.Valid {
		return domain.UserOwner(userID.UUID)
	}
	if sessionID.Valid {
		return domain.SessionOwner(sessionID.String)
	}
	return domain.Owner{}
}

func (r *cartRepository) ListByOwner(ctx context.Context, owner domain.Owner) ([]*domain.CartLineView, error) {
	return r.list(ctx, owner, "")
}

func (r *cartRepository) LockByOwner(ctx context.Context, owner domain.Owner) ([]*domain.CartLineView, error) {
	return r.list(ctx, owner, " FOR UPDATE OF c")
}

func (r *cartRepository) list(ctx context.Context, owner domain.Owner, lock string) ([]*domain.CartLineView, error) {
	filter, arg, err := ownerFilter(owner, "c.")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT c.id, c.user_id, c.session_id, c.product_id, c.quantity, c.created_at, c.updated_at,
		       p.name, p.sku, p.price, COALESCE(i.quantity, 0)
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		LEFT JOIN inventory i ON i.product_id = c.product_id
		WHERE ` + filter + `
		ORDER BY c.product_id` + lock

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer rows.Close()

	lines := []*domain.CartLineView{}
	for rows.Next() {
		var (
			line      domain.CartLineView
			userID    uuid.NullUUID
			sessionID sql.NullString
		)
		err := rows.Scan(
			&line.ID, &userID, &sessionID, &line.ProductID, &line.Quantity, &line.CreatedAt, &line.UpdatedAt,
			&line.ProductName, &line.SKU, &line.UnitPrice, &line.Available,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		line.Owner = scanOwner(userID, sessionID)
		lines = append(lines, &line)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}

	return lines, nil
}

const cartLineColumns = `id, user_id, session_id, product_id, quantity, created_at, updated_at`

func scanCartLine(row *sql.Row) (*domain.CartLine, error) {
	var (
		line      domain.CartLine
		userID    uuid.NullUUID
		sessionID sql.NullString
	)
	err := row.Scan(&line.ID, &userID, &sessionID, &line.ProductID, &line.Quantity, &line.CreatedAt, &line.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("failed to scan cart item: %w", err)
	}
	line.Owner = scanOwner(userID, sessionID)
	return &line, nil
}

func (r *cartRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.CartLine, error) {
	query := `SELECT ` + cartLineColumns + ` FROM cart_items WHERE id = $1`
	return scanCartLine(conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

func (r *cartRepository) FindByOwnerAndProduct(ctx context.Context, owner domain.Owner, productID uuid.UUID) (*domain.CartLine, error) {
	filter, arg, err := ownerFilter(owner, "")
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + cartLineColumns + ` FROM cart_items WHERE ` + filter + ` AND product_id = $2`
	return scanCartLine(conn(ctx, r.db).QueryRowContext(ctx, query, arg, productID))
}

func (r *cartRepository) Create(ctx context.Context, line *domain.CartLine) error {
	userID, sessionID, err := ownerColumns(line.Owner)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO cart_items (` + cartLineColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = conn(ctx, r.db).ExecContext(ctx, query,
		line.ID, userID, sessionID, line.ProductID, line.Quantity, line.CreatedAt, line.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrCartItemExists
		}
		return fmt.Errorf("failed to create cart item: %w", err)
	}

	return nil
}

func (r *cartRepository) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE cart_items SET quantity = $2 WHERE id = $1`, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}

	return expectAffected(result, ErrCartItemNotFound)
}

// ReassignOwner moves a line to another owner, clearing the other owner column.
func (r *cartRepository) ReassignOwner(ctx context.Context, id uuid.UUID, owner domain.Owner) error {
	userID, sessionID, err := ownerColumns(owner)
	if err != nil {
		return err
	}

	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE cart_items SET user_id = $2, session_id = $3 WHERE id = $1`, id, userID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to reassign cart item: %w", err)
	}

	return expectAffected(result, ErrCartItemNotFound)
}

func (r *cartRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}

	return expectAffected(result, ErrCartItemNotFound)
}

func (r *cartRepository) DeleteByOwner(ctx context.Context, owner domain.Owner) (int64, error) {
	filter, arg, err := ownerFilter(owner, "")
	if err != nil {
		return 0, err
	}

	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM cart_items WHERE `+filter, arg)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}

	return result.RowsAffected()
}
