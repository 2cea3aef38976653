package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

// OrderRepository persists orders, their item snapshots and status history.
type OrderRepository interface {
	// Create inserts the order row; a second order for the same payment intent
	// fails with ErrDuplicatePaymentIntent.
	Create(ctx context.Context, order *domain.Order) error
	CreateItems(ctx context.Context, items []domain.OrderItem) error
	AppendHistory(ctx context.Context, entry *domain.OrderStatusHistory) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, trackingNumber *string) error
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, order_number, user_id, shipping_address_id, subtotal, tax, shipping_cost, total,
	status, COALESCE(payment_intent_id, ''), tracking_number, notes, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.ShippingAddressID,
		&o.Subtotal,
		&o.Tax,
		&o.ShippingCost,
		&o.Total,
		&o.Status,
		&o.PaymentIntentID,
		&o.TrackingNumber,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	return o, err
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, order_number, user_id, shipping_address_id, subtotal, tax, shipping_cost, total,
			status, payment_intent_id, tracking_number, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.UserID,
		order.ShippingAddressID,
		order.Subtotal,
		order.Tax,
		order.ShippingCost,
		order.Total,
		string(order.Status),
		nullableString(order.PaymentIntentID),
		order.TrackingNumber,
		order.Notes,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "uq_orders_payment_intent_id") {
			return ErrDuplicatePaymentIntent
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

func (r *orderRepository) CreateItems(ctx context.Context, items []domain.OrderItem) error {
	query := `
		INSERT INTO order_items (id, order_id, product_id, product_name, sku, quantity, unit_price, subtotal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	q := conn(ctx, r.db)
	for _, item := range items {
		_, err := q.ExecContext(ctx, query,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.ProductName,
			item.SKU,
			item.Quantity,
			item.UnitPrice,
			item.Subtotal,
			item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepository) AppendHistory(ctx context.Context, entry *domain.OrderStatusHistory) error {
	query := `
		INSERT INTO order_status_history (id, order_id, from_status, status, note, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		entry.ID, entry.OrderID, string(entry.FromStatus), string(entry.Status), entry.Note, entry.Actor, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append order status history: %w", err)
	}

	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// FindByIDForUpdate locks the order row so concurrent transitions serialize.
func (r *orderRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, `WHERE id = $1 FOR UPDATE`, id)
}

func (r *orderRepository) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Order, error) {
	return r.findOne(ctx, `WHERE payment_intent_id = $1`, paymentIntentID)
}

func (r *orderRepository) findOne(ctx context.Context, where string, arg interface{}) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ` + where

	order, err := scanOrder(conn(ctx, r.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	if err := r.loadChildren(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *orderRepository) loadChildren(ctx context.Context, order *domain.Order) error {
	q := conn(ctx, r.db)

	itemRows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, sku, quantity, unit_price, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_id
	`, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer itemRows.Close()

	order.Items = []domain.OrderItem{}
	for itemRows.Next() {
		var item domain.OrderItem
		err := itemRows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.SKU,
			&item.Quantity, &item.UnitPrice, &item.Subtotal, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("error iterating order items: %w", err)
	}

	historyRows, err := q.QueryContext(ctx, `
		SELECT id, order_id, from_status, status, note, actor, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at, id
	`, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order history: %w", err)
	}
	defer historyRows.Close()

	order.History = []domain.OrderStatusHistory{}
	for historyRows.Next() {
		var h domain.OrderStatusHistory
		if err := historyRows.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.Status, &h.Note, &h.Actor, &h.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan order history: %w", err)
		}
		order.History = append(order.History, h)
	}

	return historyRows.Err()
}

// ListByUser returns order headers newest first; items and history are not loaded.
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error) {
	page, pageSize = normalizePage(page, pageSize)
	q := conn(ctx, r.db)

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := q.QueryContext(ctx, query, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, total, nil
}

// UpdateStatus sets the status and, when trackingNumber is non-nil, the tracking number.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, trackingNumber *string) error {
	var (
		result sql.Result
		err    error
	)
	if trackingNumber != nil {
		result, err = conn(ctx, r.db).ExecContext(ctx,
			`UPDATE orders SET status = $2, tracking_number = $3 WHERE id = $1`, id, string(status), *trackingNumber)
	} else {
		result, err = conn(ctx, r.db).ExecContext(ctx,
			`UPDATE orders SET status = $2 WHERE id = $1`, id, string(status))
	}
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	return expectAffected(result, ErrOrderNotFound)
}
