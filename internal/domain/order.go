package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is a state in the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// SystemActor is recorded in status history for transitions not made by a user.
const SystemActor = "system"

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  {OrderStatusRefunded},
	OrderStatusRefunded:   {},
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanBeCancelled reports whether an order in this status accepts a cancel request.
func (s OrderStatus) CanBeCancelled() bool {
	return s == OrderStatusPending || s == OrderStatusProcessing
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Admin status overwrites bypass this check.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NotifiesCustomer reports whether moving into this status sends a status update.
func (s OrderStatus) NotifiesCustomer() bool {
	return s == OrderStatusShipped || s == OrderStatusDelivered
}

// Order is created exactly once per succeeded payment intent.
type Order struct {
	ID                uuid.UUID       `json:"id"`
	OrderNumber       string          `json:"order_number"`
	UserID            uuid.UUID       `json:"user_id"`
	ShippingAddressID uuid.UUID       `json:"shipping_address_id"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Tax               decimal.Decimal `json:"tax"`
	ShippingCost      decimal.Decimal `json:"shipping_cost"`
	Total             decimal.Decimal `json:"total"`
	Status            OrderStatus     `json:"status"`
	PaymentIntentID   string          `json:"payment_intent_id,omitempty"`
	TrackingNumber    string          `json:"tracking_number,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	Items   []OrderItem          `json:"items,omitempty"`
	History []OrderStatusHistory `json:"status_history,omitempty"`
}

// HasPaymentIntent reports whether the order was paid through the gateway.
func (o *Order) HasPaymentIntent() bool {
	return o.PaymentIntentID != ""
}

// OwnedBy reports whether userID placed the order.
func (o *Order) OwnedBy(userID uuid.UUID) bool {
	return o.UserID == userID
}

// StockRequests lists the inventory to restore for this order's items.
func (o *Order) StockRequests() []StockRequest {
	out := make([]StockRequest, 0, len(o.Items))
	for _, item := range o.Items {
		out = append(out, StockRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

// OrderItem snapshots a product and its price at order time.
type OrderItem struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderStatusHistory is one append-only audit row.
type OrderStatusHistory struct {
	ID         uuid.UUID   `json:"id"`
	OrderID    uuid.UUID   `json:"order_id"`
	FromStatus OrderStatus `json:"from_status,omitempty"`
	Status     OrderStatus `json:"status"`
	Note       string      `json:"note,omitempty"`
	Actor      string      `json:"actor"`
	CreatedAt  time.Time   `json:"created_at"`
}

// NewStatusHistory builds a history entry stamped now.
func NewStatusHistory(orderID uuid.UUID, from, to OrderStatus, note, actor string) *OrderStatusHistory {
	if actor == "" {
		actor = SystemActor
	}
	return &OrderStatusHistory{
		ID:         uuid.New(),
		OrderID:    orderID,
		FromStatus: from,
		Status:     to,
		Note:       note,
		Actor:      actor,
		CreatedAt:  time.Now().UTC(),
	}
}
