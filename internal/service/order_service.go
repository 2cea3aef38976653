package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/notify"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StatusUpdate is an admin overwrite of an order's status.
type StatusUpdate struct {
	Status         domain.OrderStatus
	TrackingNumber *string
	Note           string
}

// OrderService manages orders after checkout.
type OrderService interface {
	Get(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error)
	Cancel(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error)
	AdminUpdateStatus(ctx context.Context, actor domain.Actor, orderID uuid.UUID, update StatusUpdate) (*domain.Order, error)
	// Refund refunds amount through the gateway, or the order total when amount is nil.
	// Refunding an already refunded order is a no-op.
	Refund(ctx context.Context, actor domain.Actor, orderID uuid.UUID, amount *decimal.Decimal, reason string) (*domain.Order, error)
	// HandleWebhook verifies and applies a gateway event.
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
}

type OrderDeps struct {
	Orders         repository.OrderRepository
	Inventory      InventoryService
	Gateway        payment.Gateway
	Tx             repository.TxManager
	Dispatcher     notify.Dispatcher
	GatewayTimeout time.Duration
	Logger         *zap.Logger
}

type orderService struct {
	orders         repository.OrderRepository
	inventory      InventoryService
	gateway        payment.Gateway
	tx             repository.TxManager
	dispatcher     notify.Dispatcher
	gatewayTimeout time.Duration
	logger         *zap.Logger
}

func NewOrderService(deps OrderDeps) OrderService {
	timeout := deps.GatewayTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &orderService{
		orders:         deps.Orders,
		inventory:      deps.Inventory,
		gateway:        deps.Gateway,
		tx:             deps.Tx,
		dispatcher:     deps.Dispatcher,
		gatewayTimeout: timeout,
		logger:         logger,
	}
}

func canView(actor domain.Actor, order *domain.Order) bool {
	return actor.IsAdmin() || actor.IsSystem() || (actor.UserID != uuid.Nil && order.OwnedBy(actor.UserID))
}

func (s *orderService) load(ctx context.Context, orderID uuid.UUID, forUpdate bool) (*domain.Order, error) {
	var (
		order *domain.Order
		err   error
	)
	if forUpdate {
		order, err = s.orders.FindByIDForUpdate(ctx, orderID)
	} else {
		order, err = s.orders.FindByID(ctx, orderID)
	}
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, domain.NotFound("order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}

func (s *orderService) Get(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.load(ctx, orderID, false)
	if err != nil {
		return nil, err
	}
	if !canView(actor, order) {
		return nil, domain.Forbidden("order belongs to another customer")
	}
	return order, nil
}

func (s *orderService) ListForUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error) {
	orders, total, err := s.orders.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

func (s *orderService) Cancel(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (order *domain.Order, err error) {
	ctx, span := startSpan(ctx, "order.Cancel", attribute.String("order_id", orderID.String()))
	defer func() { endSpan(span, err) }()

	// Ownership is checked before the transaction so a foreign caller causes no writes.
	if _, err := s.Get(ctx, actor, orderID); err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.load(ctx, orderID, true)
		if err != nil {
			return err
		}
		if !current.Status.CanBeCancelled() {
			return domain.CannotCancel(current.Status)
		}

		entry := domain.NewStatusHistory(current.ID, current.Status, domain.OrderStatusCancelled,
			"Order cancelled", actor.Label())
		if err := s.orders.UpdateStatus(ctx, current.ID, domain.OrderStatusCancelled, nil); err != nil {
			return err
		}
		if err := s.orders.AppendHistory(ctx, entry); err != nil {
			return err
		}
		if len(current.Items) > 0 {
			if err := s.inventory.IncreaseLines(ctx, current.StockRequests()); err != nil {
				return err
			}
		}

		current.Status = domain.OrderStatusCancelled
		current.History = append(current.History, *entry)
		order = current
		return nil
	})
	if err != nil {
		return nil, wrapUnlessDomain(err, "failed to cancel order")
	}

	s.logger.Info("Order cancelled",
		zap.String("order_id", order.ID.String()),
		zap.String("actor", actor.Label()),
	)
	s.notifyStatus(ctx, order)
	return order, nil
}

func (s *orderService) AdminUpdateStatus(ctx context.Context, actor domain.Actor, orderID uuid.UUID, update StatusUpdate) (order *domain.Order, err error) {
	ctx, span := startSpan(ctx, "order.AdminUpdateStatus",
		attribute.String("order_id", orderID.String()), attribute.String("status", string(update.Status)))
	defer func() { endSpan(span, err) }()

	if !actor.IsAdmin() {
		return nil, domain.Forbidden("admin access required")
	}
	if !update.Status.Valid() {
		return nil, domain.Validation("unknown order status: " + string(update.Status))
	}
	if update.TrackingNumber != nil {
		tn := strings.TrimSpace(*update.TrackingNumber)
		update.TrackingNumber = &tn
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.load(ctx, orderID, true)
		if err != nil {
			return err
		}

		note := update.Note
		override := current.Status != update.Status && !current.Status.CanTransitionTo(update.Status)
		if override {
			span.SetAttributes(attribute.Bool("override", true))
			s.logger.Warn("Admin status change outside the order lifecycle",
				zap.String("order_id", current.ID.String()),
				zap.String("from", string(current.Status)),
				zap.String("to", string(update.Status)),
				zap.String("actor", actor.Label()),
			)
		}
		switch {
		case note != "":
		case override:
			note = "Status overridden by admin"
		default:
			note = "Status updated by admin"
		}
		entry := domain.NewStatusHistory(current.ID, current.Status, update.Status, note, actor.Label())
		if err := s.orders.UpdateStatus(ctx, current.ID, update.Status, update.TrackingNumber); err != nil {
			return err
		}
		if err := s.orders.AppendHistory(ctx, entry); err != nil {
			return err
		}

		current.Status = update.Status
		if update.TrackingNumber != nil {
			current.TrackingNumber = *update.TrackingNumber
		}
		current.History = append(current.History, *entry)
		order = current
		return nil
	})
	if err != nil {
		return nil, wrapUnlessDomain(err, "failed to update order status")
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Status)),
		zap.String("actor", actor.Label()),
	)
	if order.Status.NotifiesCustomer() {
		s.notifyStatus(ctx, order)
	}
	return order, nil
}

func (s *orderService) Refund(ctx context.Context, actor domain.Actor, orderID uuid.UUID, amount *decimal.Decimal, reason string) (order *domain.Order, err error) {
	ctx, span := startSpan(ctx, "order.Refund", attribute.String("order_id", orderID.String()))
	defer func() { endSpan(span, err) }()

	if !actor.IsAdmin() {
		return nil, domain.Forbidden("admin access required")
	}

	order, err = s.load(ctx, orderID, false)
	if err != nil {
		return nil, err
	}
	if !order.HasPaymentIntent() {
		return nil, domain.Validation("order has no payment to refund")
	}
	if order.Status == domain.OrderStatusRefunded {
		s.logger.Info("Order already refunded", zap.String("order_id", order.ID.String()))
		return order, nil
	}

	refundAmount := order.Total
	if amount != nil {
		refundAmount = domain.RoundMoney(*amount)
	}
	if !refundAmount.IsPositive() || refundAmount.GreaterThan(order.Total) {
		return nil, domain.Validation("refund amount must be positive and no more than the order total")
	}

	cents := domain.ToMinorUnits(refundAmount)
	meta := map[string]string{payment.MetaOrderID: order.ID.String()}
	if reason != "" {
		meta[payment.MetaReason] = reason
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	refund, err := s.gateway.CreateRefund(gctx, payment.RefundParams{
		PaymentIntentID: order.PaymentIntentID,
		Amount:          cents,
		Metadata:        meta,
		IdempotencyKey:  fmt.Sprintf("refund-%s-%d", order.ID, cents),
	})
	cancel()
	if err != nil {
		s.logger.Error("Refund failed",
			zap.String("order_id", order.ID.String()),
			zap.String("payment_intent_id", order.PaymentIntentID),
			zap.Error(err),
		)
		return nil, gatewayError("refund", err)
	}

	note := "Refund " + refund.ID
	if reason != "" {
		note += ": " + reason
	}
	order, err = s.applyRefund(ctx, order.ID, actor, note)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order refunded",
		zap.String("order_id", order.ID.String()),
		zap.String("refund_id", refund.ID),
		zap.String("amount", refundAmount.StringFixed(domain.MoneyPlaces)),
	)
	s.notifyStatus(ctx, order)
	return order, nil
}

// applyRefund moves the order to refunded and restores its stock, unless it is already
// refunded. Stock of a cancelled order was restored on cancel and is not restored again.
func (s *orderService) applyRefund(ctx context.Context, orderID uuid.UUID, actor domain.Actor, note string) (*domain.Order, error) {
	var order *domain.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.load(ctx, orderID, true)
		if err != nil {
			return err
		}
		order = current
		if current.Status == domain.OrderStatusRefunded {
			return nil
		}

		entry := domain.NewStatusHistory(current.ID, current.Status, domain.OrderStatusRefunded, note, actor.Label())
		if err := s.orders.UpdateStatus(ctx, current.ID, domain.OrderStatusRefunded, nil); err != nil {
			return err
		}
		if err := s.orders.AppendHistory(ctx, entry); err != nil {
			return err
		}
		if current.Status != domain.OrderStatusCancelled && len(current.Items) > 0 {
			if err := s.inventory.IncreaseLines(ctx, current.StockRequests()); err != nil {
				return err
			}
		}

		current.Status = domain.OrderStatusRefunded
		current.History = append(current.History, *entry)
		return nil
	})
	if err != nil {
		return nil, wrapUnlessDomain(err, "failed to apply refund")
	}
	return order, nil
}

func (s *orderService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (err error) {
	ctx, span := startSpan(ctx, "order.HandleWebhook")
	defer func() { endSpan(span, err) }()

	event, err := s.gateway.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		s.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return domain.InvalidSignature(err)
	}
	span.SetAttributes(
		attribute.String("event_type", event.Type),
		attribute.String("payment_intent_id", event.PaymentIntentID),
	)

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("payment_intent_id", event.PaymentIntentID),
	}

	switch event.Type {
	case payment.EventPaymentIntentSucceeded:
		order, err := s.orders.FindByPaymentIntent(ctx, event.PaymentIntentID)
		if errors.Is(err, repository.ErrOrderNotFound) {
			s.logger.Warn("Payment succeeded without a matching order", fields...)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up order: %w", err)
		}
		s.logger.Info("Payment succeeded", append(fields, zap.String("order_id", order.ID.String()))...)

	case payment.EventPaymentIntentFailed:
		s.logger.Warn("Payment failed", fields...)

	case payment.EventChargeRefunded:
		order, err := s.orders.FindByPaymentIntent(ctx, event.PaymentIntentID)
		if errors.Is(err, repository.ErrOrderNotFound) {
			s.logger.Warn("Refund received without a matching order", fields...)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up order: %w", err)
		}
		if order.Status == domain.OrderStatusRefunded {
			return nil
		}
		order, err = s.applyRefund(ctx, order.ID, domain.System, "Refund reported by payment gateway")
		if err != nil {
			return err
		}
		s.logger.Info("Order refunded from webhook", append(fields, zap.String("order_id", order.ID.String()))...)
		s.notifyStatus(ctx, order)

	default:
		s.logger.Debug("Ignoring webhook event", fields...)
	}
	return nil
}

func (s *orderService) notifyStatus(ctx context.Context, order *domain.Order) {
	notify.Send(ctx, s.dispatcher, s.logger, notify.Notification{
		Kind:        notify.KindOrderStatusUpdate,
		UserID:      order.UserID.String(),
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Tracking:    order.TrackingNumber,
	})
}
