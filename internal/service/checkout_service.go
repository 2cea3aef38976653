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
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckoutConfig carries the checkout policy settings.
type CheckoutConfig struct {
	Currency        string
	AmountTolerance decimal.Decimal
	GatewayTimeout  time.Duration
}

// PaymentIntentResult is returned to the client after creating or updating an intent.
type PaymentIntentResult struct {
	PaymentIntentID string          `json:"payment_intent_id"`
	ClientSecret    string          `json:"client_secret,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
}

// PlaceOrderInput identifies the confirmed intent and where to ship. Guest is the session
// the caller checked out with before signing in, if any.
type PlaceOrderInput struct {
	PaymentIntentID   string
	ShippingAddressID uuid.UUID
	Notes             string
	Guest             domain.Owner
}

// CheckoutService turns a cart into a paid order.
type CheckoutService interface {
	// Quote validates the cart and prices it without contacting the gateway.
	Quote(ctx context.Context, owner domain.Owner) (*CartView, error)
	CreateIntent(ctx context.Context, owner domain.Owner, addressID *uuid.UUID) (*PaymentIntentResult, error)
	// UpdateIntent re-prices the cart onto an existing intent that is not yet confirmed.
	// A signed-in owner may pass the guest session an intent was created under to claim it.
	UpdateIntent(ctx context.Context, owner, guest domain.Owner, intentID string, addressID *uuid.UUID) (*PaymentIntentResult, error)
	ConfirmPayment(ctx context.Context, owner, guest domain.Owner, intentID, paymentMethodID string) (*PaymentIntentResult, error)
	// PlaceOrder creates the order for a succeeded intent. Repeating the call for the same
	// intent returns the order created the first time.
	PlaceOrder(ctx context.Context, userID uuid.UUID, in PlaceOrderInput) (*domain.Order, error)
}

type checkoutService struct {
	carts      repository.CartRepository
	orders     repository.OrderRepository
	addresses  repository.AddressRepository
	inventory  InventoryService
	pricing    *PricingEngine
	gateway    payment.Gateway
	tx         repository.TxManager
	dispatcher notify.Dispatcher
	cfg        CheckoutConfig
	logger     *zap.Logger
}

// CheckoutDeps groups the collaborators of the checkout service.
type CheckoutDeps struct {
	Carts      repository.CartRepository
	Orders     repository.OrderRepository
	Addresses  repository.AddressRepository
	Inventory  InventoryService
	Pricing    *PricingEngine
	Gateway    payment.Gateway
	Tx         repository.TxManager
	Dispatcher notify.Dispatcher
	Config     CheckoutConfig
	Logger     *zap.Logger
}

func NewCheckoutService(deps CheckoutDeps) CheckoutService {
	cfg := deps.Config
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &checkoutService{
		carts:      deps.Carts,
		orders:     deps.Orders,
		addresses:  deps.Addresses,
		inventory:  deps.Inventory,
		pricing:    deps.Pricing,
		gateway:    deps.Gateway,
		tx:         deps.Tx,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

func newOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}

// gatewayError classifies a failed gateway call. Timeouts are retryable gateway errors.
func gatewayError(op string, err error) error {
	if errors.Is(err, payment.ErrIntentNotFound) {
		return domain.NotFound("payment intent not found")
	}
	return domain.GatewayError(op, err)
}

func (s *checkoutService) gatewayCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.GatewayTimeout)
}

func (s *checkoutService) quote(ctx context.Context, owner domain.Owner) ([]*domain.CartLineView, domain.Totals, error) {
	if owner.IsZero() {
		return nil, domain.Totals{}, domain.Validation("a user or session id is required")
	}
	lines, err := s.carts.ListByOwner(ctx, owner)
	if err != nil {
		return nil, domain.Totals{}, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, domain.Totals{}, domain.EmptyCart()
	}
	violations, err := s.inventory.ValidateStock(ctx, domain.StockRequests(derefLines(lines)))
	if err != nil {
		return nil, domain.Totals{}, err
	}
	if len(violations) > 0 {
		return nil, domain.Totals{}, domain.InsufficientStock(violations)
	}
	return lines, s.pricing.CalculateTotals(domain.PriceLines(derefLines(lines))), nil
}

func (s *checkoutService) Quote(ctx context.Context, owner domain.Owner) (view *CartView, err error) {
	ctx, span := startSpan(ctx, "checkout.Quote", attribute.String("owner", owner.Key()))
	defer func() { endSpan(span, err) }()

	lines, totals, err := s.quote(ctx, owner)
	if err != nil {
		return nil, err
	}
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return &CartView{Items: lines, ItemCount: count, Totals: totals}, nil
}

// checkAddress verifies the address exists and belongs to userID.
func (s *checkoutService) checkAddress(ctx context.Context, userID, addressID uuid.UUID) error {
	addr, err := s.addresses.FindByID(ctx, addressID)
	if errors.Is(err, repository.ErrAddressNotFound) {
		return domain.NotFound("shipping address not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load shipping address: %w", err)
	}
	if addr.UserID != userID {
		return domain.Forbidden("shipping address belongs to another user")
	}
	return nil
}

func (s *checkoutService) intentMetadata(ctx context.Context, owner domain.Owner, addressID *uuid.UUID) (map[string]string, error) {
	meta := map[string]string{payment.MetaOwner: owner.Key()}
	if id, ok := owner.UserID(); ok {
		meta[payment.MetaUserID] = id.String()
	}
	if token, ok := owner.SessionToken(); ok {
		meta[payment.MetaSessionID] = token
	}
	if addressID != nil {
		userID, ok := owner.UserID()
		if !ok {
			return nil, domain.Forbidden("sign in to choose a shipping address")
		}
		if err := s.checkAddress(ctx, userID, *addressID); err != nil {
			return nil, err
		}
		meta[payment.MetaAddressID] = addressID.String()
	}
	return meta, nil
}

func toResult(intent *payment.Intent) *PaymentIntentResult {
	return &PaymentIntentResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          domain.FromMinorUnits(intent.Amount),
		Currency:        intent.Currency,
		Status:          string(intent.Status),
	}
}

func (s *checkoutService) CreateIntent(ctx context.Context, owner domain.Owner, addressID *uuid.UUID) (res *PaymentIntentResult, err error) {
	ctx, span := startSpan(ctx, "checkout.CreateIntent", attribute.String("owner", owner.Key()))
	defer func() { endSpan(span, err) }()

	lines, totals, err := s.quote(ctx, owner)
	if err != nil {
		return nil, err
	}
	meta, err := s.intentMetadata(ctx, owner, addressID)
	if err != nil {
		return nil, err
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()
	intent, err := s.gateway.CreateIntent(gctx, payment.CreateIntentParams{
		Amount:         domain.ToMinorUnits(totals.Total),
		Currency:       s.cfg.Currency,
		Metadata:       meta,
		IdempotencyKey: intentIdempotencyKey(owner, lines, totals, addressID),
	})
	if err != nil {
		s.logger.Error("Failed to create payment intent", zap.String("owner", owner.Key()), zap.Error(err))
		return nil, gatewayError("create intent", err)
	}

	span.SetAttributes(attribute.String("payment_intent_id", intent.ID))
	s.logger.Info("Payment intent created",
		zap.String("payment_intent_id", intent.ID),
		zap.String("owner", owner.Key()),
		zap.String("amount", totals.Total.StringFixed(domain.MoneyPlaces)),
	)
	return toResult(intent), nil
}

// intentIdempotencyKey derives the gateway idempotency key for creating an intent. A retried
// request for the same cart reuses the intent; any change to the cart lines or the chosen
// address yields a new key. Line ids are part of the key, so a cart rebuilt after an order
// never replays the paid intent.
func intentIdempotencyKey(owner domain.Owner, lines []*domain.CartLineView, totals domain.Totals, addressID *uuid.UUID) string {
	var b strings.Builder
	b.WriteString(owner.Key())
	for _, l := range lines {
		fmt.Fprintf(&b, "|%s:%d:%d", l.ID, l.Quantity, l.UpdatedAt.UnixNano())
	}
	b.WriteString("|" + totals.Total.StringFixed(domain.MoneyPlaces))
	if addressID != nil {
		b.WriteString("|" + addressID.String())
	}
	return "intent-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(b.String())).String()
}

// claimsIntent reports whether owner may act on an intent tagged with tagged. Untagged
// intents belong to nobody. A signed-in owner also claims intents created under the
// guest session it presents.
func claimsIntent(tagged string, owner, guest domain.Owner) bool {
	if tagged == "" {
		return false
	}
	if tagged == owner.Key() {
		return true
	}
	return owner.IsUser() && guest.IsSession() && tagged == guest.Key()
}

// ownedIntent retrieves an intent and checks the caller may act on it.
func (s *checkoutService) ownedIntent(ctx context.Context, owner, guest domain.Owner, intentID string) (*payment.Intent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, domain.Validation("payment intent id is required")
	}
	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()
	intent, err := s.gateway.RetrieveIntent(gctx, intentID)
	if err != nil {
		return nil, gatewayError("retrieve intent", err)
	}
	if !claimsIntent(intent.Metadata[payment.MetaOwner], owner, guest) {
		return nil, domain.Forbidden("payment intent belongs to another customer")
	}
	return intent, nil
}

func (s *checkoutService) UpdateIntent(ctx context.Context, owner, guest domain.Owner, intentID string, addressID *uuid.UUID) (res *PaymentIntentResult, err error) {
	ctx, span := startSpan(ctx, "checkout.UpdateIntent",
		attribute.String("owner", owner.Key()), attribute.String("payment_intent_id", intentID))
	defer func() { endSpan(span, err) }()

	intent, err := s.ownedIntent(ctx, owner, guest, intentID)
	if err != nil {
		return nil, err
	}
	if !intent.Status.Updatable() {
		return nil, domain.InvalidPaymentState(string(intent.Status))
	}

	_, totals, err := s.quote(ctx, owner)
	if err != nil {
		return nil, err
	}
	meta, err := s.intentMetadata(ctx, owner, addressID)
	if err != nil {
		return nil, err
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()
	updated, err := s.gateway.UpdateIntent(gctx, intentID, payment.UpdateIntentParams{
		Amount:   domain.ToMinorUnits(totals.Total),
		Metadata: meta,
	})
	if err != nil {
		return nil, gatewayError("update intent", err)
	}

	s.logger.Info("Payment intent updated",
		zap.String("payment_intent_id", intentID),
		zap.String("amount", totals.Total.StringFixed(domain.MoneyPlaces)),
	)
	return toResult(updated), nil
}

func (s *checkoutService) ConfirmPayment(ctx context.Context, owner, guest domain.Owner, intentID, paymentMethodID string) (res *PaymentIntentResult, err error) {
	ctx, span := startSpan(ctx, "checkout.ConfirmPayment", attribute.String("payment_intent_id", intentID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(paymentMethodID) == "" {
		return nil, domain.Validation("payment method id is required")
	}
	if _, err := s.ownedIntent(ctx, owner, guest, intentID); err != nil {
		return nil, err
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()
	intent, err := s.gateway.ConfirmIntent(gctx, intentID, paymentMethodID)
	if err != nil {
		return nil, gatewayError("confirm intent", err)
	}
	return toResult(intent), nil
}

func (s *checkoutService) PlaceOrder(ctx context.Context, userID uuid.UUID, in PlaceOrderInput) (order *domain.Order, err error) {
	ctx, span := startSpan(ctx, "checkout.PlaceOrder",
		attribute.String("user_id", userID.String()), attribute.String("payment_intent_id", in.PaymentIntentID))
	defer func() { endSpan(span, err) }()

	if userID == uuid.Nil {
		return nil, domain.Forbidden("sign in to place an order")
	}
	owner := domain.UserOwner(userID)

	intent, err := s.ownedIntent(ctx, owner, in.Guest, in.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != payment.IntentSucceeded {
		return nil, domain.PaymentNotCompleted(string(intent.Status))
	}

	if existing, err := s.existingOrder(ctx, userID, intent.ID); err != nil || existing != nil {
		return existing, err
	}

	if recorded := intent.Metadata[payment.MetaAddressID]; recorded != "" && recorded != in.ShippingAddressID.String() {
		return nil, domain.Validation("shipping address differs from the one on the payment intent; update the intent first")
	}
	if err := s.checkAddress(ctx, userID, in.ShippingAddressID); err != nil {
		return nil, err
	}

	cartOwner, err := s.cartOwnerFor(ctx, owner, in.Guest, intent)
	if err != nil {
		return nil, err
	}

	order, err = s.createOrder(ctx, cartOwner, userID, intent, in)
	if errors.Is(err, repository.ErrDuplicatePaymentIntent) || domain.IsKind(err, domain.KindEmptyCart) {
		// A concurrent confirmation of the same intent may have committed first and
		// cleared the cart.
		existing, lookupErr := s.existingOrder(ctx, userID, intent.ID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, wrapUnlessDomain(err, "failed to create order")
	}

	span.SetAttributes(attribute.String("order_id", order.ID.String()))
	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("payment_intent_id", intent.ID),
		zap.String("total", order.Total.StringFixed(domain.MoneyPlaces)),
	)

	notify.Send(ctx, s.dispatcher, s.logger, notify.Notification{
		Kind:        notify.KindOrderConfirmation,
		UserID:      userID.String(),
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
	})

	productIDs := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	s.inventory.AlertIfLow(ctx, productIDs)

	return order, nil
}

// cartOwnerFor picks the cart an order is built from. An intent paid as a guest is settled
// from the guest cart while it still holds lines, which covers a sign-in whose cart merge
// failed; once merged the lines live in the account cart.
func (s *checkoutService) cartOwnerFor(ctx context.Context, owner, guest domain.Owner, intent *payment.Intent) (domain.Owner, error) {
	if !guest.IsSession() || intent.Metadata[payment.MetaOwner] != guest.Key() {
		return owner, nil
	}
	lines, err := s.carts.ListByOwner(ctx, guest)
	if err != nil {
		return domain.Owner{}, fmt.Errorf("failed to load guest cart: %w", err)
	}
	if len(lines) > 0 {
		return guest, nil
	}
	return owner, nil
}

// existingOrder returns the order already placed for intentID, or nil when there is none.
func (s *checkoutService) existingOrder(ctx context.Context, userID uuid.UUID, intentID string) (*domain.Order, error) {
	order, err := s.orders.FindByPaymentIntent(ctx, intentID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up order by payment intent: %w", err)
	}
	if !order.OwnedBy(userID) {
		return nil, domain.Forbidden("payment intent belongs to another customer")
	}
	s.logger.Info("Order already exists for payment intent",
		zap.String("order_id", order.ID.String()),
		zap.String("payment_intent_id", intentID),
	)
	return order, nil
}

func (s *checkoutService) createOrder(
	ctx context.Context,
	owner domain.Owner,
	userID uuid.UUID,
	intent *payment.Intent,
	in PlaceOrderInput,
) (*domain.Order, error) {
	var order *domain.Order

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lines, err := s.carts.LockByOwner(ctx, owner)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return domain.EmptyCart()
		}

		views := derefLines(lines)
		totals := s.pricing.CalculateTotals(domain.PriceLines(views))
		paid := domain.FromMinorUnits(intent.Amount)
		if paid.Sub(totals.Total).Abs().GreaterThan(s.cfg.AmountTolerance) {
			s.logger.Warn("Payment amount does not match cart total",
				zap.String("payment_intent_id", intent.ID),
				zap.String("intent_amount", paid.StringFixed(domain.MoneyPlaces)),
				zap.String("cart_total", totals.Total.StringFixed(domain.MoneyPlaces)),
			)
			return domain.AmountMismatch(paid, totals.Total)
		}

		now := time.Now().UTC()
		order = &domain.Order{
			ID:                uuid.New(),
			OrderNumber:       newOrderNumber(),
			UserID:            userID,
			ShippingAddressID: in.ShippingAddressID,
			Subtotal:          totals.Subtotal,
			Tax:               totals.Tax,
			ShippingCost:      totals.ShippingCost,
			Total:             totals.Total,
			Status:            domain.OrderStatusPending,
			PaymentIntentID:   intent.ID,
			Notes:             strings.TrimSpace(in.Notes),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}

		items := make([]domain.OrderItem, 0, len(views))
		for _, line := range views {
			items = append(items, domain.OrderItem{
				ID:          uuid.New(),
				OrderID:     order.ID,
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				SKU:         line.SKU,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Subtotal:    domain.RoundMoney(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))),
				CreatedAt:   now,
			})
		}
		if err := s.orders.CreateItems(ctx, items); err != nil {
			return err
		}
		order.Items = items

		pending := domain.NewStatusHistory(order.ID, "", domain.OrderStatusPending, "Order created", userID.String())
		if err := s.orders.AppendHistory(ctx, pending); err != nil {
			return err
		}

		if err := s.inventory.DecreaseLines(ctx, domain.StockRequests(views)); err != nil {
			return err
		}

		if _, err := s.carts.DeleteByOwner(ctx, owner); err != nil {
			return err
		}

		if err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusProcessing, nil); err != nil {
			return err
		}
		processing := domain.NewStatusHistory(order.ID, domain.OrderStatusPending, domain.OrderStatusProcessing,
			"Payment received", domain.SystemActor)
		if err := s.orders.AppendHistory(ctx, processing); err != nil {
			return err
		}

		order.Status = domain.OrderStatusProcessing
		order.History = []domain.OrderStatusHistory{*pending, *processing}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}
