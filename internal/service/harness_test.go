package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/notify"
	"storefront/internal/payment"
	"storefront/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_test_secret"

type harness struct {
	store     *memory.Store
	gateway   *payment.FakeGateway
	recorder  *notify.Recorder
	pricing   *PricingEngine
	inventory InventoryService
	carts     CartService
	checkout  CheckoutService
	orders    OrderService
	users     UserService
	addresses AddressService
	catalog   CatalogService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := memory.New()
	gateway := payment.NewFakeGateway(testWebhookSecret, "usd")
	recorder := notify.NewRecorder(256)
	logger := zap.NewNop()
	pricing := NewPricingEngine(decimal.RequireFromString("0.10"), decimal.RequireFromString("10.00"))

	inventory := NewInventoryService(store.Inventory(), store.Products(), store.TxManager(), recorder, logger)
	carts := NewCartService(store.Carts(), store.Products(), inventory, pricing, store.TxManager(), logger)

	return &harness{
		store:     store,
		gateway:   gateway,
		recorder:  recorder,
		pricing:   pricing,
		inventory: inventory,
		carts:     carts,
		checkout: NewCheckoutService(CheckoutDeps{
			Carts:      store.Carts(),
			Orders:     store.Orders(),
			Addresses:  store.Addresses(),
			Inventory:  inventory,
			Pricing:    pricing,
			Gateway:    gateway,
			Tx:         store.TxManager(),
			Dispatcher: recorder,
			Config: CheckoutConfig{
				Currency:        "usd",
				AmountTolerance: decimal.RequireFromString("0.01"),
				GatewayTimeout:  time.Second,
			},
			Logger: logger,
		}),
		orders: NewOrderService(OrderDeps{
			Orders:         store.Orders(),
			Inventory:      inventory,
			Gateway:        gateway,
			Tx:             store.TxManager(),
			Dispatcher:     recorder,
			GatewayTimeout: time.Second,
			Logger:         logger,
		}),
		users: NewUserService(store.Users(), store.RefreshTokens(), carts,
			TokenConfig{Secret: "test-secret-key"}, logger),
		addresses: NewAddressService(store.Addresses()),
		catalog:   NewCatalogService(store.Products(), store.Categories()),
	}
}

// seedProduct creates a product priced at price with quantity units in stock.
func (h *harness) seedProduct(t *testing.T, price string, quantity int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, h.store.Products().Create(ctx, &domain.Product{
		ID:        id,
		SKU:       "SKU-" + id.String()[:8],
		Name:      "Product " + id.String()[:8],
		Price:     decimal.RequireFromString(price),
		CreatedAt: now,
		UpdatedAt: now,
	}))
	require.NoError(t, h.store.Inventory().Upsert(ctx, &domain.InventoryLevel{
		ProductID:         id,
		Quantity:          quantity,
		LowStockThreshold: 2,
	}))
	return id
}

func (h *harness) stock(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	level, err := h.inventory.Level(context.Background(), productID)
	require.NoError(t, err)
	return level.Quantity
}

func (h *harness) seedUser(t *testing.T, role string) *domain.User {
	t.Helper()
	now := time.Now().UTC()
	user := &domain.User{
		ID:        uuid.New(),
		Email:     uuid.NewString()[:8] + "@example.com",
		FirstName: "Test",
		LastName:  "User",
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, h.store.Users().Create(context.Background(), user))
	return user
}

func (h *harness) seedAddress(t *testing.T, userID uuid.UUID) uuid.UUID {
	t.Helper()
	addr, err := h.addresses.Create(context.Background(), userID, AddressInput{
		FullName:   "Test User",
		Line1:      "1 Main St",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "us",
	})
	require.NoError(t, err)
	return addr.ID
}

// paidIntent creates an intent for the owner's cart and marks it succeeded.
func (h *harness) paidIntent(t *testing.T, owner domain.Owner) string {
	t.Helper()
	res, err := h.checkout.CreateIntent(context.Background(), owner, nil)
	require.NoError(t, err)
	h.gateway.SetStatus(res.PaymentIntentID, payment.IntentSucceeded)
	return res.PaymentIntentID
}

// placeOrder fills a cart for a new user and checks it out.
func (h *harness) placeOrder(t *testing.T, items map[uuid.UUID]int) (*domain.User, *domain.Order) {
	t.Helper()
	ctx := context.Background()
	user := h.seedUser(t, domain.RoleUser)
	owner := domain.UserOwner(user.ID)
	for productID, qty := range items {
		_, err := h.carts.Add(ctx, owner, productID, qty)
		require.NoError(t, err)
	}
	intentID := h.paidIntent(t, owner)
	order, err := h.checkout.PlaceOrder(ctx, user.ID, PlaceOrderInput{
		PaymentIntentID:   intentID,
		ShippingAddressID: h.seedAddress(t, user.ID),
	})
	require.NoError(t, err)
	return user, order
}

func kinds(ns []notify.Notification) []notify.Kind {
	out := make([]notify.Kind, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Kind)
	}
	return out
}
