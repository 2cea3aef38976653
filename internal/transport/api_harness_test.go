package transport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/notify"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/repository/memory"
	"storefront/internal/server"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testJWTSecret     = "transport-test-secret"
	testWebhookSecret = "whsec_transport_test"
	testPassword      = "correct-horse-battery"
)

type api struct {
	store    *memory.Store
	gateway  *payment.FakeGateway
	recorder *notify.Recorder
	handler  http.Handler
}

func newAPI(t *testing.T) *api {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test", AllowedOrigins: []string{"http://localhost:3000"}},
		JWT:    config.JWTConfig{Secret: testJWTSecret, AccessExpiry: 15, RefreshExpiry: 7},
		Payments: config.PaymentsConfig{
			Currency:       "usd",
			GatewayTimeout: time.Second,
		},
		Checkout: config.CheckoutConfig{
			TaxRate:         decimal.RequireFromString("0.10"),
			ShippingCost:    decimal.RequireFromString("10.00"),
			AmountTolerance: decimal.RequireFromString("0.01"),
		},
	}

	a := &api{
		store:    memory.New(),
		gateway:  payment.NewFakeGateway(testWebhookSecret, "usd"),
		recorder: notify.NewRecorder(64),
	}
	d := server.Deps{
		Config:     cfg,
		Logger:     zap.NewNop(),
		Repos:      server.MemoryRepositories(a.store),
		Gateway:    a.gateway,
		Dispatcher: a.recorder,
	}
	a.handler = server.NewRouter(d, server.NewServices(d))
	return a
}

type call struct {
	method  string
	path    string
	body    interface{}
	token   string
	session string
	headers map[string]string
}

func (a *api) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		switch b := c.body.(type) {
		case []byte:
			body.Write(b)
		default:
			require.NoError(t, json.NewEncoder(&body).Encode(b))
		}
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.session != "" {
		req.Header.Set("X-Session-ID", c.session)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type errorEnvelope struct {
	Error struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func (a *api) seedProduct(t *testing.T, price string, quantity int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, a.store.Products().Create(ctx, &domain.Product{
		ID:        id,
		SKU:       "SKU-" + id.String()[:8],
		Name:      "Product " + id.String()[:8],
		Price:     decimal.RequireFromString(price),
		CreatedAt: now,
		UpdatedAt: now,
	}))
	require.NoError(t, a.store.Inventory().Upsert(ctx, &domain.InventoryLevel{
		ProductID:         id,
		Quantity:          quantity,
		LowStockThreshold: 1,
	}))
	return id
}

func (a *api) stock(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	level, err := a.store.Inventory().Find(context.Background(), productID, repository.LockNone)
	require.NoError(t, err)
	return level.Quantity
}

// seedAccount stores a user with a known password and role.
func (a *api) seedAccount(t *testing.T, role string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        uuid.NewString()[:8] + "@example.com",
		PasswordHash: string(hash),
		FirstName:    "Test",
		LastName:     "Account",
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, a.store.Users().Create(context.Background(), user))
	return user
}

type loginBody struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	CartMergeError string `json:"cart_merge_error"`
	CartMerge      *struct {
		Transferred int `json:"transferred"`
		Combined    int `json:"combined"`
	} `json:"cart_merge"`
}

func (a *api) login(t *testing.T, email, session string) loginBody {
	t.Helper()
	w := a.do(t, call{
		method:  http.MethodPost,
		path:    "/api/users/login",
		body:    map[string]string{"email": email, "password": testPassword},
		session: session,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[loginBody](t, w)
}

// signIn seeds an account with role and returns it with an access token.
func (a *api) signIn(t *testing.T, role string) (*domain.User, string) {
	t.Helper()
	user := a.seedAccount(t, role)
	return user, a.login(t, user.Email, "").AccessToken
}

func (a *api) createAddress(t *testing.T, token string) string {
	t.Helper()
	w := a.do(t, call{
		method: http.MethodPost,
		path:   "/api/addresses",
		token:  token,
		body: map[string]string{
			"full_name":   "Ada Lovelace",
			"line1":       "1 Analytical Way",
			"city":        "London",
			"postal_code": "N1 9GU",
			"country":     "GB",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[domain.ShippingAddress](t, w).ID.String()
}

func (a *api) addToCart(t *testing.T, token, session string, productID uuid.UUID, quantity int) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, call{
		method:  http.MethodPost,
		path:    "/api/cart/items",
		token:   token,
		session: session,
		body:    map[string]interface{}{"product_id": productID.String(), "quantity": quantity},
	})
}

type intentBody struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	Amount          string `json:"amount"`
	Status          string `json:"status"`
}

// checkout runs intent creation, marks the intent paid and places the order.
func (a *api) checkout(t *testing.T, token, addressID string) (string, *httptest.ResponseRecorder) {
	t.Helper()
	w := a.do(t, call{method: http.MethodPost, path: "/api/checkout/payment-intents", token: token})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	intent := decode[intentBody](t, w)
	a.gateway.SetStatus(intent.PaymentIntentID, payment.IntentSucceeded)

	return intent.PaymentIntentID, a.do(t, call{
		method: http.MethodPost,
		path:   "/api/checkout/orders",
		token:  token,
		body:   map[string]string{"payment_intent_id": intent.PaymentIntentID, "shipping_address_id": addressID},
	})
}
