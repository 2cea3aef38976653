package transport_test

import (
	"net/http"
	"regexp"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	a := newAPI(t)
	w := a.do(t, call{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestCart_GuestSessionTotals(t *testing.T) {
	a := newAPI(t)
	p1 := a.seedProduct(t, "25.00", 10)
	p2 := a.seedProduct(t, "9.99", 10)

	require.Equal(t, http.StatusCreated, a.addToCart(t, "", "guest-1", p1, 2).Code)
	require.Equal(t, http.StatusCreated, a.addToCart(t, "", "guest-1", p2, 1).Code)

	w := a.do(t, call{method: http.MethodGet, path: "/api/cart", session: "guest-1"})
	require.Equal(t, http.StatusOK, w.Code)
	cart := decode[map[string]interface{}](t, w)
	require.EqualValues(t, 3, cart["item_count"])
	require.True(t, decimal.RequireFromString("75.99").Equal(decimal.RequireFromString(cart["total"].(string))))
	require.True(t, decimal.RequireFromString("6.00").Equal(decimal.RequireFromString(cart["tax"].(string))))
}

func TestCart_RequiresAnOwner(t *testing.T) {
	a := newAPI(t)
	w := a.do(t, call{method: http.MethodGet, path: "/api/cart"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCart_InsufficientStockIsUnprocessable(t *testing.T) {
	a := newAPI(t)
	product := a.seedProduct(t, "5.00", 2)

	w := a.addToCart(t, "", "guest-2", product, 3)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decode[errorEnvelope](t, w)
	require.Equal(t, "insufficient_stock", env.Error.Code)
	require.Equal(t, product.String(), env.Error.Details["product_id"])
	require.EqualValues(t, 2, env.Error.Details["available"])
	require.EqualValues(t, 3, env.Error.Details["requested"])
}

func TestCart_ForeignLineIsForbidden(t *testing.T) {
	a := newAPI(t)
	product := a.seedProduct(t, "5.00", 10)

	w := a.addToCart(t, "", "guest-owner", product, 1)
	require.Equal(t, http.StatusCreated, w.Code)
	line := decode[domain.CartLine](t, w)

	w = a.do(t, call{method: http.MethodPut, path: "/api/cart/items/" + line.ID.String(), session: "guest-intruder",
		body: map[string]int{"quantity": 5}})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "forbidden", decode[errorEnvelope](t, w).Error.Code)

	w = a.do(t, call{method: http.MethodDelete, path: "/api/cart/items/" + line.ID.String(), session: "guest-intruder"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, call{method: http.MethodGet, path: "/api/cart", session: "guest-owner"})
	require.EqualValues(t, 1, decode[map[string]interface{}](t, w)["item_count"])
}

func TestCheckout_QuoteEmptyCart(t *testing.T) {
	a := newAPI(t)
	w := a.do(t, call{method: http.MethodGet, path: "/api/checkout/quote", session: "guest-empty"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "empty_cart", decode[errorEnvelope](t, w).Error.Code)
}

func TestCheckout_PlaceOrderIsIdempotent(t *testing.T) {
	a := newAPI(t)
	product := a.seedProduct(t, "25.00", 5)
	_, token := a.signIn(t, "user")
	addressID := a.createAddress(t, token)
	require.Equal(t, http.StatusCreated, a.addToCart(t, token, "", product, 3).Code)

	intentID, w := a.checkout(t, token, addressID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[domain.Order](t, w)
	require.Regexp(t, regexp.MustCompile(`^ORD-[0-9A-Z]{26}$`), order.OrderNumber)
	require.Equal(t, domain.OrderStatusProcessing, order.Status)
	require.Equal(t, 2, a.stock(t, product))

	replay := a.do(t, call{method: http.MethodPost, path: "/api/checkout/orders", token: token,
		body: map[string]string{"payment_intent_id": intentID, "shipping_address_id": addressID}})
	require.Equal(t, http.StatusCreated, replay.Code)
	require.Equal(t, order.ID, decode[domain.Order](t, replay).ID)
	require.Equal(t, 2, a.stock(t, product))
}

func TestCheckout_PlaceOrderRequiresSignIn(t *testing.T) {
	a := newAPI(t)
	w := a.do(t, call{method: http.MethodPost, path: "/api/checkout/orders", session: "guest",
		body: map[string]string{"payment_intent_id": "pi_x", "shipping_address_id": "4b7f0c62-8a55-4c8f-9a43-0f0e0d1c2b3a"}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckout_AmountMismatch(t *testing.T) {
	a := newAPI(t)
	product := a.seedProduct(t, "25.00", 5)
	_, token := a.signIn(t, "user")
	addressID := a.createAddress(t, token)
	require.Equal(t, http.StatusCreated, a.addToCart(t, token, "", product, 1).Code)

	w := a.do(t, call{method: http.MethodPost, path: "/api/checkout/payment-intents", token: token})
	require.Equal(t, http.StatusCreated, w.Code)
	intent := decode[intentBody](t, w)
	a.gateway.SetAmount(intent.PaymentIntentID, 100)
	a.gateway.SetStatus(intent.PaymentIntentID, payment.IntentSucceeded)

	w = a.do(t, call{method: http.MethodPost, path: "/api/checkout/orders", token: token,
		body: map[string]string{"payment_intent_id": intent.PaymentIntentID, "shipping_address_id": addressID}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode[errorEnvelope](t, w)
	require.Equal(t, "amount_mismatch", env.Error.Code)
	require.Equal(t, "1.00", env.Error.Details["payment_intent_amount"])
	require.Equal(t, "37.50", env.Error.Details["cart_total"])
	require.Equal(t, 5, a.stock(t, product))
}

func TestCheckout_GatewayFailureIsBadGateway(t *testing.T) {
	a := newAPI(t)
	product := a.seedProduct(t, "25.00", 5)
	require.Equal(t, http.StatusCreated, a.addToCart(t, "", "guest-gw", product, 1).Code)

	a.gateway.Err = payment.ErrInvalidRequest
	w := a.do(t, call{method: http.MethodPost, path: "/api/checkout/payment-intents", session: "guest-gw"})
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Equal(t, "gateway_error", decode[errorEnvelope](t, w).Error.Code)
}

func TestOrders_CancelRestoresStockAndBlocksRepeat(t *testing.T) {
	a := newAPI(t)
	product := a.seedProduct(t, "10.00", 5)
	_, token := a.signIn(t, "user")
	addressID := a.createAddress(t, token)
	require.Equal(t, http.StatusCreated, a.addToCart(t, token, "", product, 3).Code)
	_, w := a.checkout(t, token, addressID)
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode[domain.Order](t, w)

	path := "/api/orders/" + order.ID.String() + "/cancel"
	w = a.do(t, call{method: http.MethodPost, path: path, token: token})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, domain.OrderStatusCancelled, decode[domain.Order](t, w).Status)
	require.Equal(t, 5, a.stock(t, product))

	w = a.do(t, call{method: http.MethodPost, path: path, token: token})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "cannot_cancel", decode[errorEnvelope](t, w).Error.Code)
	require.Equal(t, 5, a.stock(t, product))
}

func TestOrders_OtherCustomersOrderIsForbidden(t *testing.T) {
	a := newAPI(t)
	product := a.seedProduct(t, "10.00", 5)
	_, owner := a.signIn(t, "user")
	_, stranger := a.signIn(t, "user")
	require.Equal(t, http.StatusCreated, a.addToCart(t, owner, "", product, 1).Code)
	_, w := a.checkout(t, owner, a.createAddress(t, owner))
	order := decode[domain.Order](t, w)

	w = a.do(t, call{method: http.MethodGet, path: "/api/orders/" + order.ID.String(), token: stranger})
	require.Equal(t, http.StatusForbidden, w.Code)
	w = a.do(t, call{method: http.MethodPost, path: "/api/orders/" + order.ID.String() + "/cancel", token: stranger})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, call{method: http.MethodGet, path: "/api/orders", token: owner})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, decode[map[string]interface{}](t, w)["total"])
}

func TestAdmin_StatusRefundAndInventory(t *testing.T) {
	a := newAPI(t)
	product := a.seedProduct(t, "10.00", 5)
	_, customer := a.signIn(t, "user")
	_, admin := a.signIn(t, "admin")
	require.Equal(t, http.StatusCreated, a.addToCart(t, customer, "", product, 2).Code)
	intentID, w := a.checkout(t, customer, a.createAddress(t, customer))
	order := decode[domain.Order](t, w)
	base := "/api/admin/orders/" + order.ID.String()

	w = a.do(t, call{method: http.MethodPut, path: base + "/status", token: customer, body: map[string]string{"status": "shipped"}})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, call{method: http.MethodPut, path: base + "/status", token: admin, body: map[string]string{"status": "teleported"}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, call{method: http.MethodPut, path: base + "/status", token: admin,
		body: map[string]string{"status": "shipped", "tracking_number": " 1Z999 "}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "1Z999", decode[domain.Order](t, w).TrackingNumber)

	w = a.do(t, call{method: http.MethodPost, path: base + "/refund", token: admin, body: map[string]string{"reason": "damaged"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, domain.OrderStatusRefunded, decode[domain.Order](t, w).Status)
	require.Equal(t, 5, a.stock(t, product))
	require.EqualValues(t, 3200, a.gateway.RefundedAmount(intentID))

	w = a.do(t, call{method: http.MethodPost, path: base + "/refund", token: admin})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 5, a.stock(t, product))
	require.EqualValues(t, 3200, a.gateway.RefundedAmount(intentID))

	w = a.do(t, call{method: http.MethodPut, path: "/api/admin/inventory/" + product.String(), token: admin,
		body: map[string]int{"quantity": 1, "low_stock_threshold": 3}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, a.stock(t, product))

	w = a.do(t, call{method: http.MethodGet, path: "/api/admin/inventory/low-stock", token: admin})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]map[string]interface{}](t, w), 1)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	a := newAPI(t)
	body, _, err := a.gateway.SignedEvent(payment.EventPaymentIntentSucceeded, "pi_unknown", 100)
	require.NoError(t, err)

	w := a.do(t, call{method: http.MethodPost, path: "/api/webhooks/payments", body: body,
		headers: map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_signature", decode[errorEnvelope](t, w).Error.Code)
}

func TestWebhook_ChargeRefundedUpdatesOrder(t *testing.T) {
	a := newAPI(t)
	product := a.seedProduct(t, "10.00", 5)
	_, token := a.signIn(t, "user")
	require.Equal(t, http.StatusCreated, a.addToCart(t, token, "", product, 1).Code)
	intentID, w := a.checkout(t, token, a.createAddress(t, token))
	order := decode[domain.Order](t, w)

	body, header, err := a.gateway.SignedEvent(payment.EventChargeRefunded, intentID, 2100)
	require.NoError(t, err)
	w = a.do(t, call{method: http.MethodPost, path: "/api/webhooks/payments", body: body,
		headers: map[string]string{"Stripe-Signature": header}})
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, call{method: http.MethodGet, path: "/api/orders/" + order.ID.String(), token: token})
	require.Equal(t, domain.OrderStatusRefunded, decode[domain.Order](t, w).Status)
	require.Equal(t, 5, a.stock(t, product))
}

func TestCatalog_ListAndGet(t *testing.T) {
	a := newAPI(t)
	product := a.seedProduct(t, "10.00", 5)

	w := a.do(t, call{method: http.MethodGet, path: "/api/products?page=1&page_size=10"})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, decode[map[string]interface{}](t, w)["total"])

	w = a.do(t, call{method: http.MethodGet, path: "/api/products/" + product.String()})
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, call{method: http.MethodGet, path: "/api/products/not-a-uuid"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, call{method: http.MethodGet, path: "/api/products?category_id=4b7f0c62-8a55-4c8f-9a43-0f0e0d1c2b3a"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckout_GuestPaysThenSignsInToPlaceOrder(t *testing.T) {
	a := newAPI(t)
	p := a.seedProduct(t, "10.00", 10)
	const session = "guest-pays-first"

	require.Equal(t, http.StatusCreated, a.addToCart(t, "", session, p, 2).Code)
	w := a.do(t, call{method: http.MethodPost, path: "/api/checkout/payment-intents", session: session})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	intent := decode[intentBody](t, w)

	w = a.do(t, call{
		method:  http.MethodPost,
		path:    "/api/checkout/payment-intents/" + intent.PaymentIntentID + "/confirm",
		session: session,
		body:    map[string]string{"payment_method_id": "pm_card_visa"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, string(payment.IntentSucceeded), decode[intentBody](t, w).Status)

	user := a.seedAccount(t, domain.RoleUser)
	token := a.login(t, user.Email, session).AccessToken
	addressID := a.createAddress(t, token)
	order := map[string]string{"payment_intent_id": intent.PaymentIntentID, "shipping_address_id": addressID}

	w = a.do(t, call{method: http.MethodPost, path: "/api/checkout/orders", token: token, body: order})
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = a.do(t, call{method: http.MethodPost, path: "/api/checkout/orders", token: token, session: session, body: order})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placed := decode[domain.Order](t, w)
	require.Equal(t, user.ID, placed.UserID)
	require.Equal(t, intent.PaymentIntentID, placed.PaymentIntentID)
	require.Equal(t, 8, a.stock(t, p))
}
