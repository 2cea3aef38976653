package transport

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateIntentRequest struct {
	ShippingAddressID string `json:"shipping_address_id" validate:"omitempty,uuid"`
}

type ConfirmPaymentRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required,max=255"`
}

type PlaceOrderRequest struct {
	PaymentIntentID   string `json:"payment_intent_id" validate:"required,max=255"`
	ShippingAddressID string `json:"shipping_address_id" validate:"required,uuid"`
	Notes             string `json:"notes" validate:"max=1000"`
}

// CheckoutHandler exposes the checkout flow: quote, payment intent, confirmation and order placement.
type CheckoutHandler struct {
	checkout service.CheckoutService
	logger   *zap.Logger
}

func NewCheckoutHandler(checkout service.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, logger: logger}
}

func (h *CheckoutHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Route("/api/checkout", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(guards.Optional)
			r.Get("/quote", h.Quote)
			r.Post("/payment-intents", h.CreateIntent)
			r.Put("/payment-intents/{intentID}", h.UpdateIntent)
			r.Post("/payment-intents/{intentID}/confirm", h.ConfirmPayment)
		})
		r.Group(func(r chi.Router) {
			r.Use(guards.Auth)
			r.Post("/orders", h.PlaceOrder)
		})
	})
}

// Quote validates the cart and returns its totals.
func (h *CheckoutHandler) Quote(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	view, err := h.checkout.Quote(r.Context(), owner)
	if err != nil {
		writeServiceError(w, h.logger, "Checkout validation failed", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, view)
}

func (h *CheckoutHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req CreateIntentRequest
	if r.ContentLength != 0 && !decodeRequest(w, r, h.logger, &req) {
		return
	}
	addressID, _ := optionalUUID(req.ShippingAddressID)

	result, err := h.checkout.CreateIntent(r.Context(), owner, addressID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to create payment intent", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, result)
}

func (h *CheckoutHandler) UpdateIntent(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req CreateIntentRequest
	if r.ContentLength != 0 && !decodeRequest(w, r, h.logger, &req) {
		return
	}
	addressID, _ := optionalUUID(req.ShippingAddressID)

	result, err := h.checkout.UpdateIntent(r.Context(), owner, sessionOwner(r), chi.URLParam(r, "intentID"), addressID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to update payment intent", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, result)
}

func (h *CheckoutHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req ConfirmPaymentRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	result, err := h.checkout.ConfirmPayment(r.Context(), owner, sessionOwner(r), chi.URLParam(r, "intentID"), req.PaymentMethodID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to confirm payment", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, result)
}

// PlaceOrder turns a succeeded payment intent into an order. Replaying the request
// returns the same order. An intent paid as a guest is claimed by sending the guest's
// X-Session-ID along with the bearer token.
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req PlaceOrderRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	order, err := h.checkout.PlaceOrder(r.Context(), actor.UserID, service.PlaceOrderInput{
		PaymentIntentID:   req.PaymentIntentID,
		ShippingAddressID: uuid.MustParse(req.ShippingAddressID),
		Notes:             req.Notes,
		Guest:             sessionOwner(r),
	})
	if err != nil {
		writeServiceError(w, h.logger, "Failed to place order", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, order)
}
