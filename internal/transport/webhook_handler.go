package transport

import (
	"io"
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SignatureHeader is where the gateway puts the webhook signature.
const SignatureHeader = "Stripe-Signature"

const maxWebhookBody = 64 << 10

// WebhookHandler receives payment gateway events. It must see the raw body for signature checks.
type WebhookHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

func NewWebhookHandler(orders service.OrderService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{orders: orders, logger: logger}
}

func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/webhooks/payments", h.Handle)
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "unreadable webhook body")
		return
	}

	if err := h.orders.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		writeServiceError(w, h.logger, "Webhook handling failed", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
