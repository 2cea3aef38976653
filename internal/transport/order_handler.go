package transport

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// OrderHandler serves customers' own orders.
type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

func (h *OrderHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(guards.Auth)
		r.Get("/", h.List)
		r.Get("/{orderID}", h.Get)
		r.Post("/{orderID}/cancel", h.Cancel)
	})
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, pageSize := pageParams(r)

	orders, total, err := h.orders.ListForUser(r.Context(), actor.UserID, page, pageSize)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list orders", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, PageResponse{Items: orders, Total: total, Page: page, PageSize: pageSize})
}

// Get returns one order with items and status history. Admins may read any order.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.Get(r.Context(), actor, orderID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get order", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.Cancel(r.Context(), actor, orderID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to cancel order", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}
