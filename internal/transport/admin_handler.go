package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type UpdateStatusRequest struct {
	Status         string  `json:"status" validate:"required,order_status"`
	TrackingNumber *string `json:"tracking_number" validate:"omitempty,max=100"`
	Note           string  `json:"note" validate:"max=500"`
}

type RefundRequest struct {
	// Amount is a decimal string; empty refunds the order total.
	Amount string `json:"amount" validate:"omitempty,money"`
	Reason string `json:"reason" validate:"max=500"`
}

type SetInventoryRequest struct {
	Quantity          *int `json:"quantity" validate:"required,gte=0"`
	LowStockThreshold *int `json:"low_stock_threshold" validate:"omitempty,gte=0"`
}

// AdminHandler exposes back-office order and inventory operations.
type AdminHandler struct {
	orders    service.OrderService
	inventory service.InventoryService
	logger    *zap.Logger
}

func NewAdminHandler(orders service.OrderService, inventory service.InventoryService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{orders: orders, inventory: inventory, logger: logger}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(guards.Auth, guards.Admin)
		r.Put("/orders/{orderID}/status", h.UpdateStatus)
		r.Post("/orders/{orderID}/refund", h.Refund)
		r.Get("/inventory/low-stock", h.LowStock)
		r.Get("/inventory/{productID}", h.GetInventory)
		r.Put("/inventory/{productID}", h.SetInventory)
	})
}

func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	order, err := h.orders.AdminUpdateStatus(r.Context(), actor, orderID, service.StatusUpdate{
		Status:         domain.OrderStatus(req.Status),
		TrackingNumber: req.TrackingNumber,
		Note:           req.Note,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Failed to update order status", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

func (h *AdminHandler) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}
	var req RefundRequest
	if r.ContentLength != 0 && !decodeRequest(w, r, h.logger, &req) {
		return
	}

	var amount *decimal.Decimal
	if req.Amount != "" {
		parsed := decimal.RequireFromString(req.Amount)
		amount = &parsed
	}

	order, err := h.orders.Refund(r.Context(), actor, orderID, amount, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to refund order", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

func (h *AdminHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathUUID(w, r, "productID")
	if !ok {
		return
	}
	level, err := h.inventory.Level(r.Context(), productID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get inventory level", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, level)
}

func (h *AdminHandler) SetInventory(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathUUID(w, r, "productID")
	if !ok {
		return
	}
	var req SetInventoryRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	level, err := h.inventory.SetLevel(r.Context(), productID, *req.Quantity, req.LowStockThreshold)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to set inventory level", err)
		return
	}
	h.logger.Info("Inventory level set",
		zap.String("product_id", productID.String()),
		zap.Int("quantity", level.Quantity),
	)
	middleware.RespondWithJSON(w, http.StatusOK, level)
}

func (h *AdminHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.inventory.LowStock(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list low stock", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}
