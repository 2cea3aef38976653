package transport

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AddCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0,lte=1000"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0,lte=1000"`
}

// CartHandler serves the cart of the signed-in user or of the guest session.
type CartHandler struct {
	carts  service.CartService
	logger *zap.Logger
}

func NewCartHandler(carts service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

func (h *CartHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(guards.Optional)
		r.Get("/", h.Get)
		r.Delete("/", h.Clear)
		r.Post("/items", h.Add)
		r.Put("/items/{itemID}", h.Update)
		r.Delete("/items/{itemID}", h.Remove)
	})
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	view, err := h.carts.Get(r.Context(), owner)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to load cart", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, view)
}

func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req AddCartItemRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	line, err := h.carts.Add(r.Context(), owner, uuid.MustParse(req.ProductID), req.Quantity)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to add cart item", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, line)
}

func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	lineID, ok := pathUUID(w, r, "itemID")
	if !ok {
		return
	}
	var req UpdateCartItemRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	line, err := h.carts.Update(r.Context(), owner, lineID, req.Quantity)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to update cart item", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, line)
}

func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	lineID, ok := pathUUID(w, r, "itemID")
	if !ok {
		return
	}

	if err := h.carts.Remove(r.Context(), owner, lineID); err != nil {
		writeServiceError(w, h.logger, "Failed to remove cart item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if err := h.carts.Clear(r.Context(), owner); err != nil {
		writeServiceError(w, h.logger, "Failed to clear cart", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
