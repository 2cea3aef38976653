package transport

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CreateAddressRequest struct {
	FullName   string `json:"full_name" validate:"required,max=200"`
	Line1      string `json:"line1" validate:"required,max=255"`
	Line2      string `json:"line2" validate:"max=255"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,len=2"`
	Phone      string `json:"phone" validate:"max=30"`
}

type AddressHandler struct {
	addresses service.AddressService
	logger    *zap.Logger
}

func NewAddressHandler(addresses service.AddressService, logger *zap.Logger) *AddressHandler {
	return &AddressHandler{addresses: addresses, logger: logger}
}

func (h *AddressHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Route("/api/addresses", func(r chi.Router) {
		r.Use(guards.Auth)
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Delete("/{addressID}", h.Delete)
	})
}

func (h *AddressHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	addresses, err := h.addresses.List(r.Context(), actor.UserID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list addresses", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, addresses)
}

func (h *AddressHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreateAddressRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	addr, err := h.addresses.Create(r.Context(), actor.UserID, service.AddressInput{
		FullName:   req.FullName,
		Line1:      req.Line1,
		Line2:      req.Line2,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		Phone:      req.Phone,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Failed to create address", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, addr)
}

func (h *AddressHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	addressID, ok := pathUUID(w, r, "addressID")
	if !ok {
		return
	}
	if err := h.addresses.Delete(r.Context(), actor.UserID, addressID); err != nil {
		writeServiceError(w, h.logger, "Failed to delete address", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
