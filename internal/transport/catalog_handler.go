package transport

import (
	"net/http"
	"strings"

	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CatalogHandler serves public product and category reads.
type CatalogHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

func NewCatalogHandler(catalog service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/products", h.ListProducts)
	r.Get("/api/products/{productID}", h.GetProduct)
	r.Get("/api/categories", h.ListCategories)
}

// ListProducts accepts page, page_size, category_id, sort_by and sort_order query parameters.
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	categoryID, err := optionalUUID(q.Get("category_id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid category_id")
		return
	}
	page, pageSize := pageParams(r)
	sortOrder := repository.SortOrderDesc
	if strings.EqualFold(q.Get("sort_order"), "asc") {
		sortOrder = repository.SortOrderAsc
	}

	products, total, err := h.catalog.ListProducts(r.Context(), service.ProductQuery{
		CategoryID: categoryID,
		Page:       page,
		PageSize:   pageSize,
		SortBy:     q.Get("sort_by"),
		SortOrder:  sortOrder,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list products", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, PageResponse{Items: products, Total: total, Page: page, PageSize: pageSize})
}

func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathUUID(w, r, "productID")
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(r.Context(), productID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get product", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list categories", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, categories)
}
