package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vadim/neo-gateway/internal/domain/catalog/entity"
	"github.com/vadim/neo-gateway/internal/domain/catalog/service"
	"github.com/vadim/neo-gateway/internal/httpx/response"
)

// CatalogAdmin defines catalog item management
type CatalogAdmin interface {
	CreateItem(ctx context.Context, in service.CreateItemInput) (*entity.Item, error)
	UpdateItem(ctx context.Context, in service.UpdateItemInput) (*entity.Item, error)
	ListItems(ctx context.Context, tenantID string, limit, offset int) ([]entity.Item, error)
}

// CatalogHandler handles HTTP requests for tenant catalogs
type CatalogHandler struct {
	catalog  CatalogAdmin
	validate *validator.Validate
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog CatalogAdmin) *CatalogHandler {
	return &CatalogHandler{
		catalog:  catalog,
		validate: validator.New(),
	}
}

// RegisterRoutes registers catalog routes
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tenants/{tenantId}/catalog/items", h.ListItems())
	r.Post("/tenants/{tenantId}/catalog/items", h.CreateItem())
	r.Patch("/tenants/{tenantId}/catalog/items/{itemId}", h.UpdateItem())
}

// CreateItemRequest represents the request body for creating a catalog item
type CreateItemRequest struct {
	SKU        string `json:"sku" validate:"required,max=100"`
	Name       string `json:"name" validate:"required,max=300"`
	PriceMinor int64  `json:"price_minor" validate:"gte=0"`
	Currency   string `json:"currency" validate:"omitempty,len=3"`
	ImageRef   string `json:"image_ref"`
	Active     *bool  `json:"active"`
}

// CreateItem handles POST /admin/tenants/{tenantId}/catalog/items
func (h *CatalogHandler) CreateItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateItemRequest
		if !decodeAndValidate(w, r, h.validate, &req) {
			return
		}

		item, err := h.catalog.CreateItem(r.Context(), service.CreateItemInput{
			TenantID:   chi.URLParam(r, "tenantId"),
			SKU:        req.SKU,
			Name:       req.Name,
			PriceMinor: req.PriceMinor,
			Currency:   req.Currency,
			ImageRef:   req.ImageRef,
			Active:     req.Active,
		})
		if err != nil {
			handleCatalogError(w, err)
			return
		}
		response.Created(w, item)
	}
}

// UpdateItemRequest represents a partial update of a catalog item
type UpdateItemRequest struct {
	Name       *string `json:"name" validate:"omitempty,max=300"`
	PriceMinor *int64  `json:"price_minor" validate:"omitempty,gte=0"`
	Currency   *string `json:"currency" validate:"omitempty,len=3"`
	ImageRef   *string `json:"image_ref"`
	Active     *bool   `json:"active"`
}

// UpdateItem handles PATCH /admin/tenants/{tenantId}/catalog/items/{itemId}
func (h *CatalogHandler) UpdateItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateItemRequest
		if !decodeAndValidate(w, r, h.validate, &req) {
			return
		}

		item, err := h.catalog.UpdateItem(r.Context(), service.UpdateItemInput{
			TenantID:   chi.URLParam(r, "tenantId"),
			ID:         chi.URLParam(r, "itemId"),
			Name:       req.Name,
			PriceMinor: req.PriceMinor,
			Currency:   req.Currency,
			ImageRef:   req.ImageRef,
			Active:     req.Active,
		})
		if err != nil {
			handleCatalogError(w, err)
			return
		}
		response.OK(w, item)
	}
}

// ListItems handles GET /admin/tenants/{tenantId}/catalog/items
func (h *CatalogHandler) ListItems() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r, 100, 500)

		items, err := h.catalog.ListItems(r.Context(), chi.URLParam(r, "tenantId"), limit, offset)
		if err != nil {
			handleCatalogError(w, err)
			return
		}

		response.OK(w, map[string]any{
			"items": items,
			"total": len(items),
		})
	}
}
