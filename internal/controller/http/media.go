package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/neo-gateway/internal/domain/catalog/entity"
	"github.com/vadim/neo-gateway/internal/domain/catalog/service"
	"github.com/vadim/neo-gateway/internal/httpx/response"
)

// MaxUploadSize is the maximum allowed image upload (8MB, the Messenger attachment limit)
const MaxUploadSize = 8 << 20

// MediaLibrary defines the tenant media library operations
type MediaLibrary interface {
	UploadMedia(ctx context.Context, in service.UploadMediaInput) (*entity.MediaAsset, error)
	ListMedia(ctx context.Context, tenantID string) ([]entity.MediaAsset, error)
	DeleteMedia(ctx context.Context, tenantID, ref string) error
}

// MediaHandler handles media library HTTP requests
type MediaHandler struct {
	library MediaLibrary
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(library MediaLibrary) *MediaHandler {
	return &MediaHandler{library: library}
}

// RegisterRoutes registers media routes
func (h *MediaHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tenants/{tenantId}/media", h.List())
	r.Post("/tenants/{tenantId}/media", h.Upload())
	r.Delete("/tenants/{tenantId}/media/{ref}", h.Delete())
}

// Upload handles POST /admin/tenants/{tenantId}/media
//
// Multipart form: "file" is the image, "ref" the name SEND_IMAGE tokens use.
func (h *MediaHandler) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+1<<20)

		if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
			response.BadRequest(w, "file too large or invalid multipart form")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			response.BadRequest(w, "missing file in request")
			return
		}
		defer file.Close()

		ref := strings.TrimSpace(r.FormValue("ref"))
		if ref == "" {
			ref = strings.TrimSuffix(header.Filename, extOf(header.Filename))
		}

		asset, err := h.library.UploadMedia(r.Context(), service.UploadMediaInput{
			TenantID:    chi.URLParam(r, "tenantId"),
			Ref:         ref,
			Reader:      file,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Filename:    header.Filename,
		})
		if err != nil {
			handleCatalogError(w, err)
			return
		}

		response.Created(w, asset)
	}
}

// List handles GET /admin/tenants/{tenantId}/media
func (h *MediaHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assets, err := h.library.ListMedia(r.Context(), chi.URLParam(r, "tenantId"))
		if err != nil {
			handleCatalogError(w, err)
			return
		}

		response.OK(w, map[string]any{
			"media": assets,
			"total": len(assets),
		})
	}
}

// Delete handles DELETE /admin/tenants/{tenantId}/media/{ref}
func (h *MediaHandler) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.library.DeleteMedia(r.Context(), chi.URLParam(r, "tenantId"), chi.URLParam(r, "ref")); err != nil {
			handleCatalogError(w, err)
			return
		}
		response.NoContent(w)
	}
}

func extOf(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i > 0 {
		return filename[i:]
	}
	return ""
}

func handleCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrItemNotFound),
		errors.Is(err, entity.ErrMediaNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, entity.ErrItemExists),
		errors.Is(err, entity.ErrMediaExists):
		response.Conflict(w, err.Error())
	case errors.Is(err, entity.ErrEmptySKU),
		errors.Is(err, entity.ErrEmptyItemName),
		errors.Is(err, entity.ErrNegativePrice),
		errors.Is(err, entity.ErrEmptyRef),
		errors.Is(err, entity.ErrItemInactive):
		response.BadRequest(w, err.Error())
	case errors.Is(err, entity.ErrUnsupportedMedia):
		response.UnsupportedMediaType(w, err.Error())
	case errors.Is(err, entity.ErrStorageDisabled):
		response.Unavailable(w, err.Error())
	default:
		response.InternalError(w, "internal server error")
	}
}
