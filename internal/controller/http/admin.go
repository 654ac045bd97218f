package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
	"github.com/vadim/neo-gateway/internal/domain/tenant/entity"
	"github.com/vadim/neo-gateway/internal/domain/tenant/service"
	"github.com/vadim/neo-gateway/internal/httpx/response"
)

// ActorHeader names the operator performing an audited admin request
const ActorHeader = "X-Admin-Actor"

// TenantAdmin defines the tenant and channel administration operations
type TenantAdmin interface {
	CreateTenant(ctx context.Context, in service.CreateTenantInput) (*entity.Tenant, error)
	GetTenant(ctx context.Context, id string) (*entity.Tenant, error)
	ListTenants(ctx context.Context, limit, offset int) ([]entity.Tenant, error)
	SetStatus(ctx context.Context, in service.SetStatusInput) (*entity.Tenant, error)
	UpdateProfile(ctx context.Context, in service.UpdateProfileInput) (*entity.Tenant, error)
	RegisterChannelAccount(ctx context.Context, in service.RegisterChannelAccountInput) (*entity.ChannelAccount, error)
	ReassignChannelAccount(ctx context.Context, in service.ReassignChannelAccountInput) (*entity.ChannelAccount, error)
	UpdateAccessToken(ctx context.Context, in service.UpdateAccessTokenInput) error
	ListChannelAccounts(ctx context.Context, tenantID string) ([]entity.ChannelAccount, error)
	ListUnattributed(ctx context.Context, filter entity.UnattributedFilter) ([]entity.UnattributedEvent, error)
	DismissUnattributed(ctx context.Context, actor, id, note string) error
	ListAudit(ctx context.Context, tenantID string, limit, offset int) ([]entity.AuditEntry, error)
}

// AdminHandler handles HTTP requests of the tenant administration API
type AdminHandler struct {
	tenants  TenantAdmin
	validate *validator.Validate
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(tenants TenantAdmin) *AdminHandler {
	return &AdminHandler{
		tenants:  tenants,
		validate: validator.New(),
	}
}

// RequireAdminToken rejects requests without the configured bearer token.
// An empty token disables the admin API entirely.
func RequireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				response.Unauthorized(w, "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes registers admin routes
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tenants", h.ListTenants())
	r.Post("/tenants", h.CreateTenant())
	r.Get("/tenants/{tenantId}", h.GetTenant())
	r.Patch("/tenants/{tenantId}", h.UpdateTenant())
	r.Post("/tenants/{tenantId}/suspend", h.SetStatus(entity.StatusSuspended))
	r.Post("/tenants/{tenantId}/activate", h.SetStatus(entity.StatusActive))
	r.Get("/tenants/{tenantId}/channels", h.ListChannels())
	r.Post("/tenants/{tenantId}/channels", h.RegisterChannel())

	r.Get("/channels", h.ListChannels())
	r.Post("/channels/{accountId}/reassign", h.ReassignChannel())
	r.Put("/channels/{accountId}/token", h.UpdateToken())

	r.Get("/unattributed", h.ListUnattributed())
	r.Post("/unattributed/{id}/dismiss", h.DismissUnattributed())

	r.Get("/audit", h.ListAudit())
}

// CreateTenantRequest represents the request body for creating a tenant
type CreateTenantRequest struct {
	Name           string   `json:"name" validate:"required,max=200"`
	AgentSenderIDs []string `json:"agent_sender_ids" validate:"dive,required"`
	PersonaPrompt  string   `json:"persona_prompt" validate:"max=8000"`
	FallbackReply  string   `json:"fallback_reply" validate:"max=2000"`
}

// CreateTenant handles POST /admin/tenants
func (h *AdminHandler) CreateTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTenantRequest
		if !h.decode(w, r, &req) {
			return
		}

		t, err := h.tenants.CreateTenant(r.Context(), service.CreateTenantInput{
			Actor:          actor(r),
			Name:           req.Name,
			AgentSenderIDs: req.AgentSenderIDs,
			PersonaPrompt:  req.PersonaPrompt,
			FallbackReply:  req.FallbackReply,
		})
		if err != nil {
			handleAdminError(w, err)
			return
		}

		response.Created(w, t)
	}
}

// ListTenants handles GET /admin/tenants
func (h *AdminHandler) ListTenants() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r, 50, 200)

		tenants, err := h.tenants.ListTenants(r.Context(), limit, offset)
		if err != nil {
			handleAdminError(w, err)
			return
		}

		response.OK(w, map[string]any{
			"tenants": tenants,
			"total":   len(tenants),
		})
	}
}

// GetTenant handles GET /admin/tenants/{tenantId}
func (h *AdminHandler) GetTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := h.tenants.GetTenant(r.Context(), chi.URLParam(r, "tenantId"))
		if err != nil {
			handleAdminError(w, err)
			return
		}
		response.OK(w, t)
	}
}

// UpdateTenantRequest represents a partial update of a tenant; absent fields are kept
type UpdateTenantRequest struct {
	Name           *string  `json:"name" validate:"omitempty,max=200"`
	AgentSenderIDs []string `json:"agent_sender_ids" validate:"omitempty,dive,required"`
	PersonaPrompt  *string  `json:"persona_prompt" validate:"omitempty,max=8000"`
	FallbackReply  *string  `json:"fallback_reply" validate:"omitempty,max=2000"`
}

// UpdateTenant handles PATCH /admin/tenants/{tenantId}
func (h *AdminHandler) UpdateTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateTenantRequest
		if !h.decode(w, r, &req) {
			return
		}

		t, err := h.tenants.UpdateProfile(r.Context(), service.UpdateProfileInput{
			Actor:          actor(r),
			TenantID:       chi.URLParam(r, "tenantId"),
			Name:           req.Name,
			AgentSenderIDs: req.AgentSenderIDs,
			PersonaPrompt:  req.PersonaPrompt,
			FallbackReply:  req.FallbackReply,
		})
		if err != nil {
			handleAdminError(w, err)
			return
		}
		response.OK(w, t)
	}
}

// StatusRequest carries the optional reason of a status change
type StatusRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// SetStatus handles POST /admin/tenants/{tenantId}/suspend and /activate
func (h *AdminHandler) SetStatus(status entity.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StatusRequest
		if r.ContentLength != 0 && !h.decode(w, r, &req) {
			return
		}

		t, err := h.tenants.SetStatus(r.Context(), service.SetStatusInput{
			Actor:    actor(r),
			TenantID: chi.URLParam(r, "tenantId"),
			Status:   status,
			Reason:   req.Reason,
		})
		if err != nil {
			handleAdminError(w, err)
			return
		}
		response.OK(w, t)
	}
}

// ListChannels handles GET /admin/channels and GET /admin/tenants/{tenantId}/channels
func (h *AdminHandler) ListChannels() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := h.tenants.ListChannelAccounts(r.Context(), chi.URLParam(r, "tenantId"))
		if err != nil {
			handleAdminError(w, err)
			return
		}

		response.OK(w, map[string]any{
			"channels": accounts,
			"total":    len(accounts),
		})
	}
}

// RegisterChannelRequest represents the request body for provisioning a channel account
type RegisterChannelRequest struct {
	ChannelType string `json:"channel_type" validate:"required,oneof=facebook messenger whatsapp"`
	ExternalID  string `json:"external_id" validate:"required"`
	DisplayName string `json:"display_name"`
	AccessToken string `json:"access_token"`
}

// RegisterChannel handles POST /admin/tenants/{tenantId}/channels
func (h *AdminHandler) RegisterChannel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterChannelRequest
		if !h.decode(w, r, &req) {
			return
		}

		channelType, err := channel.ParseType(req.ChannelType)
		if err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		acc, err := h.tenants.RegisterChannelAccount(r.Context(), service.RegisterChannelAccountInput{
			Actor:       actor(r),
			TenantID:    chi.URLParam(r, "tenantId"),
			ChannelType: channelType,
			ExternalID:  req.ExternalID,
			DisplayName: req.DisplayName,
			AccessToken: req.AccessToken,
		})
		if err != nil {
			handleAdminError(w, err)
			return
		}
		response.Created(w, acc)
	}
}

// ReassignChannelRequest represents the request body for moving an account
type ReassignChannelRequest struct {
	TenantID string `json:"tenant_id" validate:"required,uuid"`
	Reason   string `json:"reason" validate:"max=500"`
}

// ReassignChannel handles POST /admin/channels/{accountId}/reassign
func (h *AdminHandler) ReassignChannel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReassignChannelRequest
		if !h.decode(w, r, &req) {
			return
		}

		acc, err := h.tenants.ReassignChannelAccount(r.Context(), service.ReassignChannelAccountInput{
			Actor:     actor(r),
			AccountID: chi.URLParam(r, "accountId"),
			TenantID:  req.TenantID,
			Reason:    req.Reason,
		})
		if err != nil {
			handleAdminError(w, err)
			return
		}
		response.OK(w, acc)
	}
}

// UpdateTokenRequest represents the request body for replacing an account credential
type UpdateTokenRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
}

// UpdateToken handles PUT /admin/channels/{accountId}/token
func (h *AdminHandler) UpdateToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateTokenRequest
		if !h.decode(w, r, &req) {
			return
		}

		err := h.tenants.UpdateAccessToken(r.Context(), service.UpdateAccessTokenInput{
			Actor:       actor(r),
			AccountID:   chi.URLParam(r, "accountId"),
			AccessToken: req.AccessToken,
		})
		if err != nil {
			handleAdminError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// ListUnattributed handles GET /admin/unattributed
func (h *AdminHandler) ListUnattributed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r, 50, 200)

		status := entity.UnattributedStatus(r.URL.Query().Get("status"))
		if status == "" {
			status = entity.UnattributedPendingReview
		}

		events, err := h.tenants.ListUnattributed(r.Context(), entity.UnattributedFilter{
			Status: status,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			handleAdminError(w, err)
			return
		}

		response.OK(w, map[string]any{
			"events": events,
			"total":  len(events),
		})
	}
}

// DismissRequest carries the reviewer's note
type DismissRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

// DismissUnattributed handles POST /admin/unattributed/{id}/dismiss
func (h *AdminHandler) DismissUnattributed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DismissRequest
		if r.ContentLength != 0 && !h.decode(w, r, &req) {
			return
		}

		if err := h.tenants.DismissUnattributed(r.Context(), actor(r), chi.URLParam(r, "id"), req.Note); err != nil {
			handleAdminError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// ListAudit handles GET /admin/audit
func (h *AdminHandler) ListAudit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r, 50, 200)

		entries, err := h.tenants.ListAudit(r.Context(), r.URL.Query().Get("tenant_id"), limit, offset)
		if err != nil {
			handleAdminError(w, err)
			return
		}

		response.OK(w, map[string]any{
			"entries": entries,
			"total":   len(entries),
		})
	}
}

// decode reads and validates a JSON body, writing a 400 on failure
func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeAndValidate(w, r, h.validate, dst)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "invalid JSON")
		return false
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			response.BadRequest(w, verrs[0].Field()+" failed on "+verrs[0].Tag())
			return false
		}
		response.BadRequest(w, err.Error())
		return false
	}
	return true
}

func actor(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get(ActorHeader)); a != "" {
		return a
	}
	return "admin"
}

// pagination reads limit/offset query parameters, capping limit at maxLimit
func pagination(r *http.Request, def, maxLimit int) (int, int) {
	limit := def
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = min(parsed, maxLimit)
		}
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func handleAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrTenantNotFound),
		errors.Is(err, entity.ErrChannelAccountNotFound),
		errors.Is(err, entity.ErrUnattributedNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, entity.ErrChannelAccountExists),
		errors.Is(err, entity.ErrSameTenant):
		response.Conflict(w, err.Error())
	case errors.Is(err, entity.ErrEmptyName),
		errors.Is(err, entity.ErrEmptyExternalID),
		errors.Is(err, entity.ErrInvalidStatus),
		errors.Is(err, entity.ErrEmptyActor),
		errors.Is(err, channel.ErrUnsupportedChannel):
		response.BadRequest(w, err.Error())
	default:
		response.InternalError(w, "internal server error")
	}
}
