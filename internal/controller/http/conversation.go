package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	action "github.com/vadim/neo-gateway/internal/domain/action/entity"
	catalog "github.com/vadim/neo-gateway/internal/domain/catalog/entity"
	"github.com/vadim/neo-gateway/internal/domain/conversation/entity"
	"github.com/vadim/neo-gateway/internal/domain/conversation/service"
	"github.com/vadim/neo-gateway/internal/httpx/response"
)

// ConversationReader defines the conversation read operations
type ConversationReader interface {
	ListConversations(ctx context.Context, in service.ListConversationsInput) (*service.ListConversationsOutput, error)
	GetConversation(ctx context.Context, tenantID, id string) (*entity.Conversation, error)
	ListMessages(ctx context.Context, in service.ListMessagesInput) (*service.ListMessagesOutput, error)
	Archive(ctx context.Context, tenantID, id string) error
}

// InvocationLister lists the action invocations of a conversation
type InvocationLister interface {
	ListByConversation(ctx context.Context, tenantID, conversationID string, limit, offset int) ([]action.Invocation, error)
}

// CartReader returns the cart of a conversation
type CartReader interface {
	Cart(ctx context.Context, conversationID string) ([]catalog.CartLine, error)
}

// ConversationHandler handles HTTP requests for the conversation read API
type ConversationHandler struct {
	conversations ConversationReader
	invocations   InvocationLister
	carts         CartReader
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversations ConversationReader, invocations InvocationLister, carts CartReader) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		invocations:   invocations,
		carts:         carts,
	}
}

// RegisterRoutes registers conversation routes
func (h *ConversationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/tenants/{tenantId}/conversations", func(r chi.Router) {
		r.Get("/", h.GetConversations())
		r.Get("/{conversationId}", h.GetConversation())
		r.Get("/{conversationId}/messages", h.GetMessages())
		r.Get("/{conversationId}/invocations", h.GetInvocations())
		r.Get("/{conversationId}/cart", h.GetCart())
		r.Post("/{conversationId}/archive", h.Archive())
	})
}

// GetConversationsResponse represents the response for getting conversations
type GetConversationsResponse struct {
	Conversations []entity.Conversation `json:"conversations"`
	Total         int64                 `json:"total"`
	HasMore       bool                  `json:"has_more"`
}

// GetConversations handles GET /tenants/{tenantId}/conversations
func (h *ConversationHandler) GetConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r, 50, 100)

		result, err := h.conversations.ListConversations(r.Context(), service.ListConversationsInput{
			TenantID:        chi.URLParam(r, "tenantId"),
			IncludeArchived: r.URL.Query().Get("include_archived") == "true",
			Limit:           limit,
			Offset:          offset,
		})
		if err != nil {
			handleConversationError(w, err)
			return
		}

		conversations := result.Conversations
		if conversations == nil {
			conversations = []entity.Conversation{}
		}
		response.OK(w, GetConversationsResponse{
			Conversations: conversations,
			Total:         result.Total,
			HasMore:       result.HasMore,
		})
	}
}

// GetConversation handles GET /tenants/{tenantId}/conversations/{conversationId}
func (h *ConversationHandler) GetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := h.conversations.GetConversation(r.Context(), chi.URLParam(r, "tenantId"), chi.URLParam(r, "conversationId"))
		if err != nil {
			handleConversationError(w, err)
			return
		}
		response.OK(w, conv)
	}
}

// GetMessagesResponse represents the response for getting messages
type GetMessagesResponse struct {
	Messages []entity.Message `json:"messages"`
	Total    int64            `json:"total"`
	HasMore  bool             `json:"has_more"`
}

// GetMessages handles GET /tenants/{tenantId}/conversations/{conversationId}/messages
func (h *ConversationHandler) GetMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r, 50, 100)

		result, err := h.conversations.ListMessages(r.Context(), service.ListMessagesInput{
			TenantID:       chi.URLParam(r, "tenantId"),
			ConversationID: chi.URLParam(r, "conversationId"),
			Limit:          limit,
			Offset:         offset,
		})
		if err != nil {
			handleConversationError(w, err)
			return
		}

		messages := result.Messages
		if messages == nil {
			messages = []entity.Message{}
		}
		response.OK(w, GetMessagesResponse{
			Messages: messages,
			Total:    result.Total,
			HasMore:  result.HasMore,
		})
	}
}

// GetInvocations handles GET /tenants/{tenantId}/conversations/{conversationId}/invocations
func (h *ConversationHandler) GetInvocations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := chi.URLParam(r, "tenantId")
		conversationID := chi.URLParam(r, "conversationId")

		if _, err := h.conversations.GetConversation(r.Context(), tenantID, conversationID); err != nil {
			handleConversationError(w, err)
			return
		}

		limit, offset := pagination(r, 50, 200)
		invocations, err := h.invocations.ListByConversation(r.Context(), tenantID, conversationID, limit, offset)
		if err != nil {
			handleConversationError(w, err)
			return
		}

		response.OK(w, map[string]any{
			"invocations": invocations,
			"total":       len(invocations),
		})
	}
}

// GetCart handles GET /tenants/{tenantId}/conversations/{conversationId}/cart
func (h *ConversationHandler) GetCart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := chi.URLParam(r, "conversationId")

		if _, err := h.conversations.GetConversation(r.Context(), chi.URLParam(r, "tenantId"), conversationID); err != nil {
			handleConversationError(w, err)
			return
		}

		lines, err := h.carts.Cart(r.Context(), conversationID)
		if err != nil {
			handleConversationError(w, err)
			return
		}

		response.OK(w, map[string]any{
			"lines": lines,
			"total": len(lines),
		})
	}
}

// Archive handles POST /tenants/{tenantId}/conversations/{conversationId}/archive
func (h *ConversationHandler) Archive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.conversations.Archive(r.Context(), chi.URLParam(r, "tenantId"), chi.URLParam(r, "conversationId")); err != nil {
			handleConversationError(w, err)
			return
		}
		response.NoContent(w)
	}
}

func handleConversationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrConversationNotFound),
		errors.Is(err, entity.ErrMessageNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, entity.ErrConversationArchived):
		response.Conflict(w, err.Error())
	default:
		response.InternalError(w, "internal server error")
	}
}
