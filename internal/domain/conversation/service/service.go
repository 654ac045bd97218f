package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/vadim/neo-gateway/internal/domain/conversation/entity"
)

// ConversationRepository defines the interface for conversation storage
type ConversationRepository interface {
	RecordMessage(ctx context.Context, in entity.RecordInput) (*entity.RecordResult, error)
	UpsertConversation(ctx context.Context, key entity.ConversationKey, snap entity.Snapshot) (*entity.Conversation, error)
	InsertMessage(ctx context.Context, conversationID string, in entity.RecordInput) (*entity.Message, error)
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	ListByTenant(ctx context.Context, filter entity.ListFilter) ([]entity.Conversation, error)
	CountByTenant(ctx context.Context, tenantID string, includeArchived bool) (int64, error)
	Archive(ctx context.Context, tenantID, id string) error
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Message, error)
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]entity.Message, error)
	Recent(ctx context.Context, conversationID string, n int) ([]entity.Message, error)
	CountByConversation(ctx context.Context, conversationID string) (int64, error)
	MarkDeliverySent(ctx context.Context, id string, providerIDs []string, attempts int) error
	MarkDeliveryFailed(ctx context.Context, id, reason string, providerIDs []string, attempts int) error
}

// Service handles conversation persistence and reads
type Service struct {
	convRepo ConversationRepository
	msgRepo  MessageRepository
}

// New creates a new conversation service
func New(convRepo ConversationRepository, msgRepo MessageRepository) *Service {
	return &Service{
		convRepo: convRepo,
		msgRepo:  msgRepo,
	}
}

// Record persists a message exactly once. ErrDuplicateMessage is returned
// unwrapped for redelivered provider ids; callers treat it as success.
func (s *Service) Record(ctx context.Context, in entity.RecordInput) (*entity.RecordResult, error) {
	res, err := s.convRepo.RecordMessage(ctx, in)
	if errors.Is(err, entity.ErrDuplicateMessage) {
		return nil, entity.ErrDuplicateMessage
	}
	if err != nil {
		return nil, fmt.Errorf("recording message: %w", err)
	}
	return res, nil
}

// UpsertConversation creates a conversation or refreshes its snapshot
func (s *Service) UpsertConversation(ctx context.Context, key entity.ConversationKey, snap entity.Snapshot) (*entity.Conversation, error) {
	conv, err := s.convRepo.UpsertConversation(ctx, key, snap)
	if err != nil {
		return nil, fmt.Errorf("upserting conversation: %w", err)
	}
	return conv, nil
}

// InsertMessage appends a message to a known conversation
func (s *Service) InsertMessage(ctx context.Context, conversationID string, in entity.RecordInput) (*entity.Message, error) {
	msg, err := s.convRepo.InsertMessage(ctx, conversationID, in)
	if errors.Is(err, entity.ErrDuplicateMessage) || errors.Is(err, entity.ErrConversationNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}
	return msg, nil
}

// GetConversation retrieves a conversation owned by the tenant
func (s *Service) GetConversation(ctx context.Context, tenantID, id string) (*entity.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	if conv == nil || conv.TenantID != tenantID {
		return nil, entity.ErrConversationNotFound
	}
	return conv, nil
}

// ListConversationsInput represents input for listing conversations
type ListConversationsInput struct {
	TenantID        string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// ListConversationsOutput represents output from listing conversations
type ListConversationsOutput struct {
	Conversations []entity.Conversation
	Total         int64
	HasMore       bool
}

// ListConversations retrieves a tenant's conversations
func (s *Service) ListConversations(ctx context.Context, in ListConversationsInput) (*ListConversationsOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}

	conversations, err := s.convRepo.ListByTenant(ctx, entity.ListFilter{
		TenantID:        in.TenantID,
		IncludeArchived: in.IncludeArchived,
		Limit:           limit,
		Offset:          in.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	total, err := s.convRepo.CountByTenant(ctx, in.TenantID, in.IncludeArchived)
	if err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}

	return &ListConversationsOutput{
		Conversations: conversations,
		Total:         total,
		HasMore:       int64(in.Offset+len(conversations)) < total,
	}, nil
}

// ListMessagesInput represents input for listing messages
type ListMessagesInput struct {
	TenantID       string
	ConversationID string
	Limit          int
	Offset         int
}

// ListMessagesOutput represents output from listing messages
type ListMessagesOutput struct {
	Messages []entity.Message
	Total    int64
	HasMore  bool
}

// ListMessages retrieves messages of a tenant's conversation in sequence order
func (s *Service) ListMessages(ctx context.Context, in ListMessagesInput) (*ListMessagesOutput, error) {
	if _, err := s.GetConversation(ctx, in.TenantID, in.ConversationID); err != nil {
		return nil, err
	}

	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}

	messages, err := s.msgRepo.ListByConversation(ctx, in.ConversationID, limit, in.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	total, err := s.msgRepo.CountByConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	return &ListMessagesOutput{
		Messages: messages,
		Total:    total,
		HasMore:  int64(in.Offset+len(messages)) < total,
	}, nil
}

// RecentMessages returns the last n messages of a conversation, oldest first
func (s *Service) RecentMessages(ctx context.Context, conversationID string, n int) ([]entity.Message, error) {
	msgs, err := s.msgRepo.Recent(ctx, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("loading recent messages: %w", err)
	}
	return msgs, nil
}

// Archive archives a tenant's conversation
func (s *Service) Archive(ctx context.Context, tenantID, id string) error {
	if err := s.convRepo.Archive(ctx, tenantID, id); err != nil {
		if errors.Is(err, entity.ErrConversationNotFound) {
			return err
		}
		return fmt.Errorf("archiving conversation: %w", err)
	}
	return nil
}

// MarkDeliverySent records a successful outbound delivery
func (s *Service) MarkDeliverySent(ctx context.Context, messageID string, providerIDs []string, attempts int) error {
	return s.msgRepo.MarkDeliverySent(ctx, messageID, providerIDs, attempts)
}

// MarkDeliveryFailed records a persistent outbound delivery failure
func (s *Service) MarkDeliveryFailed(ctx context.Context, messageID, reason string, providerIDs []string, attempts int) error {
	return s.msgRepo.MarkDeliveryFailed(ctx, messageID, reason, providerIDs, attempts)
}
