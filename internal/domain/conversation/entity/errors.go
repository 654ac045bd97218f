package entity

import "errors"

// Domain errors for conversations and messages
var (
	// ErrDuplicateMessage is benign: the provider message was already persisted
	ErrDuplicateMessage     = errors.New("duplicate provider message")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrConversationArchived = errors.New("conversation is archived")
	ErrEmptyProviderID      = errors.New("provider message id cannot be empty")
	ErrInvalidDirection     = errors.New("invalid message direction")
)
