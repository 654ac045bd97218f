package entity

import "time"

// Conversation is the thread between one channel account and one external customer
type Conversation struct {
	ID                   string     `json:"id"`
	TenantID             string     `json:"tenant_id"`
	ChannelAccountID     string     `json:"channel_account_id"`
	CustomerExternalID   string     `json:"customer_external_id"`
	CustomerName         string     `json:"customer_name,omitempty"`
	LastMessageText      string     `json:"last_message_text,omitempty"`
	LastMessageAt        *time.Time `json:"last_message_at,omitempty"`
	LastMessageDirection Direction  `json:"last_message_direction,omitempty"`
	MessageSeq           int64      `json:"message_seq"`
	ArchivedAt           *time.Time `json:"archived_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsArchived reports whether the conversation was archived
func (c *Conversation) IsArchived() bool {
	return c.ArchivedAt != nil
}

// Snapshot is the last-message summary kept on a conversation for listing
type Snapshot struct {
	CustomerName string
	Text         string
	At           time.Time
	Direction    Direction
}

// ConversationKey identifies a conversation by its natural key
type ConversationKey struct {
	TenantID           string
	ChannelAccountID   string
	CustomerExternalID string
}

// String returns a stable representation usable as a map key
func (k ConversationKey) String() string {
	return k.TenantID + "|" + k.ChannelAccountID + "|" + k.CustomerExternalID
}

// ListFilter narrows conversation listings
type ListFilter struct {
	TenantID        string
	IncludeArchived bool
	Limit           int
	Offset          int
}
