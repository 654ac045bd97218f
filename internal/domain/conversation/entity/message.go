package entity

import (
	"time"
	"unicode/utf8"
)

// DeliveryStatus tracks outbound delivery of a page-to-customer message
type DeliveryStatus string

const (
	DeliveryNone    DeliveryStatus = "none"
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// ActionRecord is the per-message audit of a dispatched action token
type ActionRecord struct {
	Kind     string `json:"kind"`
	Argument string `json:"argument"`
	Outcome  string `json:"outcome"`
	TargetID string `json:"target_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Message is an immutable, append-only conversation entry
type Message struct {
	ID                   string         `json:"id"`
	ConversationID       string         `json:"conversation_id"`
	TenantID             string         `json:"tenant_id"`
	ChannelAccountID     string         `json:"channel_account_id"`
	Seq                  int64          `json:"seq"`
	Direction            Direction      `json:"direction"`
	SenderExternalID     string         `json:"sender_external_id"`
	ProviderMessageID    string         `json:"provider_message_id"`
	Text                 string         `json:"text,omitempty"`
	ImageRef             string         `json:"image_ref,omitempty"`
	Actions              []ActionRecord `json:"actions,omitempty"`
	DeliveryStatus       DeliveryStatus `json:"delivery_status"`
	DeliveryError        string         `json:"delivery_error,omitempty"`
	DeliveredProviderIDs []string       `json:"delivered_provider_ids,omitempty"`
	DeliveryAttempts     int            `json:"delivery_attempts"`
	ProviderTimestamp    *time.Time     `json:"provider_timestamp,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}

// ReplyProviderID is the synthetic provider id of the automated reply to an inbound message
func ReplyProviderID(inboundMessageID string) string {
	return "reply:" + inboundMessageID
}

const snapshotRunes = 200

// SnapshotText shortens message text for the conversation listing
func SnapshotText(text, imageRef string) string {
	if text == "" && imageRef != "" {
		return "[image]"
	}
	if utf8.RuneCountInString(text) <= snapshotRunes {
		return text
	}
	return string([]rune(text)[:snapshotRunes])
}

// RecordInput describes one message to persist, together with its conversation key
type RecordInput struct {
	// ID is optional; a new UUID is generated when empty
	ID                 string
	TenantID           string
	ChannelAccountID   string
	CustomerExternalID string
	CustomerName       string
	Direction          Direction
	SenderExternalID   string
	ProviderMessageID  string
	Text               string
	ImageRef           string
	Actions            []ActionRecord
	DeliveryStatus     DeliveryStatus
	ProviderTimestamp  time.Time
}

// Key returns the conversation key of the record
func (in RecordInput) Key() ConversationKey {
	return ConversationKey{
		TenantID:           in.TenantID,
		ChannelAccountID:   in.ChannelAccountID,
		CustomerExternalID: in.CustomerExternalID,
	}
}

// RecordResult is the persisted message and the conversation it landed in
type RecordResult struct {
	Conversation Conversation
	Message      Message
}
