package entity

import (
	"time"

	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
)

// UnattributedStatus is the review state of an unattributed inbox entry
type UnattributedStatus string

const (
	UnattributedPendingReview UnattributedStatus = "pending_review"
	UnattributedDismissed     UnattributedStatus = "dismissed"
)

// UnattributedEvent is an inbound event whose channel account has no owner
type UnattributedEvent struct {
	ID                 string             `json:"id"`
	ChannelType        channel.Type       `json:"channel_type"`
	AccountExternalID  string             `json:"account_external_id"`
	CustomerExternalID string             `json:"customer_external_id"`
	ProviderMessageID  string             `json:"provider_message_id"`
	TextPreview        string             `json:"text_preview"`
	Status             UnattributedStatus `json:"status"`
	HitCount           int                `json:"hit_count"`
	FirstSeenAt        time.Time          `json:"first_seen_at"`
	LastSeenAt         time.Time          `json:"last_seen_at"`
}

// UnattributedFilter narrows inbox listings
type UnattributedFilter struct {
	Status UnattributedStatus
	Limit  int
	Offset int
}

// AuditAction names an administrative operation
type AuditAction string

const (
	AuditTenantCreated         AuditAction = "tenant.created"
	AuditTenantUpdated         AuditAction = "tenant.updated"
	AuditTenantSuspended       AuditAction = "tenant.suspended"
	AuditTenantActivated       AuditAction = "tenant.activated"
	AuditChannelRegistered     AuditAction = "channel.registered"
	AuditChannelReassigned     AuditAction = "channel.reassigned"
	AuditChannelTokenUpdated   AuditAction = "channel.token_updated"
	AuditUnattributedDismissed AuditAction = "unattributed.dismissed"
)

// AuditEntry is one row of the administrative audit log
type AuditEntry struct {
	ID               string         `json:"id"`
	Action           AuditAction    `json:"action"`
	Actor            string         `json:"actor"`
	TenantID         string         `json:"tenant_id,omitempty"`
	ChannelAccountID string         `json:"channel_account_id,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
