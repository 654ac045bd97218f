package entity

import (
	"slices"
	"time"

	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
)

// Status is the lifecycle state of a tenant
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuspended
}

// Tenant is a company using the platform, the unit of data isolation
type Tenant struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Status         Status    `json:"status"`
	AgentSenderIDs []string  `json:"agent_sender_ids"`
	PersonaPrompt  string    `json:"persona_prompt,omitempty"`
	FallbackReply  string    `json:"fallback_reply,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsActive reports whether the tenant receives automated replies
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// IsAgentSender reports whether id belongs to the tenant's known agent actors
func (t *Tenant) IsAgentSender(id string) bool {
	return slices.Contains(t.AgentSenderIDs, id)
}

// VerificationState tracks the provider-side subscription of a channel account
type VerificationState string

const (
	VerificationPending  VerificationState = "pending"
	VerificationVerified VerificationState = "verified"
)

// ChannelAccount is an externally addressable endpoint (a Page, a WhatsApp number)
type ChannelAccount struct {
	ID                string            `json:"id"`
	TenantID          string            `json:"tenant_id"`
	ChannelType       channel.Type      `json:"channel_type"`
	ExternalID        string            `json:"external_id"`
	DisplayName       string            `json:"display_name,omitempty"`
	AccessToken       string            `json:"-"`
	VerificationState VerificationState `json:"verification_state"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// HasAccessToken reports whether outbound sends can be authenticated
func (a *ChannelAccount) HasAccessToken() bool {
	return a.AccessToken != ""
}

// Resolution is the outcome of attributing an inbound event
type Resolution struct {
	Tenant  Tenant
	Account ChannelAccount
}
