package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
	"github.com/vadim/neo-gateway/internal/domain/tenant/entity"
)

// TenantRepository defines the interface for tenant storage
type TenantRepository interface {
	Create(ctx context.Context, t *entity.Tenant, audit *entity.AuditEntry) error
	GetByID(ctx context.Context, id string) (*entity.Tenant, error)
	List(ctx context.Context, limit, offset int) ([]entity.Tenant, error)
	UpdateStatus(ctx context.Context, id string, status entity.Status, audit *entity.AuditEntry) error
	UpdateProfile(ctx context.Context, t *entity.Tenant, audit *entity.AuditEntry) error
}

// ChannelAccountRepository defines the interface for channel account storage
type ChannelAccountRepository interface {
	Create(ctx context.Context, acc *entity.ChannelAccount, audit *entity.AuditEntry) error
	GetByID(ctx context.Context, id string) (*entity.ChannelAccount, error)
	GetByExternalID(ctx context.Context, channelType channel.Type, externalID string) (*entity.ChannelAccount, error)
	ListByTenant(ctx context.Context, tenantID string) ([]entity.ChannelAccount, error)
	List(ctx context.Context) ([]entity.ChannelAccount, error)
	Reassign(ctx context.Context, accountID, tenantID string, audit *entity.AuditEntry) error
	UpdateAccessToken(ctx context.Context, accountID, token string, audit *entity.AuditEntry) error
}

// UnattributedRepository defines the interface for the unattributed inbox
type UnattributedRepository interface {
	List(ctx context.Context, filter entity.UnattributedFilter) ([]entity.UnattributedEvent, error)
	GetByID(ctx context.Context, id string) (*entity.UnattributedEvent, error)
	Dismiss(ctx context.Context, id string, audit *entity.AuditEntry) error
}

// AuditRepository defines the interface for reading the audit log
type AuditRepository interface {
	List(ctx context.Context, tenantID string, limit, offset int) ([]entity.AuditEntry, error)
}

// CacheInvalidator drops cached attributions after administrative changes
type CacheInvalidator interface {
	Invalidate(channelType channel.Type, externalID string)
	InvalidateTenant(tenantID string)
}

// Service handles tenant administration. Every mutation is audited.
type Service struct {
	tenants      TenantRepository
	accounts     ChannelAccountRepository
	unattributed UnattributedRepository
	audit        AuditRepository
	cache        CacheInvalidator
}

// New creates a new tenant service
func New(
	tenants TenantRepository,
	accounts ChannelAccountRepository,
	unattributed UnattributedRepository,
	audit AuditRepository,
	cache CacheInvalidator,
) *Service {
	return &Service{
		tenants:      tenants,
		accounts:     accounts,
		unattributed: unattributed,
		audit:        audit,
		cache:        cache,
	}
}

// CreateTenantInput represents input for creating a tenant
type CreateTenantInput struct {
	Actor          string
	Name           string
	AgentSenderIDs []string
	PersonaPrompt  string
	FallbackReply  string
}

// CreateTenant creates an active tenant
func (s *Service) CreateTenant(ctx context.Context, in CreateTenantInput) (*entity.Tenant, error) {
	if in.Actor == "" {
		return nil, entity.ErrEmptyActor
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, entity.ErrEmptyName
	}

	t := &entity.Tenant{
		ID:             uuid.NewString(),
		Name:           name,
		Status:         entity.StatusActive,
		AgentSenderIDs: normalizeIDs(in.AgentSenderIDs),
		PersonaPrompt:  in.PersonaPrompt,
		FallbackReply:  in.FallbackReply,
	}

	audit := &entity.AuditEntry{
		Action:   entity.AuditTenantCreated,
		Actor:    in.Actor,
		TenantID: t.ID,
		Details:  map[string]any{"name": t.Name},
	}
	if err := s.tenants.Create(ctx, t, audit); err != nil {
		return nil, fmt.Errorf("creating tenant: %w", err)
	}

	return t, nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, id string) (*entity.Tenant, error) {
	t, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	if t == nil {
		return nil, entity.ErrTenantNotFound
	}
	return t, nil
}

// ListTenants retrieves tenants with pagination
func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]entity.Tenant, error) {
	if limit <= 0 {
		limit = 50
	}
	tenants, err := s.tenants.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	return tenants, nil
}

// SetStatusInput represents input for suspending or activating a tenant
type SetStatusInput struct {
	Actor    string
	TenantID string
	Status   entity.Status
	Reason   string
}

// SetStatus suspends or re-activates a tenant
func (s *Service) SetStatus(ctx context.Context, in SetStatusInput) (*entity.Tenant, error) {
	if in.Actor == "" {
		return nil, entity.ErrEmptyActor
	}
	if !in.Status.Valid() {
		return nil, entity.ErrInvalidStatus
	}

	t, err := s.GetTenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	if t.Status == in.Status {
		return t, nil
	}

	action := entity.AuditTenantActivated
	if in.Status == entity.StatusSuspended {
		action = entity.AuditTenantSuspended
	}
	audit := &entity.AuditEntry{
		Action:   action,
		Actor:    in.Actor,
		TenantID: t.ID,
		Details:  map[string]any{"from": string(t.Status), "to": string(in.Status), "reason": in.Reason},
	}
	if err := s.tenants.UpdateStatus(ctx, t.ID, in.Status, audit); err != nil {
		return nil, fmt.Errorf("updating tenant status: %w", err)
	}
	s.cache.InvalidateTenant(t.ID)

	t.Status = in.Status
	return t, nil
}

// UpdateProfileInput represents a partial update of tenant reply settings
type UpdateProfileInput struct {
	Actor          string
	TenantID       string
	Name           *string
	AgentSenderIDs []string
	PersonaPrompt  *string
	FallbackReply  *string
}

// UpdateProfile changes the name, agent senders or reply configuration of a tenant
func (s *Service) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*entity.Tenant, error) {
	if in.Actor == "" {
		return nil, entity.ErrEmptyActor
	}

	t, err := s.GetTenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}

	changed := []string{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, entity.ErrEmptyName
		}
		t.Name = name
		changed = append(changed, "name")
	}
	if in.AgentSenderIDs != nil {
		t.AgentSenderIDs = normalizeIDs(in.AgentSenderIDs)
		changed = append(changed, "agent_sender_ids")
	}
	if in.PersonaPrompt != nil {
		t.PersonaPrompt = *in.PersonaPrompt
		changed = append(changed, "persona_prompt")
	}
	if in.FallbackReply != nil {
		t.FallbackReply = *in.FallbackReply
		changed = append(changed, "fallback_reply")
	}
	if len(changed) == 0 {
		return t, nil
	}

	audit := &entity.AuditEntry{
		Action:   entity.AuditTenantUpdated,
		Actor:    in.Actor,
		TenantID: t.ID,
		Details:  map[string]any{"fields": changed},
	}
	if err := s.tenants.UpdateProfile(ctx, t, audit); err != nil {
		return nil, fmt.Errorf("updating tenant profile: %w", err)
	}
	s.cache.InvalidateTenant(t.ID)

	return t, nil
}

// RegisterChannelAccountInput represents input for provisioning a channel account
type RegisterChannelAccountInput struct {
	Actor       string
	TenantID    string
	ChannelType channel.Type
	ExternalID  string
	DisplayName string
	AccessToken string
}

// RegisterChannelAccount provisions a channel account for a tenant
func (s *Service) RegisterChannelAccount(ctx context.Context, in RegisterChannelAccountInput) (*entity.ChannelAccount, error) {
	if in.Actor == "" {
		return nil, entity.ErrEmptyActor
	}
	if !in.ChannelType.Valid() {
		return nil, channel.ErrUnsupportedChannel
	}
	externalID := strings.TrimSpace(in.ExternalID)
	if externalID == "" {
		return nil, entity.ErrEmptyExternalID
	}
	if _, err := s.GetTenant(ctx, in.TenantID); err != nil {
		return nil, err
	}

	acc := &entity.ChannelAccount{
		ID:                uuid.NewString(),
		TenantID:          in.TenantID,
		ChannelType:       in.ChannelType,
		ExternalID:        externalID,
		DisplayName:       in.DisplayName,
		AccessToken:       in.AccessToken,
		VerificationState: entity.VerificationPending,
	}

	audit := &entity.AuditEntry{
		Action:           entity.AuditChannelRegistered,
		Actor:            in.Actor,
		TenantID:         acc.TenantID,
		ChannelAccountID: acc.ID,
		Details: map[string]any{
			"channel_type": string(acc.ChannelType),
			"external_id":  acc.ExternalID,
		},
	}
	if err := s.accounts.Create(ctx, acc, audit); err != nil {
		return nil, fmt.Errorf("registering channel account: %w", err)
	}
	s.cache.Invalidate(acc.ChannelType, acc.ExternalID)

	return acc, nil
}

// ReassignChannelAccountInput represents input for moving an account to another tenant
type ReassignChannelAccountInput struct {
	Actor     string
	AccountID string
	TenantID  string
	Reason    string
}

// ReassignChannelAccount moves a channel account to another tenant.
// Historical conversations and messages keep the tenant they were written under.
func (s *Service) ReassignChannelAccount(ctx context.Context, in ReassignChannelAccountInput) (*entity.ChannelAccount, error) {
	if in.Actor == "" {
		return nil, entity.ErrEmptyActor
	}

	acc, err := s.GetChannelAccount(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}
	if acc.TenantID == in.TenantID {
		return nil, entity.ErrSameTenant
	}
	if _, err := s.GetTenant(ctx, in.TenantID); err != nil {
		return nil, err
	}

	audit := &entity.AuditEntry{
		Action:           entity.AuditChannelReassigned,
		Actor:            in.Actor,
		TenantID:         in.TenantID,
		ChannelAccountID: acc.ID,
		Details: map[string]any{
			"from_tenant_id": acc.TenantID,
			"to_tenant_id":   in.TenantID,
			"channel_type":   string(acc.ChannelType),
			"external_id":    acc.ExternalID,
			"reason":         in.Reason,
		},
	}
	if err := s.accounts.Reassign(ctx, acc.ID, in.TenantID, audit); err != nil {
		return nil, fmt.Errorf("reassigning channel account: %w", err)
	}
	s.cache.Invalidate(acc.ChannelType, acc.ExternalID)

	acc.TenantID = in.TenantID
	return acc, nil
}

// UpdateAccessTokenInput represents input for replacing an account credential
type UpdateAccessTokenInput struct {
	Actor       string
	AccountID   string
	AccessToken string
}

// UpdateAccessToken replaces the outbound credential of a channel account
func (s *Service) UpdateAccessToken(ctx context.Context, in UpdateAccessTokenInput) error {
	if in.Actor == "" {
		return entity.ErrEmptyActor
	}

	acc, err := s.GetChannelAccount(ctx, in.AccountID)
	if err != nil {
		return err
	}

	audit := &entity.AuditEntry{
		Action:           entity.AuditChannelTokenUpdated,
		Actor:            in.Actor,
		TenantID:         acc.TenantID,
		ChannelAccountID: acc.ID,
	}
	if err := s.accounts.UpdateAccessToken(ctx, acc.ID, in.AccessToken, audit); err != nil {
		return fmt.Errorf("updating access token: %w", err)
	}
	s.cache.Invalidate(acc.ChannelType, acc.ExternalID)
	return nil
}

// GetChannelAccount retrieves a channel account by ID
func (s *Service) GetChannelAccount(ctx context.Context, id string) (*entity.ChannelAccount, error) {
	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting channel account: %w", err)
	}
	if acc == nil {
		return nil, entity.ErrChannelAccountNotFound
	}
	return acc, nil
}

// ListChannelAccounts lists accounts of one tenant, or all accounts when tenantID is empty
func (s *Service) ListChannelAccounts(ctx context.Context, tenantID string) ([]entity.ChannelAccount, error) {
	var (
		accounts []entity.ChannelAccount
		err      error
	)
	if tenantID == "" {
		accounts, err = s.accounts.List(ctx)
	} else {
		accounts, err = s.accounts.ListByTenant(ctx, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing channel accounts: %w", err)
	}
	return accounts, nil
}

// ListUnattributed lists the unattributed inbox
func (s *Service) ListUnattributed(ctx context.Context, filter entity.UnattributedFilter) ([]entity.UnattributedEvent, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	events, err := s.unattributed.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing unattributed events: %w", err)
	}
	return events, nil
}

// DismissUnattributed marks an inbox entry as reviewed
func (s *Service) DismissUnattributed(ctx context.Context, actor, id, note string) error {
	if actor == "" {
		return entity.ErrEmptyActor
	}

	ev, err := s.unattributed.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("getting unattributed event: %w", err)
	}
	if ev == nil {
		return entity.ErrUnattributedNotFound
	}

	audit := &entity.AuditEntry{
		Action: entity.AuditUnattributedDismissed,
		Actor:  actor,
		Details: map[string]any{
			"unattributed_id":     ev.ID,
			"channel_type":        string(ev.ChannelType),
			"account_external_id": ev.AccountExternalID,
			"note":                note,
		},
	}
	if err := s.unattributed.Dismiss(ctx, ev.ID, audit); err != nil {
		return fmt.Errorf("dismissing unattributed event: %w", err)
	}
	return nil
}

// ListAudit lists audit entries, optionally for a single tenant
func (s *Service) ListAudit(ctx context.Context, tenantID string, limit, offset int) ([]entity.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.audit.List(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	return entries, nil
}

// normalizeIDs trims, drops blanks and de-duplicates sender ids
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
