package entity

import "errors"

// Domain errors for tenants and channel accounts
var (
	ErrUnattributedChannel    = errors.New("channel account is not attributed to any tenant")
	ErrTenantNotFound         = errors.New("tenant not found")
	ErrChannelAccountNotFound = errors.New("channel account not found")
	ErrChannelAccountExists   = errors.New("channel account already registered")
	ErrUnattributedNotFound   = errors.New("unattributed event not found")
	ErrSameTenant             = errors.New("channel account already belongs to this tenant")
	ErrEmptyName              = errors.New("tenant name cannot be empty")
	ErrEmptyExternalID        = errors.New("external id cannot be empty")
	ErrInvalidStatus          = errors.New("invalid tenant status")
	ErrEmptyActor             = errors.New("actor is required for audited operations")
)
