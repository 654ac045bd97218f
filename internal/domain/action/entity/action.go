package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Kind is one of the closed set of commands a reply may embed
type Kind string

const (
	KindSendImage Kind = "send_image"
	KindAddToCart Kind = "add_to_cart"
)

// ParseKind maps a token keyword such as "ADD_TO_CART" to its kind, ignoring case
func ParseKind(s string) (Kind, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SEND_IMAGE":
		return KindSendImage, true
	case "ADD_TO_CART":
		return KindAddToCart, true
	default:
		return "", false
	}
}

// Keyword returns the token spelling of the kind
func (k Kind) Keyword() string {
	return strings.ToUpper(string(k))
}

// Outcome is the result of dispatching one invocation
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeApplied  Outcome = "applied"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Token is one recognized command found in reply text
type Token struct {
	Kind     Kind
	Argument string
	// Index counts recognized tokens in order of appearance
	Index int
	Raw   string
	// Start and End are byte offsets of Raw in the reply
	Start int
	End   int
	// Err is set when the token is recognized but not executable
	Err error
}

// Invocation records one dispatched token
type Invocation struct {
	ID             string     `json:"id"`
	MessageID      string     `json:"message_id"`
	TenantID       string     `json:"tenant_id"`
	ConversationID string     `json:"conversation_id"`
	Kind           Kind       `json:"kind"`
	TokenIndex     int        `json:"token_index"`
	Argument       string     `json:"argument"`
	TargetID       string     `json:"target_id,omitempty"`
	IdempotencyKey string     `json:"idempotency_key"`
	Outcome        Outcome    `json:"outcome"`
	Reason         string     `json:"reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// IdempotencyKey derives the key that guards a token's side effect
func IdempotencyKey(messageID string, kind Kind, tokenIndex int) string {
	sum := sha256.Sum256([]byte(messageID + "|" + string(kind) + "|" + strconv.Itoa(tokenIndex)))
	return hex.EncodeToString(sum[:])
}
