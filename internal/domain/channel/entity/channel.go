package entity

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Type identifies a messaging provider
type Type string

const (
	TypeFacebook Type = "facebook"
	TypeWhatsApp Type = "whatsapp"
)

// ErrUnsupportedChannel is returned for channel types the gateway does not speak
var ErrUnsupportedChannel = errors.New("unsupported channel type")

// ParseType parses a channel type name
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeFacebook, "messenger":
		return TypeFacebook, nil
	case TypeWhatsApp:
		return TypeWhatsApp, nil
	default:
		return "", ErrUnsupportedChannel
	}
}

// Valid reports whether t is a known channel type
func (t Type) Valid() bool {
	return t == TypeFacebook || t == TypeWhatsApp
}

// MaxTextRunes is the longest text a single provider message may carry
func (t Type) MaxTextRunes() int {
	switch t {
	case TypeWhatsApp:
		return 4096
	default:
		return 2000
	}
}

// InboundEvent is the canonical shape of one inbound provider message
type InboundEvent struct {
	ChannelType        Type      `json:"channel_type"`
	AccountExternalID  string    `json:"account_external_id"`
	CustomerExternalID string    `json:"customer_external_id"`
	SenderExternalID   string    `json:"sender_external_id"`
	ProviderMessageID  string    `json:"provider_message_id"`
	Timestamp          time.Time `json:"timestamp"`
	Text               string    `json:"text,omitempty"`
	MediaRefs          []string  `json:"media_refs,omitempty"`
	CustomerName       string    `json:"customer_name,omitempty"`
	IsEcho             bool      `json:"is_echo,omitempty"`
}

const previewRunes = 140

// Preview returns a short excerpt of the event body for review listings
func (e InboundEvent) Preview() string {
	text := e.Text
	if text == "" && len(e.MediaRefs) > 0 {
		text = "[media]"
	}
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "…"
}

// Attachment is an outbound media item produced by a dispatched action
type Attachment struct {
	Ref string `json:"ref"`
	URL string `json:"url"`
}
