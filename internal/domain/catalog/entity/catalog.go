package entity

import (
	"fmt"
	"strings"
	"time"
)

// Item is a product a tenant sells through its conversations
type Item struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceMinor int64     `json:"price_minor"`
	Currency   string    `json:"currency"`
	ImageRef   string    `json:"image_ref,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Price formats the price in major units, e.g. "100.00 USD"
func (i *Item) Price() string {
	return fmt.Sprintf("%d.%02d %s", i.PriceMinor/100, i.PriceMinor%100, i.Currency)
}

// Matches reports whether ref names the item by sku or name, ignoring case
func (i *Item) Matches(ref string) bool {
	ref = strings.TrimSpace(ref)
	return strings.EqualFold(i.SKU, ref) || strings.EqualFold(i.Name, ref)
}

// CartLine is one item in a conversation's cart
type CartLine struct {
	ConversationID string    `json:"conversation_id"`
	ItemID         string    `json:"item_id"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	PriceMinor     int64     `json:"price_minor"`
	Currency       string    `json:"currency"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MediaAsset is a named image in a tenant's media library
type MediaAsset struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Ref         string    `json:"ref"`
	ObjectKey   string    `json:"object_key"`
	ContentType string    `json:"content_type"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}
