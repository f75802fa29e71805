package waitlist

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusNotifying Status = "notifying"
)

// Subscription is a shopper's request to be emailed once an item is back in stock.
// Identifiers are empty strings when absent.
type Subscription struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	ProductID       string     `json:"productId,omitempty"`
	VariantID       string     `json:"variantId,omitempty"`
	InventoryItemID string     `json:"inventoryItemId,omitempty"`
	Status          Status     `json:"status"`
	ClaimToken      string     `json:"-"`
	ClaimedAt       *time.Time `json:"claimedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Field names the catalog identifier a Match filters on.
type Field string

const (
	FieldInventoryItemID Field = "inventory_item_id"
	FieldVariantID       Field = "variant_id"
	FieldProductID       Field = "product_id"
)

// Match selects subscriptions by exactly one identifier.
type Match struct {
	Field Field
	Value string
}

func (m Match) String() string {
	return string(m.Field) + "=" + m.Value
}

func (m Match) matches(s Subscription) bool {
	switch m.Field {
	case FieldInventoryItemID:
		return s.InventoryItemID == m.Value
	case FieldVariantID:
		return s.VariantID == m.Value
	case FieldProductID:
		return s.ProductID == m.Value
	}
	return false
}

// claimable reports whether s may be claimed at a point where claims made before
// staleBefore are considered abandoned.
func claimable(s Subscription, staleBefore time.Time) bool {
	switch s.Status {
	case StatusPending:
		return true
	case StatusNotifying:
		return s.ClaimedAt != nil && s.ClaimedAt.Before(staleBefore)
	}
	return false
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
