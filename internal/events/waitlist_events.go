package events

import "time"

const (
	EventTypeWaitlistNotified     = "WaitlistNotified"
	EventTypeWaitlistNotifyFailed = "WaitlistNotifyFailed"

	waitlistNotifiedSchema     = "waitlist.notified.v1"
	waitlistNotifyFailedSchema = "waitlist.notify_failed.v1"
)

// WaitlistNotifiedPayload is published once a restock email was accepted by the
// mail transport and the subscription retired.
type WaitlistNotifiedPayload struct {
	SubscriptionID  string    `json:"subscriptionId"`
	Email           string    `json:"email"`
	ProductID       string    `json:"productId,omitempty"`
	VariantID       string    `json:"variantId,omitempty"`
	InventoryItemID string    `json:"inventoryItemId,omitempty"`
	NotifiedAt      time.Time `json:"notifiedAt"`
}

// WaitlistNotifyFailedPayload is published when a send failed and the
// subscription went back to pending.
type WaitlistNotifyFailedPayload struct {
	SubscriptionID  string    `json:"subscriptionId"`
	ProductID       string    `json:"productId,omitempty"`
	VariantID       string    `json:"variantId,omitempty"`
	InventoryItemID string    `json:"inventoryItemId,omitempty"`
	Reason          string    `json:"reason"`
	FailedAt        time.Time `json:"failedAt"`
}
