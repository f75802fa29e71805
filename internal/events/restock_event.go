package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	WebhookIDHeader = "X-Shopify-Webhook-Id"
	TopicHeader     = "X-Shopify-Topic"
)

var ErrMalformedEvent = errors.New("malformed event")

type Identifiers struct {
	ProductID       string
	VariantID       string
	InventoryItemID string
}

func (ids Identifiers) Empty() bool {
	return ids.ProductID == "" && ids.VariantID == "" && ids.InventoryItemID == ""
}

// RestockEvent is an inventory change reduced to what matching needs.
type RestockEvent struct {
	Identifiers
	Available int
	DedupeKey string
}

// Actionable reports whether the event signals stock a shopper could buy.
func (e RestockEvent) Actionable() bool {
	return e.Available > 0
}

// Normalize parses an authenticated webhook body. Inventory level updates carry
// inventory_item_id and available; variant payloads carry id/variant_id,
// product_id and inventory_quantity. Any subset of identifiers is accepted, but
// at least one must be present.
func Normalize(body []byte, webhookID string) (RestockEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return RestockEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if fields == nil {
		return RestockEvent{}, fmt.Errorf("%w: body is not an object", ErrMalformedEvent)
	}

	var (
		ev  RestockEvent
		err error
	)
	if ev.InventoryItemID, err = ParseIdentifier(fields["inventory_item_id"]); err != nil {
		return RestockEvent{}, fmt.Errorf("%w: inventory_item_id: %v", ErrMalformedEvent, err)
	}
	if ev.ProductID, err = ParseIdentifier(fields["product_id"]); err != nil {
		return RestockEvent{}, fmt.Errorf("%w: product_id: %v", ErrMalformedEvent, err)
	}
	if ev.VariantID, err = ParseIdentifier(fields["variant_id"]); err != nil {
		return RestockEvent{}, fmt.Errorf("%w: variant_id: %v", ErrMalformedEvent, err)
	}
	if ev.VariantID == "" && ev.ProductID != "" {
		// variant payloads name themselves by id and their parent by product_id
		if ev.VariantID, err = ParseIdentifier(fields["id"]); err != nil {
			return RestockEvent{}, fmt.Errorf("%w: id: %v", ErrMalformedEvent, err)
		}
	}
	if ev.Identifiers.Empty() {
		return RestockEvent{}, fmt.Errorf("%w: no product, variant or inventory item identifier", ErrMalformedEvent)
	}

	qty, ok := fields["available"]
	if !present(qty) {
		qty, ok = fields["inventory_quantity"]
	}
	if !ok || !present(qty) {
		return RestockEvent{}, fmt.Errorf("%w: missing available quantity", ErrMalformedEvent)
	}
	if ev.Available, err = parseQuantity(qty); err != nil {
		return RestockEvent{}, fmt.Errorf("%w: quantity: %v", ErrMalformedEvent, err)
	}

	ev.DedupeKey = DedupeKey(body, webhookID)
	return ev, nil
}

// DedupeKey prefers the sender's delivery id and falls back to a content hash,
// so a redelivered body maps to the same key either way.
func DedupeKey(body []byte, webhookID string) string {
	if id := strings.TrimSpace(webhookID); id != "" {
		return "webhook:" + id
	}
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ParseIdentifier accepts a JSON string or integer and returns its decimal
// string form. Absent and null values yield "".
func ParseIdentifier(raw json.RawMessage) (string, error) {
	if !present(raw) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	default:
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return "", fmt.Errorf("identifier %s is not an integer or string", raw)
		}
		return strconv.FormatInt(n, 10), nil
	}
}

func parseQuantity(raw json.RawMessage) (int, error) {
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}
		text = strings.TrimSpace(text)
	}
	if n, err := strconv.Atoi(text); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s is not an integer", raw)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%s is out of range", raw)
	}
	return int(f), nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
