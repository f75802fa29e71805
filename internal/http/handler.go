package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/restock"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

const (
	maxWebhookBody   = 1 << 20
	maxSubscribeBody = 64 << 10
)

type Subscriber interface {
	Subscribe(ctx context.Context, req waitlist.SubscribeRequest) (waitlist.Subscription, error)
}

type RestockHandler interface {
	Handle(ctx context.Context, d restock.Delivery) (restock.Report, error)
}

type Handler struct {
	subscriber Subscriber
	restock    RestockHandler
	logger     *zap.Logger
}

func NewHandler(subscriber Subscriber, engine RestockHandler, logger *zap.Logger) *Handler {
	return &Handler{subscriber: subscriber, restock: engine, logger: logger}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type subscribeRequest struct {
	Email           string          `json:"email"`
	ProductID       json.RawMessage `json:"productId"`
	VariantID       json.RawMessage `json:"variantId"`
	InventoryItemID json.RawMessage `json:"inventoryItemId"`
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var body subscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubscribeBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := waitlist.SubscribeRequest{Email: body.Email}
	for _, f := range []struct {
		name string
		raw  json.RawMessage
		dst  *string
	}{
		{"productId", body.ProductID, &req.ProductID},
		{"variantId", body.VariantID, &req.VariantID},
		{"inventoryItemId", body.InventoryItemID, &req.InventoryItemID},
	} {
		v, err := events.ParseIdentifier(f.raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, f.name+" must be a string or integer")
			return
		}
		*f.dst = v
	}

	sub, err := h.subscriber.Subscribe(r.Context(), req)
	if err != nil {
		if errors.Is(err, waitlist.ErrInvalidSubscription) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("store subscription", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": sub.ID})
}

type webhookResponse struct {
	Status    string `json:"status"`
	Matched   int    `json:"matched"`
	Claimed   int    `json:"claimed"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Duplicate bool   `json:"duplicate"`
}

// InventoryWebhook hands the raw body to the restock engine untouched; the
// signature covers the exact bytes received.
func (h *Handler) InventoryWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	report, err := h.restock.Handle(r.Context(), restock.Delivery{
		Body:      body,
		Signature: r.Header.Get(events.SignatureHeader),
		WebhookID: r.Header.Get(events.WebhookIDHeader),
		Topic:     r.Header.Get(events.TopicHeader),
	})
	switch {
	case errors.Is(err, events.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	case errors.Is(err, events.ErrMalformedEvent):
		h.logger.Warn("malformed restock event", zap.Error(err))
		writeError(w, http.StatusBadRequest, "malformed event")
		return
	case errors.Is(err, restock.ErrStoreUnavailable):
		h.logger.Error("restock event not processed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	case err != nil:
		h.logger.Error("restock event failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		Status:    "ok",
		Matched:   report.Matched,
		Claimed:   report.Claimed,
		Sent:      report.Sent,
		Failed:    report.Failed,
		Duplicate: report.Duplicate,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
