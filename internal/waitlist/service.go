package waitlist

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidSubscription = errors.New("invalid subscription")

type SubscribeRequest struct {
	Email           string
	ProductID       string
	VariantID       string
	InventoryItemID string
}

// Service validates and records waitlist registrations.
type Service struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Subscribe stores a new pending subscription. Registering the same email and
// identifiers twice yields two independent records.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest) (Subscription, error) {
	email := NormalizeEmail(req.Email)
	if email == "" {
		return Subscription{}, fmt.Errorf("%w: email is required", ErrInvalidSubscription)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return Subscription{}, fmt.Errorf("%w: email is not a valid address", ErrInvalidSubscription)
	}

	sub := Subscription{
		ID:              s.newID(),
		Email:           email,
		ProductID:       strings.TrimSpace(req.ProductID),
		VariantID:       strings.TrimSpace(req.VariantID),
		InventoryItemID: strings.TrimSpace(req.InventoryItemID),
		Status:          StatusPending,
		CreatedAt:       s.now(),
	}
	if sub.ProductID == "" && sub.VariantID == "" && sub.InventoryItemID == "" {
		return Subscription{}, fmt.Errorf("%w: one of productId, variantId or inventoryItemId is required", ErrInvalidSubscription)
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return Subscription{}, err
	}
	return sub, nil
}
