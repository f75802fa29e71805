package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const SubscriptionsCollection = "subscriptions"

type mongoSubscription struct {
	ID              string     `bson:"_id"`
	Email           string     `bson:"email"`
	ProductID       string     `bson:"productId,omitempty"`
	VariantID       string     `bson:"variantId,omitempty"`
	InventoryItemID string     `bson:"inventoryItemId,omitempty"`
	Status          string     `bson:"status"`
	ClaimToken      string     `bson:"claimToken,omitempty"`
	ClaimedAt       *time.Time `bson:"claimedAt,omitempty"`
	CreatedAt       time.Time  `bson:"createdAt"`
}

func (d mongoSubscription) toSubscription() Subscription {
	s := Subscription{
		ID:              d.ID,
		Email:           d.Email,
		ProductID:       d.ProductID,
		VariantID:       d.VariantID,
		InventoryItemID: d.InventoryItemID,
		Status:          Status(d.Status),
		ClaimToken:      d.ClaimToken,
		CreatedAt:       d.CreatedAt.UTC(),
	}
	if d.ClaimedAt != nil {
		t := d.ClaimedAt.UTC()
		s.ClaimedAt = &t
	}
	return s
}

// MongoRepository stores subscriptions as documents, one per registration.
// Claims rely on FindOneAndUpdate being atomic per document.
type MongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(SubscriptionsCollection)}
}

// EnsureIndexes creates the lookup indexes used by FindClaimable.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "inventoryItemId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "variantId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "productId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "claimedAt", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create subscription indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, s Subscription) error {
	doc := mongoSubscription{
		ID:              s.ID,
		Email:           s.Email,
		ProductID:       s.ProductID,
		VariantID:       s.VariantID,
		InventoryItemID: s.InventoryItemID,
		Status:          string(StatusPending),
		CreatedAt:       s.CreatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (r *MongoRepository) Get(ctx context.Context, id string) (Subscription, error) {
	var doc mongoSubscription
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Subscription{}, ErrNotFound
		}
		return Subscription{}, fmt.Errorf("find subscription: %w", err)
	}
	return doc.toSubscription(), nil
}

func (r *MongoRepository) FindClaimable(ctx context.Context, m Match, staleBefore time.Time) ([]Subscription, error) {
	key, err := mongoMatchKey(m.Field)
	if err != nil {
		return nil, err
	}

	filter := bson.M{key: m.Value}
	for k, v := range claimableFilter(staleBefore) {
		filter[k] = v
	}

	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find claimable: %w", err)
	}
	var docs []mongoSubscription
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode claimable: %w", err)
	}

	out := make([]Subscription, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toSubscription())
	}
	return out, nil
}

func (r *MongoRepository) Claim(ctx context.Context, id, token string, now, staleBefore time.Time) (Subscription, bool, error) {
	filter := claimableFilter(staleBefore)
	filter["_id"] = id
	update := bson.M{"$set": bson.M{
		"status":     string(StatusNotifying),
		"claimToken": token,
		"claimedAt":  now,
	}}

	var doc mongoSubscription
	err := r.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Subscription{}, false, nil
		}
		return Subscription{}, false, fmt.Errorf("claim subscription %s: %w", id, err)
	}
	return doc.toSubscription(), true, nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete subscription %s: %w", id, err)
	}
	return nil
}

func (r *MongoRepository) Release(ctx context.Context, id, token string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(StatusNotifying), "claimToken": token},
		releaseUpdate(),
	)
	if err != nil {
		return false, fmt.Errorf("release subscription %s: %w", id, err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoRepository) ReleaseExpired(ctx context.Context, staleBefore time.Time) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"status": string(StatusNotifying), "claimedAt": bson.M{"$lt": staleBefore}},
		releaseUpdate(),
	)
	if err != nil {
		return 0, fmt.Errorf("release expired claims: %w", err)
	}
	return res.ModifiedCount, nil
}

func claimableFilter(staleBefore time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"status": string(StatusPending)},
		bson.M{"status": string(StatusNotifying), "claimedAt": bson.M{"$lt": staleBefore}},
	}}
}

func releaseUpdate() bson.M {
	return bson.M{
		"$set":   bson.M{"status": string(StatusPending)},
		"$unset": bson.M{"claimToken": "", "claimedAt": ""},
	}
}

func mongoMatchKey(f Field) (string, error) {
	switch f {
	case FieldInventoryItemID:
		return "inventoryItemId", nil
	case FieldVariantID:
		return "variantId", nil
	case FieldProductID:
		return "productId", nil
	}
	return "", fmt.Errorf("unknown match field %q", f)
}
