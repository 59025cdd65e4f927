package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoRepository provides MongoDB access to delivery rows
type mongoRepository struct {
	deliveries *mongo.Collection
}

// NewRepository creates a new delivery repository
func NewRepository(db *mongo.Database) Repository {
	return &mongoRepository{
		deliveries: db.Collection("webhook_deliveries"),
	}
}

func (r *mongoRepository) EnqueuePending(ctx context.Context, subscriptionID, eventID, eventType string) error {
	now := time.Now().UTC()
	d := &Delivery{
		ID:             uuid.NewString(),
		SubscriptionID: subscriptionID,
		EventID:        eventID,
		EventType:      eventType,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := r.deliveries.InsertOne(ctx, d)
	return err
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*Delivery, error) {
	var d Delivery
	err := r.deliveries.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *mongoRepository) Update(ctx context.Context, d *Delivery) error {
	d.UpdatedAt = time.Now().UTC()
	result, err := r.deliveries.ReplaceOne(ctx, bson.M{"_id": d.ID}, d)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// claimOne moves a single row matching filter to in_progress and returns the
// claimed state. FindOneAndUpdate makes the read-and-mark a single storage
// operation, so two workers can never claim the same row.
func (r *mongoRepository) claimOne(ctx context.Context, filter bson.M, sort bson.D) (*Delivery, error) {
	update := bson.M{"$set": bson.M{
		"status":    StatusInProgress,
		"updatedAt": time.Now().UTC(),
	}}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After)
	if sort != nil {
		opts.SetSort(sort)
	}

	var d Delivery
	err := r.deliveries.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotClaimable
		}
		return nil, err
	}
	return &d, nil
}

func (r *mongoRepository) ClaimPending(ctx context.Context, limit int) ([]*Delivery, error) {
	return r.claimBatch(ctx, bson.M{"status": StatusPending}, bson.D{{Key: "createdAt", Value: 1}}, limit)
}

func (r *mongoRepository) ClaimDueRetries(ctx context.Context, now time.Time, limit int) ([]*Delivery, error) {
	filter := bson.M{
		"status":      StatusRetrying,
		"nextRetryAt": bson.M{"$lte": now},
	}
	return r.claimBatch(ctx, filter, bson.D{{Key: "nextRetryAt", Value: 1}}, limit)
}

func (r *mongoRepository) claimBatch(ctx context.Context, filter bson.M, sort bson.D, limit int) ([]*Delivery, error) {
	var claimed []*Delivery
	for len(claimed) < limit {
		d, err := r.claimOne(ctx, filter, sort)
		if err != nil {
			if errors.Is(err, ErrNotClaimable) {
				break
			}
			return claimed, err
		}
		claimed = append(claimed, d)
	}
	return claimed, nil
}

func (r *mongoRepository) ClaimByID(ctx context.Context, id string) (*Delivery, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": []Status{StatusPending, StatusRetrying}},
	}
	return r.claimOne(ctx, filter, nil)
}

func (r *mongoRepository) ResetForRetry(ctx context.Context, id string) error {
	update := bson.M{
		"$set": bson.M{
			"status":    StatusPending,
			"attempts":  0,
			"updatedAt": time.Now().UTC(),
		},
		"$unset": bson.M{
			"nextRetryAt": "",
			"lastError":   "",
		},
	}
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": []Status{StatusRetrying, StatusAbandoned}},
	}
	result, err := r.deliveries.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotRetryable
	}
	return nil
}

func (r *mongoRepository) CountDeliveredSince(ctx context.Context, subscriptionID string, since time.Time) (int64, error) {
	return r.deliveries.CountDocuments(ctx, bson.M{
		"subscriptionId": subscriptionID,
		"status":         StatusDelivered,
		"deliveredAt":    bson.M{"$gte": since},
	})
}

func (r *mongoRepository) ListBySubscriptionSince(ctx context.Context, subscriptionID string, since time.Time) ([]*Delivery, error) {
	cursor, err := r.deliveries.Find(ctx, bson.M{
		"subscriptionId": subscriptionID,
		"createdAt":      bson.M{"$gte": since},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*Delivery
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mongoRepository) DeleteBySubscription(ctx context.Context, subscriptionID string) (int64, error) {
	result, err := r.deliveries.DeleteMany(ctx, bson.M{"subscriptionId": subscriptionID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (r *mongoRepository) SweepDeadLetters(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	filter := bson.M{
		"status":    bson.M{"$in": []Status{StatusPending, StatusRetrying}},
		"createdAt": bson.M{"$lt": cutoff},
	}
	update := bson.M{
		"$set": bson.M{
			"status":    StatusAbandoned,
			"lastError": reason,
			"updatedAt": time.Now().UTC(),
		},
		"$unset": bson.M{"nextRetryAt": ""},
	}
	result, err := r.deliveries.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (r *mongoRepository) PurgeDelivered(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.deliveries.DeleteMany(ctx, bson.M{
		"status":      StatusDelivered,
		"deliveredAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (r *mongoRepository) RecoverStale(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"status":    StatusInProgress,
		"updatedAt": bson.M{"$lt": cutoff},
	}
	update := bson.M{"$set": bson.M{
		"status":    StatusPending,
		"updatedAt": time.Now().UTC(),
	}}
	result, err := r.deliveries.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}
