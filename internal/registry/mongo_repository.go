package registry

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoRepository provides MongoDB access to subscription data
type mongoRepository struct {
	webhooks *mongo.Collection
}

// NewRepository creates a new subscription repository
func NewRepository(db *mongo.Database) Repository {
	return &mongoRepository{
		webhooks: db.Collection("webhooks"),
	}
}

func (r *mongoRepository) Insert(ctx context.Context, sub *Subscription) error {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	_, err := r.webhooks.InsertOne(ctx, sub)
	return err
}

func (r *mongoRepository) Update(ctx context.Context, sub *Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	result, err := r.webhooks.ReplaceOne(ctx, bson.M{"_id": sub.ID}, sub)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.webhooks.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription
	err := r.webhooks.FindOne(ctx, bson.M{"_id": id}).Decode(&sub)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *mongoRepository) List(ctx context.Context, opts ListOptions) ([]*Subscription, int64, error) {
	opts.Normalize()

	filter := bson.M{}
	if opts.OwnerID != "" {
		filter["ownerId"] = opts.OwnerID
	}
	if opts.EventType != "" {
		filter["eventTypes"] = opts.EventType
	}
	if opts.Active != nil {
		filter["active"] = *opts.Active
	}

	total, err := r.webhooks.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	dir := 1
	if opts.SortDir == SortDesc {
		dir = -1
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: sortFieldToBSON(opts.SortField), Value: dir}}).
		SetSkip(int64((opts.Page - 1) * opts.PageSize)).
		SetLimit(int64(opts.PageSize))

	cursor, err := r.webhooks.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var subs []*Subscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

func (r *mongoRepository) FindActiveByEventType(ctx context.Context, eventType string) ([]*Subscription, error) {
	cursor, err := r.webhooks.Find(ctx, bson.M{
		"active":     true,
		"eventTypes": eventType,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var subs []*Subscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// sortFieldToBSON maps API sort field names to stored field names
func sortFieldToBSON(field string) string {
	switch field {
	case "name":
		return "name"
	case "updatedAt":
		return "updatedAt"
	case "targetUrl":
		return "targetUrl"
	default:
		return "createdAt"
	}
}
