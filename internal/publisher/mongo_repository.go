package publisher

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// mongoRepository provides MongoDB access to event data
type mongoRepository struct {
	events *mongo.Collection
}

// NewRepository creates a new event repository
func NewRepository(db *mongo.Database) Repository {
	return &mongoRepository{
		events: db.Collection("webhook_events"),
	}
}

func (r *mongoRepository) Insert(ctx context.Context, event *Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := r.events.InsertOne(ctx, event)
	return err
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*Event, error) {
	var event Event
	err := r.events.FindOne(ctx, bson.M{"_id": id}).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}
