package repository

import (
	"context"
	"fmt"

	"github.com/ncobase/keyvault/core/event/structs"
	"github.com/ncobase/keyvault/logging/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps events in a mongo collection.
type MongoStore struct {
	collection *mongo.Collection
	logger     *logger.Logger
}

func NewMongoStore(collection *mongo.Collection, logger *logger.Logger) (*MongoStore, error) {
	if collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}

	store := &MongoStore{collection: collection, logger: logger}
	if err := store.ensureIndexes(context.Background()); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "workspace_id", Value: 1}, {Key: "timestamp", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "timestamp", Value: -1}},
		},
	})
	return err
}

func (s *MongoStore) Save(ctx context.Context, event *structs.Event) error {
	filter := bson.M{"id": event.ID}
	update := bson.M{"$set": event}
	_, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil && s.logger != nil {
		s.logger.Error(ctx, "Failed to save event in Mongo", "error", err, "event_id", event.ID)
	}
	return err
}

func mongoFilter(workspaceID string, f structs.Filter) bson.M {
	filter := bson.M{"workspace_id": workspaceID}
	if len(f.Sources) > 0 {
		filter["source"] = bson.M{"$in": f.Sources}
	}
	if len(f.Types) > 0 {
		filter["type"] = bson.M{"$in": f.Types}
	}
	if f.ItemID != "" {
		filter["item_id"] = f.ItemID
	}
	return filter
}

func (s *MongoStore) List(ctx context.Context, workspaceID string, f structs.Filter, offset, limit int) ([]*structs.Event, int, error) {
	filter := mongoFilter(workspaceID, f)

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	direction := -1
	if f.Order == "asc" {
		direction = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: direction}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var events []*structs.Event
	for cursor.Next(ctx) {
		evt := &structs.Event{}
		if err := cursor.Decode(evt); err != nil {
			return nil, 0, err
		}
		events = append(events, evt)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, err
	}

	return events, int(total), nil
}
