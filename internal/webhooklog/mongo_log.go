package webhooklog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoLog struct {
	collection *mongo.Collection
	reclaim    time.Duration
}

func NewMongoLog(db *mongo.Database, reclaimAfter time.Duration) *MongoLog {
	return &MongoLog{
		collection: db.Collection("webhook_log"),
		reclaim:    reclaimAfter,
	}
}

func (l *MongoLog) Claim(ctx context.Context, key, eventType string, payload []byte) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	now := time.Now()

	update := bson.M{"$setOnInsert": bson.M{
		"event_type": eventType,
		"payload":    payload,
		"processed":  false,
		"claimed_at": now,
	}}
	opts := options.Update().SetUpsert(true)

	result, err := l.collection.UpdateOne(ctx, bson.M{"_id": key}, update, opts)
	if err != nil {
		// two concurrent upserts on the same _id: the loser surfaces a
		// duplicate key error and has not claimed the event
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("claim webhook entry: %w", err)
	}
	if result.UpsertedCount == 1 {
		return true, nil
	}

	// The entry already existed. Reclaim it only if a previous consumer
	// claimed it but never finished inside the reclaim window.
	stale := bson.M{
		"_id":        key,
		"processed":  false,
		"claimed_at": bson.M{"$lt": now.Add(-l.reclaim)},
	}
	reclaimed, err := l.collection.UpdateOne(ctx, stale, bson.M{"$set": bson.M{"claimed_at": now}})
	if err != nil {
		return false, fmt.Errorf("reclaim webhook entry: %w", err)
	}
	return reclaimed.ModifiedCount == 1, nil
}

func (l *MongoLog) MarkProcessed(ctx context.Context, key string) error {
	now := time.Now()
	_, err := l.collection.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"processed": true, "processed_at": now}})
	if err != nil {
		return fmt.Errorf("mark webhook entry processed: %w", err)
	}
	return nil
}

// CreateIndexes sets up the retention index; processed entries expire after
// the configured window.
func (l *MongoLog) CreateIndexes(ctx context.Context, retention time.Duration) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "processed_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds())),
	}

	_, err := l.collection.Indexes().CreateOne(ctx, index)
	if err != nil {
		return fmt.Errorf("failed to create webhook log indexes: %w", err)
	}
	return nil
}

var _ Log = (*MongoLog)(nil)
