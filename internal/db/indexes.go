package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the application's invariants depend on.
// CreateMany is idempotent for identical definitions, so this is safe to call
// on every startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	// The (listing_id, buyer_id) unique index backs the one-conversation-per-
	// pair invariant and the idempotent get-or-create race resolution.
	_, err := db.Collection("conversations").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "listing_id", Value: 1}, {Key: "buyer_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create conversations index: %w", err)
	}

	_, err = db.Collection("messages").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create messages index: %w", err)
	}

	// Search scans active, non-deleted listings newest first.
	_, err = db.Collection("listings").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "deleted", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create listings index: %w", err)
	}

	_, err = db.Collection("favorites").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "listing_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create favorites index: %w", err)
	}

	// Email uniqueness applies only among non-deleted accounts.
	_, err = db.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"deleted": false}),
	})
	if err != nil {
		return fmt.Errorf("failed to create users email index: %w", err)
	}

	_, err = db.Collection("unlock_payments").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "ref", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create unlock_payments index: %w", err)
	}

	return nil
}
