package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"coachyard/backend/internal/apperr"
	"coachyard/backend/internal/config"
	"coachyard/backend/internal/db"
	"coachyard/backend/internal/models"
	"coachyard/backend/internal/utils"
)

// IConversationService defines the interface for conversation operations.
type IConversationService interface {
	// GetOrCreate returns the one conversation for (listing, buyer), creating
	// it if necessary. The create is idempotent: concurrent callers racing on
	// the unique index both end up with the same surviving row.
	GetOrCreate(ctx context.Context, listingID, buyerID utils.SixID) (*models.Conversation, error)
	FindByID(ctx context.Context, conversationID utils.SixID) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID utils.SixID) ([]models.ConversationSummary, error)
	CountForUser(ctx context.Context, userID utils.SixID) (int64, error)
	UnreadTotalForUser(ctx context.Context, userID utils.SixID) (int64, error)
}

const conversationsCollection = "conversations"

// conversationService implements IConversationService.
type conversationService struct {
	db             *mongo.Database
	cfg            *config.Config
	listingService IListingService
}

// NewConversationService creates a new ConversationService.
func NewConversationService(db *mongo.Database, cfg *config.Config, listingService IListingService) IConversationService {
	return &conversationService{db: db, cfg: cfg, listingService: listingService}
}

// GetOrCreate resolves the listing, rejects self-messaging, and returns the
// existing conversation unchanged if one exists. Otherwise it inserts one with
// the seller copied from the listing's current owner; the seller is fixed at
// that moment and never re-derived.
func (s *conversationService) GetOrCreate(ctx context.Context, listingID, buyerID utils.SixID) (*models.Conversation, error) {
	listing, err := s.listingService.FindListingByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.E(apperr.KindNotFound, "listing_not_found", "Listing not found")
		}
		return nil, apperr.Internal(err)
	}

	if listing.UserID == buyerID {
		return nil, apperr.E(apperr.KindInvalidOperation, "self_message", "You cannot message yourself about your own listing")
	}

	collection := s.db.Collection(conversationsCollection)
	pairFilter := bson.M{"listing_id": listingID, "buyer_id": buyerID}

	var existing models.Conversation
	err = collection.FindOne(ctx, pairFilter).Decode(&existing)
	if err == nil {
		// Idempotent: no new row, no timestamp bump.
		return &existing, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.Internal(fmt.Errorf("error looking up conversation for listing %s: %w", listingID.String(), err))
	}

	now := time.Now().UTC()
	conv := &models.Conversation{
		Base:      models.Base{ID: utils.NewSixID()},
		ListingID: listingID,
		BuyerID:   buyerID,
		SellerID:  listing.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = collection.InsertOne(ctx, conv)
	if err != nil {
		// Losing the create race trips the (listing_id, buyer_id) unique
		// index; the loser returns the winner's row instead of erroring.
		if db.IsDuplicateKeyError(err) {
			var winner models.Conversation
			if findErr := collection.FindOne(ctx, pairFilter).Decode(&winner); findErr != nil {
				return nil, apperr.Internal(fmt.Errorf("conversation insert collided but re-fetch failed: %w", findErr))
			}
			return &winner, nil
		}
		return nil, apperr.Internal(fmt.Errorf("failed to insert conversation for listing %s: %w", listingID.String(), err))
	}

	return conv, nil
}

// FindByID returns a conversation by ID.
// Returns mongo.ErrNoDocuments if not found.
func (s *conversationService) FindByID(ctx context.Context, conversationID utils.SixID) (*models.Conversation, error) {
	var conv models.Conversation
	collection := s.db.Collection(conversationsCollection)

	err := collection.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding conversation %s: %w", conversationID.String(), err)
	}
	return &conv, nil
}

// ListForUser returns the user's conversations ordered by updated_at
// descending, each with the last message preview and the viewer's unread
// count (messages sent by the counterpart and not yet read).
func (s *conversationService) ListForUser(ctx context.Context, userID utils.SixID) ([]models.ConversationSummary, error) {
	collection := s.db.Collection(conversationsCollection)

	filter := bson.M{"$or": []bson.M{{"buyer_id": userID}, {"seller_id": userID}}}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})

	cur, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("error listing conversations for user %s: %w", userID.String(), err))
	}
	defer cur.Close(ctx)

	var conversations []models.Conversation
	if err := cur.All(ctx, &conversations); err != nil {
		return nil, apperr.Internal(fmt.Errorf("error decoding conversations: %w", err))
	}

	messages := s.db.Collection(messagesCollection)
	summaries := make([]models.ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		summary := models.ConversationSummary{Conversation: conv}

		var last models.Message
		err := messages.FindOne(ctx,
			bson.M{"conversation_id": conv.ID},
			options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
		).Decode(&last)
		if err == nil {
			summary.LastMessage = last.Text
			t := last.CreatedAt
			summary.LastMessageAt = &t
		} else if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.Internal(fmt.Errorf("error fetching last message for conversation %s: %w", conv.ID.String(), err))
		}

		unread, err := messages.CountDocuments(ctx, bson.M{
			"conversation_id": conv.ID,
			"sender_id":       bson.M{"$ne": userID},
			"read":            false,
		})
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("error counting unread for conversation %s: %w", conv.ID.String(), err))
		}
		summary.UnreadCount = int(unread)

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// CountForUser counts conversations the user participates in.
func (s *conversationService) CountForUser(ctx context.Context, userID utils.SixID) (int64, error) {
	collection := s.db.Collection(conversationsCollection)
	count, err := collection.CountDocuments(ctx, bson.M{
		"$or": []bson.M{{"buyer_id": userID}, {"seller_id": userID}},
	})
	if err != nil {
		return 0, fmt.Errorf("error counting conversations for user %s: %w", userID.String(), err)
	}
	return count, nil
}

// UnreadTotalForUser sums unread counterpart messages across all of the
// user's conversations.
func (s *conversationService) UnreadTotalForUser(ctx context.Context, userID utils.SixID) (int64, error) {
	conversations := s.db.Collection(conversationsCollection)
	cur, err := conversations.Find(ctx,
		bson.M{"$or": []bson.M{{"buyer_id": userID}, {"seller_id": userID}}},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, fmt.Errorf("error finding conversations for unread total: %w", err)
	}
	defer cur.Close(ctx)

	var ids []utils.SixID
	for cur.Next(ctx) {
		var doc struct {
			ID utils.SixID `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return 0, fmt.Errorf("error decoding conversation id: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return 0, fmt.Errorf("error iterating conversations: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	messages := s.db.Collection(messagesCollection)
	count, err := messages.CountDocuments(ctx, bson.M{
		"conversation_id": bson.M{"$in": ids},
		"sender_id":       bson.M{"$ne": userID},
		"read":            false,
	})
	if err != nil {
		return 0, fmt.Errorf("error counting unread messages: %w", err)
	}
	return count, nil
}
