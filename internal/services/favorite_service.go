package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"coachyard/backend/internal/config"
	"coachyard/backend/internal/db"
	"coachyard/backend/internal/models"
	"coachyard/backend/internal/utils"
)

// IFavoriteService defines the interface for favorite (saved listing) operations.
type IFavoriteService interface {
	// Add saves a listing for the user. Saving twice is a no-op.
	Add(ctx context.Context, userID, listingID utils.SixID) error
	Remove(ctx context.Context, userID, listingID utils.SixID) error
	// ListForUser returns the user's saved listings, most recently saved first.
	ListForUser(ctx context.Context, userID utils.SixID) ([]models.Listing, error)
	CountForUser(ctx context.Context, userID utils.SixID) (int64, error)
}

const favoritesCollection = "favorites"

// favoriteService implements IFavoriteService.
type favoriteService struct {
	db             *mongo.Database
	cfg            *config.Config
	listingService IListingService
}

// NewFavoriteService creates a new FavoriteService.
func NewFavoriteService(db *mongo.Database, cfg *config.Config, listingService IListingService) IFavoriteService {
	return &favoriteService{db: db, cfg: cfg, listingService: listingService}
}

func (s *favoriteService) Add(ctx context.Context, userID, listingID utils.SixID) error {
	if _, err := s.listingService.FindListingByID(ctx, listingID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		return fmt.Errorf("error resolving listing %s: %w", listingID.String(), err)
	}

	fav := &models.Favorite{
		Base:      models.Base{ID: utils.NewSixID()},
		UserID:    userID,
		ListingID: listingID,
		CreatedAt: time.Now().UTC(),
	}

	collection := s.db.Collection(favoritesCollection)
	_, err := collection.InsertOne(ctx, fav)
	if err != nil {
		// Already saved; the unique (user_id, listing_id) index caught it.
		if db.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to save favorite: %w", err)
	}
	return nil
}

func (s *favoriteService) Remove(ctx context.Context, userID, listingID utils.SixID) error {
	collection := s.db.Collection(favoritesCollection)
	_, err := collection.DeleteOne(ctx, bson.M{"user_id": userID, "listing_id": listingID})
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

func (s *favoriteService) ListForUser(ctx context.Context, userID utils.SixID) ([]models.Listing, error) {
	collection := s.db.Collection(favoritesCollection)
	cur, err := collection.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing favorites for user %s: %w", userID.String(), err)
	}
	defer cur.Close(ctx)

	var favorites []models.Favorite
	if err := cur.All(ctx, &favorites); err != nil {
		return nil, fmt.Errorf("error decoding favorites: %w", err)
	}

	listings := make([]models.Listing, 0, len(favorites))
	for _, fav := range favorites {
		listing, err := s.listingService.FindListingByID(ctx, fav.ListingID)
		if err != nil {
			// The listing may have been deleted since it was saved.
			if errors.Is(err, mongo.ErrNoDocuments) {
				continue
			}
			return nil, fmt.Errorf("error resolving favorite listing %s: %w", fav.ListingID.String(), err)
		}
		listings = append(listings, *listing)
	}
	return listings, nil
}

func (s *favoriteService) CountForUser(ctx context.Context, userID utils.SixID) (int64, error) {
	collection := s.db.Collection(favoritesCollection)
	count, err := collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("error counting favorites for user %s: %w", userID.String(), err)
	}
	return count, nil
}
