package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
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

// SearchFilter narrows a listing search. Zero values mean "no constraint".
type SearchFilter struct {
	Query    string // matched against title, make, model
	Make     string
	MinYear  int
	MaxYear  int
	MaxPrice float64
}

// IListingService defines the interface for listing-related operations.
type IListingService interface {
	CreateListing(ctx context.Context, userID utils.SixID, title, body, make_, model string, year, mileage int, lengthFeet float64, askingPrice *models.AskingPrice) (*models.Listing, error)
	FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error)
	UpdateListing(ctx context.Context, listingID, userID utils.SixID, updates map[string]interface{}) (*models.Listing, error)
	PublishListing(ctx context.Context, listingID, userID utils.SixID) error
	MarkSold(ctx context.Context, listingID, userID utils.SixID) error
	DeleteListing(ctx context.Context, listingID, userID utils.SixID) error
	SearchListings(ctx context.Context, filter SearchFilter, limit int, cursor *string) ([]models.Listing, *string, error)
	FindListingsByUserID(ctx context.Context, userID utils.SixID) ([]models.Listing, error)
	CountActiveByUser(ctx context.Context, userID utils.SixID) (int64, error)
	AddImageToListing(ctx context.Context, listingID, userID utils.SixID, imageKey string) error
}

const listingsCollection = "listings"

// listingService implements IListingService.
type listingService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewListingService creates a new ListingService.
func NewListingService(db *mongo.Database, cfg *config.Config) IListingService {
	return &listingService{db: db, cfg: cfg}
}

// CreateListing creates a new listing document in draft state.
func (s *listingService) CreateListing(ctx context.Context, userID utils.SixID, title, body, make_, model string, year, mileage int, lengthFeet float64, askingPrice *models.AskingPrice) (*models.Listing, error) {
	collection := s.db.Collection(listingsCollection)
	now := time.Now().UTC()

	var newListing *models.Listing

	operation := func() error {
		newListing = &models.Listing{
			Base:        models.Base{ID: utils.NewSixID()},
			UserID:      userID,
			Title:       title,
			Body:        body,
			Make:        make_,
			Model:       model,
			Year:        year,
			Mileage:     mileage,
			LengthFeet:  lengthFeet,
			AskingPrice: askingPrice,
			Status:      models.ListingStatusDraft,
			Images:      []string{},
			Deleted:     false,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		_, insertErr := collection.InsertOne(ctx, newListing)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert new listing for user %s: %w", userID.String(), err)
	}

	return newListing, nil
}

// FindListingByID finds a non-deleted listing by its ID. It does NOT check
// ownership; callers that mutate must filter on user_id themselves.
func (s *listingService) FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	var listing models.Listing
	collection := s.db.Collection(listingsCollection)
	filter := bson.M{"_id": listingID, "deleted": false}

	err := collection.FindOne(ctx, filter).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding listing by ID %s: %w", listingID.String(), err)
	}
	return &listing, nil
}

// UpdateListing updates mutable fields of a listing owned by the given user.
// Status transitions go through PublishListing/MarkSold, not here.
func (s *listingService) UpdateListing(ctx context.Context, listingID, userID utils.SixID, updates map[string]interface{}) (*models.Listing, error) {
	collection := s.db.Collection(listingsCollection)

	allowed := bson.M{}
	for key, value := range updates {
		switch key {
		case "title", "body", "make", "model", "year", "mileage", "length_feet", "asking_price":
			allowed[key] = value
		default:
			return nil, apperr.E(apperr.KindValidation, "invalid_field",
				fmt.Sprintf("Field '%s' cannot be updated", key))
		}
	}
	if len(allowed) == 0 {
		return nil, apperr.E(apperr.KindValidation, "no_fields", "No valid fields provided for update")
	}
	allowed["updated_at"] = time.Now().UTC()

	filter := bson.M{"_id": listingID, "user_id": userID, "deleted": false}
	result := collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": allowed},
		options.FindOneAndUpdate().SetReturnDocument(options.After))

	var updated models.Listing
	if err := result.Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Distinguish a missing listing from one owned by someone else.
			if _, findErr := s.FindListingByID(ctx, listingID); findErr == nil {
				return nil, apperr.E(apperr.KindForbidden, "not_owner", "You do not own this listing")
			}
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error updating listing %s: %w", listingID.String(), err)
	}
	return &updated, nil
}

// PublishListing moves a draft listing to active.
func (s *listingService) PublishListing(ctx context.Context, listingID, userID utils.SixID) error {
	now := time.Now().UTC()
	return s.transition(ctx, listingID, userID,
		bson.M{"status": models.ListingStatusDraft},
		bson.M{"status": models.ListingStatusActive, "published_at": now, "updated_at": now})
}

// MarkSold moves an active or pending listing to sold.
func (s *listingService) MarkSold(ctx context.Context, listingID, userID utils.SixID) error {
	now := time.Now().UTC()
	return s.transition(ctx, listingID, userID,
		bson.M{"status": bson.M{"$in": []models.ListingStatus{models.ListingStatusActive, models.ListingStatusPending}}},
		bson.M{"status": models.ListingStatusSold, "updated_at": now})
}

// transition applies a guarded status change. When the guarded update matches
// nothing, classifyMiss tells the caller whether the listing is missing, not
// theirs, or just in the wrong state.
func (s *listingService) transition(ctx context.Context, listingID, userID utils.SixID, guard, set bson.M) error {
	collection := s.db.Collection(listingsCollection)
	filter := bson.M{"_id": listingID, "user_id": userID, "deleted": false}
	for k, v := range guard {
		filter[k] = v
	}
	result, err := collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("error transitioning listing %s: %w", listingID.String(), err)
	}
	if result.MatchedCount == 0 {
		return s.classifyMiss(ctx, listingID, userID)
	}
	return nil
}

// classifyMiss explains why an ownership-guarded update matched nothing.
func (s *listingService) classifyMiss(ctx context.Context, listingID, userID utils.SixID) error {
	listing, err := s.FindListingByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		return err
	}
	if listing.UserID != userID {
		return apperr.E(apperr.KindForbidden, "not_owner", "You do not own this listing")
	}
	return apperr.E(apperr.KindInvalidOperation, "invalid_status",
		fmt.Sprintf("Listing status '%s' does not allow this operation", listing.Status))
}

// DeleteListing soft-deletes a listing owned by the given user.
func (s *listingService) DeleteListing(ctx context.Context, listingID, userID utils.SixID) error {
	collection := s.db.Collection(listingsCollection)
	filter := bson.M{"_id": listingID, "user_id": userID, "deleted": false}
	update := bson.M{"$set": bson.M{"deleted": true, "updated_at": time.Now().UTC()}}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("error deleting listing %s: %w", listingID.String(), err)
	}
	if result.MatchedCount == 0 {
		if _, findErr := s.FindListingByID(ctx, listingID); findErr == nil {
			return apperr.E(apperr.KindForbidden, "not_owner", "You do not own this listing")
		}
		return mongo.ErrNoDocuments
	}
	return nil
}

// SearchListings returns active listings matching the filter, newest first,
// with simple created_at cursor pagination.
func (s *listingService) SearchListings(ctx context.Context, filter SearchFilter, limit int, cursor *string) ([]models.Listing, *string, error) {
	collection := s.db.Collection(listingsCollection)

	query := bson.M{
		"deleted": false,
		"status":  models.ListingStatusActive,
	}
	if filter.Query != "" {
		// Search terms are literal text, never regex syntax.
		pattern := bson.M{"$regex": regexp.QuoteMeta(filter.Query), "$options": "i"}
		query["$or"] = []bson.M{{"title": pattern}, {"make": pattern}, {"model": pattern}}
	}
	if filter.Make != "" {
		query["make"] = bson.M{"$regex": "^" + regexp.QuoteMeta(filter.Make) + "$", "$options": "i"}
	}
	yearRange := bson.M{}
	if filter.MinYear > 0 {
		yearRange["$gte"] = filter.MinYear
	}
	if filter.MaxYear > 0 {
		yearRange["$lte"] = filter.MaxYear
	}
	if len(yearRange) > 0 {
		query["year"] = yearRange
	}
	if filter.MaxPrice > 0 {
		query["asking_price.value"] = bson.M{"$lte": filter.MaxPrice}
	}
	if cursor != nil && *cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, *cursor)
		if err != nil {
			return nil, nil, apperr.E(apperr.KindValidation, "invalid_cursor", "Invalid cursor format")
		}
		query["created_at"] = bson.M{"$lt": cursorTime}
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := collection.Find(ctx, query, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("error searching listings: %w", err)
	}
	defer cur.Close(ctx)

	var listings []models.Listing
	if err := cur.All(ctx, &listings); err != nil {
		return nil, nil, fmt.Errorf("error decoding listing search results: %w", err)
	}

	var nextCursor *string
	if len(listings) == limit {
		c := listings[len(listings)-1].CreatedAt.Format(time.RFC3339Nano)
		nextCursor = &c
	}
	return listings, nextCursor, nil
}

// FindListingsByUserID returns a seller's non-deleted listings, newest first.
func (s *listingService) FindListingsByUserID(ctx context.Context, userID utils.SixID) ([]models.Listing, error) {
	collection := s.db.Collection(listingsCollection)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cur, err := collection.Find(ctx, bson.M{"user_id": userID, "deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding listings for user %s: %w", userID.String(), err)
	}
	defer cur.Close(ctx)

	var listings []models.Listing
	if err := cur.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("error decoding user listings: %w", err)
	}
	return listings, nil
}

// CountActiveByUser counts a seller's active listings (stats endpoint).
func (s *listingService) CountActiveByUser(ctx context.Context, userID utils.SixID) (int64, error) {
	collection := s.db.Collection(listingsCollection)
	count, err := collection.CountDocuments(ctx, bson.M{
		"user_id": userID,
		"deleted": false,
		"status":  models.ListingStatusActive,
	})
	if err != nil {
		return 0, fmt.Errorf("error counting listings for user %s: %w", userID.String(), err)
	}
	return count, nil
}

// AddImageToListing appends a processed image key to the gallery.
func (s *listingService) AddImageToListing(ctx context.Context, listingID, userID utils.SixID, imageKey string) error {
	collection := s.db.Collection(listingsCollection)
	filter := bson.M{"_id": listingID, "user_id": userID, "deleted": false}
	update := bson.M{
		"$addToSet": bson.M{"images": imageKey},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("error adding image to listing %s: %w", listingID.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
