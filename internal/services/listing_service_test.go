package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"coachyard/backend/internal/apperr"
	"coachyard/backend/internal/config"
	"coachyard/backend/internal/models"
	"coachyard/backend/internal/utils"
)

func setupListingTest(t *testing.T) (IListingService, IUserService) {
	database := utils.SetupTestDB(t, "coachyard_test_listings", usersCollection, listingsCollection)
	cfg := &config.Config{}
	return NewListingService(database, cfg), NewUserService(database)
}

func seedSeller(t *testing.T, users IUserService, email string) *models.User {
	seller, err := users.Register(context.Background(), "Seller", email, "password1", models.RoleSeller)
	require.NoError(t, err)
	return seller
}

func TestListingService_Lifecycle(t *testing.T) {
	listings, users := setupListingTest(t)
	ctx := context.Background()
	seller := seedSeller(t, users, "seller@example.com")

	listing, err := listings.CreateListing(ctx, seller.ID,
		"2020 Entegra Cornerstone", "One owner", "Entegra", "Cornerstone", 2020, 18000, 44.5,
		&models.AskingPrice{Value: 649000, CurrencyCode: "USD"})
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusDraft, listing.Status)
	assert.Nil(t, listing.PublishedAt)

	// Draft listings cannot be marked sold.
	err = listings.MarkSold(ctx, listing.ID, seller.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidOperation, apperr.KindOf(err))

	require.NoError(t, listings.PublishListing(ctx, listing.ID, seller.ID))
	published, err := listings.FindListingByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusActive, published.Status)
	require.NotNil(t, published.PublishedAt)

	// Publishing twice is an invalid transition.
	err = listings.PublishListing(ctx, listing.ID, seller.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidOperation, apperr.KindOf(err))

	require.NoError(t, listings.MarkSold(ctx, listing.ID, seller.ID))
	sold, err := listings.FindListingByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusSold, sold.Status)
}

func TestListingService_OwnershipEnforced(t *testing.T) {
	listings, users := setupListingTest(t)
	ctx := context.Background()
	owner := seedSeller(t, users, "owner@example.com")
	other := seedSeller(t, users, "other@example.com")

	listing, err := listings.CreateListing(ctx, owner.ID,
		"2017 Monaco Signature", "", "Monaco", "Signature", 2017, 60000, 45, nil)
	require.NoError(t, err)

	err = listings.PublishListing(ctx, listing.ID, other.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = listings.UpdateListing(ctx, listing.ID, other.ID, map[string]interface{}{"title": "Hijacked"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestListingService_SoftDelete(t *testing.T) {
	listings, users := setupListingTest(t)
	ctx := context.Background()
	seller := seedSeller(t, users, "seller@example.com")

	listing, err := listings.CreateListing(ctx, seller.ID,
		"2015 American Eagle", "", "American Coach", "Eagle", 2015, 80000, 45, nil)
	require.NoError(t, err)

	require.NoError(t, listings.DeleteListing(ctx, listing.ID, seller.ID))

	_, err = listings.FindListingByID(ctx, listing.ID)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)
}

func TestListingService_SearchFilters(t *testing.T) {
	listings, users := setupListingTest(t)
	ctx := context.Background()
	seller := seedSeller(t, users, "seller@example.com")

	seed := []struct {
		title string
		make_ string
		model string
		year  int
		price float64
	}{
		{"2019 Prevost H3-45", "Prevost", "H3-45", 2019, 850000},
		{"2012 Prevost XLII", "Prevost", "XLII", 2012, 420000},
		{"2021 Newmar King Aire", "Newmar", "King Aire", 2021, 1250000},
	}
	for _, s := range seed {
		listing, err := listings.CreateListing(ctx, seller.ID, s.title, "", s.make_, s.model, s.year, 10000, 45,
			&models.AskingPrice{Value: s.price, CurrencyCode: "USD"})
		require.NoError(t, err)
		require.NoError(t, listings.PublishListing(ctx, listing.ID, seller.ID))
	}

	// Drafts never show up in search.
	_, err := listings.CreateListing(ctx, seller.ID, "2022 Draft Coach", "", "Prevost", "X3-45", 2022, 0, 45, nil)
	require.NoError(t, err)

	results, _, err := listings.SearchListings(ctx, SearchFilter{Make: "Prevost"}, 0, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, _, err = listings.SearchListings(ctx, SearchFilter{Make: "Prevost", MinYear: 2015}, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "H3-45", results[0].Model)

	results, _, err = listings.SearchListings(ctx, SearchFilter{MaxPrice: 500000}, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "XLII", results[0].Model)

	results, _, err = listings.SearchListings(ctx, SearchFilter{Query: "king"}, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Newmar", results[0].Make)
}

func TestListingService_SearchTreatsTermsAsLiteralText(t *testing.T) {
	listings, users := setupListingTest(t)
	ctx := context.Background()
	seller := seedSeller(t, users, "seller@example.com")

	listing, err := listings.CreateListing(ctx, seller.ID,
		"2019 Prevost H3-45 (VIP)", "", "Prevost", "H3-45", 2019, 42000, 45, nil)
	require.NoError(t, err)
	require.NoError(t, listings.PublishListing(ctx, listing.ID, seller.ID))

	// Regex metacharacters in the query must match as plain characters.
	results, _, err := listings.SearchListings(ctx, SearchFilter{Query: "(vip)"}, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, listing.ID, results[0].ID)

	// An unbalanced metacharacter is not a query error, just no match.
	results, _, err = listings.SearchListings(ctx, SearchFilter{Query: "h3-45 ["}, 0, nil)
	require.NoError(t, err)
	assert.Len(t, results, 0)

	// A wildcard pattern does not match everything.
	results, _, err = listings.SearchListings(ctx, SearchFilter{Query: ".*"}, 0, nil)
	require.NoError(t, err)
	assert.Len(t, results, 0)

	results, _, err = listings.SearchListings(ctx, SearchFilter{Make: "Prev.st"}, 0, nil)
	require.NoError(t, err)
	assert.Len(t, results, 0)
}

func TestListingService_SearchPagination(t *testing.T) {
	listings, users := setupListingTest(t)
	ctx := context.Background()
	seller := seedSeller(t, users, "seller@example.com")

	for i := 0; i < 5; i++ {
		listing, err := listings.CreateListing(ctx, seller.ID,
			"Coach", "", "Prevost", "H3-45", 2015+i, 10000, 45, nil)
		require.NoError(t, err)
		require.NoError(t, listings.PublishListing(ctx, listing.ID, seller.ID))
		// Mongo stores created_at with millisecond precision and the cursor
		// compares with $lt, so give each listing a distinct timestamp.
		time.Sleep(2 * time.Millisecond)
	}

	page1, cursor, err := listings.SearchListings(ctx, SearchFilter{}, 3, nil)
	require.NoError(t, err)
	assert.Len(t, page1, 3)
	require.NotNil(t, cursor)

	page2, _, err := listings.SearchListings(ctx, SearchFilter{}, 3, cursor)
	require.NoError(t, err)
	assert.Len(t, page2, 2)

	seen := map[string]bool{}
	for _, l := range append(page1, page2...) {
		assert.False(t, seen[l.ID.String()], "listing %s returned twice", l.ID.String())
		seen[l.ID.String()] = true
	}
}

func TestListingService_CountActiveByUser(t *testing.T) {
	listings, users := setupListingTest(t)
	ctx := context.Background()
	seller := seedSeller(t, users, "seller@example.com")

	draft, err := listings.CreateListing(ctx, seller.ID, "Draft", "", "Prevost", "H3-45", 2020, 0, 45, nil)
	require.NoError(t, err)
	active, err := listings.CreateListing(ctx, seller.ID, "Active", "", "Prevost", "H3-45", 2021, 0, 45, nil)
	require.NoError(t, err)
	require.NoError(t, listings.PublishListing(ctx, active.ID, seller.ID))
	_ = draft

	count, err := listings.CountActiveByUser(ctx, seller.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
