package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"coachyard/backend/internal/apperr"
	"coachyard/backend/internal/config"
	"coachyard/backend/internal/db"
	"coachyard/backend/internal/models"
	"coachyard/backend/internal/utils"
)

type conversationTestEnv struct {
	db                  *mongo.Database
	userService         IUserService
	listingService      IListingService
	conversationService IConversationService
	messageService      IMessageService
}

func setupConversationTest(t *testing.T) *conversationTestEnv {
	database := utils.SetupTestDB(t, "coachyard_test_conversations",
		usersCollection, listingsCollection, conversationsCollection, messagesCollection)
	require.NoError(t, db.EnsureIndexes(context.Background(), database))

	cfg := &config.Config{}
	userService := NewUserService(database)
	listingService := NewListingService(database, cfg)
	conversationService := NewConversationService(database, cfg, listingService)
	messageService := NewMessageService(database, cfg, conversationService, userService, nil)

	return &conversationTestEnv{
		db:                  database,
		userService:         userService,
		listingService:      listingService,
		conversationService: conversationService,
		messageService:      messageService,
	}
}

// seedListing registers a seller and an active listing owned by them.
func (env *conversationTestEnv) seedListing(t *testing.T, sellerEmail string) (*models.User, *models.Listing) {
	ctx := context.Background()
	seller, err := env.userService.Register(ctx, "Seller", sellerEmail, "password1", models.RoleSeller)
	require.NoError(t, err)

	listing, err := env.listingService.CreateListing(ctx, seller.ID,
		"2019 Prevost H3-45", "Well maintained", "Prevost", "H3-45", 2019, 42000, 45, nil)
	require.NoError(t, err)
	require.NoError(t, env.listingService.PublishListing(ctx, listing.ID, seller.ID))
	return seller, listing
}

func (env *conversationTestEnv) seedBuyer(t *testing.T, email string) *models.User {
	buyer, err := env.userService.Register(context.Background(), "Buyer", email, "password1", models.RoleBuyer)
	require.NoError(t, err)
	return buyer
}

func TestConversationService_GetOrCreateIsIdempotent(t *testing.T) {
	env := setupConversationTest(t)
	ctx := context.Background()

	seller, listing := env.seedListing(t, "seller@example.com")
	buyer := env.seedBuyer(t, "buyer@example.com")

	conv, err := env.conversationService.GetOrCreate(ctx, listing.ID, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.ID, conv.ListingID)
	assert.Equal(t, buyer.ID, conv.BuyerID)
	assert.Equal(t, seller.ID, conv.SellerID)

	// A second call returns the same conversation without touching it.
	again, err := env.conversationService.GetOrCreate(ctx, listing.ID, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
	assert.Equal(t, conv.UpdatedAt.Unix(), again.UpdatedAt.Unix())

	count, err := env.conversationService.CountForUser(ctx, buyer.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestConversationService_ConcurrentGetOrCreateSingleRow(t *testing.T) {
	env := setupConversationTest(t)
	ctx := context.Background()

	_, listing := env.seedListing(t, "seller@example.com")
	buyer := env.seedBuyer(t, "buyer@example.com")

	// All callers race past the lookup; the unique (listing_id, buyer_id)
	// index rejects every insert but one, and losers re-fetch the winner.
	const callers = 8
	ids := make([]utils.SixID, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			conv, err := env.conversationService.GetOrCreate(ctx, listing.ID, buyer.ID)
			errs[i] = err
			if err == nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i], "caller %d", i)
		assert.Equal(t, ids[0], ids[i], "caller %d got a different conversation", i)
	}

	count, err := env.db.Collection(conversationsCollection).CountDocuments(ctx,
		bson.M{"listing_id": listing.ID, "buyer_id": buyer.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestConversationService_SeparateBuyersGetSeparateConversations(t *testing.T) {
	env := setupConversationTest(t)
	ctx := context.Background()

	seller, listing := env.seedListing(t, "seller@example.com")
	buyerA := env.seedBuyer(t, "a@example.com")
	buyerB := env.seedBuyer(t, "b@example.com")

	convA, err := env.conversationService.GetOrCreate(ctx, listing.ID, buyerA.ID)
	require.NoError(t, err)
	convB, err := env.conversationService.GetOrCreate(ctx, listing.ID, buyerB.ID)
	require.NoError(t, err)
	assert.NotEqual(t, convA.ID, convB.ID)

	count, err := env.conversationService.CountForUser(ctx, seller.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestConversationService_SelfMessageRejected(t *testing.T) {
	env := setupConversationTest(t)

	seller, listing := env.seedListing(t, "seller@example.com")

	_, err := env.conversationService.GetOrCreate(context.Background(), listing.ID, seller.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidOperation, apperr.KindOf(err))
	assert.Equal(t, "self_message", apperr.CodeOf(err))
}

func TestConversationService_UnknownListing(t *testing.T) {
	env := setupConversationTest(t)
	buyer := env.seedBuyer(t, "buyer@example.com")

	_, err := env.conversationService.GetOrCreate(context.Background(), utils.NewSixID(), buyer.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestConversationService_ListForUserSummaries(t *testing.T) {
	env := setupConversationTest(t)
	ctx := context.Background()

	seller, listing := env.seedListing(t, "seller@example.com")
	require.NoError(t, env.userService.MarkPaid(ctx, seller.ID, "ref-test"))
	buyer := env.seedBuyer(t, "buyer@example.com")

	conv, err := env.conversationService.GetOrCreate(ctx, listing.ID, buyer.ID)
	require.NoError(t, err)

	_, err = env.messageService.Append(ctx, conv.ID, buyer.ID, "Is it still available?")
	require.NoError(t, err)
	_, err = env.messageService.Append(ctx, conv.ID, buyer.ID, "I can come by Saturday.")
	require.NoError(t, err)

	summaries, err := env.conversationService.ListForUser(ctx, seller.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, conv.ID, summaries[0].ID)
	assert.Equal(t, "I can come by Saturday.", summaries[0].LastMessage)
	assert.Equal(t, 2, summaries[0].UnreadCount)
	require.NotNil(t, summaries[0].LastMessageAt)

	unread, err := env.conversationService.UnreadTotalForUser(ctx, seller.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread)

	// The buyer sent everything, so their own unread count is zero.
	buyerUnread, err := env.conversationService.UnreadTotalForUser(ctx, buyer.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, buyerUnread)
}
