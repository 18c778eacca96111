package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"coachyard/backend/internal/services"
	"coachyard/backend/internal/utils"
)

// RestUserHandler handles REST requests related to users.
type RestUserHandler struct {
	userService         services.IUserService
	listingService      services.IListingService
	conversationService services.IConversationService
	favoriteService     services.IFavoriteService
}

// NewRestUserHandler creates a new RestUserHandler.
func NewRestUserHandler(
	userService services.IUserService,
	listingService services.IListingService,
	conversationService services.IConversationService,
	favoriteService services.IFavoriteService,
) *RestUserHandler {
	return &RestUserHandler{
		userService:         userService,
		listingService:      listingService,
		conversationService: conversationService,
		favoriteService:     favoriteService,
	}
}

// PublicUser represents the data returned for a user profile.
type PublicUser struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	DateJoined   string `json:"date_joined"`
	ListingCount int64  `json:"listing_count"`
}

// GetUserByID handles GET /v1/user/:id
func (h *RestUserHandler) GetUserByID(c *gin.Context) {
	userID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		}
		return
	}

	listingCount, err := h.listingService.CountActiveByUser(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		return
	}

	c.JSON(http.StatusOK, PublicUser{
		ID:           user.ID.String(),
		Name:         user.Name,
		Role:         string(user.Role),
		DateJoined:   user.CreatedAt.Format("2006-01-02"),
		ListingCount: listingCount,
	})
}

// GetMe handles GET /v1/me
func (h *RestUserHandler) GetMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve profile"})
		}
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateMe handles PUT /v1/me
func (h *RestUserHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), userID, updates)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UserStats aggregates activity counters for the dashboard.
type UserStats struct {
	ActiveListings    int64 `json:"active_listings"`
	Conversations     int64 `json:"conversations"`
	UnreadMessages    int64 `json:"unread_messages"`
	FavoritedListings int64 `json:"favorited_listings"`
}

// GetMyStats handles GET /v1/me/stats
func (h *RestUserHandler) GetMyStats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	listings, err := h.listingService.CountActiveByUser(ctx, userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	conversations, err := h.conversationService.CountForUser(ctx, userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	unread, err := h.conversationService.UnreadTotalForUser(ctx, userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	favorites, err := h.favoriteService.CountForUser(ctx, userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}

	c.JSON(http.StatusOK, UserStats{
		ActiveListings:    listings,
		Conversations:     conversations,
		UnreadMessages:    unread,
		FavoritedListings: favorites,
	})
}
