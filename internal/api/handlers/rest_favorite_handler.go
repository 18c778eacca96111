package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"coachyard/backend/internal/services"
	"coachyard/backend/internal/utils"
)

// RestFavoriteHandler handles REST requests for saved listings.
type RestFavoriteHandler struct {
	favoriteService services.IFavoriteService
}

// NewRestFavoriteHandler creates a new RestFavoriteHandler.
func NewRestFavoriteHandler(favoriteService services.IFavoriteService) *RestFavoriteHandler {
	return &RestFavoriteHandler{favoriteService: favoriteService}
}

type addFavoriteRequest struct {
	ListingID string `json:"listing_id" binding:"required"`
}

// AddFavorite handles POST /v1/favorites
func (h *RestFavoriteHandler) AddFavorite(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req addFavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	listingID, err := utils.ParseSixID(req.ListingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	if err := h.favoriteService.Add(c.Request.Context(), userID, listingID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// RemoveFavorite handles DELETE /v1/favorites/:listingId
func (h *RestFavoriteHandler) RemoveFavorite(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, err := utils.ParseSixID(c.Param("listingId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	if err := h.favoriteService.Remove(c.Request.Context(), userID, listingID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// ListFavorites handles GET /v1/favorites
func (h *RestFavoriteHandler) ListFavorites(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	listings, err := h.favoriteService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"listings": listings})
}
