package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"coachyard/backend/internal/models"
	"coachyard/backend/internal/services"
	"coachyard/backend/internal/storage"
	"coachyard/backend/internal/tasks"
	"coachyard/backend/internal/utils"
)

// RestListingHandler handles REST requests related to listings.
type RestListingHandler struct {
	listingService services.IListingService
	userService    services.IUserService
	storageService storage.IS3Storage
	taskClient     *tasks.Client
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(
	listingService services.IListingService,
	userService services.IUserService,
	storageService storage.IS3Storage,
	taskClient *tasks.Client,
) *RestListingHandler {
	return &RestListingHandler{
		listingService: listingService,
		userService:    userService,
		storageService: storageService,
		taskClient:     taskClient,
	}
}

type createListingRequest struct {
	Title       string              `json:"title" binding:"required"`
	Body        string              `json:"body"`
	Make        string              `json:"make" binding:"required"`
	Model       string              `json:"model" binding:"required"`
	Year        int                 `json:"year" binding:"required"`
	Mileage     int                 `json:"mileage"`
	LengthFeet  float64             `json:"length_feet"`
	AskingPrice *models.AskingPrice `json:"asking_price"`
}

// CreateListing handles POST /v1/listings
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create listing"})
		return
	}
	if !user.CanSell() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only seller accounts can create listings"})
		return
	}

	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	listing, err := h.listingService.CreateListing(c.Request.Context(), userID,
		req.Title, req.Body, req.Make, req.Model, req.Year, req.Mileage, req.LengthFeet, req.AskingPrice)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, listing)
}

// GetListingByID handles GET /v1/listings/:id
func (h *RestListingHandler) GetListingByID(c *gin.Context) {
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	listing, err := h.listingService.FindListingByID(c.Request.Context(), listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve listing"})
		}
		return
	}

	c.JSON(http.StatusOK, listing)
}

// UpdateListing handles PUT /v1/listings/:id
func (h *RestListingHandler) UpdateListing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	listing, err := h.listingService.UpdateListing(c.Request.Context(), listingID, userID, updates)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// transition runs an ownership-checked listing state change and renders the
// outcome.
func (h *RestListingHandler) transition(c *gin.Context, op func(ctx context.Context, listingID, userID utils.SixID) error) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	if err := op(c.Request.Context(), listingID, userID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PublishListing handles POST /v1/listings/:id/publish
func (h *RestListingHandler) PublishListing(c *gin.Context) {
	h.transition(c, h.listingService.PublishListing)
}

// MarkSold handles POST /v1/listings/:id/sold
func (h *RestListingHandler) MarkSold(c *gin.Context) {
	h.transition(c, h.listingService.MarkSold)
}

// DeleteListing handles DELETE /v1/listings/:id
func (h *RestListingHandler) DeleteListing(c *gin.Context) {
	h.transition(c, h.listingService.DeleteListing)
}

// SearchListings handles GET /v1/listings/search
func (h *RestListingHandler) SearchListings(c *gin.Context) {
	filter := services.SearchFilter{
		Query: c.Query("q"),
		Make:  c.Query("make"),
	}
	if v := c.Query("min_year"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.MinYear = n
		}
	}
	if v := c.Query("max_year"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.MaxYear = n
		}
	}
	if v := c.Query("max_price"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MaxPrice = f
		}
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var cursor *string
	if v := c.Query("cursor"); v != "" {
		cursor = &v
	}

	listings, nextCursor, err := h.listingService.SearchListings(c.Request.Context(), filter, limit, cursor)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"listings": listings}
	if nextCursor != nil {
		resp["next_cursor"] = *nextCursor
	}
	c.JSON(http.StatusOK, resp)
}

// GetUserListings handles GET /v1/user/:id/listings
func (h *RestListingHandler) GetUserListings(c *gin.Context) {
	userID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	listings, err := h.listingService.FindListingsByUserID(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

type photoUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// RequestPhotoUpload handles POST /v1/listings/:id/photos. It returns a
// pre-signed PUT URL the client uploads the original photo to.
func (h *RestListingHandler) RequestPhotoUpload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	listing, err := h.listingService.FindListingByID(c.Request.Context(), listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare upload"})
		}
		return
	}
	if listing.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not own this listing"})
		return
	}

	var req photoUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	url, key, err := h.storageService.GeneratePresignedPutURL(c.Request.Context(),
		userID.String(), listingID.String(), req.Filename, req.ContentType)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare upload"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"upload_url": url, "key": key})
}

type photoConfirmRequest struct {
	Key string `json:"key" binding:"required"`
}

// ConfirmPhotoUpload handles POST /v1/listings/:id/photos/confirm. It queues
// background normalization of the uploaded photo.
func (h *RestListingHandler) ConfirmPhotoUpload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	listing, err := h.listingService.FindListingByID(c.Request.Context(), listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to confirm upload"})
		}
		return
	}
	if listing.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not own this listing"})
		return
	}

	var req photoConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.taskClient.EnqueuePhotoProcess(c.Request.Context(), listingID, userID, req.Key); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue photo processing"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "processing"})
}
