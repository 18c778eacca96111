package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coachyard/backend/internal/services"
	"coachyard/backend/internal/utils"
)

// RestConversationHandler handles REST requests for conversations and their
// messages.
type RestConversationHandler struct {
	conversationService services.IConversationService
	messageService      services.IMessageService
}

// NewRestConversationHandler creates a new RestConversationHandler.
func NewRestConversationHandler(conversationService services.IConversationService, messageService services.IMessageService) *RestConversationHandler {
	return &RestConversationHandler{
		conversationService: conversationService,
		messageService:      messageService,
	}
}

type startConversationRequest struct {
	ListingID string `json:"listing_id" binding:"required"`
}

// StartConversation handles POST /v1/conversations. Repeating the call for
// the same listing returns the existing conversation.
func (h *RestConversationHandler) StartConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	listingID, err := utils.ParseSixID(req.ListingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	conv, err := h.conversationService.GetOrCreate(c.Request.Context(), listingID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

// ListConversations handles GET /v1/conversations
func (h *RestConversationHandler) ListConversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	summaries, err := h.conversationService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// ListMessages handles GET /v1/conversations/:id/messages
func (h *RestConversationHandler) ListMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	conversationID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID format"})
		return
	}

	views, locked, err := h.messageService.ListForConversation(c.Request.Context(), conversationID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": views, "locked": locked})
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// SendMessage handles POST /v1/conversations/:id/messages
func (h *RestConversationHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	conversationID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID format"})
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	msg, err := h.messageService.Append(c.Request.Context(), conversationID, userID, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}
