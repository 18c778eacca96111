package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"coachyard/backend/internal/api/handlers"
	"coachyard/backend/internal/api/middleware"
	"coachyard/backend/internal/apperr"
	"coachyard/backend/internal/models"
	"coachyard/backend/internal/paywall"
	"coachyard/backend/internal/utils"
)

// authAs injects the user ID the way the auth middleware would.
func authAs(userID utils.SixID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, userID.String())
		c.Next()
	}
}

func TestRestConversationHandler_StartConversation_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockConvSvc := new(MockConversationService)
	mockMsgSvc := new(MockMessageService)
	handler := handlers.NewRestConversationHandler(mockConvSvc, mockMsgSvc)

	buyerID := utils.NewSixID()
	listingID := utils.NewSixID()
	expected := &models.Conversation{
		Base:      models.Base{ID: utils.NewSixID()},
		ListingID: listingID,
		BuyerID:   buyerID,
		SellerID:  utils.NewSixID(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	mockConvSvc.On("GetOrCreate", mock.Anything, listingID, buyerID).Return(expected, nil)

	r := gin.New()
	r.POST("/v1/conversations", authAs(buyerID), handler.StartConversation)

	body, _ := json.Marshal(gin.H{"listing_id": listingID.String()})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/conversations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.Conversation
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, expected.ID, resp.ID)
	assert.Equal(t, listingID, resp.ListingID)
	mockConvSvc.AssertExpectations(t)
}

func TestRestConversationHandler_StartConversation_ListingNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockConvSvc := new(MockConversationService)
	handler := handlers.NewRestConversationHandler(mockConvSvc, new(MockMessageService))

	buyerID := utils.NewSixID()
	listingID := utils.NewSixID()
	mockConvSvc.On("GetOrCreate", mock.Anything, listingID, buyerID).
		Return(nil, apperr.E(apperr.KindNotFound, "listing_not_found", "Listing not found"))

	r := gin.New()
	r.POST("/v1/conversations", authAs(buyerID), handler.StartConversation)

	body, _ := json.Marshal(gin.H{"listing_id": listingID.String()})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/conversations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "listing_not_found", resp["code"])
	mockConvSvc.AssertExpectations(t)
}

func TestRestConversationHandler_StartConversation_SelfMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockConvSvc := new(MockConversationService)
	handler := handlers.NewRestConversationHandler(mockConvSvc, new(MockMessageService))

	sellerID := utils.NewSixID()
	listingID := utils.NewSixID()
	mockConvSvc.On("GetOrCreate", mock.Anything, listingID, sellerID).
		Return(nil, apperr.E(apperr.KindInvalidOperation, "self_message", "You cannot message yourself about your own listing"))

	r := gin.New()
	r.POST("/v1/conversations", authAs(sellerID), handler.StartConversation)

	body, _ := json.Marshal(gin.H{"listing_id": listingID.String()})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/conversations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "self_message", resp["code"])
}

func TestRestConversationHandler_StartConversation_InvalidListingID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewRestConversationHandler(new(MockConversationService), new(MockMessageService))

	r := gin.New()
	r.POST("/v1/conversations", authAs(utils.NewSixID()), handler.StartConversation)

	body, _ := json.Marshal(gin.H{"listing_id": "not-an-id"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/conversations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestConversationHandler_StartConversation_Unauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewRestConversationHandler(new(MockConversationService), new(MockMessageService))

	r := gin.New()
	r.POST("/v1/conversations", handler.StartConversation)

	body, _ := json.Marshal(gin.H{"listing_id": utils.NewSixID().String()})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/conversations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRestConversationHandler_ListMessages_Locked(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockMsgSvc := new(MockMessageService)
	handler := handlers.NewRestConversationHandler(new(MockConversationService), mockMsgSvc)

	sellerID := utils.NewSixID()
	conversationID := utils.NewSixID()
	views := []models.MessageView{
		{ID: utils.NewSixID(), SenderID: utils.NewSixID(), Text: paywall.LockedPlaceholder, Locked: true, CreatedAt: time.Now()},
	}
	mockMsgSvc.On("ListForConversation", mock.Anything, conversationID, sellerID).Return(views, true, nil)

	r := gin.New()
	r.GET("/v1/conversations/:id/messages", authAs(sellerID), handler.ListMessages)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/conversations/"+conversationID.String()+"/messages", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Messages []models.MessageView `json:"messages"`
		Locked   bool                 `json:"locked"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Locked)
	assert.Len(t, resp.Messages, 1)
	assert.True(t, resp.Messages[0].Locked)
	assert.Equal(t, paywall.LockedPlaceholder, resp.Messages[0].Text)
	mockMsgSvc.AssertExpectations(t)
}

func TestRestConversationHandler_ListMessages_NotParticipant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockMsgSvc := new(MockMessageService)
	handler := handlers.NewRestConversationHandler(new(MockConversationService), mockMsgSvc)

	outsiderID := utils.NewSixID()
	conversationID := utils.NewSixID()
	mockMsgSvc.On("ListForConversation", mock.Anything, conversationID, outsiderID).
		Return(nil, false, apperr.E(apperr.KindForbidden, "not_participant", "You are not part of this conversation"))

	r := gin.New()
	r.GET("/v1/conversations/:id/messages", authAs(outsiderID), handler.ListMessages)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/conversations/"+conversationID.String()+"/messages", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_participant", resp["code"])
}

func TestRestConversationHandler_SendMessage_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockMsgSvc := new(MockMessageService)
	handler := handlers.NewRestConversationHandler(new(MockConversationService), mockMsgSvc)

	buyerID := utils.NewSixID()
	conversationID := utils.NewSixID()
	saved := &models.Message{
		Base:           models.Base{ID: utils.NewSixID()},
		ConversationID: conversationID,
		SenderID:       buyerID,
		Text:           "Is the generator hour count accurate?",
		CreatedAt:      time.Now(),
	}
	mockMsgSvc.On("Append", mock.Anything, conversationID, buyerID, saved.Text).Return(saved, nil)

	r := gin.New()
	r.POST("/v1/conversations/:id/messages", authAs(buyerID), handler.SendMessage)

	body, _ := json.Marshal(gin.H{"text": saved.Text})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/conversations/"+conversationID.String()+"/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp models.Message
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, saved.ID, resp.ID)
	mockMsgSvc.AssertExpectations(t)
}

func TestRestConversationHandler_SendMessage_PaymentRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockMsgSvc := new(MockMessageService)
	handler := handlers.NewRestConversationHandler(new(MockConversationService), mockMsgSvc)

	sellerID := utils.NewSixID()
	conversationID := utils.NewSixID()
	mockMsgSvc.On("Append", mock.Anything, conversationID, sellerID, "Hello").
		Return(nil, apperr.E(apperr.KindPaymentRequired, "payment_required", "Pay the unlock fee to reply to buyers"))

	r := gin.New()
	r.POST("/v1/conversations/:id/messages", authAs(sellerID), handler.SendMessage)

	body, _ := json.Marshal(gin.H{"text": "Hello"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/conversations/"+conversationID.String()+"/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "payment_required", resp["code"])
	mockMsgSvc.AssertExpectations(t)
}
