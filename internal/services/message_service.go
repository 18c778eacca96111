package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"coachyard/backend/internal/apperr"
	"coachyard/backend/internal/config"
	"coachyard/backend/internal/models"
	"coachyard/backend/internal/paywall"
	"coachyard/backend/internal/utils"
)

// MaxMessageLength caps a single message body.
const MaxMessageLength = 5000

const messagesCollection = "messages"

// Notifier enqueues asynchronous notifications about new messages. The
// background task layer implements it; a nil Notifier disables notifications.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, recipient *models.User, conv *models.Conversation, preview string, redacted bool) error
}

// IMessageService defines the interface for message operations.
type IMessageService interface {
	// ListForConversation returns the conversation's messages oldest first,
	// redacted for the viewer, and marks the counterpart's messages read.
	// The bool reports whether the paywall is closed for this viewer.
	ListForConversation(ctx context.Context, conversationID, viewerID utils.SixID) ([]models.MessageView, bool, error)
	// Append adds a message from sender to the conversation.
	Append(ctx context.Context, conversationID, senderID utils.SixID, text string) (*models.Message, error)
}

// messageService implements IMessageService.
type messageService struct {
	db                  *mongo.Database
	cfg                 *config.Config
	conversationService IConversationService
	userService         IUserService
	notifier            Notifier
}

// NewMessageService creates a new MessageService.
func NewMessageService(db *mongo.Database, cfg *config.Config, conversationService IConversationService, userService IUserService, notifier Notifier) IMessageService {
	return &messageService{
		db:                  db,
		cfg:                 cfg,
		conversationService: conversationService,
		userService:         userService,
		notifier:            notifier,
	}
}

// resolveForParticipant loads the conversation and verifies the user is one
// of its two parties.
func (s *messageService) resolveForParticipant(ctx context.Context, conversationID, userID utils.SixID) (*models.Conversation, error) {
	conv, err := s.conversationService.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.E(apperr.KindNotFound, "conversation_not_found", "Conversation not found")
		}
		return nil, apperr.Internal(err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.E(apperr.KindForbidden, "not_participant", "You are not a participant in this conversation")
	}
	return conv, nil
}

// sellerPaid reports whether the conversation's seller has unlocked messaging.
func (s *messageService) sellerPaid(ctx context.Context, conv *models.Conversation) (bool, error) {
	seller, err := s.userService.FindByID(ctx, conv.SellerID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Seller account gone; treat as unpaid so buyer text stays hidden.
			return false, nil
		}
		return false, apperr.Internal(err)
	}
	return seller.Paid, nil
}

func (s *messageService) ListForConversation(ctx context.Context, conversationID, viewerID utils.SixID) ([]models.MessageView, bool, error) {
	conv, err := s.resolveForParticipant(ctx, conversationID, viewerID)
	if err != nil {
		return nil, false, err
	}

	paid, err := s.sellerPaid(ctx, conv)
	if err != nil {
		return nil, false, err
	}
	viewerIsSeller := conv.SellerID == viewerID
	locked := viewerIsSeller && !paid

	collection := s.db.Collection(messagesCollection)
	cur, err := collection.Find(ctx,
		bson.M{"conversation_id": conv.ID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, false, apperr.Internal(fmt.Errorf("error listing messages for conversation %s: %w", conv.ID.String(), err))
	}
	defer cur.Close(ctx)

	var messages []models.Message
	if err := cur.All(ctx, &messages); err != nil {
		return nil, false, apperr.Internal(fmt.Errorf("error decoding messages: %w", err))
	}

	views := make([]models.MessageView, 0, len(messages))
	for _, msg := range messages {
		view := models.MessageView{
			ID:        msg.ID,
			SenderID:  msg.SenderID,
			Text:      msg.Text,
			Read:      msg.Read,
			CreatedAt: msg.CreatedAt,
		}
		senderIsBuyer := msg.SenderID == conv.BuyerID
		if paywall.Redacted(viewerIsSeller, paid, senderIsBuyer) {
			view.Text = paywall.LockedPlaceholder
			view.Locked = true
		}
		views = append(views, view)
	}

	// Reading marks the counterpart's messages read regardless of the
	// paywall: the lock hides content, it does not stop receipt.
	_, err = collection.UpdateMany(ctx,
		bson.M{"conversation_id": conv.ID, "sender_id": bson.M{"$ne": viewerID}, "read": false},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return nil, false, apperr.Internal(fmt.Errorf("error marking messages read in conversation %s: %w", conv.ID.String(), err))
	}

	return views, locked, nil
}

func (s *messageService) Append(ctx context.Context, conversationID, senderID utils.SixID, text string) (*models.Message, error) {
	conv, err := s.resolveForParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.E(apperr.KindValidation, "empty_message", "Message text must not be empty")
	}
	if len(text) > MaxMessageLength {
		return nil, apperr.E(apperr.KindValidation, "message_too_long", fmt.Sprintf("Message text must not exceed %d characters", MaxMessageLength))
	}

	senderIsSeller := conv.SellerID == senderID
	paid, err := s.sellerPaid(ctx, conv)
	if err != nil {
		return nil, err
	}
	if !paywall.CanSend(senderIsSeller, paid) {
		return nil, apperr.E(apperr.KindPaymentRequired, "payment_required", "Unlock messaging to reply to buyers")
	}

	now := time.Now().UTC()
	msg := &models.Message{
		Base:           models.Base{ID: utils.NewSixID()},
		ConversationID: conv.ID,
		SenderID:       senderID,
		Text:           text,
		Read:           false,
		CreatedAt:      now,
	}

	collection := s.db.Collection(messagesCollection)
	if _, err := collection.InsertOne(ctx, msg); err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to insert message in conversation %s: %w", conv.ID.String(), err))
	}

	_, err = s.db.Collection(conversationsCollection).UpdateOne(ctx,
		bson.M{"_id": conv.ID},
		bson.M{"$set": bson.M{"updated_at": now}})
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to bump conversation %s: %w", conv.ID.String(), err))
	}

	s.notifyRecipient(ctx, conv, msg, paid)

	return msg, nil
}

// notifyRecipient enqueues a new-message notification for the counterpart.
// Failures are logged and swallowed; the message is already stored.
func (s *messageService) notifyRecipient(ctx context.Context, conv *models.Conversation, msg *models.Message, sellerPaid bool) {
	if s.notifier == nil {
		return
	}
	recipientID := conv.OtherParticipant(msg.SenderID)
	recipient, err := s.userService.FindByID(ctx, recipientID)
	if err != nil {
		log.Printf("Could not load recipient %s for message notification: %v", recipientID.String(), err)
		return
	}
	// Accounts without a preferences document default to notifying.
	if prefs := recipient.NotificationPreferences; prefs != nil && !prefs.NewMessage {
		return
	}

	// An unpaid seller gets a teaser, not the buyer's words.
	senderIsBuyer := msg.SenderID == conv.BuyerID
	redacted := paywall.Redacted(recipientID == conv.SellerID, sellerPaid, senderIsBuyer)
	preview := msg.Text
	if redacted {
		preview = paywall.LockedPlaceholder
	}

	if err := s.notifier.NotifyNewMessage(ctx, recipient, conv, preview, redacted); err != nil {
		log.Printf("Could not enqueue message notification for user %s: %v", recipientID.String(), err)
	}
}
