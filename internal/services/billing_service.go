package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"coachyard/backend/internal/apperr"
	"coachyard/backend/internal/config"
	"coachyard/backend/internal/models"
	"coachyard/backend/internal/payments"
	"coachyard/backend/internal/utils"
)

// CheckoutSession is what the client needs to take the user to the
// payment provider's hosted page.
type CheckoutSession struct {
	Ref         string  `json:"ref"`
	CheckoutURL string  `json:"checkout_url"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

// IBillingService defines the interface for unlock-fee billing.
type IBillingService interface {
	// StartUnlockCheckout creates a pending payment and returns the hosted
	// checkout session for it.
	StartUnlockCheckout(ctx context.Context, userID utils.SixID) (*CheckoutSession, error)
	// HandleCheckoutCompleted processes an authenticated checkout.completed
	// event. It is idempotent and never fails on events that reference
	// nothing we know about.
	HandleCheckoutCompleted(ctx context.Context, event *payments.CheckoutEvent) error
}

const paymentsCollection = "unlock_payments"

// billingService implements IBillingService.
type billingService struct {
	db            *mongo.Database
	cfg           *config.Config
	userService   IUserService
	configService IConfigService
}

// NewBillingService creates a new BillingService.
func NewBillingService(db *mongo.Database, cfg *config.Config, userService IUserService, configService IConfigService) IBillingService {
	return &billingService{db: db, cfg: cfg, userService: userService, configService: configService}
}

func (s *billingService) StartUnlockCheckout(ctx context.Context, userID utils.SixID) (*CheckoutSession, error) {
	user, err := s.userService.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.E(apperr.KindNotFound, "user_not_found", "User not found")
		}
		return nil, apperr.Internal(err)
	}
	if user.Paid {
		return nil, apperr.E(apperr.KindInvalidOperation, "already_paid", "Messaging is already unlocked for this account")
	}

	// The fee is a runtime-tunable knob; the .env value is the fallback.
	amount := s.configService.GetFloat64(ctx, "UNLOCK_FEE", s.cfg.UnlockFee)
	currency := s.configService.GetString(ctx, "UNLOCK_FEE_CURRENCY", s.cfg.UnlockFeeCurrency)

	payment := &models.UnlockPayment{
		Base:         models.Base{ID: utils.NewSixID()},
		UserID:       userID,
		Ref:          uuid.NewString(),
		Amount:       amount,
		CurrencyCode: currency,
		Status:       models.PaymentStatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	collection := s.db.Collection(paymentsCollection)
	if _, err := collection.InsertOne(ctx, payment); err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to insert unlock payment: %w", err))
	}

	return &CheckoutSession{
		Ref:         payment.Ref,
		CheckoutURL: fmt.Sprintf("%s?ref=%s", s.cfg.PaymentCheckoutURL, payment.Ref),
		Amount:      payment.Amount,
		Currency:    payment.CurrencyCode,
	}, nil
}

// HandleCheckoutCompleted resolves the paying user from the event, first by
// payment ref and then by the event's own user id, marks them paid and
// completes the pending payment row. Replays and unknown refs are acked
// without effect so the provider stops retrying.
func (s *billingService) HandleCheckoutCompleted(ctx context.Context, event *payments.CheckoutEvent) error {
	collection := s.db.Collection(paymentsCollection)

	var payment models.UnlockPayment
	haveRow := false
	if event.PaymentRef != "" {
		err := collection.FindOne(ctx, bson.M{"ref": event.PaymentRef}).Decode(&payment)
		if err == nil {
			haveRow = true
		} else if !errors.Is(err, mongo.ErrNoDocuments) {
			return apperr.Internal(fmt.Errorf("error looking up payment ref %s: %w", event.PaymentRef, err))
		}
	}

	var userID utils.SixID
	if haveRow {
		userID = payment.UserID
	} else if event.UserID != "" {
		parsed, err := utils.ParseSixID(event.UserID)
		if err != nil {
			log.Printf("Webhook checkout.completed carried unparsable user id %q, ignoring", event.UserID)
			return nil
		}
		userID = parsed
	} else {
		log.Printf("Webhook checkout.completed with unknown ref %q and no user id, ignoring", event.PaymentRef)
		return nil
	}

	if err := s.userService.MarkPaid(ctx, userID, event.PaymentRef); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			log.Printf("Webhook checkout.completed for unknown user %s, ignoring", userID.String())
			return nil
		}
		return apperr.Internal(fmt.Errorf("failed to mark user %s paid: %w", userID.String(), err))
	}

	if haveRow && payment.Status != models.PaymentStatusCompleted {
		now := time.Now().UTC()
		_, err := collection.UpdateOne(ctx,
			bson.M{"_id": payment.ID},
			bson.M{"$set": bson.M{"status": models.PaymentStatusCompleted, "completed_at": now}})
		if err != nil {
			return apperr.Internal(fmt.Errorf("failed to complete payment %s: %w", payment.Ref, err))
		}
	}

	return nil
}
