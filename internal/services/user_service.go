package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"coachyard/backend/internal/apperr"
	"coachyard/backend/internal/auth"
	"coachyard/backend/internal/db"
	"coachyard/backend/internal/models"
	"coachyard/backend/internal/utils"
)

// ErrEmailExists is returned when an attempt is made to use an email that already exists.
var ErrEmailExists = errors.New("email already in use by another account")

// IUserService defines the interface for user-related operations.
// This allows for easier mocking in tests.
type IUserService interface {
	Register(ctx context.Context, name, email, password string, role models.Role) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID utils.SixID, updates map[string]interface{}) (*models.User, error)
	// MarkPaid flips the paywall unlock flag. It is the ONLY path that sets
	// paid=true; there is no corresponding unset operation.
	MarkPaid(ctx context.Context, userID utils.SixID, paymentRef string) error
}

const usersCollection = "users"

// userService implements IUserService.
type userService struct {
	db *mongo.Database
}

// NewUserService creates a new UserService.
func NewUserService(db *mongo.Database) IUserService {
	return &userService{db: db}
}

// Register creates a new activated account with a bcrypt password hash.
func (s *userService) Register(ctx context.Context, name, email, password string, role models.Role) (*models.User, error) {
	collection := s.db.Collection(usersCollection)

	count, err := collection.CountDocuments(ctx, bson.M{"email": email, "deleted": false})
	if err != nil {
		return nil, fmt.Errorf("error checking email uniqueness for %s: %w", email, err)
	}
	if count > 0 {
		return nil, ErrEmailExists
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var newUser *models.User

	operation := func() error {
		newUser = &models.User{
			Base:         models.Base{ID: utils.NewSixID()}, // fresh ID per attempt
			Name:         name,
			Email:        email,
			PasswordHash: hash,
			Role:         role,
			Paid:         false,
			IsAdmin:      false,
			Suspended:    false,
			Deleted:      false,
			NotificationPreferences: &models.NotificationPreferences{
				NewMessage: true,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, insertErr := collection.InsertOne(ctx, newUser)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		// The unique email index may have raced with a concurrent signup.
		if db.IsDuplicateKeyError(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to insert new user %s: %w", email, err)
	}

	return newUser, nil
}

// Authenticate verifies email+password and returns the account.
// Returns mongo.ErrNoDocuments for unknown email and a plain error for a bad
// password so the handler can collapse both into one response.
func (s *userService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.Suspended {
		return nil, errors.New("account suspended")
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, errors.New("invalid credentials")
	}
	return user, nil
}

// FindByID finds a non-deleted user by ID.
// Returns mongo.ErrNoDocuments if not found.
func (s *userService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	var user models.User
	collection := s.db.Collection(usersCollection)
	filter := bson.M{"_id": userID, "deleted": false}

	err := collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by ID %s: %w", userID.String(), err)
	}
	return &user, nil
}

// FindByEmail finds a non-deleted user by their email address.
func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	collection := s.db.Collection(usersCollection)
	filter := bson.M{"email": email, "deleted": false}

	err := collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by email %s: %w", email, err)
	}
	return &user, nil
}

// UpdateProfile updates mutable profile fields.
// The paid flag, role, and admin status cannot be changed here.
func (s *userService) UpdateProfile(ctx context.Context, userID utils.SixID, updates map[string]interface{}) (*models.User, error) {
	allowed := bson.M{}
	for key, value := range updates {
		switch key {
		case "name":
			allowed[key] = value
		case "notification_preferences":
			prefs, err := decodeNotificationPreferences(value)
			if err != nil {
				return nil, err
			}
			allowed[key] = prefs
		default:
			return nil, apperr.E(apperr.KindValidation, "invalid_field",
				fmt.Sprintf("Field '%s' cannot be updated", key))
		}
	}
	if len(allowed) == 0 {
		return nil, apperr.E(apperr.KindValidation, "no_fields", "No valid fields provided for update")
	}
	allowed["updated_at"] = time.Now().UTC()

	collection := s.db.Collection(usersCollection)
	filter := bson.M{"_id": userID, "deleted": false}
	result, err := collection.UpdateOne(ctx, filter, bson.M{"$set": allowed})
	if err != nil {
		return nil, fmt.Errorf("error updating user %s: %w", userID.String(), err)
	}
	if result.MatchedCount == 0 {
		return nil, mongo.ErrNoDocuments
	}
	return s.FindByID(ctx, userID)
}

// decodeNotificationPreferences coerces the raw profile value into the typed
// document. Null and non-object values are rejected before they reach the
// store; a stored null would decode as a nil preferences pointer.
func decodeNotificationPreferences(value interface{}) (*models.NotificationPreferences, error) {
	invalid := apperr.E(apperr.KindValidation, "invalid_field_value",
		"notification_preferences must be an object")
	if value == nil {
		return nil, invalid
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, invalid
	}
	var prefs models.NotificationPreferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return nil, invalid
	}
	return &prefs, nil
}

// MarkPaid sets paid=true, paid_at, and the payment reference with a single
// $set. Replaying the same payment event just rewrites identical values, so
// duplicate webhook delivery is harmless; paid never transitions back.
func (s *userService) MarkPaid(ctx context.Context, userID utils.SixID, paymentRef string) error {
	collection := s.db.Collection(usersCollection)
	now := time.Now().UTC()

	update := bson.M{"$set": bson.M{
		"paid":        true,
		"paid_at":     now,
		"payment_ref": paymentRef,
		"updated_at":  now,
	}}
	result, err := collection.UpdateOne(ctx, bson.M{"_id": userID, "deleted": false}, update)
	if err != nil {
		return fmt.Errorf("error marking user %s paid: %w", userID.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
