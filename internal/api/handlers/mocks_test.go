package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"coachyard/backend/internal/models"
	"coachyard/backend/internal/payments"
	"coachyard/backend/internal/services"
	"coachyard/backend/internal/utils"
)

// --- Mocks ---

// MockConversationService
type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) GetOrCreate(ctx context.Context, listingID, buyerID utils.SixID) (*models.Conversation, error) {
	args := m.Called(ctx, listingID, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockConversationService) FindByID(ctx context.Context, conversationID utils.SixID) (*models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockConversationService) ListForUser(ctx context.Context, userID utils.SixID) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConversationSummary), args.Error(1)
}

func (m *MockConversationService) CountForUser(ctx context.Context, userID utils.SixID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConversationService) UnreadTotalForUser(ctx context.Context, userID utils.SixID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockMessageService
type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) ListForConversation(ctx context.Context, conversationID, viewerID utils.SixID) ([]models.MessageView, bool, error) {
	args := m.Called(ctx, conversationID, viewerID)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).([]models.MessageView), args.Bool(1), args.Error(2)
}

func (m *MockMessageService) Append(ctx context.Context, conversationID, senderID utils.SixID, text string) (*models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

// MockBillingService
type MockBillingService struct {
	mock.Mock
}

func (m *MockBillingService) StartUnlockCheckout(ctx context.Context, userID utils.SixID) (*services.CheckoutSession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CheckoutSession), args.Error(1)
}

func (m *MockBillingService) HandleCheckoutCompleted(ctx context.Context, event *payments.CheckoutEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, name, email, password string, role models.Role) (*models.User, error) {
	args := m.Called(ctx, name, email, password, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) UpdateProfile(ctx context.Context, userID utils.SixID, updates map[string]interface{}) (*models.User, error) {
	args := m.Called(ctx, userID, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) MarkPaid(ctx context.Context, userID utils.SixID, paymentRef string) error {
	args := m.Called(ctx, userID, paymentRef)
	return args.Error(0)
}

// MockConfigService
type MockConfigService struct {
	mock.Mock
}

func (m *MockConfigService) Load(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockConfigService) SubscribeToChanges(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockConfigService) SetConfigValue(ctx context.Context, key string, value interface{}, isPublic bool) error {
	args := m.Called(ctx, key, value, isPublic)
	return args.Error(0)
}

func (m *MockConfigService) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockConfigService) GetString(ctx context.Context, key string, defaultValue string) string {
	args := m.Called(ctx, key, defaultValue)
	return args.String(0)
}

func (m *MockConfigService) GetInt(ctx context.Context, key string, defaultValue int) int {
	args := m.Called(ctx, key, defaultValue)
	return args.Int(0)
}

func (m *MockConfigService) GetFloat64(ctx context.Context, key string, defaultValue float64) float64 {
	args := m.Called(ctx, key, defaultValue)
	return args.Get(0).(float64)
}

func (m *MockConfigService) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	args := m.Called(ctx, key, defaultValue)
	return args.Bool(0)
}

func (m *MockConfigService) GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	args := m.Called(ctx, key, defaultValue)
	return args.Get(0).(time.Duration)
}

func (m *MockConfigService) GetAPIEndpointConfig(ctx context.Context, endpoint string) (*models.APIEndpointConfig, error) {
	args := m.Called(ctx, endpoint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.APIEndpointConfig), args.Error(1)
}

// Interface compliance checks
var (
	_ services.IConversationService = (*MockConversationService)(nil)
	_ services.IMessageService      = (*MockMessageService)(nil)
	_ services.IBillingService      = (*MockBillingService)(nil)
	_ services.IUserService         = (*MockUserService)(nil)
	_ services.IConfigService       = (*MockConfigService)(nil)
)
