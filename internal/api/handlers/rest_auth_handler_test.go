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
	"coachyard/backend/internal/config"
	"coachyard/backend/internal/models"
	"coachyard/backend/internal/utils"
)

func authTestConfig() *config.Config {
	return &config.Config{
		JwtSecret:      "auth-handler-test-secret",
		JwtTTL:         time.Hour,
		PasswordRegexp: `.{8,}`,
	}
}

func postJSON(r *gin.Engine, path string, payload map[string]interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestRestAuthHandler_Signup_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := authTestConfig()
	mockUserSvc := new(MockUserService)
	mockConfigSvc := new(MockConfigService)
	handler := handlers.NewRestAuthHandler(cfg, mockUserSvc, mockConfigSvc)

	user := &models.User{
		Base:  models.Base{ID: utils.NewSixID()},
		Name:  "Dale",
		Email: "dale@example.com",
		Role:  models.RoleSeller,
	}
	mockConfigSvc.On("GetBool", mock.Anything, "SIGNUPS_ENABLED", true).Return(true)
	mockConfigSvc.On("GetDuration", mock.Anything, "JWT_TTL", time.Hour).Return(time.Hour)
	mockUserSvc.On("Register", mock.Anything, "Dale", "dale@example.com", "password1", models.RoleSeller).
		Return(user, nil)

	r := gin.New()
	r.POST("/v1/auth/signup", handler.Signup)

	w := postJSON(r, "/v1/auth/signup", map[string]interface{}{
		"name":     "Dale",
		"email":    "dale@example.com",
		"password": "password1",
		"role":     "seller",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])
	mockUserSvc.AssertExpectations(t)
	mockConfigSvc.AssertExpectations(t)
}

func TestRestAuthHandler_Signup_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := authTestConfig()
	mockUserSvc := new(MockUserService)
	mockConfigSvc := new(MockConfigService)
	handler := handlers.NewRestAuthHandler(cfg, mockUserSvc, mockConfigSvc)

	mockConfigSvc.On("GetBool", mock.Anything, "SIGNUPS_ENABLED", true).Return(false)

	r := gin.New()
	r.POST("/v1/auth/signup", handler.Signup)

	w := postJSON(r, "/v1/auth/signup", map[string]interface{}{
		"name":     "Dale",
		"email":    "dale@example.com",
		"password": "password1",
		"role":     "seller",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
	mockUserSvc.AssertNotCalled(t, "Register",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := authTestConfig()
	mockUserSvc := new(MockUserService)
	mockConfigSvc := new(MockConfigService)
	handler := handlers.NewRestAuthHandler(cfg, mockUserSvc, mockConfigSvc)

	mockUserSvc.On("Authenticate", mock.Anything, "dale@example.com", "wrongpass").
		Return(nil, assert.AnError)

	r := gin.New()
	r.POST("/v1/auth/login", handler.Login)

	w := postJSON(r, "/v1/auth/login", map[string]interface{}{
		"email":    "dale@example.com",
		"password": "wrongpass",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Invalid email or password", resp["error"])
}
