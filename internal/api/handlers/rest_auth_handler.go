package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"coachyard/backend/internal/auth"
	"coachyard/backend/internal/config"
	"coachyard/backend/internal/models"
	"coachyard/backend/internal/services"
)

// RestAuthHandler handles signup and login.
type RestAuthHandler struct {
	cfg           *config.Config
	userService   services.IUserService
	configService services.IConfigService
	passwordRe    *regexp.Regexp
}

// NewRestAuthHandler creates a new RestAuthHandler.
func NewRestAuthHandler(cfg *config.Config, userService services.IUserService, configService services.IConfigService) *RestAuthHandler {
	return &RestAuthHandler{
		cfg:           cfg,
		userService:   userService,
		configService: configService,
		passwordRe:    regexp.MustCompile(cfg.PasswordRegexp),
	}
}

type signupRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Signup handles POST /v1/auth/signup
func (h *RestAuthHandler) Signup(c *gin.Context) {
	if !h.configService.GetBool(c.Request.Context(), "SIGNUPS_ENABLED", true) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Signups are temporarily disabled"})
		return
	}

	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	role := models.Role(req.Role)
	if !models.ValidRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be one of: buyer, seller, both"})
		return
	}
	if !h.passwordRe.MatchString(req.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password does not meet complexity requirements"})
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req.Name, req.Email, req.Password, role)
	if err != nil {
		if errors.Is(err, services.ErrEmailExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "An account with this email already exists"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.IsAdmin, h.cfg.JwtSecret, h.tokenTTL(c))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusCreated, authResponse{Token: token, User: user})
}

// Login handles POST /v1/auth/login
func (h *RestAuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	user, err := h.userService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// One message for wrong email and wrong password alike.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.IsAdmin, h.cfg.JwtSecret, h.tokenTTL(c))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, authResponse{Token: token, User: user})
}

// tokenTTL reads the runtime token lifetime, falling back to the .env value.
func (h *RestAuthHandler) tokenTTL(c *gin.Context) time.Duration {
	return h.configService.GetDuration(c.Request.Context(), "JWT_TTL", h.cfg.JwtTTL)
}
