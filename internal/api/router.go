package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"coachyard/backend/internal/api/handlers"
	"coachyard/backend/internal/api/middleware"
	"coachyard/backend/internal/config"
	"coachyard/backend/internal/services"
	"coachyard/backend/internal/storage"
	"coachyard/backend/internal/tasks"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, taskClient *tasks.Client, configSvc services.IConfigService) *gin.Engine {
	userService := services.NewUserService(db)
	listingService := services.NewListingService(db, cfg)
	conversationService := services.NewConversationService(db, cfg, listingService)
	messageService := services.NewMessageService(db, cfg, conversationService, userService, taskClient)
	favoriteService := services.NewFavoriteService(db, cfg, listingService)
	billingService := services.NewBillingService(db, cfg, userService, configSvc)

	s3StorageService, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to initialize S3 storage for API: %v", err)
	}

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg, configSvc)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	restConfigHandler := handlers.NewRestConfigHandler(configSvc)
	restAuthHandler := handlers.NewRestAuthHandler(cfg, userService, configSvc)
	restUserHandler := handlers.NewRestUserHandler(userService, listingService, conversationService, favoriteService)
	restListingHandler := handlers.NewRestListingHandler(listingService, userService, s3StorageService, taskClient)
	restConversationHandler := handlers.NewRestConversationHandler(conversationService, messageService)
	restFavoriteHandler := handlers.NewRestFavoriteHandler(favoriteService)
	restBillingHandler := handlers.NewRestBillingHandler(cfg, billingService)

	v1 := r.Group("/v1")
	{
		// Public routes
		v1.GET("/config", restConfigHandler.GetPublicConfig)
		v1.POST("/auth/signup", restAuthHandler.Signup)
		v1.POST("/auth/login", restAuthHandler.Login)

		v1.GET("/listings/search", restListingHandler.SearchListings)
		v1.GET("/listings/:id", restListingHandler.GetListingByID)

		v1.GET("/user/:id", restUserHandler.GetUserByID)
		v1.GET("/user/:id/listings", restListingHandler.GetUserListings)

		// Webhook authenticates with its own HMAC signature, not a JWT.
		v1.POST("/webhooks/payment", restBillingHandler.PaymentWebhook)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated routes
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/me", restUserHandler.GetMe)
			authRequired.PUT("/me", restUserHandler.UpdateMe)
			authRequired.GET("/me/stats", restUserHandler.GetMyStats)

			authRequired.POST("/listings", restListingHandler.CreateListing)
			authRequired.PUT("/listings/:id", restListingHandler.UpdateListing)
			authRequired.DELETE("/listings/:id", restListingHandler.DeleteListing)
			authRequired.POST("/listings/:id/publish", restListingHandler.PublishListing)
			authRequired.POST("/listings/:id/sold", restListingHandler.MarkSold)
			authRequired.POST("/listings/:id/photos", restListingHandler.RequestPhotoUpload)
			authRequired.POST("/listings/:id/photos/confirm", restListingHandler.ConfirmPhotoUpload)

			authRequired.POST("/conversations", restConversationHandler.StartConversation)
			authRequired.GET("/conversations", restConversationHandler.ListConversations)
			authRequired.GET("/conversations/:id/messages", restConversationHandler.ListMessages)
			authRequired.POST("/conversations/:id/messages", restConversationHandler.SendMessage)

			authRequired.POST("/favorites", restFavoriteHandler.AddFavorite)
			authRequired.GET("/favorites", restFavoriteHandler.ListFavorites)
			authRequired.DELETE("/favorites/:listingId", restFavoriteHandler.RemoveFavorite)

			authRequired.POST("/billing/checkout", restBillingHandler.StartCheckout)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			admin.PUT("/config", restConfigHandler.SetConfigValue)
		}
	}

	return r
}
