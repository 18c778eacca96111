package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"coachyard/backend/internal/config"
	"coachyard/backend/internal/payments"
	"coachyard/backend/internal/services"
)

// RestBillingHandler handles checkout initiation and the payment provider's
// webhook.
type RestBillingHandler struct {
	cfg            *config.Config
	billingService services.IBillingService
}

// NewRestBillingHandler creates a new RestBillingHandler.
func NewRestBillingHandler(cfg *config.Config, billingService services.IBillingService) *RestBillingHandler {
	return &RestBillingHandler{cfg: cfg, billingService: billingService}
}

// StartCheckout handles POST /v1/billing/checkout
func (h *RestBillingHandler) StartCheckout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	session, err := h.billingService.StartUnlockCheckout(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// PaymentWebhook handles POST /v1/webhooks/payment. Signature failures are
// rejected; any authenticated event is acked with 200 so the provider stops
// retrying, whether or not it changed anything.
func (h *RestBillingHandler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read request body"})
		return
	}

	signature := c.GetHeader(h.cfg.PaymentSignatureHeader)
	event, err := payments.VerifyEvent(body, signature, h.cfg.PaymentWebhookSecret)
	if err != nil {
		if errors.Is(err, payments.ErrBadSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook signature"})
			return
		}
		// Authentic but unparsable. Ack so the provider does not retry a
		// payload we will never understand.
		log.Printf("Webhook payload failed to parse: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if event.Type != payments.EventTypeCheckoutCompleted {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := h.billingService.HandleCheckoutCompleted(c.Request.Context(), event); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process payment event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
