package v1

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/service"
)

// stripeSignatureHeader carries the webhook signature to verify
const stripeSignatureHeader = "Stripe-Signature"

type WebhookHandler struct {
	service service.ReconciliationService
	log     *logger.Logger
}

func NewWebhookHandler(service service.ReconciliationService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, log: log}
}

func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Failed to read webhook payload").
			Mark(ierr.ErrValidation))
		return
	}

	signature := c.GetHeader(stripeSignatureHeader)
	if signature == "" {
		c.Error(ierr.NewError("missing webhook signature").
			WithHint("Stripe-Signature header is required").
			Mark(ierr.ErrPermissionDenied))
		return
	}

	resp, err := h.service.ProcessWebhookEvent(c.Request.Context(), payload, signature)
	if err != nil {
		h.log.Errorw("failed to process webhook event", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
