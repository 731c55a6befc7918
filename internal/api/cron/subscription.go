package cron

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/service"
)

// SubscriptionHandler handles subscription related cron jobs
type SubscriptionHandler struct {
	renewalService service.RenewalService
	logger         *logger.Logger
}

func NewSubscriptionHandler(renewalService service.RenewalService, logger *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		renewalService: renewalService,
		logger:         logger,
	}
}

// ProcessRenewalReminders sends renewal reminders for subscriptions
// whose period end falls on a configured lead day.
func (h *SubscriptionHandler) ProcessRenewalReminders(c *gin.Context) {
	h.logger.Infow("starting renewal reminder cron job")

	response, err := h.renewalService.ProcessRenewalReminders(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to process renewal reminders", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ProcessDueTransitions renews, downgrades or cancels every
// subscription whose boundary date has passed.
func (h *SubscriptionHandler) ProcessDueTransitions(c *gin.Context) {
	h.logger.Infow("starting boundary transition cron job")

	response, err := h.renewalService.ProcessDueTransitions(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to process boundary transitions", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response)
}
