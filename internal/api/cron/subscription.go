package cron

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/service"
)

// SubscriptionHandler handles subscription related cron jobs
type SubscriptionHandler struct {
	subscriptionService service.SubscriptionService
	logger              *logger.Logger
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subscriptionService service.SubscriptionService, logger *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

// RolloverPeriods advances subscriptions whose billing period has ended.
func (h *SubscriptionHandler) RolloverPeriods(c *gin.Context) {
	h.logger.Infow("starting subscription rollover cron job")

	response, err := h.subscriptionService.RolloverPeriods(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to roll over subscription periods", "error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed subscription rollover cron job", "processed", response.Processed)
	c.JSON(http.StatusOK, response)
}
