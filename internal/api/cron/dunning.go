package cron

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/service"
)

// DunningHandler handles dunning related cron jobs
type DunningHandler struct {
	dunningService service.DunningService
	logger         *logger.Logger
}

func NewDunningHandler(dunningService service.DunningService, logger *logger.Logger) *DunningHandler {
	return &DunningHandler{
		dunningService: dunningService,
		logger:         logger,
	}
}

// ProcessGracePeriodExpiry cancels past_due subscriptions whose grace period has run out.
func (h *DunningHandler) ProcessGracePeriodExpiry(c *gin.Context) {
	h.logger.Infow("starting grace period expiry cron job")

	response, err := h.dunningService.ProcessGracePeriodExpiry(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to process grace period expiry", "error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed grace period expiry cron job", "canceled", response.Canceled)
	c.JSON(http.StatusOK, response)
}
