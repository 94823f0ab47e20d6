package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vibefunder/billing/internal/api/dto"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/service"
)

type AnalyticsHandler struct {
	service service.RevenueAnalyticsService
	log     *logger.Logger
}

func NewAnalyticsHandler(service service.RevenueAnalyticsService, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{service: service, log: log}
}

// GetRevenueMetrics handles GET /v1/analytics/revenue?period_start=...&period_end=...
// Both bounds are RFC 3339 timestamps.
func (h *AnalyticsHandler) GetRevenueMetrics(c *gin.Context) {
	var req dto.RevenueMetricsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Debugw("failed to bind query", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("period_start and period_end must be RFC 3339 timestamps").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.GetRevenueMetrics(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
