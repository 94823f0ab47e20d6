package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/service"
)

type DunningHandler struct {
	service service.DunningService
	log     *logger.Logger
}

func NewDunningHandler(service service.DunningService, log *logger.Logger) *DunningHandler {
	return &DunningHandler{service: service, log: log}
}

// ListAttempts handles GET /v1/subscriptions/:id/dunning-attempts
func (h *DunningHandler) ListAttempts(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	resp, err := h.service.ListAttempts(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
