package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vibefunder/billing/internal/api/dto"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/service"
)

type SubscriptionHandler struct {
	service service.SubscriptionService
	log     *logger.Logger
}

func NewSubscriptionHandler(service service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, log: log}
}

// subscriptionID reads the :id path parameter, attaching a validation error when it is empty.
func subscriptionID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("subscription ID is required").
			WithHint("Please provide a valid subscription ID").
			Mark(ierr.ErrValidation))
		return "", false
	}
	return id, true
}

// bindJSON decodes the body into req, attaching a validation error on failure.
func bindJSON(c *gin.Context, log *logger.Logger, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		log.Debugw("failed to bind JSON", "path", c.FullPath(), "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return false
	}
	return true
}

// CreateSubscription handles POST /v1/subscriptions
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	var req dto.CreateSubscriptionRequest
	if !bindJSON(c, h.log, &req) {
		return
	}

	resp, err := h.service.CreateSubscription(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetSubscription(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListBackerSubscriptions handles GET /v1/backers/:backer_id/subscriptions
func (h *SubscriptionHandler) ListBackerSubscriptions(c *gin.Context) {
	backerID := c.Param("backer_id")
	if backerID == "" {
		c.Error(ierr.NewError("backer ID is required").
			WithHint("Please provide a valid backer ID").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListBackerSubscriptions(c.Request.Context(), backerID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) UpgradeSubscription(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	var req dto.ChangeTierRequest
	if !bindJSON(c, h.log, &req) {
		return
	}

	resp, err := h.service.UpgradeSubscription(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) DowngradeSubscription(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	var req dto.ChangeTierRequest
	if !bindJSON(c, h.log, &req) {
		return
	}

	resp, err := h.service.DowngradeSubscription(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) MigrateSubscription(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	var req dto.MigrateSubscriptionRequest
	if !bindJSON(c, h.log, &req) {
		return
	}

	resp, err := h.service.MigrateSubscription(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	var req dto.CancelSubscriptionRequest
	if !bindJSON(c, h.log, &req) {
		return
	}

	resp, err := h.service.CancelSubscription(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) ReactivateSubscription(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	resp, err := h.service.ReactivateSubscription(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) PauseSubscription(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	resp, err := h.service.PauseSubscription(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) ResumeSubscription(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	resp, err := h.service.ResumeSubscription(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) UpdatePaymentMethod(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	var req dto.UpdatePaymentMethodRequest
	if !bindJSON(c, h.log, &req) {
		return
	}

	resp, err := h.service.UpdatePaymentMethod(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
