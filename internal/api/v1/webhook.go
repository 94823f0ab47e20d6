package v1

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/interfaces"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/service"
	"github.com/vibefunder/billing/internal/types"
)

// maxWebhookBodyBytes matches the limit Stripe documents for event payloads.
const maxWebhookBodyBytes = 65536

// WebhookHandler receives payment processor deliveries.
type WebhookHandler struct {
	verifier  interfaces.WebhookVerifier
	processor service.WebhookProcessorService
	logger    *logger.Logger
}

func NewWebhookHandler(
	verifier interfaces.WebhookVerifier,
	processor service.WebhookProcessorService,
	logger *logger.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		verifier:  verifier,
		processor: processor,
		logger:    logger,
	}
}

// HandleStripeWebhook verifies the Stripe-Signature header against the raw body
// before anything is recorded. A 2xx tells Stripe to stop redelivering, so only
// errors a redelivery could fix answer with 5xx.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.Errorw("failed to read webhook body", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Failed to read request body").
			Mark(ierr.ErrValidation))
		return
	}

	evt, err := h.verifier.Verify(body, c.GetHeader(types.HeaderStripeSignature))
	if err != nil {
		h.logger.Warnw("rejected webhook delivery", "error", err, "payload_length", len(body))
		c.Error(err)
		return
	}

	h.logger.Debugw("processing webhook",
		"event_id", evt.ID,
		"event_type", evt.Type,
	)

	resp, err := h.processor.ProcessEvent(c.Request.Context(), evt)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
