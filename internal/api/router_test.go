package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/vibefunder/billing/internal/api/dto"
	"github.com/vibefunder/billing/internal/auth"
	"github.com/vibefunder/billing/internal/domain/price"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/integration/stripe"
	"github.com/vibefunder/billing/internal/pyroscope"
	"github.com/vibefunder/billing/internal/rest/middleware"
	"github.com/vibefunder/billing/internal/service"
	"github.com/vibefunder/billing/internal/testutil"
	"github.com/vibefunder/billing/internal/types"
)

const testWebhookSecret = "whsec_router_test"

type RouterSuite struct {
	testutil.BaseServiceTestSuite

	router *gin.Engine
	token  string
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	cfg := s.GetConfig()
	cfg.Auth.Secret = "router-test-secret"
	cfg.Stripe.WebhookSecret = testWebhookSecret

	stores := s.GetStores()
	params := service.NewServiceParams(
		s.GetLogger(),
		cfg,
		s.GetDB(),
		s.GetSentry(),
		s.GetCache(),
		stores.PriceRepo,
		stores.SubscriptionRepo,
		stores.InvoiceRepo,
		stores.WebhookEventRepo,
		stores.DunningAttemptRepo,
		s.GetGateway(),
		s.GetPublisher(),
	)
	params.Now = s.Clock()

	prices := service.NewPriceCatalogService(params)
	notifications := service.NewNotificationService(params)
	dunning := service.NewDunningService(params, notifications)
	subscriptions := service.NewSubscriptionService(params, prices, dunning, notifications)
	webhooks := service.NewWebhookProcessorService(params, dunning, notifications)
	analytics := service.NewRevenueAnalyticsService(params)

	handlers := NewHandlers(
		subscriptions,
		prices,
		analytics,
		webhooks,
		dunning,
		stripe.NewWebhookVerifier(cfg, s.GetLogger()),
		s.GetLogger(),
	)
	s.router = NewRouter(handlers, cfg, s.GetLogger(), s.GetSentry(), pyroscope.NewPyroscopeService(cfg, s.GetLogger()))

	token, err := auth.NewProvider(cfg).GenerateToken("operator_1", time.Hour)
	s.Require().NoError(err)
	s.token = token
}

func (s *RouterSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		s.Require().NoError(err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(types.HeaderAuthorization, "Bearer "+s.token)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) decodeError(w *httptest.ResponseRecorder) middleware.ErrorResponse {
	var resp middleware.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.False(resp.Success)
	return resp
}

func (s *RouterSuite) TestHealthNeedsNoToken() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	s.NotEmpty(w.Header().Get(types.HeaderRequestID))
}

func (s *RouterSuite) TestRequestIDIsEchoed() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(types.HeaderRequestID, "req_from_caller")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal("req_from_caller", w.Header().Get(types.HeaderRequestID))
}

func (s *RouterSuite) TestAPIRequiresToken() {
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "bad token", header: "Bearer nope"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := httptest.NewRequest(http.MethodGet, "/v1/subscriptions/subs_1", nil)
			if tt.header != "" {
				req.Header.Set(types.HeaderAuthorization, tt.header)
			}
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			s.Equal(http.StatusUnauthorized, w.Code)
		})
	}
}

func (s *RouterSuite) TestCreateAndGetSubscription() {
	s.CreatePrice("camp_01", types.TierPatron, types.BillingCycleMonthly, 2500, "usd")

	w := s.do(http.MethodPost, "/v1/subscriptions", dto.CreateSubscriptionRequest{
		CampaignID:   "camp_01",
		BackerID:     "backer_1",
		Tier:         types.TierPatron,
		BillingCycle: types.BillingCycleMonthly,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var created dto.CreateSubscriptionResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &created))
	s.Equal(types.SubscriptionStatusActive, created.Status)

	w = s.do(http.MethodGet, "/v1/subscriptions/"+created.SubscriptionID, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var got map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &got))
	s.Equal(created.SubscriptionID, got["id"])
	s.Equal("active", got["status"])

	w = s.do(http.MethodGet, "/v1/backers/backer_1/subscriptions", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var list dto.ListBackerSubscriptionsResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &list))
	s.Len(list.Subscriptions, 1)
}

func (s *RouterSuite) TestErrorMapping() {
	_, patron, _ := s.prices()
	sub := s.CreateSubscription("backer_1", patron)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{
			name:   "invalid discount",
			method: http.MethodPost,
			path:   "/v1/subscriptions",
			body: dto.CreateSubscriptionRequest{
				CampaignID:   "camp_01",
				BackerID:     "backer_2",
				Tier:         types.TierPatron,
				BillingCycle: types.BillingCycleMonthly,
				DiscountCode: "INVALID_CODE",
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing price",
			method: http.MethodPost,
			path:   "/v1/subscriptions",
			body: dto.CreateSubscriptionRequest{
				CampaignID:   "camp_missing",
				BackerID:     "backer_2",
				Tier:         types.TierPatron,
				BillingCycle: types.BillingCycleMonthly,
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed body",
			method: http.MethodPost,
			path:   "/v1/subscriptions/" + sub.ID + "/cancel",
			body:   "not an object",
			status: http.StatusBadRequest,
		},
		{
			name:   "not found",
			method: http.MethodGet,
			path:   "/v1/subscriptions/subs_missing",
			status: http.StatusNotFound,
		},
		{
			name:   "invalid transition",
			method: http.MethodPost,
			path:   "/v1/subscriptions/" + sub.ID + "/resume",
			status: http.StatusConflict,
		},
		{
			name:   "invalid payment method",
			method: http.MethodPost,
			path:   "/v1/subscriptions/" + sub.ID + "/payment-method",
			body:   dto.UpdatePaymentMethodRequest{PaymentMethodID: "card_123"},
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid analytics period",
			method: http.MethodGet,
			path:   "/v1/analytics/revenue?period_start=yesterday",
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.do(tt.method, tt.path, tt.body)
			s.Equal(tt.status, w.Code, w.Body.String())
			resp := s.decodeError(w)
			s.NotEmpty(resp.Error.Display)
		})
	}
}

func (s *RouterSuite) TestProcessorUnavailableMapsTo503() {
	_, patron, _ := s.prices()
	sub := s.CreateSubscription("backer_1", patron)
	s.GetGateway().FailNext("PauseCollection", processorDown())

	w := s.do(http.MethodPost, "/v1/subscriptions/"+sub.ID+"/pause", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code, w.Body.String())
	s.NotEmpty(s.decodeError(w).Error.Display)
	s.Equal(types.SubscriptionStatusActive, s.Reload(sub.ID).Status)
}

func (s *RouterSuite) TestUpgradeReturnsProration() {
	_, patron, _ := s.prices()
	sub := s.CreateSubscription("backer_1", patron)

	w := s.do(http.MethodPost, "/v1/subscriptions/"+sub.ID+"/upgrade", dto.ChangeTierRequest{
		NewTier: types.TierPremium,
		Mode:    types.ChangeModePreview,
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp dto.ChangeTierResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Require().NotNil(resp.Proration)
	// Upgrading at the very start of the period credits the full old price.
	s.Equal(int64(-2500), resp.Proration.CreditAmount)
	s.Equal(int64(5000), resp.Proration.ChargeAmount)
	s.Equal(int64(2500), resp.Proration.NetAmount)
}

func (s *RouterSuite) TestCancelAndRollover() {
	_, patron, _ := s.prices()
	sub := s.CreateSubscription("backer_1", patron)

	w := s.do(http.MethodPost, "/v1/subscriptions/"+sub.ID+"/cancel", dto.CancelSubscriptionRequest{Mode: types.ChangeModeAtPeriodEnd})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	s.SetNow(sub.CurrentPeriodEnd.Add(time.Minute))
	w = s.do(http.MethodPost, "/v1/cron/subscriptions/rollover", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var result dto.RolloverResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &result))
	s.Equal(1, result.Canceled)
	s.Equal(types.SubscriptionStatusCanceled, s.Reload(sub.ID).Status)

	w = s.do(http.MethodPost, "/v1/cron/dunning/grace-expiry", nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestDunningAttempts() {
	_, patron, _ := s.prices()
	sub := s.CreateSubscription("backer_1", patron)
	s.Require().NoError(sub.TransitionTo(types.SubscriptionStatusPastDue, s.GetNow()))
	sub.AttachGracePeriod(s.GetNow().Add(72 * time.Hour))
	s.GetStores().SubscriptionRepo.Put(s.GetContext(), sub)

	w := s.do(http.MethodGet, "/v1/subscriptions/"+sub.ID+"/dunning-attempts", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp dto.DunningAttemptsResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(sub.ID, resp.SubscriptionID)
	s.Equal(types.SubscriptionStatusPastDue, resp.Status)
	s.True(resp.InGracePeriod)
	s.NotNil(resp.GracePeriodEnd)
	s.Empty(resp.Attempts)

	w = s.do(http.MethodGet, "/v1/subscriptions/sub_missing/dunning-attempts", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterSuite) TestCreateAndGetPrice() {
	w := s.do(http.MethodPost, "/v1/prices", dto.CreatePriceRequest{
		CampaignID:       "camp_01",
		Tier:             types.TierSupporter,
		BillingCycle:     types.BillingCycleMonthly,
		UnitAmount:       1000,
		Currency:         "usd",
		ProcessorPriceID: "price_supporter",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var created map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &created))
	id, _ := created["id"].(string)
	s.Require().NotEmpty(id)

	w = s.do(http.MethodGet, "/v1/prices/"+id, nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestRevenueAnalytics() {
	supporter, patron, _ := s.prices()
	s.CreateSubscription("backer_1", supporter)
	s.CreateSubscription("backer_2", patron)

	start := s.GetNow().Add(-time.Hour).Format(time.RFC3339)
	end := s.GetNow().Add(time.Hour).Format(time.RFC3339)
	w := s.do(http.MethodGet, fmt.Sprintf("/v1/analytics/revenue?period_start=%s&period_end=%s", start, end), nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp dto.RevenueMetricsResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Require().Len(resp.MRR, 1)
	s.Equal(int64(3500), resp.MRR[0].Amount)
}

func (s *RouterSuite) webhookRequest(payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(types.HeaderStripeSignature, signature)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func paymentFailedPayload(eventID, processorSubscriptionID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": "invoice.payment_failed",
		"created": 1773144000,
		"data": {
			"object": {
				"id": "in_router_1",
				"object": "invoice",
				"customer": "cus_backer_1",
				"subscription": %q,
				"amount_due": 2500,
				"amount_paid": 0,
				"currency": "usd",
				"attempt_count": 4,
				"billing_reason": "subscription_cycle"
			}
		}
	}`, eventID, processorSubscriptionID))
}

func (s *RouterSuite) TestWebhookSignature() {
	_, patron, _ := s.prices()
	sub := s.CreateSubscription("backer_1", patron)
	payload := paymentFailedPayload("evt_router_1", sub.ProcessorSubscriptionID)

	// Unsigned and wrongly signed deliveries are rejected before anything is stored.
	w := s.webhookRequest(payload, "")
	s.Equal(http.StatusBadRequest, w.Code)

	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_someone_else",
		Timestamp: time.Now(),
	})
	w = s.webhookRequest(payload, forged.Header)
	s.Equal(http.StatusBadRequest, w.Code)
	_, err := s.GetStores().WebhookEventRepo.Get(s.GetContext(), "evt_router_1")
	s.True(ierr.IsNotFound(err))

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	w = s.webhookRequest(payload, signed.Header)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp dto.WebhookResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(types.WebhookEventStatusApplied, resp.Status)
	// The final attempt puts the subscription into its grace period.
	stored := s.Reload(sub.ID)
	s.Equal(types.SubscriptionStatusPastDue, stored.Status)
	s.NotNil(stored.GracePeriodEnd)

	// A redelivery is acknowledged without changing anything.
	w = s.webhookRequest(payload, signed.Header)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.True(resp.Replay)
}

func (s *RouterSuite) prices() (supporter, patron, premium *price.Price) {
	supporter = s.CreatePrice("camp_01", types.TierSupporter, types.BillingCycleMonthly, 1000, "usd")
	patron = s.CreatePrice("camp_01", types.TierPatron, types.BillingCycleMonthly, 2500, "usd")
	premium = s.CreatePrice("camp_01", types.TierPremium, types.BillingCycleMonthly, 5000, "usd")
	return supporter, patron, premium
}

func processorDown() error {
	return ierr.NewError("stripe is down").
		WithHint("Payment processor is unavailable").
		Mark(ierr.ErrProcessorUnavailable)
}
