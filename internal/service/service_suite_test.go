package service

import (
	"time"

	"github.com/vibefunder/billing/internal/domain/dunning"
	"github.com/vibefunder/billing/internal/domain/invoice"
	"github.com/vibefunder/billing/internal/domain/price"
	"github.com/vibefunder/billing/internal/domain/subscription"
	"github.com/vibefunder/billing/internal/domain/webhookevent"
	"github.com/vibefunder/billing/internal/testutil"
	"github.com/vibefunder/billing/internal/types"
)

const testCampaignID = "camp_01"

// BillingServiceSuite wires every billing service on the in-memory stores.
type BillingServiceSuite struct {
	testutil.BaseServiceTestSuite

	params        ServiceParams
	priceCatalog  PriceCatalogService
	notifications NotificationService
	dunning       DunningService
	subscriptions SubscriptionService
	webhooks      WebhookProcessorService
	analytics     RevenueAnalyticsService
}

func (s *BillingServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.buildServices()
}

// buildServices (re)creates the services, picking up config changes.
func (s *BillingServiceSuite) buildServices() {
	stores := s.GetStores()
	s.params = NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
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
	s.params.Now = s.Clock()

	s.priceCatalog = NewPriceCatalogService(s.params)
	s.notifications = NewNotificationService(s.params)
	s.dunning = NewDunningService(s.params, s.notifications)
	s.subscriptions = NewSubscriptionService(s.params, s.priceCatalog, s.dunning, s.notifications)
	s.webhooks = NewWebhookProcessorService(s.params, s.dunning, s.notifications)
	s.analytics = NewRevenueAnalyticsService(s.params)
}

// monthlyPrices creates the three monthly tiers of the test campaign in usd.
func (s *BillingServiceSuite) monthlyPrices() (supporter, patron, premium *price.Price) {
	supporter = s.CreatePrice(testCampaignID, types.TierSupporter, types.BillingCycleMonthly, 1000, "usd")
	patron = s.CreatePrice(testCampaignID, types.TierPatron, types.BillingCycleMonthly, 2500, "usd")
	premium = s.CreatePrice(testCampaignID, types.TierPremium, types.BillingCycleMonthly, 5000, "usd")
	return supporter, patron, premium
}

func (s *BillingServiceSuite) invoices(subscriptionID string) []*invoice.Invoice {
	invoices, err := s.GetStores().InvoiceRepo.ListBySubscription(s.GetContext(), subscriptionID)
	s.Require().NoError(err)
	return invoices
}

func (s *BillingServiceSuite) attempts(subscriptionID string) []*dunning.Attempt {
	attempts, err := s.GetStores().DunningAttemptRepo.ListBySubscription(s.GetContext(), subscriptionID)
	s.Require().NoError(err)
	return attempts
}

func (s *BillingServiceSuite) assertPeriodValid(sub *subscription.Subscription) {
	s.True(sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart),
		"period end %s must be after start %s", sub.CurrentPeriodEnd, sub.CurrentPeriodStart)
}

// paymentFailed builds an invoice.payment_failed event for the subscription.
func paymentFailed(eventID string, sub *subscription.Subscription, invoiceID string, attempt int, next *time.Time) *webhookevent.Event {
	return &webhookevent.Event{
		ID:   eventID,
		Type: types.WebhookEventInvoicePaymentFailed,
		Payload: webhookevent.InvoicePaymentFailed{Invoice: webhookevent.InvoiceObject{
			ID:                 invoiceID,
			SubscriptionID:     sub.ProcessorSubscriptionID,
			CustomerID:         sub.ProcessorCustomerID,
			AmountDue:          sub.UnitAmount,
			Currency:           sub.Currency,
			AttemptCount:       attempt,
			BillingReason:      "subscription_cycle",
			NextPaymentAttempt: next,
		}},
	}
}

// paymentSucceeded builds an invoice.payment_succeeded event for the subscription.
func paymentSucceeded(eventID string, sub *subscription.Subscription, invoiceID string) *webhookevent.Event {
	return &webhookevent.Event{
		ID:   eventID,
		Type: types.WebhookEventInvoicePaymentSucceeded,
		Payload: webhookevent.InvoicePaymentSucceeded{Invoice: webhookevent.InvoiceObject{
			ID:             invoiceID,
			SubscriptionID: sub.ProcessorSubscriptionID,
			CustomerID:     sub.ProcessorCustomerID,
			AmountDue:      sub.UnitAmount,
			AmountPaid:     sub.UnitAmount,
			Currency:       sub.Currency,
			AttemptCount:   1,
			BillingReason:  "subscription_cycle",
		}},
	}
}

// subscriptionDeleted builds a customer.subscription.deleted event.
func subscriptionDeleted(eventID string, sub *subscription.Subscription, canceledAt *time.Time) *webhookevent.Event {
	return &webhookevent.Event{
		ID:   eventID,
		Type: types.WebhookEventCustomerSubscriptionDeleted,
		Payload: webhookevent.SubscriptionDeleted{Subscription: webhookevent.SubscriptionObject{
			ID:         sub.ProcessorSubscriptionID,
			CustomerID: sub.ProcessorCustomerID,
			Status:     "canceled",
			CanceledAt: canceledAt,
		}},
	}
}
