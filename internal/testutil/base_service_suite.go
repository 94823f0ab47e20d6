package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/vibefunder/billing/internal/cache"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/domain/price"
	"github.com/vibefunder/billing/internal/domain/subscription"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/sentry"
	"github.com/vibefunder/billing/internal/types"
	"github.com/vibefunder/billing/internal/validator"
)

// Stores holds the in-memory repositories used by service tests
type Stores struct {
	PriceRepo          *InMemoryPriceStore
	SubscriptionRepo   *InMemorySubscriptionStore
	InvoiceRepo        *InMemoryInvoiceStore
	WebhookEventRepo   *InMemoryWebhookEventStore
	DunningAttemptRepo *InMemoryDunningStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	db        *MockPostgresClient
	gateway   *FakeGateway
	publisher *InMemoryNotificationPublisher
	cache     cache.Cache
	sentry    *sentry.Service
	logger    *logger.Logger
	config    *config.Configuration
	now       time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()
	s.logger = logger.NewNopLogger()
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.config = config.GetDefaultConfig()
	s.ctx = SetupContext()
	s.now = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	s.setupStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		PriceRepo:          NewInMemoryPriceStore(),
		SubscriptionRepo:   NewInMemorySubscriptionStore(),
		InvoiceRepo:        NewInMemoryInvoiceStore(),
		WebhookEventRepo:   NewInMemoryWebhookEventStore(),
		DunningAttemptRepo: NewInMemoryDunningStore(),
	}

	s.db = NewMockPostgresClient()
	s.gateway = NewFakeGateway()
	s.publisher = NewInMemoryNotificationPublisher(s.config, s.logger)
	s.cache = cache.NewInMemoryCache(s.config)
	s.sentry = sentry.NewSentryService(s.config, s.logger)
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration. Changes take effect for services
// built afterwards.
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetDB() *MockPostgresClient {
	return s.db
}

func (s *BaseServiceTestSuite) GetGateway() *FakeGateway {
	return s.gateway
}

func (s *BaseServiceTestSuite) GetPublisher() *InMemoryNotificationPublisher {
	return s.publisher
}

func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

func (s *BaseServiceTestSuite) GetSentry() *sentry.Service {
	return s.sentry
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the test clock
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}

// Clock returns a func reading the test clock, for services that take a time source.
func (s *BaseServiceTestSuite) Clock() func() time.Time {
	return func() time.Time { return s.now }
}

// Advance moves the test clock forward.
func (s *BaseServiceTestSuite) Advance(d time.Duration) {
	s.now = s.now.Add(d)
}

// SetNow moves the test clock to t.
func (s *BaseServiceTestSuite) SetNow(t time.Time) {
	s.now = t.UTC()
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}

// CreatePrice stores an active price and returns it.
func (s *BaseServiceTestSuite) CreatePrice(campaignID string, tier types.TierType, cycle types.BillingCycle, amount int64, currency string) *price.Price {
	p := &price.Price{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRICE),
		CampaignID:       campaignID,
		Tier:             tier,
		BillingCycle:     cycle,
		UnitAmount:       amount,
		Currency:         currency,
		ProcessorPriceID: "price_" + s.GetUUID(),
		Active:           true,
		BaseModel:        types.GetDefaultBaseModel(s.ctx),
	}
	s.Require().NoError(s.stores.PriceRepo.Create(s.ctx, p))
	return p
}

// CreateSubscription stores an active subscription on p whose current period
// started at the test clock.
func (s *BaseServiceTestSuite) CreateSubscription(backerID string, p *price.Price) *subscription.Subscription {
	end, err := types.NextBillingDate(s.now, p.BillingCycle)
	s.Require().NoError(err)

	sub := &subscription.Subscription{
		ID:                      types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		CampaignID:              p.CampaignID,
		BackerID:                backerID,
		Tier:                    p.Tier,
		BillingCycle:            p.BillingCycle,
		Status:                  types.SubscriptionStatusActive,
		PriceID:                 p.ID,
		UnitAmount:              p.UnitAmount,
		Currency:                p.Currency,
		CurrentPeriodStart:      s.now,
		CurrentPeriodEnd:        end,
		StartedAt:               s.now,
		ProcessorSubscriptionID: "sub_" + s.GetUUID(),
		ProcessorCustomerID:     "cus_" + backerID,
		Metadata:                types.Metadata{},
		BaseModel:               types.GetDefaultBaseModel(s.ctx),
	}
	s.Require().NoError(s.stores.SubscriptionRepo.Create(s.ctx, sub))
	return sub
}

// Reload reads the stored state of a subscription.
func (s *BaseServiceTestSuite) Reload(id string) *subscription.Subscription {
	sub, err := s.stores.SubscriptionRepo.Get(s.ctx, id)
	s.Require().NoError(err)
	return sub
}
