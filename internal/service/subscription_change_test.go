package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/vibefunder/billing/internal/api/dto"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/interfaces"
	"github.com/vibefunder/billing/internal/types"
)

type SubscriptionChangeSuite struct {
	BillingServiceSuite
}

func TestSubscriptionChange(t *testing.T) {
	suite.Run(t, new(SubscriptionChangeSuite))
}

// halfway is the middle of a period that started at the suite clock, which is
// 31 days long for the default monthly prices.
const halfway = 31 * 12 * time.Hour

func (s *SubscriptionChangeSuite) TestUpgradePreviewMatchesInvoice() {
	_, patron, premium := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", patron)
	s.Advance(halfway)

	preview, err := s.subscriptions.UpgradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierPremium,
		Mode:    types.ChangeModePreview,
	})
	s.Require().NoError(err)
	s.Equal(types.TierPatron, preview.Tier)
	s.Require().NotNil(preview.Proration)
	s.Equal(int64(-1250), preview.Proration.CreditAmount)
	s.Equal(int64(2500), preview.Proration.ChargeAmount)
	s.Equal(int64(1250), preview.Proration.NetAmount)
	s.True(decimal.NewFromFloat(0.5).Equal(preview.Proration.ElapsedFraction))
	s.Empty(preview.Proration.InvoiceID)

	// Preview writes nothing anywhere.
	s.Empty(s.GetGateway().Calls("ChangePrice"))
	s.Empty(s.invoices(sub.ID))
	s.Equal(patron.ID, s.Reload(sub.ID).PriceID)

	resp, err := s.subscriptions.UpgradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierPremium,
		Mode:    types.ChangeModeImmediate,
	})
	s.Require().NoError(err)
	s.Equal(types.TierPremium, resp.Tier)
	s.Equal(preview.Proration.NetAmount, resp.Proration.NetAmount)
	s.NotEmpty(resp.Proration.InvoiceID)

	invoices := s.invoices(sub.ID)
	s.Require().Len(invoices, 1)
	s.Equal(resp.Proration.InvoiceID, invoices[0].ID)
	s.Equal(preview.Proration.NetAmount, invoices[0].AmountDue)
	s.Equal(types.InvoiceBillingReasonProration, invoices[0].BillingReason)

	stored := s.Reload(sub.ID)
	s.Equal(premium.ID, stored.PriceID)
	s.Equal(int64(5000), stored.UnitAmount)
	s.Equal(types.TierPremium, stored.Tier)
	s.assertPeriodValid(stored)

	changes := s.GetGateway().Calls("ChangePrice")
	s.Require().Len(changes, 1)
	s.Equal(premium.ProcessorPriceID, changes[0].ProcessorPriceID)
	s.Equal(types.ProrationBehaviorAlwaysInvoice, changes[0].ProrationBehavior)
	s.Require().NotNil(changes[0].ProrationDate)
	s.Equal(s.GetNow(), *changes[0].ProrationDate)
}

func (s *SubscriptionChangeSuite) TestUpgradeReusesProcessorInvoice() {
	_, patron, _ := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", patron)
	s.Advance(halfway)

	s.GetGateway().NextInvoice = &interfaces.ProcessorInvoice{
		ID:            "in_proration",
		AmountDue:     1250,
		Currency:      "usd",
		Status:        "paid",
		BillingReason: "subscription_update",
	}

	resp, err := s.subscriptions.UpgradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierPremium,
		Mode:    types.ChangeModeImmediate,
	})
	s.Require().NoError(err)

	invoices := s.invoices(sub.ID)
	s.Require().Len(invoices, 1)
	s.Equal(resp.Proration.InvoiceID, invoices[0].ID)
	s.Equal("in_proration", lo.FromPtr(invoices[0].ProcessorInvoiceID))
	s.Equal(types.InvoiceStatusPaid, invoices[0].Status)
}

func (s *SubscriptionChangeSuite) TestChangeInWrongDirection() {
	supporter, patron, _ := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", patron)

	_, err := s.subscriptions.UpgradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierSupporter,
		Mode:    types.ChangeModeImmediate,
	})
	s.True(ierr.IsValidation(err))

	_, err = s.subscriptions.UpgradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierPatron,
		Mode:    types.ChangeModeImmediate,
	})
	s.True(ierr.IsValidation(err))

	_, err = s.subscriptions.DowngradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierPremium,
		Mode:    types.ChangeModeAtPeriodEnd,
	})
	s.True(ierr.IsValidation(err))

	// Modes the operation does not offer.
	_, err = s.subscriptions.UpgradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierPremium,
		Mode:    types.ChangeModeAtPeriodEnd,
	})
	s.True(ierr.IsValidation(err))

	_, err = s.subscriptions.DowngradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: supporter.Tier,
		Mode:    types.ChangeModePreview,
	})
	s.True(ierr.IsValidation(err))

	s.Empty(s.GetGateway().Calls("ChangePrice"))
	s.Equal(patron.ID, s.Reload(sub.ID).PriceID)
}

func (s *SubscriptionChangeSuite) TestUpgradeCanceledSubscription() {
	_, patron, _ := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", patron)
	s.Require().NoError(sub.TransitionTo(types.SubscriptionStatusCanceled, s.GetNow()))
	s.GetStores().SubscriptionRepo.Put(s.GetContext(), sub)

	_, err := s.subscriptions.UpgradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierPremium,
		Mode:    types.ChangeModeImmediate,
	})
	s.True(ierr.IsInvalidTransition(err))
}

func (s *SubscriptionChangeSuite) TestUpgradeCurrencyMismatch() {
	patron := s.CreatePrice(testCampaignID, types.TierPatron, types.BillingCycleMonthly, 2500, "usd")
	s.CreatePrice(testCampaignID, types.TierPremium, types.BillingCycleMonthly, 4500, "eur")
	sub := s.CreateSubscription("backer_1", patron)

	_, err := s.subscriptions.UpgradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierPremium,
		Mode:    types.ChangeModePreview,
	})
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionChangeSuite) TestDowngradeAtPeriodEnd() {
	supporter, _, premium := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", premium)

	resp, err := s.subscriptions.DowngradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierSupporter,
		Mode:    types.ChangeModeAtPeriodEnd,
	})
	s.Require().NoError(err)
	s.Equal(types.TierPremium, resp.Tier)
	s.Equal(types.TierSupporter, lo.FromPtr(resp.ScheduledDowngradeTier))
	s.Nil(resp.Proration)

	// The processor gets the lower price at once, without proration, so its own
	// renewal at period end already charges the new tier.
	changes := s.GetGateway().Calls("ChangePrice")
	s.Require().Len(changes, 1)
	s.Equal(supporter.ProcessorPriceID, changes[0].ProcessorPriceID)
	s.Equal(types.ProrationBehaviorNone, changes[0].ProrationBehavior)
	s.Nil(changes[0].ProrationDate)

	stored := s.Reload(sub.ID)
	s.Equal(premium.ID, stored.PriceID)
	s.Equal(types.TierSupporter, lo.FromPtr(stored.ScheduledDowngradeTier))
	s.True(s.GetNow().Before(stored.CurrentPeriodEnd))

	s.SetNow(stored.CurrentPeriodEnd.Add(time.Minute))
	result, err := s.subscriptions.RolloverPeriods(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, result.Downgraded)
	s.Zero(result.Failed)

	stored = s.Reload(sub.ID)
	s.Equal(supporter.ID, stored.PriceID)
	s.Equal(types.TierSupporter, stored.Tier)
	s.Equal(int64(1000), stored.UnitAmount)
	s.Nil(stored.ScheduledDowngradeTier)
	s.assertPeriodValid(stored)
	s.True(stored.CurrentPeriodEnd.After(s.GetNow()))

	// The rollover itself does not touch the processor's price again.
	s.Len(s.GetGateway().Calls("ChangePrice"), 1)
	s.Empty(s.invoices(sub.ID))
}

func (s *SubscriptionChangeSuite) TestDowngradeAtPeriodEndProcessorFailure() {
	_, _, premium := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", premium)
	s.GetGateway().FailNext("ChangePrice", ierr.NewError("stripe is down").
		WithHint("Payment processor is unavailable").
		Mark(ierr.ErrProcessorUnavailable))

	_, err := s.subscriptions.DowngradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierSupporter,
		Mode:    types.ChangeModeAtPeriodEnd,
	})
	s.True(ierr.Is(err, ierr.ErrProcessorUnavailable))
	s.Nil(s.Reload(sub.ID).ScheduledDowngradeTier)
}

func (s *SubscriptionChangeSuite) TestDowngradeBlockedDuringGracePeriod() {
	_, _, premium := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", premium)
	s.Require().NoError(sub.TransitionTo(types.SubscriptionStatusPastDue, s.GetNow()))
	sub.AttachGracePeriod(s.GetNow().Add(7 * 24 * time.Hour))
	s.GetStores().SubscriptionRepo.Put(s.GetContext(), sub)

	_, err := s.subscriptions.DowngradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierPatron,
		Mode:    types.ChangeModeAtPeriodEnd,
	})
	s.True(ierr.IsInvalidTransition(err))
	s.Nil(s.Reload(sub.ID).ScheduledDowngradeTier)
}

func (s *SubscriptionChangeSuite) TestDowngradeImmediatelyCreditsWithoutInvoice() {
	supporter, _, premium := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", premium)
	s.Advance(halfway)

	resp, err := s.subscriptions.DowngradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierSupporter,
		Mode:    types.ChangeModeImmediate,
	})
	s.Require().NoError(err)
	s.Require().NotNil(resp.Proration)
	s.Equal(int64(-2500), resp.Proration.CreditAmount)
	s.Equal(int64(500), resp.Proration.ChargeAmount)
	s.Equal(int64(-2000), resp.Proration.NetAmount)
	s.Empty(resp.Proration.InvoiceID)
	s.Empty(s.invoices(sub.ID))

	stored := s.Reload(sub.ID)
	s.Equal(supporter.ID, stored.PriceID)
	s.Equal(types.TierSupporter, stored.Tier)
}

func (s *SubscriptionChangeSuite) TestUpgradeClearsScheduledDowngrade() {
	supporter, patron, premium := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", patron)

	_, err := s.subscriptions.DowngradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierSupporter,
		Mode:    types.ChangeModeAtPeriodEnd,
	})
	s.Require().NoError(err)

	_, err = s.subscriptions.UpgradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierPremium,
		Mode:    types.ChangeModeImmediate,
	})
	s.Require().NoError(err)

	stored := s.Reload(sub.ID)
	s.Equal(premium.ID, stored.PriceID)
	s.Nil(stored.ScheduledDowngradeTier)

	// The early downgrade push is undone before the prorated change, so the
	// processor prorates from the price billing credits.
	changes := s.GetGateway().Calls("ChangePrice")
	s.Require().Len(changes, 3)
	s.Equal(supporter.ProcessorPriceID, changes[0].ProcessorPriceID)
	s.Equal(patron.ProcessorPriceID, changes[1].ProcessorPriceID)
	s.Equal(types.ProrationBehaviorNone, changes[1].ProrationBehavior)
	s.Equal(premium.ProcessorPriceID, changes[2].ProcessorPriceID)
	s.Equal(types.ProrationBehaviorAlwaysInvoice, changes[2].ProrationBehavior)
}

func (s *SubscriptionChangeSuite) TestUpgradeDuringTrialIsNotProrated() {
	_, patron, premium := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", patron)
	trialEnd := s.GetNow().AddDate(0, 0, 14)
	periodEnd, err := types.NextBillingDate(trialEnd, types.BillingCycleMonthly)
	s.Require().NoError(err)
	sub.Status = types.SubscriptionStatusTrialing
	sub.TrialEnd = &trialEnd
	sub.CurrentPeriodStart = trialEnd
	sub.CurrentPeriodEnd = periodEnd
	s.GetStores().SubscriptionRepo.Put(s.GetContext(), sub)
	s.Advance(24 * time.Hour)

	resp, err := s.subscriptions.UpgradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierPremium,
		Mode:    types.ChangeModeImmediate,
	})
	s.Require().NoError(err)
	s.Require().NotNil(resp.Proration)
	s.Zero(resp.Proration.CreditAmount)
	s.Zero(resp.Proration.ChargeAmount)
	s.Zero(resp.Proration.NetAmount)
	s.Empty(resp.Proration.InvoiceID)
	s.Empty(s.invoices(sub.ID))

	stored := s.Reload(sub.ID)
	s.Equal(premium.ID, stored.PriceID)
	s.Equal(types.SubscriptionStatusTrialing, stored.Status)

	changes := s.GetGateway().Calls("ChangePrice")
	s.Require().Len(changes, 1)
	s.Equal(types.ProrationBehaviorNone, changes[0].ProrationBehavior)
	s.Nil(changes[0].ProrationDate)
}

func (s *SubscriptionChangeSuite) TestProcessorInvoiceWithOtherAmountStaysOpen() {
	_, patron, _ := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", patron)
	s.Advance(halfway)

	s.GetGateway().NextInvoice = &interfaces.ProcessorInvoice{
		ID:            "in_proration",
		AmountDue:     2500,
		AmountPaid:    2500,
		Currency:      "usd",
		Status:        "paid",
		BillingReason: "subscription_update",
	}

	resp, err := s.subscriptions.UpgradeSubscription(s.GetContext(), sub.ID, dto.ChangeTierRequest{
		NewTier: types.TierPremium,
		Mode:    types.ChangeModeImmediate,
	})
	s.Require().NoError(err)
	s.Equal(int64(1250), resp.Proration.NetAmount)

	invoices := s.invoices(sub.ID)
	s.Require().Len(invoices, 1)
	s.Equal(int64(1250), invoices[0].AmountDue)
	s.Equal(types.InvoiceStatusOpen, invoices[0].Status)
}

func (s *SubscriptionChangeSuite) TestMigrateSubscription() {
	_, patron, _ := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", patron)

	s.GetStores().PriceRepo.Deactivate(s.GetContext(), patron.ID)
	repriced := s.CreatePrice(testCampaignID, types.TierPatron, types.BillingCycleMonthly, 3000, "usd")

	resp, err := s.subscriptions.MigrateSubscription(s.GetContext(), sub.ID, dto.MigrateSubscriptionRequest{NewPriceID: repriced.ID})
	s.Require().NoError(err)
	s.Equal(repriced.ID, resp.PriceID)
	s.Equal(patron.ID, lo.FromPtr(resp.PriorPriceID))

	stored := s.Reload(sub.ID)
	s.Equal(int64(3000), stored.UnitAmount)
	s.Equal(patron.ID, stored.Metadata["migrated_from_price_id"])
	s.Equal(sub.CurrentPeriodEnd, stored.CurrentPeriodEnd)

	invoices := s.invoices(sub.ID)
	s.Require().Len(invoices, 1)
	s.Equal(types.InvoiceBillingReasonMigration, invoices[0].BillingReason)
	s.Zero(invoices[0].AmountDue)
	s.Equal(types.InvoiceStatusPaid, invoices[0].Status)

	changes := s.GetGateway().Calls("ChangePrice")
	s.Require().Len(changes, 1)
	s.Equal(types.ProrationBehaviorNone, changes[0].ProrationBehavior)
	s.Nil(changes[0].ProrationDate)
}

func (s *SubscriptionChangeSuite) TestMigrateRejectsInvalidTargets() {
	_, patron, _ := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", patron)
	other := s.CreatePrice("camp_02", types.TierPatron, types.BillingCycleMonthly, 2500, "usd")

	_, err := s.subscriptions.MigrateSubscription(s.GetContext(), sub.ID, dto.MigrateSubscriptionRequest{NewPriceID: other.ID})
	s.True(ierr.IsValidation(err))

	_, err = s.subscriptions.MigrateSubscription(s.GetContext(), sub.ID, dto.MigrateSubscriptionRequest{NewPriceID: patron.ID})
	s.True(ierr.IsValidation(err))

	_, err = s.subscriptions.MigrateSubscription(s.GetContext(), sub.ID, dto.MigrateSubscriptionRequest{NewPriceID: "price_missing"})
	s.True(ierr.Is(err, ierr.ErrPriceResolution))

	s.Empty(s.GetGateway().Calls("ChangePrice"))
	s.Empty(s.invoices(sub.ID))
}
