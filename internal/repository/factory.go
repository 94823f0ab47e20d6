package repository

import (
	"github.com/vibefunder/billing/internal/domain/dunning"
	"github.com/vibefunder/billing/internal/domain/invoice"
	"github.com/vibefunder/billing/internal/domain/price"
	"github.com/vibefunder/billing/internal/domain/subscription"
	"github.com/vibefunder/billing/internal/domain/webhookevent"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/postgres"
	postgresRepo "github.com/vibefunder/billing/internal/repository/postgres"
	"go.uber.org/fx"
)

// Module provides every repository backed by Postgres.
func Module() fx.Option {
	return fx.Provide(
		NewPriceRepository,
		NewSubscriptionRepository,
		NewInvoiceRepository,
		NewWebhookEventRepository,
		NewDunningAttemptRepository,
	)
}

func NewPriceRepository(db *postgres.DB, logger *logger.Logger) price.Repository {
	return postgresRepo.NewPriceRepository(db, logger)
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger)
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(db, logger)
}

func NewWebhookEventRepository(db *postgres.DB, logger *logger.Logger) webhookevent.Repository {
	return postgresRepo.NewWebhookEventRepository(db, logger)
}

func NewDunningAttemptRepository(db *postgres.DB, logger *logger.Logger) dunning.Repository {
	return postgresRepo.NewDunningAttemptRepository(db, logger)
}
