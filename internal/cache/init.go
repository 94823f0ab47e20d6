package cache

import (
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/logger"
)

// Initialize builds the process wide cache
func Initialize(cfg *config.Configuration, log *logger.Logger) Cache {
	log.Infow("initializing cache",
		"enabled", cfg.Cache.Enabled,
		"price_ttl", cfg.Cache.PriceTTL,
	)
	return NewInMemoryCache(cfg)
}
