package integration

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vibefunder/billing/internal/config"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/interfaces"
	"github.com/vibefunder/billing/internal/logger"
	"golang.org/x/time/rate"
)

var _ interfaces.PaymentGateway = (*RetryingGateway)(nil)

// RetryingGateway wraps a gateway with a client side rate limit, a per attempt
// timeout, and exponential backoff for transient processor failures. Business
// rejections are returned on the first attempt.
type RetryingGateway struct {
	next    interfaces.PaymentGateway
	cfg     config.StripeConfig
	limiter *rate.Limiter
	logger  *logger.Logger
}

func NewRetryingGateway(next interfaces.PaymentGateway, cfg config.StripeConfig, logger *logger.Logger) *RetryingGateway {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &RetryingGateway{
		next:    next,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

func (g *RetryingGateway) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	if g.cfg.RetryInitialInterval > 0 {
		b.InitialInterval = g.cfg.RetryInitialInterval
	}
	if g.cfg.RetryMaxInterval > 0 {
		b.MaxInterval = g.cfg.RetryMaxInterval
	}
	// attempts are bounded by MaxRetries instead
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.cfg.MaxRetries)), ctx)
}

func (g *RetryingGateway) do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(ierr.WithError(err).
				WithMessagef("rate limiter wait for %s", operation).
				WithHint("Payment processor is busy, please retry").
				Mark(ierr.ErrProcessorRateLimited))
		}

		callCtx := ctx
		if g.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
			defer cancel()
		}

		err := fn(callCtx)
		if err == nil || !ierr.IsProcessorTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		g.logger.Warnw("retrying payment processor call",
			"operation", operation,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}

	err := backoff.RetryNotify(op, g.newBackOff(ctx), notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !ierr.IsProcessorTransient(err) && ierr.Is(err, ctxErr) {
		return ierr.WithError(err).
			WithMessagef("payment processor %s interrupted", operation).
			WithHint("Payment processor is unavailable, please retry").
			Mark(ierr.ErrProcessorUnavailable)
	}
	if ierr.IsProcessorTransient(err) {
		g.logger.Errorw("payment processor call exhausted retries",
			"operation", operation,
			"attempts", attempt,
			"error", err,
		)
	}
	return err
}

func (g *RetryingGateway) EnsureCustomer(ctx context.Context, req *interfaces.EnsureCustomerRequest) (string, error) {
	var id string
	err := g.do(ctx, "ensure_customer", func(ctx context.Context) error {
		var err error
		id, err = g.next.EnsureCustomer(ctx, req)
		return err
	})
	return id, err
}

func (g *RetryingGateway) ResolveDiscount(ctx context.Context, code string) (string, error) {
	var id string
	err := g.do(ctx, "resolve_discount", func(ctx context.Context) error {
		var err error
		id, err = g.next.ResolveDiscount(ctx, code)
		return err
	})
	return id, err
}

func (g *RetryingGateway) CreateSubscription(ctx context.Context, req *interfaces.CreateSubscriptionRequest) (*interfaces.ProcessorSubscription, error) {
	var sub *interfaces.ProcessorSubscription
	err := g.do(ctx, "create_subscription", func(ctx context.Context) error {
		var err error
		sub, err = g.next.CreateSubscription(ctx, req)
		return err
	})
	return sub, err
}

func (g *RetryingGateway) ChangePrice(ctx context.Context, req *interfaces.ChangePriceRequest) (*interfaces.ProcessorSubscription, error) {
	var sub *interfaces.ProcessorSubscription
	err := g.do(ctx, "change_price", func(ctx context.Context) error {
		var err error
		sub, err = g.next.ChangePrice(ctx, req)
		return err
	})
	return sub, err
}

func (g *RetryingGateway) CancelSubscription(ctx context.Context, processorSubscriptionID, idempotencyKey string) error {
	return g.do(ctx, "cancel_subscription", func(ctx context.Context) error {
		return g.next.CancelSubscription(ctx, processorSubscriptionID, idempotencyKey)
	})
}

func (g *RetryingGateway) SetCancelAtPeriodEnd(ctx context.Context, processorSubscriptionID string, cancel bool, idempotencyKey string) error {
	return g.do(ctx, "set_cancel_at_period_end", func(ctx context.Context) error {
		return g.next.SetCancelAtPeriodEnd(ctx, processorSubscriptionID, cancel, idempotencyKey)
	})
}

func (g *RetryingGateway) PauseCollection(ctx context.Context, processorSubscriptionID, idempotencyKey string) error {
	return g.do(ctx, "pause_collection", func(ctx context.Context) error {
		return g.next.PauseCollection(ctx, processorSubscriptionID, idempotencyKey)
	})
}

func (g *RetryingGateway) ResumeCollection(ctx context.Context, processorSubscriptionID, idempotencyKey string) error {
	return g.do(ctx, "resume_collection", func(ctx context.Context) error {
		return g.next.ResumeCollection(ctx, processorSubscriptionID, idempotencyKey)
	})
}

func (g *RetryingGateway) AttachPaymentMethod(ctx context.Context, req *interfaces.AttachPaymentMethodRequest) error {
	return g.do(ctx, "attach_payment_method", func(ctx context.Context) error {
		return g.next.AttachPaymentMethod(ctx, req)
	})
}
