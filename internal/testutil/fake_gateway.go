package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/interfaces"
	"github.com/vibefunder/billing/internal/types"
)

// GatewayCall is one recorded call to the FakeGateway.
type GatewayCall struct {
	Method                  string
	IdempotencyKey          string
	ProcessorSubscriptionID string
	ProcessorPriceID        string
	ProrationBehavior       types.ProrationBehavior
	ProrationDate           *time.Time
	CancelAtPeriodEnd       bool
}

// FakeGateway is a scripted interfaces.PaymentGateway. Repeated calls with the
// same idempotency key return the first response, like the processor does.
type FakeGateway struct {
	mu sync.Mutex

	// Discounts maps customer facing codes to promotion code ids.
	Discounts map[string]string
	// NextInvoice is attached to the next CreateSubscription or ChangePrice response.
	NextInvoice *interfaces.ProcessorInvoice

	calls     []GatewayCall
	failures  map[string][]error
	responses map[string]*interfaces.ProcessorSubscription
	seq       int
}

var _ interfaces.PaymentGateway = (*FakeGateway)(nil)

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		Discounts: map[string]string{},
		failures:  make(map[string][]error),
		responses: make(map[string]*interfaces.ProcessorSubscription),
	}
}

// FailNext makes the next call to method return err. Calls queue up.
func (g *FakeGateway) FailNext(method string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[method] = append(g.failures[method], err)
}

// Calls returns every recorded call to method, or all calls when method is empty.
func (g *FakeGateway) Calls(method string) []GatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []GatewayCall
	for _, c := range g.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (g *FakeGateway) record(call GatewayCall) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, call)
	if queued := g.failures[call.Method]; len(queued) > 0 {
		g.failures[call.Method] = queued[1:]
		return queued[0]
	}
	return nil
}

func (g *FakeGateway) EnsureCustomer(ctx context.Context, req *interfaces.EnsureCustomerRequest) (string, error) {
	if err := g.record(GatewayCall{Method: "EnsureCustomer", IdempotencyKey: req.IdempotencyKey}); err != nil {
		return "", err
	}
	return "cus_" + req.BackerID, nil
}

func (g *FakeGateway) ResolveDiscount(ctx context.Context, code string) (string, error) {
	if err := g.record(GatewayCall{Method: "ResolveDiscount"}); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.Discounts[code]
	if !ok {
		return "", ierr.NewError("promotion code not found").
			WithHintf("Discount code %s is not valid", code).
			Mark(ierr.ErrInvalidDiscount)
	}
	return id, nil
}

func (g *FakeGateway) CreateSubscription(ctx context.Context, req *interfaces.CreateSubscriptionRequest) (*interfaces.ProcessorSubscription, error) {
	err := g.record(GatewayCall{
		Method:           "CreateSubscription",
		IdempotencyKey:   req.IdempotencyKey,
		ProcessorPriceID: req.ProcessorPriceID,
	})
	if err != nil {
		return nil, err
	}
	return g.respond(req.IdempotencyKey, func(id string) *interfaces.ProcessorSubscription {
		status := "active"
		if req.TrialEnd != nil {
			status = "trialing"
		}
		return &interfaces.ProcessorSubscription{
			ID:         id,
			CustomerID: req.CustomerID,
			Status:     status,
		}
	}), nil
}

func (g *FakeGateway) ChangePrice(ctx context.Context, req *interfaces.ChangePriceRequest) (*interfaces.ProcessorSubscription, error) {
	err := g.record(GatewayCall{
		Method:                  "ChangePrice",
		IdempotencyKey:          req.IdempotencyKey,
		ProcessorSubscriptionID: req.ProcessorSubscriptionID,
		ProcessorPriceID:        req.ProcessorPriceID,
		ProrationBehavior:       req.ProrationBehavior,
		ProrationDate:           req.ProrationDate,
	})
	if err != nil {
		return nil, err
	}
	return g.respond(req.IdempotencyKey, func(string) *interfaces.ProcessorSubscription {
		return &interfaces.ProcessorSubscription{
			ID:     req.ProcessorSubscriptionID,
			Status: "active",
		}
	}), nil
}

func (g *FakeGateway) CancelSubscription(ctx context.Context, processorSubscriptionID, idempotencyKey string) error {
	return g.record(GatewayCall{
		Method:                  "CancelSubscription",
		IdempotencyKey:          idempotencyKey,
		ProcessorSubscriptionID: processorSubscriptionID,
	})
}

func (g *FakeGateway) SetCancelAtPeriodEnd(ctx context.Context, processorSubscriptionID string, cancel bool, idempotencyKey string) error {
	return g.record(GatewayCall{
		Method:                  "SetCancelAtPeriodEnd",
		IdempotencyKey:          idempotencyKey,
		ProcessorSubscriptionID: processorSubscriptionID,
		CancelAtPeriodEnd:       cancel,
	})
}

func (g *FakeGateway) PauseCollection(ctx context.Context, processorSubscriptionID, idempotencyKey string) error {
	return g.record(GatewayCall{
		Method:                  "PauseCollection",
		IdempotencyKey:          idempotencyKey,
		ProcessorSubscriptionID: processorSubscriptionID,
	})
}

func (g *FakeGateway) ResumeCollection(ctx context.Context, processorSubscriptionID, idempotencyKey string) error {
	return g.record(GatewayCall{
		Method:                  "ResumeCollection",
		IdempotencyKey:          idempotencyKey,
		ProcessorSubscriptionID: processorSubscriptionID,
	})
}

func (g *FakeGateway) AttachPaymentMethod(ctx context.Context, req *interfaces.AttachPaymentMethodRequest) error {
	return g.record(GatewayCall{
		Method:                  "AttachPaymentMethod",
		IdempotencyKey:          req.IdempotencyKey,
		ProcessorSubscriptionID: req.ProcessorSubscriptionID,
	})
}

// respond replays the stored response for key or builds, stores and returns a new one.
func (g *FakeGateway) respond(key string, build func(id string) *interfaces.ProcessorSubscription) *interfaces.ProcessorSubscription {
	g.mu.Lock()
	defer g.mu.Unlock()

	if resp, ok := g.responses[key]; ok && key != "" {
		return resp
	}

	g.seq++
	resp := build(fmt.Sprintf("sub_fake_%d", g.seq))
	if g.NextInvoice != nil {
		inv := *g.NextInvoice
		resp.LatestInvoice = &inv
		g.NextInvoice = nil
	}
	g.responses[key] = resp
	return resp
}
