package testutil

import (
	"context"
	"sync"

	"github.com/vibefunder/billing/internal/postgres"
	"github.com/vibefunder/billing/internal/types"
)

var _ postgres.IClient = (*MockPostgresClient)(nil) // Ensure MockPostgresClient implements IClient

// MockPostgresClient runs transaction bodies directly. Nothing is rolled back;
// in-memory stores rely on their own version checks instead.
type MockPostgresClient struct {
	mu  sync.Mutex
	txs int
}

func NewMockPostgresClient() *MockPostgresClient {
	return &MockPostgresClient{}
}

// WithTx executes the given function, reusing an outer "transaction" if present
func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Value(types.CtxDBTransaction) != nil {
		return fn(ctx)
	}

	c.mu.Lock()
	c.txs++
	c.mu.Unlock()

	return fn(context.WithValue(ctx, types.CtxDBTransaction, true))
}

// Transactions returns the number of outermost transactions started.
func (c *MockPostgresClient) Transactions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txs
}
