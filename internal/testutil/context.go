package testutil

import (
	"context"

	"github.com/vibefunder/billing/internal/types"
)

// TestUserID is the caller recorded in created_by/updated_by by service tests.
const TestUserID = "usr_test"

// SetupContext returns a request-scoped context like the one the API
// middleware builds for an authenticated caller.
func SetupContext() context.Context {
	ctx := types.SetUserID(context.Background(), TestUserID)
	return types.SetRequestID(ctx, types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_REQUEST))
}
