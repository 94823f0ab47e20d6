package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Scope represents the scope of idempotency
type Scope string

const (
	ScopeCustomer           Scope = "customer"
	ScopeCreateSubscription Scope = "create_subscription"
	ScopeChangePrice        Scope = "change_price"
	ScopeRestorePrice       Scope = "restore_price"
	ScopeMigratePrice       Scope = "migrate_price"
	ScopeCancelSubscription Scope = "cancel_subscription"
	ScopeCancelAtPeriodEnd  Scope = "cancel_at_period_end"
	ScopePauseCollection    Scope = "pause_collection"
	ScopeResumeCollection   Scope = "resume_collection"

	// Payment
	ScopePaymentMethod Scope = "payment_method"
)

// Generator generates idempotency keys
type Generator struct{}

// NewGenerator creates a new idempotency key generator
func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateKey derives a deterministic key from a scope and parameters. The same
// inputs always give the same key, so a retried processor call is applied once.
func (g *Generator) GenerateKey(scope Scope, params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(scope))
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(":%s=%v", k, params[k]))
	}

	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s-%s", scope, hex.EncodeToString(hash[:16]))
}

// ValidateKey validates if an idempotency key matches expected parameters
func (g *Generator) ValidateKey(scope Scope, params map[string]interface{}, key string) bool {
	return g.GenerateKey(scope, params) == key
}
