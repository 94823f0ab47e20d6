package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKey(t *testing.T) {
	g := NewGenerator()
	params := map[string]interface{}{
		"backer_id":   "backer_1",
		"campaign_id": "camp_1",
		"tier":        "patron",
	}

	key := g.GenerateKey(ScopeCreateSubscription, params)
	assert.True(t, strings.HasPrefix(key, "create_subscription-"))
	assert.Equal(t, key, g.GenerateKey(ScopeCreateSubscription, map[string]interface{}{
		"tier":        "patron",
		"campaign_id": "camp_1",
		"backer_id":   "backer_1",
	}))
	assert.True(t, g.ValidateKey(ScopeCreateSubscription, params, key))

	assert.NotEqual(t, key, g.GenerateKey(ScopeChangePrice, params))
	params["tier"] = "premium"
	assert.NotEqual(t, key, g.GenerateKey(ScopeCreateSubscription, params))
}
