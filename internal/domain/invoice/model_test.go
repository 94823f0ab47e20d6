package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibefunder/billing/internal/types"
)

func TestRecordFailedAttempt(t *testing.T) {
	next := time.Date(2024, time.March, 12, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		current        int
		processorCount int
		wantCount      int
		wantChanged    bool
		wantStatus     types.InvoiceStatus
	}{
		{"processor count is authoritative", 0, 2, 2, true, types.InvoiceStatusOpen},
		{"missing processor count advances locally", 1, 0, 2, true, types.InvoiceStatusOpen},
		{"stale count is ignored", 2, 1, 2, false, types.InvoiceStatusOpen},
		{"reaching max is final", 3, 4, 4, true, types.InvoiceStatusUncollectible},
		{"processor above max is clamped", 1, 6, 4, true, types.InvoiceStatusUncollectible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &Invoice{AmountDue: 2500, Status: types.InvoiceStatusOpen, AttemptCount: tt.current}
			got, changed := inv.RecordFailedAttempt(tt.processorCount, &next, 4)
			assert.Equal(t, tt.wantCount, got)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantCount, inv.AttemptCount)
			assert.Equal(t, tt.wantStatus, inv.Status)
			switch {
			case !tt.wantChanged:
				assert.Nil(t, inv.NextAttemptAt)
			case tt.wantStatus == types.InvoiceStatusUncollectible:
				assert.Nil(t, inv.NextAttemptAt)
			default:
				require.NotNil(t, inv.NextAttemptAt)
			}
		})
	}
}

func TestMarkPaid(t *testing.T) {
	now := time.Date(2024, time.March, 12, 0, 0, 0, 0, time.UTC)
	inv := &Invoice{AmountDue: 5000, Status: types.InvoiceStatusUncollectible, AttemptCount: 4}

	assert.True(t, inv.MarkPaid(now))
	assert.Equal(t, int64(5000), inv.AmountPaid)
	assert.NoError(t, inv.Validate())
	assert.False(t, inv.MarkPaid(now.Add(time.Hour)))
	assert.True(t, now.Equal(*inv.PaidAt))
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&Invoice{AmountDue: 100, AmountPaid: 200, Status: types.InvoiceStatusOpen}).Validate())
	assert.Error(t, (&Invoice{AmountDue: 100, AmountPaid: 50, Status: types.InvoiceStatusPaid}).Validate())
	assert.NoError(t, (&Invoice{AmountDue: 100, AmountPaid: 50, Status: types.InvoiceStatusOpen}).Validate())
}
