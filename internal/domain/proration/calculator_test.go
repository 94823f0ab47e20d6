package proration

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		old     int64
		new     int64
		elapsed decimal.Decimal
		want    Amounts
	}{
		{
			name:    "half period upgrade",
			old:     2500,
			new:     5000,
			elapsed: decimal.NewFromFloat(0.5),
			want:    Amounts{CreditAmount: -1250, ChargeAmount: 2500, NetAmount: 1250},
		},
		{
			name:    "thirds round each side before netting",
			old:     1000,
			new:     2000,
			elapsed: decimal.NewFromInt(1).Div(decimal.NewFromInt(3)),
			want:    Amounts{CreditAmount: -667, ChargeAmount: 1333, NetAmount: 666},
		},
		{
			name:    "half cent rounds up",
			old:     5,
			new:     7,
			elapsed: decimal.NewFromFloat(0.5),
			want:    Amounts{CreditAmount: -3, ChargeAmount: 4, NetAmount: 1},
		},
		{
			name:    "downgrade nets a credit",
			old:     5000,
			new:     2500,
			elapsed: decimal.NewFromFloat(0.5),
			want:    Amounts{CreditAmount: -2500, ChargeAmount: 1250, NetAmount: -1250},
		},
		{
			name:    "start of period",
			old:     2500,
			new:     5000,
			elapsed: decimal.Zero,
			want:    Amounts{CreditAmount: -2500, ChargeAmount: 5000, NetAmount: 2500},
		},
		{
			name:    "end of period",
			old:     2500,
			new:     5000,
			elapsed: decimal.NewFromInt(1),
			want:    Amounts{CreditAmount: 0, ChargeAmount: 0, NetAmount: 0},
		},
		{
			name:    "fraction above one is clamped",
			old:     2500,
			new:     5000,
			elapsed: decimal.NewFromInt(2),
			want:    Amounts{CreditAmount: 0, ChargeAmount: 0, NetAmount: 0},
		},
		{
			name:    "negative fraction is clamped",
			old:     2500,
			new:     5000,
			elapsed: decimal.NewFromInt(-1),
			want:    Amounts{CreditAmount: -2500, ChargeAmount: 5000, NetAmount: 2500},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.old, tt.new, tt.elapsed)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got.CreditAmount, int64(0))
			assert.GreaterOrEqual(t, got.ChargeAmount, int64(0))
			assert.Equal(t, got.CreditAmount+got.ChargeAmount, got.NetAmount)
		})
	}
}

func TestCalculate(t *testing.T) {
	march1 := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	march31 := time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		strategy types.ProrationStrategy
		params   Params
		want     Amounts
		wantErr  bool
	}{
		{
			name:     "day based mid period",
			strategy: types.ProrationStrategyDayBased,
			params: Params{
				Action:             ActionUpgrade,
				OldAmount:          3000,
				NewAmount:          6000,
				CurrentPeriodStart: march1,
				CurrentPeriodEnd:   march31,
				ProrationDate:      time.Date(2024, time.March, 16, 0, 0, 0, 0, time.UTC),
			},
			want: Amounts{CreditAmount: -1500, ChargeAmount: 3000, NetAmount: 1500},
		},
		{
			name:     "day based ignores time of day",
			strategy: types.ProrationStrategyDayBased,
			params: Params{
				Action:             ActionUpgrade,
				OldAmount:          3000,
				NewAmount:          6000,
				CurrentPeriodStart: march1,
				CurrentPeriodEnd:   march31,
				ProrationDate:      time.Date(2024, time.March, 16, 18, 0, 0, 0, time.UTC),
			},
			want: Amounts{CreditAmount: -1500, ChargeAmount: 3000, NetAmount: 1500},
		},
		{
			name:     "day based across DST",
			strategy: types.ProrationStrategyDayBased,
			params: Params{
				Action:             ActionUpgrade,
				OldAmount:          3100,
				NewAmount:          6200,
				CurrentPeriodStart: time.Date(2024, time.March, 1, 5, 0, 0, 0, time.UTC),
				CurrentPeriodEnd:   time.Date(2024, time.April, 1, 4, 0, 0, 0, time.UTC),
				ProrationDate:      time.Date(2024, time.March, 16, 4, 0, 0, 0, time.UTC),
				Timezone:           "America/New_York",
			},
			want: Amounts{CreditAmount: -1600, ChargeAmount: 3200, NetAmount: 1600},
		},
		{
			name:     "second based mid day",
			strategy: types.ProrationStrategySecondBased,
			params: Params{
				Action:             ActionUpgrade,
				OldAmount:          3000,
				NewAmount:          6000,
				CurrentPeriodStart: march1,
				CurrentPeriodEnd:   march31,
				ProrationDate:      time.Date(2024, time.March, 16, 12, 0, 0, 0, time.UTC),
			},
			want: Amounts{CreditAmount: -1450, ChargeAmount: 2900, NetAmount: 1450},
		},
		{
			name:     "empty period",
			strategy: types.ProrationStrategySecondBased,
			params: Params{
				OldAmount:          3000,
				NewAmount:          6000,
				CurrentPeriodStart: march31,
				CurrentPeriodEnd:   march1,
				ProrationDate:      march1,
			},
			wantErr: true,
		},
		{
			name:     "unknown timezone",
			strategy: types.ProrationStrategyDayBased,
			params: Params{
				OldAmount:          3000,
				NewAmount:          6000,
				CurrentPeriodStart: march1,
				CurrentPeriodEnd:   march31,
				ProrationDate:      march1,
				Timezone:           "Mars/Olympus_Mons",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewCalculator(tt.strategy).Calculate(tt.params)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ierr.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Amounts)
			assert.Equal(t, result.CreditAmount, result.Credit.Amount)
			assert.Equal(t, result.ChargeAmount, result.Charge.Amount)
			assert.True(t, result.Credit.IsCredit)
			assert.Equal(t, tt.strategy, result.Strategy)
		})
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	calc := NewCalculator(types.ProrationStrategySecondBased)
	params := Params{
		Action:             ActionUpgrade,
		OldAmount:          2500,
		NewAmount:          9900,
		CurrentPeriodStart: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:   time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
		ProrationDate:      time.Date(2024, time.March, 11, 7, 13, 2, 0, time.UTC),
	}

	first, err := calc.Calculate(params)
	require.NoError(t, err)
	second, err := calc.Calculate(params)
	require.NoError(t, err)
	assert.Equal(t, first.Amounts, second.Amounts)
	assert.True(t, first.ElapsedFraction.Equal(second.ElapsedFraction))
}
