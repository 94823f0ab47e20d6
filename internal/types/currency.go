package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies are charged in whole units by the processor.
// https://docs.stripe.com/currencies#zero-decimal
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// GetCurrencyPrecision returns the number of minor unit digits of a currency.
func GetCurrencyPrecision(code string) int32 {
	if zeroDecimalCurrencies[strings.ToLower(code)] {
		return 0
	}
	return 2
}

// MinorToMajor converts an amount in minor units to a decimal in major units.
func MinorToMajor(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Shift(-GetCurrencyPrecision(currency))
}

// FormatMajor renders a minor unit amount as a fixed point major unit string, e.g. 9500 usd -> "95.00".
func FormatMajor(amount int64, currency string) string {
	precision := GetCurrencyPrecision(currency)
	return decimal.NewFromInt(amount).Shift(-precision).StringFixed(precision)
}
