package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// zeroDecimalCurrencies are the ISO codes whose smallest issued unit has no
// subdivision, so minor-unit amounts equal major-unit amounts.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {},
	"krw": {}, "mga": {}, "pyg": {}, "rwf": {}, "ugx": {}, "vnd": {},
	"vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

func IsZeroDecimal(cur string) bool {
	_, ok := zeroDecimalCurrencies[strings.ToLower(cur)]
	return ok
}

// CentsToAmount converts a stored minor-unit integer to a display amount.
// Stored values are always minor units; this conversion is applied at every
// point money is surfaced, never at write time.
func CentsToAmount(cents int64, cur string) decimal.Decimal {
	d := decimal.NewFromInt(cents)
	if IsZeroDecimal(cur) {
		return d
	}

	return d.Shift(-2)
}

// AmountString renders the converted amount with the currency's natural
// number of decimal places, e.g. "10.50" for usd and "1050" for jpy.
func AmountString(cents int64, cur string) string {
	digits := int32(2)
	if IsZeroDecimal(cur) {
		digits = 0
	}

	return CentsToAmount(cents, cur).StringFixed(digits)
}

// FormatAmount renders a minor-unit amount with its canonical ISO currency
// code, e.g. "USD 10.50" or "JPY 1050".
func FormatAmount(cents int64, cur string) string {
	amount := AmountString(cents, cur)

	unit, err := currency.ParseISO(cur)
	if err != nil {
		return amount
	}

	return fmt.Sprintf("%v %s", unit, amount)
}
