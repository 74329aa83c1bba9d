package pricing

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount renders value with "." as thousands separator and "," as decimal
// separator, always with two decimals: 1234567.891 -> "1.234.567,89".
func FormatAmount(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "-"
	}

	fixed := decimal.NewFromFloat(value).StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}

	intPart, fracPart, _ := strings.Cut(fixed, ".")
	return sign + groupThousands(intPart) + "," + fracPart
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}

	var b strings.Builder
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte('.')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
