package processor

import (
	"math"
	"strconv"
)

// FormatPrice renders a price with two decimals when it is at least 1, and
// with enough decimals to show four significant digits below that.
func FormatPrice(price float64) string {
	if price == 0 {
		return "0.00"
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return strconv.FormatFloat(price, 'f', 2, 64)
	}

	decimals := 2
	magnitude := int(math.Floor(-math.Log10(math.Abs(price))))
	if magnitude >= 0 {
		decimals = magnitude + 4
	}
	return strconv.FormatFloat(price, 'f', decimals, 64)
}
