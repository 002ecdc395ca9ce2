package symbols

import "strings"

// Canonical converts an exchange-specific contract symbol to the canonical
// pair form: uppercase, no separators, BTC instead of XBT.
// Currently supported exchanges: binance, bybit, kucoin.
func Canonical(exchange, sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	switch strings.ToLower(exchange) {
	case "kucoin":
		sym = strings.ReplaceAll(sym, "-", "")
		sym = strings.TrimSuffix(sym, "M")
		if strings.HasPrefix(sym, "XBT") {
			sym = "BTC" + sym[3:]
		}
	default:
		// binance and bybit linear contracts already use the canonical form
	}
	return sym
}

// ForExchange converts a canonical pair to the symbol an exchange expects.
func ForExchange(exchange, pair string) string {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	switch strings.ToLower(exchange) {
	case "kucoin":
		if strings.HasPrefix(pair, "BTC") {
			pair = "XBT" + pair[3:]
		}
		return pair + "M"
	default:
		return pair
	}
}

// StreamName returns the lowercase symbol used in Binance stream names.
func StreamName(pair string) string {
	return strings.ToLower(strings.TrimSpace(pair))
}
