package symbols

import "testing"

func TestCanonical(t *testing.T) {
	tests := []struct {
		exchange string
		in       string
		want     string
	}{
		{"kucoin", "XBTUSDTM", "BTCUSDT"},
		{"kucoin", "XBT-USDTM", "BTCUSDT"},
		{"kucoin", "ETHUSDTM", "ETHUSDT"},
		{"binance", "ethusdt", "ETHUSDT"},
		{"bybit", "SOLUSDT", "SOLUSDT"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.exchange, tt.in); got != tt.want {
			t.Errorf("Canonical(%s,%s)=%s want %s", tt.exchange, tt.in, got, tt.want)
		}
	}
}

func TestForExchange(t *testing.T) {
	tests := []struct {
		exchange string
		in       string
		want     string
	}{
		{"kucoin", "BTCUSDT", "XBTUSDTM"},
		{"kucoin", "ethusdt", "ETHUSDTM"},
		{"binance", "BTCUSDT", "BTCUSDT"},
		{"bybit", "ethusdt", "ETHUSDT"},
	}
	for _, tt := range tests {
		if got := ForExchange(tt.exchange, tt.in); got != tt.want {
			t.Errorf("ForExchange(%s,%s)=%s want %s", tt.exchange, tt.in, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, ex := range []string{"binance", "bybit", "kucoin"} {
		for _, pair := range []string{"BTCUSDT", "ETHUSDT"} {
			if got := Canonical(ex, ForExchange(ex, pair)); got != pair {
				t.Errorf("%s round trip of %s gave %s", ex, pair, got)
			}
		}
	}
}

func TestStreamName(t *testing.T) {
	if got := StreamName(" BTCUSDT "); got != "btcusdt" {
		t.Fatalf("StreamName = %q", got)
	}
}
