// Package exchanges builds the enabled feed adapters from configuration.
package exchanges

import (
	appconfig "arbiter/config"
	"arbiter/reader"
	"arbiter/reader/binance"
	"arbiter/reader/bybit"
	"arbiter/reader/kucoin"
)

// Build returns one adapter per enabled exchange, in a fixed order.
func Build(cfg appconfig.ExchangesConfig) []reader.Exchange {
	var adapters []reader.Exchange
	if cfg.Binance.Enabled {
		adapters = append(adapters, binance.NewReader(cfg.Binance))
	}
	if cfg.Bybit.Enabled {
		adapters = append(adapters, bybit.NewReader(cfg.Bybit))
	}
	if cfg.Kucoin.Enabled {
		adapters = append(adapters, kucoin.NewReader(cfg.Kucoin))
	}
	return adapters
}

// Names lists the names of the given adapters.
func Names(adapters []reader.Exchange) []string {
	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, a.Name())
	}
	return names
}
