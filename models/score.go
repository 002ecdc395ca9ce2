package models

// ExchangeScore is the derived spread metric for one (exchange, pair).
type ExchangeScore struct {
	Exchange  string  `json:"exchange"`
	Pair      string  `json:"pair"`
	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	SpreadPct float64 `json:"spread_pct"`
	Score     float64 `json:"score"`
}
