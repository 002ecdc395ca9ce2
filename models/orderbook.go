package models

import (
	"sort"
	"strings"
)

// PriceLevel is a single price level of one side of the book.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBookSnapshot is the latest full view of one exchange's book for one pair.
// Bids and Asks are ordered ascending by price with one entry per price.
type OrderBookSnapshot struct {
	Exchange     string       `json:"exchange"`
	Pair         string       `json:"pair"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	ObservedAtMs int64        `json:"observed_at_ms"`
}

// NewOrderBookSnapshot builds a snapshot with an uppercase pair and both sides
// sorted ascending. When a price appears more than once the last quantity wins.
func NewOrderBookSnapshot(exchange, pair string, bids, asks []PriceLevel, observedAtMs int64) OrderBookSnapshot {
	return OrderBookSnapshot{
		Exchange:     exchange,
		Pair:         strings.ToUpper(pair),
		Bids:         normalizeSide(bids),
		Asks:         normalizeSide(asks),
		ObservedAtMs: observedAtMs,
	}
}

func normalizeSide(levels []PriceLevel) []PriceLevel {
	if len(levels) == 0 {
		return []PriceLevel{}
	}

	byPrice := make(map[float64]float64, len(levels))
	for _, lvl := range levels {
		byPrice[lvl.Price] = lvl.Quantity
	}

	out := make([]PriceLevel, 0, len(byPrice))
	for price, qty := range byPrice {
		out = append(out, PriceLevel{Price: price, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// Key returns the store key for the snapshot.
func (s *OrderBookSnapshot) Key() string {
	return BookKey(s.Exchange, s.Pair)
}

// BookKey renders the (exchange, pair) key as "exchange:PAIR".
func BookKey(exchange, pair string) string {
	return exchange + ":" + pair
}

// BestBid returns the highest bid price.
func (s *OrderBookSnapshot) BestBid() (float64, bool) {
	if len(s.Bids) == 0 {
		return 0, false
	}
	return s.Bids[len(s.Bids)-1].Price, true
}

// BestAsk returns the lowest ask price.
func (s *OrderBookSnapshot) BestAsk() (float64, bool) {
	if len(s.Asks) == 0 {
		return 0, false
	}
	return s.Asks[0].Price, true
}

// Clone returns a deep copy that shares no backing arrays with s.
func (s OrderBookSnapshot) Clone() OrderBookSnapshot {
	out := s
	if s.Bids != nil {
		out.Bids = make([]PriceLevel, len(s.Bids))
		copy(out.Bids, s.Bids)
	}
	if s.Asks != nil {
		out.Asks = make([]PriceLevel, len(s.Asks))
		copy(out.Asks, s.Asks)
	}
	return out
}
