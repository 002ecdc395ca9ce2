package bybit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"arbiter/internal/metrics"
	"arbiter/models"
	"arbiter/reader"
)

// streamMessage covers both control replies (op set) and orderbook pushes.
type streamMessage struct {
	Op      string         `json:"op"`
	Success *bool          `json:"success"`
	RetMsg  string         `json:"ret_msg"`
	Topic   string         `json:"topic"`
	Type    string         `json:"type"`
	Ts      int64          `json:"ts"`
	Cts     int64          `json:"cts"`
	Data    *orderbookData `json:"data"`
}

type orderbookData struct {
	Symbol   string     `json:"s"`
	Bids     [][]string `json:"b"`
	Asks     [][]string `json:"a"`
	UpdateID int64      `json:"u"`
	Seq      int64      `json:"seq"`
}

// localBook rebuilds a full book from Bybit's snapshot and delta pushes for one
// connection. A zero quantity in a delta removes the level.
type localBook struct {
	bids  map[float64]float64
	asks  map[float64]float64
	ready bool
	// resync is set when a message was rejected while the book was live.
	resync bool
}

func newLocalBook() *localBook {
	return &localBook{
		bids: make(map[float64]float64),
		asks: make(map[float64]float64),
	}
}

var errControl = errors.New("control message")

// apply decodes raw and folds it into the book. It returns the resulting full
// snapshot, errControl for subscription replies, or a reject error. A rejected
// message may have been an update the book now lacks, so the book is dropped
// and later deltas are skipped until the next snapshot.
func (b *localBook) apply(raw []byte) (models.OrderBookSnapshot, error) {
	snap, err := b.fold(raw)
	if err != nil && !errors.Is(err, errControl) {
		if b.ready {
			b.resync = true
		}
		b.reset()
	}
	return snap, err
}

// needsResync reports, once, that the book lost sync and a fresh snapshot
// has to be requested.
func (b *localBook) needsResync() bool {
	resync := b.resync
	b.resync = false
	return resync
}

func (b *localBook) reset() {
	b.bids = make(map[float64]float64)
	b.asks = make(map[float64]float64)
	b.ready = false
}

func (b *localBook) fold(raw []byte) (models.OrderBookSnapshot, error) {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipDecode, err)
	}
	if msg.Op != "" || msg.Success != nil {
		if msg.Success != nil && !*msg.Success {
			return models.OrderBookSnapshot{}, fmt.Errorf("%w: %s rejected: %s", errControl, msg.Op, msg.RetMsg)
		}
		return models.OrderBookSnapshot{}, errControl
	}
	if !strings.HasPrefix(msg.Topic, "orderbook.") || msg.Data == nil {
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipDecode, fmt.Errorf("unexpected topic %q", msg.Topic))
	}
	if msg.Data.Symbol == "" {
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipMissingSymbol, errors.New("orderbook message without symbol"))
	}

	bids, err := reader.ParseLevels(msg.Data.Bids)
	if err != nil {
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipInvalidLevel, fmt.Errorf("bids: %w", err))
	}
	asks, err := reader.ParseLevels(msg.Data.Asks)
	if err != nil {
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipInvalidLevel, fmt.Errorf("asks: %w", err))
	}

	switch msg.Type {
	case "snapshot":
		b.bids = levelsToMap(bids)
		b.asks = levelsToMap(asks)
		b.ready = true
	case "delta":
		if !b.ready {
			return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipNoSnapshot, errors.New("delta before snapshot"))
		}
		mergeLevels(b.bids, bids)
		mergeLevels(b.asks, asks)
	default:
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipDecode, fmt.Errorf("unknown message type %q", msg.Type))
	}

	return models.NewOrderBookSnapshot(Name, msg.Data.Symbol, mapToLevels(b.bids), mapToLevels(b.asks), msg.Ts), nil
}

func levelsToMap(levels []models.PriceLevel) map[float64]float64 {
	m := make(map[float64]float64, len(levels))
	mergeLevels(m, levels)
	return m
}

func mergeLevels(m map[float64]float64, levels []models.PriceLevel) {
	for _, lvl := range levels {
		if lvl.Quantity == 0 {
			delete(m, lvl.Price)
			continue
		}
		m[lvl.Price] = lvl.Quantity
	}
}

func mapToLevels(m map[float64]float64) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(m))
	for price, qty := range m {
		out = append(out, models.PriceLevel{Price: price, Quantity: qty})
	}
	return out
}
