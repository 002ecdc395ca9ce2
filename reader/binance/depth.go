package binance

import (
	"encoding/json"
	"errors"
	"fmt"

	"arbiter/internal/metrics"
	"arbiter/models"
	"arbiter/reader"
)

// depthMessage is a partial book depth event. Each push carries the top N
// levels of both sides, so it replaces the previous book entirely.
type depthMessage struct {
	EventType         string     `json:"e"`
	EventTime         int64      `json:"E"`
	TransactionTime   int64      `json:"T"`
	Symbol            string     `json:"s"`
	FirstUpdateID     int64      `json:"U"`
	FinalUpdateID     int64      `json:"u"`
	PrevFinalUpdateID int64      `json:"pu"`
	Bids              [][]string `json:"b"`
	Asks              [][]string `json:"a"`
}

func decodeDepth(raw []byte) (models.OrderBookSnapshot, error) {
	var msg depthMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipDecode, err)
	}
	if msg.Symbol == "" {
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipMissingSymbol, errors.New("depth message without symbol"))
	}

	bids, err := reader.ParseLevels(msg.Bids)
	if err != nil {
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipInvalidLevel, fmt.Errorf("bids: %w", err))
	}
	asks, err := reader.ParseLevels(msg.Asks)
	if err != nil {
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipInvalidLevel, fmt.Errorf("asks: %w", err))
	}

	return models.NewOrderBookSnapshot(Name, msg.Symbol, bids, asks, msg.EventTime), nil
}
