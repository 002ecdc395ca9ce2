package kucoin

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"arbiter/internal/metrics"
	"arbiter/internal/symbols"
	"arbiter/models"
	"arbiter/reader"
)

type partOrderBook struct {
	Symbol   string              `json:"symbol"`
	Sequence int64               `json:"sequence"`
	Bids     [][]json.RawMessage `json:"bids"`
	Asks     [][]json.RawMessage `json:"asks"`
	Ts       int64               `json:"ts"`
}

type symbolInfo struct {
	Symbol                  string          `json:"symbol"`
	FundingFeeRate          json.RawMessage `json:"fundingFeeRate"`
	NextFundingRateTime     json.RawMessage `json:"nextFundingRateTime"`
	NextFundingRateDateTime json.RawMessage `json:"nextFundingRateDateTime"`
}

// decodePartOrderBook turns a part-orderbook payload into a snapshot. fallback
// is used as the canonical pair when the payload carries no symbol.
func decodePartOrderBook(payload []byte, fallback string) (models.OrderBookSnapshot, error) {
	var book partOrderBook
	if err := json.Unmarshal(payload, &book); err != nil {
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipDecode, err)
	}

	pair := fallback
	if book.Symbol != "" {
		pair = symbols.Canonical(Name, book.Symbol)
	}
	if pair == "" {
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipMissingSymbol, errors.New("orderbook without symbol"))
	}

	bids, err := reader.ParseNumberLevels(book.Bids)
	if err != nil {
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipInvalidLevel, fmt.Errorf("bids: %w", err))
	}
	asks, err := reader.ParseNumberLevels(book.Asks)
	if err != nil {
		return models.OrderBookSnapshot{}, reader.Reject(metrics.SkipInvalidLevel, fmt.Errorf("asks: %w", err))
	}

	return models.NewOrderBookSnapshot(Name, pair, bids, asks, toMillis(book.Ts)), nil
}

// toMillis accepts the nanosecond timestamps KuCoin sends as well as plain
// milliseconds.
func toMillis(ts int64) int64 {
	if ts > 1e15 {
		return ts / int64(time.Millisecond)
	}
	return ts
}

// fundingFromSymbol reads the current funding rate from a contract detail
// payload. now is used when only the relative next funding delay is present.
func fundingFromSymbol(pair string, payload []byte, now time.Time) (*models.FundingRate, error) {
	var info symbolInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, reader.NewError(Name, reader.KindParse, err)
	}
	if len(info.FundingFeeRate) == 0 || string(info.FundingFeeRate) == "null" {
		return nil, reader.Errorf(Name, reader.KindUnexpectedData, "no funding rate for %s", pair)
	}

	rate, err := reader.ParseNumber(info.FundingFeeRate)
	if err != nil {
		return nil, reader.NewError(Name, reader.KindUnexpectedData, fmt.Errorf("fundingFeeRate: %w", err))
	}

	var next int64
	switch {
	case len(info.NextFundingRateDateTime) > 0 && string(info.NextFundingRateDateTime) != "null":
		v, err := reader.ParseNumber(info.NextFundingRateDateTime)
		if err != nil {
			return nil, reader.NewError(Name, reader.KindUnexpectedData, fmt.Errorf("nextFundingRateDateTime: %w", err))
		}
		next = int64(v)
	case len(info.NextFundingRateTime) > 0 && string(info.NextFundingRateTime) != "null":
		v, err := reader.ParseNumber(info.NextFundingRateTime)
		if err != nil {
			return nil, reader.NewError(Name, reader.KindUnexpectedData, fmt.Errorf("nextFundingRateTime: %w", err))
		}
		next = now.UnixMilli() + int64(v)
	default:
		return nil, reader.Errorf(Name, reader.KindUnexpectedData, "no next funding time for %s", pair)
	}

	return &models.FundingRate{
		Exchange:          Name,
		Pair:              symbols.Canonical(Name, pair),
		Rate:              rate,
		NextFundingTimeMs: next,
	}, nil
}
