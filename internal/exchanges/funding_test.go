package exchanges

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/models"
	"arbiter/reader"
)

type fakeExchange struct {
	name  string
	rates map[string]float64
	delay time.Duration
}

func (f *fakeExchange) Name() string { return f.name }

func (f *fakeExchange) FetchFundingRate(ctx context.Context, pair string) (*models.FundingRate, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, reader.NewError(f.name, reader.KindHTTP, ctx.Err())
		}
	}
	rate, ok := f.rates[pair]
	if !ok {
		return nil, reader.Errorf(f.name, reader.KindUnexpectedData, "unknown pair %s", pair)
	}
	return &models.FundingRate{Exchange: f.name, Pair: pair, Rate: rate}, nil
}

func (f *fakeExchange) RunOrderbookStream(context.Context, []string, reader.SnapshotSink) error {
	return nil
}

func (f *fakeExchange) Stop() {}

func TestFetchFundingRatesOrderAndErrors(t *testing.T) {
	adapters := []reader.Exchange{
		&fakeExchange{name: "binance", rates: map[string]float64{"BTCUSDT": 0.0001, "ETHUSDT": 0.0002}},
		&fakeExchange{name: "bybit", rates: map[string]float64{"BTCUSDT": -0.0001}},
	}

	results := FetchFundingRates(context.Background(), adapters, []string{"btcusdt", "ETHUSDT"}, time.Second)
	require.Len(t, results, 4)

	assert.Equal(t, "binance", results[0].Exchange)
	assert.Equal(t, "BTCUSDT", results[0].Pair)
	assert.Equal(t, 0.0001, results[0].Rate.Rate)
	assert.Equal(t, 0.0002, results[1].Rate.Rate)
	assert.Equal(t, -0.0001, results[2].Rate.Rate)

	assert.Equal(t, "bybit", results[3].Exchange)
	assert.Nil(t, results[3].Rate)
	var exErr *reader.ExchangeError
	require.True(t, errors.As(results[3].Err, &exErr))
	assert.Equal(t, reader.KindUnexpectedData, exErr.Kind)
}

func TestFetchFundingRatesTimeout(t *testing.T) {
	adapters := []reader.Exchange{&fakeExchange{name: "slow", delay: time.Hour}}

	start := time.Now()
	results := FetchFundingRates(context.Background(), adapters, []string{"BTCUSDT"}, 20*time.Millisecond)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
