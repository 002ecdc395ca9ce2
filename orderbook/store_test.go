package orderbook

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/models"
)

func snapshot(exchange, pair string, bid, ask float64, ts int64) models.OrderBookSnapshot {
	return models.NewOrderBookSnapshot(exchange, pair,
		[]models.PriceLevel{{Price: bid - 1, Quantity: 2}, {Price: bid, Quantity: 1}},
		[]models.PriceLevel{{Price: ask, Quantity: 1}, {Price: ask + 1, Quantity: 2}},
		ts,
	)
}

func TestReadYourWrite(t *testing.T) {
	store := NewStore()
	snap := snapshot("binance", "BTCUSDT", 100, 101, 1)

	store.Update(snap)

	got, ok := store.Get("binance", "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, snap, got)
}

func TestGetMissing(t *testing.T) {
	store := NewStore()
	_, ok := store.Get("binance", "BTCUSDT")
	assert.False(t, ok)
	assert.Empty(t, store.All())
}

func TestLastWriteWins(t *testing.T) {
	store := NewStore()
	store.Update(snapshot("bybit", "ETHUSDT", 10, 11, 1))
	store.Update(snapshot("bybit", "ETHUSDT", 20, 21, 2))

	got, ok := store.Get("bybit", "ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, int64(2), got.ObservedAtMs)
	assert.Equal(t, 1, store.Len())
}

func TestIdempotentUpdate(t *testing.T) {
	store := NewStore()
	snap := snapshot("binance", "BTCUSDT", 100, 101, 7)

	store.Update(snap)
	first := store.All()
	store.Update(snap)
	store.Update(snap)

	assert.Equal(t, first, store.All())
}

func TestStoreCopiesLevels(t *testing.T) {
	store := NewStore()
	snap := snapshot("binance", "BTCUSDT", 100, 101, 1)
	store.Update(snap)

	// mutating the caller's copy or a returned copy must not reach the store
	snap.Bids[0].Price = -1
	got, _ := store.Get("binance", "BTCUSDT")
	got.Asks[0].Price = -1

	again, _ := store.Get("binance", "BTCUSDT")
	bid, _ := again.BestBid()
	ask, _ := again.BestAsk()
	assert.Equal(t, 100.0, bid)
	assert.Equal(t, 101.0, ask)
}

func TestConcurrentDistinctKeys(t *testing.T) {
	store := NewStore()
	const writers = 64

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pair := fmt.Sprintf("PAIR%dUSDT", i)
			for n := 0; n < 50; n++ {
				store.Update(snapshot("binance", pair, 100, 101, int64(n)))
			}
		}(i)
	}

	// readers run alongside the writers and must only ever see whole snapshots
	done := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			for _, snap := range store.All() {
				if len(snap.Bids) != 2 || len(snap.Asks) != 2 {
					t.Errorf("torn snapshot for %s", snap.Key())
					return
				}
			}
		}
	}()

	wg.Wait()
	close(done)
	readers.Wait()

	all := store.All()
	require.Len(t, all, writers)
	for _, snap := range all {
		assert.Equal(t, int64(49), snap.ObservedAtMs)
		bid, ok := snap.BestBid()
		require.True(t, ok)
		assert.Equal(t, 100.0, bid)
	}
}

func TestConcurrentSameKey(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Update(snapshot("bybit", "BTCUSDT", float64(100+i), float64(101+i), int64(i)))
		}(i)
	}
	wg.Wait()

	got, ok := store.Get("bybit", "BTCUSDT")
	require.True(t, ok)
	bid, _ := got.BestBid()
	ask, _ := got.BestAsk()
	// whichever write landed last, its bid and ask belong together
	assert.Equal(t, bid+1, ask)
	assert.Equal(t, 1, store.Len())
}

func TestAllOrderedByKey(t *testing.T) {
	store := NewStore()
	store.Update(snapshot("bybit", "ETHUSDT", 1, 2, 0))
	store.Update(snapshot("binance", "ETHUSDT", 1, 2, 0))
	store.Update(snapshot("binance", "BTCUSDT", 1, 2, 0))

	all := store.All()
	require.Len(t, all, 3)
	assert.Equal(t, "binance:BTCUSDT", all[0].Key())
	assert.Equal(t, "binance:ETHUSDT", all[1].Key())
	assert.Equal(t, "bybit:ETHUSDT", all[2].Key())
}
