package kucoin

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "arbiter/config"
	"arbiter/internal/metrics"
	"arbiter/logger"
	"arbiter/models"
	"arbiter/reader"
)

type recordingSink struct {
	mu    sync.Mutex
	snaps []models.OrderBookSnapshot
}

func (s *recordingSink) Update(snap models.OrderBookSnapshot) {
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

const partBook = `{"symbol":"XBTUSDTM","sequence":42,"ts":1700000000123000000,
"bids":[[68074.2,100],[68074.3,20]],"asks":[["68074.4","7"],[68075,3]]}`

func TestDecodePartOrderBook(t *testing.T) {
	snap, err := decodePartOrderBook([]byte(partBook), "")
	require.NoError(t, err)

	assert.Equal(t, Name, snap.Exchange)
	assert.Equal(t, "BTCUSDT", snap.Pair)
	assert.Equal(t, int64(1700000000123), snap.ObservedAtMs)

	bid, ok := snap.BestBid()
	require.True(t, ok)
	assert.Equal(t, 68074.3, bid)
	ask, ok := snap.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 68074.4, ask)
}

func TestDecodePartOrderBookUsesFallbackPair(t *testing.T) {
	snap, err := decodePartOrderBook([]byte(`{"ts":5,"bids":[],"asks":[]}`), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", snap.Pair)
	assert.Equal(t, int64(5), snap.ObservedAtMs)
	assert.Empty(t, snap.Bids)
}

func TestDecodePartOrderBookRejects(t *testing.T) {
	cases := map[string]struct {
		raw    string
		reason metrics.SkipReason
	}{
		"not json":   {`{`, metrics.SkipDecode},
		"no symbol":  {`{"bids":[],"asks":[]}`, metrics.SkipMissingSymbol},
		"bad price":  {`{"symbol":"XBTUSDTM","bids":[["x",1]],"asks":[]}`, metrics.SkipInvalidLevel},
		"zero price": {`{"symbol":"XBTUSDTM","bids":[],"asks":[[0,1]]}`, metrics.SkipInvalidLevel},
	}
	for name, tc := range cases {
		_, err := decodePartOrderBook([]byte(tc.raw), "")
		if !assert.Error(t, err, name) {
			continue
		}
		assert.Equal(t, tc.reason, reader.ReasonOf(err), name)
	}
}

func TestFundingFromSymbol(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	fr, err := fundingFromSymbol("BTCUSDT", []byte(`{"symbol":"XBTUSDTM","fundingFeeRate":0.000153,"nextFundingRateDateTime":1700006400000}`), now)
	require.NoError(t, err)
	assert.Equal(t, Name, fr.Exchange)
	assert.Equal(t, "BTCUSDT", fr.Pair)
	assert.Equal(t, 0.000153, fr.Rate)
	assert.Equal(t, int64(1700006400000), fr.NextFundingTimeMs)

	fr, err = fundingFromSymbol("BTCUSDT", []byte(`{"fundingFeeRate":"-0.0001","nextFundingRateTime":60000}`), now)
	require.NoError(t, err)
	assert.Equal(t, -0.0001, fr.Rate)
	assert.Equal(t, int64(1700000060000), fr.NextFundingTimeMs)
}

func TestFundingFromSymbolErrors(t *testing.T) {
	cases := map[string]struct {
		payload string
		kind    reader.ErrorKind
	}{
		"wrong shape": {`[]`, reader.KindParse},
		"no rate":     {`{"fundingFeeRate":null,"nextFundingRateTime":1}`, reader.KindUnexpectedData},
		"bad rate":    {`{"fundingFeeRate":"abc","nextFundingRateTime":1}`, reader.KindUnexpectedData},
		"no next":     {`{"fundingFeeRate":0.1}`, reader.KindUnexpectedData},
	}
	for name, tc := range cases {
		_, err := fundingFromSymbol("BTCUSDT", []byte(tc.payload), time.Now())
		var exErr *reader.ExchangeError
		if assert.True(t, errors.As(err, &exErr), name) {
			assert.Equal(t, tc.kind, exErr.Kind, name)
		}
	}
}

func TestToMillis(t *testing.T) {
	assert.Equal(t, int64(1700000000123), toMillis(1700000000123456789))
	assert.Equal(t, int64(1700000000123), toMillis(1700000000123))
}

func TestDepthSize(t *testing.T) {
	r := NewReader(appconfig.KucoinConfig{DepthLevels: 20})
	assert.Equal(t, "20", r.depthSize())
	r = NewReader(appconfig.KucoinConfig{DepthLevels: 50})
	assert.Equal(t, "100", r.depthSize())
}

func TestFetchFundingRateMapsSymbol(t *testing.T) {
	r := NewReader(appconfig.KucoinConfig{RequestsPerSecond: 100})

	var requested string
	r.fetchSymbol = func(_ context.Context, symbol string) ([]byte, error) {
		requested = symbol
		return []byte(`{"symbol":"XBTUSDTM","fundingFeeRate":0.0001,"nextFundingRateDateTime":1}`), nil
	}
	fr, err := r.FetchFundingRate(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "XBTUSDTM", requested)
	assert.Equal(t, "BTCUSDT", fr.Pair)

	r.fetchSymbol = func(context.Context, string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}
	_, err = r.FetchFundingRate(context.Background(), "BTCUSDT")
	var exErr *reader.ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, reader.KindHTTP, exErr.Kind)
}

func TestPollingPublishesAndStopsOnCancel(t *testing.T) {
	r := NewReader(appconfig.KucoinConfig{
		PollInterval:      10 * time.Millisecond,
		RequestsPerSecond: 1000,
		Burst:             10,
		Reconnect:         true,
		ReconnectDelay:    10 * time.Millisecond,
	})

	var mu sync.Mutex
	calls := 0
	r.fetchDepth = func(_ context.Context, symbol string) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		switch calls % 3 {
		case 1:
			return []byte(partBook), nil
		case 2:
			return []byte(`garbage`), nil
		default:
			return nil, errors.New("timeout")
		}
	}

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.RunOrderbookStream(ctx, []string{"BTCUSDT"}, sink))
	require.Error(t, r.RunOrderbookStream(ctx, []string{"BTCUSDT"}, sink))

	require.Eventually(t, func() bool { return sink.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("polling loop did not exit after cancel")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, snap := range sink.snaps {
		assert.Equal(t, "BTCUSDT", snap.Pair)
		assert.Equal(t, Name, snap.Exchange)
	}
}

func TestPollingFailureIsWarnedAndEndsTask(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")

	r := NewReader(appconfig.KucoinConfig{
		PollInterval:      10 * time.Millisecond,
		RequestsPerSecond: 1000,
		Burst:             10,
	})
	var buf bytes.Buffer
	r.log = logger.Logger()
	r.log.SetOutput(&buf)

	var mu sync.Mutex
	calls := 0
	r.fetchDepth = func(context.Context, string) ([]byte, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, errors.New("connection refused")
	}

	// the parent context is never cancelled: the task has to end on its own
	require.NoError(t, r.RunOrderbookStream(context.Background(), []string{"BTCUSDT"}, &recordingSink{}))

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("polling task kept running after a failed request")
	}

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	var warned bool
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "connection refused") && strings.Contains(line, `"level":"warning"`) {
			warned = true
		}
	}
	assert.True(t, warned, "expected a warn line for the failed poll, got:\n%s", buf.String())
}

func TestPollingRetriesWhenReconnectEnabled(t *testing.T) {
	r := NewReader(appconfig.KucoinConfig{
		PollInterval:      time.Hour,
		RequestsPerSecond: 1000,
		Burst:             10,
		Reconnect:         true,
		ReconnectDelay:    5 * time.Millisecond,
	})

	var mu sync.Mutex
	calls := 0
	r.fetchDepth = func(context.Context, string) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil, errors.New("connection refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.RunOrderbookStream(ctx, []string{"BTCUSDT"}, &recordingSink{}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	r.Stop()
}
