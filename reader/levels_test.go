package reader

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/metrics"
	"arbiter/models"
)

func TestParseLevels(t *testing.T) {
	levels, err := ParseLevels([][]string{{"100.5", "1.25"}, {"0.00002341", "0"}})
	require.NoError(t, err)
	assert.Equal(t, []models.PriceLevel{{Price: 100.5, Quantity: 1.25}, {Price: 0.00002341, Quantity: 0}}, levels)

	levels, err = ParseLevels(nil)
	require.NoError(t, err)
	assert.Empty(t, levels)
}

func TestParseLevelsRejectsWholeInput(t *testing.T) {
	bad := [][]string{
		{"abc", "1"},
		{"0", "1"},
		{"-1", "1"},
		{"NaN", "1"},
		{"1", "Inf"},
		{"1", "-0.5"},
		{"1"},
	}
	for _, entry := range bad {
		levels, err := ParseLevels([][]string{{"100", "1"}, entry})
		assert.Error(t, err, "%v", entry)
		assert.Nil(t, levels, "%v", entry)
	}
}

func TestParseNumberLevels(t *testing.T) {
	raw := [][]json.RawMessage{
		{json.RawMessage(`68074.2`), json.RawMessage(`"3"`)},
		{json.RawMessage(` "1e-5" `), json.RawMessage(`10`)},
	}
	levels, err := ParseNumberLevels(raw)
	require.NoError(t, err)
	assert.Equal(t, []models.PriceLevel{{Price: 68074.2, Quantity: 3}, {Price: 0.00001, Quantity: 10}}, levels)

	_, err = ParseNumberLevels([][]json.RawMessage{{json.RawMessage(`null`), json.RawMessage(`1`)}})
	assert.Error(t, err)
}

func TestParseNumber(t *testing.T) {
	v, err := ParseNumber(json.RawMessage(`"0.0001"`))
	require.NoError(t, err)
	assert.Equal(t, 0.0001, v)

	_, err = ParseNumber(json.RawMessage(`"NaN"`))
	assert.Error(t, err)
}

func TestRejectReason(t *testing.T) {
	err := Reject(metrics.SkipInvalidLevel, errors.New("bad"))
	assert.Equal(t, metrics.SkipInvalidLevel, ReasonOf(err))
	assert.Equal(t, "invalid_level: bad", err.Error())

	wrapped := NewError("binance", KindParse, err)
	assert.Equal(t, metrics.SkipInvalidLevel, ReasonOf(wrapped))
	assert.Equal(t, metrics.SkipDecode, ReasonOf(errors.New("plain")))
}

type captureSink struct {
	snaps []models.OrderBookSnapshot
}

func (s *captureSink) Update(snap models.OrderBookSnapshot) {
	s.snaps = append(s.snaps, snap)
}

func TestPublishWritesToSink(t *testing.T) {
	sink := &captureSink{}
	snap := models.NewOrderBookSnapshot("binance", "btcusdt", nil, nil, 1)
	Publish(sink, snap, 42)

	require.Len(t, sink.snaps, 1)
	assert.Equal(t, "BTCUSDT", sink.snaps[0].Pair)
}
