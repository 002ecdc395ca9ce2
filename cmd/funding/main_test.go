package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"arbiter/internal/exchanges"
	"arbiter/models"
)

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	failed := writeTable(&buf, []exchanges.FundingResult{
		{Exchange: "binance", Pair: "BTCUSDT", Rate: &models.FundingRate{Rate: 0.0001, NextFundingTimeMs: 1700006400000}},
		{Exchange: "bybit", Pair: "BTCUSDT", Err: errors.New("timeout")},
	})

	assert.Equal(t, 1, failed)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[1], "0.0100%")
	assert.Contains(t, lines[1], "2023-11-15T00:00:00Z")
	assert.Contains(t, lines[2], "error")
}
