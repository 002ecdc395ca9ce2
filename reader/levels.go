package reader

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"arbiter/models"
)

// ParseLevels converts venue [price, quantity] pairs into price levels. Any
// malformed entry fails the whole call: a price must be a finite number > 0
// and a quantity a finite number >= 0.
func ParseLevels(raw [][]string) ([]models.PriceLevel, error) {
	levels := make([]models.PriceLevel, 0, len(raw))
	for i, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("level %d: expected [price, quantity], got %d fields", i, len(entry))
		}
		lvl, err := parseLevel(entry[0], entry[1])
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		levels = append(levels, lvl)
	}
	return levels, nil
}

// ParseNumberLevels is ParseLevels for venues that may send levels as JSON
// numbers or numeric strings.
func ParseNumberLevels(raw [][]json.RawMessage) ([]models.PriceLevel, error) {
	levels := make([]models.PriceLevel, 0, len(raw))
	for i, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("level %d: expected [price, quantity], got %d fields", i, len(entry))
		}
		lvl, err := parseLevel(unquote(entry[0]), unquote(entry[1]))
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		levels = append(levels, lvl)
	}
	return levels, nil
}

// ParseNumber parses a JSON number or numeric string.
func ParseNumber(raw json.RawMessage) (float64, error) {
	return parseFloat(unquote(raw))
}

func unquote(raw json.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}

func parseLevel(priceStr, qtyStr string) (models.PriceLevel, error) {
	price, err := parseFloat(priceStr)
	if err != nil {
		return models.PriceLevel{}, fmt.Errorf("price: %w", err)
	}
	if price <= 0 {
		return models.PriceLevel{}, fmt.Errorf("price %v must be positive", price)
	}
	qty, err := parseFloat(qtyStr)
	if err != nil {
		return models.PriceLevel{}, fmt.Errorf("quantity: %w", err)
	}
	if qty < 0 {
		return models.PriceLevel{}, fmt.Errorf("quantity %v must not be negative", qty)
	}
	return models.PriceLevel{Price: price, Quantity: qty}, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
