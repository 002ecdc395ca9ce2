package models

// FundingRate is the current funding rate of a perpetual contract.
// Rate is a fraction, so 0.0001 means 0.01%.
type FundingRate struct {
	Exchange          string  `json:"exchange"`
	Pair              string  `json:"pair"`
	Rate              float64 `json:"rate"`
	NextFundingTimeMs int64   `json:"next_funding_time_ms"`
}

// RatePercent returns the rate expressed in percent.
func (f *FundingRate) RatePercent() float64 {
	return f.Rate * 100
}
