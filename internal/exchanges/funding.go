package exchanges

import (
	"context"
	"strings"
	"sync"
	"time"

	"arbiter/internal/metrics"
	"arbiter/models"
	"arbiter/reader"
)

// FundingResult is the outcome of one funding rate request.
type FundingResult struct {
	Exchange string
	Pair     string
	Rate     *models.FundingRate
	Err      error
}

// FetchFundingRates queries every adapter for every pair concurrently. Each
// request gets its own timeout. Results keep adapter order, then pair order.
func FetchFundingRates(ctx context.Context, adapters []reader.Exchange, pairs []string, timeout time.Duration) []FundingResult {
	results := make([]FundingResult, len(adapters)*len(pairs))

	var wg sync.WaitGroup
	for i, adapter := range adapters {
		for j, pair := range pairs {
			idx := i*len(pairs) + j
			pair = strings.ToUpper(pair)
			wg.Add(1)
			go func(adapter reader.Exchange, pair string) {
				defer wg.Done()

				reqCtx := ctx
				if timeout > 0 {
					var cancel context.CancelFunc
					reqCtx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}

				rate, err := adapter.FetchFundingRate(reqCtx, pair)
				if err != nil {
					metrics.IncrementFundingError(adapter.Name())
				}
				results[idx] = FundingResult{
					Exchange: adapter.Name(),
					Pair:     pair,
					Rate:     rate,
					Err:      err,
				}
			}(adapter, pair)
		}
	}
	wg.Wait()

	return results
}
