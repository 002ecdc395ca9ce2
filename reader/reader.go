// Package reader defines the contract every exchange feed adapter implements
// and the helpers they share.
package reader

import (
	"context"

	"arbiter/models"
)

// SnapshotSink receives full order book snapshots from a feed.
type SnapshotSink interface {
	Update(snapshot models.OrderBookSnapshot)
}

// Exchange is a market feed adapter for one venue.
type Exchange interface {
	// Name is the stable venue identifier used in snapshots and store keys.
	Name() string

	// FetchFundingRate performs a single request for the pair's current
	// funding rate. It does not retry.
	FetchFundingRate(ctx context.Context, pair string) (*models.FundingRate, error)

	// RunOrderbookStream starts one task per pair and returns once they are
	// scheduled. Each task writes a snapshot to sink for every message it
	// decodes and ends when its connection is lost or ctx is done.
	RunOrderbookStream(ctx context.Context, pairs []string, sink SnapshotSink) error

	// Stop waits for the stream tasks to exit.
	Stop()
}
