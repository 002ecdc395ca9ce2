// Package processor ranks the stored order books by spread tightness and
// reports the best opportunities.
package processor

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"arbiter/internal/metrics"
	"arbiter/logger"
	"arbiter/models"
)

// ErrPairNotFound is returned by ScoresForPair when no venue has a scorable
// book for the pair.
var ErrPairNotFound = errors.New("pair not found")

// SnapshotSource is the read side of the snapshot store.
type SnapshotSource interface {
	All() []models.OrderBookSnapshot
}

// Engine computes ExchangeScores from a SnapshotSource. It holds no state of
// its own and is safe for concurrent use.
type Engine struct {
	source SnapshotSource
	log    *logger.Log
}

func NewEngine(source SnapshotSource) *Engine {
	return &Engine{
		source: source,
		log:    logger.GetLogger(),
	}
}

// ScoreSnapshot scores a single book. It reports false when the book is
// missing a side, is locked or crossed, or the result is not finite.
func ScoreSnapshot(snapshot *models.OrderBookSnapshot) (models.ExchangeScore, bool) {
	bid, ok := snapshot.BestBid()
	if !ok {
		return models.ExchangeScore{}, false
	}
	ask, ok := snapshot.BestAsk()
	if !ok {
		return models.ExchangeScore{}, false
	}
	if bid <= 0 {
		return models.ExchangeScore{}, false
	}

	spreadPct := (ask - bid) / bid * 100
	if spreadPct <= 0 || math.IsNaN(spreadPct) || math.IsInf(spreadPct, 0) {
		return models.ExchangeScore{}, false
	}
	score := 100/spreadPct - spreadPct
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return models.ExchangeScore{}, false
	}

	return models.ExchangeScore{
		Exchange:  snapshot.Exchange,
		Pair:      snapshot.Pair,
		BestBid:   bid,
		BestAsk:   ask,
		SpreadPct: spreadPct,
		Score:     score,
	}, true
}

// ComputeScores scores every stored book and returns them best first. Ties
// are ordered by exchange, then pair.
func (e *Engine) ComputeScores() []models.ExchangeScore {
	start := time.Now()
	snapshots := e.source.All()

	scores := make([]models.ExchangeScore, 0, len(snapshots))
	excluded := 0
	for i := range snapshots {
		score, ok := ScoreSnapshot(&snapshots[i])
		if !ok {
			excluded++
			continue
		}
		scores = append(scores, score)
	}

	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Exchange != b.Exchange {
			return a.Exchange < b.Exchange
		}
		return a.Pair < b.Pair
	})

	elapsed := time.Since(start)
	metrics.ObserveScoring(elapsed)
	if excluded > 0 {
		e.log.WithComponent("engine").WithFields(logger.Fields{
			"snapshots": len(snapshots),
			"excluded":  excluded,
		}).Debug("snapshots excluded from scoring")
	}
	logger.LogPerformanceEntry(e.log.WithComponent("engine"), "engine", "compute_scores", elapsed, logger.Fields{"scored": len(scores)})

	return scores
}

// ScoresForPair returns the ranked scores for one pair, matched
// case-insensitively.
func (e *Engine) ScoresForPair(pair string) ([]models.ExchangeScore, error) {
	pair = strings.ToUpper(strings.TrimSpace(pair))

	var filtered []models.ExchangeScore
	for _, score := range e.ComputeScores() {
		if score.Pair == pair {
			filtered = append(filtered, score)
		}
	}
	if len(filtered) == 0 {
		return nil, ErrPairNotFound
	}
	return filtered, nil
}
