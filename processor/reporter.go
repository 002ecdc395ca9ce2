package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "arbiter/config"
	"arbiter/internal/metrics"
	"arbiter/logger"
	"arbiter/models"
)

// StoreSizer reports how many books are currently stored.
type StoreSizer interface {
	Len() int
}

// Reporter logs the top opportunities on a fixed interval.
type Reporter struct {
	cfg    appconfig.ReporterConfig
	engine *Engine
	store  StoreSizer

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	log *logger.Log
}

func NewReporter(cfg appconfig.ReporterConfig, engine *Engine, store StoreSizer) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Warmup < 0 {
		cfg.Warmup = 0
	}
	if cfg.Top <= 0 {
		cfg.Top = 5
	}
	return &Reporter{
		cfg:    cfg,
		engine: engine,
		store:  store,
		log:    logger.GetLogger(),
	}
}

func (r *Reporter) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reporter already running")
	}
	r.running = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(ctx)

	r.log.WithComponent("reporter").WithFields(logger.Fields{
		"warmup":   r.cfg.Warmup.String(),
		"interval": r.cfg.Interval.String(),
		"top":      r.cfg.Top,
	}).Info("reporter started")
	return nil
}

// Stop ends the loop and waits for it.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.log.WithComponent("reporter").Info("reporter stopped")
}

func (r *Reporter) loop(ctx context.Context) {
	defer r.wg.Done()

	if r.cfg.Warmup > 0 {
		warmup := time.NewTimer(r.cfg.Warmup)
		select {
		case <-ctx.Done():
			warmup.Stop()
			return
		case <-warmup.C:
		}
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		r.report()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Reporter) report() {
	scores := r.engine.ComputeScores()
	entries := r.store.Len()

	metrics.SetStoreEntries(entries)
	metrics.EmitMetric(r.log, "reporter", "store_entries", entries, "gauge", nil)
	metrics.EmitMetric(r.log, "reporter", "scored_entries", len(scores), "gauge", nil)

	log := r.log.WithComponent("reporter")
	if len(scores) == 0 {
		log.WithField("store_entries", entries).Info("no scorable order books yet")
		return
	}

	top := scores
	if len(top) > r.cfg.Top {
		top = top[:r.cfg.Top]
	}
	log.WithFields(logger.Fields{
		"store_entries":  entries,
		"scored_entries": len(scores),
	}).Infof("top %d opportunities", len(top))
	for _, s := range top {
		log.Info(FormatScore(s))
	}
}

// FormatScore renders one score as a single report line.
func FormatScore(s models.ExchangeScore) string {
	return fmt.Sprintf("[%s] %s: bid=$%s ask=$%s spread=%.6f%% score=%.1f",
		s.Exchange, s.Pair, FormatPrice(s.BestBid), FormatPrice(s.BestAsk), s.SpreadPct, s.Score)
}
