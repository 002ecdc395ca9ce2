package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	appconfig "arbiter/config"
	"arbiter/internal/symbols"
	"arbiter/logger"
	"arbiter/models"
	"arbiter/reader"
)

// Name identifies Binance USDⓈ-M futures.
const Name = "binance"

// Reader streams partial depth books from Binance futures and fetches funding
// rates from the premium index endpoint.
type Reader struct {
	cfg    appconfig.BinanceConfig
	client *futures.Client

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	log *logger.Log
}

// NewReader builds a Binance reader from its configuration.
func NewReader(cfg appconfig.BinanceConfig) *Reader {
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := futures.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	if cfg.RestURL != "" {
		client.SetApiEndpoint(strings.TrimRight(cfg.RestURL, "/"))
	}

	return &Reader{
		cfg:    cfg,
		client: client,
		log:    logger.GetLogger(),
	}
}

func (r *Reader) Name() string {
	return Name
}

// FetchFundingRate reads the last funding rate and next funding time for pair.
func (r *Reader) FetchFundingRate(ctx context.Context, pair string) (*models.FundingRate, error) {
	start := time.Now()
	res, err := r.client.NewPremiumIndexService().Symbol(strings.ToUpper(pair)).Do(ctx)
	if err != nil {
		return nil, reader.NewError(Name, reader.KindHTTP, err)
	}
	logger.LogPerformanceEntry(r.log.WithComponent("binance_reader"), "binance_reader", "fetch_funding_rate", time.Since(start), logger.Fields{"pair": pair})

	if len(res) == 0 || res[0] == nil {
		return nil, reader.Errorf(Name, reader.KindUnexpectedData, "no premium index returned for %s", pair)
	}
	return fundingFromPremiumIndex(pair, res[0])
}

func fundingFromPremiumIndex(pair string, idx *futures.PremiumIndex) (*models.FundingRate, error) {
	rate, err := strconv.ParseFloat(idx.LastFundingRate, 64)
	if err != nil {
		return nil, reader.NewError(Name, reader.KindUnexpectedData, fmt.Errorf("lastFundingRate %q: %w", idx.LastFundingRate, err))
	}
	return &models.FundingRate{
		Exchange:          Name,
		Pair:              strings.ToUpper(pair),
		Rate:              rate,
		NextFundingTimeMs: idx.NextFundingTime,
	}, nil
}

// RunOrderbookStream opens one depth stream per pair.
func (r *Reader) RunOrderbookStream(ctx context.Context, pairs []string, sink reader.SnapshotSink) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance reader already running")
	}
	r.running = true
	r.mu.Unlock()

	log := r.log.WithComponent("binance_reader")
	for _, pair := range pairs {
		pair = strings.ToUpper(pair)
		r.wg.Add(1)
		go r.streamPair(ctx, pair, sink)
	}

	log.WithFields(logger.Fields{
		"pairs":  pairs,
		"levels": r.cfg.DepthLevels,
		"speed":  r.cfg.UpdateSpeed.String(),
	}).Info("binance depth streams started")
	return nil
}

// Stop waits for every stream task to exit.
func (r *Reader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("binance_reader").Info("stopping binance reader")
	r.wg.Wait()
	r.log.WithComponent("binance_reader").Info("binance reader stopped")
}

func (r *Reader) streamURL(pair string) string {
	base := strings.TrimRight(r.cfg.WSURL, "/")
	name := fmt.Sprintf("%s@depth%d", symbols.StreamName(pair), r.cfg.DepthLevels)
	// 250ms is the venue default and has no suffix
	if speed := r.cfg.UpdateSpeed; speed > 0 && speed != 250*time.Millisecond {
		name += fmt.Sprintf("@%dms", speed.Milliseconds())
	}
	return base + "/" + name
}

func (r *Reader) streamPair(ctx context.Context, pair string, sink reader.SnapshotSink) {
	defer r.wg.Done()

	log := r.log.WithComponent("binance_reader").WithFields(logger.Fields{"pair": pair})
	opts := reader.StreamOptions{
		Exchange:         Name,
		URL:              r.streamURL(pair),
		Reconnect:        r.cfg.Reconnect,
		ReconnectDelay:   r.cfg.ReconnectDelay,
		HandshakeTimeout: r.cfg.Timeout,
	}

	reader.RunStream(ctx, opts, log, func(msg []byte) {
		snap, err := decodeDepth(msg)
		if err != nil {
			reader.Skip(log, Name, pair, err)
			return
		}
		reader.Publish(sink, snap, len(msg))
	})
}
