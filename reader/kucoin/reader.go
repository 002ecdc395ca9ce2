package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	api "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	futuresmarket "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/futures/market"
	sdktype "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"
	"golang.org/x/time/rate"

	appconfig "arbiter/config"
	"arbiter/internal/symbols"
	"arbiter/logger"
	"arbiter/models"
	"arbiter/reader"
)

// Name identifies KuCoin USDT-margined futures.
const Name = "kucoin"

// fetchFunc returns the JSON body of one REST call for a venue symbol.
type fetchFunc func(ctx context.Context, symbol string) ([]byte, error)

// Reader polls KuCoin futures part order books over REST. Funding rates come
// from the contract detail endpoint.
type Reader struct {
	cfg       appconfig.KucoinConfig
	marketAPI futuresmarket.MarketAPI
	limiter   *rate.Limiter

	fetchDepth  fetchFunc
	fetchSymbol fetchFunc

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	log *logger.Log
}

// NewReader builds a KuCoin reader from its configuration.
func NewReader(cfg appconfig.KucoinConfig) *Reader {
	if cfg.RestURL == "" {
		cfg.RestURL = "https://api-futures.kucoin.com"
	}
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = 20
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	transportOpt := sdktype.NewTransportOptionBuilder().
		SetTimeout(cfg.Timeout).
		Build()

	option := sdktype.NewClientOptionBuilder().
		WithFuturesEndpoint(strings.TrimRight(cfg.RestURL, "/")).
		WithTransportOption(transportOpt).
		Build()

	client := api.NewClient(option)

	r := &Reader{
		cfg:       cfg,
		marketAPI: client.RestService().GetFuturesService().GetMarketAPI(),
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		log:       logger.GetLogger(),
	}
	r.fetchDepth = r.partOrderBook
	r.fetchSymbol = r.contractDetail
	return r
}

func (r *Reader) Name() string {
	return Name
}

// depthSize maps the configured depth onto the two sizes the endpoint serves.
func (r *Reader) depthSize() string {
	if r.cfg.DepthLevels > 20 {
		return "100"
	}
	return "20"
}

func (r *Reader) partOrderBook(ctx context.Context, symbol string) ([]byte, error) {
	req := futuresmarket.NewGetPartOrderBookReqBuilder().
		SetSymbol(symbol).
		SetSize(r.depthSize()).
		Build()
	resp, err := r.marketAPI.GetPartOrderBook(req, ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("empty orderbook response for %s", symbol)
	}
	return json.Marshal(resp)
}

func (r *Reader) contractDetail(ctx context.Context, symbol string) ([]byte, error) {
	req := futuresmarket.NewGetSymbolReqBuilder().SetSymbol(symbol).Build()
	resp, err := r.marketAPI.GetSymbol(req, ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("empty symbol response for %s", symbol)
	}
	return json.Marshal(resp)
}

// FetchFundingRate reads the current funding fee rate for a canonical pair.
func (r *Reader) FetchFundingRate(ctx context.Context, pair string) (*models.FundingRate, error) {
	symbol := symbols.ForExchange(Name, pair)
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, reader.NewError(Name, reader.KindHTTP, err)
	}

	start := time.Now()
	payload, err := r.fetchSymbol(ctx, symbol)
	if err != nil {
		return nil, reader.NewError(Name, reader.KindHTTP, err)
	}
	logger.LogPerformanceEntry(r.log.WithComponent("kucoin_reader"), "kucoin_reader", "fetch_funding_rate", time.Since(start), logger.Fields{"symbol": symbol})

	return fundingFromSymbol(pair, payload, time.Now())
}

// RunOrderbookStream starts one polling loop per pair. A failed request ends
// the loop unless Reconnect is set, in which case it retries after
// ReconnectDelay.
func (r *Reader) RunOrderbookStream(ctx context.Context, pairs []string, sink reader.SnapshotSink) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("kucoin reader already running")
	}
	r.running = true
	r.mu.Unlock()

	for _, pair := range pairs {
		pair = strings.ToUpper(pair)
		r.wg.Add(1)
		go r.pollPair(ctx, pair, sink)
	}

	r.log.WithComponent("kucoin_reader").WithFields(logger.Fields{
		"pairs":    pairs,
		"interval": r.cfg.PollInterval.String(),
		"size":     r.depthSize(),
	}).Info("kucoin orderbook polling started")
	return nil
}

// Stop waits for every polling loop to exit.
func (r *Reader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("kucoin_reader").Info("stopping kucoin reader")
	r.wg.Wait()
	r.log.WithComponent("kucoin_reader").Info("kucoin reader stopped")
}

func (r *Reader) pollPair(ctx context.Context, pair string, sink reader.SnapshotSink) {
	defer r.wg.Done()

	symbol := symbols.ForExchange(Name, pair)
	log := r.log.WithComponent("kucoin_reader").WithFields(logger.Fields{"pair": pair, "symbol": symbol})

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := r.pollOnce(ctx, pair, symbol, sink); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("kucoin orderbook poll failed")
			if !r.cfg.Reconnect {
				log.Info("reconnect disabled; polling task exiting")
				return
			}
			if reader.WaitForReconnect(ctx, r.cfg.ReconnectDelay) {
				return
			}
			continue
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// pollOnce fetches one book. Request failures are returned, malformed books
// are skipped.
func (r *Reader) pollOnce(ctx context.Context, pair, symbol string, sink reader.SnapshotSink) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := r.fetchDepth(ctx, symbol)
	if err != nil {
		return reader.NewError(Name, reader.KindHTTP, err)
	}

	snap, err := decodePartOrderBook(payload, pair)
	if err != nil {
		reader.Skip(r.log.WithComponent("kucoin_reader").WithFields(logger.Fields{"pair": pair}), Name, pair, err)
		return nil
	}
	reader.Publish(sink, snap, len(payload))
	return nil
}
