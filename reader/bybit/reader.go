package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"github.com/gorilla/websocket"

	appconfig "arbiter/config"
	"arbiter/logger"
	"arbiter/models"
	"arbiter/reader"
)

// Name identifies Bybit linear perpetuals.
const Name = "bybit"

// Reader streams order books from Bybit's public linear websocket and fetches
// funding rates from the v5 tickers endpoint.
type Reader struct {
	cfg    appconfig.BybitConfig
	client *bybit.Client

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	log *logger.Log
}

type tickerEntry struct {
	Symbol          string `json:"symbol"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
}

type tickerResult struct {
	Category string        `json:"category"`
	List     []tickerEntry `json:"list"`
}

// NewReader builds a Bybit reader from its configuration.
func NewReader(cfg appconfig.BybitConfig) *Reader {
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = 50
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	base := cfg.RestURL
	if base == "" {
		base = "https://api.bybit.com"
	}

	return &Reader{
		cfg:    cfg,
		client: bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(strings.TrimRight(base, "/"))),
		log:    logger.GetLogger(),
	}
}

func (r *Reader) Name() string {
	return Name
}

// FetchFundingRate reads the linear ticker for pair. A non-zero retCode or an
// empty list is unexpected data.
func (r *Reader) FetchFundingRate(ctx context.Context, pair string) (*models.FundingRate, error) {
	params := map[string]interface{}{
		"category": "linear",
		"symbol":   strings.ToUpper(pair),
	}

	start := time.Now()
	resp, err := r.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, reader.NewError(Name, reader.KindHTTP, err)
	}
	logger.LogPerformanceEntry(r.log.WithComponent("bybit_reader"), "bybit_reader", "fetch_funding_rate", time.Since(start), logger.Fields{"pair": pair})

	if resp == nil {
		return nil, reader.Errorf(Name, reader.KindUnexpectedData, "empty response for %s", pair)
	}
	if resp.RetCode != 0 {
		return nil, reader.Errorf(Name, reader.KindUnexpectedData, "retCode %d: %s", resp.RetCode, resp.RetMsg)
	}

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, reader.NewError(Name, reader.KindParse, err)
	}
	return fundingFromTickers(pair, payload)
}

func fundingFromTickers(pair string, payload []byte) (*models.FundingRate, error) {
	var result tickerResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, reader.NewError(Name, reader.KindParse, err)
	}
	if len(result.List) == 0 {
		return nil, reader.Errorf(Name, reader.KindUnexpectedData, "empty ticker list for %s", pair)
	}

	ticker := result.List[0]
	rate, err := strconv.ParseFloat(ticker.FundingRate, 64)
	if err != nil {
		return nil, reader.NewError(Name, reader.KindUnexpectedData, fmt.Errorf("fundingRate %q: %w", ticker.FundingRate, err))
	}
	next, err := strconv.ParseInt(ticker.NextFundingTime, 10, 64)
	if err != nil {
		return nil, reader.NewError(Name, reader.KindUnexpectedData, fmt.Errorf("nextFundingTime %q: %w", ticker.NextFundingTime, err))
	}

	symbol := ticker.Symbol
	if symbol == "" {
		symbol = pair
	}
	return &models.FundingRate{
		Exchange:          Name,
		Pair:              strings.ToUpper(symbol),
		Rate:              rate,
		NextFundingTimeMs: next,
	}, nil
}

// RunOrderbookStream opens one websocket per pair and subscribes to its
// orderbook topic.
func (r *Reader) RunOrderbookStream(ctx context.Context, pairs []string, sink reader.SnapshotSink) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("bybit reader already running")
	}
	r.running = true
	r.mu.Unlock()

	for _, pair := range pairs {
		pair = strings.ToUpper(pair)
		r.wg.Add(1)
		go r.streamPair(ctx, pair, sink)
	}

	r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"pairs": pairs,
		"depth": r.cfg.DepthLevels,
	}).Info("bybit orderbook streams started")
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

	r.log.WithComponent("bybit_reader").Info("stopping bybit reader")
	r.wg.Wait()
	r.log.WithComponent("bybit_reader").Info("bybit reader stopped")
}

func (r *Reader) topic(pair string) string {
	return fmt.Sprintf("orderbook.%d.%s", r.cfg.DepthLevels, pair)
}

func sendOp(conn *websocket.Conn, op string, topics []string) error {
	req := struct {
		Op    string   `json:"op"`
		Args  []string `json:"args"`
		ReqID string   `json:"req_id"`
	}{
		Op:    op,
		Args:  topics,
		ReqID: strconv.FormatInt(time.Now().UnixNano(), 10),
	}
	return conn.WriteJSON(req)
}

func subscribe(conn *websocket.Conn, topics []string) error {
	return sendOp(conn, "subscribe", topics)
}

// resubscribe makes Bybit push a fresh snapshot for topics.
func resubscribe(conn *websocket.Conn, topics []string) error {
	if err := sendOp(conn, "unsubscribe", topics); err != nil {
		return err
	}
	return subscribe(conn, topics)
}

func (r *Reader) streamPair(ctx context.Context, pair string, sink reader.SnapshotSink) {
	defer r.wg.Done()

	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{"pair": pair})
	topic := r.topic(pair)

	var (
		book *localBook
		conn *websocket.Conn
	)
	opts := reader.StreamOptions{
		Exchange:         Name,
		URL:              r.cfg.WSURL,
		Reconnect:        r.cfg.Reconnect,
		ReconnectDelay:   r.cfg.ReconnectDelay,
		PingInterval:     r.cfg.PingInterval,
		HandshakeTimeout: r.cfg.Timeout,
		OnConnect: func(c *websocket.Conn) error {
			// a fresh connection starts from the next snapshot push
			book = newLocalBook()
			conn = c
			return subscribe(c, []string{topic})
		},
	}

	reader.RunStream(ctx, opts, log, func(msg []byte) {
		snap, err := book.apply(msg)
		switch {
		case err == nil:
			reader.Publish(sink, snap, len(msg))
		case errors.Is(err, errControl):
			if err != errControl {
				log.WithError(err).Warn("bybit subscription rejected")
			}
		default:
			reader.Skip(log, Name, pair, err)
			if book.needsResync() {
				log.Warn("orderbook out of sync, requesting a new snapshot")
				if err := resubscribe(conn, []string{topic}); err != nil {
					// the read loop fails next and the stream ends or redials
					log.WithError(err).Warn("bybit resubscribe failed")
					conn.Close()
				}
			}
		}
	})
}
