package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"arbiter/config"
	"arbiter/internal/api"
	"arbiter/internal/exchanges"
	"arbiter/internal/metrics"
	"arbiter/internal/profiling"
	"arbiter/logger"
	"arbiter/orderbook"
	"arbiter/processor"
	"arbiter/reader"
)

const (
	fundingTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
	reportInterval  = 30 * time.Second
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Arbiter.Name,
		"version": cfg.Arbiter.Version,
		"env":     config.AppEnvironment(),
		"pairs":   cfg.Pairs,
	}).Info("starting arbiter")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profiler, err := profiling.Start(cfg.Profiling, config.AppEnvironment(), log)
	if err != nil {
		log.WithError(err).Warn("profiling disabled")
	}
	defer profiler.Stop()

	metrics.Init()

	var cw *metrics.CloudWatchPublisher
	if cfg.Metrics.CloudWatch.Enabled {
		cw, err = metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch)
		if err != nil {
			log.WithError(err).Warn("CloudWatch metrics disabled")
		} else {
			cw.Start(ctx)
		}
	}

	store := orderbook.NewStore()
	engine := processor.NewEngine(store)

	if logger.ReportEnabled(cfg.Logging.Level) {
		logger.StartReport(ctx, log, reportInterval, func() logger.Fields {
			return logger.Fields{"store_entries": store.Len()}
		})
	}

	adapters := exchanges.Build(cfg.Exchanges)
	log.WithComponent("main").WithFields(logger.Fields{
		"exchanges": exchanges.Names(adapters),
	}).Info("exchange adapters configured")

	logFundingRates(ctx, log, adapters, cfg.Pairs)

	for _, adapter := range adapters {
		if err := adapter.RunOrderbookStream(ctx, cfg.Pairs, store); err != nil {
			log.WithComponent("main").WithError(err).WithField("exchange", adapter.Name()).Warn("orderbook stream failed to start")
		}
	}

	var reporter *processor.Reporter
	if cfg.Reporter.Enabled {
		reporter = processor.NewReporter(cfg.Reporter, engine, store)
		if err := reporter.Start(ctx); err != nil {
			log.WithError(err).Warn("reporter failed to start")
		}
	}

	server := api.NewServer(cfg.API, cfg.Metrics, engine, log)
	serverErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		serverErr <- server.Run(ctx)
	}()

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("query server failed")
		}
	}

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		if reporter != nil {
			reporter.Stop()
		}
		for _, adapter := range adapters {
			adapter.Stop()
		}
		if cw != nil {
			cw.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(shutdownTimeout):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("arbiter stopped")
}

// logFundingRates fetches the current funding rate once per exchange and pair
// and logs it. Failures are logged and do not stop startup.
func logFundingRates(ctx context.Context, log *logger.Log, adapters []reader.Exchange, pairs []string) {
	for _, res := range exchanges.FetchFundingRates(ctx, adapters, pairs, fundingTimeout) {
		entry := log.WithComponent("funding").WithFields(logger.Fields{
			"exchange": res.Exchange,
			"pair":     res.Pair,
		})
		if res.Err != nil {
			entry.WithError(res.Err).Warn("failed to fetch funding rate")
			continue
		}
		entry.WithFields(logger.Fields{
			"rate":              res.Rate.Rate,
			"next_funding_time": res.Rate.NextFundingTimeMs,
		}).Infof("[%s] %s funding rate: %.4f%%", res.Exchange, res.Pair, res.Rate.RatePercent())
	}
}
