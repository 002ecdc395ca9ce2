// Command funding prints the current funding rate of every configured pair on
// every enabled exchange and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"arbiter/config"
	"arbiter/internal/exchanges"
	"arbiter/logger"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	pairsFlag := flag.String("pairs", "", "Comma separated pairs, overrides the configuration")
	timeout := flag.Duration("timeout", 10*time.Second, "Per request timeout")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, "stderr", 0); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	pairs := cfg.Pairs
	if *pairsFlag != "" {
		pairs = config.ParsePairs(*pairsFlag)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results := exchanges.FetchFundingRates(ctx, exchanges.Build(cfg.Exchanges), pairs, *timeout)
	if failed := writeTable(os.Stdout, results); failed > 0 {
		os.Exit(2)
	}
}

// writeTable prints one row per result and returns how many requests failed.
func writeTable(out io.Writer, results []exchanges.FundingResult) int {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EXCHANGE\tPAIR\tRATE\tNEXT FUNDING (UTC)")

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(w, "%s\t%s\terror\t%v\n", res.Exchange, res.Pair, res.Err)
			continue
		}
		next := "-"
		if res.Rate.NextFundingTimeMs > 0 {
			next = time.UnixMilli(res.Rate.NextFundingTimeMs).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%.4f%%\t%s\n", res.Exchange, res.Pair, res.Rate.RatePercent(), next)
	}
	w.Flush()
	return failed
}
