package metrics

import "arbiter/logger"

// SkipReason names why a feed message was rejected.
type SkipReason string

const (
	// SkipDecode is a message that is not valid JSON for the expected shape.
	SkipDecode SkipReason = "decode"
	// SkipInvalidLevel is a price level with an unparseable or out of range number.
	SkipInvalidLevel SkipReason = "invalid_level"
	// SkipMissingSymbol is a data message without a symbol.
	SkipMissingSymbol SkipReason = "missing_symbol"
	// SkipNoSnapshot is an incremental update received before any full book.
	SkipNoSnapshot SkipReason = "no_snapshot"
)

// EmitSkipMetric records one skipped message for exchange and pair. The
// prometheus counter is always incremented; the structured metric event goes
// to any registered handlers.
func EmitSkipMetric(log *logger.Log, reason SkipReason, exchange, pair string) {
	messagesSkipped.WithLabelValues(exchange, string(reason)).Inc()

	fields := logger.Fields{"reason": string(reason)}
	if exchange != "" {
		fields["exchange"] = exchange
	}
	if pair != "" {
		fields["pair"] = pair
	}
	EmitMetric(log, "feed", "messages_skipped", 1, "counter", fields)
}
