package reader

import (
	"errors"

	"arbiter/internal/metrics"
	"arbiter/logger"
	"arbiter/models"
)

// RejectError marks a feed message that was rejected as a whole.
type RejectError struct {
	Reason metrics.SkipReason
	Err    error
}

func (e *RejectError) Error() string {
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

// Reject wraps err with the reason the message is being skipped.
func Reject(reason metrics.SkipReason, err error) error {
	return &RejectError{Reason: reason, Err: err}
}

// ReasonOf returns the skip reason carried by err, defaulting to SkipDecode.
func ReasonOf(err error) metrics.SkipReason {
	var rej *RejectError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return metrics.SkipDecode
}

// Publish writes a decoded snapshot to sink and records it. size is the raw
// message length.
func Publish(sink SnapshotSink, snapshot models.OrderBookSnapshot, size int) {
	sink.Update(snapshot)
	metrics.IncrementSnapshotUpdate(snapshot.Exchange, snapshot.Pair)
	logger.RecordStreamMessage(snapshot.Key(), size)
}

// Skip logs a rejected message and records it against exchange and pair.
// The stream keeps reading afterwards.
func Skip(log *logger.Entry, exchange, pair string, err error) {
	reason := ReasonOf(err)
	log.WithError(err).WithField("reason", string(reason)).Warn("skipping malformed message")
	metrics.EmitSkipMetric(nil, reason, exchange, pair)
	logger.RecordStreamSkip(models.BookKey(exchange, pair))
}
