package reader

import "fmt"

// ErrorKind classifies adapter failures.
type ErrorKind string

const (
	KindWebSocket      ErrorKind = "websocket"
	KindHTTP           ErrorKind = "http"
	KindParse          ErrorKind = "parse"
	KindUnexpectedData ErrorKind = "unexpected_data"
)

// ExchangeError is returned by adapters for transport and decoding failures.
type ExchangeError struct {
	Exchange string
	Kind     ErrorKind
	Err      error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Exchange, e.Kind, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewError wraps err as an ExchangeError of the given kind.
func NewError(exchange string, kind ErrorKind, err error) *ExchangeError {
	return &ExchangeError{Exchange: exchange, Kind: kind, Err: err}
}

// Errorf builds an ExchangeError from a format string.
func Errorf(exchange string, kind ErrorKind, format string, args ...interface{}) *ExchangeError {
	return &ExchangeError{Exchange: exchange, Kind: kind, Err: fmt.Errorf(format, args...)}
}
