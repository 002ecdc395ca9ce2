package reader

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"arbiter/internal/metrics"
	"arbiter/logger"
)

const (
	defaultReconnectDelay   = 5 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// StreamOptions configures RunStream.
type StreamOptions struct {
	Exchange         string
	URL              string
	Reconnect        bool
	ReconnectDelay   time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	// OnConnect runs after each successful dial, typically to subscribe.
	OnConnect func(conn *websocket.Conn) error
}

// RunStream dials opts.URL and passes every received message to handle until
// the connection fails or ctx is done. With Reconnect set it dials again after
// ReconnectDelay; otherwise a lost connection ends the stream.
func RunStream(ctx context.Context, opts StreamOptions, log *logger.Entry, handle func([]byte)) {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		session := uuid.NewString()
		connLog := log.WithFields(logger.Fields{"url": opts.URL, "session": session})

		if err := runConnection(ctx, dialer, opts, connLog, handle); err != nil && ctx.Err() == nil {
			connLog.WithError(err).Warn("websocket stream ended")
		}

		if ctx.Err() != nil {
			return
		}
		if !opts.Reconnect {
			connLog.Info("reconnect disabled; stream task exiting")
			return
		}
		if WaitForReconnect(ctx, opts.ReconnectDelay) {
			return
		}
	}
}

func runConnection(ctx context.Context, dialer *websocket.Dialer, opts StreamOptions, log *logger.Entry, handle func([]byte)) error {
	conn, _, err := dialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return NewError(opts.Exchange, KindWebSocket, err)
	}
	defer conn.Close()

	if opts.OnConnect != nil {
		if err := opts.OnConnect(conn); err != nil {
			return NewError(opts.Exchange, KindWebSocket, err)
		}
	}

	metrics.StreamConnected(opts.Exchange, true)
	defer metrics.StreamConnected(opts.Exchange, false)
	log.Info("websocket connected")

	// ReadMessage does not observe ctx, so closing the connection is what
	// unblocks the read loop on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if opts.PingInterval > 0 {
		pingCancel := startPingLoop(ctx, conn, opts.PingInterval, log)
		defer pingCancel()
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return NewError(opts.Exchange, KindWebSocket, err)
		}
		handle(msg)
	}
}

// WaitForReconnect sleeps for delay and reports whether ctx ended first.
func WaitForReconnect(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

func startPingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration, log *logger.Entry) context.CancelFunc {
	pingCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					log.WithError(err).Warn("failed to send websocket ping")
					return
				}
			}
		}
	}()
	return cancel
}
