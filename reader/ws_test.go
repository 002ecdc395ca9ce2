package reader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/logger"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func runWithTimeout(t *testing.T, timeout time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("RunStream did not return in time")
	}
}

func TestRunStreamDeliversMessagesAndExitsWithoutReconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range []string{"one", "two", "three"} {
			conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	var got []string
	opts := StreamOptions{Exchange: "test", URL: wsURL(srv), HandshakeTimeout: time.Second}
	runWithTimeout(t, 5*time.Second, func() {
		RunStream(context.Background(), opts, logger.GetLogger().WithComponent("test"), func(msg []byte) {
			got = append(got, string(msg))
		})
	})

	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestRunStreamReconnects(t *testing.T) {
	var dials int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		atomic.AddInt32(&dials, 1)
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		conn.Close()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	received := 0
	opts := StreamOptions{
		Exchange:       "test",
		URL:            wsURL(srv),
		Reconnect:      true,
		ReconnectDelay: 10 * time.Millisecond,
	}
	runWithTimeout(t, 5*time.Second, func() {
		RunStream(ctx, opts, logger.GetLogger().WithComponent("test"), func([]byte) {
			mu.Lock()
			received++
			if received >= 3 {
				cancel()
			}
			mu.Unlock()
		})
	})

	assert.GreaterOrEqual(t, atomic.LoadInt32(&dials), int32(3))
}

func TestRunStreamOnConnectFailureEndsStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("never read"))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	called := false
	opts := StreamOptions{
		Exchange: "test",
		URL:      wsURL(srv),
		OnConnect: func(*websocket.Conn) error {
			return errors.New("subscribe failed")
		},
	}
	runWithTimeout(t, 5*time.Second, func() {
		RunStream(context.Background(), opts, logger.GetLogger().WithComponent("test"), func([]byte) {
			called = true
		})
	})
	assert.False(t, called)
}

func TestRunConnectionReportsDialError(t *testing.T) {
	dialer := &websocket.Dialer{HandshakeTimeout: time.Second}
	err := runConnection(context.Background(), dialer, StreamOptions{Exchange: "test", URL: "ws://127.0.0.1:1/none"},
		logger.GetLogger().WithComponent("test"), func([]byte) {})

	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, KindWebSocket, exErr.Kind)
	assert.Equal(t, "test", exErr.Exchange)
}

func TestRunStreamStopsOnCancel(t *testing.T) {
	release := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	opts := StreamOptions{
		Exchange:     "test",
		URL:          wsURL(srv),
		Reconnect:    true,
		PingInterval: 20 * time.Millisecond,
	}
	time.AfterFunc(100*time.Millisecond, cancel)
	runWithTimeout(t, 5*time.Second, func() {
		RunStream(ctx, opts, logger.GetLogger().WithComponent("test"), func([]byte) {})
	})
}

func TestWaitForReconnect(t *testing.T) {
	assert.False(t, WaitForReconnect(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, WaitForReconnect(ctx, time.Hour))
}
