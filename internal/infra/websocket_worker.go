package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Write while the worker has no connection.
var ErrNotConnected = errors.New("ws not connected")

// WebSocketHandler defines exchange-specific logic for the BaseWSWorker.
type WebSocketHandler interface {
	GetURL() string
	OnConnect(ctx context.Context, conn *websocket.Conn) error
	OnMessage(ctx context.Context, msg []byte)
	OnPing(ctx context.Context, conn *websocket.Conn) error
	// OnDisconnect is called once per lost connection, before reconnecting.
	OnDisconnect(ctx context.Context, err error)
	ID() string
}

// BaseWSWorker manages the lifecycle of a WebSocket connection.
// It handles reconnection with backoff, read timeouts, and thread-safe writes.
type BaseWSWorker struct {
	handler WebSocketHandler
	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ReadTimeout  time.Duration
	PingInterval time.Duration
	Backoff      Backoff
	Metrics      *Metrics
}

// NewBaseWSWorker creates a new generic WebSocket worker.
func NewBaseWSWorker(handler WebSocketHandler) *BaseWSWorker {
	return &BaseWSWorker{
		handler:      handler,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
		Backoff:      DefaultBackoff(),
	}
}

// Start initiates the connection loop.
func (w *BaseWSWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop terminates the worker and waits for its goroutines.
func (w *BaseWSWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.close()
	w.wg.Wait()
}

func (w *BaseWSWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	retry := 0
	connectedOnce := false

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			delay := w.Backoff.Delay(retry)
			slog.Warn("WS_CONNECT_FAILED", "id", w.handler.ID(), "err", err, "retry", retry, "delay", delay)
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		if connectedOnce {
			w.Metrics.Reconnected(w.handler.ID())
		}
		connectedOnce = true
		retry = 0 // Reset on successful connect

		err := w.process(ctx)
		if ctx.Err() != nil {
			return
		}
		w.handler.OnDisconnect(ctx, err)
	}
}

func (w *BaseWSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)
	header.Set("User-Agent", UserAgent)

	conn, _, err := dialer.DialContext(ctx, w.handler.GetURL(), header)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.OnConnect(ctx, conn); err != nil {
		w.close()
		return fmt.Errorf("OnConnect failed: %w", err)
	}

	if w.PingInterval > 0 {
		go w.pingLoop(ctx, conn)
	}

	slog.Info("WS_CONNECTED", "id", w.handler.ID())
	return nil
}

// process reads until the connection fails and returns the read error.
func (w *BaseWSWorker) process(ctx context.Context) error {
	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return ErrNotConnected
		}

		if w.ReadTimeout > 0 {
			c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		}
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("WS_READ_ERROR", "id", w.handler.ID(), "err", err)
			}
			w.close()
			return err
		}

		w.handler.OnMessage(ctx, msg)
	}
}

// pingLoop pings conn until it is replaced or closed.
func (w *BaseWSWorker) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(w.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			c := w.conn
			w.mu.RUnlock()
			if c != conn {
				return
			}

			w.writeMu.Lock()
			err := w.handler.OnPing(ctx, c)
			w.writeMu.Unlock()
			if err != nil {
				slog.Warn("WS_PING_ERROR", "id", w.handler.ID(), "err", err)
				w.close()
				return
			}
		}
	}
}

// Write sends one message. Safe for concurrent use.
func (w *BaseWSWorker) Write(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()

	if c == nil {
		return ErrNotConnected
	}

	return c.WriteMessage(msgType, data)
}

func (w *BaseWSWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
