package bitget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ladder_go/internal/book"
	"ladder_go/internal/event"
	"ladder_go/internal/infra"
	"ladder_go/pkg/ladder"
	"ladder_go/pkg/quant"

	"github.com/gorilla/websocket"
)

var errMalformedLevel = errors.New("bitget: malformed level")

// DepthWorker streams the books channel and turns every push into a
// DepthEvent priced in ticks of the symbol's book.
type DepthWorker struct {
	base     *infra.BaseWSWorker
	url      string
	instType string
	channel  string
	specs    map[string]book.Spec // by instId
	inbox    chan<- event.Event
	seq      *uint64
	limiter  *infra.RateLimiter
	metrics  *infra.Metrics

	resync chan string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDepthWorker creates a worker for the given symbols. specs maps the
// exchange instId to the tick and lot sizes its levels are parsed with.
func NewDepthWorker(cfg infra.FeedConfig, specs map[string]book.Spec, inbox chan<- event.Event, seq *uint64, m *infra.Metrics) *DepthWorker {
	url := cfg.WSURL
	if url == "" {
		url = PublicWSURL
	}
	perSec := cfg.SubscribePerSec
	if perSec <= 0 {
		perSec = 10
	}

	w := &DepthWorker{
		url:      url,
		instType: cfg.InstType,
		channel:  cfg.Channel,
		specs:    specs,
		inbox:    inbox,
		seq:      seq,
		limiter:  infra.NewRateLimiter(perSec, float64(perSec)),
		metrics:  m,
		resync:   make(chan string, max(len(specs), 1)),
	}
	w.base = infra.NewBaseWSWorker(w)
	if d := cfg.ReadTimeout(); d > 0 {
		w.base.ReadTimeout = d
	}
	if d := cfg.PingInterval(); d > 0 {
		w.base.PingInterval = d
	}
	if b := cfg.Backoff(); b.Base > 0 {
		w.base.Backoff = b
	}
	w.base.Metrics = m
	return w
}

func (w *DepthWorker) ID() string     { return exchangeID + "_" + w.instType }
func (w *DepthWorker) GetURL() string { return w.url }

// Connect starts the connection loop and the resync sender.
func (w *DepthWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.base.Start(ctx)
	w.wg.Add(1)
	go w.resyncLoop(ctx)
	return nil
}

func (w *DepthWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.base.Stop()
	w.wg.Wait()
}

// RequestResync asks for a fresh snapshot of symbol. It never blocks and
// drops the request when the queue is full.
func (w *DepthWorker) RequestResync(symbol string) {
	select {
	case w.resync <- symbol:
	default:
		slog.Debug("RESYNC_QUEUE_FULL", "symbol", symbol)
	}
}

func (w *DepthWorker) resyncLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case symbol := <-w.resync:
			if err := w.resubscribe(ctx, symbol); err != nil && ctx.Err() == nil {
				slog.Warn("RESYNC_FAILED", "id", w.ID(), "symbol", symbol, "err", err)
			}
		}
	}
}

// resubscribe drops and re-adds one subscription. The exchange answers a new
// subscription with a snapshot.
func (w *DepthWorker) resubscribe(ctx context.Context, symbol string) error {
	args := []subscribeArg{w.arg(symbol)}
	if err := w.send(ctx, "unsubscribe", args); err != nil {
		return err
	}
	slog.Info("RESYNC_REQUESTED", "id", w.ID(), "symbol", symbol)
	return w.send(ctx, "subscribe", args)
}

func (w *DepthWorker) send(ctx context.Context, op string, args []subscribeArg) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	b, err := json.Marshal(subscribeRequest{Op: op, Args: args})
	if err != nil {
		return err
	}
	return w.base.Write(websocket.TextMessage, b)
}

func (w *DepthWorker) arg(instID string) subscribeArg {
	return subscribeArg{InstType: w.instType, Channel: w.channel, InstId: instID}
}

func (w *DepthWorker) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	args := make([]subscribeArg, 0, len(w.specs))
	for id := range w.specs {
		args = append(args, w.arg(id))
	}
	if err := w.send(ctx, "subscribe", args); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	w.publishState(ctx, true)
	return nil
}

func (w *DepthWorker) OnDisconnect(ctx context.Context, err error) {
	w.publishState(ctx, false)
}

func (w *DepthWorker) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return conn.WriteMessage(websocket.TextMessage, []byte("ping"))
}

func (w *DepthWorker) OnMessage(ctx context.Context, msg []byte) {
	if bytes.Equal(msg, []byte("pong")) {
		return
	}
	if bytes.HasPrefix(msg, []byte(`{"event"`)) {
		w.onEvent(msg)
		return
	}

	var resp depthResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		slog.Warn("DEPTH_DECODE_FAILED", "id", w.ID(), "err", err)
		return
	}
	if resp.Arg.Channel != w.channel || len(resp.Data) == 0 {
		return
	}
	spec, ok := w.specs[resp.Arg.InstId]
	if !ok {
		return
	}

	for i := range resp.Data {
		ev, err := w.decode(&resp, &resp.Data[i], spec)
		if err != nil {
			slog.Warn("DEPTH_PARSE_FAILED", "symbol", resp.Arg.InstId, "action", resp.Action, "err", err)
			w.metrics.Rejected(resp.Arg.InstId, "parse")
			w.RequestResync(resp.Arg.InstId)
			return
		}
		if !w.emit(ctx, ev) {
			event.ReleaseDepthEvent(ev)
			return
		}
	}
}

func (w *DepthWorker) onEvent(msg []byte) {
	var ev eventResponse
	if err := json.Unmarshal(msg, &ev); err != nil {
		return
	}
	if ev.Event == "error" {
		slog.Warn("BITGET_SUBSCRIBE_ERROR", "code", ev.Code, "msg", ev.Msg, "symbol", ev.Arg.InstId)
		return
	}
	slog.Debug("BITGET_EVENT", "event", ev.Event, "symbol", ev.Arg.InstId)
}

// decode converts one data entry into a pooled DepthEvent. On error the event
// has already been released.
func (w *DepthWorker) decode(resp *depthResponse, data *depthData, spec book.Spec) (*event.DepthEvent, error) {
	ts, err := quant.ParseTimeStamp(data.Ts)
	if err != nil {
		ts = quant.TimeStamp(resp.Ts * 1000)
	}

	ev := event.AcquireDepthEvent()
	ev.Ts = ts
	ev.Symbol = resp.Arg.InstId
	ev.Exchange = exchangeID
	ev.Snapshot = resp.Action == "snapshot"

	if ev.Bids, err = appendLevels(ev.Bids, data.Bids, spec); err != nil {
		event.ReleaseDepthEvent(ev)
		return nil, fmt.Errorf("bids: %w", err)
	}
	if ev.Asks, err = appendLevels(ev.Asks, data.Asks, spec); err != nil {
		event.ReleaseDepthEvent(ev)
		return nil, fmt.Errorf("asks: %w", err)
	}
	return ev, nil
}

// appendLevels parses [price, size] pairs. Extra fields are ignored.
func appendLevels(dst []ladder.Level, raw [][]string, spec book.Spec) ([]ladder.Level, error) {
	for _, lvl := range raw {
		if len(lvl) < 2 {
			return dst, errMalformedLevel
		}
		p, err := spec.Tick.ParsePrice(lvl[0])
		if err != nil {
			return dst, err
		}
		q, err := spec.Lot.ParseQty(lvl[1])
		if err != nil {
			return dst, err
		}
		if q < 0 {
			return dst, fmt.Errorf("%w: negative size %s", errMalformedLevel, lvl[1])
		}
		dst = append(dst, ladder.Level{Price: p, Qty: q})
	}
	return dst, nil
}

// emit stamps ev with the next sequence number and hands it to the engine.
// It blocks while the inbox is full: dropping a delta would corrupt the book.
func (w *DepthWorker) emit(ctx context.Context, ev event.Event) bool {
	switch e := ev.(type) {
	case *event.DepthEvent:
		e.Seq = quant.NextSeq(w.seq)
	case *event.FeedStateEvent:
		e.Seq = quant.NextSeq(w.seq)
	}
	select {
	case w.inbox <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *DepthWorker) publishState(ctx context.Context, connected bool) {
	ev := &event.FeedStateEvent{Exchange: exchangeID, Connected: connected}
	ev.Ts = quant.TimeStamp(time.Now().UnixMicro())
	w.emit(ctx, ev)
}
