package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"ladder_go/internal/book"
	"ladder_go/internal/domain"
	"ladder_go/internal/event"
	"ladder_go/internal/infra"
	"ladder_go/pkg/ladder"
	"ladder_go/pkg/quant"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	seq     *Sequencer
	clock   *testClock
	resyncs []string
	updates []domain.BookTop
	metrics *infra.Metrics
}

func newHarness(t *testing.T, failureThreshold int) *harness {
	t.Helper()
	tick, _ := quant.NewTickSize("1")
	lot, _ := quant.NewLotSize("1")
	b, err := book.New("BTCUSDT", book.Spec{Tick: tick, Lot: lot, Capacity: 64})
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{clock: &testClock{t: time.Unix(1_700_000_000, 0)}, metrics: infra.NewMetrics()}
	h.seq = NewSequencer([]*book.Book{b}, Options{
		MaxGap:   10,
		DumpPath: filepath.Join(t.TempDir(), "dump.json"),
		Breaker: infra.CircuitBreakerConfig{
			FailureThreshold: failureThreshold,
			SuccessThreshold: 1,
			Timeout:          10 * time.Second,
			Now:              h.clock.Now,
		},
		Metrics:  h.metrics,
		Resync:   func(symbol string) { h.resyncs = append(h.resyncs, symbol) },
		OnUpdate: func(top domain.BookTop) { h.updates = append(h.updates, top) },
	})
	return h
}

func depth(seq uint64, snapshot bool, bids, asks []ladder.Level) *event.DepthEvent {
	ev := event.AcquireDepthEvent()
	ev.Seq = seq
	ev.Ts = quant.TimeStamp(seq * 1000)
	ev.Symbol = "BTCUSDT"
	ev.Exchange = "BITGET"
	ev.Snapshot = snapshot
	ev.Bids = append(ev.Bids, bids...)
	ev.Asks = append(ev.Asks, asks...)
	return ev
}

func snapshot(seq uint64) *event.DepthEvent {
	return depth(seq, true,
		[]ladder.Level{{Price: 1000, Qty: 5}, {Price: 999, Qty: 3}},
		[]ladder.Level{{Price: 1002, Qty: 4}, {Price: 1005, Qty: 1}})
}

func bid(seq uint64, p quant.Price, q quant.Qty) *event.DepthEvent {
	return depth(seq, false, []ladder.Level{{Price: p, Qty: q}}, nil)
}

func (h *harness) bidQty(p quant.Price) quant.Qty {
	return h.seq.books["BTCUSDT"].book.Side(ladder.Bid).QuantityAt(p)
}

func (h *harness) top(t *testing.T) domain.BookTop {
	t.Helper()
	top, ok := h.seq.BookTop("BTCUSDT")
	if !ok {
		t.Fatal("no published top")
	}
	return top
}

func TestSequencer_SnapshotThenDelta(t *testing.T) {
	h := newHarness(t, 3)

	if top := h.top(t); !top.Stale || top.HasBid {
		t.Errorf("book should start empty and stale: %+v", top)
	}

	// Deltas before the first snapshot are dropped without a resync
	h.seq.processEvent(bid(1, 1000, 9))
	if h.bidQty(1000) != 0 || len(h.resyncs) != 0 {
		t.Error("delta applied to a book without snapshot")
	}

	h.seq.processEvent(snapshot(2))
	h.seq.processEvent(depth(3, false,
		[]ladder.Level{{Price: 1000, Qty: 0}, {Price: 998, Qty: 2}},
		[]ladder.Level{{Price: 1001, Qty: 6}}))

	top := h.top(t)
	want := domain.BookTop{
		BidPrice: 999, BidQty: 3, AskPrice: 1001, AskQty: 6, HasBid: true, HasAsk: true,
		Seq: 3, Ts: 3000, BidTotal: 5, AskTotal: 11, BidLevels: 2, AskLevels: 3, Symbol: "BTCUSDT",
	}
	if top != want {
		t.Errorf("top = %+v\nwant %+v", top, want)
	}
	if len(h.updates) != 2 || h.updates[1] != want {
		t.Errorf("expected 2 updates ending in the published top, got %d", len(h.updates))
	}
	if got := testutil.ToFloat64(h.metrics.SnapshotsTotal.WithLabelValues("BTCUSDT")); got != 1 {
		t.Errorf("snapshots = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.metrics.BookStale.WithLabelValues("BTCUSDT")); got != 0 {
		t.Errorf("stale gauge = %v, want 0", got)
	}
}

func TestSequencer_RejectsTripResync(t *testing.T) {
	h := newHarness(t, 2)
	h.seq.processEvent(snapshot(1))

	// A full window away from the best bid
	h.seq.processEvent(bid(2, 1064, 1))
	if len(h.resyncs) != 0 || h.top(t).Stale {
		t.Fatal("one reject must not trip the breaker")
	}
	h.seq.processEvent(bid(3, 1064, 1))
	if !slices.Equal(h.resyncs, []string{"BTCUSDT"}) || !h.top(t).Stale {
		t.Fatalf("expected stale book and one resync, got %v", h.resyncs)
	}
	if got := testutil.ToFloat64(h.metrics.RejectsTotal.WithLabelValues("BTCUSDT", "out_of_window")); got != 2 {
		t.Errorf("rejects = %v, want 2", got)
	}

	// Stale: deltas are dropped and the resync is not repeated before the timeout
	h.seq.processEvent(bid(4, 998, 1))
	if h.bidQty(998) != 0 || len(h.resyncs) != 1 {
		t.Errorf("stale delta handling: qty=%d resyncs=%d", h.bidQty(998), len(h.resyncs))
	}
	h.clock.Advance(11 * time.Second)
	h.seq.processEvent(bid(5, 998, 1))
	if len(h.resyncs) != 2 {
		t.Errorf("expected a second resync after the timeout, got %d", len(h.resyncs))
	}

	h.seq.processEvent(snapshot(6))
	if h.top(t).Stale || h.seq.books["BTCUSDT"].breaker.GetState() != infra.StateClosed {
		t.Error("snapshot should recover the book")
	}
	h.seq.processEvent(bid(7, 998, 1))
	if h.bidQty(998) != 1 {
		t.Error("deltas should apply after recovery")
	}
}

func TestSequencer_CrossedBookResyncs(t *testing.T) {
	h := newHarness(t, 1)
	h.seq.processEvent(snapshot(1))
	h.seq.processEvent(bid(2, 1003, 1))

	if !h.top(t).Stale || len(h.resyncs) != 1 {
		t.Errorf("crossed book should go stale and resync, resyncs=%v", h.resyncs)
	}
	if got := testutil.ToFloat64(h.metrics.RejectsTotal.WithLabelValues("BTCUSDT", "crossed")); got != 1 {
		t.Errorf("crossed rejects = %v, want 1", got)
	}
}

func TestSequencer_FeedDisconnect(t *testing.T) {
	h := newHarness(t, 3)
	h.seq.processEvent(snapshot(1))

	other := &event.FeedStateEvent{Exchange: "OTHER", Connected: false}
	other.Seq = 2
	h.seq.processEvent(other)
	if h.top(t).Stale {
		t.Fatal("disconnect of another feed marked the book stale")
	}

	down := &event.FeedStateEvent{Exchange: "BITGET", Connected: false}
	down.Seq = 3
	h.seq.processEvent(down)
	if top := h.top(t); !top.Stale || top.Seq != 3 {
		t.Errorf("expected stale top at seq 3, got %+v", top)
	}
	if h.seq.books["BTCUSDT"].breaker.GetState() != infra.StateOpen {
		t.Error("breaker should be open after disconnect")
	}
	if len(h.resyncs) != 0 {
		t.Error("the reconnect itself resubscribes, no resync expected")
	}

	h.seq.processEvent(bid(4, 998, 1))
	if h.bidQty(998) != 0 {
		t.Error("delta applied while disconnected")
	}
	h.seq.processEvent(snapshot(5))
	if h.top(t).Stale {
		t.Error("snapshot should clear stale")
	}
}

func TestSequencer_ValidateSequence(t *testing.T) {
	h := newHarness(t, 3)
	h.seq.processEvent(snapshot(1))

	// Duplicate is ignored
	h.seq.processEvent(bid(1, 999, 7))
	if h.bidQty(999) != 3 || h.seq.nextSeq != 2 {
		t.Errorf("duplicate applied: qty=%d next=%d", h.bidQty(999), h.seq.nextSeq)
	}

	// Small gap is tolerated but invalidates the book
	h.seq.processEvent(bid(5, 999, 7))
	if h.seq.nextSeq != 6 {
		t.Errorf("nextSeq = %d, want 6", h.seq.nextSeq)
	}
	if !h.top(t).Stale || len(h.resyncs) != 1 {
		t.Errorf("gap should resync every book, resyncs=%v", h.resyncs)
	}
	if got := testutil.ToFloat64(h.metrics.SequenceGaps); got != 1 {
		t.Errorf("gaps = %v, want 1", got)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on a fatal gap")
		}
	}()
	h.seq.processEvent(bid(100, 999, 7))
}

func TestSequencer_ReanchorMetrics(t *testing.T) {
	h := newHarness(t, 3)
	h.seq.processEvent(snapshot(1))

	// Bid window after the snapshot is [953, 1016]
	h.seq.processEvent(bid(2, 940, 1))
	if h.bidQty(940) != 1 || h.bidQty(999) != 3 {
		t.Fatal("re-anchor lost levels")
	}
	if got := testutil.ToFloat64(h.metrics.ReanchorsTotal.WithLabelValues("BTCUSDT", "BID")); got != 1 {
		t.Errorf("reanchors = %v, want 1", got)
	}
	if h.top(t).Stale {
		t.Error("a re-anchor is not a failure")
	}
}

func TestSequencer_DepthQuery(t *testing.T) {
	h := newHarness(t, 3)
	h.seq.processEvent(snapshot(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.seq.Run(ctx)

	got, err := h.seq.Depth(ctx, "BTCUSDT", ladder.Ask, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []ladder.Level{{Price: 1002, Qty: 4}, {Price: 1005, Qty: 1}}
	if !slices.Equal(got, want) {
		t.Errorf("depth = %v, want %v", got, want)
	}

	if _, err := h.seq.Depth(ctx, "ETHUSDT", ladder.Bid, 5); !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestSequencer_DepthQueryCancelled(t *testing.T) {
	h := newHarness(t, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := h.seq.Depth(ctx, "BTCUSDT", ladder.Bid, 5); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded without Run, got %v", err)
	}
}

func TestSequencer_DumpState(t *testing.T) {
	h := newHarness(t, 3)
	h.seq.processEvent(snapshot(1))

	path := filepath.Join(t.TempDir(), "state.json")
	h.seq.DumpState(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var dump struct {
		NextSeq uint64              `json:"next_seq"`
		Books   map[string]bookDump `json:"books"`
	}
	if err := json.Unmarshal(data, &dump); err != nil {
		t.Fatal(err)
	}

	d, ok := dump.Books["BTCUSDT"]
	if dump.NextSeq != 2 || !ok {
		t.Fatalf("unexpected dump %+v", dump)
	}
	if d.Breaker != "CLOSED" || len(d.Bids) != 2 || d.Top.BidPrice != 1000 {
		t.Errorf("unexpected book dump %+v", d)
	}
	if d.Windows[ladder.Bid] != [2]int64{953, 1016} {
		t.Errorf("bid window = %v", d.Windows[ladder.Bid])
	}
}

func BenchmarkSequencer_Delta(b *testing.B) {
	tick, _ := quant.NewTickSize("1")
	lot, _ := quant.NewLotSize("1")
	bk, _ := book.New("BTCUSDT", book.Spec{Tick: tick, Lot: lot, Capacity: 4096})
	s := NewSequencer([]*book.Book{bk}, Options{})
	s.processEvent(snapshot(1))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.processEvent(bid(uint64(i)+2, quant.Price(990+i%10), quant.Qty(i%5+1)))
	}
}
