package engine

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"ladder_go/internal/book"
	"ladder_go/internal/domain"
	"ladder_go/internal/event"
	"ladder_go/internal/infra"
	"ladder_go/pkg/ladder"
	"ladder_go/pkg/quant"
)

// ErrUnknownSymbol is returned by queries for a book the sequencer does not own.
var ErrUnknownSymbol = errors.New("engine: unknown symbol")

var sides = [...]ladder.Side{ladder.Bid, ladder.Ask}

// Options configures a Sequencer. Zero values select defaults.
type Options struct {
	InboxSize int
	MaxGap    uint64
	DumpPath  string
	Breaker   infra.CircuitBreakerConfig // Name is replaced by the symbol
	Metrics   *infra.Metrics

	// Resync asks the feed for a new snapshot of symbol. It must not block.
	Resync func(symbol string)
	// OnUpdate receives a copy of the top of a book after every change.
	OnUpdate func(domain.BookTop)
}

// bookState is owned by the Run goroutine.
type bookState struct {
	book     *book.Book
	breaker  *infra.CircuitBreaker
	exchange string
	stale    bool
	last     [2]ladder.Stats
}

type depthQuery struct {
	symbol string
	side   ladder.Side
	n      int
	reply  chan depthReply
}

type depthReply struct {
	levels []ladder.Level
	err    error
}

// Sequencer is the single writer of every book. Feed workers send events to
// its inbox; readers get published copies.
type Sequencer struct {
	inbox   chan event.Event
	queries chan depthQuery
	books   map[string]*bookState
	nextSeq uint64

	maxGap   uint64
	dumpPath string
	metrics  *infra.Metrics
	resync   func(string)
	onUpdate func(domain.BookTop)

	mu   sync.RWMutex // guards tops
	tops map[string]domain.BookTop
}

// NewSequencer creates a sequencer owning books. Every book starts stale
// until its first snapshot.
func NewSequencer(books []*book.Book, opts Options) *Sequencer {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 1024
	}
	if opts.DumpPath == "" {
		opts.DumpPath = "panic_dump.json"
	}
	if opts.Breaker.FailureThreshold == 0 {
		opts.Breaker = infra.DefaultCircuitBreakerConfig("")
	}

	s := &Sequencer{
		inbox:    make(chan event.Event, opts.InboxSize),
		queries:  make(chan depthQuery),
		books:    make(map[string]*bookState, len(books)),
		nextSeq:  1,
		maxGap:   opts.MaxGap,
		dumpPath: opts.DumpPath,
		metrics:  opts.Metrics,
		resync:   opts.Resync,
		onUpdate: opts.OnUpdate,
		tops:     make(map[string]domain.BookTop, len(books)),
	}

	for _, b := range books {
		bc := opts.Breaker
		bc.Name = b.Symbol()
		st := &bookState{book: b, breaker: infra.NewCircuitBreaker(bc), stale: true}
		s.books[b.Symbol()] = st
		s.metrics.Stale(b.Symbol(), true)

		top := b.Top()
		top.Stale = true
		s.tops[b.Symbol()] = top
	}
	return s
}

// Inbox returns the event channel. External workers send events here.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// ValidateSequence reports whether an event should be processed. Duplicates
// are skipped. Gaps up to MaxGap are tolerated, but the lost events may have
// touched any book, so every book is resynced. Larger gaps panic.
func (s *Sequencer) ValidateSequence(evSeq uint64) bool {
	expected := s.nextSeq
	if evSeq == expected {
		return true
	}

	if evSeq < expected {
		slog.Warn("SEQUENCE_DUPLICATE_IGNORED", slog.Uint64("expected", expected), slog.Uint64("got", evSeq))
		return false
	}

	gap := evSeq - expected
	if gap > s.maxGap {
		panic(fmt.Sprintf("SEQUENCE_GAP_FATAL: expected %d, got %d", expected, evSeq))
	}

	slog.Warn("SEQUENCE_GAP_TOLERATED",
		slog.Uint64("expected", expected),
		slog.Uint64("got", evSeq),
		slog.Uint64("gap", gap))
	s.metrics.Gap()
	s.nextSeq = evSeq

	for _, st := range s.books {
		st.breaker.Trip()
		s.setStale(st, true, "sequence_gap")
		s.requestResync(st)
	}
	return true
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("SEQUENCER_STARTED", slog.Int("books", len(s.books)))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpPath)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("SEQUENCER_STOPPED", slog.Uint64("next_seq", s.nextSeq))
			return
		case ev := <-s.inbox:
			s.processEvent(ev)
		case q := <-s.queries:
			q.reply <- s.depth(q)
		}
	}
}

func (s *Sequencer) processEvent(ev event.Event) {
	if !s.ValidateSequence(ev.GetSeq()) {
		if d, ok := ev.(*event.DepthEvent); ok {
			event.ReleaseDepthEvent(d)
		}
		return
	}

	switch e := ev.(type) {
	case *event.DepthEvent:
		s.handleDepth(e)
		event.ReleaseDepthEvent(e)
	case *event.FeedStateEvent:
		s.handleFeedState(e)
	default:
		slog.Warn("UNKNOWN_EVENT_TYPE", slog.String("type", ev.GetType().String()))
	}

	s.nextSeq++
}

func (s *Sequencer) handleDepth(e *event.DepthEvent) {
	st, ok := s.books[e.Symbol]
	if !ok {
		slog.Debug("DEPTH_UNKNOWN_SYMBOL", slog.String("symbol", e.Symbol))
		return
	}
	st.exchange = e.Exchange
	start := time.Now()

	if e.Snapshot {
		s.loadSnapshot(st, e)
	} else if !s.applyDelta(st, e) {
		return
	}

	s.metrics.Applied(e.Symbol, time.Since(start))
	s.observeStats(st)
	s.publish(st, e.Seq, e.Ts)
}

func (s *Sequencer) loadSnapshot(st *bookState, e *event.DepthEvent) {
	rejected, err := st.book.Load(e.Bids, e.Asks)
	s.metrics.Snapshot(e.Symbol)
	if err != nil {
		slog.Warn("SNAPSHOT_LEVELS_REJECTED",
			slog.String("symbol", e.Symbol),
			slog.Int("rejected", rejected),
			slog.Any("err", err))
		s.metrics.Rejected(e.Symbol, rejectReason(err))
	}

	st.breaker.Reset()
	s.setStale(st, false, "snapshot")
}

// applyDelta reports whether the book changed.
func (s *Sequencer) applyDelta(st *bookState, e *event.DepthEvent) bool {
	if st.stale {
		// Only ask again once the breaker allows it; a closed breaker means
		// the first snapshot has not arrived yet.
		if st.breaker.GetState() != infra.StateClosed && st.breaker.Allow() {
			s.requestResync(st)
		}
		return false
	}

	nb, errB := st.book.ApplyLevels(ladder.Bid, e.Bids)
	na, errA := st.book.ApplyLevels(ladder.Ask, e.Asks)
	err := cmp.Or(errB, errA)

	switch {
	case err != nil:
		slog.Warn("LADDER_REJECT",
			slog.String("symbol", e.Symbol),
			slog.Int("rejected", nb+na),
			slog.Any("err", err))
		s.metrics.Rejected(e.Symbol, rejectReason(err))
		s.recordFailure(st, "rejects")
	case st.book.Crossed():
		slog.Warn("BOOK_CROSSED", slog.String("symbol", e.Symbol))
		s.metrics.Rejected(e.Symbol, "crossed")
		s.recordFailure(st, "crossed")
	default:
		st.breaker.RecordSuccess()
	}
	return true
}

func (s *Sequencer) recordFailure(st *bookState, reason string) {
	if st.breaker.RecordFailure() {
		s.setStale(st, true, reason)
		s.requestResync(st)
	}
}

func (s *Sequencer) handleFeedState(e *event.FeedStateEvent) {
	if e.Connected {
		slog.Info("FEED_CONNECTED", slog.String("exchange", e.Exchange))
		return
	}

	slog.Warn("FEED_DISCONNECTED", slog.String("exchange", e.Exchange))
	for _, st := range s.books {
		if st.exchange != "" && st.exchange != e.Exchange {
			continue
		}
		st.breaker.Trip()
		s.setStale(st, true, "disconnect")
		s.publish(st, e.Seq, e.Ts)
	}
}

func (s *Sequencer) setStale(st *bookState, stale bool, reason string) {
	if st.stale == stale {
		return
	}
	st.stale = stale
	s.metrics.Stale(st.book.Symbol(), stale)
	if stale {
		slog.Warn("BOOK_STALE", slog.String("symbol", st.book.Symbol()), slog.String("reason", reason))
	} else {
		slog.Info("BOOK_RECOVERED", slog.String("symbol", st.book.Symbol()), slog.String("via", reason))
	}
}

func (s *Sequencer) requestResync(st *bookState) {
	s.metrics.Resync(st.book.Symbol())
	if s.resync != nil {
		s.resync(st.book.Symbol())
	}
}

// observeStats turns ladder counters into metric deltas.
func (s *Sequencer) observeStats(st *bookState) {
	for _, side := range sides {
		cur := st.book.Side(side).Stats()
		prev := st.last[side]
		moves, dropped := cur.Reanchors-prev.Reanchors, cur.Dropped-prev.Dropped
		if moves > 0 || dropped > 0 {
			lo, hi := st.book.Side(side).Window()
			slog.Debug("LADDER_REANCHORED",
				slog.String("symbol", st.book.Symbol()),
				slog.String("side", side.String()),
				slog.Int64("lo", int64(lo)),
				slog.Int64("hi", int64(hi)),
				slog.Uint64("dropped", dropped))
			s.metrics.Reanchored(st.book.Symbol(), side.String(), moves, dropped)
		}
		st.last[side] = cur
	}
}

func (s *Sequencer) publish(st *bookState, seq uint64, ts quant.TimeStamp) {
	top := st.book.Top()
	top.Seq = seq
	top.Ts = ts
	top.Stale = st.stale

	s.mu.Lock()
	s.tops[top.Symbol] = top
	s.mu.Unlock()

	s.metrics.Top(top)
	if s.onUpdate != nil {
		s.onUpdate(top)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ladder.ErrPriceOutOfWindow):
		return "out_of_window"
	case errors.Is(err, ladder.ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, ladder.ErrQuantityOverflow):
		return "overflow"
	case errors.Is(err, ladder.ErrInvalidQuantity):
		return "invalid_qty"
	default:
		return "other"
	}
}

// BookTop returns the last published top of symbol (external read).
func (s *Sequencer) BookTop(symbol string) (domain.BookTop, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	top, ok := s.tops[symbol]
	return top, ok
}

// Depth returns up to n levels of one side, best first. The copy is taken on
// the Run goroutine, so Depth blocks until Run serves it or ctx ends.
func (s *Sequencer) Depth(ctx context.Context, symbol string, side ladder.Side, n int) ([]ladder.Level, error) {
	q := depthQuery{symbol: symbol, side: side, n: n, reply: make(chan depthReply, 1)}
	select {
	case s.queries <- q:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-q.reply:
		return r.levels, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Sequencer) depth(q depthQuery) depthReply {
	st, ok := s.books[q.symbol]
	if !ok {
		return depthReply{err: fmt.Errorf("%w: %s", ErrUnknownSymbol, q.symbol)}
	}
	n := max(q.n, 0)
	return depthReply{levels: st.book.Depth(q.side, make([]ladder.Level, 0, n), n)}
}

type bookDump struct {
	Top     domain.BookTop  `json:"top"`
	Breaker string          `json:"breaker"`
	Bids    []ladder.Level  `json:"bids"`
	Asks    []ladder.Level  `json:"asks"`
	Windows [2][2]int64     `json:"windows"`
	Stats   [2]ladder.Stats `json:"stats"`
}

const dumpDepth = 20

// DumpState writes the entire internal state to a file (for post-mortem).
// It must run on the Run goroutine.
func (s *Sequencer) DumpState(filename string) {
	slog.Info("DUMPING_STATE", slog.String("file", filename))

	books := make(map[string]bookDump, len(s.books))
	for sym, st := range s.books {
		d := bookDump{
			Top:     st.book.Top(),
			Breaker: st.breaker.GetState().String(),
			Bids:    st.book.Depth(ladder.Bid, nil, dumpDepth),
			Asks:    st.book.Depth(ladder.Ask, nil, dumpDepth),
		}
		d.Top.Stale = st.stale
		for _, side := range sides {
			lo, hi := st.book.Side(side).Window()
			d.Windows[side] = [2]int64{int64(lo), int64(hi)}
			d.Stats[side] = st.book.Side(side).Stats()
		}
		books[sym] = d
	}

	data := struct {
		NextSeq uint64              `json:"next_seq"`
		Books   map[string]bookDump `json:"books"`
	}{
		NextSeq: s.nextSeq,
		Books:   books,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
