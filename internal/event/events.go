package event

import (
	"sync"

	"ladder_go/pkg/ladder"
	"ladder_go/pkg/quant"
)

// Type defines the type of event.
type Type uint16

const (
	EvDepth Type = iota + 1
	EvFeedState
)

func (t Type) String() string {
	switch t {
	case EvDepth:
		return "DEPTH"
	case EvFeedState:
		return "FEED_STATE"
	default:
		return "UNKNOWN"
	}
}

// Event is the interface for all sequencer events.
type Event interface {
	GetSeq() uint64
	GetTs() quant.TimeStamp
	GetType() Type
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq uint64          `json:"seq"`
	Ts  quant.TimeStamp `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64         { return e.Seq }
func (e BaseEvent) GetTs() quant.TimeStamp { return e.Ts }

// DepthEvent carries one exchange depth message, already converted to ticks
// and lots. A level with zero quantity is a removal. When Snapshot is set the
// levels replace the whole book.
type DepthEvent struct {
	BaseEvent
	Bids     []ladder.Level `json:"bids"`
	Asks     []ladder.Level `json:"asks"`
	Snapshot bool           `json:"snapshot"`
	Symbol   string         `json:"symbol"`
	Exchange string         `json:"exchange"`
}

func (e *DepthEvent) GetType() Type { return EvDepth }

// FeedStateEvent reports a feed connection change. Books of a disconnected
// feed are stale until the next snapshot.
type FeedStateEvent struct {
	BaseEvent
	Exchange  string `json:"exchange"`
	Connected bool   `json:"connected"`
}

func (e *FeedStateEvent) GetType() Type { return EvFeedState }

const defaultLevelCap = 64

var depthPool = sync.Pool{
	New: func() any {
		return &DepthEvent{
			Bids: make([]ladder.Level, 0, defaultLevelCap),
			Asks: make([]ladder.Level, 0, defaultLevelCap),
		}
	},
}

// AcquireDepthEvent returns an empty DepthEvent whose level slices keep the
// capacity of earlier use.
func AcquireDepthEvent() *DepthEvent {
	return depthPool.Get().(*DepthEvent)
}

// ReleaseDepthEvent resets ev and returns it to the pool. ev must not be used
// afterwards.
func ReleaseDepthEvent(ev *DepthEvent) {
	if ev == nil {
		return
	}
	bids, asks := ev.Bids[:0], ev.Asks[:0]
	*ev = DepthEvent{Bids: bids, Asks: asks}
	depthPool.Put(ev)
}

// Warmup pre-fills the pool so the first messages after startup do not
// allocate.
func Warmup() {
	const n = 32
	evs := make([]*DepthEvent, n)
	for i := range evs {
		evs[i] = AcquireDepthEvent()
	}
	for _, ev := range evs {
		ReleaseDepthEvent(ev)
	}
}
