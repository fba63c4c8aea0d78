package domain

import (
	"ladder_go/pkg/quant"
	"ladder_go/pkg/safe"
)

// BookTop is a copy of the top of one book, published after every event.
// Fields are ordered for cache-line efficiency: hot fields (best levels) first.
type BookTop struct {
	// Hot fields (refreshed on every update)
	BidPrice quant.Price     `json:"bid_price,string"`
	BidQty   quant.Qty       `json:"bid_qty,string"`
	AskPrice quant.Price     `json:"ask_price,string"`
	AskQty   quant.Qty       `json:"ask_qty,string"`
	HasBid   bool            `json:"has_bid"`
	HasAsk   bool            `json:"has_ask"`
	Seq      uint64          `json:"seq"`
	Ts       quant.TimeStamp `json:"ts,string"`

	// Cold fields
	BidTotal  quant.Qty `json:"bid_total,string"`
	AskTotal  quant.Qty `json:"ask_total,string"`
	BidLevels int       `json:"bid_levels"`
	AskLevels int       `json:"ask_levels"`
	Stale     bool      `json:"stale"`
	Symbol    string    `json:"symbol"`
}

// Spread returns ask minus bid in ticks. ok is false unless both sides are
// present and the difference fits in an int64.
func (t BookTop) Spread() (quant.Price, bool) {
	if !t.HasBid || !t.HasAsk {
		return 0, false
	}
	s, ok := safe.CheckedSub(int64(t.AskPrice), int64(t.BidPrice))
	return quant.Price(s), ok
}

// Crossed reports whether the best bid is at or above the best ask. Locked
// counts as crossed, as in book.Book.
func (t BookTop) Crossed() bool {
	return t.HasBid && t.HasAsk && t.BidPrice >= t.AskPrice
}
