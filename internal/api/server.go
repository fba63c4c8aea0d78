// Package api serves read-only book state over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ladder_go/internal/book"
	"ladder_go/internal/domain"
	"ladder_go/internal/engine"
	"ladder_go/pkg/ladder"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

const (
	defaultDepth = 20
	maxDepth     = 500
	queryTimeout = 2 * time.Second
)

// Source is the read side of the sequencer.
type Source interface {
	BookTop(symbol string) (domain.BookTop, bool)
	Depth(ctx context.Context, symbol string, side ladder.Side, n int) ([]ladder.Level, error)
}

// Server exposes book tops and depth as JSON, plus /metrics when a handler is
// given.
type Server struct {
	*fiber.App

	src     Source
	specs   map[string]book.Spec
	symbols []string
}

// New registers the routes. books lists the served symbols; only their specs
// are read, to render ticks and lots.
func New(name string, src Source, books []*book.Book, metrics http.Handler) *Server {
	s := &Server{
		App: fiber.New(fiber.Config{
			ServerHeader:          name,
			AppName:               name,
			DisableStartupMessage: true,
		}),
		src:   src,
		specs: make(map[string]book.Spec, len(books)),
	}
	for _, b := range books {
		s.specs[b.Symbol()] = b.Spec()
		s.symbols = append(s.symbols, b.Symbol())
	}

	s.Get("/healthz", s.health)
	s.Get("/books", s.listBooks)
	s.Get("/books/:symbol", s.getBook)
	s.Get("/books/:symbol/depth", s.getDepth)
	if metrics != nil {
		s.Get("/metrics", adaptor.HTTPHandler(metrics))
	}
	return s
}

// TopView is a BookTop with prices and quantities in exchange notation.
type TopView struct {
	Symbol    string `json:"symbol"`
	Bid       string `json:"bid,omitempty"`
	BidQty    string `json:"bid_qty,omitempty"`
	Ask       string `json:"ask,omitempty"`
	AskQty    string `json:"ask_qty,omitempty"`
	Spread    string `json:"spread,omitempty"`
	BidTotal  string `json:"bid_total"`
	AskTotal  string `json:"ask_total"`
	BidLevels int    `json:"bid_levels"`
	AskLevels int    `json:"ask_levels"`
	Stale     bool   `json:"stale"`
	Seq       uint64 `json:"seq"`
	Ts        int64  `json:"ts"`
}

// LevelView is one price level in exchange notation.
type LevelView struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) health(c *fiber.Ctx) error {
	stale := 0
	for _, sym := range s.symbols {
		if top, ok := s.src.BookTop(sym); !ok || top.Stale {
			stale++
		}
	}
	status := fiber.StatusOK
	if stale == len(s.symbols) {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"books": len(s.symbols), "stale": stale})
}

func (s *Server) listBooks(c *fiber.Ctx) error {
	views := make([]TopView, 0, len(s.symbols))
	for _, sym := range s.symbols {
		if top, ok := s.src.BookTop(sym); ok {
			views = append(views, s.view(top))
		}
	}
	return c.JSON(views)
}

func (s *Server) getBook(c *fiber.Ctx) error {
	sym := strings.ToUpper(c.Params("symbol"))
	top, ok := s.src.BookTop(sym)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(errorBody{Error: "unknown symbol " + sym})
	}
	return c.JSON(s.view(top))
}

func (s *Server) getDepth(c *fiber.Ctx) error {
	sym := strings.ToUpper(c.Params("symbol"))
	spec, ok := s.specs[sym]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(errorBody{Error: "unknown symbol " + sym})
	}

	var side ladder.Side
	switch strings.ToLower(c.Query("side", "bid")) {
	case "bid", "bids":
		side = ladder.Bid
	case "ask", "asks":
		side = ladder.Ask
	default:
		return c.Status(fiber.StatusBadRequest).JSON(errorBody{Error: "side must be bid or ask"})
	}
	n := c.QueryInt("n", defaultDepth)
	if n <= 0 || n > maxDepth {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody{Error: "n must be in [1, 500]"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), queryTimeout)
	defer cancel()
	levels, err := s.src.Depth(ctx, sym, side, n)
	switch {
	case errors.Is(err, engine.ErrUnknownSymbol):
		return c.Status(fiber.StatusNotFound).JSON(errorBody{Error: err.Error()})
	case err != nil:
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorBody{Error: err.Error()})
	}

	out := make([]LevelView, len(levels))
	for i, lvl := range levels {
		out[i] = LevelView{Price: spec.Tick.Format(lvl.Price), Qty: spec.Lot.Format(lvl.Qty)}
	}
	return c.JSON(fiber.Map{"symbol": sym, "side": side.String(), "levels": out})
}

func (s *Server) view(top domain.BookTop) TopView {
	v := TopView{
		Symbol:    top.Symbol,
		BidLevels: top.BidLevels,
		AskLevels: top.AskLevels,
		Stale:     top.Stale,
		Seq:       top.Seq,
		Ts:        int64(top.Ts),
	}
	spec, ok := s.specs[top.Symbol]
	if !ok {
		return v
	}
	v.BidTotal = spec.Lot.Format(top.BidTotal)
	v.AskTotal = spec.Lot.Format(top.AskTotal)
	if top.HasBid {
		v.Bid, v.BidQty = spec.Tick.Format(top.BidPrice), spec.Lot.Format(top.BidQty)
	}
	if top.HasAsk {
		v.Ask, v.AskQty = spec.Tick.Format(top.AskPrice), spec.Lot.Format(top.AskQty)
	}
	if spread, ok := top.Spread(); ok {
		v.Spread = spec.Tick.Format(spread)
	}
	return v
}
