package bitget

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ladder_go/internal/book"
	"ladder_go/internal/event"
	"ladder_go/internal/infra"
	"ladder_go/pkg/quant"
)

// RestClient reads public market data over HTTP.
type RestClient struct {
	baseURL string
	http    *http.Client
}

// NewRestClient creates a client for baseURL, or the public endpoint if empty.
func NewRestClient(baseURL string) *RestClient {
	if baseURL == "" {
		baseURL = RestURL
	}
	return &RestClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchDepth loads up to limit levels per side of a spot book as a snapshot
// event. The caller owns the event and should release it.
func (c *RestClient) FetchDepth(ctx context.Context, symbol string, limit int, spec book.Spec) (*event.DepthEvent, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("type", "step0")
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v2/spot/market/orderbook?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", infra.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch depth %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch depth %s: http %d", symbol, resp.StatusCode)
	}

	var body restDepthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode depth %s: %w", symbol, err)
	}
	if body.Code != "00000" {
		return nil, fmt.Errorf("fetch depth %s: code %s: %s", symbol, body.Code, body.Msg)
	}

	ev := event.AcquireDepthEvent()
	ev.Symbol = symbol
	ev.Exchange = exchangeID
	ev.Snapshot = true
	if ts, err := quant.ParseTimeStamp(body.Data.Ts); err == nil {
		ev.Ts = ts
	}
	if ev.Bids, err = appendLevels(ev.Bids, body.Data.Bids, spec); err != nil {
		event.ReleaseDepthEvent(ev)
		return nil, fmt.Errorf("depth %s bids: %w", symbol, err)
	}
	if ev.Asks, err = appendLevels(ev.Asks, body.Data.Asks, spec); err != nil {
		event.ReleaseDepthEvent(ev)
		return nil, fmt.Errorf("depth %s asks: %w", symbol, err)
	}
	return ev, nil
}
