package bitget

const (
	PublicWSURL = "wss://ws.bitget.com/v2/ws/public"
	RestURL     = "https://api.bitget.com"

	exchangeID = "BITGET"
)

// subscribeRequest is used for subscribe and unsubscribe.
type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

type subscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstId   string `json:"instId"`
}

// depthResponse is one push of the books channel. Action is "snapshot" for a
// full book and "update" for changed levels, where a size of "0" removes the
// level.
type depthResponse struct {
	Action string       `json:"action"`
	Arg    subscribeArg `json:"arg"`
	Data   []depthData  `json:"data"`
	Ts     int64        `json:"ts"`
}

type depthData struct {
	Asks     [][]string `json:"asks"`
	Bids     [][]string `json:"bids"`
	Checksum int64      `json:"checksum"`
	Seq      int64      `json:"seq"`
	Ts       string     `json:"ts"`
}

// eventResponse is the ack or error reply to a subscribe request.
type eventResponse struct {
	Event string       `json:"event"`
	Arg   subscribeArg `json:"arg"`
	Code  int          `json:"code"`
	Msg   string       `json:"msg"`
}

// restDepthResponse is the body of /api/v2/spot/market/orderbook.
type restDepthResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Asks [][]string `json:"asks"`
		Bids [][]string `json:"bids"`
		Ts   string     `json:"ts"`
	} `json:"data"`
}
