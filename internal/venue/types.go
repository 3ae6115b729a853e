package venue

// Wire-level constants of the venue bridge. They mirror the terminal's own
// trade-request enums.
const (
	ActionDeal = 1

	OrderTypeBuy  = 0
	OrderTypeSell = 1

	OrderTimeGTC      = 0
	OrderFillingIOC   = 1
	RetcodeDone       = 10009
	RetcodeDonePartly = 10010
)

// Credentials authenticate the bridge against a trading account.
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

// LoginResponse is returned by POST /login.
type LoginResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// SymbolInfo carries the trading rules of a symbol.
type SymbolInfo struct {
	Name       string  `json:"name"`
	Visible    bool    `json:"visible"`
	Digits     int     `json:"digits"`
	VolumeMin  float64 `json:"volume_min"`
	VolumeMax  float64 `json:"volume_max"`
	VolumeStep float64 `json:"volume_step"`
}

// Rate is one OHLC bar as returned by GET /rates. Time is a pointer so a
// missing timestamp column can be told apart from the epoch.
type Rate struct {
	Time       *int64  `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	TickVolume float64 `json:"tick_volume"`
}

// TickResponse is the latest quote for a symbol.
type TickResponse struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Time int64   `json:"time"`
}

// PositionInfo is one open position as reported by the venue.
type PositionInfo struct {
	Ticket    uint64  `json:"ticket"`
	Symbol    string  `json:"symbol"`
	Type      int     `json:"type"`
	Volume    float64 `json:"volume"`
	PriceOpen float64 `json:"price_open"`
	SL        float64 `json:"sl"`
	TP        float64 `json:"tp"`
	Profit    float64 `json:"profit"`
	Magic     int64   `json:"magic"`
	Comment   string  `json:"comment"`
}

// AccountInfo summarises the trading account.
type AccountInfo struct {
	Login    int64   `json:"login"`
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	Margin   float64 `json:"margin"`
	Currency string  `json:"currency"`
}

// TradeRequest is the body of POST /orders.
type TradeRequest struct {
	Action      int     `json:"action"`
	Symbol      string  `json:"symbol"`
	Volume      float64 `json:"volume"`
	Type        int     `json:"type"`
	Price       float64 `json:"price"`
	SL          float64 `json:"sl,omitempty"`
	TP          float64 `json:"tp,omitempty"`
	Deviation   int     `json:"deviation"`
	Magic       int64   `json:"magic"`
	Comment     string  `json:"comment,omitempty"`
	Position    uint64  `json:"position,omitempty"`
	TypeTime    int     `json:"type_time"`
	TypeFilling int     `json:"type_filling"`
}

// TradeResult is the response of POST /orders.
type TradeResult struct {
	Retcode  int     `json:"retcode"`
	Comment  string  `json:"comment"`
	Order    uint64  `json:"order"`
	Position uint64  `json:"position"`
	Deal     uint64  `json:"deal"`
	Price    float64 `json:"price"`
	Volume   float64 `json:"volume"`
}

// Succeeded reports whether the venue accepted the request.
func (r *TradeResult) Succeeded() bool {
	return r.Retcode == RetcodeDone || r.Retcode == RetcodeDonePartly
}
