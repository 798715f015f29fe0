package msg

// LevelMsg is one [price, size] depth level in a tick message. A size of 0
// removes the level.
type LevelMsg struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// TickMsg represents a normalized level-2 market data update.
type TickMsg struct {
	EventID      string     `json:"event_id"`
	Symbol       string     `json:"symbol"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Last         float64    `json:"last"`
	Volume       float64    `json:"volume"`
	Bids         []LevelMsg `json:"bids,omitempty"`
	Asks         []LevelMsg `json:"asks,omitempty"`
	TsUnixMillis int64      `json:"ts_unix_millis"`
}

// FillMsg represents an executed simulated order.
type FillMsg struct {
	EventID      string  `json:"event_id"`
	OrderID      string  `json:"order_id"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"` // "BUY" or "SELL"
	Qty          float64 `json:"qty"`
	Price        float64 `json:"price"`
	ImpactBps    float64 `json:"impact_bps"`
	Capped       bool    `json:"capped"`
	TsUnixMillis int64   `json:"ts_unix_millis"`
}

// EquityPointMsg represents one equity-curve sample.
type EquityPointMsg struct {
	EventID       string  `json:"event_id"`
	Equity        float64 `json:"equity"`
	Cash          float64 `json:"cash"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TsUnixMillis  int64   `json:"ts_unix_millis"`
}

// OrderRejectedMsg represents an order moved to the rejected state.
type OrderRejectedMsg struct {
	EventID      string `json:"event_id"`
	OrderID      string `json:"order_id"`
	Symbol       string `json:"symbol"`
	Reason       string `json:"reason"`
	TsUnixMillis int64  `json:"ts_unix_millis"`
}
