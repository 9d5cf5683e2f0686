package exchange

import "time"

const (
	// Timeframe1h 用于计算24小时涨跌与近期波动率。
	Timeframe1h = "1h"
)

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// OrderBookLevel 表示盘口档位。
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// OrderBookSnapshot 为订单簿快照。
type OrderBookSnapshot struct {
	Symbol    string
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
}

// Mid 返回盘口中间价，缺失一侧时退化为另一侧最优价。
func (s OrderBookSnapshot) Mid() float64 {
	switch {
	case len(s.Bids) > 0 && len(s.Asks) > 0:
		return (s.Bids[0].Price + s.Asks[0].Price) / 2
	case len(s.Bids) > 0:
		return s.Bids[0].Price
	case len(s.Asks) > 0:
		return s.Asks[0].Price
	default:
		return 0
	}
}

// Position 表示单个市场的带符号持仓，多头为正、空头为负。
type Position struct {
	Symbol        string
	Size          float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnl float64
	Notional      float64
	Timestamp     time.Time
}
