package market

import "errors"

// ErrDataUnavailable 表示必需的市场数据缺失，本周期必须终止。
var ErrDataUnavailable = errors.New("market data unavailable")

// SymbolSnapshot 为单个市场在本周期内的不可变快照。
// JSON 字段名与顾问提示词中的命名保持一致。
type SymbolSnapshot struct {
	Symbol      string  `json:"symbol"`
	MidPrice    float64 `json:"midPrice"`
	SzDecimals  int     `json:"sizeDecimals"`
	Inventory   float64 `json:"inventory"`
	Change24h   float64 `json:"change24h"`
	RealizedVol float64 `json:"realizedVol"`
}
