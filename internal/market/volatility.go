package market

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"hyperliquid-requester/internal/exchange"
)

// realizedVolatility 基于小时收盘价的对数收益估算日化波动率。
func realizedVolatility(candles []exchange.Candle) float64 {
	if len(candles) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		curr := candles[i].Close
		if prev <= 0 || curr <= 0 {
			continue
		}
		returns = append(returns, math.Log(curr/prev))
	}
	if len(returns) < 2 {
		return 0
	}

	stddev := talib.StdDev(returns, len(returns), 1.0)
	sigma := stddev[len(stddev)-1]
	if math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return 0
	}

	// 小时收益标准差按 sqrt(24) 换算为日度量级。
	return sigma * math.Sqrt(24)
}
