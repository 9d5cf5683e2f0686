package strategy

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"hyperliquid-requester/internal/advisory"
	"hyperliquid-requester/internal/config"
	"hyperliquid-requester/internal/market"
)

// Planner 将顾问参数与市场快照确定性地转化为订单计划。
type Planner struct {
	cfg      config.StrategyConfig
	slippage float64
	tif      string
	logger   *zap.Logger
}

// NewPlanner 创建订单规划器。
func NewPlanner(cfg config.StrategyConfig, exec config.ExecutionConfig, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	tif := exec.TimeInForce
	if tif == "" {
		tif = "GTC"
	}
	return &Planner{
		cfg:      cfg,
		slippage: exec.Slippage,
		tif:      tif,
		logger:   logger,
	}
}

// Build 生成订单计划。closeOnly 模式只做平仓，analysis 可以为 nil；
// 否则 analysis 必须已通过校验。
func (p *Planner) Build(snapshots []market.SymbolSnapshot, analysis *advisory.Analysis, closeOnly bool) (Plan, error) {
	plan := Plan{
		Orders:      make([]Order, 0, len(snapshots)*2),
		GeneratedAt: time.Now().UTC(),
	}

	if !closeOnly && analysis == nil {
		return Plan{}, fmt.Errorf("strategy: 缺少顾问参数，无法规划报价")
	}

	for _, snapshot := range snapshots {
		if closeOnly {
			if order, ok := p.closeOrder(snapshot); ok {
				plan.Orders = append(plan.Orders, order)
			}
			continue
		}

		params, ok := analysis.Parameters[snapshot.Symbol]
		if !ok {
			return Plan{}, fmt.Errorf("strategy: 顾问参数缺少市场 %q", snapshot.Symbol)
		}

		if params.Flatten {
			if order, exists := p.closeOrder(snapshot); exists {
				plan.Orders = append(plan.Orders, order)
			}
			continue
		}

		plan.Orders = append(plan.Orders, p.quoteOrders(snapshot, params, analysis.StrategyRecommendations)...)
	}

	return plan, nil
}

// closeOrder 为非零库存生成 reduce-only 平仓单，零库存返回 false。
func (p *Planner) closeOrder(snapshot market.SymbolSnapshot) (Order, bool) {
	if snapshot.Inventory == 0 {
		return Order{}, false
	}

	side := SideSell
	price := snapshot.MidPrice * (1 - p.slippage)
	if snapshot.Inventory < 0 {
		side = SideBuy
		price = snapshot.MidPrice * (1 + p.slippage)
	}

	size := RoundSize(math.Abs(snapshot.Inventory), snapshot.SzDecimals)
	price = RoundPrice(price)

	return Order{
		Symbol:      snapshot.Symbol,
		Kind:        KindClose,
		Side:        side,
		Price:       price,
		Size:        size,
		Notional:    price * size,
		ReduceOnly:  true,
		TimeInForce: "IOC",
		Status:      StatusPlanned,
	}, true
}

// quoteOrders 依据 Avellaneda-Stoikov 参数生成双边报价。
func (p *Planner) quoteOrders(snapshot market.SymbolSnapshot, params advisory.SymbolParameters, rec advisory.StrategyRecommendations) []Order {
	bidSpread, askSpread := Spreads(params, snapshot.Inventory, rec.MaxPosition)
	bidSpread = clamp(bidSpread, rec.MinSpread, rec.MaxSpread)
	askSpread = clamp(askSpread, rec.MinSpread, rec.MaxSpread)

	bidPrice := RoundPrice(snapshot.MidPrice * (1 - bidSpread))
	askPrice := RoundPrice(snapshot.MidPrice * (1 + askSpread))

	bidSize := RoundSize(p.positionSize(bidPrice, rec.MaxPosition, snapshot.Inventory, SideBuy), snapshot.SzDecimals)
	askSize := RoundSize(p.positionSize(askPrice, rec.MaxPosition, snapshot.Inventory, SideSell), snapshot.SzDecimals)

	p.logger.Info("报价计算",
		zap.String("symbol", snapshot.Symbol),
		zap.Float64("mid", snapshot.MidPrice),
		zap.Float64("inventory", snapshot.Inventory),
		zap.Float64("bid_spread", bidSpread),
		zap.Float64("ask_spread", askSpread),
		zap.Float64("bid", bidPrice),
		zap.Float64("ask", askPrice),
	)

	return []Order{
		p.quote(snapshot.Symbol, KindBid, SideBuy, bidPrice, bidSize),
		p.quote(snapshot.Symbol, KindAsk, SideSell, askPrice, askSize),
	}
}

func (p *Planner) quote(symbol string, kind OrderKind, side OrderSide, price, size float64) Order {
	order := Order{
		Symbol:      symbol,
		Kind:        kind,
		Side:        side,
		Price:       price,
		Size:        size,
		Notional:    price * size,
		TimeInForce: p.tif,
		Status:      StatusPlanned,
	}

	if order.Size <= 0 || order.Notional < p.cfg.MinOrderValue {
		order.Status = StatusSkipped
		order.Reason = fmt.Sprintf("名义价值 %.2f 低于最小门槛 %.2f", order.Notional, p.cfg.MinOrderValue)
	}

	return order
}

// positionSize 计算单边报价数量：按市场均分资金，每边最多使用一半，
// 同向库存越大对应方向报价越小，避免继续放大敞口。
func (p *Planner) positionSize(price, maxPosition, inventory float64, side OrderSide) float64 {
	if price <= 0 || maxPosition <= 0 {
		return 0
	}

	marketCount := len(p.cfg.Markets)
	if marketCount == 0 {
		marketCount = 1
	}
	capitalPerMarket := p.cfg.PortfolioValue / float64(marketCount)
	maxNotional := capitalPerMarket * 0.5
	maxQty := math.Min(maxNotional/price, maxPosition)

	factor := 1.0
	if (side == SideBuy && inventory > 0) || (side == SideSell && inventory < 0) {
		factor = math.Max(0.3, 1-math.Abs(inventory)/maxPosition)
	}

	return maxQty * factor
}

// Spreads 计算双边点差：基础点差 γσ²T 加减库存偏移。
func Spreads(params advisory.SymbolParameters, inventory, maxPosition float64) (bid, ask float64) {
	horizon := params.TimeHorizon / 60.0
	base := params.Gamma * params.Sigma * params.Sigma * horizon

	ratio := 0.0
	if maxPosition != 0 {
		ratio = inventory / maxPosition
	}
	skew := params.InventoryRiskWeight * ratio

	return base - skew, base + skew
}

// RoundPrice 按价格量级选择步长，与交易所的报价精度习惯一致。
func RoundPrice(price float64) float64 {
	switch {
	case price >= 10000:
		return math.Round(price/10) * 10
	case price >= 100:
		return math.Round(price)
	case price >= 10:
		return roundTo(price, 1)
	case price >= 1:
		return roundTo(price, 2)
	default:
		return roundTo(price, 4)
	}
}

// RoundSize 将数量四舍五入到市场的数量精度。
func RoundSize(size float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	return roundTo(size, decimals)
}

func roundTo(value float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(value*scale) / scale
}

func clamp(value, low, high float64) float64 {
	return math.Max(low, math.Min(value, high))
}
