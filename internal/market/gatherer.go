package market

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hyperliquid-requester/internal/config"
	"hyperliquid-requester/internal/exchange"
)

const (
	orderBookDepth = 20
	candleLimit    = 25
)

// DataClient 抽象快照采集所需的交易所只读能力。
type DataClient interface {
	FetchOrderBook(ctx context.Context, symbol string, depth int64) (exchange.OrderBookSnapshot, error)
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int64) ([]exchange.Candle, error)
	FetchPositions(ctx context.Context) ([]exchange.Position, error)
	AmountPrecision(symbol string) (int, bool)
}

// Gatherer 为每个配置市场采集中间价、精度与带符号库存。
type Gatherer struct {
	client DataClient
	cfg    config.StrategyConfig
	logger *zap.Logger
}

// NewGatherer 创建快照采集器。
func NewGatherer(client DataClient, cfg config.StrategyConfig, logger *zap.Logger) *Gatherer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gatherer{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Gather 采集全部配置市场的快照。中间价或持仓不可用即失败，
// 涨跌幅与波动率为可选指标，采集失败时置零继续。
func (g *Gatherer) Gather(ctx context.Context) ([]SymbolSnapshot, error) {
	symbols := g.cfg.Markets

	books := make([]exchange.OrderBookSnapshot, len(symbols))
	candles := make([][]exchange.Candle, len(symbols))
	var positions []exchange.Position

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		result, err := g.client.FetchPositions(groupCtx)
		if err != nil {
			return fmt.Errorf("%w: 获取持仓失败: %v", ErrDataUnavailable, err)
		}
		positions = result
		return nil
	})

	for i, symbol := range symbols {
		group.Go(func() error {
			book, err := g.client.FetchOrderBook(groupCtx, symbol, orderBookDepth)
			if err != nil {
				return fmt.Errorf("%w: 获取 %s 订单簿失败: %v", ErrDataUnavailable, symbol, err)
			}
			books[i] = book
			return nil
		})

		group.Go(func() error {
			data, err := g.client.FetchCandles(groupCtx, symbol, exchange.Timeframe1h, candleLimit)
			if err != nil {
				// 涨跌幅/波动率是提示词的补充信息，缺失不终止周期。
				g.logger.Warn("获取K线失败，跳过变化指标",
					zap.String("symbol", symbol),
					zap.Error(err),
				)
				return nil
			}
			candles[i] = data
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	inventory := buildInventoryMap(positions)

	snapshots := make([]SymbolSnapshot, 0, len(symbols))
	for i, symbol := range symbols {
		mid := books[i].Mid()
		if mid <= 0 {
			return nil, fmt.Errorf("%w: %s 无有效中间价", ErrDataUnavailable, symbol)
		}

		snapshot := SymbolSnapshot{
			Symbol:      symbol,
			MidPrice:    mid,
			SzDecimals:  g.sizeDecimals(symbol),
			Inventory:   inventory[normalizeSymbol(symbol)],
			Change24h:   change24h(candles[i]),
			RealizedVol: realizedVolatility(candles[i]),
		}
		snapshots = append(snapshots, snapshot)

		g.logger.Info("市场快照",
			zap.String("symbol", snapshot.Symbol),
			zap.Float64("mid", snapshot.MidPrice),
			zap.Float64("inventory", snapshot.Inventory),
			zap.Int("sz_decimals", snapshot.SzDecimals),
			zap.Float64("change_24h", snapshot.Change24h),
			zap.Float64("realized_vol", snapshot.RealizedVol),
		)
	}

	return snapshots, nil
}

// sizeDecimals 优先使用交易所市场元数据的数量精度，
// 元数据缺失时退化为配置覆盖与默认值。
func (g *Gatherer) sizeDecimals(symbol string) int {
	if decimals, ok := g.client.AmountPrecision(symbol); ok {
		return decimals
	}
	if decimals, ok := g.cfg.SizeDecimals[symbol]; ok {
		return decimals
	}
	if g.cfg.DefaultDecimals > 0 {
		return g.cfg.DefaultDecimals
	}
	return 5
}

func buildInventoryMap(positions []exchange.Position) map[string]float64 {
	inventory := make(map[string]float64, len(positions))
	for _, pos := range positions {
		if pos.Symbol == "" {
			continue
		}
		inventory[normalizeSymbol(pos.Symbol)] = pos.Size
	}
	return inventory
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func change24h(candles []exchange.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	first := candles[0].Close
	last := candles[len(candles)-1].Close
	if first <= 0 {
		return 0
	}
	return (last - first) / first * 100
}
