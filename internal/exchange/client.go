package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"hyperliquid-requester/internal/config"
)

// Client 封装 Hyperliquid 访问并实现重试机制。
// 未配置 private_key 时仅支持只读调用，下单需要完整凭证。
type Client struct {
	cfg      config.HyperliquidConfig
	logger   *zap.Logger
	exchange *ccxt.Hyperliquid

	marketsMu     sync.Mutex
	marketsLoaded bool
	markets       map[string]ccxt.MarketInterface
}

// NewClient 构造 Hyperliquid 客户端。
func NewClient(cfg config.HyperliquidConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Wallet == "" {
		return nil, errors.New("exchange: wallet_address 不能为空")
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"walletAddress":   cfg.Wallet,
	}
	if cfg.PrivateKey != "" {
		userConfig["privateKey"] = cfg.PrivateKey
	}

	ex := ccxt.NewHyperliquid(userConfig)
	if strings.EqualFold(cfg.Network, "testnet") {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}, nil
}

// Raw 返回底层 ccxt 客户端，供执行器直接下单。
func (c *Client) Raw() *ccxt.Hyperliquid {
	return c.exchange
}

// CanTrade 返回是否具备签名下单能力。
func (c *Client) CanTrade() bool {
	return c.cfg.PrivateKey != ""
}

// FetchOrderBook 获取指定市场的订单簿快照。
func (c *Client) FetchOrderBook(ctx context.Context, symbol string, depth int64) (OrderBookSnapshot, error) {
	if depth <= 0 {
		depth = 20
	}

	var raw ccxt.OrderBook
	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_order_book_%s", symbol), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		orderBook, err := c.exchange.FetchOrderBook(
			symbol,
			ccxt.WithFetchOrderBookLimit(depth),
		)
		if err != nil {
			return err
		}

		raw = orderBook
		return nil
	})
	if err != nil {
		return OrderBookSnapshot{}, err
	}

	return convertOrderBook(symbol, raw), nil
}

// FetchCandles 获取指定周期的K线数据。
func (c *Client) FetchCandles(ctx context.Context, symbol, timeframe string, limit int64) ([]Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV
	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s_%s", symbol, timeframe), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := c.exchange.FetchOHLCV(
			symbol,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVLimit(limit),
		)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return candles, nil
}

// FetchPositions 获取全部带符号持仓，空仓不返回。
func (c *Client) FetchPositions(ctx context.Context) ([]Position, error) {
	var raw []ccxt.Position
	err := c.callWithRetry(ctx, "fetch_positions", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := c.exchange.FetchPositions()
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	positions := make([]Position, 0, len(raw))
	for _, rawPos := range raw {
		symbol := derefString(rawPos.Symbol)
		if symbol == "" {
			continue
		}

		size := signedSize(rawPos)
		if size == 0 {
			continue
		}

		positions = append(positions, Position{
			Symbol:        symbol,
			Size:          size,
			EntryPrice:    derefFloat(rawPos.EntryPrice),
			MarkPrice:     derefFloat(rawPos.MarkPrice),
			UnrealizedPnl: derefFloat(rawPos.UnrealizedPnl),
			Notional:      derefFloat(rawPos.Notional),
			Timestamp:     now,
		})
	}

	return positions, nil
}

// FetchEquity 获取账户权益（accountValue）。只读查询，无需私钥。
func (c *Client) FetchEquity(ctx context.Context) (float64, error) {
	var raw ccxt.Balances
	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		result, err := c.exchange.FetchBalance()
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return 0, err
	}

	equity := accountEquity(raw)
	if equity <= 0 {
		return 0, errors.New("exchange: 账户权益不可用")
	}
	return equity, nil
}

// accountEquity 优先取 Hyperliquid marginSummary.accountValue，
// 缺失时退化为稳定币总余额。
func accountEquity(balances ccxt.Balances) float64 {
	if balances.Info != nil {
		if summary, ok := balances.Info["marginSummary"].(map[string]interface{}); ok {
			if v := parseNumeric(summary["accountValue"]); v > 0 {
				return v
			}
		}
	}

	if balances.Total != nil {
		for _, code := range []string{"USDC", "USD", "USDT"} {
			if total, ok := balances.Total[code]; ok && total != nil && *total > 0 {
				return *total
			}
		}
	}

	return 0
}

// signedSize 解析带符号仓位数量。优先使用 Hyperliquid 原始 szi 字段，
// 缺失时退化为 contracts 加方向符号。
func signedSize(pos ccxt.Position) float64 {
	if pos.Info != nil {
		if positionInfo, ok := pos.Info["position"].(map[string]interface{}); ok {
			if szi := parseNumeric(positionInfo["szi"]); szi != 0 {
				return szi
			}
		}
	}

	size := derefFloat(pos.Contracts)
	if strings.EqualFold(derefString(pos.Side), "short") {
		size = -size
	}
	return size
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	// 采集阶段会从多个 goroutine 并发进入，读写都必须在锁内。
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	markets, err := c.exchange.LoadMarkets()
	if err != nil {
		return err
	}

	c.markets = markets
	c.marketsLoaded = true
	c.logger.Debug("已完成市场元数据加载", zap.Int("markets", len(markets)))
	return nil
}

// AmountPrecision 返回市场元数据中的数量精度（小数位数）。
// 优先读取 Hyperliquid 原始 szDecimals 字段，其次换算 ccxt 精度；
// 市场未加载或元数据缺失时返回 false，由调用方决定兜底值。
func (c *Client) AmountPrecision(symbol string) (int, bool) {
	c.marketsMu.Lock()
	market, ok := c.markets[symbol]
	c.marketsMu.Unlock()
	if !ok {
		return 0, false
	}

	if market.Info != nil {
		if raw, exists := market.Info["szDecimals"]; exists {
			return int(parseNumeric(raw)), true
		}
	}
	if market.Precision.Amount != nil {
		return decimalsFromPrecision(*market.Precision.Amount)
	}

	return 0, false
}

// decimalsFromPrecision 将 ccxt 的数量精度换算为小数位数，
// 兼容步长（0.001）与位数（3）两种表达。
func decimalsFromPrecision(amount float64) (int, bool) {
	switch {
	case amount <= 0:
		return 0, false
	case amount < 1:
		return int(math.Round(-math.Log10(amount))), true
	case amount == 1:
		return 0, true
	default:
		return int(math.Round(amount)), true
	}
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}

func convertOrderBook(symbol string, ob ccxt.OrderBook) OrderBookSnapshot {
	bids := make([]OrderBookLevel, 0, len(ob.Bids))
	for _, level := range ob.Bids {
		if len(level) < 2 {
			continue
		}
		bids = append(bids, OrderBookLevel{
			Price:  level[0],
			Amount: level[1],
		})
	}

	asks := make([]OrderBookLevel, 0, len(ob.Asks))
	for _, level := range ob.Asks {
		if len(level) < 2 {
			continue
		}
		asks = append(asks, OrderBookLevel{
			Price:  level[0],
			Amount: level[1],
		})
	}

	var ts time.Time
	if ob.Timestamp != nil {
		ts = time.UnixMilli(*ob.Timestamp).UTC()
	} else {
		ts = time.Now().UTC()
	}

	return OrderBookSnapshot{
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: ts,
	}
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func parseNumeric(value interface{}) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return v
	case *float64:
		if v != nil {
			return *v
		}
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return 0
}
