package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"hyperliquid-requester/internal/exchange"
	"hyperliquid-requester/internal/strategy"
)

type orderClient interface {
	CreateLimitOrder(symbol string, side string, amount float64, price float64, options ...ccxt.CreateLimitOrderOptions) (ccxt.Order, error)
}

// Executor 将订单计划逐笔提交到交易所。
// 单笔失败只记录到结果中，不中断其余订单的提交。
type Executor struct {
	client   orderClient
	logger   *zap.Logger
	maxRetry int
}

// NewExecutor 创建实盘执行器。
func NewExecutor(client orderClient, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		client:   client,
		logger:   logger,
		maxRetry: 3,
	}
}

// Execute 逐笔提交订单并汇总结果。
func (e *Executor) Execute(ctx context.Context, orders []strategy.Order) (Result, error) {
	result := Result{
		Outcomes:   make([]Outcome, 0, len(orders)),
		ExecutedAt: time.Now().UTC(),
	}

	for _, order := range orders {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		orderID, err := e.submitOrder(ctx, order)
		if err != nil {
			e.logger.Error("下单失败",
				zap.String("symbol", order.Symbol),
				zap.String("kind", string(order.Kind)),
				zap.String("side", string(order.Side)),
				zap.Float64("price", order.Price),
				zap.Float64("size", order.Size),
				zap.Error(err),
			)
			result.Outcomes = append(result.Outcomes, Outcome{
				Order:  order,
				Status: StatusFailed,
				Error:  err.Error(),
			})
			continue
		}

		e.logger.Info("订单已提交",
			zap.String("symbol", order.Symbol),
			zap.String("kind", string(order.Kind)),
			zap.String("side", string(order.Side)),
			zap.Float64("price", order.Price),
			zap.Float64("size", order.Size),
			zap.String("order_id", orderID),
		)
		result.Outcomes = append(result.Outcomes, Outcome{
			Order:   order,
			Status:  StatusSubmitted,
			OrderID: orderID,
		})
	}

	return result, nil
}

func (e *Executor) submitOrder(ctx context.Context, order strategy.Order) (string, error) {
	params := map[string]interface{}{
		"timeInForce": strings.ToLower(order.TimeInForce),
	}
	if order.ReduceOnly {
		params["reduceOnly"] = true
	}

	var err error
	for attempt := 1; attempt <= e.maxRetry; attempt++ {
		var placed ccxt.Order
		placed, err = e.client.CreateLimitOrder(
			order.Symbol,
			string(order.Side),
			order.Size,
			order.Price,
			ccxt.WithCreateLimitOrderParams(params),
		)
		if err == nil {
			return orderID(placed), nil
		}

		if !exchange.IsRetryable(err) {
			return "", err
		}

		wait := time.Duration(attempt) * time.Second
		e.logger.Warn("下单失败，准备重试",
			zap.String("symbol", order.Symbol),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}

	return "", fmt.Errorf("execution: 重试后仍下单失败: %w", err)
}

func orderID(order ccxt.Order) string {
	if order.Id == nil {
		return ""
	}
	return *order.Id
}
