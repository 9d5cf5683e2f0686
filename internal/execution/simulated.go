package execution

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hyperliquid-requester/internal/strategy"
)

// SimulatedExecutor 为干跑执行器：只记录将要提交的订单，不触达交易所。
type SimulatedExecutor struct {
	logger *zap.Logger
}

// NewSimulatedExecutor 创建干跑执行器。
func NewSimulatedExecutor(logger *zap.Logger) *SimulatedExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedExecutor{logger: logger}
}

// Execute 记录每笔订单的干跑结果。
func (e *SimulatedExecutor) Execute(ctx context.Context, orders []strategy.Order) (Result, error) {
	result := Result{
		Outcomes:   make([]Outcome, 0, len(orders)),
		DryRun:     true,
		ExecutedAt: time.Now().UTC(),
	}

	for _, order := range orders {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		e.logger.Info("干跑订单",
			zap.String("symbol", order.Symbol),
			zap.String("kind", string(order.Kind)),
			zap.String("side", string(order.Side)),
			zap.Float64("price", order.Price),
			zap.Float64("size", order.Size),
			zap.Float64("notional", order.Notional),
			zap.Bool("reduce_only", order.ReduceOnly),
		)
		result.Outcomes = append(result.Outcomes, Outcome{
			Order:  order,
			Status: StatusDryRun,
		})
	}

	return result, nil
}
