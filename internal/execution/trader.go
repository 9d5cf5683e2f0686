package execution

import (
	"context"

	"hyperliquid-requester/internal/strategy"
)

// Trader 抽象执行器接口，方便切换真实或干跑执行。
type Trader interface {
	Execute(ctx context.Context, orders []strategy.Order) (Result, error)
}

var (
	_ Trader = (*Executor)(nil)
	_ Trader = (*SimulatedExecutor)(nil)
)
