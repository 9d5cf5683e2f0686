package app

import (
	"context"

	"go.uber.org/zap"

	"hyperliquid-requester/internal/advisory"
	"hyperliquid-requester/internal/execution"
	"hyperliquid-requester/internal/market"
	"hyperliquid-requester/internal/monitor"
	"hyperliquid-requester/internal/strategy"
)

// snapshotSource 抽象快照采集阶段。
type snapshotSource interface {
	Gather(ctx context.Context) ([]market.SymbolSnapshot, error)
}

// equitySource 抽象账户权益查询，汇报阶段使用。
type equitySource interface {
	FetchEquity(ctx context.Context) (float64, error)
}

// cycle 按固定顺序驱动一次做市周期：
// 采集 → (仅平仓时跳过顾问) → 请求参数 → 校验 → 规划 → 执行 → 汇报。
// 任一阶段失败即终止本周期；单笔订单失败只计入结果。
type cycle struct {
	gatherer    snapshotSource
	primary     advisory.Provider
	fallback    advisory.Provider
	planner     *strategy.Planner
	executor    execution.Trader
	equity      equitySource
	monitor     *monitor.Service
	logger      *zap.Logger
	constraints advisory.Constraints
	portfolio   float64
	closeOnly   bool
	dryRun      bool
	provider    string
}

// Run 执行一次完整周期。
func (c *cycle) Run(ctx context.Context) error {
	c.logger.Info("开始 Avellaneda-Stoikov 周期",
		zap.Bool("dry_run", c.dryRun),
		zap.Bool("close_only", c.closeOnly),
	)
	c.monitor.RecordCycleStart(ctx, monitor.CycleStartPayload{
		DryRun:    c.dryRun,
		CloseOnly: c.closeOnly,
		Provider:  c.provider,
	})

	snapshots, err := c.gatherer.Gather(ctx)
	if err != nil {
		c.monitor.RecordError(ctx, "采集市场快照失败", err, nil)
		return err
	}
	c.monitor.RecordSnapshots(ctx, snapshots)

	var analysis *advisory.Analysis
	if !c.closeOnly {
		req := advisory.Request{
			Snapshots:   snapshots,
			Constraints: c.constraints,
		}

		var providerName string
		analysis, providerName, err = c.fetchAnalysis(ctx, req)
		if err != nil {
			c.monitor.RecordError(ctx, "获取顾问参数失败", err, nil)
			return err
		}

		if err = analysis.Validate(req.Symbols(), c.constraints); err != nil {
			c.monitor.RecordError(ctx, "顾问回复校验失败", err, nil)
			return err
		}
		c.monitor.RecordAdvisory(ctx, providerName, *analysis)

		rec := analysis.StrategyRecommendations
		c.logger.Info("顾问参数已就绪",
			zap.String("provider", providerName),
			zap.String("risk_level", analysis.RiskAssessment.Level),
			zap.Float64("min_spread_pct", rec.MinSpread*100),
			zap.Float64("max_spread_pct", rec.MaxSpread*100),
			zap.Float64("max_position", rec.MaxPosition),
		)
	}

	plan, err := c.planner.Build(snapshots, analysis, c.closeOnly)
	if err != nil {
		c.monitor.RecordError(ctx, "生成订单计划失败", err, nil)
		return err
	}
	c.monitor.RecordPlan(ctx, plan)

	for _, skipped := range plan.Skipped() {
		c.logger.Warn("订单低于最小名义价值，跳过",
			zap.String("symbol", skipped.Symbol),
			zap.String("kind", string(skipped.Kind)),
			zap.Float64("notional", skipped.Notional),
		)
	}

	result, err := c.executor.Execute(ctx, plan.Submittable())
	if err != nil {
		c.monitor.RecordError(ctx, "执行订单计划失败", err, nil)
		return err
	}
	c.monitor.RecordExecution(ctx, result)

	// 账户权益仅用于汇报对账，查询失败不影响周期结果。
	if c.equity != nil {
		if equity, equityErr := c.equity.FetchEquity(ctx); equityErr != nil {
			c.logger.Warn("获取账户权益失败", zap.Error(equityErr))
		} else {
			c.logger.Info("账户权益",
				zap.Float64("account_value", equity),
				zap.Float64("configured_portfolio", c.portfolio),
			)
		}
	}

	c.logger.Info("周期完成",
		zap.Int("placed", result.Submitted()),
		zap.Int("failed", result.Failed()),
		zap.Int("skipped", len(plan.Skipped())),
		zap.Bool("dry_run", c.dryRun),
	)

	return nil
}

// fetchAnalysis 先调用主顾问后端，失败且存在回退后端时再尝试一次。
func (c *cycle) fetchAnalysis(ctx context.Context, req advisory.Request) (*advisory.Analysis, string, error) {
	analysis, err := c.primary.FetchAnalysis(ctx, req)
	if err == nil {
		return analysis, c.primary.Name(), nil
	}

	if c.fallback == nil {
		return nil, "", err
	}

	c.logger.Warn("主顾问后端失败，尝试回退",
		zap.String("primary", c.primary.Name()),
		zap.String("fallback", c.fallback.Name()),
		zap.Error(err),
	)

	analysis, fallbackErr := c.fallback.FetchAnalysis(ctx, req)
	if fallbackErr != nil {
		return nil, "", fallbackErr
	}
	return analysis, c.fallback.Name(), nil
}
