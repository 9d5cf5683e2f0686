package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"hyperliquid-requester/internal/advisory"
	"hyperliquid-requester/internal/config"
	"hyperliquid-requester/internal/exchange"
	"hyperliquid-requester/internal/execution"
	"hyperliquid-requester/internal/market"
	"hyperliquid-requester/internal/monitor"
	"hyperliquid-requester/internal/store"
	"hyperliquid-requester/internal/strategy"
)

// Options 为命令行层传入的运行参数。
type Options struct {
	Execute          bool
	CloseOnly        bool
	AnalysisProvider string
}

// App 聚合核心依赖并驱动单次做市周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	opts   Options
}

// New 创建 App 实例。store 可为 nil（关闭事件记录）。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store, opts Options) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		opts:   opts,
	}
}

// Run 组装流水线并执行恰好一个周期，跨周期调度由外部 cron 负责。
func (a *App) Run(ctx context.Context) error {
	providerName := a.opts.AnalysisProvider
	if providerName == "" {
		providerName = a.cfg.App.AnalysisProvider
	}
	providerName = strings.ToLower(providerName)

	a.logger.Info("做市周期已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("network", a.cfg.Hyperliquid.Network),
		zap.Strings("markets", a.cfg.Strategy.Markets),
		zap.String("analysis_provider", providerName),
		zap.Bool("execute", a.opts.Execute),
		zap.Bool("close_only", a.opts.CloseOnly),
	)

	monitorSvc, err := monitor.NewService(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化监控服务失败: %w", err)
	}

	exClient, err := exchange.NewClient(a.cfg.Hyperliquid, a.logger)
	if err != nil {
		return fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	var trader execution.Trader
	if a.opts.Execute {
		if !exClient.CanTrade() {
			return fmt.Errorf("实盘模式需要配置 hyperliquid.private_key")
		}
		trader = execution.NewExecutor(exClient.Raw(), a.logger)
	} else {
		a.logger.Info("执行器处于干跑模式")
		trader = execution.NewSimulatedExecutor(a.logger)
	}

	var primary, fallback advisory.Provider
	if !a.opts.CloseOnly {
		primary, fallback, err = advisory.BuildProvider(providerName, a.cfg.Agent, a.cfg.OpenAI, a.logger)
		if err != nil {
			return fmt.Errorf("初始化顾问后端失败: %w", err)
		}
	}

	c := &cycle{
		gatherer:    market.NewGatherer(exClient, a.cfg.Strategy, a.logger),
		primary:     primary,
		fallback:    fallback,
		planner:     strategy.NewPlanner(a.cfg.Strategy, a.cfg.Execution, a.logger),
		executor:    trader,
		equity:      exClient,
		monitor:     monitorSvc,
		logger:      a.logger,
		constraints: advisory.DefaultConstraints(),
		portfolio:   a.cfg.Strategy.PortfolioValue,
		closeOnly:   a.opts.CloseOnly,
		dryRun:      !a.opts.Execute,
		provider:    providerName,
	}

	return c.Run(ctx)
}
