package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"hyperliquid-requester/internal/app"
	"hyperliquid-requester/internal/config"
	"hyperliquid-requester/internal/log"
	"hyperliquid-requester/internal/store"
)

func main() {
	var (
		configPath       string
		execute          bool
		closeOnly        bool
		analysisProvider string
	)
	flag.StringVar(&configPath, "config", "", "可选的 YAML 配置文件路径，默认仅读取环境变量")
	flag.BoolVar(&execute, "execute", false, "提交真实订单，默认干跑")
	flag.BoolVar(&closeOnly, "close-only", false, "仅平掉现有仓位，不请求新报价")
	flag.StringVar(&analysisProvider, "analysis-provider", "", "顾问后端: auto|agent|openai，默认取配置")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	provider := analysisProvider
	if provider == "" {
		provider = cfg.App.AnalysisProvider
	}
	if !closeOnly {
		if err := cfg.ValidateAdvisory(provider); err != nil {
			fmt.Fprintf(os.Stderr, "顾问配置校验失败: %v\n", err)
			os.Exit(1)
		}
	}
	if execute {
		if err := cfg.ValidateTrading(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	var eventStore *store.Store
	if cfg.Database.Enabled() {
		eventStore, err = store.NewSQLite(cfg.Database)
		if err != nil {
			logger.Error("初始化数据库失败", zap.Error(err))
			os.Exit(1)
		}
		defer func() {
			if closeErr := eventStore.Close(); closeErr != nil {
				logger.Warn("关闭数据库失败", zap.Error(closeErr))
			}
		}()
	}

	requesterApp := app.New(cfg, logger, eventStore, app.Options{
		Execute:          execute,
		CloseOnly:        closeOnly,
		AnalysisProvider: provider,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := requesterApp.Run(ctx); err != nil {
		logger.Error("周期执行失败", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	logger.Info("周期执行成功")
}
