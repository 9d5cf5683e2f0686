package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了一次做市周期所需的全部配置项。
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Hyperliquid HyperliquidConfig `mapstructure:"hyperliquid"`
	Agent       AgentConfig       `mapstructure:"agent"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Strategy    StrategyConfig    `mapstructure:"strategy"`
	Execution   ExecutionConfig   `mapstructure:"execution"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment      string `mapstructure:"environment"`
	AnalysisProvider string `mapstructure:"analysis_provider"`
}

// HyperliquidConfig 描述 Hyperliquid 连接信息。
type HyperliquidConfig struct {
	Network    string        `mapstructure:"network"`
	Wallet     string        `mapstructure:"wallet_address"`
	PrivateKey string        `mapstructure:"private_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Retry      RetryConfig   `mapstructure:"retry"`
}

// RetryConfig 统一控制交易所调用的重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// AgentConfig 描述 agent.market 顾问服务的调用参数。
type AgentConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	MaxCredit       float64       `mapstructure:"max_credit_per_instance"`
	InstanceTimeout int           `mapstructure:"instance_timeout"`
	RewardTimeout   int           `mapstructure:"gen_reward_timeout"`
	PercentReward   float64       `mapstructure:"percentage_reward"`
	SideEffectFree  bool          `mapstructure:"side_effect_free"`
	MaxProviders    int           `mapstructure:"max_providers"`
	ContestMode     bool          `mapstructure:"contest_mode"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxPolls        int           `mapstructure:"max_polls"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
}

// OpenAIConfig 描述备选顾问后端的大模型调用参数。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StrategyConfig 管理报价规模与市场列表。
type StrategyConfig struct {
	PortfolioValue  float64        `mapstructure:"portfolio_value"`
	MinOrderValue   float64        `mapstructure:"min_order_value"`
	Markets         []string       `mapstructure:"markets"`
	SizeDecimals    map[string]int `mapstructure:"size_decimals"`
	DefaultDecimals int            `mapstructure:"default_size_decimals"`
}

// ExecutionConfig 控制下单行为。
type ExecutionConfig struct {
	Slippage    float64 `mapstructure:"slippage"`
	TimeInForce string  `mapstructure:"time_in_force"`
}

// DatabaseConfig 管理周期事件存储，path 为空时关闭记录。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Enabled 返回是否启用周期事件存储。
func (d DatabaseConfig) Enabled() bool {
	return d.InMemory || d.Path != ""
}

// Validate 对只读运行所需的配置进行校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	switch strings.ToLower(c.App.AnalysisProvider) {
	case "auto", "agent", "openai":
	default:
		err = multierr.Append(err, fmt.Errorf("app.analysis_provider 取值非法: %s", c.App.AnalysisProvider))
	}

	network := strings.ToLower(c.Hyperliquid.Network)
	if network != "mainnet" && network != "testnet" {
		err = multierr.Append(err, fmt.Errorf("hyperliquid.network 仅支持 mainnet/testnet: %s", c.Hyperliquid.Network))
	}
	if c.Hyperliquid.Wallet == "" {
		err = multierr.Append(err, errors.New("hyperliquid.wallet_address 不能为空"))
	}
	if c.Hyperliquid.Timeout <= 0 {
		err = multierr.Append(err, errors.New("hyperliquid.timeout 必须大于0"))
	}
	if c.Hyperliquid.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("hyperliquid.retry.max_attempts 必须大于0"))
	}
	if c.Hyperliquid.Retry.MinDelay <= 0 || c.Hyperliquid.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("hyperliquid.retry.delay 必须为正"))
	}
	if c.Hyperliquid.Retry.MinDelay > c.Hyperliquid.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("hyperliquid.retry.min_delay 不能大于 max_delay"))
	}

	if c.Agent.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("agent.poll_interval 必须大于0"))
	}
	if c.Agent.MaxPolls <= 0 {
		err = multierr.Append(err, errors.New("agent.max_polls 必须大于0"))
	}
	if c.Agent.HTTPTimeout <= 0 {
		err = multierr.Append(err, errors.New("agent.http_timeout 必须大于0"))
	}
	if c.Agent.MaxCredit <= 0 {
		err = multierr.Append(err, errors.New("agent.max_credit_per_instance 必须大于0"))
	}

	if c.Strategy.PortfolioValue <= 0 {
		err = multierr.Append(err, errors.New("strategy.portfolio_value 必须大于0"))
	}
	if c.Strategy.MinOrderValue <= 0 {
		err = multierr.Append(err, errors.New("strategy.min_order_value 必须大于0"))
	}
	if len(c.Strategy.Markets) == 0 {
		err = multierr.Append(err, errors.New("strategy.markets 至少包含一个市场"))
	}
	if c.Strategy.DefaultDecimals < 0 {
		err = multierr.Append(err, errors.New("strategy.default_size_decimals 不能为负"))
	}

	if c.Execution.Slippage < 0 || c.Execution.Slippage > 0.2 {
		err = multierr.Append(err, errors.New("execution.slippage 应位于[0,0.2]"))
	}

	if c.Database.Enabled() {
		if c.Database.MaxOpenConns <= 0 {
			err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
		}
		if c.Database.MaxIdleConns < 0 {
			err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
		}
		if c.Database.ConnMaxLifetime < 0 {
			err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
		}
	}

	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

// ValidateTrading 校验实盘下单所需的额外配置，干跑模式不调用。
func (c *Config) ValidateTrading() error {
	var err error

	if c.Hyperliquid.PrivateKey == "" {
		err = multierr.Append(err, errors.New("实盘下单需要配置 hyperliquid.private_key"))
	}
	if c.Hyperliquid.Wallet == "" {
		err = multierr.Append(err, errors.New("实盘下单需要配置 hyperliquid.wallet_address"))
	}

	if err != nil {
		return fmt.Errorf("实盘配置校验失败: %w", err)
	}

	return nil
}

// ValidateAdvisory 校验所选顾问后端的凭证。
func (c *Config) ValidateAdvisory(provider string) error {
	switch strings.ToLower(provider) {
	case "agent":
		if c.Agent.APIKey == "" {
			return errors.New("agent.api_key 不能为空 (analysis_provider=agent)")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return errors.New("openai.api_key 不能为空 (analysis_provider=openai)")
		}
	case "auto":
		if c.Agent.APIKey == "" && c.OpenAI.APIKey == "" {
			return errors.New("auto 模式至少需要配置 agent.api_key 或 openai.api_key 之一")
		}
	default:
		return fmt.Errorf("不支持的顾问后端: %s", provider)
	}
	return nil
}
