package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "requester"

// Load 以环境变量为主读取配置，path 非空时叠加 YAML 文件。
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
			}
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "production")
	v.SetDefault("app.analysis_provider", "auto")

	v.SetDefault("hyperliquid.network", "mainnet")
	v.SetDefault("hyperliquid.wallet_address", "")
	v.SetDefault("hyperliquid.private_key", "")
	v.SetDefault("hyperliquid.timeout", "30s")
	v.SetDefault("hyperliquid.retry.max_attempts", 3)
	v.SetDefault("hyperliquid.retry.min_delay", "500ms")
	v.SetDefault("hyperliquid.retry.max_delay", "5s")

	v.SetDefault("agent.api_key", "")
	v.SetDefault("agent.base_url", "https://api.agent.market")
	v.SetDefault("agent.max_credit_per_instance", 0.05)
	v.SetDefault("agent.instance_timeout", 90)
	v.SetDefault("agent.gen_reward_timeout", 48*3600)
	v.SetDefault("agent.percentage_reward", 0.5)
	v.SetDefault("agent.side_effect_free", false)
	v.SetDefault("agent.max_providers", 1)
	v.SetDefault("agent.contest_mode", false)
	v.SetDefault("agent.poll_interval", "5s")
	v.SetDefault("agent.max_polls", 18)
	v.SetDefault("agent.http_timeout", "30s")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("openai.timeout", "60s")

	v.SetDefault("strategy.portfolio_value", 997.5)
	v.SetDefault("strategy.min_order_value", 10.0)
	v.SetDefault("strategy.markets", []string{"BTC/USDC:USDC", "ETH/USDC:USDC", "SOL/USDC:USDC"})
	v.SetDefault("strategy.default_size_decimals", 5)

	v.SetDefault("execution.slippage", 0.02)
	v.SetDefault("execution.time_in_force", "GTC")

	v.SetDefault("database.path", "")
	v.SetDefault("database.max_open_conns", 2)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
