package advisory

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"hyperliquid-requester/internal/config"
)

// BuildProvider 按 --analysis-provider 选择顾问后端。
// auto 模式优先 agent.market，并在 OpenAI 凭证可用时将其作为回退后端。
func BuildProvider(mode string, agentCfg config.AgentConfig, openAICfg config.OpenAIConfig, logger *zap.Logger) (primary Provider, fallback Provider, err error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "agent":
		primary, err = NewAgentClient(agentCfg, logger)
		return primary, nil, err

	case "openai":
		primary, err = NewOpenAIProvider(openAICfg, logger)
		return primary, nil, err

	case "auto":
		if agentCfg.APIKey != "" {
			primary, err = NewAgentClient(agentCfg, logger)
			if err != nil {
				return nil, nil, err
			}
			if openAICfg.APIKey != "" {
				fallback, err = NewOpenAIProvider(openAICfg, logger)
				if err != nil {
					return nil, nil, err
				}
			}
			return primary, fallback, nil
		}
		if openAICfg.APIKey != "" {
			primary, err = NewOpenAIProvider(openAICfg, logger)
			return primary, nil, err
		}
		return nil, nil, fmt.Errorf("advisory: auto 模式需要 agent.api_key 或 openai.api_key")

	default:
		return nil, nil, fmt.Errorf("advisory: 不支持的顾问后端 %q", mode)
	}
}
