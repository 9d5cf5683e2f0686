package advisory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"hyperliquid-requester/internal/config"
)

// OpenAIProvider 通过大模型接口直接生成参数，作为 agent.market 的备选后端。
type OpenAIProvider struct {
	cfg    config.OpenAIConfig
	logger *zap.Logger
	sdk    *openai.Client
}

// NewOpenAIProvider 使用给定配置创建 OpenAI 顾问后端。
func NewOpenAIProvider(cfg config.OpenAIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("advisory: openai.api_key 不能为空")
	}
	if cfg.Model == "" {
		return nil, errors.New("advisory: openai.model 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &OpenAIProvider{
		cfg:    cfg,
		logger: logger,
		sdk:    openai.NewClientWithConfig(sdkConfig),
	}, nil
}

// Name 返回后端名称。
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// FetchAnalysis 发起一次对话补全并解析回复。
func (p *OpenAIProvider) FetchAnalysis(ctx context.Context, req Request) (*Analysis, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	response, err := p.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		p.logger.Error("调用OpenAI失败", zap.Error(err))
		return nil, fmt.Errorf("调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("%w: OpenAI 返回结果为空", ErrMalformed)
	}

	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return nil, fmt.Errorf("%w: OpenAI 返回内容为空", ErrMalformed)
	}

	analysis, err := ParseAnalysis(rawContent)
	if err != nil {
		p.logger.Error("解析顾问回复失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return nil, err
	}

	return analysis, nil
}
