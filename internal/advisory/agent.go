package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"hyperliquid-requester/internal/config"
)

// AgentClient 对接 agent.market：创建分析实例后轮询 chat 接口等待回复。
type AgentClient struct {
	cfg        config.AgentConfig
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
}

// NewAgentClient 创建 agent.market 客户端。
func NewAgentClient(cfg config.AgentConfig, logger *zap.Logger) (*AgentClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("advisory: agent.api_key 不能为空")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 18
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AgentClient{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Name 返回后端名称。
func (c *AgentClient) Name() string {
	return "agent"
}

// FetchAnalysis 创建实例并等待首条顾问回复，随后解析为 Analysis。
func (c *AgentClient) FetchAnalysis(ctx context.Context, req Request) (*Analysis, error) {
	background, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	instanceID, err := c.CreateInstance(ctx, background)
	if err != nil {
		return nil, err
	}

	message, err := c.PollProviderMessage(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	return ParseAnalysis(message)
}

type createInstanceRequest struct {
	Background           string  `json:"background"`
	MaxCreditPerInstance float64 `json:"max_credit_per_instance"`
	InstanceTimeout      int     `json:"instance_timeout"`
	GenRewardTimeout     int     `json:"gen_reward_timeout"`
	PercentageReward     float64 `json:"percentage_reward"`
	SideEffectFree       bool    `json:"side_effect_free"`
	MaxProviders         int     `json:"max_providers"`
	ContestMode          bool    `json:"contest_mode"`
}

type createInstanceResponse struct {
	ID interface{} `json:"id"`
}

// CreateInstance 创建远端分析实例并返回实例ID。
func (c *AgentClient) CreateInstance(ctx context.Context, background string) (string, error) {
	payload := createInstanceRequest{
		Background:           background,
		MaxCreditPerInstance: c.cfg.MaxCredit,
		InstanceTimeout:      c.cfg.InstanceTimeout,
		GenRewardTimeout:     c.cfg.RewardTimeout,
		PercentageReward:     c.cfg.PercentReward,
		SideEffectFree:       c.cfg.SideEffectFree,
		MaxProviders:         c.cfg.MaxProviders,
		ContestMode:          c.cfg.ContestMode,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("advisory: 序列化实例请求失败: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/instances", body)
	if err != nil {
		return "", fmt.Errorf("advisory: 创建实例失败: %w", err)
	}

	var resp createInstanceResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: 实例响应解析失败: %v", ErrMalformed, err)
	}

	instanceID := formatInstanceID(resp.ID)
	if instanceID == "" {
		return "", fmt.Errorf("%w: 实例响应缺少 id", ErrMalformed)
	}

	c.logger.Info("已创建 agent.market 实例", zap.String("instance_id", instanceID))
	return instanceID, nil
}

// formatInstanceID 兼容字符串与数字两种 id 形态。
func formatInstanceID(id interface{}) string {
	switch v := id.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

type chatMessage struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// PollProviderMessage 以固定间隔轮询 chat 接口，最多 max_polls 次。
// 传输层错误消耗一次轮询机会后继续；预算耗尽返回 ErrTimeout。
func (c *AgentClient) PollProviderMessage(ctx context.Context, instanceID string) (string, error) {
	for attempt := 1; attempt <= c.cfg.MaxPolls; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(c.cfg.PollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}

		messages, err := c.fetchChatMessages(ctx, instanceID)
		if err != nil {
			if errors.Is(err, ErrMalformed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			c.logger.Warn("轮询 agent.market 失败",
				zap.String("instance_id", instanceID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		if message := latestProviderMessage(messages); message != "" {
			c.logger.Info("收到顾问回复",
				zap.String("instance_id", instanceID),
				zap.Int("attempt", attempt),
			)
			return message, nil
		}
	}

	return "", fmt.Errorf("%w: 实例 %s 在 %d 次轮询内未回复", ErrTimeout, instanceID, c.cfg.MaxPolls)
}

func (c *AgentClient) fetchChatMessages(ctx context.Context, instanceID string) ([]chatMessage, error) {
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/v1/chat/%s", c.baseURL, instanceID), nil)
	if err != nil {
		return nil, err
	}

	var messages []chatMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		// chat 接口约定返回消息列表，其它形态视为协议破坏而非瞬时故障。
		return nil, fmt.Errorf("%w: chat 响应不是消息列表: %v", ErrMalformed, err)
	}

	return messages, nil
}

func (c *AgentClient) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("agent.market 返回 %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return data, nil
}

// latestProviderMessage 返回时间戳最新的 provider 消息，没有则返回空串。
func latestProviderMessage(messages []chatMessage) string {
	var latest chatMessage
	for _, msg := range messages {
		if msg.Sender != "provider" || strings.TrimSpace(msg.Message) == "" {
			continue
		}
		if latest.Message == "" || msg.Timestamp > latest.Timestamp {
			latest = msg
		}
	}
	return latest.Message
}
