package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hyperliquid-requester/internal/market"
)

// Request 为一次顾问调用的输入：市场快照与静态策略约束。
type Request struct {
	Snapshots   []market.SymbolSnapshot
	Constraints Constraints
}

// Symbols 返回请求涉及的全部市场。
func (r Request) Symbols() []string {
	symbols := make([]string, 0, len(r.Snapshots))
	for _, snap := range r.Snapshots {
		symbols = append(symbols, snap.Symbol)
	}
	return symbols
}

// Constraints 描述提示词中声明的参数取值范围，校验时复用。
type Constraints struct {
	GammaMin       float64
	GammaMax       float64
	SigmaMin       float64
	SigmaMax       float64
	HorizonMinutes [2]float64
	SpreadMin      float64
	SpreadMax      float64
	MaxPositionMin float64
	MaxPositionMax float64
}

// DefaultConstraints 返回默认约束范围。
func DefaultConstraints() Constraints {
	return Constraints{
		GammaMin:       0.05,
		GammaMax:       1.0,
		SigmaMin:       0.01,
		SigmaMax:       1.0,
		HorizonMinutes: [2]float64{15, 180},
		SpreadMin:      0.001,
		SpreadMax:      0.05,
		MaxPositionMin: 1,
		MaxPositionMax: 10,
	}
}

// Provider 抽象顾问后端。
type Provider interface {
	Name() string
	FetchAnalysis(ctx context.Context, req Request) (*Analysis, error)
}

// MarketAnalysis 为顾问给出的整体市况描述。
type MarketAnalysis struct {
	Volatility  string `json:"volatility"`
	Liquidity   string `json:"liquidity"`
	FundingRate string `json:"fundingRate"`
	Trend       string `json:"trend"`
	Summary     string `json:"summary"`
}

// SymbolParameters 为单个市场的 Avellaneda-Stoikov 参数。
type SymbolParameters struct {
	Gamma               float64 `json:"gamma"`
	Kappa               float64 `json:"kappa"`
	Sigma               float64 `json:"sigma"`
	TimeHorizon         float64 `json:"timeHorizon"`
	TargetInventory     float64 `json:"targetInventory"`
	InventoryRiskWeight float64 `json:"inventoryRiskWeight"`
	Flatten             bool    `json:"flatten"`
}

// StrategyRecommendations 为全局报价建议。
type StrategyRecommendations struct {
	MinSpread   float64 `json:"minSpread"`
	MaxSpread   float64 `json:"maxSpread"`
	MaxPosition float64 `json:"maxPosition"`
	Notes       string  `json:"notes"`
}

// RiskAssessment 为顾问给出的风险评级。
type RiskAssessment struct {
	Level   string   `json:"level"`
	Factors []string `json:"factors"`
}

// Analysis 为完整的顾问回复。
type Analysis struct {
	MarketAnalysis          MarketAnalysis              `json:"marketAnalysis"`
	Parameters              map[string]SymbolParameters `json:"parameters"`
	StrategyRecommendations StrategyRecommendations     `json:"strategyRecommendations"`
	RiskAssessment          RiskAssessment              `json:"riskAssessment"`
	Reasoning               string                      `json:"reasoning"`
}

var requiredKeys = []string{
	"marketAnalysis",
	"parameters",
	"strategyRecommendations",
	"riskAssessment",
	"reasoning",
}

var validRiskLevels = map[string]struct{}{
	"LOW":    {},
	"MEDIUM": {},
	"HIGH":   {},
}

// ParseAnalysis 从顾问的原始文本中提取并解析JSON回复。
// 任何解析失败都归类为 ErrMalformed。
func ParseAnalysis(raw string) (*Analysis, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(payload, &keys); err != nil {
		return nil, fmt.Errorf("%w: 解析JSON失败: %v", ErrMalformed, err)
	}
	for _, key := range requiredKeys {
		if _, ok := keys[key]; !ok {
			return nil, fmt.Errorf("%w: 缺少字段 %q", ErrMalformed, key)
		}
	}

	var analysis Analysis
	if err := json.Unmarshal(payload, &analysis); err != nil {
		return nil, fmt.Errorf("%w: 字段类型不匹配: %v", ErrMalformed, err)
	}

	return &analysis, nil
}

// Validate 校验回复满足协议：每个请求市场都有参数项且数值位于约束范围内。
// 校验失败的回复整体拒绝，不做部分采用。
func (a *Analysis) Validate(symbols []string, c Constraints) error {
	if a == nil {
		return fmt.Errorf("%w: 回复为空", ErrMalformed)
	}

	if strings.TrimSpace(a.Reasoning) == "" {
		return fmt.Errorf("%w: reasoning 不能为空", ErrMalformed)
	}

	level := strings.ToUpper(strings.TrimSpace(a.RiskAssessment.Level))
	if _, ok := validRiskLevels[level]; !ok {
		return fmt.Errorf("%w: riskAssessment.level 取值非法: %q", ErrMalformed, a.RiskAssessment.Level)
	}

	rec := a.StrategyRecommendations
	if rec.MinSpread < c.SpreadMin || rec.MinSpread > rec.MaxSpread || rec.MaxSpread > c.SpreadMax {
		return fmt.Errorf("%w: 点差边界非法 min=%f max=%f", ErrMalformed, rec.MinSpread, rec.MaxSpread)
	}
	if rec.MaxPosition < c.MaxPositionMin || rec.MaxPosition > c.MaxPositionMax {
		return fmt.Errorf("%w: maxPosition 超出范围: %f", ErrMalformed, rec.MaxPosition)
	}

	for _, symbol := range symbols {
		params, ok := a.Parameters[symbol]
		if !ok {
			return fmt.Errorf("%w: parameters 缺少市场 %q", ErrMalformed, symbol)
		}
		if params.Gamma < c.GammaMin || params.Gamma > c.GammaMax {
			return fmt.Errorf("%w: %s gamma 超出范围: %f", ErrMalformed, symbol, params.Gamma)
		}
		if params.Sigma < c.SigmaMin || params.Sigma > c.SigmaMax {
			return fmt.Errorf("%w: %s sigma 超出范围: %f", ErrMalformed, symbol, params.Sigma)
		}
		if params.TimeHorizon < c.HorizonMinutes[0] || params.TimeHorizon > c.HorizonMinutes[1] {
			return fmt.Errorf("%w: %s timeHorizon 超出范围: %f", ErrMalformed, symbol, params.TimeHorizon)
		}
		if params.Kappa <= 0 {
			return fmt.Errorf("%w: %s kappa 必须为正: %f", ErrMalformed, symbol, params.Kappa)
		}
		if params.InventoryRiskWeight < 0 || params.InventoryRiskWeight > 1 {
			return fmt.Errorf("%w: %s inventoryRiskWeight 超出范围: %f", ErrMalformed, symbol, params.InventoryRiskWeight)
		}
	}

	return nil
}

// extractJSON 截取文本中最外层的JSON对象，顺带去除代码块围栏。
func extractJSON(content string) ([]byte, error) {
	cleaned := strings.TrimSpace(content)
	if strings.Contains(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		kept := lines[:0]
		for _, line := range lines {
			if strings.Contains(line, "```") {
				continue
			}
			kept = append(kept, line)
		}
		cleaned = strings.Join(kept, "\n")
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("%w: 回复中未找到JSON对象", ErrMalformed)
	}

	return []byte(cleaned[start : end+1]), nil
}
