package advisory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// 提示词面向英文顾问后端，结构沿用既有的参数请求格式。
const backgroundTemplate = `# Hyperliquid Avellaneda Parameters

You run a market-neutral strategy that refreshes Avellaneda-Stoikov parameters before each cycle. Generate realistic parameters for the current session based on the portfolio inputs below.

## Inputs
Markets: {{ .Markets }}
Snapshot (JSON):
{{ .SnapshotJSON }}

## Output Requirements
Respond with **only** valid JSON using this structure:
{
  "marketAnalysis": {"volatility": str, "liquidity": str, "fundingRate": str, "trend": str, "summary": str},
  "parameters": {
    "<market symbol>": {"gamma": float, "kappa": float, "sigma": float, "timeHorizon": int, "targetInventory": float, "inventoryRiskWeight": float, "flatten": bool}
  },
  "riskAssessment": {"level": "LOW|MEDIUM|HIGH", "factors": [str, ...]},
  "strategyRecommendations": {"minSpread": float, "maxSpread": float, "maxPosition": int, "notes": str},
  "reasoning": str
}

Provide one "parameters" entry per market listed above, keyed by the exact market symbol. Set "flatten" to true only when the existing inventory of that market should be closed instead of quoted around.

Constraints: gamma {{ printf "%g" .C.GammaMin }}-{{ printf "%g" .C.GammaMax }}, sigma {{ printf "%g" .C.SigmaMin }}-{{ printf "%g" .C.SigmaMax }}, timeHorizon in minutes ({{ printf "%g" (index .C.HorizonMinutes 0) }}-{{ printf "%g" (index .C.HorizonMinutes 1) }}), spreads between {{ printf "%g" .C.SpreadMin }} and {{ printf "%g" .C.SpreadMax }}, maxPosition {{ printf "%g" .C.MaxPositionMin }}-{{ printf "%g" .C.MaxPositionMax }} contracts. Tune these values using the snapshot data and risk intuition.`

var backgroundTmpl = template.Must(template.New("background").Parse(backgroundTemplate))

type promptContext struct {
	Markets      string
	SnapshotJSON string
	C            Constraints
}

// BuildPrompt 将快照与约束渲染为顾问提示词。
func BuildPrompt(req Request) (string, error) {
	if len(req.Snapshots) == 0 {
		return "", fmt.Errorf("advisory: 缺少市场快照，无法构造提示词")
	}

	snapshotJSON, err := json.MarshalIndent(req.Snapshots, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化快照失败: %w", err)
	}

	ctx := promptContext{
		Markets:      strings.Join(req.Symbols(), ", "),
		SnapshotJSON: string(snapshotJSON),
		C:            req.Constraints,
	}

	var buf bytes.Buffer
	if err = backgroundTmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}

	return buf.String(), nil
}
