package monitor

import (
	"time"

	"hyperliquid-requester/internal/advisory"
	"hyperliquid-requester/internal/execution"
	"hyperliquid-requester/internal/market"
	"hyperliquid-requester/internal/strategy"
)

// EventType 表示周期事件类型。
type EventType string

const (
	EventCycleStart       EventType = "cycle_start"
	EventMarketSnapshot   EventType = "market_snapshot"
	EventAdvisoryResponse EventType = "advisory_response"
	EventOrderPlan        EventType = "order_plan"
	EventExecution        EventType = "execution"
	EventError            EventType = "error"
)

// Event 封装通用周期事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CycleStartPayload 记录周期启动参数。
type CycleStartPayload struct {
	DryRun    bool   `json:"dry_run"`
	CloseOnly bool   `json:"close_only"`
	Provider  string `json:"provider"`
}

// SnapshotPayload 记录本周期的全部市场快照。
type SnapshotPayload struct {
	Snapshots []market.SymbolSnapshot `json:"snapshots"`
}

// AdvisoryPayload 记录顾问回复。
type AdvisoryPayload struct {
	Provider string            `json:"provider"`
	Analysis advisory.Analysis `json:"analysis"`
}

// PlanPayload 记录订单计划。
type PlanPayload struct {
	Plan strategy.Plan `json:"plan"`
}

// ExecutionPayload 记录订单执行结果。
type ExecutionPayload struct {
	Result execution.Result `json:"result"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
