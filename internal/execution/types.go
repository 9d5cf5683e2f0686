package execution

import (
	"time"

	"hyperliquid-requester/internal/strategy"
)

// Status 表示单笔订单的执行结果。
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusDryRun    Status = "dry-run"
	StatusFailed    Status = "failed"
)

// Outcome 为单笔订单的执行结果，失败不影响其余订单。
type Outcome struct {
	Order   strategy.Order `json:"order"`
	Status  Status         `json:"status"`
	OrderID string         `json:"order_id,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Result 为一次计划执行的汇总。
type Result struct {
	Outcomes   []Outcome `json:"outcomes"`
	DryRun     bool      `json:"dry_run"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Submitted 返回成功提交（或干跑记录）的订单数。
func (r Result) Submitted() int {
	count := 0
	for _, outcome := range r.Outcomes {
		if outcome.Status == StatusSubmitted || outcome.Status == StatusDryRun {
			count++
		}
	}
	return count
}

// Failed 返回提交失败的订单数。
func (r Result) Failed() int {
	count := 0
	for _, outcome := range r.Outcomes {
		if outcome.Status == StatusFailed {
			count++
		}
	}
	return count
}
