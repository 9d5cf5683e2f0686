package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hyperliquid-requester/internal/advisory"
	"hyperliquid-requester/internal/execution"
	"hyperliquid-requester/internal/market"
	"hyperliquid-requester/internal/store"
	"hyperliquid-requester/internal/strategy"
)

// Service 负责持久化周期事件。事件为追加写入的观测记录，
// 周期内不会被读回，写入失败只告警不影响交易流程。
// store 为 nil 时所有记录调用都是空操作。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化监控服务，创建所需表结构。store 可为 nil。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		return &Service{logger: logger}, nil
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS cycle_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cycle_events_type ON cycle_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	if s.db == nil {
		return nil
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cycle_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// RecordCycleStart 记录周期启动。
func (s *Service) RecordCycleStart(ctx context.Context, payload CycleStartPayload) {
	s.record(ctx, EventCycleStart, payload)
}

// RecordSnapshots 记录市场快照。
func (s *Service) RecordSnapshots(ctx context.Context, snapshots []market.SymbolSnapshot) {
	s.record(ctx, EventMarketSnapshot, SnapshotPayload{Snapshots: snapshots})
}

// RecordAdvisory 记录顾问回复。
func (s *Service) RecordAdvisory(ctx context.Context, provider string, analysis advisory.Analysis) {
	s.record(ctx, EventAdvisoryResponse, AdvisoryPayload{Provider: provider, Analysis: analysis})
}

// RecordPlan 记录订单计划。
func (s *Service) RecordPlan(ctx context.Context, plan strategy.Plan) {
	s.record(ctx, EventOrderPlan, PlanPayload{Plan: plan})
}

// RecordExecution 记录订单执行结果。
func (s *Service) RecordExecution(ctx context.Context, result execution.Result) {
	s.record(ctx, EventExecution, ExecutionPayload{Result: result})
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, message string, err error, extra map[string]interface{}) {
	payload := ErrorPayload{
		Message: message,
		Context: extra,
	}
	if err != nil {
		payload.Error = err.Error()
	}
	s.record(ctx, EventError, payload)
}

func (s *Service) record(ctx context.Context, eventType EventType, payload interface{}) {
	if err := s.Record(ctx, Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); err != nil {
		s.logger.Warn("记录周期事件失败",
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
	}
}
