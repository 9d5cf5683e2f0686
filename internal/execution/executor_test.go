package execution

import (
	"context"
	"errors"
	"strconv"
	"testing"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"hyperliquid-requester/internal/strategy"
)

type limitCall struct {
	symbol string
	side   string
	amount float64
	price  float64
}

type mockOrderClient struct {
	calls   []limitCall
	failFor map[string]error
	nextID  int
}

func (m *mockOrderClient) CreateLimitOrder(symbol string, side string, amount float64, price float64, options ...ccxt.CreateLimitOrderOptions) (ccxt.Order, error) {
	m.calls = append(m.calls, limitCall{symbol: symbol, side: side, amount: amount, price: price})
	if err, ok := m.failFor[symbol]; ok {
		return ccxt.Order{}, err
	}
	m.nextID++
	id := "order-" + strconv.Itoa(m.nextID)
	return ccxt.Order{Id: &id}, nil
}

func makeOrders() []strategy.Order {
	return []strategy.Order{
		{Symbol: "BTC/USDC:USDC", Kind: strategy.KindBid, Side: strategy.SideBuy, Price: 64900, Size: 0.01, TimeInForce: "GTC", Status: strategy.StatusPlanned},
		{Symbol: "ETH/USDC:USDC", Kind: strategy.KindAsk, Side: strategy.SideSell, Price: 3300, Size: 0.2, TimeInForce: "GTC", Status: strategy.StatusPlanned},
		{Symbol: "SOL/USDC:USDC", Kind: strategy.KindClose, Side: strategy.SideSell, Price: 140, Size: 2, ReduceOnly: true, TimeInForce: "IOC", Status: strategy.StatusPlanned},
	}
}

func TestExecutorExecute_SubmitsAllOrders(t *testing.T) {
	client := &mockOrderClient{}
	exec := NewExecutor(client, nil)

	result, err := exec.Execute(context.Background(), makeOrders())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if len(result.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(result.Outcomes))
	}
	if result.Submitted() != 3 || result.Failed() != 0 {
		t.Errorf("unexpected counters: submitted=%d failed=%d", result.Submitted(), result.Failed())
	}
	for _, outcome := range result.Outcomes {
		if outcome.Status != StatusSubmitted {
			t.Errorf("expected submitted status, got %s", outcome.Status)
		}
		if outcome.OrderID == "" {
			t.Errorf("expected order id for %s", outcome.Order.Symbol)
		}
	}
	if len(client.calls) != 3 {
		t.Fatalf("expected 3 exchange calls, got %d", len(client.calls))
	}
	if client.calls[0].side != "buy" || client.calls[1].side != "sell" {
		t.Errorf("unexpected order sides: %+v", client.calls)
	}
}

func TestExecutorExecute_IsolatesFailures(t *testing.T) {
	client := &mockOrderClient{
		failFor: map[string]error{"ETH/USDC:USDC": errors.New("insufficient margin")},
	}
	exec := NewExecutor(client, nil)

	result, err := exec.Execute(context.Background(), makeOrders())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if result.Submitted() != 2 {
		t.Errorf("expected 2 submitted, got %d", result.Submitted())
	}
	if result.Failed() != 1 {
		t.Errorf("expected 1 failed, got %d", result.Failed())
	}

	failed := result.Outcomes[1]
	if failed.Order.Symbol != "ETH/USDC:USDC" || failed.Status != StatusFailed {
		t.Errorf("unexpected failed outcome: %+v", failed)
	}
	if failed.Error == "" {
		t.Errorf("expected error message on failed outcome")
	}

	// A non-retryable failure burns exactly one call and the plan keeps going.
	if len(client.calls) != 3 {
		t.Errorf("expected 3 exchange calls, got %d", len(client.calls))
	}
}

func TestExecutorExecute_StopsOnCancelledContext(t *testing.T) {
	client := &mockOrderClient{}
	exec := NewExecutor(client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := exec.Execute(ctx, makeOrders())
	if err == nil {
		t.Fatalf("expected context error")
	}
	if len(result.Outcomes) != 0 {
		t.Errorf("expected no outcomes after cancellation, got %d", len(result.Outcomes))
	}
	if len(client.calls) != 0 {
		t.Errorf("expected no exchange calls after cancellation, got %d", len(client.calls))
	}
}

func TestSimulatedExecutor_RecordsDryRun(t *testing.T) {
	exec := NewSimulatedExecutor(nil)

	result, err := exec.Execute(context.Background(), makeOrders())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if !result.DryRun {
		t.Errorf("expected dry-run result")
	}
	if len(result.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(result.Outcomes))
	}
	for _, outcome := range result.Outcomes {
		if outcome.Status != StatusDryRun {
			t.Errorf("expected dry-run status, got %s", outcome.Status)
		}
		if outcome.OrderID != "" {
			t.Errorf("dry-run must not fabricate order ids")
		}
	}
	if result.Submitted() != 3 || result.Failed() != 0 {
		t.Errorf("unexpected counters: submitted=%d failed=%d", result.Submitted(), result.Failed())
	}
}

func TestSimulatedExecutor_EmptyPlan(t *testing.T) {
	exec := NewSimulatedExecutor(nil)

	result, err := exec.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(result.Outcomes) != 0 {
		t.Errorf("expected no outcomes, got %d", len(result.Outcomes))
	}
}
