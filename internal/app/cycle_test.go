package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"hyperliquid-requester/internal/advisory"
	"hyperliquid-requester/internal/config"
	"hyperliquid-requester/internal/execution"
	"hyperliquid-requester/internal/market"
	"hyperliquid-requester/internal/monitor"
	"hyperliquid-requester/internal/strategy"
)

const testSymbol = "BTC/USDC:USDC"

type fakeGatherer struct {
	snapshots []market.SymbolSnapshot
	err       error
	calls     int
}

func (f *fakeGatherer) Gather(ctx context.Context) ([]market.SymbolSnapshot, error) {
	f.calls++
	return f.snapshots, f.err
}

type fakeProvider struct {
	analysis *advisory.Analysis
	err      error
	calls    int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) FetchAnalysis(ctx context.Context, req advisory.Request) (*advisory.Analysis, error) {
	f.calls++
	return f.analysis, f.err
}

type fakeTrader struct {
	orders []strategy.Order
	err    error
	calls  int
}

func (f *fakeTrader) Execute(ctx context.Context, orders []strategy.Order) (execution.Result, error) {
	f.calls++
	f.orders = orders

	result := execution.Result{DryRun: true, ExecutedAt: time.Now().UTC()}
	for _, order := range orders {
		result.Outcomes = append(result.Outcomes, execution.Outcome{Order: order, Status: execution.StatusDryRun})
	}
	return result, f.err
}

type fakeEquity struct {
	value float64
	err   error
	calls int
}

func (f *fakeEquity) FetchEquity(ctx context.Context) (float64, error) {
	f.calls++
	return f.value, f.err
}

func validAnalysis() *advisory.Analysis {
	return &advisory.Analysis{
		Parameters: map[string]advisory.SymbolParameters{
			testSymbol: {
				Gamma:               0.1,
				Kappa:               1.5,
				Sigma:               0.02,
				TimeHorizon:         60,
				InventoryRiskWeight: 0.2,
			},
		},
		StrategyRecommendations: advisory.StrategyRecommendations{
			MinSpread:   0.002,
			MaxSpread:   0.01,
			MaxPosition: 5,
		},
		RiskAssessment: advisory.RiskAssessment{Level: "LOW"},
		Reasoning:      "calm market, quote both sides",
	}
}

func newTestCycle(gatherer *fakeGatherer, provider advisory.Provider, trader *fakeTrader, closeOnly bool) *cycle {
	cfg := config.StrategyConfig{
		PortfolioValue:  1000,
		MinOrderValue:   10,
		Markets:         []string{testSymbol},
		DefaultDecimals: 5,
	}
	monitorSvc, _ := monitor.NewService(nil, nil)

	return &cycle{
		gatherer:    gatherer,
		primary:     provider,
		planner:     strategy.NewPlanner(cfg, config.ExecutionConfig{Slippage: 0.02, TimeInForce: "GTC"}, nil),
		executor:    trader,
		equity:      &fakeEquity{value: 1000},
		monitor:     monitorSvc,
		logger:      zap.NewNop(),
		constraints: advisory.DefaultConstraints(),
		portfolio:   cfg.PortfolioValue,
		closeOnly:   closeOnly,
		dryRun:      true,
		provider:    "fake",
	}
}

func flatSnapshots() []market.SymbolSnapshot {
	return []market.SymbolSnapshot{{Symbol: testSymbol, MidPrice: 100, SzDecimals: 5}}
}

func longSnapshots() []market.SymbolSnapshot {
	return []market.SymbolSnapshot{{Symbol: testSymbol, MidPrice: 100, SzDecimals: 5, Inventory: 2}}
}

func TestCycleRun_QuotesBothSides(t *testing.T) {
	provider := &fakeProvider{analysis: validAnalysis()}
	trader := &fakeTrader{}
	c := newTestCycle(&fakeGatherer{snapshots: flatSnapshots()}, provider, trader, false)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("expected one advisory call, got %d", provider.calls)
	}
	if len(trader.orders) != 2 {
		t.Fatalf("expected bid and ask submitted, got %d orders", len(trader.orders))
	}
}

func TestCycleRun_CloseOnlySkipsAdvisory(t *testing.T) {
	provider := &fakeProvider{analysis: validAnalysis()}
	trader := &fakeTrader{}
	c := newTestCycle(&fakeGatherer{snapshots: longSnapshots()}, provider, trader, true)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("close-only cycle must not consult the advisor, got %d calls", provider.calls)
	}
	if len(trader.orders) != 1 {
		t.Fatalf("expected single close order, got %d", len(trader.orders))
	}
	if trader.orders[0].Kind != strategy.KindClose || !trader.orders[0].ReduceOnly {
		t.Errorf("unexpected close order: %+v", trader.orders[0])
	}
}

func TestCycleRun_GatherFailureIsFatal(t *testing.T) {
	provider := &fakeProvider{analysis: validAnalysis()}
	trader := &fakeTrader{}
	gatherer := &fakeGatherer{err: market.ErrDataUnavailable}
	c := newTestCycle(gatherer, provider, trader, false)

	err := c.Run(context.Background())
	if !errors.Is(err, market.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if provider.calls != 0 || trader.calls != 0 {
		t.Errorf("no stage may run after a fatal gather: provider=%d trader=%d", provider.calls, trader.calls)
	}
}

func TestCycleRun_ValidationFailureAbortsBeforePlan(t *testing.T) {
	analysis := validAnalysis()
	delete(analysis.Parameters, testSymbol)
	provider := &fakeProvider{analysis: analysis}
	trader := &fakeTrader{}
	c := newTestCycle(&fakeGatherer{snapshots: flatSnapshots()}, provider, trader, false)

	err := c.Run(context.Background())
	if !errors.Is(err, advisory.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if trader.calls != 0 {
		t.Errorf("rejected advisory must not reach the executor, got %d calls", trader.calls)
	}
}

func TestCycleRun_AdvisoryFailureIsFatal(t *testing.T) {
	provider := &fakeProvider{err: advisory.ErrTimeout}
	trader := &fakeTrader{}
	c := newTestCycle(&fakeGatherer{snapshots: flatSnapshots()}, provider, trader, false)

	err := c.Run(context.Background())
	if !errors.Is(err, advisory.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if trader.calls != 0 {
		t.Errorf("advisory timeout must abort before execution, got %d calls", trader.calls)
	}
}

func TestCycleRun_FallbackProviderUsed(t *testing.T) {
	primary := &fakeProvider{err: advisory.ErrTimeout}
	fallback := &fakeProvider{analysis: validAnalysis()}
	trader := &fakeTrader{}
	c := newTestCycle(&fakeGatherer{snapshots: flatSnapshots()}, primary, trader, false)
	c.fallback = fallback

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Errorf("expected primary then fallback, got primary=%d fallback=%d", primary.calls, fallback.calls)
	}
	if len(trader.orders) != 2 {
		t.Errorf("expected fallback analysis to produce quotes, got %d orders", len(trader.orders))
	}
}

func TestCycleRun_EquityFailureIsNonFatal(t *testing.T) {
	provider := &fakeProvider{analysis: validAnalysis()}
	trader := &fakeTrader{}
	c := newTestCycle(&fakeGatherer{snapshots: flatSnapshots()}, provider, trader, false)
	equity := &fakeEquity{err: errors.New("balance endpoint down")}
	c.equity = equity

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("equity failure must not fail the cycle: %v", err)
	}
	if equity.calls != 1 {
		t.Errorf("expected one equity query, got %d", equity.calls)
	}
}
