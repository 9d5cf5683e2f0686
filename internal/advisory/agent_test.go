package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"hyperliquid-requester/internal/config"
	"hyperliquid-requester/internal/market"
)

func testSnapshots() []market.SymbolSnapshot {
	return []market.SymbolSnapshot{{Symbol: testSymbol, MidPrice: 65000, SzDecimals: 5}}
}

func newTestAgentClient(t *testing.T, baseURL string) *AgentClient {
	t.Helper()
	client, err := NewAgentClient(config.AgentConfig{
		APIKey:       "test-key",
		BaseURL:      baseURL,
		MaxCredit:    0.05,
		PollInterval: 10 * time.Millisecond,
		MaxPolls:     3,
		HTTPTimeout:  time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewAgentClient returned error: %v", err)
	}
	return client
}

func TestCreateInstance_SendsAPIKeyAndBackground(t *testing.T) {
	var gotKey string
	var gotBody createInstanceRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/instances" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("x-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		fmt.Fprint(w, `{"id": "inst-42"}`)
	}))
	defer server.Close()

	client := newTestAgentClient(t, server.URL)
	id, err := client.CreateInstance(context.Background(), "analyze the market")
	if err != nil {
		t.Fatalf("CreateInstance returned error: %v", err)
	}
	if id != "inst-42" {
		t.Errorf("expected instance id inst-42, got %s", id)
	}
	if gotKey != "test-key" {
		t.Errorf("expected x-api-key header, got %q", gotKey)
	}
	if gotBody.Background != "analyze the market" {
		t.Errorf("unexpected background: %q", gotBody.Background)
	}
	if gotBody.MaxCreditPerInstance != 0.05 {
		t.Errorf("unexpected max credit: %f", gotBody.MaxCreditPerInstance)
	}
}

func TestCreateInstance_NumericID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 42}`)
	}))
	defer server.Close()

	client := newTestAgentClient(t, server.URL)
	id, err := client.CreateInstance(context.Background(), "background")
	if err != nil {
		t.Fatalf("CreateInstance returned error: %v", err)
	}
	if id != "42" {
		t.Errorf("expected instance id 42, got %s", id)
	}
}

func TestPollProviderMessage_BudgetExhausted(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	client := newTestAgentClient(t, server.URL)
	_, err := client.PollProviderMessage(context.Background(), "inst-1")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if got := polls.Load(); got != 3 {
		t.Errorf("expected exactly 3 polls, got %d", got)
	}
}

func TestPollProviderMessage_ReturnsLatestProviderMessage(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			fmt.Fprint(w, `[{"sender": "requester", "message": "question", "timestamp": "2026-01-01T00:00:00Z"}]`)
			return
		}
		fmt.Fprint(w, `[
  {"sender": "requester", "message": "question", "timestamp": "2026-01-01T00:00:00Z"},
  {"sender": "provider", "message": "stale answer", "timestamp": "2026-01-01T00:00:05Z"},
  {"sender": "provider", "message": "final answer", "timestamp": "2026-01-01T00:00:10Z"}
]`)
	}))
	defer server.Close()

	client := newTestAgentClient(t, server.URL)
	message, err := client.PollProviderMessage(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("PollProviderMessage returned error: %v", err)
	}
	if message != "final answer" {
		t.Errorf("expected latest provider message, got %q", message)
	}
	if got := polls.Load(); got != 2 {
		t.Errorf("expected 2 polls, got %d", got)
	}
}

func TestPollProviderMessage_NonListPayloadIsMalformed(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		fmt.Fprint(w, `{"error": "unexpected shape"}`)
	}))
	defer server.Close()

	client := newTestAgentClient(t, server.URL)
	_, err := client.PollProviderMessage(context.Background(), "inst-1")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	// Protocol violations stop polling immediately instead of burning the budget.
	if got := polls.Load(); got != 1 {
		t.Errorf("expected a single poll, got %d", got)
	}
}

func TestPollProviderMessage_TransientErrorConsumesOneAttempt(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[{"sender": "provider", "message": "answer", "timestamp": "2026-01-01T00:00:00Z"}]`)
	}))
	defer server.Close()

	client := newTestAgentClient(t, server.URL)
	message, err := client.PollProviderMessage(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("PollProviderMessage returned error: %v", err)
	}
	if message != "answer" {
		t.Errorf("unexpected message: %q", message)
	}
	if got := polls.Load(); got != 2 {
		t.Errorf("expected 2 polls, got %d", got)
	}
}

func TestPollProviderMessage_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestAgentClient(t, server.URL)
	_, err := client.PollProviderMessage(ctx, "inst-1")
	if err == nil {
		t.Fatalf("expected error after cancellation")
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("cancellation must not be reported as advisory timeout: %v", err)
	}
}

func TestFetchAnalysis_MalformedAnswerFailsFast(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/instances", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "inst-1"}`)
	})
	mux.HandleFunc("/v1/chat/inst-1", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		fmt.Fprint(w, `[{"sender": "provider", "message": "not a json object", "timestamp": "2026-01-01T00:00:00Z"}]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestAgentClient(t, server.URL)
	req := Request{Snapshots: testSnapshots(), Constraints: DefaultConstraints()}
	_, err := client.FetchAnalysis(context.Background(), req)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if got := polls.Load(); got != 1 {
		t.Errorf("malformed answer must not trigger re-polling, got %d polls", got)
	}
}

func TestFetchAnalysis_EndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/instances", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "inst-9"}`)
	})
	mux.HandleFunc("/v1/chat/inst-9", func(w http.ResponseWriter, r *http.Request) {
		messages := []chatMessage{{
			Sender:    "provider",
			Message:   validAnswer(),
			Timestamp: "2026-01-01T00:00:00Z",
		}}
		_ = json.NewEncoder(w).Encode(messages)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestAgentClient(t, server.URL)
	req := Request{Snapshots: testSnapshots(), Constraints: DefaultConstraints()}
	analysis, err := client.FetchAnalysis(context.Background(), req)
	if err != nil {
		t.Fatalf("FetchAnalysis returned error: %v", err)
	}
	if err := analysis.Validate(req.Symbols(), req.Constraints); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}
