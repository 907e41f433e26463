package supervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/DeepInside-Informatics/kco/internal/actions"
	"github.com/DeepInside-Informatics/kco/internal/events"
	"github.com/DeepInside-Informatics/kco/internal/ratelimit"
	"github.com/DeepInside-Informatics/kco/internal/statestore"
)

type fakeCreator struct{}

func (fakeCreator) CreateEvent(context.Context, string, string, string, string, string, string) error {
	return nil
}

type fakeStats struct {
	mu      sync.Mutex
	polls   map[string]int
	events  map[string]int
	actions map[string]int
}

func newFakeStats() *fakeStats {
	return &fakeStats{polls: map[string]int{}, events: map[string]int{}, actions: map[string]int{}}
}

func (f *fakeStats) RecordPoll(_, _, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[status]++
}

func (f *fakeStats) RecordEvent(_, _, eventType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[eventType]++
}

func (f *fakeStats) RecordAction(_, _, _, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions[status]++
}

func (f *fakeStats) get(m map[string]int, k string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return m[k]
}

type fakeEffector struct{ name string }

func (f fakeEffector) Name() string { return f.name }

func (f fakeEffector) CanHandle(ctx actions.Context) bool {
	return actions.Evaluate(ctx.Trigger, ctx.StateChange)
}

func (f fakeEffector) Execute(ctx actions.Context) actions.Result {
	return actions.Result{Status: actions.StatusSuccess}
}

func newTestSupervisor(t *testing.T, serverURL string, pollingInterval time.Duration, triggerActions []TriggerAction) (*Supervisor, *statestore.Store, *fakeStats) {
	t.Helper()

	store := statestore.New()
	limiter := ratelimit.New(6000) // effectively unlimited for fast test cycles
	emitter := events.New(fakeCreator{}, zap.NewNop().Sugar())
	registry := actions.NewRegistry()
	registry.Register(fakeEffector{name: "noop"})
	stats := newFakeStats()

	cfg := Config{
		Namespace:              "ns",
		Name:                   "app",
		Selector:               map[string]string{"app": "x"},
		Endpoint:               serverURL,
		PollingInterval:        pollingInterval,
		Query:                  "{ app { status health } }",
		Actions:                triggerActions,
		RequestTimeout:         time.Second,
		MaxRetries:             1,
		ActionExecutionTimeout: time.Second,
	}

	sup := New(cfg, limiter, store, emitter, registry, nil, stats, zap.NewNop().Sugar())
	return sup, store, stats
}

func TestSupervisorInitialDetection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"app": map[string]any{"status": "running", "health": "healthy"}}})
	}))
	defer srv.Close()

	sup, store, stats := newTestSupervisor(t, srv.URL, 50*time.Millisecond, nil)
	sup.Start(context.Background())
	defer sup.Stop()

	waitFor(t, func() bool { return stats.get(stats.polls, "success") >= 1 })

	if _, ok := store.Get("ns/app"); !ok {
		t.Fatalf("expected snapshot recorded for tenant")
	}
	if stats.get(stats.events, "initial") < 1 {
		t.Fatalf("expected at least one initial event recorded")
	}
}

func TestSupervisorRecordsSkippedForNonMatchingAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"app": map[string]any{"status": "running"}}})
	}))
	defer srv.Close()

	triggerActions := []TriggerAction{
		{
			ActionName: "noop",
			Trigger:    actions.TriggerSpec{Field: "app.status", Condition: "equals", Value: "never-matches"},
		},
	}

	sup, _, stats := newTestSupervisor(t, srv.URL, 50*time.Millisecond, triggerActions)
	sup.Start(context.Background())
	defer sup.Stop()

	waitFor(t, func() bool { return stats.get(stats.actions, "skipped") >= 1 })

	if stats.get(stats.actions, "success") != 0 {
		t.Fatalf("expected no successful dispatch for a non-matching trigger")
	}
}

func TestSupervisorStopRemovesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"app": map[string]any{"status": "running"}}})
	}))
	defer srv.Close()

	sup, store, stats := newTestSupervisor(t, srv.URL, 50*time.Millisecond, nil)
	sup.Start(context.Background())

	waitFor(t, func() bool { return stats.get(stats.polls, "success") >= 1 })

	sup.Stop()

	if _, ok := store.Get("ns/app"); ok {
		t.Fatalf("expected snapshot removed after stop")
	}
	if sup.Phase() != PhaseStopped {
		t.Fatalf("expected phase Stopped, got %s", sup.Phase())
	}
}

func TestSupervisorStartIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"status": "ok"}})
	}))
	defer srv.Close()

	sup, _, _ := newTestSupervisor(t, srv.URL, 50*time.Millisecond, nil)
	sup.Start(context.Background())
	sup.Start(context.Background()) // second call should be a no-op, not panic
	defer sup.Stop()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
