package actions

import (
	"testing"
	"time"

	"github.com/DeepInside-Informatics/kco/internal/statestore"
)

func statestoreChangeWithPaths(paths []string) statestore.Change {
	old := statestore.NewSnapshot(map[string]any{"app": map[string]any{"health": "healthy"}})
	return statestore.Change{
		TenantKey:    "ns/app",
		OldSnapshot:  &old,
		NewSnapshot:  statestore.NewSnapshot(map[string]any{"app": map[string]any{"health": "healthy"}}),
		ChangedPaths: paths,
	}
}

type stubEffector struct {
	name      string
	canHandle bool
	result    Result
	sleep     time.Duration
	panics    bool
}

func (s *stubEffector) Name() string              { return s.name }
func (s *stubEffector) CanHandle(_ Context) bool   { return s.canHandle }
func (s *stubEffector) Execute(_ Context) Result {
	if s.panics {
		panic("boom")
	}
	if s.sleep > 0 {
		time.Sleep(s.sleep)
	}
	return s.result
}

func TestExecuteUnknownAction(t *testing.T) {
	r := NewRegistry()
	res := r.Execute("missing", Context{}, time.Second)
	if res.Status != StatusFailed {
		t.Fatalf("expected failed for unknown action, got %s", res.Status)
	}
}

func TestExecuteSkippedWhenCannotHandle(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubEffector{name: "noop", canHandle: false})

	res := r.Execute("noop", Context{}, time.Second)
	if res.Status != StatusSkipped {
		t.Fatalf("expected skipped, got %s", res.Status)
	}
}

func TestExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubEffector{name: "ok", canHandle: true, result: Result{Status: StatusSuccess, Message: "done"}})

	res := r.Execute("ok", Context{}, time.Second)
	if res.Status != StatusSuccess || res.Message != "done" {
		t.Fatalf("expected success/done, got %+v", res)
	}
	if res.DurationSeconds < 0 {
		t.Fatalf("expected non-negative duration")
	}
}

func TestExecuteTimeout(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubEffector{name: "slow", canHandle: true, sleep: 200 * time.Millisecond, result: Result{Status: StatusSuccess}})

	res := r.Execute("slow", Context{}, 20*time.Millisecond)
	if res.Status != StatusTimeout {
		t.Fatalf("expected timeout, got %s", res.Status)
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubEffector{name: "panics", canHandle: true, panics: true})

	res := r.Execute("panics", Context{}, time.Second)
	if res.Status != StatusFailed {
		t.Fatalf("expected failed after recovered panic, got %s", res.Status)
	}
}

func TestEvaluateSuppressesUntouchedFieldOnNonInitialChange(t *testing.T) {
	change := statestoreChangeWithPaths([]string{"app.status"})
	trigger := TriggerSpec{Field: "app.health", Condition: "exists"}
	if Evaluate(trigger, change) {
		t.Fatalf("expected evaluation false for field outside changedPaths")
	}
}

func TestEvaluateConditions(t *testing.T) {
	change := statestoreChangeWithPaths([]string{"app.health", "app.missing"})
	change.NewSnapshot.Data = map[string]any{"app": map[string]any{"health": "unhealthy", "replicas": 3.0}}

	cases := []struct {
		trigger TriggerSpec
		want    bool
	}{
		{TriggerSpec{Field: "app.health", Condition: "equals", Value: "unhealthy"}, true},
		{TriggerSpec{Field: "app.health", Condition: "not_equals", Value: "healthy"}, true},
		{TriggerSpec{Field: "app.health", Condition: "contains", Value: "health"}, true},
		{TriggerSpec{Field: "app.health", Condition: "exists"}, true},
		{TriggerSpec{Field: "app.missing", Condition: "not_exists"}, true},
		{TriggerSpec{Field: "app.health", Condition: "bogus"}, false},
	}
	for _, c := range cases {
		if got := Evaluate(c.trigger, change); got != c.want {
			t.Fatalf("condition %s: expected %v, got %v", c.trigger.Condition, c.want, got)
		}
	}
}
