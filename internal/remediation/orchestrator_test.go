package remediation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedAction is a configurable catalog entry for orchestrator tests.
type scriptedAction struct {
	name      string
	severity  Severity
	canFn     func(Issue) bool
	execErr   string
	execCount int32
}

func (s *scriptedAction) Name() string        { return s.name }
func (s *scriptedAction) Description() string { return s.name }
func (s *scriptedAction) Severity() Severity  { return s.severity }

func (s *scriptedAction) CanRemediate(_ context.Context, issue Issue) bool {
	if s.canFn == nil {
		return true
	}
	return s.canFn(issue)
}

func (s *scriptedAction) Execute(_ context.Context, issue Issue, dryRun bool) *ExecutionResult {
	atomic.AddInt32(&s.execCount, 1)
	res := &ExecutionResult{
		Action:    s.name,
		DryRun:    dryRun,
		Timestamp: time.Now(),
		Details:   map[string]any{"service": issue.Service()},
	}
	if s.execErr != "" {
		res.Error = s.execErr
		return res
	}
	res.Success = true
	return res
}

func (s *scriptedAction) Rollback(_ context.Context, prior *ExecutionResult) *ExecutionResult {
	return &ExecutionResult{
		Action:    "rollback_" + s.name,
		Success:   true,
		Timestamp: time.Now(),
		Details:   prior.Details,
	}
}

func (s *scriptedAction) executions() int32 { return atomic.LoadInt32(&s.execCount) }

func TestRemediateNoApplicableAction(t *testing.T) {
	o := NewOrchestrator([]Action{
		&scriptedAction{name: "never", severity: SeverityLow, canFn: func(Issue) bool { return false }},
	})
	res := o.Remediate(context.Background(), Issue{"service": "web"}, false)
	if res.Success {
		t.Fatal("Remediate succeeded with no applicable action")
	}
	if res.Message != "no applicable remediation actions found" {
		t.Fatalf("message = %q", res.Message)
	}
	if res.Action != "" {
		t.Fatalf("action = %q, want empty", res.Action)
	}
}

func TestRemediateSelectsLeastDisruptive(t *testing.T) {
	gentle := &scriptedAction{name: "gentle", severity: SeverityLow}
	harsh := &scriptedAction{name: "harsh", severity: SeverityHigh}
	o := NewOrchestrator([]Action{harsh, gentle})

	res := o.Remediate(context.Background(), Issue{"service": "web"}, false)
	if !res.Success {
		t.Fatalf("Remediate: %s", res.Message)
	}
	if res.Action != "gentle" {
		t.Fatalf("selected %q, want gentle", res.Action)
	}
	if gentle.executions() != 1 || harsh.executions() != 0 {
		t.Fatalf("executions: gentle = %d, harsh = %d", gentle.executions(), harsh.executions())
	}
}

// When the least-disruptive candidate needs no approval, the gate must not
// run at all, even with a denying callback registered for higher severities.
func TestRemediateApprovalNotConsultedForUngatedAction(t *testing.T) {
	gentle := &scriptedAction{name: "gentle", severity: SeverityMedium}
	harsh := &scriptedAction{name: "harsh", severity: SeverityHigh}
	o := NewOrchestrator([]Action{harsh, gentle})

	var consulted atomic.Bool
	o.RegisterApprovalCallback(SeverityHigh, func(Issue, Action) bool {
		consulted.Store(true)
		return false
	})

	res := o.Remediate(context.Background(), Issue{"service": "web"}, false)
	if !res.Success || res.Action != "gentle" {
		t.Fatalf("result = %+v", res)
	}
	if consulted.Load() {
		t.Fatal("approval gate consulted for ungated action")
	}
}

func TestRemediateApprovalMissingCallback(t *testing.T) {
	harsh := &scriptedAction{name: "harsh", severity: SeverityHigh}
	o := NewOrchestrator([]Action{harsh})

	res := o.Remediate(context.Background(), Issue{"service": "web"}, false)
	if res.Success {
		t.Fatal("gated action ran without callback")
	}
	if res.Message != "remediation action requires approval, but no approval callback registered" {
		t.Fatalf("message = %q", res.Message)
	}
	if harsh.executions() != 0 {
		t.Fatal("Execute was invoked despite missing approval")
	}
}

func TestRemediateApprovalDenied(t *testing.T) {
	harsh := &scriptedAction{name: "harsh", severity: SeverityCritical}
	o := NewOrchestrator([]Action{harsh})
	o.RegisterApprovalCallback(SeverityCritical, func(Issue, Action) bool { return false })

	res := o.Remediate(context.Background(), Issue{"service": "web"}, false)
	if res.Success {
		t.Fatal("denied action ran")
	}
	if res.Message != "remediation action not approved" {
		t.Fatalf("message = %q", res.Message)
	}
	if harsh.executions() != 0 {
		t.Fatal("Execute was invoked despite denial")
	}
}

func TestRemediateApprovalGranted(t *testing.T) {
	harsh := &scriptedAction{name: "harsh", severity: SeverityHigh}
	o := NewOrchestrator([]Action{harsh})

	var sawIssue Issue
	o.RegisterApprovalCallback(SeverityHigh, func(issue Issue, a Action) bool {
		sawIssue = issue
		return a.Name() == "harsh"
	})

	res := o.Remediate(context.Background(), Issue{"service": "web"}, false)
	if !res.Success {
		t.Fatalf("approved action failed: %s", res.Message)
	}
	if sawIssue.Service() != "web" {
		t.Fatalf("callback saw issue %v", sawIssue)
	}
}

// Re-registering replaces the callback for that severity.
func TestRegisterApprovalCallbackReplaces(t *testing.T) {
	harsh := &scriptedAction{name: "harsh", severity: SeverityHigh}
	o := NewOrchestrator([]Action{harsh})
	o.RegisterApprovalCallback(SeverityHigh, func(Issue, Action) bool { return false })
	o.RegisterApprovalCallback(SeverityHigh, func(Issue, Action) bool { return true })

	if res := o.Remediate(context.Background(), Issue{"service": "web"}, false); !res.Success {
		t.Fatalf("Remediate after replacement: %s", res.Message)
	}
}

// Dry runs skip the approval gate: they change nothing, so they are always
// safe to preview.
func TestRemediateDryRunSkipsApproval(t *testing.T) {
	harsh := &scriptedAction{name: "harsh", severity: SeverityCritical}
	o := NewOrchestrator([]Action{harsh})

	res := o.Remediate(context.Background(), Issue{"service": "web"}, true)
	if !res.Success {
		t.Fatalf("dry run blocked: %s", res.Message)
	}
	if !res.Execution.DryRun {
		t.Fatal("execution not marked dry run")
	}
}

func TestRemediateExecutionFailure(t *testing.T) {
	broken := &scriptedAction{name: "broken", severity: SeverityLow, execErr: "control plane returned 503"}
	o := NewOrchestrator([]Action{broken})

	res := o.Remediate(context.Background(), Issue{"service": "web"}, false)
	if res.Success {
		t.Fatal("failed execution reported success")
	}
	if res.Message != "remediation action failed: control plane returned 503" {
		t.Fatalf("message = %q", res.Message)
	}
	if res.Execution != nil {
		t.Fatal("failed result carries an execution payload")
	}
	// The failed attempt still lands in the audit history.
	hist := o.History()
	if len(hist) != 1 || hist[0].Kind != "execute" || hist[0].Result.Success {
		t.Fatalf("history = %+v", hist)
	}
}

func TestRollbackRequiresSuccessfulPrior(t *testing.T) {
	o := NewOrchestrator([]Action{&scriptedAction{name: "a", severity: SeverityLow}})

	for _, prior := range []*Result{nil, {Success: false, Action: "a"}} {
		rb := o.Rollback(context.Background(), prior)
		if rb.Success {
			t.Fatal("rollback of unsuccessful remediation succeeded")
		}
		if rb.Message != "cannot rollback unsuccessful remediation" {
			t.Fatalf("message = %q", rb.Message)
		}
	}
}

func TestRollbackUnknownAction(t *testing.T) {
	o := NewOrchestrator(nil)
	rb := o.Rollback(context.Background(), &Result{
		Success:   true,
		Action:    "retired_action",
		Execution: &ExecutionResult{Action: "retired_action", Success: true},
	})
	if rb.Success {
		t.Fatal("rollback of unknown action succeeded")
	}
	if rb.Message != "action retired_action not found" {
		t.Fatalf("message = %q", rb.Message)
	}
}

func TestRollbackRecordsHistory(t *testing.T) {
	a := &scriptedAction{name: "a", severity: SeverityLow}
	o := NewOrchestrator([]Action{a})

	res := o.Remediate(context.Background(), Issue{"service": "web"}, false)
	rb := o.Rollback(context.Background(), res)
	if !rb.Success {
		t.Fatalf("rollback: %s", rb.Message)
	}
	if rb.Execution.Action != "rollback_a" {
		t.Fatalf("rollback execution = %+v", rb.Execution)
	}

	hist := o.History()
	if len(hist) != 2 {
		t.Fatalf("history entries = %d, want 2", len(hist))
	}
	if hist[0].Kind != "execute" || hist[1].Kind != "rollback" {
		t.Fatalf("history kinds = %q, %q", hist[0].Kind, hist[1].Kind)
	}
}

// Concurrent remediation of the same service must serialize: with a catalog
// whose execution records interleaving, no two executions may overlap.
func TestRemediateSerializesPerResource(t *testing.T) {
	var mu sync.Mutex
	var active, maxActive int

	slow := &trackingAction{onExecute: func() {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	}}
	o := NewOrchestrator([]Action{slow})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Remediate(context.Background(), Issue{"service": "web"}, false)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("max concurrent executions for one service = %d, want 1", maxActive)
	}
}

// Different services must not block each other.
func TestRemediateDistinctResourcesRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	executing := make(chan struct{}, 2)

	slow := &trackingAction{onExecute: func() {
		executing <- struct{}{}
		<-release
	}}
	o := NewOrchestrator([]Action{slow})

	var wg sync.WaitGroup
	for _, svc := range []string{"web", "db"} {
		wg.Add(1)
		go func(svc string) {
			defer wg.Done()
			o.Remediate(context.Background(), Issue{"service": svc}, false)
		}(svc)
	}

	// Both executions must be in flight at once before either is released.
	for i := 0; i < 2; i++ {
		select {
		case <-executing:
		case <-time.After(2 * time.Second):
			t.Fatal("remediations for distinct services blocked each other")
		}
	}
	close(release)
	wg.Wait()
}

type trackingAction struct {
	onExecute func()
}

func (a *trackingAction) Name() string        { return "tracking" }
func (a *trackingAction) Description() string { return "tracking" }
func (a *trackingAction) Severity() Severity  { return SeverityLow }

func (a *trackingAction) CanRemediate(context.Context, Issue) bool { return true }

func (a *trackingAction) Execute(_ context.Context, issue Issue, dryRun bool) *ExecutionResult {
	if a.onExecute != nil {
		a.onExecute()
	}
	return &ExecutionResult{Action: a.Name(), Success: true, DryRun: dryRun, Timestamp: time.Now()}
}

func (a *trackingAction) Rollback(context.Context, *ExecutionResult) *ExecutionResult {
	return &ExecutionResult{Action: "rollback_tracking", Success: true, Timestamp: time.Now()}
}
