package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ApprovalFunc decides whether a gated action may run against an issue.
type ApprovalFunc func(issue Issue, action Action) bool

// Result is the outcome of one Remediate call.
type Result struct {
	Issue     Issue            `json:"issue"`
	Action    string           `json:"action,omitempty"`
	Success   bool             `json:"success"`
	Message   string           `json:"message,omitempty"`
	Execution *ExecutionResult `json:"execution_result,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// RollbackResult is the outcome of one Rollback call. It references the
// execution payload of the rollback itself; the original remediation record
// is never mutated.
type RollbackResult struct {
	Action    string           `json:"action,omitempty"`
	Success   bool             `json:"success"`
	Message   string           `json:"message,omitempty"`
	Execution *ExecutionResult `json:"execution_result,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// HistoryEntry is one append-only audit record of an execution or rollback.
type HistoryEntry struct {
	Kind      string           `json:"kind"` // "execute" or "rollback"
	Action    string           `json:"action"`
	Issue     Issue            `json:"issue,omitempty"`
	Result    *ExecutionResult `json:"result"`
	Timestamp time.Time        `json:"timestamp"`
}

// Recorder persists remediation outcomes. Failures are logged, never
// propagated.
type Recorder interface {
	RecordRemediation(ctx context.Context, res *Result) error
	RecordRollback(ctx context.Context, res *RollbackResult) error
}

// Orchestrator selects the least-disruptive applicable action for an issue,
// runs it through the approval gate, executes it, and keeps the audit
// history. The catalog is append-only after startup.
type Orchestrator struct {
	mu        sync.Mutex
	actions   []Action
	approvals map[Severity]ApprovalFunc
	history   []HistoryEntry

	// locks serializes remediation per resource key so two concurrent calls
	// against the same service cannot both select and execute actions.
	locks sync.Map // resource key -> *sync.Mutex

	recorder Recorder
}

// OrchestratorOption customises construction.
type OrchestratorOption func(*Orchestrator)

// WithRecorder attaches a persistence hook for remediation outcomes.
func WithRecorder(r Recorder) OrchestratorOption {
	return func(o *Orchestrator) { o.recorder = r }
}

// NewOrchestrator builds an orchestrator over the given action catalog.
func NewOrchestrator(actions []Action, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		actions:   actions,
		approvals: make(map[Severity]ApprovalFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Register appends an action to the catalog.
func (o *Orchestrator) Register(a Action) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions = append(o.actions, a)
}

// RegisterApprovalCallback installs the approval decision for one action
// severity, replacing any previous callback for that severity. Gated actions
// with no registered callback are denied, never silently approved.
func (o *Orchestrator) RegisterApprovalCallback(severity Severity, fn ApprovalFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.approvals[severity] = fn
}

// Remediate picks and executes a corrective action for the issue. All
// failure modes return a failed Result with a diagnostic message; it never
// panics and never returns a Go error.
func (o *Orchestrator) Remediate(ctx context.Context, issue Issue, dryRun bool) *Result {
	unlock := o.lockResource(issue)
	defer unlock()

	candidates := o.applicable(ctx, issue)
	if len(candidates) == 0 {
		return &Result{
			Issue:     issue,
			Success:   false,
			Message:   "no applicable remediation actions found",
			Timestamp: time.Now(),
		}
	}

	// Prefer the least disruptive candidate.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Severity().Weight() < candidates[j].Severity().Weight()
	})
	selected := candidates[0]

	if selected.Severity().RequiresApproval() && !dryRun {
		if msg, ok := o.approve(issue, selected); !ok {
			return &Result{
				Issue:     issue,
				Action:    selected.Name(),
				Success:   false,
				Message:   msg,
				Timestamp: time.Now(),
			}
		}
	}

	slog.Info("executing remediation action",
		"action", selected.Name(), "service", issue.Service(), "dry_run", dryRun)
	execution := selected.Execute(ctx, issue, dryRun)
	o.appendHistory(HistoryEntry{
		Kind:      "execute",
		Action:    selected.Name(),
		Issue:     issue,
		Result:    execution,
		Timestamp: time.Now(),
	})

	res := &Result{
		Issue:     issue,
		Action:    selected.Name(),
		Timestamp: time.Now(),
	}
	if !execution.Success {
		slog.Error("remediation action failed", "action", selected.Name(), "error", execution.Error)
		res.Message = fmt.Sprintf("remediation action failed: %s", execution.Error)
	} else {
		res.Success = true
		res.Execution = execution
	}

	if o.recorder != nil {
		if err := o.recorder.RecordRemediation(ctx, res); err != nil {
			slog.Warn("recording remediation failed", "action", selected.Name(), "error", err)
		}
	}
	return res
}

// Rollback reverses a previously successful remediation. The action is
// looked up by name in the static catalog, not in history.
func (o *Orchestrator) Rollback(ctx context.Context, prior *Result) *RollbackResult {
	if prior == nil || !prior.Success {
		return &RollbackResult{
			Success:   false,
			Message:   "cannot rollback unsuccessful remediation",
			Timestamp: time.Now(),
		}
	}

	action := o.lookup(prior.Action)
	if action == nil {
		return &RollbackResult{
			Success:   false,
			Message:   fmt.Sprintf("action %s not found", prior.Action),
			Timestamp: time.Now(),
		}
	}

	slog.Info("rolling back remediation action", "action", prior.Action)
	execution := action.Rollback(ctx, prior.Execution)
	o.appendHistory(HistoryEntry{
		Kind:      "rollback",
		Action:    prior.Action,
		Result:    execution,
		Timestamp: time.Now(),
	})

	res := &RollbackResult{
		Action:    prior.Action,
		Success:   execution.Success,
		Message:   execution.Message,
		Execution: execution,
		Timestamp: time.Now(),
	}
	if !execution.Success {
		res.Message = execution.Error
	}

	if o.recorder != nil {
		if err := o.recorder.RecordRollback(ctx, res); err != nil {
			slog.Warn("recording rollback failed", "action", prior.Action, "error", err)
		}
	}
	return res
}

// History returns a copy of the execution/rollback audit trail, oldest first.
func (o *Orchestrator) History() []HistoryEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]HistoryEntry, len(o.history))
	copy(out, o.history)
	return out
}

func (o *Orchestrator) applicable(ctx context.Context, issue Issue) []Action {
	o.mu.Lock()
	catalog := make([]Action, len(o.actions))
	copy(catalog, o.actions)
	o.mu.Unlock()

	var out []Action
	for _, a := range catalog {
		if a.CanRemediate(ctx, issue) {
			out = append(out, a)
		}
	}
	return out
}

// approve runs the approval gate. Missing callback and explicit denial both
// block execution; the distinction only shows in the message.
func (o *Orchestrator) approve(issue Issue, action Action) (string, bool) {
	o.mu.Lock()
	fn := o.approvals[action.Severity()]
	o.mu.Unlock()

	if fn == nil {
		return "remediation action requires approval, but no approval callback registered", false
	}
	if !fn(issue, action) {
		return "remediation action not approved", false
	}
	return "", true
}

func (o *Orchestrator) lookup(name string) Action {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range o.actions {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

func (o *Orchestrator) appendHistory(e HistoryEntry) {
	o.mu.Lock()
	o.history = append(o.history, e)
	o.mu.Unlock()
}

// lockResource serializes remediation for one resource. The key is the
// issue's service, falling back to the pod name; keyless issues share one
// lock, which is safe if overly conservative.
func (o *Orchestrator) lockResource(issue Issue) func() {
	key := issue.Service()
	if key == "" {
		key = issue.PodName()
	}
	v, _ := o.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
