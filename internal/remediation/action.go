// Package remediation implements the corrective-action catalog and the
// orchestrator that selects, gates, executes, and rolls back actions in
// response to detected issues.
package remediation

import (
	"context"
	"encoding/json"
	"time"
)

// Severity classifies how disruptive an action is. It is metadata used for
// least-disruptive-first selection and approval gating, never for dispatch.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight orders severities ascending; unrecognized values sort last.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 4
	}
}

// RequiresApproval reports whether actions of this severity need an approval
// decision before executing.
func (s Severity) RequiresApproval() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Issue is the free-form payload describing a detected or predicted problem.
// Detection producers are external; actions read only the keys they
// recognise.
type Issue map[string]any

func (i Issue) str(key string) string {
	if v, ok := i[key].(string); ok {
		return v
	}
	return ""
}

// Service names the affected service, when present.
func (i Issue) Service() string { return i.str("service") }

// Namespace defaults to "default" when the issue does not carry one.
func (i Issue) Namespace() string {
	if ns := i.str("namespace"); ns != "" {
		return ns
	}
	return "default"
}

// PodName names a specific pod, when present.
func (i Issue) PodName() string { return i.str("pod_name") }

// Dependency names a failing downstream dependency, when present.
func (i Issue) Dependency() string { return i.str("dependency") }

// MetricName names the metric that triggered the issue, when present.
func (i Issue) MetricName() string { return i.str("metric_name") }

// ExecutionResult is the immutable record of a single action execution or
// rollback. Details must be self-contained: rollback reads everything it
// needs (previous replica counts, resource names) from here, never from
// external state captured at execute time.
type ExecutionResult struct {
	Action    string         `json:"action"`
	Success   bool           `json:"success"`
	DryRun    bool           `json:"dry_run,omitempty"`
	Error     string         `json:"error,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// IntDetail reads a numeric detail, tolerating the float64 that JSON
// round-tripping through the audit store produces.
func (r *ExecutionResult) IntDetail(key string) (int, bool) {
	switch v := r.Details[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

// StrDetail reads a string detail.
func (r *ExecutionResult) StrDetail(key string) string {
	if v, ok := r.Details[key].(string); ok {
		return v
	}
	return ""
}

// Action is one catalog entry: a stateless corrective operation with a
// capability check, an execution, and a rollback. Execute and Rollback never
// return Go errors across the boundary; collaborator failures are captured
// as Success=false with a diagnostic in the result.
type Action interface {
	Name() string
	Description() string
	Severity() Severity
	CanRemediate(ctx context.Context, issue Issue) bool
	Execute(ctx context.Context, issue Issue, dryRun bool) *ExecutionResult
	Rollback(ctx context.Context, prior *ExecutionResult) *ExecutionResult
}

// dryRunRollback is the shared rollback short-circuit for executions that
// never touched the collaborator.
func dryRunRollback(action string, details map[string]any) *ExecutionResult {
	return &ExecutionResult{
		Action:    "rollback_" + action,
		Success:   true,
		Message:   "no rollback needed for dry run",
		Timestamp: time.Now(),
		Details:   details,
	}
}
