package remediation

import (
	"context"
	"time"

	"github.com/opsrelay/opsrelay/internal/workload"
)

// RestartPod deletes a problematic pod and lets the workload orchestrator's
// controller recreate it.
type RestartPod struct {
	client workload.API
}

// NewRestartPod builds the action over a workload client.
func NewRestartPod(client workload.API) *RestartPod {
	return &RestartPod{client: client}
}

func (a *RestartPod) Name() string        { return "restart_pod" }
func (a *RestartPod) Description() string { return "Restart a problematic pod" }
func (a *RestartPod) Severity() Severity  { return SeverityMedium }

// CanRemediate is true when the issue names a pod that currently exists.
func (a *RestartPod) CanRemediate(ctx context.Context, issue Issue) bool {
	pod := issue.PodName()
	if pod == "" {
		return false
	}
	_, err := a.client.GetPod(ctx, issue.Namespace(), pod)
	return err == nil
}

func (a *RestartPod) Execute(ctx context.Context, issue Issue, dryRun bool) *ExecutionResult {
	pod, namespace := issue.PodName(), issue.Namespace()
	res := &ExecutionResult{
		Action:    a.Name(),
		DryRun:    dryRun,
		Timestamp: time.Now(),
		Details:   map[string]any{"pod_name": pod, "namespace": namespace},
	}
	if dryRun {
		res.Success = true
		return res
	}
	if err := a.client.DeletePod(ctx, namespace, pod); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

// Rollback is a documented no-op: a deleted pod cannot be resurrected, the
// controller has already replaced it.
func (a *RestartPod) Rollback(_ context.Context, prior *ExecutionResult) *ExecutionResult {
	return &ExecutionResult{
		Action:    "rollback_" + a.Name(),
		Success:   true,
		Message:   "no rollback possible for pod restart",
		Timestamp: time.Now(),
		Details: map[string]any{
			"pod_name":  prior.StrDetail("pod_name"),
			"namespace": prior.StrDetail("namespace"),
		},
	}
}
