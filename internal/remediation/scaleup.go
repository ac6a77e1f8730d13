package remediation

import (
	"context"
	"time"

	"github.com/opsrelay/opsrelay/internal/workload"
)

// ScaleUpDeployment adds replicas to a deployment whose CPU or memory usage
// triggered the issue.
type ScaleUpDeployment struct {
	client workload.API
}

// NewScaleUpDeployment builds the action over a workload client.
func NewScaleUpDeployment(client workload.API) *ScaleUpDeployment {
	return &ScaleUpDeployment{client: client}
}

func (a *ScaleUpDeployment) Name() string        { return "scale_up_deployment" }
func (a *ScaleUpDeployment) Description() string { return "Scale up a deployment" }
func (a *ScaleUpDeployment) Severity() Severity  { return SeverityMedium }

// CanRemediate is true when the issue is a cpu/memory usage metric and the
// named service exists as a deployment.
func (a *ScaleUpDeployment) CanRemediate(ctx context.Context, issue Issue) bool {
	switch issue.MetricName() {
	case "cpu_usage", "memory_usage":
	default:
		return false
	}
	if issue.Service() == "" {
		return false
	}
	_, err := a.client.GetDeployment(ctx, issue.Namespace(), issue.Service())
	return err == nil
}

// Execute scales the deployment to max(replicas+1, replicas*1.5). A dry run
// reports the would-be counts without patching anything.
func (a *ScaleUpDeployment) Execute(ctx context.Context, issue Issue, dryRun bool) *ExecutionResult {
	service, namespace := issue.Service(), issue.Namespace()
	res := &ExecutionResult{
		Action:    a.Name(),
		DryRun:    dryRun,
		Timestamp: time.Now(),
		Details:   map[string]any{"service": service, "namespace": namespace},
	}

	dep, err := a.client.GetDeployment(ctx, namespace, service)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	newReplicas := dep.Replicas + 1
	if grown := dep.Replicas * 3 / 2; grown > newReplicas {
		newReplicas = grown
	}
	res.Details["previous_replicas"] = dep.Replicas
	res.Details["new_replicas"] = newReplicas

	if dryRun {
		res.Success = true
		return res
	}
	if err := a.client.ScaleDeployment(ctx, namespace, service, newReplicas); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

// Rollback restores the replica count recorded at execute time.
func (a *ScaleUpDeployment) Rollback(ctx context.Context, prior *ExecutionResult) *ExecutionResult {
	service := prior.StrDetail("service")
	namespace := prior.StrDetail("namespace")
	if prior.DryRun {
		return dryRunRollback(a.Name(), map[string]any{"service": service, "namespace": namespace})
	}

	res := &ExecutionResult{
		Action:    "rollback_" + a.Name(),
		Timestamp: time.Now(),
		Details:   map[string]any{"service": service, "namespace": namespace},
	}
	previous, ok := prior.IntDetail("previous_replicas")
	if !ok {
		res.Error = "prior result is missing previous_replicas"
		return res
	}
	res.Details["rollback_replicas"] = previous
	if current, ok := prior.IntDetail("new_replicas"); ok {
		res.Details["current_replicas"] = current
	}

	if err := a.client.ScaleDeployment(ctx, namespace, service, previous); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}
