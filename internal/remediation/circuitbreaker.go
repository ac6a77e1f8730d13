package remediation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opsrelay/opsrelay/internal/config"
)

// breakerTTLSeconds is how long an enabled breaker stays tripped before the
// control service re-closes it on its own.
const breakerTTLSeconds = 300

// CircuitBreaker trips an external circuit breaker between a service and a
// failing dependency via the breaker-control API.
type CircuitBreaker struct {
	apiURL string
	apiKey string
	client *http.Client
}

// NewCircuitBreaker builds the action from its API configuration.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		apiURL: cfg.APIURL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *CircuitBreaker) Name() string { return "circuit_breaker" }
func (a *CircuitBreaker) Description() string {
	return "Enable circuit breaker for a failing dependency"
}
func (a *CircuitBreaker) Severity() Severity { return SeverityHigh }

// CanRemediate is true when the issue is a dependency error-rate metric
// naming the failing dependency.
func (a *CircuitBreaker) CanRemediate(_ context.Context, issue Issue) bool {
	return issue.MetricName() == "dependency_error_rate" && issue.Dependency() != ""
}

func (a *CircuitBreaker) Execute(ctx context.Context, issue Issue, dryRun bool) *ExecutionResult {
	service, dependency := issue.Service(), issue.Dependency()
	res := &ExecutionResult{
		Action:    a.Name(),
		DryRun:    dryRun,
		Timestamp: time.Now(),
		Details: map[string]any{
			"service":         service,
			"dependency":      dependency,
			"timeout_seconds": breakerTTLSeconds,
		},
	}
	if dryRun {
		res.Success = true
		return res
	}
	if err := a.post(ctx, map[string]any{
		"service":         service,
		"dependency":      dependency,
		"enabled":         true,
		"timeout_seconds": breakerTTLSeconds,
	}); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

// Rollback disables the breaker again.
func (a *CircuitBreaker) Rollback(ctx context.Context, prior *ExecutionResult) *ExecutionResult {
	service := prior.StrDetail("service")
	dependency := prior.StrDetail("dependency")
	if prior.DryRun {
		return dryRunRollback(a.Name(), map[string]any{"service": service, "dependency": dependency})
	}

	res := &ExecutionResult{
		Action:    "rollback_" + a.Name(),
		Timestamp: time.Now(),
		Details:   map[string]any{"service": service, "dependency": dependency},
	}
	if err := a.post(ctx, map[string]any{
		"service":    service,
		"dependency": dependency,
		"enabled":    false,
	}); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

func (a *CircuitBreaker) post(ctx context.Context, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL+"/circuit-breaker", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("breaker control API returned %d", resp.StatusCode)
	}
	return nil
}
