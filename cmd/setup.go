package cmd

import (
	"fmt"
	"time"

	"github.com/opsrelay/opsrelay/internal/alert"
	"github.com/opsrelay/opsrelay/internal/config"
	"github.com/opsrelay/opsrelay/internal/notify"
	"github.com/opsrelay/opsrelay/internal/remediation"
	"github.com/opsrelay/opsrelay/internal/store"
	"github.com/opsrelay/opsrelay/internal/workload"
)

// openStore opens the audit store when a database driver is configured.
// Returns nil when persistence is disabled.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Database.Driver == "" {
		return nil, nil
	}
	return store.Open(cfg.Database)
}

// buildManager assembles the alert manager from configuration: channel
// senders, templates, gate settings, and the optional audit recorder.
func buildManager(cfg *config.Config, st *store.Store) (*alert.Manager, *alert.Registry, error) {
	var channels []alert.Channel
	for _, chCfg := range cfg.Alerting.Channels {
		ch, err := notify.Build(chCfg)
		if err != nil {
			return nil, nil, err
		}
		channels = append(channels, ch)
	}

	var templates []alert.Template
	for _, tCfg := range cfg.Alerting.Templates {
		sev, err := alert.ParseSeverity(tCfg.Severity)
		if err != nil {
			return nil, nil, fmt.Errorf("template %q: %w", tCfg.Name, err)
		}
		templates = append(templates, alert.Template{
			Name:     tCfg.Name,
			Title:    tCfg.Title,
			Message:  tCfg.Message,
			Severity: sev,
			Tags:     tCfg.Tags,
		})
	}

	opts := []alert.ManagerOption{}
	if st != nil {
		opts = append(opts, alert.WithRecorder(st))
	}
	mgr := alert.NewManager(alert.Settings{
		DedupeWindow:    time.Duration(cfg.Alerting.DedupeWindowSeconds) * time.Second,
		RateLimit:       cfg.Alerting.RateLimit,
		RateLimitWindow: time.Duration(cfg.Alerting.RateLimitWindowSeconds) * time.Second,
		HistoryLimit:    cfg.Alerting.HistoryLimit,
	}, channels, opts...)

	return mgr, alert.NewRegistry(templates...), nil
}

// buildOrchestrator assembles the remediation orchestrator and its action
// catalog from configuration.
func buildOrchestrator(cfg *config.Config, st *store.Store) *remediation.Orchestrator {
	client := workload.New(cfg.Remediation.Workload)
	actions := []remediation.Action{
		remediation.NewScaleUpDeployment(client),
		remediation.NewRestartPod(client),
	}
	if cfg.Remediation.CircuitBreaker.APIURL != "" {
		actions = append(actions, remediation.NewCircuitBreaker(cfg.Remediation.CircuitBreaker))
	}

	opts := []remediation.OrchestratorOption{}
	if st != nil {
		opts = append(opts, remediation.WithRecorder(st))
	}
	return remediation.NewOrchestrator(actions, opts...)
}
