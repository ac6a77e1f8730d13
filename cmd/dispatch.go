package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsrelay/opsrelay/internal/alert"
	"github.com/opsrelay/opsrelay/internal/config"
)

var (
	dispatchTemplate   string
	dispatchSource     string
	dispatchContext    []string
	dispatchFile       string
	dispatchRenderOnly bool
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Render and send an alert through configured channels",
	Long: `Dispatch builds an alert, either from a registered template plus context
variables or from a full alert JSON file, and sends it through the dedupe
and rate-limit gate to every matching channel.`,
	RunE: runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchTemplate, "template", "", "template name to render")
	dispatchCmd.Flags().StringVar(&dispatchSource, "source", "", "alert source (service or component)")
	dispatchCmd.Flags().StringArrayVar(&dispatchContext, "context", nil, "template context variable as key=value (repeatable)")
	dispatchCmd.Flags().StringVar(&dispatchFile, "file", "", "path to a full alert JSON file")
	dispatchCmd.Flags().BoolVar(&dispatchRenderOnly, "render-only", false, "print the rendered alert without sending")
}

func runDispatch(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	mgr, registry, err := buildManager(cfg, st)
	if err != nil {
		return err
	}
	defer mgr.Close()

	a, err := buildAlert(registry)
	if err != nil {
		if errors.Is(err, alert.ErrTemplateNotFound) {
			// Missing template is a no-op send, not a failure.
			slog.Error("alert template not found, skipping send", "template", dispatchTemplate)
			fmt.Fprintln(cmd.OutOrStdout(), "alert not sent")
			return nil
		}
		return err
	}

	if dispatchRenderOnly {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(a)
	}

	retryInterval := time.Duration(cfg.Alerting.RetryIntervalSeconds) * time.Second
	// The deadline covers the initial send plus every retry pass.
	timeout := 30*time.Second + time.Duration(cfg.Alerting.MaxRetries)*(retryInterval+30*time.Second)
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	sent := mgr.Send(ctx, a)
	if !sent && a.DeliveryAttempts > 0 {
		// Matched channels all failed; keep retrying on the configured
		// cadence until delivery or the terminal attempt count.
		slog.Info("delivery failed, entering retry loop",
			"id", a.ID, "interval", retryInterval, "max_retries", cfg.Alerting.MaxRetries)
		sched := alert.NewRetryScheduler(mgr, retryInterval, cfg.Alerting.MaxRetries, alert.SystemClock)
		sched.Drain(ctx)
		sent = a.Delivered
	}

	if sent {
		fmt.Fprintf(cmd.OutOrStdout(), "alert %s sent\n", a.ID)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "alert not sent")
	}
	return nil
}

func buildAlert(registry *alert.Registry) (*alert.Alert, error) {
	if dispatchFile != "" {
		data, err := os.ReadFile(dispatchFile)
		if err != nil {
			return nil, fmt.Errorf("reading alert file: %w", err)
		}
		var raw struct {
			Title     string         `json:"title"`
			Message   string         `json:"message"`
			Severity  string         `json:"severity"`
			Source    string         `json:"source"`
			Details   map[string]any `json:"details"`
			Tags      []string       `json:"tags"`
			DedupeKey string         `json:"dedupe_key"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing alert file: %w", err)
		}
		sev, err := alert.ParseSeverity(raw.Severity)
		if err != nil {
			return nil, err
		}
		opts := []alert.Option{alert.WithDetails(raw.Details), alert.WithTags(raw.Tags...)}
		if raw.DedupeKey != "" {
			opts = append(opts, alert.WithDedupeKey(raw.DedupeKey))
		}
		return alert.New(raw.Title, raw.Message, sev, raw.Source, opts...), nil
	}

	if dispatchTemplate == "" || dispatchSource == "" {
		return nil, fmt.Errorf("either --file or both --template and --source are required")
	}
	ctx := make(map[string]any, len(dispatchContext))
	for _, kv := range dispatchContext {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --context %q, expected key=value", kv)
		}
		ctx[k] = v
	}
	return registry.Render(dispatchTemplate, dispatchSource, ctx)
}
