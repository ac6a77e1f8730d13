package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsrelay/opsrelay/internal/config"
	"github.com/opsrelay/opsrelay/internal/remediation"
)

var (
	remediateFile    string
	remediateDryRun  bool
	remediateApprove []string
)

var remediateCmd = &cobra.Command{
	Use:   "remediate",
	Short: "Select and execute a corrective action for an issue",
	Long: `Remediate reads an issue payload, filters the action catalog for
applicable actions, selects the least disruptive one, runs the approval gate,
and executes it. Use --dry-run to simulate without touching infrastructure,
and --approve to pre-approve gated severities for this invocation.`,
	RunE: runRemediate,
}

func init() {
	remediateCmd.Flags().StringVar(&remediateFile, "file", "", "path to an issue JSON file (required)")
	remediateCmd.Flags().BoolVar(&remediateDryRun, "dry-run", false, "simulate the action without executing it")
	remediateCmd.Flags().StringSliceVar(&remediateApprove, "approve", nil,
		"action severities to pre-approve (high, critical); unapproved gated actions are denied")
	_ = remediateCmd.MarkFlagRequired("file")
}

func runRemediate(cmd *cobra.Command, _ []string) error {
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

	data, err := os.ReadFile(remediateFile)
	if err != nil {
		return fmt.Errorf("reading issue file: %w", err)
	}
	var issue remediation.Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		return fmt.Errorf("parsing issue file: %w", err)
	}

	orch := buildOrchestrator(cfg, st)
	for _, sev := range remediateApprove {
		orch.RegisterApprovalCallback(remediation.Severity(sev),
			func(issue remediation.Issue, action remediation.Action) bool {
				slog.Info("action pre-approved by operator",
					"action", action.Name(), "service", issue.Service())
				return true
			})
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()
	res := orch.Remediate(ctx, issue, remediateDryRun)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
