package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsrelay/opsrelay/internal/config"
)

var rollbackID int64

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Reverse a previously recorded remediation",
	Long: `Rollback loads a remediation record from the audit store by id and asks
the action that produced it to reverse its effect. Only successful
remediations can be rolled back; irreversible actions record a no-op.`,
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().Int64Var(&rollbackID, "id", 0, "remediation record id (see: opsrelay history --remediations)")
	_ = rollbackCmd.MarkFlagRequired("id")
}

func runRollback(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("rollback requires the audit store; set database.driver in config")
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	rec, err := st.GetRemediation(ctx, rollbackID)
	if err != nil {
		return err
	}

	orch := buildOrchestrator(cfg, st)
	res := orch.Rollback(ctx, rec.Result)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
