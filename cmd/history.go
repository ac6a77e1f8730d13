package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsrelay/opsrelay/internal/config"
)

var (
	historyLimit        int
	historyRemediations bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded alert or remediation history",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 100, "maximum number of entries")
	historyCmd.Flags().BoolVar(&historyRemediations, "remediations", false, "show remediation history instead of alerts")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("history requires the audit store; set database.driver in config")
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if historyRemediations {
		recs, err := st.ListRemediations(ctx, historyLimit)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			fmt.Fprintf(cmd.OutOrStdout(), "# remediation %d (%s)\n", rec.ID, rec.CreatedAt)
			if err := enc.Encode(rec.Result); err != nil {
				return err
			}
		}
		return nil
	}

	alerts, err := st.ListAlerts(ctx, historyLimit)
	if err != nil {
		return err
	}
	return enc.Encode(alerts)
}
