package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridianhealth/claims-cli/internal/model"
	"github.com/meridianhealth/claims-cli/internal/store"
)

var processAuditUser int

var processCmd = &cobra.Command{
	Use:   "process [claim-code...]",
	Short: "Value checked claims against deductibles and ceilings",
	Long:  "Reruns the full pipeline with valuation over checked claims. Claims priced entirely from fixed origins move to VALUATED; claims with relative-priced lines stay PROCESSED for batch valuation.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		results := e.Engine.ProcessBatch(ctx, args, cfg.Batch.ClaimsPerSecond, processAuditUser)
		reportBatch(cmd.OutOrStdout(), "process", results)
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process every checked claim in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		facility, _ := cmd.Flags().GetString("facility")
		limit, _ := cmd.Flags().GetInt("limit")
		if limit == 0 {
			limit = cfg.Batch.Limit
		}

		claims, err := e.Store.ListClaims(ctx, store.ClaimFilter{
			Status:     model.ClaimStatusChecked,
			FacilityID: facility,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "batch: list checked claims")
		}
		if len(claims) == 0 {
			cmd.Println("No checked claims to process.")
			return nil
		}

		codes := make([]string, len(claims))
		for i, c := range claims {
			codes[i] = c.Code
		}

		results := e.Engine.ProcessBatch(ctx, codes, cfg.Batch.ClaimsPerSecond, processAuditUser)
		reportBatch(cmd.OutOrStdout(), "batch", results)
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&processAuditUser, "user", 0, "audit user id recorded on ledger entries")
	rootCmd.AddCommand(processCmd)

	batchCmd.Flags().IntVar(&processAuditUser, "user", 0, "audit user id recorded on ledger entries")
	batchCmd.Flags().String("facility", "", "only process claims from this facility")
	batchCmd.Flags().Int("limit", 0, "max claims per run (default from config)")
	rootCmd.AddCommand(batchCmd)
}
