package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridianhealth/claims-cli/internal/seed"
	"github.com/meridianhealth/claims-cli/internal/store"
)

var submitFile string

var submitCmd = &cobra.Command{
	Use:   "submit [claim-code...]",
	Short: "Submit entered claims for checking",
	Long:  "Runs validation, product matching and a non-valuating accumulator pass over entered claims, moving the survivors to CHECKED.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		codes := args
		if submitFile != "" {
			claims, err := seed.LoadClaims(submitFile)
			if err != nil {
				return err
			}
			if err := e.Store.Seed(ctx, store.Fixtures{Claims: claims}); err != nil {
				return eris.Wrap(err, "submit: store claims")
			}
			for _, c := range claims {
				codes = append(codes, c.Code)
			}
		}
		if len(codes) == 0 {
			return eris.New("submit: no claim codes given (pass codes or --file)")
		}

		results := e.Engine.SubmitBatch(ctx, codes, cfg.Batch.ClaimsPerSecond)
		reportBatch(cmd.OutOrStdout(), "submit", results)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitFile, "file", "", "YAML file of claims to store and submit")
	rootCmd.AddCommand(submitCmd)
}
