package main

import (
	"github.com/spf13/cobra"

	"github.com/meridianhealth/claims-cli/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixtures.yaml>",
	Short: "Load reference data from a YAML fixture bundle",
	Long:  "Upserts insurees, products, policies, catalog items and services, coverage terms, price lists and claims from a YAML file. Re-running with the same file updates in place.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if err := seed.Apply(ctx, st, args[0]); err != nil {
			return err
		}
		cmd.Println("Fixtures applied.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
