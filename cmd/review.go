package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridianhealth/claims-cli/internal/adjudicate"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Drive the medical review sub-machine",
}

var reviewSelectCmd = &cobra.Command{
	Use:   "select <claim-code>",
	Short: "Select a claim for medical review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Engine.SelectForReview(ctx, args[0]); err != nil {
			return err
		}
		cmd.Printf("Claim %s selected for review.\n", args[0])
		return nil
	},
}

var (
	reviewRejectLines []string
	reviewAuditUser   int
)

var reviewDeliverCmd = &cobra.Command{
	Use:   "deliver <claim-code>",
	Short: "Deliver review verdicts and revalue the claim",
	Long:  "Marks the listed lines as rejected by review and reruns the accumulator over the survivors. Rejecting every line rejects the claim and deletes its ledger entries.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		claim, err := e.Store.GetClaim(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "review: load claim %s", args[0])
		}

		rejected := make(map[string]bool, len(reviewRejectLines))
		for _, id := range reviewRejectLines {
			rejected[strings.TrimSpace(id)] = true
		}

		verdicts := make([]adjudicate.ReviewVerdict, 0, len(claim.Lines))
		for _, line := range claim.Lines {
			verdicts = append(verdicts, adjudicate.ReviewVerdict{
				LineID:   line.ID,
				Accepted: !rejected[line.ID],
			})
		}

		errs, err := e.Engine.DeliverReview(ctx, args[0], verdicts, reviewAuditUser)
		if err != nil {
			return err
		}
		reportBatch(cmd.OutOrStdout(), "review", []adjudicate.BatchResult{{Code: args[0], Errors: errs}})
		return nil
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Drive the insuree feedback sub-machine",
}

var feedbackSelectCmd = &cobra.Command{
	Use:   "select <claim-code>",
	Short: "Select a claim for insuree feedback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Engine.SelectForFeedback(ctx, args[0]); err != nil {
			return err
		}
		cmd.Printf("Claim %s selected for feedback.\n", args[0])
		return nil
	},
}

var feedbackDeliverCmd = &cobra.Command{
	Use:   "deliver <claim-code>",
	Short: "Mark a selected claim's feedback as delivered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Engine.DeliverFeedback(ctx, args[0]); err != nil {
			return err
		}
		cmd.Printf("Feedback delivered for claim %s.\n", args[0])
		return nil
	},
}

func init() {
	reviewDeliverCmd.Flags().StringSliceVar(&reviewRejectLines, "reject", nil, "line ids to reject (all others are accepted)")
	reviewDeliverCmd.Flags().IntVar(&reviewAuditUser, "user", 0, "audit user id recorded on ledger entries")
	reviewCmd.AddCommand(reviewSelectCmd, reviewDeliverCmd)
	rootCmd.AddCommand(reviewCmd)

	feedbackCmd.AddCommand(feedbackSelectCmd, feedbackDeliverCmd)
	rootCmd.AddCommand(feedbackCmd)
}
