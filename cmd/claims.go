package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridianhealth/claims-cli/internal/model"
	"github.com/meridianhealth/claims-cli/internal/store"
)

var money = message.NewPrinter(language.English)

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Inspect claims held in the store",
}

var claimsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List claims",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetInt("status")
		facility, _ := cmd.Flags().GetString("facility")
		limit, _ := cmd.Flags().GetInt("limit")

		claims, err := st.ListClaims(ctx, store.ClaimFilter{
			Status:     model.ClaimStatus(status),
			FacilityID: facility,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "claims list")
		}

		if len(claims) == 0 {
			fmt.Fprintln(os.Stderr, "No claims found.")
			return nil
		}

		formatClaimsList(cmd.OutOrStdout(), claims)
		return nil
	},
}

var claimsShowCmd = &cobra.Command{
	Use:   "show <claim-code>",
	Short: "Show one claim with its lines",
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

		claim, err := st.GetClaim(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "claims show %s", args[0])
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claim)
		}

		formatClaim(cmd, claim)
		return nil
	},
}

func formatClaimsList(w io.Writer, claims []model.Claim) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tSTATUS\tINSUREE\tFACILITY\tCLAIMED\tVALUATED")
	for _, c := range claims {
		valuated := "-"
		if c.Valuated != nil {
			valuated = money.Sprintf("%.2f", *c.Valuated)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Code, c.Status, c.InsureeID, c.FacilityID,
			money.Sprintf("%.2f", c.Claimed), valuated)
	}
	tw.Flush()
}

func formatClaim(cmd *cobra.Command, c *model.Claim) {
	cmd.Printf("Claim %s  status=%s  review=%d  feedback=%d\n", c.Code, c.Status, c.Review, c.Feedback)
	cmd.Printf("Insuree %s at facility %s (%s), claimed %s\n",
		c.InsureeID, c.FacilityID, string(c.Level), money.Sprintf("%.2f", c.Claimed))
	if c.RejectionReason != 0 {
		cmd.Printf("Rejected: %s\n", c.RejectionReason)
	}
	if c.Valuated != nil {
		cmd.Printf("Valuated: %s\n", money.Sprintf("%.2f", *c.Valuated))
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tKIND\tCODE\tQTY\tASKED\tREMUNERATED\tSTATUS")
	for _, l := range c.Lines {
		status := "passed"
		if l.Rejected() {
			status = fmt.Sprintf("rejected (%d)", l.RejectionReason)
		}
		code := "?"
		if ref := l.Catalog(); ref != nil {
			code = ref.CatalogCode()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\t%s\t%s\n",
			l.ID, l.Kind, code, l.Quantity(),
			money.Sprintf("%.2f", l.PriceAsked),
			money.Sprintf("%.2f", l.RemuneratedAmount), status)
	}
	tw.Flush()
}

func init() {
	claimsListCmd.Flags().Int("status", 0, "filter by status (1 rejected, 2 entered, 4 checked, 8 processed, 16 valuated)")
	claimsListCmd.Flags().String("facility", "", "filter by facility id")
	claimsListCmd.Flags().Int("limit", 50, "max claims to list")
	claimsShowCmd.Flags().Bool("json", false, "print the claim as JSON")
	claimsCmd.AddCommand(claimsListCmd, claimsShowCmd)
	rootCmd.AddCommand(claimsCmd)
}
