package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/meridianhealth/claims-cli/internal/adjudicate"
	"github.com/meridianhealth/claims-cli/internal/resilience"
)

// reportBatch prints a per-claim table and logs a run summary.
func reportBatch(w io.Writer, op string, results []adjudicate.BatchResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLAIM\tOUTCOME\tDETAIL")

	var ok, rejected, failed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			// Transient failures are worth a rerun; permanent ones need a human.
			fmt.Fprintf(tw, "%s\terror (%s)\t%v\n", r.Code, resilience.ClassifyError(r.Err), r.Err)
		case len(r.Errors) > 0:
			rejected++
			for _, re := range r.Errors {
				fmt.Fprintf(tw, "%s\trejected (%d)\t%s\n", r.Code, re.Code, re.Message)
			}
		default:
			ok++
			fmt.Fprintf(tw, "%s\tok\t\n", r.Code)
		}
	}
	tw.Flush()

	zap.L().Info("batch complete",
		zap.String("op", op),
		zap.Int("claims", len(results)),
		zap.Int("passed", ok),
		zap.Int("rejected", rejected),
		zap.Int("failed", failed),
	)
}
