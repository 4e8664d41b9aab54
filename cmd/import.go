package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridianhealth/claims-cli/internal/pricelist"
	"github.com/meridianhealth/claims-cli/internal/resilience"
)

var (
	importFacility  string
	importValidFrom string
	importSheet     string
	importFTPURL    string
)

var importCmd = &cobra.Command{
	Use:   "import [workbook.xlsx]",
	Short: "Import a facility price list from an XLSX workbook",
	Long:  "Parses a price list workbook (columns: kind, code, price, optional override) and upserts it as the facility's prices from the given date. With --ftp-url the workbook is fetched from the facility drop first.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if len(args) == 0 && importFTPURL == "" {
			return eris.New("import: pass a workbook path or --ftp-url")
		}
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		validFrom := time.Now().Truncate(24 * time.Hour)
		if importValidFrom != "" {
			var err error
			validFrom, err = time.Parse("2006-01-02", importValidFrom)
			if err != nil {
				return eris.Wrapf(err, "import: parse --valid-from %q", importValidFrom)
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		if importFTPURL != "" {
			fetcher := pricelist.NewFTPFetcher(pricelist.FTPOptions{
				User:     cfg.Pricelist.FTPUser,
				Password: cfg.Pricelist.FTPPassword,
				Retry: resilience.FromRetryConfig(
					cfg.Pricelist.FetchRetries, cfg.Pricelist.FetchBackoffMs, 0, 0, 0.25),
			})
			path, err = fetcher.Fetch(ctx, importFTPURL, cfg.Pricelist.LocalDir)
			if err != nil {
				return err
			}
			zap.L().Info("import: workbook fetched", zap.String("path", path))
		}

		res, err := pricelist.NewImporter(st).Import(ctx, path, importFacility, validFrom,
			pricelist.WorkbookOptions{SheetName: importSheet})
		if err != nil {
			return err
		}

		cmd.Printf("Imported %d prices for facility %s", res.Upserted, importFacility)
		if len(res.Skipped) > 0 {
			cmd.Printf(" (%d unknown codes skipped)", len(res.Skipped))
		}
		cmd.Println()
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFacility, "facility", "", "facility id the prices belong to (required)")
	importCmd.Flags().StringVar(&importValidFrom, "valid-from", "", "date the prices take effect, YYYY-MM-DD (default today)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "workbook sheet name (default first sheet)")
	importCmd.Flags().StringVar(&importFTPURL, "ftp-url", "", "fetch the workbook from this ftp:// URL before importing")
	_ = importCmd.MarkFlagRequired("facility")
	rootCmd.AddCommand(importCmd)
}
