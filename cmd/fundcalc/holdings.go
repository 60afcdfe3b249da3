package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"benritz/fundcalc/internal/collect"
	"benritz/fundcalc/internal/holdings"
	"benritz/fundcalc/internal/types"
)

var holdingsCmd = &cobra.Command{
	Use:   "holdings <ticker>...",
	Short: "Enrich fund holdings with bond metrics and store them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		location, _ := cmd.Flags().GetString("location")
		if location == "" {
			location = cfg.Holdings.Location
		}
		if location == "" {
			return fmt.Errorf("no holdings location: set --location or holdings.location")
		}

		settlementStr, _ := cmd.Flags().GetString("settlement")
		settlement, err := parseDate(settlementStr)
		if err != nil {
			return fmt.Errorf("invalid settlement date: %w", err)
		}

		curve, _ := cmd.Flags().GetFloat64Slice("curve")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		enricher := holdings.NewEnricher(cfg.SolverSettings(), cfg.Workers, logger)
		if len(curve) > 0 {
			enricher.Curve = curve
		}

		collector := collect.NewWorkbookCollector(location, logger)
		if strings.HasPrefix(location, "s3://") {
			client, err := s3Client(ctx)
			if err != nil {
				return err
			}
			collector.S3 = client
		}

		for _, ticker := range args {
			ticker = strings.ToUpper(ticker)
			collector.ZeroCoupon = cfg.IsZeroCoupon(ticker)

			collected, err := collector.Collect(ctx, ticker, settlement)
			if err != nil {
				return fmt.Errorf("%s: failed to collect holdings: %w", ticker, err)
			}

			for _, f := range collected.Failures {
				logger.WithFields(logrus.Fields{"ticker": ticker, "row": f.Row}).WithError(f.Err).Warn("skipped holding")
			}

			enriched, err := enricher.Enrich(ctx, settlement, cfg.Compounding, collected.Holdings)
			if err != nil {
				return err
			}

			printSummary(holdings.Summarize(ticker, enriched), len(collected.Failures))

			if dryRun {
				continue
			}

			outPath, err := store(ctx, collect.HoldingRecords(enriched), ticker+"-holdings", settlement)
			if err != nil {
				return err
			}
			fmt.Printf("Stored data to %s\n", outPath)
		}

		return nil
	},
}

func init() {
	holdingsCmd.Flags().String("location", "", "holdings file location, may contain {ticker}")
	holdingsCmd.Flags().String("settlement", "", "settlement date (YYYY-MM-DD), default today")
	holdingsCmd.Flags().Float64Slice("curve", nil, "spot rates per period as decimals, enables Z-spread")
	holdingsCmd.Flags().Bool("dry-run", false, "print the summary without storing")
}

func printSummary(s holdings.Summary, skipped int) {
	fmt.Printf("%s: %d holdings (%d skipped), market value %.2f\n", s.Ticker, s.Holdings, skipped, s.TotalMarketValue)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tmetric\tweighted average\tunavailable")
	for _, m := range holdings.Metrics {
		avg := s.Averages[m.Name]
		fmt.Fprintf(w, "\t%s\t%s\t%d\n", m.Name, formatMetric(avg), s.Failed[m.Name])
	}
	w.Flush()
}

func formatMetric(m types.Metric) string {
	return m.Format("%.6f")
}
