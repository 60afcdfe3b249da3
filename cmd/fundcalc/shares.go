package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"benritz/fundcalc/internal/collect"
	"benritz/fundcalc/internal/series"
	"benritz/fundcalc/internal/types"
)

type sharesOptions struct {
	prices       string
	navs         string
	flows        string
	from, to     civil.Date
	anchorDate   string
	anchorShares float64
	dryRun       bool
}

var sharesCmd = &cobra.Command{
	Use:   "shares <ticker>...",
	Short: "Reconstruct estimated daily shares outstanding from flows and NAV",
	Example: `  fundcalc shares IEF TLT --prices data/{ticker}_prices.csv --nav data/{ticker}_nav.csv --from 2024-01-01
  fundcalc shares IEF --prices data/IEF.csv --nav data/IEF_nav.csv --flows data/IEF_flows.json --anchor-date 2024-03-05 --anchor-shares 1.2345e9`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()

		var opts sharesOptions
		opts.prices, _ = flags.GetString("prices")
		opts.navs, _ = flags.GetString("nav")
		opts.flows, _ = flags.GetString("flows")
		opts.anchorDate, _ = flags.GetString("anchor-date")
		opts.anchorShares, _ = flags.GetFloat64("anchor-shares")
		opts.dryRun, _ = flags.GetBool("dry-run")

		if opts.navs == "" {
			return fmt.Errorf("--nav is required")
		}

		fromStr, _ := flags.GetString("from")
		toStr, _ := flags.GetString("to")

		from, err := parseDate(fromStr)
		if err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
		to, err := parseDate(toStr)
		if err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
		if fromStr == "" {
			from = to.AddDate(-1, 0, 0)
		}
		opts.from, opts.to = civil.DateOf(from), civil.DateOf(to)

		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(cfg.Workers)

		for _, ticker := range args {
			ticker = strings.ToUpper(ticker)
			g.Go(func() error {
				if err := reconstructTicker(ctx, ticker, opts); err != nil {
					return fmt.Errorf("%s: %w", ticker, err)
				}
				return nil
			})
		}

		return g.Wait()
	},
}

func init() {
	sharesCmd.Flags().String("prices", "", "daily price CSV path, may contain {ticker}")
	sharesCmd.Flags().String("nav", "", "NAV history CSV path, may contain {ticker}")
	sharesCmd.Flags().String("flows", "", "fund flows JSON path, may contain {ticker} (default: fetch from flows.base_url)")
	sharesCmd.Flags().String("from", "", "first date (YYYY-MM-DD), default one year before --to")
	sharesCmd.Flags().String("to", "", "last date (YYYY-MM-DD), default today")
	sharesCmd.Flags().String("anchor-date", "", "date of a known shares outstanding figure (default: scrape product page)")
	sharesCmd.Flags().Float64("anchor-shares", 0, "shares outstanding on --anchor-date")
	sharesCmd.Flags().Bool("dry-run", false, "print the result without storing")
	sharesCmd.MarkFlagsRequiredTogether("anchor-date", "anchor-shares")
}

func forTicker(path, ticker string) string {
	return strings.ReplaceAll(path, "{ticker}", ticker)
}

func reconstructTicker(ctx context.Context, ticker string, opts sharesOptions) error {
	rows, err := buildSeries(ctx, ticker, opts)
	if err != nil {
		return err
	}

	if len(rows) > 0 {
		first, last := rows[0], rows[len(rows)-1]
		fmt.Printf("%s: %d days %s..%s, shares outstanding %s -> %s\n",
			ticker, len(rows), first.Date, last.Date, formatShares(first), formatShares(last))
	} else {
		fmt.Printf("%s: no days with both NAV and flows\n", ticker)
	}

	if opts.dryRun {
		return nil
	}

	outPath, err := store(ctx, collect.SeriesRecords(ticker, rows), ticker+"-shares", opts.to.In(time.UTC))
	if err != nil {
		return err
	}
	fmt.Printf("Stored data to %s\n", outPath)

	return nil
}

// buildSeries loads the ticker's sources, joins them and reconstructs shares
// outstanding around the resolved anchor.
func buildSeries(ctx context.Context, ticker string, opts sharesOptions) ([]types.DailySeriesRow, error) {
	log := logger.WithField("ticker", ticker)

	var prices []types.PriceBar
	if opts.prices != "" {
		var err error
		prices, err = collect.LoadFile(forTicker(opts.prices, ticker), collect.LoadPrices)
		if err != nil {
			return nil, err
		}
	}

	navs, err := collect.LoadFile(forTicker(opts.navs, ticker), collect.LoadNAV)
	if err != nil {
		return nil, err
	}

	flows, err := loadFlows(ctx, ticker, opts)
	if err != nil {
		return nil, err
	}

	rows := series.Assemble(inRange(prices, opts), inRange(navs, opts), inRange(flows, opts))
	log.WithFields(logrus.Fields{"prices": len(prices), "navs": len(navs), "flows": len(flows), "rows": len(rows)}).Debug("series assembled")

	anchor, err := resolveAnchor(ctx, log, ticker, opts)
	if err != nil {
		return nil, err
	}

	return series.Reconstruct(rows, anchor)
}

func loadFlows(ctx context.Context, ticker string, opts sharesOptions) ([]types.FlowPoint, error) {
	scale, err := cfg.FlowScale()
	if err != nil {
		return nil, err
	}

	if opts.flows != "" {
		return collect.LoadFile(forTicker(opts.flows, ticker), func(r io.Reader) ([]types.FlowPoint, error) {
			return collect.LoadFlows(r, scale)
		})
	}

	client := collect.NewFlowClient(cfg.Flows.BaseURL, cfg.Flows.Token, scale)
	return client.Fetch(ctx, ticker, opts.from, opts.to)
}

// resolveAnchor returns the anchor given on the command line, or scrapes
// one. Bad flags are errors; a failed scrape leaves the series unanchored.
func resolveAnchor(ctx context.Context, log *logrus.Entry, ticker string, opts sharesOptions) (*types.Anchor, error) {
	if opts.anchorDate != "" {
		date, err := civil.ParseDate(opts.anchorDate)
		if err != nil {
			return nil, fmt.Errorf("invalid --anchor-date: %w", err)
		}
		if !(opts.anchorShares > 0) {
			return nil, fmt.Errorf("--anchor-shares must be positive, got %v", opts.anchorShares)
		}
		anchor := &types.Anchor{Date: date, Shares: opts.anchorShares}
		if err := anchor.Validate(); err != nil {
			return nil, err
		}
		return anchor, nil
	}

	anchor, err := collect.NewAnchorCollector(cfg.Anchor.URL).Collect(ctx, ticker)
	if err != nil {
		log.WithError(err).Warn("no anchor, shares outstanding left unset")
		return nil, nil
	}
	return anchor, nil
}

func formatShares(r types.DailySeriesRow) string {
	if !r.HasShares() {
		return "unset"
	}
	return fmt.Sprintf("%.0f", r.Shares())
}

type dated interface {
	Day() civil.Date
}

func inRange[T dated](points []T, opts sharesOptions) []T {
	out := make([]T, 0, len(points))
	for _, p := range points {
		if d := p.Day(); d.Before(opts.from) || d.After(opts.to) {
			continue
		}
		out = append(out, p)
	}
	return out
}
