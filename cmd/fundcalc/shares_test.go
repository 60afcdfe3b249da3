package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"

	"benritz/fundcalc/internal/types"
)

func day(d int) civil.Date {
	return civil.Date{Year: 2024, Month: 3, Day: d}
}

func TestResolveAnchor(t *testing.T) {
	hook := setupCommand(t)
	log := logger.WithField("ticker", "IEF")
	ctx := context.Background()

	anchor, err := resolveAnchor(ctx, log, "IEF", sharesOptions{anchorDate: "2024-03-05", anchorShares: 1e6})
	if err != nil {
		t.Fatal(err)
	}
	if anchor == nil || anchor.Date != day(5) || anchor.Shares != 1e6 {
		t.Errorf("anchor = %+v", anchor)
	}

	if _, err := resolveAnchor(ctx, log, "IEF", sharesOptions{anchorDate: "2024-13-45", anchorShares: 1e6}); err == nil {
		t.Error("expected an error for an invalid --anchor-date")
	}
	if _, err := resolveAnchor(ctx, log, "IEF", sharesOptions{anchorDate: "2024-03-05"}); err == nil {
		t.Error("expected an error for missing --anchor-shares")
	}
	if len(hook.AllEntries()) != 0 {
		t.Errorf("flag errors must not be logged as warnings: %v", hook.AllEntries())
	}
}

func TestResolveAnchorScrapeFailure(t *testing.T) {
	hook := setupCommand(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	cfg.Anchor.URL = srv.URL + "/products/{ticker}"

	anchor, err := resolveAnchor(context.Background(), logger.WithField("ticker", "IEF"), "IEF", sharesOptions{})
	if err != nil || anchor != nil {
		t.Fatalf("anchor = %+v, err = %v, want no anchor and no error", anchor, err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Data["ticker"] != "IEF" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestInRange(t *testing.T) {
	opts := sharesOptions{from: day(4), to: day(6)}

	var navs []types.NAVPoint
	for d := 3; d <= 7; d++ {
		navs = append(navs, types.NAVPoint{Date: day(d), NAV: 10})
	}

	got := inRange(navs, opts)
	if len(got) != 3 || got[0].Date != day(4) || got[2].Date != day(6) {
		t.Errorf("inRange = %+v", got)
	}

	if got := inRange([]types.FlowPoint(nil), opts); len(got) != 0 {
		t.Errorf("inRange(nil) = %+v", got)
	}
}

// writeSeries writes a three-day price, NAV and flow history for IEF. NAV is
// 10 and flows are 3000, 5000, -2000 dollars, so creation units are 300,
// 500, -200.
func writeSeries(t *testing.T) sharesOptions {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, dir, "IEF_prices.csv", "Date,Open,High,Low,Close,Adj Close,Volume\n"+
		"2024-03-04,10,10,10,10.1,10.0,100\n"+
		"2024-03-05,10,10,10,9.9,9.8,100\n")
	writeFile(t, dir, "IEF_nav.csv", "As Of,NAV per Share\n"+
		"2024-03-04,10\n"+
		"2024-03-05,10\n"+
		"2024-03-06,10\n"+
		"2024-03-07,10\n")
	writeFile(t, dir, "IEF_flows.json", `{"data":[`+
		`{"asOf":"2024-03-04","value":0.003},`+
		`{"asOf":"2024-03-05","value":0.005},`+
		`{"asOf":"2024-03-06","value":-0.002},`+
		`{"asOf":"2024-03-07","value":1}]}`)

	return sharesOptions{
		prices: filepath.Join(dir, "{ticker}_prices.csv"),
		navs:   filepath.Join(dir, "{ticker}_nav.csv"),
		flows:  filepath.Join(dir, "{ticker}_flows.json"),
		from:   day(1),
		to:     day(6),
	}
}

func TestBuildSeries(t *testing.T) {
	setupCommand(t)

	opts := writeSeries(t)
	opts.anchorDate = "2024-03-05"
	opts.anchorShares = 1000

	rows, err := buildSeries(context.Background(), "IEF", opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3 (day 7 is after --to)", len(rows))
	}

	for i, want := range []float64{500, 1000, 800} {
		if !rows[i].HasShares() || rows[i].Shares() != want {
			t.Errorf("row %s shares = %v, want %v", rows[i].Date, rows[i].Shares(), want)
		}
	}
	if rows[0].PremiumDiscount == nil || rows[2].PremiumDiscount != nil {
		t.Errorf("premium/discount = %v, %v", rows[0].PremiumDiscount, rows[2].PremiumDiscount)
	}
}

func TestBuildSeriesRejectsBadAnchor(t *testing.T) {
	setupCommand(t)

	opts := writeSeries(t)
	opts.anchorDate = "2024-13-45"
	opts.anchorShares = 1e6

	_, err := buildSeries(context.Background(), "IEF", opts)
	if err == nil || !strings.Contains(err.Error(), "--anchor-date") {
		t.Errorf("err = %v, want an invalid --anchor-date error", err)
	}

	if err := reconstructTicker(context.Background(), "IEF", opts); err == nil {
		t.Error("reconstructTicker accepted an invalid anchor")
	}
}

func TestReconstructTicker(t *testing.T) {
	setupCommand(t)

	opts := writeSeries(t)
	opts.anchorDate = "2024-03-06"
	opts.anchorShares = 800
	opts.dryRun = true

	if err := reconstructTicker(context.Background(), "IEF", opts); err != nil {
		t.Fatal(err)
	}
	if entries, _ := os.ReadDir(cfg.Output.Destination); len(entries) != 0 {
		t.Errorf("dry run stored %d entries", len(entries))
	}

	opts.dryRun = false
	if err := reconstructTicker(context.Background(), "IEF", opts); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(cfg.Output.Destination, "2024", "03", "06", "IEF-shares.parquet")
	if _, err := os.Stat(out); err != nil {
		t.Errorf("stored file: %v", err)
	}
}

func TestFormatShares(t *testing.T) {
	shares := 1234.4
	if got := formatShares(types.DailySeriesRow{EstimatedSharesOutstanding: &shares}); got != "1234" {
		t.Errorf("formatShares = %s", got)
	}
	if got := formatShares(types.DailySeriesRow{}); got != "unset" {
		t.Errorf("formatShares(unset) = %s", got)
	}
}

func TestAnchorFlagsRequiredTogether(t *testing.T) {
	if err := sharesCmd.Flags().Set("anchor-date", "2024-03-05"); err != nil {
		t.Fatal(err)
	}

	if err := sharesCmd.ValidateFlagGroups(); err == nil {
		t.Error("--anchor-date without --anchor-shares accepted")
	}
}
