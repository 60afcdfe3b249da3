package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"benritz/fundcalc/internal/bond"
	"benritz/fundcalc/internal/types"
)

var bondCmd = &cobra.Command{
	Use:   "bond",
	Short: "Compute the metrics of a single bond",
	Example: `  fundcalc bond --coupon 3.63 --face 74483351 --market-value 23274498.68 --years 12 --compounding 1
  fundcalc bond --zero --face 1000 --market-value 500 --maturity 2040-05-15`,
	RunE: func(cmd *cobra.Command, args []string) error {
		terms, zero, err := termsFromFlags(cmd)
		if err != nil {
			return err
		}

		curve, _ := cmd.Flags().GetFloat64Slice("curve")

		var metrics types.BondMetrics
		if zero {
			metrics = bond.AnalyzeZeroCoupon(terms)
		} else {
			var c types.SpotCurve
			if len(curve) > 0 {
				c = curve
			}
			metrics = cfg.SolverSettings().Analyze(terms, c)
		}

		purchasePrice, _ := cmd.Flags().GetFloat64("purchase-price")

		printTerms(terms, zero)
		printAccrual(terms, purchasePrice)
		printMetrics(metrics)

		return nil
	},
}

var zspreadCmd = &cobra.Command{
	Use:   "zspread",
	Short: "Solve the Z-spread of a bond over a spot curve",
	Example: `  fundcalc zspread --coupon 5 --face 1000 --market-value 980 --years 3 --compounding 1 --curve 0.03,0.035,0.04`,
	RunE: func(cmd *cobra.Command, args []string) error {
		terms, _, err := termsFromFlags(cmd)
		if err != nil {
			return err
		}

		curve, _ := cmd.Flags().GetFloat64Slice("curve")
		if len(curve) == 0 {
			return fmt.Errorf("--curve is required")
		}

		z, err := cfg.SolverSettings().ZSpread(terms, curve)
		if err != nil {
			return err
		}

		fmt.Printf("Z-spread: %.6f (%.2f bp)\n", z, z*10_000)
		return nil
	},
}

func init() {
	addTermsFlags(bondCmd)
	addTermsFlags(zspreadCmd)
	bondCmd.Flags().Bool("zero", false, "zero-coupon bond")
	bondCmd.Flags().Float64("purchase-price", 0, "purchase price, reports the capital gain or loss")
}

// addTermsFlags registers the flags read by termsFromFlags.
func addTermsFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("coupon", 0, "annual coupon rate (%)")
	cmd.Flags().Float64("face", 100, "face amount")
	cmd.Flags().Float64("market-value", 0, "market value")
	cmd.Flags().Float64("years", 0, "years to maturity (instead of --maturity)")
	cmd.Flags().String("maturity", "", "maturity date (YYYY-MM-DD)")
	cmd.Flags().String("settlement", "", "settlement date (YYYY-MM-DD), default today")
	cmd.Flags().Int("compounding", 0, "compounding periods per year (default from config)")
	cmd.Flags().Float64Slice("curve", nil, "spot rates per period as decimals")
	cmd.MarkFlagRequired("market-value")
}

func termsFromFlags(cmd *cobra.Command) (types.BondTerms, bool, error) {
	flags := cmd.Flags()

	coupon, _ := flags.GetFloat64("coupon")
	face, _ := flags.GetFloat64("face")
	marketValue, _ := flags.GetFloat64("market-value")
	years, _ := flags.GetFloat64("years")
	maturity, _ := flags.GetString("maturity")
	settlement, _ := flags.GetString("settlement")
	n, _ := flags.GetInt("compounding")
	zero, _ := flags.GetBool("zero")

	if n == 0 {
		n = cfg.Compounding
	}

	if coupon < 0.0 || coupon > 100.0 {
		return types.BondTerms{}, false, fmt.Errorf("coupon rate must be between 0.0 and 100.0")
	}

	if maturity != "" {
		settlementDate, err := parseDate(settlement)
		if err != nil {
			return types.BondTerms{}, false, fmt.Errorf("invalid settlement date: %w", err)
		}
		maturityDate, err := parseDate(maturity)
		if err != nil {
			return types.BondTerms{}, false, fmt.Errorf("invalid maturity date: %w", err)
		}
		h := &types.Holding{
			FaceAmount:    face,
			CouponPercent: coupon,
			MarketValue:   marketValue,
			MaturityDate:  maturityDate,
			ZeroCoupon:    zero,
		}
		if y, d, err := types.MaturityYears(settlementDate, maturityDate); err == nil {
			logger.WithFields(logrus.Fields{"years": y, "days": d}).Debug("time to maturity")
		}
		terms, err := h.Terms(settlementDate, n)
		return terms, zero, err
	}

	if years <= 0 {
		return types.BondTerms{}, false, fmt.Errorf("--years or --maturity is required")
	}

	rate := coupon / 100
	if zero {
		rate = 0
	}

	terms := types.BondTerms{
		FaceAmount:                face,
		CouponRate:                rate,
		MarketValue:               marketValue,
		TimeToMaturity:            years,
		CompoundingPeriodsPerYear: n,
	}

	return terms, zero, terms.Validate()
}

func printTerms(t types.BondTerms, zero bool) {
	fmt.Printf("Bond Details:\n")
	fmt.Printf("\tZero Coupon: %t\n", zero)
	fmt.Printf("\tFace Amount: %.3f\n", t.FaceAmount)
	fmt.Printf("\tCoupon Rate: %.3f%%\n", t.CouponRate*100)
	fmt.Printf("\tMarket Value: %.3f\n", t.MarketValue)
	fmt.Printf("\tTime to Maturity: %.4f years\n", t.TimeToMaturity)
	fmt.Printf("\tCompounding Periods: %d per year\n", t.CompoundingPeriodsPerYear)
}

func printAccrual(t types.BondTerms, purchasePrice float64) {
	a := bond.AccrualOf(t)
	fmt.Printf("\tAccrued Interest: %.3f (%.2f of a period)\n", a.AccruedInterest, a.PeriodsSinceLastPayment)
	fmt.Printf("\tClean Price: %.3f (%.4f per face)\n", a.CleanPrice, a.PricePerFace)
	if purchasePrice > 0 {
		fmt.Printf("\tCapital Gain/Loss: %.3f\n", bond.CapitalGainLoss(t.MarketValue, purchasePrice))
	}
}

func printMetrics(m types.BondMetrics) {
	fmt.Printf("Metrics:\n")
	fmt.Printf("\tYield to Maturity: %s\n", m.YTM.Format("%.6f"))
	fmt.Printf("\tCurrent Yield: %s\n", m.CurrentYield.Format("%.6f"))
	fmt.Printf("\tMacaulay Duration: %s\n", m.MacaulayDuration.Format("%.4f"))
	fmt.Printf("\tModified Duration: %s\n", m.ModifiedDuration.Format("%.4f"))
	fmt.Printf("\tConvexity: %s\n", m.Convexity.Format("%.4f"))
	fmt.Printf("\tZ-spread: %s\n", m.ZSpread.Format("%.6f"))
	if m.MarketPrice.Ok() {
		fmt.Printf("\tMarket Price: %s\n", m.MarketPrice.Format("%.3f"))
	}

	for name, metric := range map[string]types.Metric{"ytm": m.YTM, "convexity": m.Convexity} {
		if !metric.Ok() {
			logger.WithField("metric", name).WithError(metric.Err).Warn("metric unavailable")
		}
	}
}
