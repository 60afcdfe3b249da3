package types

import (
	"math"

	"cloud.google.com/go/civil"
)

// DailySeriesRow is one trading day of an ETF's price, NAV and flow data.
type DailySeriesRow struct {
	Date     civil.Date
	NAV      float64
	Close    float64
	AdjClose float64
	// NetFlow is in dollars; loaders apply any unit scaling.
	NetFlow float64

	EstimatedCreationUnits float64
	// EstimatedSharesOutstanding is nil until reconstructed, and stays nil for
	// rows not reachable from an anchor.
	EstimatedSharesOutstanding *float64

	PremiumDiscount         *float64
	PremiumDiscountAdjusted *float64

	// Synthetic marks a row inserted only to hold the anchor value.
	Synthetic bool
}

func (r DailySeriesRow) HasShares() bool {
	return r.EstimatedSharesOutstanding != nil
}

// Shares returns the estimated shares outstanding or NaN when unset.
func (r DailySeriesRow) Shares() float64 {
	if r.EstimatedSharesOutstanding == nil {
		return math.NaN()
	}
	return *r.EstimatedSharesOutstanding
}

// Anchor is one known shares-outstanding observation.
type Anchor struct {
	Date   civil.Date
	Shares float64
}

func (a Anchor) Validate() error {
	if !a.Date.IsValid() {
		return ErrInvalidAnchor
	}
	if math.IsNaN(a.Shares) || math.IsInf(a.Shares, 0) {
		return ErrInvalidAnchor
	}
	return nil
}

// PriceBar is a daily close from a market-data source.
type PriceBar struct {
	Date     civil.Date
	Close    float64
	AdjClose float64
}

// NAVPoint is a daily NAV per share published by the issuer.
type NAVPoint struct {
	Date civil.Date
	NAV  float64
}

// FlowPoint is a daily net flow in dollars.
type FlowPoint struct {
	Date civil.Date
	Flow float64
}

func (b PriceBar) Day() civil.Date  { return b.Date }
func (p NAVPoint) Day() civil.Date  { return p.Date }
func (f FlowPoint) Day() civil.Date { return f.Date }
