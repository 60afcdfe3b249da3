package collect

import (
	"benritz/fundcalc/internal/bond"
	"benritz/fundcalc/internal/holdings"
	"benritz/fundcalc/internal/types"
	"errors"
	"time"
)

// HoldingRecord is the stored form of an enriched holding. Unavailable
// metrics are null.
type HoldingRecord struct {
	Ticker           string    `parquet:"ticker"`
	Source           string    `parquet:"source"`
	Name             string    `parquet:"name"`
	ISIN             string    `parquet:"isin"`
	CUSIP            string    `parquet:"cusip"`
	FaceAmount       float64   `parquet:"face_amount"`
	CouponRate       float64   `parquet:"coupon_rate"`
	MarketValue      float64   `parquet:"market_value"`
	MaturityDate     time.Time `parquet:"maturity_date"`
	TimeToMaturity   float64   `parquet:"time_to_maturity"`
	Weight           float64   `parquet:"weight"`
	ZeroCoupon       bool      `parquet:"zero_coupon"`
	YTM              *float64  `parquet:"ytm,optional"`
	CurrentYield     *float64  `parquet:"current_yield,optional"`
	MacaulayDuration *float64  `parquet:"macaulay_duration,optional"`
	ModifiedDuration *float64  `parquet:"modified_duration,optional"`
	Convexity        *float64  `parquet:"convexity,optional"`
	ZSpread          *float64  `parquet:"z_spread,optional"`
	MarketPrice      *float64  `parquet:"market_price,optional"`
	AccruedInterest  *float64  `parquet:"accrued_interest,optional"`
	CleanPrice       *float64  `parquet:"clean_price,optional"`
	Error            string    `parquet:"error"`
	ZSpreadError     string    `parquet:"z_spread_error"`
}

func HoldingRecords(rows []*holdings.EnrichedHolding) []HoldingRecord {
	records := make([]HoldingRecord, 0, len(rows))

	for _, r := range rows {
		if r == nil || r.Holding == nil {
			continue
		}
		h := r.Holding
		m := r.Metrics

		rec := HoldingRecord{
			Ticker:           h.Ticker,
			Source:           h.Source,
			Name:             h.Name,
			ISIN:             h.ISIN,
			CUSIP:            h.CUSIP,
			FaceAmount:       h.FaceAmount,
			CouponRate:       h.CouponPercent / 100,
			MarketValue:      h.MarketValue,
			MaturityDate:     h.MaturityDate,
			TimeToMaturity:   r.Terms.TimeToMaturity,
			Weight:           h.Weight,
			ZeroCoupon:       h.ZeroCoupon,
			YTM:              m.YTM.Ptr(),
			CurrentYield:     m.CurrentYield.Ptr(),
			MacaulayDuration: m.MacaulayDuration.Ptr(),
			ModifiedDuration: m.ModifiedDuration.Ptr(),
			Convexity:        m.Convexity.Ptr(),
			ZSpread:          m.ZSpread.Ptr(),
			MarketPrice:      m.MarketPrice.Ptr(),
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		} else {
			rec.Error = m.YTM.Reason()

			// no curve was supplied, null is expected
			if !errors.Is(m.ZSpread.Err, bond.ErrNoCurve) {
				rec.ZSpreadError = m.ZSpread.Reason()
			}

			if r.Terms.Validate() == nil {
				a := bond.AccrualOf(r.Terms)
				rec.AccruedInterest = &a.AccruedInterest
				rec.CleanPrice = &a.CleanPrice
			}
		}

		records = append(records, rec)
	}

	return records
}

// SeriesRecord is the stored form of a reconstructed daily row.
type SeriesRecord struct {
	Ticker                     string    `parquet:"ticker"`
	Date                       time.Time `parquet:"date"`
	NAV                        float64   `parquet:"nav"`
	Close                      float64   `parquet:"close"`
	AdjClose                   float64   `parquet:"adj_close"`
	NetFlow                    float64   `parquet:"net_flow"`
	EstimatedCreationUnits     float64   `parquet:"estimated_creation_units"`
	EstimatedSharesOutstanding *float64  `parquet:"estimated_shares_outstanding,optional"`
	PremiumDiscount            *float64  `parquet:"premium_discount,optional"`
	PremiumDiscountAdjusted    *float64  `parquet:"premium_discount_adjusted,optional"`
	Synthetic                  bool      `parquet:"synthetic"`
}

func SeriesRecords(ticker string, rows []types.DailySeriesRow) []SeriesRecord {
	records := make([]SeriesRecord, len(rows))

	for i, r := range rows {
		records[i] = SeriesRecord{
			Ticker:                     ticker,
			Date:                       r.Date.In(time.UTC),
			NAV:                        r.NAV,
			Close:                      r.Close,
			AdjClose:                   r.AdjClose,
			NetFlow:                    r.NetFlow,
			EstimatedCreationUnits:     r.EstimatedCreationUnits,
			EstimatedSharesOutstanding: r.EstimatedSharesOutstanding,
			PremiumDiscount:            r.PremiumDiscount,
			PremiumDiscountAdjusted:    r.PremiumDiscountAdjusted,
			Synthetic:                  r.Synthetic,
		}
	}

	return records
}
