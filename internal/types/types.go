package types

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// BondTerms are the inputs of every bond calculation.
//
//	FaceAmount:                par value of the position.
//	CouponRate:                annual coupon rate as a decimal (0.05 for 5%), 0 for zero-coupon.
//	MarketValue:               current market value of the position.
//	TimeToMaturity:            years to maturity, may be fractional.
//	CompoundingPeriodsPerYear: coupon/compounding periods per year.
type BondTerms struct {
	FaceAmount                float64
	CouponRate                float64
	MarketValue               float64
	TimeToMaturity            float64
	CompoundingPeriodsPerYear int
}

func (t BondTerms) Validate() error {
	if !(t.FaceAmount > 0) || math.IsInf(t.FaceAmount, 0) {
		return ErrInvalidFaceAmount
	}
	if t.CouponRate < 0 || math.IsNaN(t.CouponRate) || math.IsInf(t.CouponRate, 0) {
		return ErrInvalidCouponRate
	}
	if !(t.MarketValue > 0) || math.IsInf(t.MarketValue, 0) {
		return ErrInvalidMarketValue
	}
	if !(t.TimeToMaturity > 0) || math.IsInf(t.TimeToMaturity, 0) {
		return ErrInvalidTimeToMaturity
	}
	if t.CompoundingPeriodsPerYear < 1 {
		return ErrInvalidCompounding
	}
	return nil
}

// Periods is the number of compounding periods to maturity, n·T.
func (t BondTerms) Periods() float64 {
	return float64(t.CompoundingPeriodsPerYear) * t.TimeToMaturity
}

// PeriodCoupon is the coupon paid each period, F·c/n.
func (t BondTerms) PeriodCoupon() float64 {
	return t.FaceAmount * t.CouponRate / float64(t.CompoundingPeriodsPerYear)
}

// PeriodsForSummation is the number of whole coupon periods iterated when
// summing cash flows: floor(n·T). A fractional trailing period is dropped
// from the coupon sum but the redemption is still discounted over n·T.
func PeriodsForSummation(timeToMaturity float64, n int) int {
	return int(math.Floor(float64(n) * timeToMaturity))
}

// SpotCurve holds annualised spot rates per coupon period; index 0 is period 1.
type SpotCurve []float64

// Metric is a computed value or the reason it is unavailable.
type Metric struct {
	Value float64
	Err   error
}

func MetricOf(v float64, err error) Metric {
	if err != nil {
		return Metric{Err: err}
	}
	return Metric{Value: v}
}

func Unavailable(err error) Metric {
	return Metric{Err: err}
}

func (m Metric) Ok() bool {
	return m.Err == nil
}

// Ptr returns nil for an unavailable metric, for nullable outputs.
func (m Metric) Ptr() *float64 {
	if m.Err != nil {
		return nil
	}
	v := m.Value
	return &v
}

// Reason is the failure message, empty when the metric is available.
func (m Metric) Reason() string {
	if m.Err == nil {
		return ""
	}
	return m.Err.Error()
}

func (m Metric) String() string {
	if m.Err != nil {
		return UnavailableMarker
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

// Format renders the value with the given fmt verb, or the unavailable marker.
func (m Metric) Format(verb string) string {
	if m.Err != nil {
		return UnavailableMarker
	}
	return fmt.Sprintf(verb, m.Value)
}

const UnavailableMarker = "unavailable"

type BondMetrics struct {
	YTM              Metric
	CurrentYield     Metric
	MacaulayDuration Metric
	ModifiedDuration Metric
	Convexity        Metric
	ZSpread          Metric
	// MarketPrice is only produced by the zero-coupon path.
	MarketPrice Metric
}

// Holding is one row of a fund holdings file, as loaded.
type Holding struct {
	Ticker        string
	Source        string
	Name          string
	ISIN          string
	CUSIP         string
	FaceAmount    float64
	CouponPercent float64
	MarketValue   float64
	MaturityDate  time.Time
	Weight        float64
	ZeroCoupon    bool
}

// Terms normalises the holding into BondTerms: coupon percent to decimal,
// maturity date to years from settlement (actual days / 365).
func (h *Holding) Terms(settlementDate time.Time, n int) (BondTerms, error) {
	if h == nil {
		return BondTerms{}, ErrNilHolding
	}
	if h.MaturityDate.IsZero() {
		return BondTerms{}, ErrInvalidMaturityDate
	}

	years, err := YearsToMaturity(settlementDate, h.MaturityDate)
	if err != nil {
		return BondTerms{}, err
	}

	coupon := h.CouponPercent / 100
	if h.ZeroCoupon {
		coupon = 0
	}

	terms := BondTerms{
		FaceAmount:                h.FaceAmount,
		CouponRate:                coupon,
		MarketValue:               h.MarketValue,
		TimeToMaturity:            years,
		CompoundingPeriodsPerYear: n,
	}

	return terms, terms.Validate()
}

func daysToMaturity(settlementDate, maturityDate time.Time) (int, error) {
	if maturityDate.Before(settlementDate) {
		return 0, ErrMaturityDateBeforeSettlement
	}
	return int(math.Floor(maturityDate.Sub(settlementDate).Hours() / 24)), nil
}

// YearsToMaturity is the actual number of days to maturity over 365.
func YearsToMaturity(settlementDate, maturityDate time.Time) (float64, error) {
	days, err := daysToMaturity(settlementDate, maturityDate)
	if err != nil {
		return 0, err
	}
	return float64(days) / 365.0, nil
}

// MaturityYears splits the days to maturity into 365-day years and the
// remaining days, the same convention as YearsToMaturity.
func MaturityYears(settlementDate, maturityDate time.Time) (int, int, error) {
	days, err := daysToMaturity(settlementDate, maturityDate)
	if err != nil {
		return 0, 0, err
	}
	return days / 365, days % 365, nil
}

var (
	ErrNilHolding                   = fmt.Errorf("holding is nil")
	ErrMissingSettlementDate        = fmt.Errorf("missing settlement date")
	ErrDataUnavailable              = fmt.Errorf("data unavailable")
	ErrInvalidRow                   = fmt.Errorf("invalid row")
	ErrInvalidCoupon                = fmt.Errorf("invalid coupon")
	ErrInvalidMaturityDate          = fmt.Errorf("invalid maturity date")
	ErrMaturityDateBeforeSettlement = fmt.Errorf("maturity date is before settlement date")

	ErrNoConvergence      = fmt.Errorf("root finder failed to converge")
	ErrDerivativeTooSmall = fmt.Errorf("%w (derivative is too small)", ErrNoConvergence)
	ErrInvalidCurve       = fmt.Errorf("spot curve is shorter than the bond's payment periods")
	ErrInvalidYield       = fmt.Errorf("yield must be above -100%% per period")

	ErrInvalidTerms          = fmt.Errorf("invalid bond terms")
	ErrInvalidFaceAmount     = fmt.Errorf("%w: face amount must be positive", ErrInvalidTerms)
	ErrInvalidCouponRate     = fmt.Errorf("%w: coupon rate must not be negative", ErrInvalidTerms)
	ErrInvalidMarketValue    = fmt.Errorf("%w: market value must be positive", ErrInvalidTerms)
	ErrInvalidTimeToMaturity = fmt.Errorf("%w: time to maturity must be positive", ErrInvalidTerms)
	ErrInvalidCompounding    = fmt.Errorf("%w: compounding periods per year must be at least 1", ErrInvalidTerms)

	ErrUnsortedSeries = fmt.Errorf("series dates must be strictly ascending")
	ErrInvalidNAV     = fmt.Errorf("NAV per share must be positive")
	ErrInvalidAnchor  = fmt.Errorf("invalid anchor")
)
