package bond

import (
	"math"

	"benritz/fundcalc/internal/types"
)

// Zero-coupon bonds have closed forms for every metric. Nothing here
// iterates, so the only possible error is a precondition violation.

// ZeroCouponYTM is (F/P)^(1/T) - 1, compounded annually.
func ZeroCouponYTM(faceAmount, marketValue, timeToMaturity float64) (float64, error) {
	if err := validZero(faceAmount, marketValue, timeToMaturity); err != nil {
		return 0, err
	}
	return math.Pow(faceAmount/marketValue, 1/timeToMaturity) - 1, nil
}

// ZeroCouponMacaulayDuration is the time to the single cash flow.
func ZeroCouponMacaulayDuration(timeToMaturity float64) float64 {
	return timeToMaturity
}

func ZeroCouponModifiedDuration(timeToMaturity, ytm float64) float64 {
	return timeToMaturity / (1 + ytm)
}

// ZeroCouponConvexity uses semi-annual compounding of the yield:
//
//	(T^2 + T/2) / (1 + ytm/2)^(2 + 2T)
func ZeroCouponConvexity(timeToMaturity, ytm float64) float64 {
	return (timeToMaturity*timeToMaturity + timeToMaturity/2) / math.Pow(1+ytm/2, 2+2*timeToMaturity)
}

// ZeroCouponMarketPrice is F / (1+ytm)^T, the inverse of ZeroCouponYTM.
func ZeroCouponMarketPrice(faceAmount, ytm, timeToMaturity float64) float64 {
	return faceAmount / math.Pow(1+ytm, timeToMaturity)
}

func validZero(faceAmount, marketValue, timeToMaturity float64) error {
	return types.BondTerms{
		FaceAmount:                faceAmount,
		MarketValue:               marketValue,
		TimeToMaturity:            timeToMaturity,
		CompoundingPeriodsPerYear: 1,
	}.Validate()
}

// AnalyzeZeroCoupon computes every zero-coupon metric for the terms. The
// coupon rate and compounding frequency of the terms are ignored.
func AnalyzeZeroCoupon(t types.BondTerms) types.BondMetrics {
	ytm, err := ZeroCouponYTM(t.FaceAmount, t.MarketValue, t.TimeToMaturity)
	if err != nil {
		return unavailable(err)
	}

	T := t.TimeToMaturity

	return types.BondMetrics{
		YTM:              types.MetricOf(ytm, nil),
		CurrentYield:     types.MetricOf(0, nil),
		MacaulayDuration: types.MetricOf(ZeroCouponMacaulayDuration(T), nil),
		ModifiedDuration: types.MetricOf(ZeroCouponModifiedDuration(T, ytm), nil),
		Convexity:        types.MetricOf(ZeroCouponConvexity(T, ytm), nil),
		ZSpread:          types.Unavailable(ErrNoCurve),
		MarketPrice:      types.MetricOf(ZeroCouponMarketPrice(t.FaceAmount, ytm, T), nil),
	}
}
