package bond

import (
	"fmt"
	"math"

	"benritz/fundcalc/internal/types"
)

// Price is the closed-form price of a coupon bond at an annual yield:
//
//	C·(1-(1+r)^-m)/r + F·(1+r)^-m,  r = ytm/n,  m = n·T
//
// m may be fractional. At r == 0 the annuity factor is its limit m.
func Price(t types.BondTerms, ytm float64) float64 {
	p, _ := priceAndDerivative(t, ytm)
	return p
}

// priceAndDerivative returns the closed-form price and dPrice/dYTM. Near a
// zero periodic rate the annuity factor and its derivative switch to their
// series expansion to avoid cancellation.
func priceAndDerivative(t types.BondTerms, ytm float64) (float64, float64) {
	n := float64(t.CompoundingPeriodsPerYear)
	r := ytm / n
	m := t.Periods()
	C := t.PeriodCoupon()
	F := t.FaceAmount

	lg := math.Log1p(r)
	v := math.Exp(-m * lg)
	v1 := v / (1 + r)

	var annuity, dAnnuity float64
	if math.Abs(r) < 1e-6 {
		annuity = m - m*(m+1)/2*r + m*(m+1)*(m+2)/6*r*r
		dAnnuity = -m*(m+1)/2 + m*(m+1)*(m+2)/3*r
	} else {
		oneMinusV := -math.Expm1(-m * lg)
		annuity = oneMinusV / r
		dAnnuity = (m*r*v1 - oneMinusV) / (r * r)
	}

	price := C*annuity + F*v
	dPdr := C*dAnnuity - m*F*v1

	return price, dPdr / n
}

func validYield(n int) func(float64) bool {
	return func(ytm float64) bool {
		return !math.IsNaN(ytm) && !math.IsInf(ytm, 0) && 1+ytm/float64(n) > 0
	}
}

// EstimatedYieldToMaturity is the textbook approximation of YTM, used as a
// fallback starting point for the solver.
//
//	(annual coupon + (F-P)/T) / ((F+P)/2)
func EstimatedYieldToMaturity(t types.BondTerms) float64 {
	CP := t.CouponRate * t.FaceAmount
	return (CP + (t.FaceAmount-t.MarketValue)/t.TimeToMaturity) / ((t.FaceAmount + t.MarketValue) / 2)
}

// YTM solves for the annual yield at which the closed-form price equals the
// market value. The coupon rate seeds Newton-Raphson; if that fails the
// solver is retried once from EstimatedYieldToMaturity.
//
// Returns:
//
//	The periodic yield scaled back to an annual rate (y·n), or an error
//	wrapping types.ErrNoConvergence.
func (s Solver) YTM(t types.BondTerms) (float64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	f := func(y float64) (float64, float64) {
		return priceAndDerivative(t, y)
	}
	valid := validYield(t.CompoundingPeriodsPerYear)

	ytm, err := s.newton(f, t.MarketValue, t.CouponRate, valid)
	if err == nil {
		return ytm, nil
	}

	if seed := EstimatedYieldToMaturity(t); seed != t.CouponRate && valid(seed) {
		if ytm, retryErr := s.newton(f, t.MarketValue, seed, valid); retryErr == nil {
			return ytm, nil
		}
	}

	return 0, fmt.Errorf("yield to maturity: %w", err)
}

func YTM(t types.BondTerms) (float64, error) {
	return DefaultSolver.YTM(t)
}

// CurrentYield is the annual coupon over market value.
func CurrentYield(t types.BondTerms) (float64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	return t.CouponRate * t.FaceAmount / t.MarketValue, nil
}

// MacaulayDuration is the present-value weighted time to the bond's cash
// flows, in years:
//
//	[Σ_{k=1..N} k·C/(1+r)^k + m·F/(1+r)^m] / (n·P)
//
// with r = ytm/n, m = n·T and N = PeriodsForSummation(T, n). Coupons of a
// fractional trailing period are not summed.
func MacaulayDuration(t types.BondTerms, ytm float64) (float64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if !validYield(t.CompoundingPeriodsPerYear)(ytm) {
		return 0, types.ErrInvalidYield
	}

	n := float64(t.CompoundingPeriodsPerYear)
	r := ytm / n
	m := t.Periods()
	N := types.PeriodsForSummation(t.TimeToMaturity, t.CompoundingPeriodsPerYear)
	C := t.PeriodCoupon()

	numerator := 0.0
	for k := 1; k <= N; k++ {
		numerator += C / math.Pow(1+r, float64(k)) * float64(k)
	}
	numerator += t.FaceAmount / math.Pow(1+r, m) * m

	return numerator / t.MarketValue / n, nil
}

// ModifiedDuration re-solves YTM and divides Macaulay duration by (1+ytm/n).
func (s Solver) ModifiedDuration(t types.BondTerms) (float64, error) {
	ytm, err := s.YTM(t)
	if err != nil {
		return 0, err
	}
	return modifiedDuration(t, ytm)
}

func ModifiedDuration(t types.BondTerms) (float64, error) {
	return DefaultSolver.ModifiedDuration(t)
}

func modifiedDuration(t types.BondTerms, ytm float64) (float64, error) {
	macaulay, err := MacaulayDuration(t, ytm)
	if err != nil {
		return 0, err
	}
	return macaulay / (1 + ytm/float64(t.CompoundingPeriodsPerYear)), nil
}

// Convexity re-solves YTM and returns
//
//	[Σ_{k=1..N} C·k(k+1)/(1+r)^k + F·m(m+1)/(1+r)^m] / ((1+r)^2·F) / n^2
//
// normalised by face amount, expressed in years squared.
func (s Solver) Convexity(t types.BondTerms) (float64, error) {
	ytm, err := s.YTM(t)
	if err != nil {
		return 0, err
	}
	return convexity(t, ytm)
}

func Convexity(t types.BondTerms) (float64, error) {
	return DefaultSolver.Convexity(t)
}

func convexity(t types.BondTerms, ytm float64) (float64, error) {
	if !validYield(t.CompoundingPeriodsPerYear)(ytm) {
		return 0, types.ErrInvalidYield
	}

	n := float64(t.CompoundingPeriodsPerYear)
	r := ytm / n
	m := t.Periods()
	N := types.PeriodsForSummation(t.TimeToMaturity, t.CompoundingPeriodsPerYear)
	C := t.PeriodCoupon()

	sum := 0.0
	for k := 1; k <= N; k++ {
		kf := float64(k)
		sum += C * kf * (kf + 1) / math.Pow(1+r, kf)
	}
	sum += t.FaceAmount * m * (m + 1) / math.Pow(1+r, m)

	return sum / (math.Pow(1+r, 2) * t.FaceAmount) / (n * n), nil
}

// AccruedInterest is the coupon accrued since the last payment.
//
//	periodsSinceLastPayment: fraction of a coupon period elapsed.
func AccruedInterest(faceAmount, couponRate, periodsSinceLastPayment float64, n int) float64 {
	return couponRate * faceAmount / float64(n) * periodsSinceLastPayment
}

// CleanAndDirtyPrice treats the market value as the dirty price and strips
// accrued interest from it.
func CleanAndDirtyPrice(marketValue, faceAmount, couponRate, periodsSinceLastPayment float64, n int) (float64, float64) {
	accrued := AccruedInterest(faceAmount, couponRate, periodsSinceLastPayment, n)
	return marketValue - accrued, marketValue
}

func CapitalGainLoss(marketValue, purchasePrice float64) float64 {
	return marketValue - purchasePrice
}

func PricePerFaceValue(marketValue, faceAmount float64) float64 {
	return marketValue / faceAmount
}

func RemainingTimeToMaturity(timeToMaturity float64, currentPeriod int, n int) float64 {
	return timeToMaturity - float64(currentPeriod)/float64(n)
}

// PeriodsSinceLastPayment is the fraction of the current coupon period
// already elapsed, with coupons falling whole periods back from maturity.
func PeriodsSinceLastPayment(t types.BondTerms) float64 {
	n := t.CompoundingPeriodsPerYear
	whole := types.PeriodsForSummation(t.TimeToMaturity, n)
	toNext := RemainingTimeToMaturity(t.TimeToMaturity, whole, n) * float64(n)
	if toNext < 1e-9 {
		return 0
	}
	return 1 - toNext
}

// Accrual is the market value split into accrued interest and clean price.
type Accrual struct {
	PeriodsSinceLastPayment float64
	AccruedInterest         float64
	CleanPrice              float64
	DirtyPrice              float64
	PricePerFace            float64
}

// AccrualOf treats the market value as the dirty price. Zero-coupon terms
// accrue nothing.
func AccrualOf(t types.BondTerms) Accrual {
	elapsed := PeriodsSinceLastPayment(t)
	clean, dirty := CleanAndDirtyPrice(t.MarketValue, t.FaceAmount, t.CouponRate, elapsed, t.CompoundingPeriodsPerYear)

	return Accrual{
		PeriodsSinceLastPayment: elapsed,
		AccruedInterest:         dirty - clean,
		CleanPrice:              clean,
		DirtyPrice:              dirty,
		PricePerFace:            PricePerFaceValue(clean, t.FaceAmount),
	}
}
