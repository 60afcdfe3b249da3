package bond

import (
	"fmt"
	"math"

	"benritz/fundcalc/internal/types"
)

const zSpreadSeed = 0.01

// ZSpreadPeriods is the number of curve points a Z-spread needs:
// floor(n·T), and at least one so a bond inside its final period still
// discounts its redemption.
func ZSpreadPeriods(t types.BondTerms) int {
	return max(1, types.PeriodsForSummation(t.TimeToMaturity, t.CompoundingPeriodsPerYear))
}

// ZSpread solves for the constant spread z over the spot curve such that
//
//	Σ_{k=1..N} CF_k·(1+(s_k+z)/n)^-k == P
//
// where CF_k is the period coupon, plus the face amount at k == N.
//
// Returns:
//
//	The spread as an annual decimal, types.ErrInvalidCurve when the curve has
//	fewer than N points, or an error wrapping types.ErrNoConvergence.
func (s Solver) ZSpread(t types.BondTerms, curve types.SpotCurve) (float64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	N := ZSpreadPeriods(t)
	if len(curve) < N {
		return 0, fmt.Errorf("%w: need %d points, got %d", types.ErrInvalidCurve, N, len(curve))
	}
	for _, rate := range curve[:N] {
		if math.IsNaN(rate) || math.IsInf(rate, 0) {
			return 0, fmt.Errorf("%w: curve contains a non-finite rate", types.ErrInvalidCurve)
		}
	}

	n := float64(t.CompoundingPeriodsPerYear)
	C := t.PeriodCoupon()

	f := func(z float64) (float64, float64) {
		pv, dpv := 0.0, 0.0
		for k := 1; k <= N; k++ {
			cf := C
			if k == N {
				cf += t.FaceAmount
			}
			base := 1 + (curve[k-1]+z)/n
			kf := float64(k)
			pv += cf * math.Pow(base, -kf)
			dpv += -kf / n * cf * math.Pow(base, -kf-1)
		}
		return pv, dpv
	}

	valid := func(z float64) bool {
		if math.IsNaN(z) || math.IsInf(z, 0) {
			return false
		}
		for _, rate := range curve[:N] {
			if 1+(rate+z)/n <= 0 {
				return false
			}
		}
		return true
	}

	z, err := s.newton(f, t.MarketValue, zSpreadSeed, valid)
	if err != nil {
		return 0, fmt.Errorf("z-spread: %w", err)
	}
	return z, nil
}

func ZSpread(t types.BondTerms, curve types.SpotCurve) (float64, error) {
	return DefaultSolver.ZSpread(t, curve)
}
