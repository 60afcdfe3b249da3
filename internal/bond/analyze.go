package bond

import (
	"fmt"

	"benritz/fundcalc/internal/types"
)

var ErrNoCurve = fmt.Errorf("no spot curve supplied")

// Analyze computes every coupon-bond metric. YTM is solved once and reused
// for the durations and convexity, which gives the same values as calling
// ModifiedDuration and Convexity separately. A failed YTM makes the metrics
// derived from it unavailable with the same error; current yield and
// Z-spread do not depend on it.
func (s Solver) Analyze(t types.BondTerms, curve types.SpotCurve) types.BondMetrics {
	if err := t.Validate(); err != nil {
		return unavailable(err)
	}

	m := types.BondMetrics{
		CurrentYield: types.MetricOf(CurrentYield(t)),
		MarketPrice:  types.Unavailable(ErrNotZeroCoupon),
	}

	ytm, err := s.YTM(t)
	if err != nil {
		m.YTM = types.Unavailable(err)
		m.MacaulayDuration = types.Unavailable(err)
		m.ModifiedDuration = types.Unavailable(err)
		m.Convexity = types.Unavailable(err)
	} else {
		m.YTM = types.MetricOf(ytm, nil)
		m.MacaulayDuration = types.MetricOf(MacaulayDuration(t, ytm))
		m.ModifiedDuration = types.MetricOf(modifiedDuration(t, ytm))
		m.Convexity = types.MetricOf(convexity(t, ytm))
	}

	if curve == nil {
		m.ZSpread = types.Unavailable(ErrNoCurve)
	} else {
		m.ZSpread = types.MetricOf(s.ZSpread(t, curve))
	}

	return m
}

func Analyze(t types.BondTerms, curve types.SpotCurve) types.BondMetrics {
	return DefaultSolver.Analyze(t, curve)
}

var ErrNotZeroCoupon = fmt.Errorf("market price is only derived for zero-coupon bonds")

func unavailable(err error) types.BondMetrics {
	return types.BondMetrics{
		YTM:              types.Unavailable(err),
		CurrentYield:     types.Unavailable(err),
		MacaulayDuration: types.Unavailable(err),
		ModifiedDuration: types.Unavailable(err),
		Convexity:        types.Unavailable(err),
		ZSpread:          types.Unavailable(err),
		MarketPrice:      types.Unavailable(err),
	}
}
