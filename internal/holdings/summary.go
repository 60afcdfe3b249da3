package holdings

import (
	"fmt"

	"benritz/fundcalc/internal/types"
)

const (
	MetricYTM              = "ytm"
	MetricCurrentYield     = "current_yield"
	MetricMacaulayDuration = "macaulay_duration"
	MetricModifiedDuration = "modified_duration"
	MetricConvexity        = "convexity"
	MetricZSpread          = "z_spread"
	MetricMarketPrice      = "market_price"
)

type MetricField struct {
	Name string
	Get  func(types.BondMetrics) types.Metric
}

// Metrics lists the bond metrics in output order.
var Metrics = []MetricField{
	{MetricYTM, func(m types.BondMetrics) types.Metric { return m.YTM }},
	{MetricCurrentYield, func(m types.BondMetrics) types.Metric { return m.CurrentYield }},
	{MetricMacaulayDuration, func(m types.BondMetrics) types.Metric { return m.MacaulayDuration }},
	{MetricModifiedDuration, func(m types.BondMetrics) types.Metric { return m.ModifiedDuration }},
	{MetricConvexity, func(m types.BondMetrics) types.Metric { return m.Convexity }},
	{MetricZSpread, func(m types.BondMetrics) types.Metric { return m.ZSpread }},
	{MetricMarketPrice, func(m types.BondMetrics) types.Metric { return m.MarketPrice }},
}

var ErrNoWeight = fmt.Errorf("%w: no holding with a weight or market value", types.ErrDataUnavailable)

// Summary holds fund-level weighted averages of the holding metrics.
type Summary struct {
	Ticker           string
	Holdings         int
	TotalMarketValue float64
	Averages         map[string]types.Metric
	// Failed counts rows whose metric was unavailable.
	Failed map[string]int
}

// Summarize averages each metric as Σ w·m / Σ w over rows where it is
// available. Weights are the holdings' Weight; when every weight is zero the
// market value is used instead.
func Summarize(ticker string, rows []*EnrichedHolding) Summary {
	s := Summary{
		Ticker:   ticker,
		Holdings: len(rows),
		Averages: make(map[string]types.Metric, len(Metrics)),
		Failed:   make(map[string]int, len(Metrics)),
	}

	useWeight := false
	for _, r := range rows {
		if r == nil || r.Holding == nil {
			continue
		}
		s.TotalMarketValue += r.Holding.MarketValue
		if r.Holding.Weight != 0 {
			useWeight = true
		}
	}

	weight := func(r *EnrichedHolding) float64 {
		if useWeight {
			return r.Holding.Weight
		}
		return r.Holding.MarketValue
	}

	for _, m := range Metrics {
		sum, total := 0.0, 0.0
		for _, r := range rows {
			if r == nil || r.Holding == nil {
				s.Failed[m.Name]++
				continue
			}
			v := m.Get(r.Metrics)
			if !v.Ok() {
				s.Failed[m.Name]++
				continue
			}
			w := weight(r)
			sum += w * v.Value
			total += w
		}

		if total == 0 {
			s.Averages[m.Name] = types.Unavailable(ErrNoWeight)
			continue
		}
		s.Averages[m.Name] = types.MetricOf(sum/total, nil)
	}

	return s
}
