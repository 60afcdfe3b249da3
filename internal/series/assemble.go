package series

import (
	"sort"

	"cloud.google.com/go/civil"

	"benritz/fundcalc/internal/types"
)

// Assemble joins prices, NAVs and flows into a daily table, ascending by date.
// A day needs both a NAV and a flow to appear; a missing price leaves Close
// and AdjClose zero. Duplicate dates keep the first observation.
func Assemble(prices []types.PriceBar, navs []types.NAVPoint, flows []types.FlowPoint) []types.DailySeriesRow {
	priceByDate := make(map[civil.Date]types.PriceBar, len(prices))
	for _, p := range prices {
		if _, ok := priceByDate[p.Date]; !ok {
			priceByDate[p.Date] = p
		}
	}

	navByDate := make(map[civil.Date]float64, len(navs))
	for _, n := range navs {
		if _, ok := navByDate[n.Date]; !ok {
			navByDate[n.Date] = n.NAV
		}
	}

	seen := make(map[civil.Date]bool, len(flows))
	rows := make([]types.DailySeriesRow, 0, len(flows))

	for _, f := range flows {
		if seen[f.Date] {
			continue
		}
		seen[f.Date] = true

		nav, ok := navByDate[f.Date]
		if !ok || !(nav > 0) {
			continue
		}

		row := types.DailySeriesRow{
			Date:    f.Date,
			NAV:     nav,
			NetFlow: f.Flow,
		}
		if p, ok := priceByDate[f.Date]; ok {
			row.Close = p.Close
			row.AdjClose = p.AdjClose
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Date.Before(rows[j].Date)
	})

	PremiumDiscount(rows)

	return rows
}
