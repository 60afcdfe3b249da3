package series

import (
	"fmt"
	"sort"

	"cloud.google.com/go/civil"

	"benritz/fundcalc/internal/types"
)

// CreationUnits sets EstimatedCreationUnits = NetFlow / NAV on every row.
// Synthetic rows carry no flow and get zero.
func CreationUnits(rows []types.DailySeriesRow) {
	for i := range rows {
		if rows[i].Synthetic || rows[i].NAV == 0 {
			rows[i].EstimatedCreationUnits = 0
			continue
		}
		rows[i].EstimatedCreationUnits = rows[i].NetFlow / rows[i].NAV
	}
}

// PremiumDiscount sets (close - NAV) / NAV for the close and adjusted close.
// Rows without a close keep nil.
func PremiumDiscount(rows []types.DailySeriesRow) {
	for i := range rows {
		r := &rows[i]
		r.PremiumDiscount = nil
		r.PremiumDiscountAdjusted = nil
		if r.NAV <= 0 {
			continue
		}
		if r.Close > 0 {
			v := (r.Close - r.NAV) / r.NAV
			r.PremiumDiscount = &v
		}
		if r.AdjClose > 0 {
			v := (r.AdjClose - r.NAV) / r.NAV
			r.PremiumDiscountAdjusted = &v
		}
	}
}

// Validate checks the table is strictly ascending by date with positive NAV
// on every non-synthetic row.
func Validate(rows []types.DailySeriesRow) error {
	for i, r := range rows {
		if !r.Date.IsValid() {
			return fmt.Errorf("row %d: %w: invalid date", i, types.ErrInvalidRow)
		}
		if i > 0 && !rows[i-1].Date.Before(r.Date) {
			return fmt.Errorf("row %d (%s): %w", i, r.Date, types.ErrUnsortedSeries)
		}
		if !r.Synthetic && !(r.NAV > 0) {
			return fmt.Errorf("row %d (%s): %w", i, r.Date, types.ErrInvalidNAV)
		}
	}
	return nil
}

// Reconstruct rebuilds estimated shares outstanding from a single anchor.
//
// The returned table is a copy of rows with creation units computed and, when
// the anchor date has no row, a synthetic row inserted in date order to hold
// the anchor. From the anchor:
//
//	forward:  S[d] = S[prev(d)] + CU[d]
//	backward: S[d] = S[next(d)] - CU[next(d)]
//
// so a day's creation units belong to the transition into that day and the
// two passes invert each other. prev/next are neighbouring rows, not
// calendar days.
//
// An empty table returns empty; a nil anchor returns every row with shares
// unset. Only a malformed table (unsorted, duplicate dates, non-positive NAV)
// returns an error.
func Reconstruct(rows []types.DailySeriesRow, anchor *types.Anchor) ([]types.DailySeriesRow, error) {
	if err := Validate(rows); err != nil {
		return nil, err
	}

	out := make([]types.DailySeriesRow, len(rows), len(rows)+1)
	copy(out, rows)
	for i := range out {
		out[i].EstimatedSharesOutstanding = nil
	}

	if len(out) == 0 {
		return out, nil
	}

	if anchor == nil {
		CreationUnits(out)
		return out, nil
	}
	if err := anchor.Validate(); err != nil {
		return nil, err
	}

	out, at := insertAnchor(out, anchor)
	CreationUnits(out)

	shares := make([]float64, len(out))
	shares[at] = anchor.Shares

	for i := at + 1; i < len(out); i++ {
		shares[i] = shares[i-1] + out[i].EstimatedCreationUnits
	}
	for i := at - 1; i >= 0; i-- {
		shares[i] = shares[i+1] - out[i+1].EstimatedCreationUnits
	}

	for i := range out {
		v := shares[i]
		out[i].EstimatedSharesOutstanding = &v
	}

	return out, nil
}

// insertAnchor returns the index of the anchor's row, inserting a synthetic
// row when the date is missing.
func insertAnchor(rows []types.DailySeriesRow, anchor *types.Anchor) ([]types.DailySeriesRow, int) {
	at := sort.Search(len(rows), func(i int) bool {
		return !rows[i].Date.Before(anchor.Date)
	})

	if at < len(rows) && rows[at].Date == anchor.Date {
		return rows, at
	}

	rows = append(rows, types.DailySeriesRow{})
	copy(rows[at+1:], rows[at:])
	rows[at] = types.DailySeriesRow{
		Date:      anchor.Date,
		Synthetic: true,
	}

	return rows, at
}

// AnchorAt returns the reconstructed value at date as a new anchor.
func AnchorAt(rows []types.DailySeriesRow, date civil.Date) (*types.Anchor, bool) {
	for _, r := range rows {
		if r.Date == date && r.EstimatedSharesOutstanding != nil {
			return &types.Anchor{Date: r.Date, Shares: *r.EstimatedSharesOutstanding}, true
		}
	}
	return nil, false
}
