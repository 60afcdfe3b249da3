package collect

import (
	"benritz/fundcalc/internal/types"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var couponRe = regexp.MustCompile(`^(\d*[¼½¾⅛⅜⅝⅞]|\d+\s+\d+\/\d+|\d+\/\d+|\d+(?:\.\d+)?)\s*%?`)

var vulgarFractions = map[string]string{
	"¼": "1/4",
	"½": "1/2",
	"¾": "3/4",
	"⅛": "1/8",
	"⅜": "3/8",
	"⅝": "5/8",
	"⅞": "7/8",
}

// parseCoupon parses a coupon percentage in the following formats
// 4.125, 4.125%, 4 1/8, 5/8%, 3½%
//
//	s: coupon cell or bond description starting with the coupon
//
// Returns:
//
//	Coupon percentage
func parseCoupon(s string) (float64, error) {
	match := couponRe.FindStringSubmatch(strings.TrimSpace(s))

	if len(match) < 2 || match[1] == "" {
		return 0, types.ErrInvalidCoupon
	}

	m := match[1]

	for glyph, frac := range vulgarFractions {
		if strings.HasSuffix(m, glyph) {
			whole := strings.TrimSuffix(m, glyph)
			if whole == "" {
				m = frac
			} else {
				m = whole + " " + frac
			}
			break
		}
	}

	parts := strings.Fields(m)

	switch {
	case len(parts) == 2:
		whole, err := decimal.NewFromString(parts[0])
		if err != nil {
			return 0, types.ErrInvalidCoupon
		}
		frac, err := parseFraction(parts[1])
		if err != nil {
			return 0, err
		}
		return whole.Add(frac).InexactFloat64(), nil
	case strings.Contains(m, "/"):
		frac, err := parseFraction(m)
		if err != nil {
			return 0, err
		}
		return frac.InexactFloat64(), nil
	default:
		val, err := decimal.NewFromString(m)
		if err != nil {
			return 0, types.ErrInvalidCoupon
		}
		return val.InexactFloat64(), nil
	}
}

func parseFraction(s string) (decimal.Decimal, error) {
	fractionParts := strings.Split(s, "/")
	if len(fractionParts) != 2 {
		return decimal.Zero, types.ErrInvalidCoupon
	}
	num, err := strconv.Atoi(fractionParts[0])
	if err != nil {
		return decimal.Zero, types.ErrInvalidCoupon
	}
	den, err := strconv.Atoi(fractionParts[1])
	if err != nil || den == 0 {
		return decimal.Zero, types.ErrInvalidCoupon
	}
	return decimal.NewFromInt(int64(num)).Div(decimal.NewFromInt(int64(den))), nil
}

// parseAmount parses a spreadsheet number, tolerating currency symbols,
// thousands separators, a trailing percent sign and accounting negatives.
func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.NewReplacer(",", "", "$", "", "£", "", "%", "", " ", "").Replace(s)
	if s == "" || s == "-" || s == "--" {
		return 0, fmt.Errorf("%w: empty number", types.ErrInvalidRow)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", types.ErrInvalidRow, s)
	}
	if negative {
		d = d.Neg()
	}

	return d.InexactFloat64(), nil
}

var maturityLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"2006-01-02 15:04:05",
	"01-02-06",
	"1/2/06",
}

// excelEpoch is day zero of the 1900 date system as Excel counts it.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

func parseMaturityDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	for _, layout := range maturityLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}

	// unformatted workbook date cells come through as serial numbers
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 2958466 {
		return excelEpoch.AddDate(0, 0, int(serial)), nil
	}

	return time.Time{}, types.ErrInvalidMaturityDate
}
