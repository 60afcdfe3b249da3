package collect

import (
	"benritz/fundcalc/internal/types"
	"context"
	"fmt"
	"strings"

	"github.com/gocolly/colly/v2"
)

var SourceProductPage = "ProductPage"

// AnchorCollector scrapes a fund's product page for its published shares
// outstanding and the date it is as of.
//
//	URL:           product page, may contain {ticker}.
//	Selector:      element holding the figure.
//	ValueSelector: child with the number.
//	DateSelector:  child with the "as of" date.
type AnchorCollector struct {
	URL           string
	Selector      string
	ValueSelector string
	DateSelector  string
}

func NewAnchorCollector(url string) *AnchorCollector {
	return &AnchorCollector{
		URL:           url,
		Selector:      ".col-sharesOutstanding",
		ValueSelector: ".data",
		DateSelector:  ".as-of-date",
	}
}

func (c *AnchorCollector) Source() string {
	return SourceProductPage
}

func (c *AnchorCollector) Collect(ctx context.Context, ticker string) (*types.Anchor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x := colly.NewCollector()

	var (
		value, asOf string
		visitErr    error
	)

	x.OnHTML(c.Selector, func(e *colly.HTMLElement) {
		if value != "" {
			return
		}
		value = strings.TrimSpace(e.ChildText(c.ValueSelector))
		asOf = strings.TrimSpace(e.ChildText(c.DateSelector))
	})

	x.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("failed to get %s: http %d: %w", r.Request.URL, r.StatusCode, err)
	})

	url := strings.ReplaceAll(c.URL, "{ticker}", strings.ToLower(ticker))

	if err := x.Visit(url); err != nil && visitErr == nil {
		visitErr = err
	}
	if visitErr != nil {
		return nil, visitErr
	}

	if value == "" {
		return nil, fmt.Errorf("%s: %w", ticker, types.ErrDataUnavailable)
	}

	shares, err := parseAmount(value)
	if err != nil {
		return nil, fmt.Errorf("shares outstanding: %w", err)
	}

	asOf = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(asOf), "as of"))
	if asOf == "" {
		return nil, types.ErrMissingSettlementDate
	}

	date, err := parseDate(titleMonth(asOf))
	if err != nil {
		return nil, err
	}

	anchor := &types.Anchor{Date: date, Shares: shares}
	return anchor, anchor.Validate()
}

// titleMonth restores the capitalised month name of a lowered date such as
// "mar 05, 2024".
func titleMonth(s string) string {
	if len(s) < 3 || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
