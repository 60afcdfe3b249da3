package collect

import (
	"benritz/fundcalc/internal/types"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gocarina/gocsv"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// FlowsInMillions scales flow values published in millions of dollars.
var FlowsInMillions = decimal.NewFromInt(1_000_000)

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"02-Jan-2006",
}

func parseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)

	if len(s) > 10 && s[4] == '-' {
		// timestamps such as 2024-03-04T00:00:00Z
		s = s[:10]
	}

	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(ts), nil
		}
	}

	return civil.Date{}, fmt.Errorf("%w: invalid date %q", types.ErrInvalidRow, s)
}

type priceRecord struct {
	Date     string `csv:"Date"`
	Close    string `csv:"Close"`
	AdjClose string `csv:"Adj Close"`
}

type navRecord struct {
	Date string `csv:"As Of"`
	NAV  string `csv:"NAV per Share"`
}

// LoadPrices reads a daily price history CSV (Date, Close, Adj Close).
// Rows without a valid date or close, such as "null" quotes, are skipped.
func LoadPrices(r io.Reader) ([]types.PriceBar, error) {
	var records []*priceRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("failed to read prices: %w", err)
	}

	bars := make([]types.PriceBar, 0, len(records))
	for _, rec := range records {
		date, err := parseDate(rec.Date)
		if err != nil {
			continue
		}
		closePrice, err := parseAmount(rec.Close)
		if err != nil {
			continue
		}
		bar := types.PriceBar{Date: date, Close: closePrice}
		if adj, err := parseAmount(rec.AdjClose); err == nil {
			bar.AdjClose = adj
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

// LoadNAV reads an issuer NAV history CSV (As Of, NAV per Share).
func LoadNAV(r io.Reader) ([]types.NAVPoint, error) {
	var records []*navRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("failed to read NAV history: %w", err)
	}

	points := make([]types.NAVPoint, 0, len(records))
	for _, rec := range records {
		date, err := parseDate(rec.Date)
		if err != nil {
			continue
		}
		nav, err := parseAmount(rec.NAV)
		if err != nil || nav <= 0 {
			continue
		}
		points = append(points, types.NAVPoint{Date: date, NAV: nav})
	}

	return points, nil
}

type flowRecord struct {
	AsOf  string              `json:"asOf"`
	Value decimal.NullDecimal `json:"value"`
}

type flowResponse struct {
	Data []flowRecord `json:"data"`
}

// LoadFlows reads daily fund flows as JSON, either {"data": [...]} or a bare
// array of {"asOf", "value"}. Values are multiplied by scale; a null value is
// a zero flow.
func LoadFlows(r io.Reader, scale decimal.Decimal) ([]types.FlowPoint, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var records []flowRecord

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("failed to decode flows: %w", err)
		}
	} else {
		var resp flowResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode flows: %w", err)
		}
		records = resp.Data
	}

	points := make([]types.FlowPoint, 0, len(records))
	for _, rec := range records {
		date, err := parseDate(rec.AsOf)
		if err != nil {
			return nil, err
		}
		flow := decimal.Zero
		if rec.Value.Valid {
			flow = rec.Value.Decimal.Mul(scale)
		}
		points = append(points, types.FlowPoint{Date: date, Flow: flow.InexactFloat64()})
	}

	return points, nil
}

// FlowClient fetches fund flows from a JSON API authorised with a bearer
// token.
type FlowClient struct {
	BaseURL    string
	Token      string
	Scale      decimal.Decimal
	HTTPClient *http.Client
}

func NewFlowClient(baseURL, token string, scale decimal.Decimal) *FlowClient {
	return &FlowClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Token:      token,
		Scale:      scale,
		HTTPClient: http.DefaultClient,
	}
}

func (c *FlowClient) Fetch(ctx context.Context, ticker string, from, to civil.Date) ([]types.FlowPoint, error) {
	q := url.Values{}
	q.Set("startDate", from.String())
	q.Set("endDate", to.String())

	u := fmt.Sprintf("%s/fund-flows/%s?%s", c.BaseURL, url.PathEscape(strings.ToUpper(ticker)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get flows for %s: http %d", ticker, resp.StatusCode)
	}

	return LoadFlows(resp.Body, c.Scale)
}

// LoadFile opens path and passes it to load.
func LoadFile[T any](path string, load func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()

	return load(f)
}
