package collect

import (
	"benritz/fundcalc/internal/types"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pbnjay/grate"
	_ "github.com/pbnjay/grate/simple"
	_ "github.com/pbnjay/grate/xls"
	_ "github.com/pbnjay/grate/xlsx"
	"github.com/sirupsen/logrus"
)

var SourceWorkbook = "Workbook"

type column int

const (
	colTicker column = iota
	colName
	colISIN
	colCUSIP
	colFaceAmount
	colCoupon
	colMarketValue
	colMaturity
	colWeight
)

// headerAliases maps normalised header text to a column. Issuer files name
// the same fields differently.
var headerAliases = map[string]column{
	"ticker":        colTicker,
	"name":          colName,
	"issuername":    colName,
	"holdingname":   colName,
	"securityname":  colName,
	"isin":          colISIN,
	"cusip":         colCUSIP,
	"faceamount":    colFaceAmount,
	"parvalue":      colFaceAmount,
	"par":           colFaceAmount,
	"couponrate":    colCoupon,
	"coupon(%)":     colCoupon,
	"coupon":        colCoupon,
	"marketvalue":   colMarketValue,
	"maturitydate":  colMaturity,
	"maturity":      colMaturity,
	"percentweight": colWeight,
	"weight(%)":     colWeight,
	"weight":        colWeight,
}

var requiredColumns = []column{colFaceAmount, colMarketValue, colMaturity}

func normaliseHeader(s string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(s)))
}

// WorkbookCollector reads a fund holdings file (xls, xlsx or csv). Location
// is a local path, an http(s) URL or an s3:// URL, and may contain
// {ticker}.
type WorkbookCollector struct {
	Location string
	// ZeroCoupon routes every holding to the zero-coupon closed forms.
	ZeroCoupon bool
	HTTPClient *http.Client
	S3         ObjectStore
	Logger     *logrus.Logger
}

func NewWorkbookCollector(location string, logger *logrus.Logger) *WorkbookCollector {
	return &WorkbookCollector{
		Location:   location,
		HTTPClient: http.DefaultClient,
		Logger:     logger,
	}
}

func (c *WorkbookCollector) Source() string {
	return SourceWorkbook
}

func (c *WorkbookCollector) Collect(ctx context.Context, ticker string, date time.Time) (*CollectedHoldings, error) {
	location := strings.ReplaceAll(c.Location, "{ticker}", ticker)

	file, cleanup, err := c.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	wb, err := grate.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}
	defer wb.Close()

	collected := NewCollectedHoldings(ticker, c.Source(), date)

	sheets, err := wb.List()
	if err != nil {
		return nil, err
	}
	for _, sheetName := range sheets {
		sheet, err := wb.Get(sheetName)
		if err != nil {
			return nil, err
		}

		c.readSheet(ticker, sheet, collected)
	}

	if len(collected.Holdings) == 0 && len(collected.Failures) == 0 {
		return nil, fmt.Errorf("%s: %w", location, types.ErrDataUnavailable)
	}

	c.logf(logrus.Fields{
		"ticker":   ticker,
		"location": location,
		"holdings": len(collected.Holdings),
		"failures": len(collected.Failures),
	}, "holdings collected")

	return collected, nil
}

// readSheet skips rows until it finds a header carrying the required
// columns, then parses every non-blank row after it.
func (c *WorkbookCollector) readSheet(ticker string, sheet grate.Collection, collected *CollectedHoldings) {
	var header map[column]int
	rowNum := 0

	for sheet.Next() {
		rowNum++
		row := sheet.Strings()

		if header == nil {
			header = findHeader(row)
			continue
		}

		if blankRow(row) {
			continue
		}

		collected.AddHolding(c.parseRow(ticker, rowNum, header, row))
	}
}

func findHeader(row []string) map[column]int {
	header := map[column]int{}
	for i, cell := range row {
		if col, ok := headerAliases[normaliseHeader(cell)]; ok {
			if _, seen := header[col]; !seen {
				header[col] = i
			}
		}
	}

	for _, col := range requiredColumns {
		if _, ok := header[col]; !ok {
			return nil
		}
	}

	return header
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func (c *WorkbookCollector) parseRow(ticker string, rowNum int, header map[column]int, row []string) *CollectedHolding {
	cell := func(col column) (string, bool) {
		i, ok := header[col]
		if !ok || i >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[i]), true
	}

	h := &types.Holding{
		Ticker:     ticker,
		Source:     c.Source(),
		ZeroCoupon: c.ZeroCoupon,
	}
	ch := &CollectedHolding{Holding: h, Row: rowNum}

	h.Name, _ = cell(colName)
	h.ISIN, _ = cell(colISIN)
	h.CUSIP, _ = cell(colCUSIP)

	if s, _ := cell(colFaceAmount); s != "" {
		if v, err := parseAmount(s); err == nil {
			h.FaceAmount = v
		} else {
			ch.SetError(fmt.Errorf("face amount: %w", err))
		}
	} else {
		ch.SetError(fmt.Errorf("%w: missing face amount", types.ErrInvalidRow))
	}

	if s, _ := cell(colMarketValue); s != "" {
		if v, err := parseAmount(s); err == nil {
			h.MarketValue = v
		} else {
			ch.SetError(fmt.Errorf("market value: %w", err))
		}
	} else {
		ch.SetError(fmt.Errorf("%w: missing market value", types.ErrInvalidRow))
	}

	if s, ok := cell(colCoupon); ok && s != "" {
		if v, err := parseCoupon(s); err == nil {
			h.CouponPercent = v
		} else {
			ch.SetError(err)
		}
	} else if !c.ZeroCoupon {
		ch.SetError(types.ErrInvalidCoupon)
	}

	if s, _ := cell(colMaturity); s != "" {
		if ts, err := parseMaturityDate(s); err == nil {
			h.MaturityDate = ts
		} else {
			ch.SetError(err)
		}
	} else {
		ch.SetError(types.ErrInvalidMaturityDate)
	}

	if s, ok := cell(colWeight); ok && s != "" {
		if v, err := parseAmount(s); err == nil {
			h.Weight = v
		}
	}

	return ch
}

// open returns a local path for location, downloading it first when remote.
func (c *WorkbookCollector) open(ctx context.Context, location string) (string, func(), error) {
	noop := func() {}

	if s3Path, err := ParseS3(location); err == nil {
		if c.S3 == nil {
			return "", noop, fmt.Errorf("no s3 client for %s", location)
		}
		file, err := FetchFromS3(ctx, c.S3, s3Path.Bucket, s3Path.Prefix)
		if err != nil {
			return "", noop, err
		}
		return file, func() { os.Remove(file) }, nil
	}

	u, err := url.Parse(location)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return location, noop, nil
	}

	file, err := c.download(ctx, u)
	if err != nil {
		return "", noop, err
	}
	return file, func() { os.Remove(file) }, nil
}

func (c *WorkbookCollector) download(ctx context.Context, u *url.URL) (string, error) {
	c.logf(logrus.Fields{"url": u.String()}, "fetching holdings")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get holdings: http %d", resp.StatusCode)
	}

	ext := path.Ext(u.Path)
	if ext == "" {
		ext = ".xlsx"
	}

	tmp, err := os.CreateTemp("", "holdings-*"+ext)
	if err != nil {
		return "", err
	}

	size, err := io.Copy(tmp, resp.Body)
	tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	c.logf(logrus.Fields{"bytes": size, "file": filepath.Base(tmp.Name())}, "downloaded holdings")

	return tmp.Name(), nil
}

func (c *WorkbookCollector) logf(fields logrus.Fields, msg string) {
	if c.Logger != nil {
		c.Logger.WithFields(fields).Debug(msg)
	}
}
