package collect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shopspring/decimal"

	"benritz/fundcalc/internal/bond"
	"benritz/fundcalc/internal/holdings"
	"benritz/fundcalc/internal/types"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *memoryStore) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, fmt.Errorf("no such key %s", aws.ToString(in.Key))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

const holdingsCSV = `Fund Holdings,as of 2024-01-02,,,,
Name,CUSIP,Par Value,Coupon (%),Market Value,Maturity
US TREASURY N/B,91282CJZ5,"1,000,000",4.125,"950,000.00",02/15/2034
US TREASURY N/B,91282CKA8,500000,3 1/2,"510,000.00",2029-05-15
,,,,,
BAD ROW,000000000,100000,2.0,n/a,2030-01-01
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func checkCollected(t *testing.T, collected *CollectedHoldings) {
	t.Helper()

	if len(collected.Holdings) != 2 {
		t.Fatalf("got %d holdings, want 2", len(collected.Holdings))
	}
	if len(collected.Failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(collected.Failures))
	}
	if !errors.Is(collected.Failures[0].Err, types.ErrInvalidRow) {
		t.Errorf("failure err = %v, want ErrInvalidRow", collected.Failures[0].Err)
	}

	h := collected.Holdings[0]
	if h.Ticker != "IEF" || h.CUSIP != "91282CJZ5" || h.FaceAmount != 1_000_000 || h.MarketValue != 950_000 || h.CouponPercent != 4.125 {
		t.Errorf("first holding = %+v", h)
	}
	if !h.MaturityDate.Equal(time.Date(2034, 2, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("maturity = %s", h.MaturityDate)
	}
	if collected.Holdings[1].CouponPercent != 3.5 {
		t.Errorf("mixed-number coupon = %v, want 3.5", collected.Holdings[1].CouponPercent)
	}
}

func TestWorkbookCollectorLocalFile(t *testing.T) {
	path := writeTemp(t, "IEF_holdings.csv", holdingsCSV)
	location := filepath.Join(filepath.Dir(path), "{ticker}_holdings.csv")

	c := NewWorkbookCollector(location, nil)
	collected, err := c.Collect(context.Background(), "IEF", time.Now())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	checkCollected(t, collected)
}

func TestWorkbookCollectorHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/holdings/IEF.csv" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, holdingsCSV)
	}))
	defer srv.Close()

	c := NewWorkbookCollector(srv.URL+"/holdings/{ticker}.csv", nil)
	c.HTTPClient = srv.Client()

	collected, err := c.Collect(context.Background(), "IEF", time.Now())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	checkCollected(t, collected)

	if _, err := c.Collect(context.Background(), "XXX", time.Now()); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestWorkbookCollectorS3(t *testing.T) {
	store := newMemoryStore()
	store.objects["funds/holdings/IEF.csv"] = []byte(holdingsCSV)

	c := NewWorkbookCollector("s3://funds/holdings/{ticker}.csv", nil)
	c.S3 = store

	collected, err := c.Collect(context.Background(), "IEF", time.Now())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	checkCollected(t, collected)
}

func TestWorkbookCollectorNoHeader(t *testing.T) {
	path := writeTemp(t, "prices.csv", "Date,Close,Volume\n2024-01-02,10,100\n2024-01-03,11,200\n")

	_, err := NewWorkbookCollector(path, nil).Collect(context.Background(), "IEF", time.Now())
	if !errors.Is(err, types.ErrDataUnavailable) {
		t.Errorf("err = %v, want ErrDataUnavailable", err)
	}
}

func TestWorkbookCollectorZeroCoupon(t *testing.T) {
	path := writeTemp(t, "edv.csv", "Holding Name,Face Amount,Market Value,Maturity Date\nSTRIP,1000,500,2040-05-15\nSTRIP,2000,900,2045-05-15\n")

	c := NewWorkbookCollector(path, nil)
	c.ZeroCoupon = true

	collected, err := c.Collect(context.Background(), "EDV", time.Now())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(collected.Holdings) != 2 || len(collected.Failures) != 0 {
		t.Fatalf("collected = %+v", collected)
	}
	for _, h := range collected.Holdings {
		if !h.ZeroCoupon {
			t.Errorf("holding %+v not flagged zero-coupon", h)
		}
	}
}

func TestLoadPrices(t *testing.T) {
	csv := "Date,Open,High,Low,Close,Adj Close,Volume\n" +
		"2024-03-04,95,96,94,95.5,94.1,1000\n" +
		"2024-03-05,null,null,null,null,null,null\n" +
		"2024-03-06,95,96,94,96.25,95.0,1000\n"

	bars, err := LoadPrices(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("LoadPrices: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if bars[1].Date != (civil.Date{Year: 2024, Month: 3, Day: 6}) || bars[1].Close != 96.25 || bars[1].AdjClose != 95 {
		t.Errorf("bars[1] = %+v", bars[1])
	}
}

func TestLoadNAV(t *testing.T) {
	csv := "As Of,NAV per Share,Ex-Dividends\n" +
		"\"Mar 05, 2024\",95.12,\n" +
		"03/04/2024,94.80,0.25\n" +
		"03/01/2024,--,\n"

	navs, err := LoadNAV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("LoadNAV: %v", err)
	}
	if len(navs) != 2 {
		t.Fatalf("got %d points, want 2", len(navs))
	}
	if navs[0].Date != (civil.Date{Year: 2024, Month: 3, Day: 5}) || navs[0].NAV != 95.12 {
		t.Errorf("navs[0] = %+v", navs[0])
	}
}

func TestLoadFlows(t *testing.T) {
	body := `{"data":[{"asOf":"2024-03-04","value":12.345678},{"asOf":"2024-03-05T00:00:00Z","value":null},{"asOf":"2024-03-06","value":"-0.1"}]}`

	flows, err := LoadFlows(strings.NewReader(body), FlowsInMillions)
	if err != nil {
		t.Fatalf("LoadFlows: %v", err)
	}

	want := []float64{12_345_678, 0, -100_000}
	if len(flows) != len(want) {
		t.Fatalf("got %d flows, want %d", len(flows), len(want))
	}
	for i, w := range want {
		if flows[i].Flow != w {
			t.Errorf("flows[%d] = %v, want %v", i, flows[i].Flow, w)
		}
	}

	bare, err := LoadFlows(strings.NewReader(`[{"asOf":"2024-03-04","value":1}]`), decimal.NewFromInt(1))
	if err != nil || len(bare) != 1 || bare[0].Flow != 1 {
		t.Errorf("bare array = %+v, %v", bare, err)
	}

	if _, err := LoadFlows(strings.NewReader(`[{"asOf":"yesterday","value":1}]`), FlowsInMillions); !errors.Is(err, types.ErrInvalidRow) {
		t.Errorf("err = %v, want ErrInvalidRow", err)
	}
}

func TestFlowClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/fund-flows/IEF" || r.URL.Query().Get("startDate") != "2024-03-01" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"data":[{"asOf":"2024-03-04","value":2.5}]}`)
	}))
	defer srv.Close()

	from := civil.Date{Year: 2024, Month: 3, Day: 1}
	to := civil.Date{Year: 2024, Month: 3, Day: 31}

	c := NewFlowClient(srv.URL+"/", "secret", FlowsInMillions)
	c.HTTPClient = srv.Client()

	flows, err := c.Fetch(context.Background(), "ief", from, to)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(flows) != 1 || flows[0].Flow != 2_500_000 {
		t.Errorf("flows = %+v", flows)
	}

	c.Token = "wrong"
	if _, err := c.Fetch(context.Background(), "IEF", from, to); err == nil {
		t.Error("expected an error for a rejected token")
	}
}

func TestAnchorCollector(t *testing.T) {
	page := `<html><body>
<div class="col-sharesOutstanding">
  <span class="caption">Shares Outstanding <span class="as-of-date">as of Mar 05, 2024</span></span>
  <span class="data">1,234,500,000.00</span>
</div>
</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/ief" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, page)
	}))
	defer srv.Close()

	c := NewAnchorCollector(srv.URL + "/products/{ticker}")

	anchor, err := c.Collect(context.Background(), "IEF")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if anchor.Date != (civil.Date{Year: 2024, Month: 3, Day: 5}) || anchor.Shares != 1_234_500_000 {
		t.Errorf("anchor = %+v", anchor)
	}

	if _, err := c.Collect(context.Background(), "missing"); err == nil {
		t.Error("expected an error for a missing page")
	}
}

func TestAnchorCollectorMissingFigure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body><p>nothing here</p></body></html>")
	}))
	defer srv.Close()

	_, err := NewAnchorCollector(srv.URL).Collect(context.Background(), "IEF")
	if !errors.Is(err, types.ErrDataUnavailable) {
		t.Errorf("err = %v, want ErrDataUnavailable", err)
	}
}

func TestParseS3(t *testing.T) {
	tests := []struct {
		in     string
		bucket string
		prefix string
		ok     bool
	}{
		{"s3://bucket", "bucket", "", true},
		{"s3://bucket/", "bucket", "", true},
		{"s3://bucket/a/b/", "bucket", "a/b", true},
		{"/tmp/out", "", "", false},
		{"s3://", "", "", false},
	}

	for _, tt := range tests {
		p, err := ParseS3(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseS3(%q) err = %v", tt.in, err)
			continue
		}
		if tt.ok && (p.Bucket != tt.bucket || p.Prefix != tt.prefix) {
			t.Errorf("ParseS3(%q) = %+v", tt.in, p)
		}
	}
}

func sampleRecords() []HoldingRecord {
	ytm := 0.05
	return HoldingRecords([]*holdings.EnrichedHolding{
		{
			Holding: &types.Holding{Ticker: "IEF", Name: "A", FaceAmount: 100, CouponPercent: 5, MarketValue: 100},
			Terms:   types.BondTerms{FaceAmount: 100, CouponRate: 0.05, MarketValue: 100, TimeToMaturity: 2.25, CompoundingPeriodsPerYear: 2},
			Metrics: types.BondMetrics{YTM: types.MetricOf(ytm, nil), ZSpread: types.Unavailable(types.ErrInvalidCurve)},
		},
		{
			Holding: &types.Holding{Ticker: "IEF", Name: "C", FaceAmount: 100, CouponPercent: 5, MarketValue: 100},
			Terms:   types.BondTerms{FaceAmount: 100, CouponRate: 0.05, MarketValue: 100, TimeToMaturity: 2, CompoundingPeriodsPerYear: 2},
			Metrics: types.BondMetrics{YTM: types.MetricOf(ytm, nil), ZSpread: types.Unavailable(bond.ErrNoCurve)},
		},
		{
			Holding: &types.Holding{Ticker: "IEF", Name: "B"},
			Err:     types.ErrInvalidMaturityDate,
		},
		nil,
	})
}

func TestHoldingRecords(t *testing.T) {
	records := sampleRecords()
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	a := records[0]
	if a.YTM == nil || *a.YTM != 0.05 || a.ZSpread != nil || a.CouponRate != 0.05 {
		t.Errorf("records[0] = %+v", a)
	}
	if a.Error != "" || a.ZSpreadError != types.ErrInvalidCurve.Error() {
		t.Errorf("records[0] errors = %q, %q", a.Error, a.ZSpreadError)
	}
	if a.AccruedInterest == nil || math.Abs(*a.AccruedInterest-1.25) > 1e-9 || a.CleanPrice == nil || math.Abs(*a.CleanPrice-98.75) > 1e-9 {
		t.Errorf("records[0] accrual = %v, %v", a.AccruedInterest, a.CleanPrice)
	}

	if c := records[1]; c.ZSpreadError != "" || c.AccruedInterest == nil || *c.AccruedInterest != 0 {
		t.Errorf("records[1] = %+v", c)
	}

	b := records[2]
	if b.Error != types.ErrInvalidMaturityDate.Error() || b.YTM != nil || b.AccruedInterest != nil || b.ZSpreadError != "" {
		t.Errorf("records[2] = %+v", b)
	}
}

func TestStoreToPath(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	out, err := StoreToPath(context.Background(), sampleRecords(), "IEF-holdings", date, dir)
	if err != nil {
		t.Fatalf("StoreToPath: %v", err)
	}
	if want := filepath.Join(dir, "2024", "03", "05", "IEF-holdings.parquet"); out != want {
		t.Errorf("path = %s, want %s", out, want)
	}

	back, err := ReadRecords[HoldingRecord](out)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(back) != 3 || back[0].Name != "A" || back[0].YTM == nil || *back[0].YTM != 0.05 || back[2].YTM != nil {
		t.Errorf("read back %+v", back)
	}
}

func TestStoreToS3(t *testing.T) {
	store := newMemoryStore()
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	rows := []types.DailySeriesRow{{Date: civil.Date{Year: 2024, Month: 3, Day: 5}, NAV: 10}}

	out, err := StoreToS3(context.Background(), SeriesRecords("IEF", rows), "IEF-shares", date, store, &S3Path{Bucket: "funds", Prefix: "reports"})
	if err != nil {
		t.Fatalf("StoreToS3: %v", err)
	}
	if out != "s3://funds/reports/2024/03/05/IEF-shares.parquet" {
		t.Errorf("out = %s", out)
	}

	path, err := FetchFromS3(context.Background(), store, "funds", "reports/2024/03/05/IEF-shares.parquet")
	if err != nil {
		t.Fatalf("FetchFromS3: %v", err)
	}
	defer os.Remove(path)

	back, err := ReadRecords[SeriesRecord](path)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(back) != 1 || back[0].Ticker != "IEF" || back[0].NAV != 10 || back[0].EstimatedSharesOutstanding != nil {
		t.Errorf("read back %+v", back)
	}
}
