package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus/hooks/test"

	"benritz/fundcalc/internal/collect"
	"benritz/fundcalc/internal/config"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
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

const holdingsCSV = `Name,CUSIP,Par Value,Coupon (%),Market Value,Maturity
US TREASURY N/B,91282CJZ5,1000000,4.125,950000,2034-02-15
US TREASURY N/B,91282CKA8,500000,3.5,510000,2029-05-15
`

func newTestReporter(t *testing.T) (*reporter, *memoryStore) {
	t.Helper()

	store := &memoryStore{objects: map[string][]byte{
		"funds/holdings/IEF.csv": []byte(holdingsCSV),
	}}

	logger, _ := test.NewNullLogger()

	return &reporter{
		cfg: &config.Config{
			Compounding: 2,
			Workers:     2,
			Solver:      config.SolverConfig{Tolerance: 1e-10, MaxIterations: 100},
			Holdings:    config.HoldingsConfig{Location: "s3://funds/holdings/{ticker}.csv"},
		},
		store:  store,
		dst:    &collect.S3Path{Bucket: "reports", Prefix: "daily"},
		logger: logger,
		now:    func() time.Time { return time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC) },
	}, store
}

func TestHandle(t *testing.T) {
	r, store := newTestReporter(t)

	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "ok", Body: `{"ticker":"ief"}`},
		{MessageId: "bad-json", Body: `{"ticker":`},
		{MessageId: "no-ticker", Body: `{"settlement":"2024-03-05"}`},
		{MessageId: "missing-file", Body: `{"ticker":"TLT"}`},
		{MessageId: "dated", Body: `{"ticker":"IEF","settlement":"2024-01-02"}`},
	}}

	resp, err := r.handle(context.Background(), event)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	var failed []string
	for _, f := range resp.BatchItemFailures {
		failed = append(failed, f.ItemIdentifier)
	}
	if got := strings.Join(failed, ","); got != "bad-json,no-ticker,missing-file" {
		t.Errorf("failures = %s", got)
	}

	for _, key := range []string{
		"reports/daily/2024/03/05/IEF-holdings.parquet",
		"reports/daily/2024/01/02/IEF-holdings.parquet",
	} {
		if _, ok := store.objects[key]; !ok {
			t.Errorf("missing object %s", key)
		}
	}
}
