package collect

import (
	"benritz/fundcalc/internal/types"
	"path"
	"path/filepath"
	"time"

	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/parquet-go/parquet-go"
)

type CollectedHolding struct {
	Holding *types.Holding
	Row     int
	Err     error
}

// SetError keeps the first error recorded for the row.
func (c *CollectedHolding) SetError(err error) {
	if c.Err == nil {
		c.Err = err
	}
}

type CollectedHoldings struct {
	Ticker         string
	Holdings       []*types.Holding
	Failures       []*CollectedHolding
	Source         string
	SettlementDate time.Time
}

func (c *CollectedHoldings) AddHolding(ch *CollectedHolding) {
	if ch.Err == nil {
		c.Holdings = append(c.Holdings, ch.Holding)
	} else {
		c.Failures = append(c.Failures, ch)
	}
}

func NewCollectedHoldings(ticker, source string, date time.Time) *CollectedHoldings {
	return &CollectedHoldings{
		Ticker:         ticker,
		Source:         source,
		SettlementDate: date,
		Holdings:       []*types.Holding{},
		Failures:       []*CollectedHolding{},
	}
}

type HoldingsCollector interface {
	Collect(ctx context.Context, ticker string, date time.Time) (*CollectedHoldings, error)
	Source() string
}

// ObjectStore is the part of the S3 client used for storage.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

func writeRecords[T any](records []T, output io.Writer) error {
	writer := parquet.NewGenericWriter[T](output)

	if _, err := writer.Write(records); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write records: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}

	return nil
}

// ReadRecords reads every row of a parquet file into T.
func ReadRecords[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

// datedKey lays files out as yyyy/mm/dd/name.parquet.
func datedKey(date time.Time, name string) string {
	return fmt.Sprintf(
		"%04d/%02d/%02d/%s.parquet",
		date.UTC().Year(),
		date.UTC().Month(),
		date.UTC().Day(),
		name,
	)
}

// StoreToPath writes records to basepath/yyyy/mm/dd/name.parquet.
func StoreToPath[T any](ctx context.Context, records []T, name string, date time.Time, basepath string) (string, error) {
	outPath := filepath.Join(basepath, filepath.FromSlash(datedKey(date, name)))

	if err := os.MkdirAll(filepath.Dir(outPath), os.ModePerm); err != nil {
		return "", err
	}

	file, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := writeRecords(records, file); err != nil {
		return "", err
	}

	return outPath, nil
}

type S3Path struct {
	Bucket string
	Prefix string
}

func (p *S3Path) String() string {
	if p.Prefix == "" {
		return fmt.Sprintf("s3://%s", p.Bucket)
	}
	return fmt.Sprintf("s3://%s/%s", p.Bucket, p.Prefix)
}

func ParseS3(path string) (*S3Path, error) {
	if !strings.HasPrefix(path, "s3://") {
		return nil, fmt.Errorf("path must start with s3://")
	}

	path = strings.TrimPrefix(path, "s3://")
	parts := strings.SplitN(path, "/", 2)

	bucket := parts[0]
	if bucket == "" {
		return nil, fmt.Errorf("missing bucket name")
	}

	var prefix string

	if len(parts) > 1 {
		prefix = parts[1]
		prefix = strings.TrimSuffix(prefix, "/")
	} else {
		prefix = ""
	}

	return &S3Path{
		Bucket: bucket,
		Prefix: prefix,
	}, nil
}

// StoreToS3 uploads records to <prefix>/yyyy/mm/dd/name.parquet.
func StoreToS3[T any](ctx context.Context, records []T, name string, date time.Time, client ObjectStore, dst *S3Path) (string, error) {
	tmp, err := os.CreateTemp("", "fundcalc-*.parquet")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tmp.Close()
	defer os.Remove(tmp.Name())

	if err := writeRecords(records, tmp); err != nil {
		return "", err
	}

	if _, err := tmp.Seek(0, 0); err != nil {
		return "", fmt.Errorf("failed to seek to start of file: %w", err)
	}

	key := datedKey(date, name)

	if dst.Prefix != "" {
		key = fmt.Sprintf("%s/%s", dst.Prefix, key)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(dst.Bucket),
		Key:    aws.String(key),
		Body:   tmp,
	}

	if _, err := client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload file to s3://%s/%s: %w", dst.Bucket, key, err)
	}

	outPath := fmt.Sprintf("s3://%s/%s", dst.Bucket, key)

	return outPath, nil
}

// FetchFromS3 downloads an object to a temp file keeping the key's
// extension, so workbook readers can detect the format. The caller removes
// the file.
func FetchFromS3(ctx context.Context, client ObjectStore, bucket, key string) (string, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp("", "fundcalc-*"+path.Ext(key))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	return tmp.Name(), nil
}
