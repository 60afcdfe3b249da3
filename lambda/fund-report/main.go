package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"benritz/fundcalc/internal/collect"
	"benritz/fundcalc/internal/config"
	"benritz/fundcalc/internal/holdings"
)

// job is the body of one SQS message.
//
//	Ticker:     fund ticker, required.
//	Holdings:   holdings file location, defaults to holdings.location.
//	Settlement: YYYY-MM-DD, defaults to today.
type job struct {
	Ticker     string `json:"ticker"`
	Holdings   string `json:"holdings"`
	Settlement string `json:"settlement"`
}

type reporter struct {
	cfg    *config.Config
	store  collect.ObjectStore
	dst    *collect.S3Path
	logger *logrus.Logger
	now    func() time.Time
}

func newReporter(ctx context.Context) (*reporter, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}

	dst, err := collect.ParseS3(cfg.Output.Destination)
	if err != nil {
		return nil, fmt.Errorf("output.destination: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &reporter{
		cfg:    cfg,
		store:  s3.NewFromConfig(awsCfg),
		dst:    dst,
		logger: cfg.NewLogger(),
		now:    time.Now,
	}, nil
}

// handle processes every record and reports the ones that failed, so only
// those are redelivered.
func (r *reporter) handle(ctx context.Context, request events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse

	for _, rec := range request.Records {
		log := r.logger.WithField("message_id", rec.MessageId)

		outPath, err := r.process(ctx, rec)
		if err != nil {
			log.WithError(err).Error("failed to build fund report")
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
			continue
		}

		log.WithField("path", outPath).Info("stored fund report")
	}

	return resp, nil
}

func (r *reporter) process(ctx context.Context, rec events.SQSMessage) (string, error) {
	var j job
	if err := json.Unmarshal([]byte(rec.Body), &j); err != nil {
		return "", fmt.Errorf("invalid job: %w", err)
	}

	ticker := strings.ToUpper(strings.TrimSpace(j.Ticker))
	if ticker == "" {
		return "", fmt.Errorf("invalid job: missing ticker")
	}

	settlement := r.now().UTC().Truncate(24 * time.Hour)
	if j.Settlement != "" {
		ts, err := time.Parse(time.DateOnly, j.Settlement)
		if err != nil {
			return "", fmt.Errorf("invalid settlement date: %w", err)
		}
		settlement = ts
	}

	location := j.Holdings
	if location == "" {
		location = r.cfg.Holdings.Location
	}

	collector := collect.NewWorkbookCollector(location, r.logger)
	collector.S3 = r.store
	collector.ZeroCoupon = r.cfg.IsZeroCoupon(ticker)

	collected, err := collector.Collect(ctx, ticker, settlement)
	if err != nil {
		return "", err
	}

	enricher := holdings.NewEnricher(r.cfg.SolverSettings(), r.cfg.Workers, r.logger)

	enriched, err := enricher.Enrich(ctx, settlement, r.cfg.Compounding, collected.Holdings)
	if err != nil {
		return "", err
	}

	summary := holdings.Summarize(ticker, enriched)
	fields := logrus.Fields{
		"ticker":   ticker,
		"holdings": summary.Holdings,
		"skipped":  len(collected.Failures),
	}
	for name, avg := range summary.Averages {
		fields[name] = avg.String()
	}
	r.logger.WithFields(fields).Info("holdings enriched")

	return collect.StoreToS3(ctx, collect.HoldingRecords(enriched), ticker+"-holdings", settlement, r.store, r.dst)
}

func main() {
	r, err := newReporter(context.Background())
	if err != nil {
		logrus.WithError(err).Fatal("failed to start")
	}

	lambda.Start(r.handle)
}
