package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"benritz/fundcalc/internal/collect"
	"benritz/fundcalc/internal/config"
)

// set with -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

var (
	cfg    *config.Config
	logger *logrus.Logger
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "fundcalc",
	Short:         "Bond analytics and ETF shares-outstanding reconstruction",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")

		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		logger = cfg.NewLogger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/fundcalc.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(bondCmd)
	rootCmd.AddCommand(zspreadCmd)
	rootCmd.AddCommand(holdingsCmd)
	rootCmd.AddCommand(sharesCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fundcalc %s (%s)\n", version, commit)
	},
}

func getAwsConfig(ctx context.Context, profile string) (aws.Config, error) {
	if profile == "" || profile == "default" {
		return awsconfig.LoadDefaultConfig(ctx)
	}
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithSharedConfigProfile(profile))
}

func s3Client(ctx context.Context) (*s3.Client, error) {
	awsCfg, err := getAwsConfig(ctx, cfg.Output.AWSProfile)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// store writes records to the configured destination, local or S3.
func store[T any](ctx context.Context, records []T, name string, date time.Time) (string, error) {
	dst := cfg.Output.Destination

	if s3Path, _ := collect.ParseS3(dst); s3Path != nil {
		client, err := s3Client(ctx)
		if err != nil {
			return "", err
		}
		outPath, err := collect.StoreToS3(ctx, records, name, date, client, s3Path)
		if err != nil {
			return "", fmt.Errorf("failed to store data to S3: %w", err)
		}
		return outPath, nil
	}

	return collect.StoreToPath(ctx, records, name, date, dst)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(time.DateOnly, s)
}
