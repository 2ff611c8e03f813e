package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/olistflow/olistflow/pkg/analytics"
	"github.com/olistflow/olistflow/pkg/loader"
	"github.com/olistflow/olistflow/pkg/logger"
	"github.com/olistflow/olistflow/pkg/notify"
	"github.com/olistflow/olistflow/pkg/pipeline"
	"github.com/olistflow/olistflow/pkg/quality"
	s3store "github.com/olistflow/olistflow/pkg/storage/s3"
	"github.com/olistflow/olistflow/pkg/warehouse"
)

const timeUnit = time.Millisecond

func newRunCmd(load configLoader) *cobra.Command {
	var forceSchema bool
	var skipDownload bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the end-to-end pipeline",
		Long: `Run the full pipeline: Kaggle download, raw zone upload, schema
creation, warehouse load, analytics, and data quality checks. With
--skip-download, the run starts from data already in the raw zone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			store, err := s3store.New(ctx, cfg.S3, logger.Get())
			if err != nil {
				return err
			}

			wh, err := warehouse.Connect(ctx, cfg.Warehouse, logger.Get())
			if err != nil {
				return err
			}
			defer wh.Close()

			var stages []pipeline.Stage

			if !skipDownload {
				stages = append(stages,
					pipeline.Stage{Name: "download", Run: func(ctx context.Context) error {
						client, err := newKaggleClient(cfg)
						if err != nil {
							return err
						}
						_, err = client.DownloadDataset(ctx, cfg.Kaggle.Dataset, cfg.Kaggle.DataDir)
						return err
					}},
					pipeline.Stage{Name: "upload", Run: func(ctx context.Context) error {
						_, err := store.UploadDir(ctx, cfg.Kaggle.DataDir)
						return err
					}},
				)
			}

			stages = append(stages,
				pipeline.Stage{Name: "schema", Run: func(ctx context.Context) error {
					return wh.EnsureSchema(ctx, forceSchema)
				}},
				pipeline.Stage{Name: "load", Run: func(ctx context.Context) error {
					summary, err := loader.New(store, wh, cfg.Loader, logger.Get()).LoadAll(ctx)
					if err != nil {
						return err
					}
					printSummary(summary)
					return nil
				}},
				pipeline.Stage{Name: "analyze", Run: func(ctx context.Context) error {
					return runAnalyses(ctx, cfg, analytics.New(wh.Pool(), logger.Get()))
				}},
				pipeline.Stage{Name: "quality", Run: func(ctx context.Context) error {
					report, err := quality.New(wh, logger.Get()).Run(ctx)
					if err != nil {
						return err
					}
					if !report.OK() {
						return fmt.Errorf("%d quality checks failed", report.Failed)
					}
					return nil
				}},
			)

			alerter := notify.NewEmailAlerter(cfg.Pipeline.Alerting, logger.Get())
			runner := pipeline.NewRunner(cfg.Pipeline, alerter, logger.Get())

			report, err := runner.Run(ctx, stages)
			if report != nil {
				fmt.Printf("\nPipeline run %s:\n", report.RunID)
				for _, s := range report.Stages {
					status := "ok"
					if s.Error != "" {
						status = "FAILED"
					}
					fmt.Printf("  %-10s %-7s attempts=%d  %s\n",
						s.Name, status, s.Attempts, s.Duration.Round(timeUnit))
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&forceSchema, "force-schema", false, "drop and recreate the schema first")
	cmd.Flags().BoolVar(&skipDownload, "skip-download", false, "start from data already in the raw zone")
	return cmd
}
