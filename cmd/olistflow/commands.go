package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olistflow/olistflow/pkg/analytics"
	"github.com/olistflow/olistflow/pkg/config"
	"github.com/olistflow/olistflow/pkg/dashboard"
	"github.com/olistflow/olistflow/pkg/kaggle"
	"github.com/olistflow/olistflow/pkg/loader"
	"github.com/olistflow/olistflow/pkg/logger"
	"github.com/olistflow/olistflow/pkg/quality"
	s3store "github.com/olistflow/olistflow/pkg/storage/s3"
	"github.com/olistflow/olistflow/pkg/warehouse"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newKaggleClient(cfg *config.Config) (*kaggle.Client, error) {
	creds, err := kaggle.ResolveCredentials(cfg.Kaggle.Username, cfg.Kaggle.Key, cfg.Kaggle.CredentialsDir)
	if err != nil {
		return nil, err
	}
	return kaggle.NewClient(creds, logger.Get(), kaggle.WithTimeout(cfg.Kaggle.Timeout))
}

func newDownloadCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download the dataset from Kaggle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			client, err := newKaggleClient(cfg)
			if err != nil {
				return err
			}

			files, err := client.DownloadDataset(ctx, cfg.Kaggle.Dataset, cfg.Kaggle.DataDir)
			if err != nil {
				return err
			}

			fmt.Printf("Downloaded %d CSV files to %s:\n", len(files), cfg.Kaggle.DataDir)
			for _, f := range files {
				fmt.Printf("  - %s\n", f)
			}
			return nil
		},
	}
}

func newUploadCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Upload local CSVs to the S3 raw zone",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			store, err := s3store.New(ctx, cfg.S3, logger.Get())
			if err != nil {
				return err
			}

			uploaded, err := store.UploadDir(ctx, cfg.Kaggle.DataDir)
			for _, obj := range uploaded {
				fmt.Printf("Uploaded s3://%s/%s (%d bytes)\n", store.Bucket(), obj.Key, obj.Size)
			}
			return err
		},
	}
}

func newSchemaCmd(load configLoader) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create the warehouse schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			wh, err := warehouse.Connect(ctx, cfg.Warehouse, logger.Get())
			if err != nil {
				return err
			}
			defer wh.Close()

			return wh.EnsureSchema(ctx, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "drop and recreate the schema")
	return cmd
}

func newLoadCmd(load configLoader) *cobra.Command {
	var table string
	var noTruncate bool

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load CSVs from the raw zone into the warehouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if noTruncate {
				cfg.Loader.Truncate = false
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

			if err := wh.EnsureSchema(ctx, false); err != nil {
				return err
			}

			l := loader.New(store, wh, cfg.Loader, logger.Get())

			if table != "" {
				result, err := l.LoadTable(ctx, table)
				if err != nil {
					return err
				}
				printTableResult(result)
				return nil
			}

			summary, err := l.LoadAll(ctx)
			if err != nil {
				return err
			}
			printSummary(summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "load a single table")
	cmd.Flags().BoolVar(&noTruncate, "no-truncate", false, "append instead of replacing existing data")
	return cmd
}

func printTableResult(r *loader.TableResult) {
	if r.Skipped {
		fmt.Printf("%-40s up to date (%d rows), skipped\n", r.Table, r.RowsAfter)
		return
	}
	fmt.Printf("%-40s loaded %d rows in %s\n", r.Table, r.RowsInserted, r.Duration.Round(timeUnit))
}

func printSummary(s *loader.Summary) {
	for i := range s.Tables {
		printTableResult(&s.Tables[i])
	}
	fmt.Printf("\nLoaded %d tables (%d rows), skipped %d, in %s\n",
		s.Loaded, s.Rows, s.Skipped, s.Duration.Round(timeUnit))
}

func newAnalyzeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Run the aggregation analyses and export results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			wh, err := warehouse.Connect(ctx, cfg.Warehouse, logger.Get())
			if err != nil {
				return err
			}
			defer wh.Close()

			return runAnalyses(ctx, cfg, analytics.New(wh.Pool(), logger.Get()))
		},
	}
}

func runAnalyses(ctx context.Context, cfg *config.Config, a *analytics.Analyzer) error {
	states, err := a.RevenueByState(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Top 10 states by revenue:")
	for i, s := range states {
		if i >= 10 {
			break
		}
		fmt.Printf("  %-2s  R$ %14.2f  %7d orders\n", s.State, s.TotalRevenue, s.OrderCount)
	}
	if _, err := analytics.ExportStateRevenue(cfg.Dashboard.OutputDir, states, cfg.Dashboard.CompressExports); err != nil {
		return err
	}

	delivery, err := a.DeliveryPerformance(ctx)
	if err != nil {
		return err
	}
	reg := delivery.Regression
	fmt.Printf("\nDelivery regression: review_score = %.4f + (%.4f) * delivery_days\n",
		reg.Intercept, reg.Slope)
	fmt.Printf("  r² = %.4f, p = %.4e, stderr = %.4f, n = %d\n",
		reg.RSquared, reg.PValue, reg.StdErr, reg.N)

	categories, err := a.CategoryPerformanceAll(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\nTop 15 product categories by revenue:")
	for i, c := range categories {
		if i >= 15 {
			break
		}
		fmt.Printf("  %-40s R$ %14.2f  %6d items  %.2f avg review\n",
			c.Category, c.TotalRevenue, c.ItemsSold, c.AvgReview)
	}
	if _, err := analytics.ExportCategoryPerformance(cfg.Dashboard.OutputDir, categories, cfg.Dashboard.CompressExports); err != nil {
		return err
	}

	best := analytics.BestRatedCategories(categories, 100)
	fmt.Println("\nBest-rated categories (min 100 sales):")
	for i, c := range best {
		if i >= 10 {
			break
		}
		fmt.Printf("  %-40s %.2f avg review  %6d items\n", c.Category, c.AvgReview, c.ItemsSold)
	}

	return nil
}

func newQualityCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "quality",
		Short: "Run the data quality checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			wh, err := warehouse.Connect(ctx, cfg.Warehouse, logger.Get())
			if err != nil {
				return err
			}
			defer wh.Close()

			report, err := quality.New(wh, logger.Get()).Run(ctx)
			if err != nil {
				return err
			}

			for _, r := range report.Results {
				fmt.Printf("  [%-4s] %-45s %s\n", r.Status, r.Check, r.Message)
			}
			fmt.Printf("\nPassed: %d  Failed: %d  Warnings: %d\n",
				report.Passed, report.Failed, report.Warnings)

			if !report.OK() {
				return fmt.Errorf("%d quality checks failed", report.Failed)
			}
			return nil
		},
	}
}

func newCheckCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Test S3 and PostgreSQL connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			s3OK := checkS3(ctx, cfg)
			pgOK := checkWarehouse(ctx, cfg)

			fmt.Printf("\nS3 raw zone:  %s\n", passFail(s3OK))
			fmt.Printf("PostgreSQL:   %s\n", passFail(pgOK))

			if !s3OK || !pgOK {
				return fmt.Errorf("connection checks failed")
			}
			return nil
		},
	}
}

func checkS3(ctx context.Context, cfg *config.Config) bool {
	store, err := s3store.New(ctx, cfg.S3, logger.Get())
	if err != nil {
		logger.Error("S3 setup failed", zap.Error(err))
		return false
	}
	objects, err := store.ListCSVKeys(ctx)
	if err != nil {
		logger.Error("S3 listing failed", zap.Error(err))
		return false
	}
	fmt.Printf("Found %d CSV objects in s3://%s/%s/\n", len(objects), store.Bucket(), store.Prefix())
	for _, obj := range objects {
		fmt.Printf("  - %s (%.2f MB)\n", obj.Key, float64(obj.Size)/(1024*1024))
	}
	return true
}

func checkWarehouse(ctx context.Context, cfg *config.Config) bool {
	wh, err := warehouse.Connect(ctx, cfg.Warehouse, logger.Get())
	if err != nil {
		logger.Error("warehouse connection failed", zap.Error(err))
		return false
	}
	defer wh.Close()

	version, err := wh.Version(ctx)
	if err != nil {
		logger.Error("warehouse version query failed", zap.Error(err))
		return false
	}
	fmt.Printf("Connected to PostgreSQL: %.50s\n", version)

	tables, err := wh.RawTables(ctx)
	if err != nil {
		logger.Error("warehouse table listing failed", zap.Error(err))
		return false
	}
	if len(tables) == 0 {
		fmt.Println("No raw tables yet; run `olistflow schema` first")
	} else {
		fmt.Printf("Found %d raw tables\n", len(tables))
	}
	return true
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "olistflow.yaml"
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})

	return cmd
}

func newServeCmd(load configLoader) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analytics dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Dashboard.Addr = addr
			}

			ctx, cancel := signalContext()
			defer cancel()

			wh, err := warehouse.Connect(ctx, cfg.Warehouse, logger.Get())
			if err != nil {
				return err
			}
			defer wh.Close()

			srv := dashboard.New(
				cfg.Dashboard.Addr,
				analytics.New(wh.Pool(), logger.Get()),
				quality.New(wh, logger.Get()),
				logger.Get(),
			)
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
