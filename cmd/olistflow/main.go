package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/olistflow/olistflow/pkg/config"
	"github.com/olistflow/olistflow/pkg/logger"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configFile string
	var logLevel string

	root := &cobra.Command{
		Use:   "olistflow",
		Short: "olistflow - Olist e-commerce warehouse pipeline",
		Long: `olistflow moves the Olist Brazilian e-commerce dataset from Kaggle
through an S3 raw zone into a PostgreSQL warehouse, runs the aggregation
analyses, and serves an analytics dashboard.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if err := logger.Init(logger.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
			Encoding:    cfg.Logging.Encoding,
		}); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("olistflow v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newDownloadCmd(loadConfig))
	root.AddCommand(newUploadCmd(loadConfig))
	root.AddCommand(newSchemaCmd(loadConfig))
	root.AddCommand(newLoadCmd(loadConfig))
	root.AddCommand(newAnalyzeCmd(loadConfig))
	root.AddCommand(newQualityCmd(loadConfig))
	root.AddCommand(newCheckCmd(loadConfig))
	root.AddCommand(newRunCmd(loadConfig))
	root.AddCommand(newServeCmd(loadConfig))
	root.AddCommand(newConfigCmd())

	if err := root.Execute(); err != nil {
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// configLoader resolves configuration and initializes logging for a
// command invocation.
type configLoader func() (*config.Config, error)
