// Package config provides the unified configuration for the olistflow
// pipeline. A single Config structure covers every stage of the run:
// Kaggle extraction, the S3 raw zone, the PostgreSQL warehouse, loader
// behavior, orchestration retries and alerting, and the dashboard.
//
// Configuration is resolved in three layers:
//   - built-in defaults (Default)
//   - environment variables, usually via a .env file (ApplyEnv)
//   - an optional YAML file with ${VAR} substitution (Load)
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olistflow/olistflow/pkg/errors"
)

// Config is the top-level configuration for a pipeline run.
type Config struct {
	// Logging controls the zap logger setup
	Logging LoggingConfig `yaml:"logging"`

	// Kaggle configures the dataset download stage
	Kaggle KaggleConfig `yaml:"kaggle"`

	// S3 configures the raw zone in object storage
	S3 S3Config `yaml:"s3"`

	// Warehouse configures the PostgreSQL target
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// Loader configures bulk load behavior
	Loader LoaderConfig `yaml:"loader"`

	// Pipeline configures orchestration: retries, timeouts, alerting
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Dashboard configures the analytics HTTP server
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	Encoding    string `yaml:"encoding"`
}

// KaggleConfig configures the Kaggle API download stage.
type KaggleConfig struct {
	// Dataset is the Kaggle dataset slug (owner/name)
	Dataset string `yaml:"dataset"`
	// DataDir is the local directory CSVs are unpacked into
	DataDir string `yaml:"data_dir"`
	// Username and Key override kaggle.json credentials when set
	Username string `yaml:"username"`
	Key      string `yaml:"key"`
	// CredentialsDir points at a directory holding kaggle.json;
	// empty means project-local .kaggle then ~/.kaggle
	CredentialsDir string `yaml:"credentials_dir"`
	// Timeout bounds a single download request
	Timeout time.Duration `yaml:"timeout"`
}

// S3Config configures the object storage raw zone.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	// UploadPartSize is the multipart upload part size in bytes
	UploadPartSize int64 `yaml:"upload_part_size"`
	// MaxConcurrency bounds parallel multipart transfers
	MaxConcurrency int `yaml:"max_concurrency"`
}

// WarehouseConfig configures the PostgreSQL warehouse connection.
type WarehouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	// MaxConns bounds the pgx pool size
	MaxConns int32 `yaml:"max_conns"`
	// ConnectTimeout bounds connection establishment
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// LoaderConfig configures the FK-ordered bulk loader.
type LoaderConfig struct {
	// BatchSize is the number of rows per insert page
	BatchSize int `yaml:"batch_size"`
	// Truncate enables replace mode (truncate before load)
	Truncate bool `yaml:"truncate"`
	// SmartSkip skips tables whose row counts already match the source
	SmartSkip bool `yaml:"smart_skip"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	// Retries is the number of retry attempts per failed stage
	Retries int `yaml:"retries"`
	// RetryDelay is the initial backoff delay between retries
	RetryDelay time.Duration `yaml:"retry_delay"`
	// StageTimeout bounds a single stage execution
	StageTimeout time.Duration `yaml:"stage_timeout"`
	// Alerting configures failure notification
	Alerting AlertingConfig `yaml:"alerting"`
}

// AlertingConfig configures email alerts on terminal pipeline failure.
// Alerting is disabled when SMTPHost is empty.
type AlertingConfig struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// DashboardConfig configures the analytics HTTP server.
type DashboardConfig struct {
	Addr string `yaml:"addr"`
	// OutputDir receives exported analytics CSVs
	OutputDir string `yaml:"output_dir"`
	// CompressExports gzips exported CSVs
	CompressExports bool `yaml:"compress_exports"`
}

// Default returns the built-in defaults for a pipeline run.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
		Kaggle: KaggleConfig{
			Dataset: "olistbr/brazilian-ecommerce",
			DataDir: "data",
			Timeout: 10 * time.Minute,
		},
		S3: S3Config{
			Prefix:         "raw/",
			Region:         "us-east-2",
			UploadPartSize: 5 * 1024 * 1024,
			MaxConcurrency: 10,
		},
		Warehouse: WarehouseConfig{
			Port:           5432,
			SSLMode:        "require",
			MaxConns:       4,
			ConnectTimeout: 30 * time.Second,
		},
		Loader: LoaderConfig{
			BatchSize: 1000,
			Truncate:  true,
			SmartSkip: true,
		},
		Pipeline: PipelineConfig{
			Retries:      2,
			RetryDelay:   5 * time.Minute,
			StageTimeout: time.Hour,
			Alerting: AlertingConfig{
				SMTPPort: 587,
			},
		},
		Dashboard: DashboardConfig{
			Addr:      ":8080",
			OutputDir: "output",
		},
	}
}

// ApplyEnv overlays environment variables onto the configuration.
// Variable names follow the original deployment's .env contract.
func (c *Config) ApplyEnv() {
	setString(&c.Kaggle.Username, "KAGGLE_USERNAME")
	setString(&c.Kaggle.Key, "KAGGLE_KEY")
	setString(&c.Kaggle.CredentialsDir, "KAGGLE_CONFIG_DIR")
	setString(&c.Kaggle.DataDir, "DATA_DIR")

	setString(&c.S3.Bucket, "S3_BUCKET")
	setString(&c.S3.Prefix, "S3_PREFIX")
	setString(&c.S3.Region, "S3_REGION")
	setString(&c.S3.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&c.S3.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")

	setString(&c.Warehouse.Host, "DB_HOST")
	setInt(&c.Warehouse.Port, "DB_PORT")
	setString(&c.Warehouse.Database, "DB_NAME")
	setString(&c.Warehouse.User, "DB_USER")
	setString(&c.Warehouse.Password, "DB_PASSWORD")
	setString(&c.Warehouse.SSLMode, "DB_SSLMODE")

	setString(&c.Pipeline.Alerting.SMTPHost, "SMTP_HOST")
	setInt(&c.Pipeline.Alerting.SMTPPort, "SMTP_PORT")
	setString(&c.Pipeline.Alerting.Username, "SMTP_USERNAME")
	setString(&c.Pipeline.Alerting.Password, "SMTP_PASSWORD")
	setString(&c.Pipeline.Alerting.From, "ALERT_FROM")
	setStringList(&c.Pipeline.Alerting.To, "ALERT_TO")

	setString(&c.Logging.Level, "LOG_LEVEL")
}

// Validate checks that the configuration is usable for the given stages.
func (c *Config) Validate() error {
	if c.S3.Bucket == "" {
		return errors.New(errors.ErrorTypeConfig, "s3 bucket is required")
	}
	if c.Warehouse.Host == "" {
		return errors.New(errors.ErrorTypeConfig, "warehouse host is required")
	}
	if c.Warehouse.Database == "" {
		return errors.New(errors.ErrorTypeConfig, "warehouse database is required")
	}
	if c.Warehouse.User == "" {
		return errors.New(errors.ErrorTypeConfig, "warehouse user is required")
	}
	if c.Loader.BatchSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "loader batch size must be positive")
	}
	if c.Pipeline.Retries < 0 {
		return errors.New(errors.ErrorTypeConfig, "pipeline retries must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// setStringList overlays a comma-separated list.
func setStringList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) > 0 {
		*dst = items
	}
}
