// Package kaggle provides a minimal Kaggle API client for downloading
// public datasets. Only the dataset download endpoint is implemented;
// the pipeline needs nothing else.
package kaggle

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/olistflow/olistflow/pkg/errors"
	"github.com/olistflow/olistflow/pkg/retry"
)

const defaultBaseURL = "https://www.kaggle.com/api/v1"

// Credentials holds Kaggle API credentials.
type Credentials struct {
	Username string `json:"username"`
	Key      string `json:"key"`
}

// Client downloads datasets from the Kaggle API.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	retry      *retry.Policy
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout bounds a single download request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetryPolicy overrides the request retry policy.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// NewClient creates a Kaggle API client.
func NewClient(creds Credentials, logger *zap.Logger, opts ...Option) (*Client, error) {
	if creds.Username == "" || creds.Key == "" {
		return nil, errors.New(errors.ErrorTypeAuthentication,
			"kaggle credentials are required (kaggle.json or KAGGLE_USERNAME/KAGGLE_KEY)")
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	c := &Client{
		baseURL: defaultBaseURL,
		creds:   creds,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   10 * time.Minute,
		},
		retry:  retry.NewPolicy(3, 2*time.Second),
		logger: logger.With(zap.String("component", "kaggle_client")),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// DownloadDataset downloads and unpacks a dataset archive into destDir,
// returning the names of the CSV files it contains.
func (c *Client) DownloadDataset(ctx context.Context, slug, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create data directory")
	}

	archive, err := os.CreateTemp("", "kaggle-*.zip")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create temp archive")
	}
	defer os.Remove(archive.Name())
	defer archive.Close()

	url := fmt.Sprintf("%s/datasets/download/%s", c.baseURL, slug)

	err = c.retry.ExecuteWithCondition(ctx, func() error {
		return c.fetchArchive(ctx, url, archive)
	}, errors.IsRetryable)
	if err != nil {
		return nil, err
	}

	files, err := unzipCSVs(archive.Name(), destDir)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, errors.New(errors.ErrorTypeData,
			"dataset archive contains no CSV files").WithDetail("dataset", slug)
	}

	c.logger.Info("dataset downloaded",
		zap.String("dataset", slug),
		zap.String("dir", destDir),
		zap.Int("csv_files", len(files)))

	return files, nil
}

func (c *Client) fetchArchive(ctx context.Context, url string, dst *os.File) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to build request")
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "kaggle request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.New(errors.ErrorTypeAuthentication,
			"kaggle rejected credentials").WithDetail("status", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.New(errors.ErrorTypeRateLimit, "kaggle rate limit hit")
	case resp.StatusCode >= 500:
		return errors.New(errors.ErrorTypeConnection,
			"kaggle server error").WithDetail("status", resp.StatusCode)
	default:
		return errors.New(errors.ErrorTypeData,
			"unexpected kaggle response").WithDetail("status", resp.StatusCode)
	}

	// Restart the archive for each attempt.
	if err := dst.Truncate(0); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to truncate archive")
	}
	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to rewind archive")
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "archive download interrupted")
	}

	c.logger.Debug("archive fetched", zap.Int64("bytes", n))
	return nil
}

// unzipCSVs extracts CSV entries from the archive into destDir.
func unzipCSVs(archivePath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open dataset archive")
	}
	defer r.Close()

	var files []string
	for _, f := range r.File {
		name := filepath.Base(f.Name)
		if !strings.HasSuffix(name, ".csv") || f.FileInfo().IsDir() {
			continue
		}

		if err := extractFile(f, filepath.Join(destDir, name)); err != nil {
			return nil, err
		}
		files = append(files, name)
	}

	return files, nil
}

func extractFile(f *zip.File, dest string) error {
	src, err := f.Open()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open archive entry")
	}
	defer src.Close()

	out, err := os.Create(dest) //nolint:gosec // G304: name is sanitized via filepath.Base
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create extracted file")
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil { //nolint:gosec // G110: trusted fixed dataset
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to extract archive entry")
	}

	return nil
}
