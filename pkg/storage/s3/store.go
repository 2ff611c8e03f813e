// Package s3 implements the raw zone: object storage holding the
// unmodified source CSVs between the Kaggle download and the warehouse
// load.
package s3

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/olistflow/olistflow/pkg/config"
	"github.com/olistflow/olistflow/pkg/errors"
)

// Object describes one object in the raw zone.
type Object struct {
	Key  string
	Size int64
}

// Store provides raw zone access over a single bucket and prefix.
type Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	prefix     string
	logger     *zap.Logger
}

// New creates a raw zone store. Explicit static credentials from the
// configuration take precedence over the default AWS credential chain.
func New(ctx context.Context, cfg config.S3Config, logger *zap.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(awsCfg)

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = cfg.UploadPartSize
		u.Concurrency = cfg.MaxConcurrency
	})
	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = cfg.UploadPartSize
		d.Concurrency = cfg.MaxConcurrency
	})

	return &Store{
		client:     client,
		uploader:   uploader,
		downloader: downloader,
		bucket:     cfg.Bucket,
		prefix:     strings.TrimSuffix(cfg.Prefix, "/"),
		logger:     logger.With(zap.String("component", "raw_zone")),
	}, nil
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

// Prefix returns the raw zone prefix.
func (s *Store) Prefix() string { return s.prefix }

// CheckAccess verifies the bucket and prefix are reachable.
func (s *Store) CheckAccess(ctx context.Context) error {
	_, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.keyPrefix()),
		MaxKeys: aws.Int32(10),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to access raw zone bucket")
	}
	return nil
}

// UploadDir uploads every CSV file in the local directory into the raw
// zone. Failures are reported per file; one bad file does not stop the
// rest.
func (s *Store) UploadDir(ctx context.Context, dir string) ([]Object, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read data directory")
	}

	var uploaded []Object
	var failed []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}

		localPath := filepath.Join(dir, entry.Name())
		key := s.objectKey(entry.Name())

		info, err := entry.Info()
		if err != nil {
			failed = append(failed, entry.Name())
			s.logger.Error("failed to stat file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		f, err := os.Open(localPath) //nolint:gosec // G304: listed from the data directory
		if err != nil {
			failed = append(failed, entry.Name())
			s.logger.Error("failed to open file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		f.Close()
		if err != nil {
			failed = append(failed, entry.Name())
			s.logger.Error("upload failed", zap.String("key", key), zap.Error(err))
			continue
		}

		s.logger.Info("uploaded",
			zap.String("key", key),
			zap.Int64("bytes", info.Size()))
		uploaded = append(uploaded, Object{Key: key, Size: info.Size()})
	}

	if len(uploaded) == 0 && len(failed) == 0 {
		return nil, errors.New(errors.ErrorTypeNotFound,
			"no CSV files found in data directory").WithDetail("dir", dir)
	}
	if len(failed) > 0 {
		return uploaded, errors.New(errors.ErrorTypeConnection,
			"some uploads failed").WithDetail("failed", failed)
	}

	return uploaded, nil
}

// ListCSVKeys lists all CSV object keys under the raw zone prefix.
func (s *Store) ListCSVKeys(ctx context.Context) ([]Object, error) {
	var objects []Object

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix()),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list raw zone objects")
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".csv") {
				continue
			}
			objects = append(objects, Object{Key: key, Size: aws.ToInt64(obj.Size)})
		}
	}

	return objects, nil
}

// DownloadToDir downloads an object into dir and returns the local path.
func (s *Store) DownloadToDir(ctx context.Context, key, dir string) (string, error) {
	localPath := filepath.Join(dir, path.Base(key))

	f, err := os.Create(localPath) //nolint:gosec // G304: basename of a known key
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create local file")
	}
	defer f.Close()

	n, err := s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection,
			"failed to download object").WithDetail("key", key)
	}

	s.logger.Info("downloaded",
		zap.String("key", key),
		zap.Int64("bytes", n))

	return localPath, nil
}

func (s *Store) keyPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func (s *Store) objectKey(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}
