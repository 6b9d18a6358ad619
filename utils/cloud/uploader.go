package cloud

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"haruki-hca/config"
	harukiLogger "haruki-hca/utils/logger"
)

const wavContentType = "audio/wav"

// S3Uploader puts decoded files into an S3-compatible bucket.
type S3Uploader struct {
	client      *s3.Client
	bucket      string
	prefix      string
	concurrency int
	logger      *harukiLogger.Logger
}

func NewS3Uploader(cfg config.StorageConfig, logger *harukiLogger.Logger) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is not configured")
	}
	if logger == nil {
		logger = harukiLogger.NewLogger("HarukiCloudStorageUploader", "INFO", nil)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := s3.Options{
		Region:                     region,
		UsePathStyle:               cfg.PathStyle,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		opts.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}

	concurrency := cfg.ConcurrentUploads
	if concurrency <= 0 {
		concurrency = 4
	}

	return &S3Uploader{
		client:      s3.New(opts),
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// ObjectKey maps a path relative to the export root to an object key under the prefix.
func (u *S3Uploader) ObjectKey(relativePath string) string {
	return path.Join(u.prefix, filepath.ToSlash(relativePath))
}

// Upload stores body under key.
func (u *S3Uploader) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// UploadBytes stores data under key.
func (u *S3Uploader) UploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	return u.Upload(ctx, key, bytes.NewReader(data), contentType)
}

// UploadFile stores the file at filePath under key.
func (u *S3Uploader) UploadFile(ctx context.Context, filePath, key string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	return u.Upload(ctx, key, f, contentTypeFor(filePath))
}

// UploadAll uploads every file, keyed by its path relative to baseDir, with at most
// the configured number of uploads running at once. It returns the first failure.
func (u *S3Uploader) UploadAll(ctx context.Context, files []string, baseDir string) error {
	semaphore := make(chan struct{}, u.concurrency)
	errChan := make(chan error, len(files))
	var wg sync.WaitGroup

	uploadFile := func(filePath string) {
		defer wg.Done()
		semaphore <- struct{}{}
		defer func() { <-semaphore }()

		relativePath, err := filepath.Rel(baseDir, filePath)
		if err != nil {
			errChan <- fmt.Errorf("failed to get relative path for %s: %w", filePath, err)
			return
		}
		key := u.ObjectKey(relativePath)
		u.logger.Debugf("Uploading %s to s3://%s/%s", filePath, u.bucket, key)
		if err := u.UploadFile(ctx, filePath, key); err != nil {
			u.logger.Errorf("Failed to upload %s to %s", filePath, key)
			errChan <- err
			return
		}
		u.logger.Infof("Successfully uploaded %s to %s", filePath, key)
	}

	for _, filePath := range files {
		wg.Add(1)
		go uploadFile(filePath)
	}
	wg.Wait()
	close(errChan)

	if err, ok := <-errChan; ok {
		return err
	}
	return nil
}

func contentTypeFor(filePath string) string {
	switch filepath.Ext(filePath) {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return wavContentType
	default:
		return "application/octet-stream"
	}
}
