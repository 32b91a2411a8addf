package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type headAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Uploader copies completed downloads to an S3 prefix.
type Uploader struct {
	bucket   string
	prefix   string
	uploader uploadAPI
	head     headAPI
	log      zerolog.Logger
}

// NewUploader loads AWS credentials for profile (empty means default) and
// targets an "s3://bucket/prefix" URL.
func NewUploader(ctx context.Context, target, profile string, logger zerolog.Logger) (*Uploader, error) {
	bucket, prefix, err := ParseS3URL(target)
	if err != nil {
		return nil, err
	}
	opts := []func(*config.LoadOptions) error{config.WithRetryMode("adaptive")}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &Uploader{
		bucket: bucket,
		prefix: prefix,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 16 * 1024 * 1024
			u.Concurrency = 4
		}),
		head: client,
		log:  logger.With().Str("op", "archive").Logger(),
	}, nil
}

// ParseS3URL splits "s3://bucket/some/prefix" into bucket and prefix.
func ParseS3URL(raw string) (string, string, error) {
	if !strings.HasPrefix(raw, "s3://") {
		return "", "", fmt.Errorf("invalid S3 URL %q: missing s3:// scheme", raw)
	}
	parts := strings.SplitN(strings.TrimPrefix(raw, "s3://"), "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URL %q: missing bucket", raw)
	}
	prefix := ""
	if len(parts) > 1 {
		prefix = strings.Trim(parts[1], "/")
	}
	return parts[0], prefix, nil
}

func (u *Uploader) key(localPath string) string {
	return path.Join(u.prefix, filepath.Base(localPath))
}

// Upload sends one file and returns its s3:// location. An object of the
// same size already at the key is left alone.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	key := u.key(localPath)
	location := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("error reading %s: %w", localPath, err)
	}
	if head, err := u.head.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}); err == nil && head.ContentLength != nil && *head.ContentLength == info.Size() {
		u.log.Info().Str("file", localPath).Str("target", location).Msg("already archived")
		return location, nil
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("error opening %s: %w", localPath, err)
	}
	defer file.Close()
	if _, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   file,
	}); err != nil {
		return "", fmt.Errorf("error uploading %s: %w", localPath, err)
	}
	u.log.Info().Str("file", localPath).Str("target", location).Int64("size", info.Size()).Msg("archived")
	return location, nil
}

// UploadAll uploads every path and stops at the first error.
func (u *Uploader) UploadAll(ctx context.Context, paths []string) ([]string, error) {
	var locations []string
	for _, p := range paths {
		location, err := u.Upload(ctx, p)
		if err != nil {
			return locations, err
		}
		locations = append(locations, location)
	}
	return locations, nil
}
