package export

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"drive-go/internal/config"
	"drive-go/internal/drive"
)

// s3API is the subset of the S3 client used by S3Sink.
type s3API interface {
	manager.UploadAPIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Sink uploads exports to an S3 bucket. Large files go through the
// multipart upload manager, so the content size does not need to be known.
type S3Sink struct {
	name     string
	bucket   string
	prefix   string
	client   s3API
	uploader *manager.Uploader
}

// NewS3Sink creates a sink from configuration, loading AWS credentials
// from the static keys when set and from the default chain otherwise.
func NewS3Sink(ctx context.Context, cfg config.ExportConfig) (*S3Sink, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 export requires s3_bucket to be set")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Sink(cfg.Name, cfg.S3Bucket, cfg.S3Prefix, client), nil
}

func newS3Sink(name, bucket, prefix string, client s3API) *S3Sink {
	return &S3Sink{
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func (s *S3Sink) Name() string { return s.name }

// Put uploads the content to s3://<bucket>/<prefix>/<key>.
func (s *S3Sink) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	objectKey := path.Join(s.prefix, key)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   r,
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("uploading to s3://%s/%s: %w", s.bucket, objectKey, err)
	}
	return "s3://" + s.bucket + "/" + objectKey, nil
}

// ValidateSetup checks that the bucket exists and is accessible.
func (s *S3Sink) ValidateSetup(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", s.bucket, err)
	}
	return nil
}

// Compile-time check that S3Sink implements drive.ExportSink interface
var _ drive.ExportSink = (*S3Sink)(nil)
