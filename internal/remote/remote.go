package remote

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type ObjectInfo struct {
	Size   int64
	Blake3 string
}

// Backend replicates archives off the host.
type Backend interface {
	Upload(ctx context.Context, localPath, remotePath, checksumHash, kind string) error
	Head(ctx context.Context, remotePath string) (*ObjectInfo, error)
	Delete(ctx context.Context, remotePath string) error
	VerifyCredentials(ctx context.Context) error
}

// Object kinds, recorded as the "kind" object tag.
const (
	KindArchive  = "archive"
	KindMetadata = "metadata"
)

func ArchiveKey(name string) string {
	return path.Join("archives", name)
}

func MetadataKey(name string) string {
	return path.Join("archives", name+".meta.json")
}

type S3 struct {
	client       *s3.Client
	uploader     *manager.Uploader
	bucket       string
	prefix       string
	storageClass types.StorageClass
}

func NewS3(ctx context.Context, bucket, region, prefix, endpoint string, storageClass types.StorageClass, maxRetryAttempts int) (*S3, error) {
	var configOpts []func(*awsconfig.LoadOptions) error
	configOpts = append(configOpts, awsconfig.WithRegion(region))

	if maxRetryAttempts > 0 {
		configOpts = append(configOpts,
			awsconfig.WithRetryMaxAttempts(maxRetryAttempts),
			awsconfig.WithRetryMode(aws.RetryModeStandard),
		)
		slog.Info("Configured S3 retry strategy", "mode", "standard", "maxAttempts", maxRetryAttempts)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if endpoint != "" {
		if accessKey := os.Getenv("AWS_ACCESS_KEY_ID"); accessKey != "" {
			if secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY"); secretKey != "" {
				cfg.Credentials = credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
			}
		}
	}

	var client *s3.Client
	if endpoint != "" {
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
		slog.Info("S3 client initialized with custom endpoint", "endpoint", endpoint)
	} else {
		client = s3.NewFromConfig(cfg)
	}

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 64 * 1024 * 1024
		u.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenSupported
	})

	if storageClass == "" {
		return nil, fmt.Errorf("storage class must be specified")
	}
	slog.Info("Using storage class", "storageClass", storageClass)

	return &S3{
		client:       client,
		uploader:     uploader,
		bucket:       bucket,
		prefix:       prefix,
		storageClass: storageClass,
	}, nil
}

func (s *S3) key(remotePath string) string {
	return path.Join(s.prefix, remotePath)
}

func (s *S3) Upload(ctx context.Context, localPath, remotePath, checksumHash, kind string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	key := s.key(remotePath)

	input := &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         file,
		StorageClass: s.storageClass,
		Tagging:      aws.String("kind=" + kind),
		Metadata:     map[string]string{"blake3": checksumHash},
	}

	_, err = s.uploader.Upload(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	slog.Info("Uploaded to S3", "bucket", s.bucket, "key", key, "storageClass", s.storageClass)
	return nil
}

func (s *S3) Head(ctx context.Context, remotePath string) (*ObjectInfo, error) {
	key := s.key(remotePath)

	output, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to head object %s: %w", key, err)
	}

	info := &ObjectInfo{}
	if output.ContentLength != nil {
		info.Size = *output.ContentLength
	}
	if output.Metadata != nil {
		info.Blake3 = output.Metadata["blake3"]
	}
	return info, nil
}

func (s *S3) Delete(ctx context.Context, remotePath string) error {
	key := s.key(remotePath)

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}

	slog.Info("Deleted from S3", "bucket", s.bucket, "key", key)
	return nil
}

func (s *S3) VerifyCredentials(ctx context.Context) error {
	slog.Info("Verifying AWS credentials and bucket access", "bucket", s.bucket)

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to verify AWS credentials or bucket access: %w", err)
	}

	slog.Info("AWS credentials verified successfully", "bucket", s.bucket)
	return nil
}

// VerifyUpload checks that the object at remotePath carries the expected
// size and BLAKE3 digest.
func VerifyUpload(ctx context.Context, b Backend, remotePath string, size int64, checksumHash string) error {
	info, err := b.Head(ctx, remotePath)
	if err != nil {
		return err
	}
	if info.Size != size {
		return fmt.Errorf("remote size mismatch for %s: expected %d, got %d", remotePath, size, info.Size)
	}
	if info.Blake3 != "" && info.Blake3 != checksumHash {
		return fmt.Errorf("remote BLAKE3 mismatch for %s: expected %s, got %s", remotePath, checksumHash, info.Blake3)
	}
	return nil
}

func ValidateStorageClass(storageClass string) error {
	if storageClass == "GLACIER" || storageClass == "DEEP_ARCHIVE" {
		return fmt.Errorf("storage class %s is not immediately accessible (requires restore)", storageClass)
	}
	return nil
}
