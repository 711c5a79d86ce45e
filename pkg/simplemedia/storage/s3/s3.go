// Package s3 mirrors stored media files into an S3-compatible bucket. Object
// keys are the stored relative paths, optionally under a prefix, so a bucket
// fronted by a CDN serves the same URLs as the local tree.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// DefaultCacheControl is sent with every mirrored object. Stored names are
// never reused, so objects can be cached indefinitely.
const DefaultCacheControl = "public, max-age=31536000, immutable"

// Config options for the mirror bucket
type Config struct {
	Region          string
	Bucket          string
	Prefix          string // prepended to every stored path
	AccessKeyID     string // empty uses the default credential chain
	SecretAccessKey string
	Endpoint        string // MinIO and other S3-compatible services
	UsePathStyle    bool

	// Encryption is "AES256" or "aws:kms"; empty leaves objects unencrypted
	Encryption string
	KMSKeyID   string

	// CacheControl overrides DefaultCacheControl; "-" disables the header
	CacheControl string

	CreateBucketIfNotExist bool
}

// API is the subset of the S3 client the mirror needs
type API interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Backend uploads media files keyed by their stored relative path
type Backend struct {
	client   API
	uploader *manager.Uploader
	cfg      Config
}

// New connects to the bucket described by cfg
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	if cfg.CreateBucketIfNotExist {
		if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
			return nil, err
		}
	}
	return NewWithClient(client, cfg), nil
}

func loadOptions(cfg Config) []func(*awsconfig.LoadOptions) error {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	return opts
}

// NewWithClient wraps an existing client
func NewWithClient(client API, cfg Config) *Backend {
	return &Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		cfg:      cfg,
	}
}

// ensureBucket creates bucket unless HeadBucket finds it. MinIO reports a
// missing bucket as NotFound, NoSuchBucket or a bare BadRequest.
func ensureBucket(ctx context.Context, client *s3.Client, bucket, region string) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	missing := errors.As(err, &notFound) || errors.As(err, &noSuchBucket) ||
		strings.Contains(err.Error(), "BadRequest")
	if !missing {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := client.CreateBucket(ctx, in); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// Key maps a stored relative path to an object key
func (b *Backend) Key(relPath string) string {
	return strings.TrimPrefix(path.Join(b.cfg.Prefix, relPath), "/")
}

// Exists reports whether relPath has already been mirrored
func (b *Backend) Exists(ctx context.Context, relPath string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.Key(relPath)),
	})
	var notFound *types.NotFound
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &notFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to head %s: %w", b.Key(relPath), err)
	}
}

// Upload mirrors r to the key for relPath
func (b *Backend) Upload(ctx context.Context, relPath, contentType string, r io.Reader) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.Key(relPath)),
		Body:   r,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	switch cc := b.cfg.CacheControl; cc {
	case "":
		in.CacheControl = aws.String(DefaultCacheControl)
	case "-":
	default:
		in.CacheControl = aws.String(cc)
	}
	switch b.cfg.Encryption {
	case "AES256":
		in.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		in.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.cfg.KMSKeyID != "" {
			in.SSEKMSKeyId = aws.String(b.cfg.KMSKeyID)
		}
	}

	if _, err := b.uploader.Upload(ctx, in); err != nil {
		return fmt.Errorf("failed to mirror %s: %w", relPath, err)
	}
	return nil
}

// Delete removes the mirrored copy of relPath
func (b *Backend) Delete(ctx context.Context, relPath string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.Key(relPath)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", b.Key(relPath), err)
	}
	return nil
}
