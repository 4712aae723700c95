package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// TouchedAtMetadataKey is the user metadata key Touch stamps onto trigger objects.
const TouchedAtMetadataKey = "reconciled-at"

var _ ObjectStore = (*S3Store)(nil)

type (
	// S3API is the subset of the S3 client used by S3Store.
	S3API interface {
		HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
		GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
		PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
		CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	}

	// S3StoreConfig holds configuration for S3Store.
	S3StoreConfig struct {
		Region   string
		Endpoint string // Optional custom endpoint (LocalStack, MinIO)
	}

	// S3Store implements ObjectStore on Amazon S3.
	S3Store struct {
		client S3API
		now    func() time.Time
	}
)

// NewS3Store loads the default AWS configuration and creates an S3-backed store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StoreWithClient(client), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API) *S3Store {
	return &S3Store{client: client, now: time.Now}
}

// Exists reports whether bucket/key exists. Only a NotFound response maps to
// false; any other failure is returned.
func (s *S3Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	if isNotFound(err) {
		return false, nil
	}

	return false, fmt.Errorf("%w: head s3://%s/%s: %w", ErrObjectStoreFailed, bucket, key, err)
}

// Get opens bucket/key for reading.
func (s *S3Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, bucket, key)
		}

		return nil, fmt.Errorf("%w: get s3://%s/%s: %w", ErrObjectStoreFailed, bucket, key, err)
	}

	return out.Body, nil
}

// Put uploads body to bucket/key. Seekable bodies (such as *os.File) let the
// SDK compute the content length without buffering.
func (s *S3Store) Put(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("%w: put s3://%s/%s: %w", ErrObjectStoreFailed, bucket, key, err)
	}

	return nil
}

// Touch copies the object onto itself with a REPLACE metadata directive. The
// existing user metadata and content type are carried over and the
// TouchedAtMetadataKey entry is refreshed, so repeated touches are safe.
func (s *S3Store) Touch(ctx context.Context, bucket, key string) error {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, bucket, key)
		}

		return fmt.Errorf("%w: head s3://%s/%s: %w", ErrObjectStoreFailed, bucket, key, err)
	}

	metadata := make(map[string]string, len(head.Metadata)+1)
	maps.Copy(metadata, head.Metadata)
	metadata[TouchedAtMetadataKey] = s.now().UTC().Format(time.RFC3339Nano)

	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(copySource(bucket, key)),
		MetadataDirective: types.MetadataDirectiveReplace,
		Metadata:          metadata,
		ContentType:       head.ContentType,
		ContentEncoding:   head.ContentEncoding,
		CacheControl:      head.CacheControl,
	})
	if err != nil {
		return fmt.Errorf("%w: copy s3://%s/%s: %w", ErrObjectStoreFailed, bucket, key, err)
	}

	return nil
}

// copySource builds the URL-encoded "bucket/key" copy source.
func copySource(bucket, key string) string {
	return url.PathEscape(bucket) + "/" + (&url.URL{Path: key}).EscapedPath()
}

// isNotFound reports whether err is an S3 "no such key" response. HeadObject
// has no body, so it surfaces as the generic NotFound type.
func isNotFound(err error) bool {
	var (
		notFound  *types.NotFound
		noSuchKey *types.NoSuchKey
	)

	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}
