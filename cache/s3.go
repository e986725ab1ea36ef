package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jonwraymond/retain/events"
)

// S3API is the slice of the S3 client the backend needs. *s3.Client
// satisfies it; tests substitute a fake.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Backend stores entry envelopes as objects in a bucket. S3 has no
// per-object TTL, so expiry travels in the envelope and is enforced on
// read; object storage correctness is delegated to the service.
type S3Backend struct {
	client   S3API
	bucket   string
	prefix   string
	compress bool
	log      events.Logger
}

// NewS3Backend loads the ambient AWS configuration (env, shared config,
// IMDS) and returns a backend writing under prefix in bucket. An empty
// region defers to the AWS config chain.
func NewS3Backend(ctx context.Context, bucket, prefix, region string, compress bool, log events.Logger) (*S3Backend, error) {
	if bucket == "" {
		return nil, &ConfigError{Reason: "s3 backend requires a bucket"}
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &UnavailableError{Backend: "s3", Err: err}
	}

	return NewS3BackendWithClient(s3.NewFromConfig(cfg), bucket, prefix, compress, log), nil
}

// NewS3BackendWithClient wires an existing client, bypassing AWS config
// loading.
func NewS3BackendWithClient(client S3API, bucket, prefix string, compress bool, log events.Logger) *S3Backend {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if log == nil {
		log = events.NopLogger{}
	}
	return &S3Backend{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		compress: compress,
		log:      log,
	}
}

// objectKey mirrors the disk layout under the configured prefix:
// <prefix>/<first-2-hex-of-digest>/<full-hex-digest>.cache
func (b *S3Backend) objectKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	return b.prefix + "/" + digest[:2] + "/" + digest + cacheFileSuffix
}

// Get retrieves a value. Corrupt envelopes are logged and treated as a
// miss; expired entries are deleted and reported as a miss.
func (b *S3Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	obj := b.objectKey(key)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(obj),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, &StorageError{Op: "get", Key: key, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, &StorageError{Op: "get", Key: key, Err: err}
	}

	entry, err := DecodeEntry(data, b.compress)
	if err != nil {
		b.log.Warn(ctx, "unreadable cache object, treating as miss",
			events.F("object", obj), events.F("error", err.Error()))
		return nil, false, nil
	}
	if entry.Expired(time.Now()) {
		if err := b.Delete(ctx, key); err != nil {
			b.log.Warn(ctx, "removing expired cache object failed",
				events.F("object", obj), events.F("error", err.Error()))
		}
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Set stores a value. S3 puts are atomic per object.
func (b *S3Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := EncodeEntry(NewEntry(value, ttl), b.compress)
	if err != nil {
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Delete removes a value. S3 deletes are idempotent.
func (b *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		return &StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Clear deletes every object under the prefix, page by page.
func (b *S3Backend) Clear(ctx context.Context) error {
	var token *string
	for {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(b.prefix + "/"),
			ContinuationToken: token,
		})
		if err != nil {
			return &StorageError{Op: "clear", Err: err}
		}
		for _, obj := range out.Contents {
			_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(b.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return &StorageError{Op: "clear", Err: err}
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			return nil
		}
		token = out.NextContinuationToken
	}
}

// Close releases nothing; the client has no resources to free.
func (b *S3Backend) Close(_ context.Context) error { return nil }

// Name identifies the backend kind.
func (b *S3Backend) Name() string { return "s3" }

var _ Backend = (*S3Backend)(nil)
