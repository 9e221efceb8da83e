// Package objstore lists and reads parquet partitions from an
// S3-compatible object store.
package objstore

import (
	"context"
	stderrors "errors"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"ocp-cost-aggregator/internal/config"
	"ocp-cost-aggregator/internal/errors"
	"ocp-cost-aggregator/internal/logging"
)

// Client wraps the S3 API for one bucket
type Client struct {
	api        s3.ListObjectsV2APIClient
	getter     objectGetter
	bucket     string
	maxRetries int
}

// objectGetter is the subset of the S3 client the fetch path needs;
// narrowed for tests.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewClient builds a client for an S3-compatible endpoint with static
// credentials and path-style addressing.
func NewClient(ctx context.Context, cfg config.ObjectStoreConfig, maxRetries int) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, errors.Wrap(errors.KindInputUnavailable, "building object store credentials", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &Client{api: api, getter: api, bucket: cfg.Bucket, maxRetries: maxRetries}, nil
}

// List returns the keys under prefix in lexicographic order. Partition
// predicates over source/year/month are satisfied entirely by the prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(errors.KindInputUnavailable, err, "listing %s", prefix)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Fetch reads one object fully into memory, retrying transient failures
// with exponential backoff.
func (c *Client) Fetch(ctx context.Context, key string) ([]byte, error) {
	var data []byte

	operation := func() error {
		out, err := c.getter.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			logging.Warn("transient object read failure, retrying",
				zap.String("key", key), zap.Error(err))
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		if err != nil {
			return err
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newBackoff(), uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, errors.Wrapf(errors.KindInputUnavailable, err, "fetching %s", key)
	}
	return data, nil
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// isPermanent reports whether the error can not be recovered by retrying
func isPermanent(err error) bool {
	var noKey *s3types.NoSuchKey
	var noBucket *s3types.NoSuchBucket
	return stderrors.As(err, &noKey) || stderrors.As(err, &noBucket)
}
