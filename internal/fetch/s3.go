package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/audiokeeper/internal/common"
)

// S3Options configures access to the object storage holding generated audio.
// A non-empty Endpoint (MinIO and friends) switches to path-style addressing.
type S3Options struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// ObjectGetter is the part of *s3.Client the fetcher uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

func newS3Client(ctx context.Context, o S3Options) (*s3.Client, error) {
	region := o.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if o.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
			so.UsePathStyle = true
		}
	}), nil
}

func (c *Client) s3Client(ctx context.Context) (ObjectGetter, error) {
	c.s3mu.Lock()
	defer c.s3mu.Unlock()

	if c.s3 != nil {
		return c.s3, nil
	}
	cl, err := newS3Client(ctx, c.s3opts)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	c.s3 = cl
	return cl, nil
}

func (c *Client) fetchS3(ctx context.Context, u *url.URL, dst io.Writer, onBytes ProgressFunc) (int64, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return 0, fmt.Errorf("s3 url needs bucket and key: %w", common.ErrInvalidArgument)
	}

	cl, err := c.s3Client(ctx)
	if err != nil {
		return 0, err
	}

	out, err := cl.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return 0, fmt.Errorf("s3 object %s/%s: %w", bucket, key, common.ErrNotFound)
		}
		return 0, transient(ctx, u, err)
	}
	defer out.Body.Close()

	total := int64(-1)
	if out.ContentLength != nil {
		total = *out.ContentLength
	}

	pw := &progressWriter{w: dst, total: total, fn: onBytes}
	if _, err := io.Copy(pw, out.Body); err != nil {
		if pw.err != nil {
			return pw.written, fmt.Errorf("write: %w", pw.err)
		}
		return pw.written, transient(ctx, u, err)
	}
	if total >= 0 && pw.written != total {
		return pw.written, transient(ctx, u, io.ErrUnexpectedEOF)
	}
	return pw.written, nil
}
