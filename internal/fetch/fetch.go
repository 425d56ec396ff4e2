// Package fetch streams remote audio content: plain HTTP(S) with a single
// retry and ranged resume, S3 objects (s3://bucket/key) and HLS media
// playlists.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/logging"
)

// ProgressFunc receives the running byte count and the expected total, -1
// when unknown.
type ProgressFunc func(written, total int64)

type Fetcher interface {
	// Fetch copies the content at rawURL to dst and returns the number of
	// bytes written. Interrupted transfers are reported as
	// common.ErrTransientNetwork; cancellation returns the context error.
	Fetch(ctx context.Context, rawURL string, dst io.Writer, onBytes ProgressFunc) (int64, error)
}

const (
	DefaultMaxResumes = 3
	defaultTimeout    = 10 * time.Minute
)

type Options struct {
	HTTPClient *http.Client
	// Retry defaults to DefaultRetryPolicy.
	Retry *RetryPolicy
	// MaxResumes bounds ranged resumes of one transfer.
	MaxResumes int
	S3         S3Options
	// S3Client replaces the client built from S3.
	S3Client ObjectGetter
	Logger   logging.Logger
}

type Client struct {
	http       *http.Client
	retry      RetryPolicy
	maxResumes int
	log        logging.Logger

	s3opts S3Options
	s3mu   sync.Mutex
	s3     ObjectGetter
}

var _ Fetcher = (*Client)(nil)

func New(opts Options) *Client {
	c := &Client{
		http:       opts.HTTPClient,
		retry:      DefaultRetryPolicy,
		maxResumes: opts.MaxResumes,
		log:        opts.Logger,
		s3opts:     opts.S3,
		s3:         opts.S3Client,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if opts.Retry != nil {
		c.retry = *opts.Retry
	}
	if c.maxResumes <= 0 {
		c.maxResumes = DefaultMaxResumes
	}
	if c.log == nil {
		c.log = logging.Nop()
	}
	return c
}

func (c *Client) Fetch(ctx context.Context, rawURL string, dst io.Writer, onBytes ProgressFunc) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("parse url: %w", common.ErrInvalidArgument)
	}

	c.log.Debug(ctx, "fetch started", "url", common.RedactURL(rawURL))

	switch strings.ToLower(u.Scheme) {
	case "s3":
		return c.fetchS3(ctx, u, dst, onBytes)
	case "http", "https":
		if strings.HasSuffix(strings.ToLower(u.Path), ".m3u8") {
			return c.fetchHLS(ctx, u, dst, onBytes)
		}
		return c.fetchHTTP(ctx, u, dst, onBytes)
	default:
		return 0, fmt.Errorf("unsupported scheme %q: %w", u.Scheme, common.ErrInvalidArgument)
	}
}

// progressWriter counts bytes written to w and reports them.
type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	fn      ProgressFunc
	err     error
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if n > 0 && p.fn != nil {
		p.fn(p.written, p.total)
	}
	if err != nil {
		p.err = err
	}
	return n, err
}

func transient(ctx context.Context, u *url.URL, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("fetch %s: %w: %w", common.RedactURL(u.String()), common.ErrTransientNetwork, err)
}

func statusErr(ctx context.Context, u *url.URL, code int) error {
	switch {
	case code == http.StatusOK || code == http.StatusPartialContent:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("fetch %s: status %d: %w", common.RedactURL(u.String()), code, common.ErrNotFound)
	case code == http.StatusTooManyRequests || code >= 500:
		return transient(ctx, u, fmt.Errorf("status %d", code))
	default:
		return fmt.Errorf("fetch %s: unexpected status %d", common.RedactURL(u.String()), code)
	}
}

func (c *Client) get(ctx context.Context, u *url.URL, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := DoWithRetry(ctx, c.http, req, c.retry)
	if err != nil {
		return nil, transient(ctx, u, err)
	}
	if err := statusErr(ctx, u, resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (c *Client) fetchHTTP(ctx context.Context, u *url.URL, dst io.Writer, onBytes ProgressFunc) (int64, error) {
	resp, err := c.get(ctx, u, nil)
	if err != nil {
		return 0, err
	}

	body := resp.Body
	defer func() { body.Close() }()

	pw := &progressWriter{w: dst, total: resp.ContentLength, fn: onBytes}
	resumable := resp.Header.Get("Accept-Ranges") == "bytes"
	etag := resp.Header.Get("ETag")

	for resumes := 0; ; resumes++ {
		_, err := io.Copy(pw, body)
		if err == nil {
			break
		}
		if pw.err != nil {
			return pw.written, fmt.Errorf("write: %w", pw.err)
		}
		if !resumable || resumes >= c.maxResumes || ctx.Err() != nil {
			return pw.written, transient(ctx, u, err)
		}

		c.log.Info(ctx, "resuming interrupted download", "url", common.RedactURL(u.String()), "offset", pw.written, "error", err)
		body.Close()
		body, err = c.rangeRequest(ctx, u, pw.written, etag)
		if err != nil {
			body = io.NopCloser(strings.NewReader(""))
			return pw.written, transient(ctx, u, err)
		}
	}

	if pw.total >= 0 && pw.written != pw.total {
		return pw.written, transient(ctx, u, io.ErrUnexpectedEOF)
	}
	return pw.written, nil
}

// rangeRequest continues a transfer at offset. A server that answers with
// the full body cannot be resumed since dst already holds the prefix.
func (c *Client) rangeRequest(ctx context.Context, u *url.URL, offset int64, etag string) (io.ReadCloser, error) {
	h := http.Header{}
	h.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	if etag != "" {
		h.Set("If-Range", etag)
	}

	resp, err := c.get(ctx, u, h)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, errors.New("server ignored range request")
	}
	return resp.Body, nil
}
