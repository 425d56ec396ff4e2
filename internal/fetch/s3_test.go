package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchS3_PathStyleEndpoint(t *testing.T) {
	body := payload(4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/items/a1.mp3" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := New(Options{Retry: fastRetry, S3: S3Options{
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "minio",
		SecretKey: "minio123",
	}})

	var buf bytes.Buffer
	var last int64
	n, err := c.Fetch(context.Background(), "s3://audio/items/a1.mp3", &buf, func(written, total int64) {
		last = written
		assert.Equal(t, int64(len(body)), total)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
	assert.Equal(t, int64(len(body)), last)
	assert.Equal(t, body, buf.Bytes())

	_, err = c.Fetch(context.Background(), "s3://audio/items/missing.mp3", &bytes.Buffer{}, nil)
	require.ErrorIs(t, err, common.ErrNotFound)
}

type fakeObjectGetter struct {
	err error
}

func (f *fakeObjectGetter) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, f.err
}

func TestFetchS3_ErrorsAreTransient(t *testing.T) {
	c := New(Options{S3Client: &fakeObjectGetter{err: fmt.Errorf("connection reset")}})

	_, err := c.Fetch(context.Background(), "s3://audio/a1.mp3", &bytes.Buffer{}, nil)
	require.ErrorIs(t, err, common.ErrTransientNetwork)
}

func TestFetchS3_BadURL(t *testing.T) {
	c := New(Options{S3Client: &fakeObjectGetter{}})

	_, err := c.Fetch(context.Background(), "s3://bucket-only", &bytes.Buffer{}, nil)
	require.ErrorIs(t, err, common.ErrInvalidArgument)
}
