// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package s3source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodaay/shardfetch/pkg/shardfetch"
)

// newFakeS3 serves GET /<bucket>/<key> from objects, path-style.
func newFakeS3(t *testing.T, objects map[string]string) (*Fetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`)
			return
		}
		_, _ = io.WriteString(w, body)
	}))

	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String("us-east-1"),
		Endpoint:         aws.String(srv.URL),
		S3ForcePathStyle: aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials("id", "secret", ""),
		MaxRetries:       aws.Int(0),
	})
	require.NoError(t, err)
	return NewWithClient(s3.New(sess), 2*time.Second), srv
}

func TestParseURL(t *testing.T) {
	bucket, key, err := ParseURL("s3://weights/llama/params_shard_0.bin")
	require.NoError(t, err)
	assert.Equal(t, "weights", bucket)
	assert.Equal(t, "llama/params_shard_0.bin", key)

	for _, bad := range []string{"https://weights/x", "s3://weights", "s3:///x"} {
		_, _, err := ParseURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestFetcher_GetObject(t *testing.T) {
	f, srv := newFakeS3(t, map[string]string{"/weights/llama/a.bin": "object-bytes"})
	defer srv.Close()

	body, size, err := f.Fetch(context.Background(), "s3://weights/llama/a.bin")
	require.NoError(t, err)
	defer body.Close()

	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "object-bytes", string(b))
	assert.Equal(t, int64(len("object-bytes")), size)
}

func TestFetcher_MissingKey(t *testing.T) {
	f, srv := newFakeS3(t, nil)
	defer srv.Close()

	_, _, err := f.Fetch(context.Background(), "s3://weights/nope.bin")
	assert.Error(t, err)
}

func TestFetcher_DrivesFetchLoop(t *testing.T) {
	f, srv := newFakeS3(t, map[string]string{
		"/weights/m/params_shard_0.bin": "zero",
		"/weights/m/params_shard_1.bin": "one",
	})
	defer srv.Close()

	dir := t.TempDir()
	job := shardfetch.Job{
		BaseURL:   "s3://weights/m",
		OutputDir: dir,
		Files:     shardfetch.ShardFiles("params_shard_%d.bin", 2),
	}
	sum, err := shardfetch.Download(context.Background(), job, shardfetch.Settings{RetryDelay: "1ms", Fetcher: f}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, int64(7), sum.Bytes)
	assert.FileExists(t, filepath.Join(dir, "params_shard_1.bin"))
}

// isolateAWS keeps the SDK away from the developer's shared config files.
func isolateAWS(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_ACCESS_KEY_ID", "id")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
}

func TestFetcher_StalledBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String("us-east-1"),
		Endpoint:         aws.String(srv.URL),
		S3ForcePathStyle: aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials("id", "secret", ""),
		MaxRetries:       aws.Int(0),
	})
	require.NoError(t, err)
	f := NewWithClient(s3.New(sess), 100*time.Millisecond)

	body, _, err := f.Fetch(context.Background(), "s3://weights/slow.bin")
	require.NoError(t, err)
	defer body.Close()

	start := time.Now()
	_, err = io.ReadAll(body)
	assert.ErrorIs(t, err, shardfetch.ErrStalled)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestNew_UnresponsiveEndpointTimesOut(t *testing.T) {
	isolateAWS(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	f, err := New(Config{Region: "us-east-1", Endpoint: srv.URL, Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, _, err = f.Fetch(context.Background(), "s3://weights/hung.bin")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestNew_CredentialsFile(t *testing.T) {
	isolateAWS(t)
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	creds := filepath.Join(t.TempDir(), "creds")
	require.NoError(t, os.WriteFile(creds, []byte("[mirror]\naws_access_key_id = MIRRORKEY\naws_secret_access_key = s\n"), 0o600))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", creds)
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")

	f, err := New(Config{
		Region:   "us-east-1",
		Endpoint: srv.URL,
		Profile:  "mirror",
		CredFile: creds,
		Timeout:  2 * time.Second,
	})
	require.NoError(t, err)

	body, _, err := f.Fetch(context.Background(), "s3://weights/a.bin")
	require.NoError(t, err)
	defer body.Close()
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(b))
	assert.Contains(t, gotAuth, "MIRRORKEY/")
}
