// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package s3source fetches shards from an S3 bucket, for mirrors that keep
// the weights in object storage instead of behind HTTP.
package s3source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/bodaay/shardfetch/pkg/shardfetch"
)

// Config selects the bucket's region and credentials.
type Config struct {
	Region string
	// Profile names a profile in the shared AWS config/credentials files.
	Profile string
	// CredFile overrides the shared credentials file location.
	CredFile string
	// Endpoint points the client at an S3-compatible service. Path-style
	// addressing is used when set.
	Endpoint string
	// Timeout bounds connection setup, response headers and gaps between
	// body bytes. Zero disables it.
	Timeout time.Duration
}

// Fetcher implements shardfetch.Fetcher for s3://bucket/key URLs.
type Fetcher struct {
	svc     s3iface.S3API
	timeout time.Duration
}

// New creates a Fetcher from cfg. SDK-level retries are disabled; the fetch
// loop owns the retry policy.
func New(cfg Config) (*Fetcher, error) {
	awsCfg := aws.Config{
		MaxRetries: aws.Int(0),
		HTTPClient: shardfetch.NewHTTPClient(cfg.Timeout),
	}
	if cfg.Region != "" {
		awsCfg.Region = aws.String(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.CredFile != "" {
		awsCfg.Credentials = credentials.NewSharedCredentials(cfg.CredFile, cfg.Profile)
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            awsCfg,
		Profile:           cfg.Profile,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("create AWS session: %w", err)
	}
	return NewWithClient(s3.New(sess), cfg.Timeout), nil
}

// NewWithClient wraps an existing S3 client. timeout bounds gaps between
// body bytes; the client's own HTTP timeouts cover the request itself.
func NewWithClient(svc s3iface.S3API, timeout time.Duration) *Fetcher {
	return &Fetcher{svc: svc, timeout: timeout}
}

// ParseURL splits s3://bucket/key into its parts.
func ParseURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 URL: %q", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 URL %q has no key", raw)
	}
	return u.Host, key, nil
}

// Fetch opens the object named by rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return nil, 0, err
	}

	ctx, cancel := context.WithCancel(ctx)
	out, err := f.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		return nil, 0, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return shardfetch.NewStallReader(out.Body, f.timeout, cancel), size, nil
}
