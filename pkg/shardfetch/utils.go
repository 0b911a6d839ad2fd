// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package shardfetch

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultRetryDelay = 5 * time.Second
	defaultTimeout    = 180 * time.Second
)

// IsValidName reports whether name is a usable relative file name: non-empty,
// slash separated, clean, and not escaping the output directory.
func IsValidName(name string) bool {
	if name == "" || name == "." || strings.ContainsRune(name, '\\') {
		return false
	}
	if path.Clean(name) != name || strings.HasSuffix(name, "/") {
		return false
	}
	return filepath.IsLocal(filepath.FromSlash(name))
}

// validate checks that the job can be turned into targets.
func validate(job Job) error {
	u, err := url.Parse(job.BaseURL)
	if err != nil || job.BaseURL == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, job.BaseURL)
	}
	switch u.Scheme {
	case "http", "https", "s3":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, job.BaseURL)
	}
	if len(job.Files) == 0 {
		return ErrNoTargets
	}
	seen := make(map[string]struct{}, len(job.Files))
	for _, f := range job.Files {
		if !IsValidName(f.Name) {
			return fmt.Errorf("%w: %q", ErrInvalidName, f.Name)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("%w: %q listed twice", ErrInvalidName, f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Size < 0 {
			return fmt.Errorf("%w: %q has negative size", ErrInvalidName, f.Name)
		}
	}
	return nil
}

// joinURL appends an escaped relative name to base.
func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + pathEscapeAll(name)
}

func pathEscapeAll(p string) string {
	segs := strings.Split(p, "/")
	for i := range segs {
		segs[i] = url.PathEscape(segs[i])
	}
	return strings.Join(segs, "/")
}

// parseDuration parses s, returning def when s is empty.
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// sleepCtx waits for d or returns false if ctx is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// defaultString returns s if non-empty, otherwise def.
func defaultString(s string, def string) string {
	if s == "" {
		return def
	}
	return s
}

// HumanBytes formats n with binary units, e.g. "1.50 GiB".
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
