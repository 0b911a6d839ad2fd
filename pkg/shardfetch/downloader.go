// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package shardfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/bodaay/shardfetch/internal/logging"
)

const (
	partSuffix = ".part"
	chunkSize  = 32 << 10
)

var log = logging.New("fetch", 2)

// progressReader wraps an io.Reader and emits progress events during reads.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	path       string
	attempt    int
	emit       func(ProgressEvent)
	lastEmit   time.Time
	interval   time.Duration
}

func newProgressReader(r io.Reader, total int64, path string, attempt int, emit func(ProgressEvent)) *progressReader {
	return &progressReader{
		reader:   r,
		total:    total,
		path:     path,
		attempt:  attempt,
		emit:     emit,
		lastEmit: time.Now(),
		interval: 200 * time.Millisecond,
	}
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	pr.downloaded += int64(n)
	// Throttle emissions; always report the final count at EOF.
	if (n > 0 && time.Since(pr.lastEmit) >= pr.interval) || err == io.EOF {
		pr.emit(ProgressEvent{
			Event:      "file_progress",
			Path:       pr.path,
			Downloaded: pr.downloaded,
			Total:      pr.total,
			Attempt:    pr.attempt,
		})
		pr.lastEmit = time.Now()
	}
	return n, err
}

// fsWriter tags write failures as filesystem errors so the loop can tell
// them apart from body read failures coming out of io.Copy.
type fsWriter struct {
	f    *os.File
	path string
}

func (w fsWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		return n, &FSError{Op: "write", Path: w.path, Err: err}
	}
	return n, nil
}

// Download fetches every file of job that is not already present in
// job.OutputDir and reports what happened to each.
//
// A file that fails is retried up to cfg.Retries times with a fixed delay
// and then recorded as Failed; the run continues with the next file. The
// returned error is non-nil only for invalid input, filesystem failures,
// and cancellation, in which case the summary covers the targets processed
// so far.
func Download(ctx context.Context, job Job, cfg Settings, progress ProgressFunc) (*Summary, error) {
	targets, err := job.Targets()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return nil, &FSError{Op: "mkdir", Path: job.OutputDir, Err: err}
	}
	return Run(ctx, targets, cfg, progress)
}

// Run processes targets sequentially in order. See Download.
func Run(ctx context.Context, targets []Target, cfg Settings, progress ProgressFunc) (*Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	delay, err := parseDuration(cfg.RetryDelay, defaultRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("invalid retry-delay: %w", err)
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	fetcher := cfg.Fetcher
	if fetcher == nil {
		hf, err := NewHTTPFetcher(cfg)
		if err != nil {
			return nil, err
		}
		fetcher = hf
	}

	sum := &Summary{RunID: uuid.NewString(), Started: time.Now()}
	emit := func(ev ProgressEvent) {
		if progress == nil {
			return
		}
		if ev.Time.IsZero() {
			ev.Time = time.Now().UTC()
		}
		ev.RunID = sum.RunID
		progress(ev)
	}
	finish := func() {
		sum.Elapsed = time.Since(sum.Started)
	}

	log.Info("run %s: %d targets, retries=%d, delay=%s", sum.RunID, len(targets), retries, delay)
	emit(ProgressEvent{Event: "run_start", Total: int64(len(targets))})

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			finish()
			return sum, err
		}

		present, size, err := localState(t)
		if err != nil {
			finish()
			return sum, pkgerrors.Wrapf(err, "check %s", t.Name)
		}
		if present {
			log.Trace("skip %s: present (%d bytes)", t.Name, size)
			sum.add(Result{Target: t, Outcome: Skipped, Bytes: size})
			emit(ProgressEvent{Event: "file_done", Path: t.Name, Total: size, Message: "skip (exists)"})
			continue
		}

		res, err := fetchWithRetry(ctx, fetcher, t, retries, delay, emit)
		sum.add(res)
		if err != nil {
			finish()
			if IsFatal(err) {
				log.Error("abort run %s: %v", sum.RunID, err)
				return sum, pkgerrors.Wrapf(err, "fetch %s", t.Name)
			}
			return sum, err
		}
	}

	finish()
	log.Info("run %s done: succeeded=%d skipped=%d failed=%d", sum.RunID, sum.Succeeded, sum.Skipped, sum.Failed)
	emit(ProgressEvent{
		Event:   "done",
		Total:   sum.Bytes,
		Message: fmt.Sprintf("downloaded %d, skipped %d, failed %d", sum.Succeeded, sum.Skipped, sum.Failed),
	})
	return sum, nil
}

// localState reports whether t is already present. A file of the wrong size
// is removed so that it is fetched again.
func localState(t Target) (bool, int64, error) {
	fi, err := os.Stat(t.Path)
	if errors.Is(err, os.ErrNotExist) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, &FSError{Op: "stat", Path: t.Path, Err: err}
	}
	if fi.IsDir() {
		return false, 0, &FSError{Op: "stat", Path: t.Path, Err: errors.New("is a directory")}
	}
	if t.Size > 0 && fi.Size() != t.Size {
		log.Warn("%s: local size %d does not match expected %d, fetching again", t.Name, fi.Size(), t.Size)
		if err := os.Remove(t.Path); err != nil {
			return false, 0, &FSError{Op: "remove", Path: t.Path, Err: err}
		}
		return false, 0, nil
	}
	return true, fi.Size(), nil
}

// fetchWithRetry makes up to retries+1 attempts. The returned error is only
// set for fatal or cancellation errors; exhausted transport retries are
// reported through the Result.
func fetchWithRetry(ctx context.Context, f Fetcher, t Target, retries int, delay time.Duration, emit func(ProgressEvent)) (Result, error) {
	start := time.Now()
	res := Result{Target: t, Outcome: Failed}
	var lastErr error

	for attempt := 1; attempt <= retries+1; attempt++ {
		res.Attempts = attempt
		emit(ProgressEvent{Event: "file_start", Path: t.Name, Total: t.Size, Attempt: attempt})

		n, err := fetchOnce(ctx, f, t, attempt, emit)
		if err == nil {
			res.Outcome = Succeeded
			res.Bytes = n
			res.Elapsed = time.Since(start)
			log.Trace("%s: fetched %d bytes in %s", t.Name, n, res.Elapsed)
			emit(ProgressEvent{Event: "file_done", Path: t.Name, Total: n, Downloaded: n, Attempt: attempt})
			return res, nil
		}

		if IsFatal(err) || ctx.Err() != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			res.Elapsed = time.Since(start)
			res.Err = err
			res.Error = err.Error()
			return res, err
		}

		lastErr = err
		log.Warn("%s: attempt %d/%d failed: %v", t.Name, attempt, retries+1, err)
		if attempt <= retries {
			emit(ProgressEvent{Level: "warn", Event: "retry", Path: t.Name, Attempt: attempt + 1, Message: err.Error()})
			if !sleepCtx(ctx, delay) {
				res.Elapsed = time.Since(start)
				res.Err = ctx.Err()
				res.Error = res.Err.Error()
				return res, ctx.Err()
			}
		}
	}

	res.Elapsed = time.Since(start)
	res.Err = &FetchError{Name: t.Name, Attempts: res.Attempts, Err: lastErr}
	res.Error = res.Err.Error()
	log.Error("%v", res.Err)
	emit(ProgressEvent{Level: "error", Event: "file_failed", Path: t.Name, Attempt: res.Attempts, Message: lastErr.Error()})
	return res, nil
}

// fetchOnce streams one attempt into a .part file and renames it into place
// once the body is complete. On any failure the .part file is removed, so a
// truncated file never appears at t.Path.
func fetchOnce(ctx context.Context, f Fetcher, t Target, attempt int, emit func(ProgressEvent)) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		return 0, &FSError{Op: "mkdir", Path: filepath.Dir(t.Path), Err: err}
	}

	body, size, err := f.Fetch(ctx, t.URL)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	total := size
	if total < 0 && t.Size > 0 {
		total = t.Size
	}

	tmp := t.Path + partSuffix
	out, err := os.Create(tmp)
	if err != nil {
		return 0, &FSError{Op: "create", Path: tmp, Err: err}
	}

	pr := newProgressReader(body, total, t.Name, attempt, emit)
	n, err := io.CopyBuffer(fsWriter{f: out, path: tmp}, pr, make([]byte, chunkSize))
	if cerr := out.Close(); err == nil && cerr != nil {
		err = &FSError{Op: "close", Path: tmp, Err: cerr}
	}
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("%w: got %d of %d bytes", ErrShortBody, n, size)
	}
	if err == nil && t.Size > 0 && n != t.Size {
		err = fmt.Errorf("%w: got %d bytes, manifest expects %d", ErrShortBody, n, t.Size)
	}
	if err != nil {
		if rerr := os.Remove(tmp); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			log.Warn("remove partial %s: %v", tmp, rerr)
		}
		return n, err
	}

	if err := os.Rename(tmp, t.Path); err != nil {
		_ = os.Remove(tmp)
		return n, &FSError{Op: "rename", Path: t.Path, Err: err}
	}
	return n, nil
}
