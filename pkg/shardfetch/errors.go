// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package shardfetch

import (
	"errors"
	"fmt"
)

// Common errors returned by the library.
var (
	// ErrNoTargets is returned when a job names no files.
	ErrNoTargets = errors.New("no files to fetch")

	// ErrInvalidBaseURL is returned when the base URL is empty or uses an
	// unsupported scheme.
	ErrInvalidBaseURL = errors.New("invalid base URL: expected http, https or s3")

	// ErrInvalidName is returned for file names that would escape the output
	// directory or are otherwise unusable.
	ErrInvalidName = errors.New("invalid file name")

	// ErrShortBody is returned when the stream ended before the announced or
	// expected length.
	ErrShortBody = errors.New("body shorter than expected")

	// ErrStalled is returned when no data arrived within the timeout.
	ErrStalled = errors.New("transfer stalled")

	// ErrIncomplete reports a run in which at least one file failed.
	ErrIncomplete = errors.New("some files failed to download")
)

// FetchError records the final error of a target that exhausted its retries.
type FetchError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: failed after %d attempt(s): %v", e.Name, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: bad status: %s", e.URL, e.Status)
}

// FSError wraps a local filesystem failure. Unlike transport errors these
// are not retried: they abort the run.
type FSError struct {
	Op   string
	Path string
	Err  error
}

func (e *FSError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FSError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort a run rather than be retried.
func IsFatal(err error) bool {
	var fe *FSError
	return errors.As(err, &fe)
}
