// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package shardfetch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File names one file of a Job.
type File struct {
	// Name is the path of the file relative to both the base URL and the
	// output directory, e.g. "params_shard_0.bin".
	Name string `json:"name" yaml:"name"`

	// Size is the expected byte length. Zero means unknown, in which case a
	// local file is considered complete purely because it exists.
	Size int64 `json:"size,omitempty" yaml:"size,omitempty"`
}

// UnmarshalYAML accepts either a bare name or a {name, size} mapping.
func (f *File) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		f.Name = value.Value
		return nil
	}
	type plain File
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*f = File(p)
	return nil
}

// UnmarshalJSON accepts either a bare name or a {name, size} object.
func (f *File) UnmarshalJSON(b []byte) error {
	if s := strings.TrimSpace(string(b)); strings.HasPrefix(s, `"`) {
		return json.Unmarshal(b, &f.Name)
	}
	type plain File
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*f = File(p)
	return nil
}

// Job defines a set of files to make present locally.
//
// Every file is fetched from BaseURL + "/" + Name and stored at
// OutputDir/Name. Files are processed in order.
//
// Example:
//
//	job := shardfetch.Job{
//	    BaseURL:   "https://huggingface.co/mlc-ai/Llama-3.2-1B-Instruct-q4f16_1-MLC/resolve/main",
//	    OutputDir: "models/Llama-3.2-1B-instruct-q4f16_1-MLC",
//	    Files:     []shardfetch.File{{Name: "params_shard_0.bin"}},
//	}
type Job struct {
	// BaseURL is the remote location the file names are joined to.
	// Supported schemes: http, https, s3.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// OutputDir is the local destination directory. It is created, including
	// parents, when missing.
	OutputDir string `json:"output" yaml:"output"`

	// Files is the ordered list of files to fetch.
	Files []File `json:"files" yaml:"files"`
}

// Target is one file to be made present in the destination directory.
// Targets are derived from a Job and never modified afterwards.
type Target struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Path string `json:"path"`
	Size int64  `json:"size,omitempty"`
}

// Settings configures fetch behavior.
//
// The zero value is usable: Retries 0 means a single attempt per file, and
// empty durations fall back to the defaults documented on each field.
type Settings struct {
	// Retries is the number of additional attempts after a failed fetch.
	// A file that always fails is attempted Retries+1 times.
	// Negative values are treated as 0.
	Retries int

	// RetryDelay is the fixed pause between attempts ("5s", "500ms").
	// There is no backoff and no jitter. Defaults to "5s".
	RetryDelay string

	// Timeout bounds how long a fetch may wait without progress: connection
	// setup, response headers, and stalls between body reads. It does not cap
	// the length of a healthy transfer. "0" disables it. Defaults to "180s".
	Timeout string

	// UserAgent is sent with HTTP requests. Empty sends the client default.
	UserAgent string

	// Fetcher overrides the transport. When nil, an HTTP fetcher built from
	// these settings is used.
	Fetcher Fetcher `json:"-" yaml:"-"`
}

// TimeoutDuration parses Timeout, applying the default when it is empty.
func (s Settings) TimeoutDuration() (time.Duration, error) {
	d, err := parseDuration(s.Timeout, defaultTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	return d, nil
}

// DefaultSettings returns Settings with the defaults used by the CLI.
//
//	cfg := shardfetch.DefaultSettings()
//	cfg.Retries = 5
func DefaultSettings() Settings {
	return Settings{
		Retries:    3,
		RetryDelay: "5s",
		Timeout:    "180s",
		UserAgent:  "Mozilla/5.0",
	}
}

// Outcome is the terminal state of one target within a run.
type Outcome int

const (
	// Skipped means the file was already present.
	Skipped Outcome = iota
	// Succeeded means the file was fetched during this run.
	Succeeded
	// Failed means every attempt failed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText renders the outcome name in JSON output.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result records what happened to one target.
type Result struct {
	Target   Target        `json:"target"`
	Outcome  Outcome       `json:"outcome"`
	Bytes    int64         `json:"bytes"`
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
	Error    string        `json:"error,omitempty"`
	Err      error         `json:"-"`
}

// Summary aggregates the results of one run.
type Summary struct {
	RunID     string        `json:"runId"`
	Started   time.Time     `json:"started"`
	Elapsed   time.Duration `json:"elapsed"`
	Skipped   int           `json:"skipped"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`

	// Bytes is the total on-disk size of skipped and succeeded targets.
	Bytes int64 `json:"bytes"`

	Results []Result `json:"results"`
}

// Total is the number of targets that reached a terminal outcome.
func (s *Summary) Total() int {
	return s.Skipped + s.Succeeded + s.Failed
}

// OK reports whether no target failed.
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// ExitCode returns the process exit status for this run: 1 when any
// target failed, 0 otherwise.
func (s *Summary) ExitCode() int {
	if s.Failed > 0 {
		return 1
	}
	return 0
}

// FailedResults returns the results of failed targets in run order.
func (s *Summary) FailedResults() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Outcome == Failed {
			out = append(out, r)
		}
	}
	return out
}

func (s *Summary) add(r Result) {
	switch r.Outcome {
	case Skipped:
		s.Skipped++
		s.Bytes += r.Bytes
	case Succeeded:
		s.Succeeded++
		s.Bytes += r.Bytes
	case Failed:
		s.Failed++
	}
	s.Results = append(s.Results, r)
}

// ProgressEvent represents a progress update during a run.
//
// The Event field indicates the type of event:
//   - "run_start": the run has begun; Total holds the number of targets
//   - "file_start": an attempt to fetch a file has started
//   - "file_progress": periodic update while streaming a file
//   - "file_done": a file is present (Message is "skip (...)" when skipped)
//   - "retry": an attempt failed and another follows after the delay
//   - "file_failed": every attempt for a file failed
//   - "done": the run finished
type ProgressEvent struct {
	Time  time.Time `json:"time"`
	Level string    `json:"level,omitempty"`
	Event string    `json:"event"`
	RunID string    `json:"runId,omitempty"`

	// Path is the target name.
	Path string `json:"path,omitempty"`

	// Total is the expected size in bytes, or -1/0 when the server did not
	// announce one.
	Total int64 `json:"total,omitempty"`

	// Downloaded is the cumulative bytes streamed for the current attempt.
	Downloaded int64 `json:"downloaded,omitempty"`

	// Attempt is the 1-based attempt number.
	Attempt int `json:"attempt,omitempty"`

	Message string `json:"message,omitempty"`
}

// Percent returns the completion percentage of a file_progress event, or -1
// when the total is unknown.
func (e ProgressEvent) Percent() float64 {
	if e.Total <= 0 {
		return -1
	}
	return float64(e.Downloaded) / float64(e.Total) * 100
}

// ProgressFunc is a callback for receiving progress events. Events are
// emitted from the goroutine running the fetch loop.
type ProgressFunc func(ProgressEvent)
