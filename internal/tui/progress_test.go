// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/bodaay/shardfetch/pkg/shardfetch"
)

func init() {
	color.NoColor = true
}

func feed(r *Renderer, events ...shardfetch.ProgressEvent) {
	h := r.Handler()
	for _, ev := range events {
		h(ev)
	}
}

func TestRenderer_Lines(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false, false)
	feed(r,
		shardfetch.ProgressEvent{Event: "run_start", Total: 3},
		shardfetch.ProgressEvent{Event: "file_done", Path: "a.bin", Total: 2048, Message: "skip (exists)"},
		shardfetch.ProgressEvent{Event: "file_start", Path: "b.bin", Attempt: 1},
		shardfetch.ProgressEvent{Event: "file_progress", Path: "b.bin", Downloaded: 10, Total: 20},
		shardfetch.ProgressEvent{Event: "retry", Path: "b.bin", Attempt: 2, Message: "connection reset"},
		shardfetch.ProgressEvent{Event: "file_start", Path: "b.bin", Attempt: 2},
		shardfetch.ProgressEvent{Event: "file_done", Path: "b.bin", Total: 20},
		shardfetch.ProgressEvent{Event: "file_start", Path: "c.bin", Attempt: 1},
		shardfetch.ProgressEvent{Event: "file_failed", Path: "c.bin", Attempt: 1, Message: "bad status: 404 Not Found"},
	)
	r.Close()

	out := buf.String()
	assert.Contains(t, out, "✓ a.bin (already exists, 2.00 KiB)")
	assert.Contains(t, out, "⚠ b.bin: connection reset, retrying (attempt 2)")
	assert.Contains(t, out, "✓ b.bin (20 B,")
	assert.Contains(t, out, "✗ c.bin: failed after 1 attempt(s): bad status: 404 Not Found")
	assert.Equal(t, 3, r.index)
}

func TestRenderer_QuietHidesSkips(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false, true)
	feed(r, shardfetch.ProgressEvent{Event: "file_done", Path: "a.bin", Message: "skip (exists)"})
	assert.Empty(t, buf.String())
}

func TestRenderer_BarLifecycle(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true, false)
	feed(r,
		shardfetch.ProgressEvent{Event: "run_start", Total: 1},
		shardfetch.ProgressEvent{Event: "file_start", Path: "a.bin", Attempt: 1, Total: 100},
		shardfetch.ProgressEvent{Event: "file_progress", Path: "a.bin", Downloaded: 50, Total: 100},
	)
	assert.NotNil(t, r.bar)
	feed(r, shardfetch.ProgressEvent{Event: "file_done", Path: "a.bin", Total: 100})
	assert.Nil(t, r.bar)
	r.Close()
	assert.Contains(t, buf.String(), "[1/1] a.bin")
}

func TestIsInteractive_Buffer(t *testing.T) {
	assert.False(t, IsInteractive(&bytes.Buffer{}))
}

func TestPrintSummary(t *testing.T) {
	sum := &shardfetch.Summary{Elapsed: 1500 * time.Millisecond}
	for _, r := range []shardfetch.Result{
		{Target: shardfetch.Target{Name: "a"}, Outcome: shardfetch.Skipped, Bytes: 1 << 30},
		{Target: shardfetch.Target{Name: "b"}, Outcome: shardfetch.Succeeded, Bytes: 1 << 30},
		{Target: shardfetch.Target{Name: "c"}, Outcome: shardfetch.Failed, Err: errors.New("x")},
	} {
		sum.Results = append(sum.Results, r)
		switch r.Outcome {
		case shardfetch.Skipped:
			sum.Skipped++
			sum.Bytes += r.Bytes
		case shardfetch.Succeeded:
			sum.Succeeded++
			sum.Bytes += r.Bytes
		case shardfetch.Failed:
			sum.Failed++
		}
	}

	var buf bytes.Buffer
	PrintSummary(&buf, sum)
	out := buf.String()
	assert.Contains(t, out, "Present:    2/3 (downloaded 1, already present 1)")
	assert.Contains(t, out, "Failed:     1")
	assert.Contains(t, out, "Total size: 2.00 GiB")
	assert.Contains(t, out, "Some files failed to download: c")

	buf.Reset()
	PrintSummary(&buf, &shardfetch.Summary{Succeeded: 1})
	assert.Contains(t, buf.String(), "All files present.")
}
