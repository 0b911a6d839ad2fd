// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package tui renders fetch progress and the final run summary.
package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/bodaay/shardfetch/pkg/shardfetch"
)

const barTemplate = `{{string . "prefix"}} {{counters . }} {{bar . "[" "=" ">" " " "]"}} {{percent . }} {{speed . }}`

var (
	okColor   = color.New(color.FgGreen).SprintFunc()
	skipColor = color.New(color.FgYellow).SprintFunc()
	warnColor = color.New(color.FgYellow).SprintFunc()
	errColor  = color.New(color.FgRed).SprintFunc()
	dimColor  = color.New(color.Faint).SprintFunc()
)

// IsInteractive reports whether w is a terminal that can host live bars.
func IsInteractive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}
	return strings.ToLower(os.Getenv("TERM")) != "dumb"
}

// Renderer turns progress events into terminal output. One file streams at a
// time, so at most one bar is live.
type Renderer struct {
	out   io.Writer
	bars  bool
	quiet bool

	mu      sync.Mutex
	bar     *pb.ProgressBar
	started time.Time
	total   int
	index   int
}

// NewRenderer creates a renderer writing to out. With bars set, a pb bar is
// drawn per file; otherwise only one line per outcome is printed. quiet
// suppresses skip lines.
func NewRenderer(out io.Writer, bars, quiet bool) *Renderer {
	return &Renderer{out: out, bars: bars, quiet: quiet}
}

// Handler returns a ProgressFunc feeding this renderer.
func (r *Renderer) Handler() shardfetch.ProgressFunc {
	return r.apply
}

// Close finishes any live bar.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopBar()
}

func (r *Renderer) apply(ev shardfetch.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Event {
	case "run_start":
		r.total = int(ev.Total)
	case "file_start":
		if ev.Attempt <= 1 {
			r.index++
		}
		r.started = time.Now()
		if r.bars {
			r.startBar(ev)
		}
	case "file_progress":
		if r.bar != nil {
			if ev.Total > 0 {
				r.bar.SetTotal(ev.Total)
			}
			r.bar.SetCurrent(ev.Downloaded)
		}
	case "file_done":
		if strings.HasPrefix(ev.Message, "skip") {
			r.index++
			if !r.quiet {
				fmt.Fprintf(r.out, "%s %s %s\n", skipColor("✓"), ev.Path, dimColor(fmt.Sprintf("(already exists, %s)", shardfetch.HumanBytes(ev.Total))))
			}
			return
		}
		r.stopBar()
		elapsed := time.Since(r.started)
		fmt.Fprintf(r.out, "%s %s (%s, %s)\n", okColor("✓"), ev.Path, shardfetch.HumanBytes(ev.Total), rate(ev.Total, elapsed))
	case "retry":
		r.stopBar()
		fmt.Fprintf(r.out, "%s %s: %s, retrying (attempt %d)\n", warnColor("⚠"), ev.Path, ev.Message, ev.Attempt)
	case "file_failed":
		r.stopBar()
		fmt.Fprintf(r.out, "%s %s: failed after %d attempt(s): %s\n", errColor("✗"), ev.Path, ev.Attempt, ev.Message)
	}
}

func (r *Renderer) startBar(ev shardfetch.ProgressEvent) {
	r.stopBar()
	prefix := ev.Path
	if r.total > 0 {
		prefix = fmt.Sprintf("[%d/%d] %s", r.index, r.total, ev.Path)
	}
	r.bar = pb.New64(ev.Total).
		SetTemplateString(barTemplate).
		SetWriter(r.out).
		SetRefreshRate(150*time.Millisecond).
		Set(pb.Bytes, true).
		Set("prefix", prefix).
		Start()
}

func (r *Renderer) stopBar() {
	if r.bar != nil {
		r.bar.Finish()
		r.bar = nil
	}
}

func rate(n int64, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return shardfetch.HumanBytes(int64(float64(n)/d.Seconds())) + "/s"
}
