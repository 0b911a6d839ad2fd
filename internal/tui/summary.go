// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bodaay/shardfetch/pkg/shardfetch"
)

const rule = "============================================================"

// PrintHeader prints the banner shown before a run.
func PrintHeader(w io.Writer, title string, job shardfetch.Job) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Source:    %s\n", job.BaseURL)
	fmt.Fprintf(w, "Directory: %s\n", job.OutputDir)
	fmt.Fprintf(w, "Files:     %d\n", len(job.Files))
	fmt.Fprintln(w)
}

// PrintSummary prints the final counts of a run.
func PrintSummary(w io.Writer, sum *shardfetch.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Present:    %d/%d (downloaded %d, already present %d)\n",
		sum.Succeeded+sum.Skipped, sum.Total(), sum.Succeeded, sum.Skipped)
	fmt.Fprintf(w, "Failed:     %d\n", sum.Failed)
	fmt.Fprintf(w, "Total size: %s\n", shardfetch.HumanBytes(sum.Bytes))
	fmt.Fprintf(w, "Elapsed:    %s\n", sum.Elapsed.Round(10*time.Millisecond))
	fmt.Fprintln(w, rule)

	if sum.Failed > 0 {
		names := make([]string, 0, sum.Failed)
		for _, r := range sum.FailedResults() {
			names = append(names, r.Target.Name)
		}
		fmt.Fprintf(w, "\n%s Some files failed to download: %s\n", warnColor("⚠"), strings.Join(names, ", "))
		fmt.Fprintln(w, "Re-run the same command to retry; files already present are skipped.")
		return
	}
	fmt.Fprintf(w, "\n%s All files present.\n", okColor("✅"))
}
