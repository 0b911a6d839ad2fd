// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package shardfetch

import (
	"errors"
	"os"
)

// PlanItem describes one target and its local state.
type PlanItem struct {
	Target
	Present   bool  `json:"present"`
	LocalSize int64 `json:"localSize,omitempty"`
}

// Plan contains the targets of a job and which of them would be fetched.
type Plan struct {
	Items   []PlanItem `json:"items"`
	Missing int        `json:"missing"`
}

// PlanJob inspects the output directory without touching the network or
// modifying anything on disk.
func PlanJob(job Job) (*Plan, error) {
	targets, err := job.Targets()
	if err != nil {
		return nil, err
	}
	p := &Plan{Items: make([]PlanItem, 0, len(targets))}
	for _, t := range targets {
		it := PlanItem{Target: t}
		fi, err := os.Stat(t.Path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, &FSError{Op: "stat", Path: t.Path, Err: err}
		case !fi.IsDir():
			it.LocalSize = fi.Size()
			it.Present = t.Size <= 0 || fi.Size() == t.Size
		}
		if !it.Present {
			p.Missing++
		}
		p.Items = append(p.Items, it)
	}
	return p, nil
}
