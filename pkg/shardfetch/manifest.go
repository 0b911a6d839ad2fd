// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package shardfetch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Built-in job: the WebLLM build of Llama 3.2 1B Instruct, q4f16_1.
const (
	DefaultBaseURL    = "https://huggingface.co/mlc-ai/Llama-3.2-1B-Instruct-q4f16_1-MLC/resolve/main"
	DefaultOutputDir  = "models/Llama-3.2-1B-instruct-q4f16_1-MLC"
	defaultShardName  = "params_shard_%d.bin"
	defaultShardCount = 22
)

// defaultModelFiles are the non-shard files WebLLM loads from the model
// repository. The compiled model library is published elsewhere and is not
// part of the job.
var defaultModelFiles = []string{
	"mlc-chat-config.json",
	"ndarray-cache.json",
	"tokenizer.json",
	"tokenizer_config.json",
}

// DefaultJob returns the built-in job: the config and tokenizer files of the
// default model followed by all of its parameter shards.
func DefaultJob() Job {
	files := make([]File, 0, len(defaultModelFiles)+defaultShardCount)
	for _, name := range defaultModelFiles {
		files = append(files, File{Name: name})
	}
	return Job{
		BaseURL:   DefaultBaseURL,
		OutputDir: DefaultOutputDir,
		Files:     append(files, ShardFiles(defaultShardName, defaultShardCount)...),
	}
}

// ShardFiles expands a printf pattern with a single %d verb into count
// files numbered from zero.
//
//	ShardFiles("params_shard_%d.bin", 3) // params_shard_0.bin .. params_shard_2.bin
func ShardFiles(pattern string, count int) []File {
	files := make([]File, 0, count)
	for i := 0; i < count; i++ {
		files = append(files, File{Name: fmt.Sprintf(pattern, i)})
	}
	return files
}

// ShardSpec generates a numbered run of files in a manifest.
type ShardSpec struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Count   int    `json:"count" yaml:"count"`
}

// Manifest is the on-disk description of a job.
//
//	base_url: https://huggingface.co/mlc-ai/Llama-3.2-1B-Instruct-q4f16_1-MLC/resolve/main
//	output: models/Llama-3.2-1B-instruct-q4f16_1-MLC
//	files:
//	  - mlc-chat-config.json
//	  - name: tokenizer.json
//	    size: 17209920
//	shards:
//	  pattern: params_shard_%d.bin
//	  count: 22
//
// Explicit files come first, generated shards follow.
type Manifest struct {
	BaseURL string     `json:"base_url" yaml:"base_url"`
	Output  string     `json:"output" yaml:"output"`
	Files   []File     `json:"files" yaml:"files"`
	Shards  *ShardSpec `json:"shards,omitempty" yaml:"shards,omitempty"`
}

// Job converts the manifest into a Job. Empty fields fall back to the
// built-in job's base URL and output directory; the file list never does.
func (m Manifest) Job() (Job, error) {
	job := Job{
		BaseURL:   defaultString(m.BaseURL, DefaultBaseURL),
		OutputDir: defaultString(m.Output, DefaultOutputDir),
	}
	job.Files = append(job.Files, m.Files...)
	if m.Shards != nil {
		if strings.Count(m.Shards.Pattern, "%d") != 1 {
			return Job{}, fmt.Errorf("shards.pattern %q must contain exactly one %%d", m.Shards.Pattern)
		}
		if m.Shards.Count <= 0 {
			return Job{}, fmt.Errorf("shards.count must be positive, got %d", m.Shards.Count)
		}
		job.Files = append(job.Files, ShardFiles(m.Shards.Pattern, m.Shards.Count)...)
	}
	if err := validate(job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// ReadManifest decodes a YAML (.yaml, .yml) or JSON manifest without
// applying defaults or validation.
func ReadManifest(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, errors.Wrap(err, "read manifest")
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &m); err != nil {
			return Manifest{}, fmt.Errorf("invalid YAML manifest %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &m); err != nil {
			return Manifest{}, fmt.Errorf("invalid JSON manifest %s: %w", path, err)
		}
	}
	return m, nil
}

// LoadManifest reads a manifest and returns its Job.
func LoadManifest(path string) (Job, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return Job{}, err
	}

	job, err := m.Job()
	if err != nil {
		return Job{}, errors.Wrapf(err, "manifest %s", path)
	}
	return job, nil
}

// Targets derives the ordered targets of a job.
func (j Job) Targets() ([]Target, error) {
	if err := validate(j); err != nil {
		return nil, err
	}
	out := make([]Target, 0, len(j.Files))
	for _, f := range j.Files {
		out = append(out, Target{
			Name: f.Name,
			URL:  joinURL(j.BaseURL, f.Name),
			Path: filepath.Join(j.OutputDir, filepath.FromSlash(f.Name)),
			Size: f.Size,
		})
	}
	return out, nil
}
